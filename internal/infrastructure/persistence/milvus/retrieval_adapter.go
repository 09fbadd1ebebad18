package milvus

import (
	"context"

	"benefit-ai-api/internal/application/pipeline"
	"benefit-ai-api/internal/domain/entity"
)

// VectorAdapter 把 Milvus 仓储适配到流水线的向量检索与索引端口
type VectorAdapter struct {
	repo *Repository
}

// NewVectorAdapter 创建向量端口适配器
func NewVectorAdapter(repo *Repository) *VectorAdapter {
	return &VectorAdapter{repo: repo}
}

var _ pipeline.VectorIndexer = (*VectorAdapter)(nil)

// VectorSearch 语义检索，结果转为未排序证据候选
func (a *VectorAdapter) VectorSearch(ctx context.Context, q pipeline.VectorQuery) ([]*entity.EvidenceCandidate, error) {
	if a == nil || a.repo == nil {
		return nil, pipeline.ErrVectorDisabled
	}

	out, err := a.repo.SearchChunks(ctx, &SearchParams{
		TenantID:    q.Scope.TenantID,
		PlanID:      q.Scope.PlanID,
		QueryVector: q.Embedding,
		TopK:        q.TopK,
		MinScore:    q.MinScore,
		DocType:     q.DocType,
	})
	if err != nil {
		return nil, err
	}

	cands := make([]*entity.EvidenceCandidate, 0, len(out))
	for _, r := range out {
		if r == nil {
			continue
		}
		cands = append(cands, &entity.EvidenceCandidate{
			Source:     entity.SourceVector,
			DocumentID: r.DocumentID,
			SpanStart:  int(r.SpanStart),
			SpanEnd:    int(r.SpanEnd),
			Excerpt:    r.TextContent,
			Score:      clampScore(float64(r.Score)),
			Page:       int(r.Page),
			Section:    r.Section,
		})
	}
	return cands, nil
}

// InsertChunks 写入索引链路产出的分块
func (a *VectorAdapter) InsertChunks(ctx context.Context, scope entity.TenantScope, chunks []*pipeline.DocumentChunk) error {
	if a == nil || a.repo == nil {
		return pipeline.ErrVectorDisabled
	}
	if len(chunks) == 0 {
		return nil
	}

	out := make([]*BenefitChunk, 0, len(chunks))
	for _, c := range chunks {
		if c == nil {
			continue
		}
		out = append(out, &BenefitChunk{
			ID:          c.ID,
			Vector:      c.Embedding,
			TenantID:    scope.TenantID,
			PlanID:      scope.PlanID,
			DocumentID:  c.DocumentID,
			DocType:     c.DocType,
			Page:        int64(c.Page),
			Section:     c.Section,
			SpanStart:   int64(c.SpanStart),
			SpanEnd:     int64(c.SpanEnd),
			TextContent: c.Text,
		})
	}
	return a.repo.InsertChunks(ctx, scope.TenantID, out)
}

// clampScore COSINE 相似度已在 [0,1] 附近，仍做边界裁剪
func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
