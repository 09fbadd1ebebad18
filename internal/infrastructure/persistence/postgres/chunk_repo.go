// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"benefit-ai-api/internal/application/pipeline"
	"benefit-ai-api/internal/domain/entity"
)

// ChunkRecord 计划文档分块行。关键词检索侧与向量侧共用 chunk ID。
type ChunkRecord struct {
	ID         string    `gorm:"column:id;primaryKey"`
	TenantID   string    `gorm:"column:tenant_id;index:idx_plan_chunks_scope"`
	PlanID     string    `gorm:"column:plan_id;index:idx_plan_chunks_scope"`
	DocumentID string    `gorm:"column:document_id;index"`
	DocType    string    `gorm:"column:doc_type"`
	Page       int       `gorm:"column:page"`
	Section    string    `gorm:"column:section"`
	SpanStart  int       `gorm:"column:span_start"`
	SpanEnd    int       `gorm:"column:span_end"`
	Content    string    `gorm:"column:content"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName 指定表名
func (ChunkRecord) TableName() string {
	return "plan_chunks"
}

// ChunkRepository 分块仓储：全文关键词检索 + 索引链路落库
type ChunkRepository struct {
	client *Client
}

// NewChunkRepository 创建分块仓储
func NewChunkRepository(client *Client) *ChunkRepository {
	return &ChunkRepository{client: client}
}

var _ pipeline.ChunkWriter = (*ChunkRepository)(nil)

// keywordRow 全文检索结果行
type keywordRow struct {
	ChunkRecord
	Rank float64 `gorm:"column:rank"`
}

// KeywordSearch 全文关键词检索。
// ts_rank 无上界，LEAST 裁剪到 [0,1] 与其他来源的分值对齐。
func (r *ChunkRepository) KeywordSearch(ctx context.Context, q pipeline.KeywordQuery) ([]*entity.EvidenceCandidate, error) {
	if r == nil || r.client == nil {
		return nil, pipeline.ErrVectorDisabled
	}
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, nil
	}

	ctx, span := tracer.Start(ctx, "postgres.ChunkRepository.KeywordSearch")
	defer span.End()

	topK := q.TopK
	if topK <= 0 {
		topK = 5
	}

	query := `
		SELECT id, tenant_id, plan_id, document_id, doc_type, page, section,
			span_start, span_end, content,
			LEAST(ts_rank(to_tsvector('english', content), plainto_tsquery('english', ?)), 1.0) AS rank
		FROM plan_chunks
		WHERE tenant_id = ?
			AND to_tsvector('english', content) @@ plainto_tsquery('english', ?)
	`
	args := []any{text, q.Scope.TenantID, text}

	if p := strings.TrimSpace(q.Scope.PlanID); p != "" {
		query += " AND plan_id = ?"
		args = append(args, p)
	}
	if dt := strings.TrimSpace(q.DocType); dt != "" {
		query += " AND doc_type = ?"
		args = append(args, dt)
	}
	query += " ORDER BY rank DESC LIMIT ?"
	args = append(args, topK)

	var rows []keywordRow
	if err := r.client.db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}

	cands := make([]*entity.EvidenceCandidate, 0, len(rows))
	for _, row := range rows {
		cands = append(cands, &entity.EvidenceCandidate{
			Source:     entity.SourceKeyword,
			DocumentID: row.DocumentID,
			SpanStart:  row.SpanStart,
			SpanEnd:    row.SpanEnd,
			Excerpt:    row.Content,
			Score:      row.Rank,
			Page:       row.Page,
			Section:    row.Section,
		})
	}

	span.SetAttributes(attribute.Int("result_count", len(cands)))
	return cands, nil
}

// SaveChunks 落库索引链路产出的分块，同一文档重新索引时先清旧行
func (r *ChunkRepository) SaveChunks(ctx context.Context, scope entity.TenantScope, chunks []*pipeline.DocumentChunk) error {
	if r == nil || r.client == nil {
		return pipeline.ErrVectorDisabled
	}
	if len(chunks) == 0 {
		return nil
	}

	ctx, span := tracer.Start(ctx, "postgres.ChunkRepository.SaveChunks")
	defer span.End()

	records := make([]*ChunkRecord, 0, len(chunks))
	docIDs := make(map[string]bool, 2)
	for _, c := range chunks {
		if c == nil {
			continue
		}
		docIDs[c.DocumentID] = true
		records = append(records, &ChunkRecord{
			ID:         c.ID,
			TenantID:   scope.TenantID,
			PlanID:     scope.PlanID,
			DocumentID: c.DocumentID,
			DocType:    c.DocType,
			Page:       c.Page,
			Section:    c.Section,
			SpanStart:  c.SpanStart,
			SpanEnd:    c.SpanEnd,
			Content:    c.Text,
		})
	}

	err := r.client.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for docID := range docIDs {
			if err := tx.Where("tenant_id = ? AND document_id = ?", scope.TenantID, docID).
				Delete(&ChunkRecord{}).Error; err != nil {
				return err
			}
		}
		return tx.CreateInBatches(records, 200).Error
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to save chunks: %w", err)
	}
	return nil
}
