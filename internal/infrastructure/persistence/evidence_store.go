// Package persistence 组合各存储实现为流水线端口
package persistence

import (
	"context"

	"benefit-ai-api/internal/application/pipeline"
	"benefit-ai-api/internal/domain/entity"
	"benefit-ai-api/internal/infrastructure/persistence/milvus"
	"benefit-ai-api/internal/infrastructure/persistence/postgres"
)

// EvidenceStore 证据库组合实现：向量检索走 Milvus，关键词检索走 Postgres 全文。
// 任一侧未配置时对应方法返回禁用错误，由检索协调器降级吸收。
type EvidenceStore struct {
	vector *milvus.VectorAdapter
	chunks *postgres.ChunkRepository
}

// NewEvidenceStore 创建证据库组合实现
func NewEvidenceStore(vector *milvus.VectorAdapter, chunks *postgres.ChunkRepository) *EvidenceStore {
	return &EvidenceStore{vector: vector, chunks: chunks}
}

var _ pipeline.EvidenceStore = (*EvidenceStore)(nil)

// VectorSearch 语义检索
func (s *EvidenceStore) VectorSearch(ctx context.Context, q pipeline.VectorQuery) ([]*entity.EvidenceCandidate, error) {
	if s == nil || s.vector == nil {
		return nil, pipeline.ErrVectorDisabled
	}
	return s.vector.VectorSearch(ctx, q)
}

// KeywordSearch 全文关键词检索
func (s *EvidenceStore) KeywordSearch(ctx context.Context, q pipeline.KeywordQuery) ([]*entity.EvidenceCandidate, error) {
	if s == nil || s.chunks == nil {
		return nil, pipeline.ErrVectorDisabled
	}
	return s.chunks.KeywordSearch(ctx, q)
}
