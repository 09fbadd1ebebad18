package pipeline

import (
	"context"

	"benefit-ai-api/internal/domain/entity"
)

// VectorQuery 向量检索参数
type VectorQuery struct {
	Scope     entity.TenantScope
	Embedding []float32
	TopK      int
	// MinScore 低于该相似度的命中被来源侧丢弃
	MinScore float64
	// DocType 文档类型过滤（benefit_table / plan_text），空表示不过滤
	DocType string
}

// KeywordQuery 关键词检索参数
type KeywordQuery struct {
	Scope entity.TenantScope
	Text  string
	TopK  int
	// DocType 同 VectorQuery.DocType
	DocType string
}

// GraphQuery 关系图遍历参数
type GraphQuery struct {
	Scope entity.TenantScope
	// StartTerms 遍历起点实体词（来自 Intent）
	StartTerms []string
	MaxHops    int
	Limit      int
}

// EvidenceStore 证据库端口：向量 + 关键词两种只读检索。
// 实现方必须按 Scope 隔离租户数据。
type EvidenceStore interface {
	VectorSearch(ctx context.Context, q VectorQuery) ([]*entity.EvidenceCandidate, error)
	KeywordSearch(ctx context.Context, q KeywordQuery) ([]*entity.EvidenceCandidate, error)
}

// RelationshipGraph 福利关系图端口。可能整体缺席（nil），调用方必须能降级。
type RelationshipGraph interface {
	Traverse(ctx context.Context, q GraphQuery) ([]*entity.EvidenceCandidate, error)
}

// GenerationInput 生成器输入：问题文本、历史轮次与格式化后的证据块。
// History 只作为对话上下文传给模型，不参与检索。
type GenerationInput struct {
	Question        string
	History         []entity.ConversationTurn
	EvidenceContext string
}

// AnswerGenerator 外部生成器端口。失败时由合成器走模板兜底，错误不出流水线。
type AnswerGenerator interface {
	Generate(ctx context.Context, in GenerationInput) (string, error)
}

// VectorIndexer 向量写入端口（索引链路使用，查询链路不写）
type VectorIndexer interface {
	InsertChunks(ctx context.Context, scope entity.TenantScope, chunks []*DocumentChunk) error
}

// ChunkWriter 关键词检索侧的分块落库端口
type ChunkWriter interface {
	SaveChunks(ctx context.Context, scope entity.TenantScope, chunks []*DocumentChunk) error
}

// DocumentChunk 索引链路产出的分块
type DocumentChunk struct {
	ID         string
	DocumentID string
	DocType    string // benefit_table / plan_text
	Page       int
	Section    string
	SpanStart  int
	SpanEnd    int
	Text       string
	Embedding  []float32
}
