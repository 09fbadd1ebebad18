// Package milvus 提供 Milvus 向量数据库访问层实现
package milvus

import (
	"context"
	"fmt"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Repository 向量检索仓储
type Repository struct {
	client *Client
}

// NewRepository 创建向量检索仓储
func NewRepository(client *Client) *Repository {
	return &Repository{client: client}
}

// SearchParams 检索参数
type SearchParams struct {
	TenantID    string
	PlanID      string
	QueryVector []float32
	TopK        int
	MinScore    float64
	DocType     string
}

// SearchResult 检索结果
type SearchResult struct {
	ID          string
	Score       float32
	TextContent string
	DocumentID  string
	DocType     string
	Page        int64
	Section     string
	SpanStart   int64
	SpanEnd     int64
}

// CreateCollection 创建集合
func (r *Repository) CreateCollection(ctx context.Context, schema *entity.Schema) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.CreateCollection",
		trace.WithAttributes(attribute.String("collection", schema.CollectionName)))
	defer span.End()

	collName := r.client.CollectionName(schema.CollectionName)
	schema.CollectionName = collName

	err := r.client.milvus.CreateCollection(ctx, schema, entity.DefaultShardNumber)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create collection: %w", err)
	}

	return nil
}

// CreateIndex 创建 HNSW 索引
func (r *Repository) CreateIndex(ctx context.Context, collection string) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.CreateIndex",
		trace.WithAttributes(attribute.String("collection", collection)))
	defer span.End()

	collName := r.client.CollectionName(collection)

	idx, err := entity.NewIndexHNSW(
		entity.COSINE,
		r.client.config.HNSWM,
		r.client.config.HNSWEfConstruction,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create index: %w", err)
	}

	err = r.client.milvus.CreateIndex(ctx, collName, "vector", idx, false)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// CreatePartition 创建租户分区
func (r *Repository) CreatePartition(ctx context.Context, collection, tenantID string) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.CreatePartition",
		trace.WithAttributes(
			attribute.String("collection", collection),
			attribute.String("partition", PartitionName(tenantID)),
		))
	defer span.End()

	collName := r.client.CollectionName(collection)
	return r.client.milvus.CreatePartition(ctx, collName, PartitionName(tenantID))
}

// SearchChunks 语义检索计划文档分块
func (r *Repository) SearchChunks(ctx context.Context, params *SearchParams) ([]*SearchResult, error) {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return nil, fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.SearchChunks",
		trace.WithAttributes(
			attribute.String("tenant_id", params.TenantID),
			attribute.Int("top_k", params.TopK),
		))
	defer span.End()

	collName := r.client.CollectionName(CollectionBenefitChunks)
	partitionName := PartitionName(params.TenantID)

	// 租户分区尚未创建（例如未上传过文档）时直接返回空结果，
	// 避免 Milvus 报 partition not found。
	if has, err := r.client.milvus.HasPartition(ctx, collName, partitionName); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to check partition: %w", err)
	} else if !has {
		return []*SearchResult{}, nil
	}

	// 构建过滤表达式
	filter := fmt.Sprintf(`tenant_id == "%s"`, params.TenantID)
	if p := strings.TrimSpace(params.PlanID); p != "" {
		filter += fmt.Sprintf(` && plan_id == "%s"`, p)
	}
	if dt := strings.TrimSpace(params.DocType); dt != "" {
		filter += fmt.Sprintf(` && doc_type == "%s"`, dt)
	}

	sp, err := entity.NewIndexHNSWSearchParam(128)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create search param: %w", err)
	}

	results, err := r.client.milvus.Search(ctx,
		collName,
		[]string{partitionName},
		filter,
		[]string{"id", "text_content", "document_id", "doc_type", "page", "section", "span_start", "span_end"},
		[]entity.Vector{entity.FloatVector(params.QueryVector)},
		"vector",
		entity.COSINE,
		params.TopK,
		sp,
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	var searchResults []*SearchResult
	for _, result := range results {
		for i := 0; i < result.ResultCount; i++ {
			sr := &SearchResult{
				Score: result.Scores[i],
			}
			// 相似度阈值在存储侧截断，低分命中不出仓储层
			if params.MinScore > 0 && float64(sr.Score) < params.MinScore {
				continue
			}

			if col, ok := result.Fields.GetColumn("id").(*entity.ColumnVarChar); ok {
				sr.ID = col.Data()[i]
			}
			if col, ok := result.Fields.GetColumn("text_content").(*entity.ColumnVarChar); ok {
				sr.TextContent = col.Data()[i]
			}
			if col, ok := result.Fields.GetColumn("document_id").(*entity.ColumnVarChar); ok {
				sr.DocumentID = col.Data()[i]
			}
			if col, ok := result.Fields.GetColumn("doc_type").(*entity.ColumnVarChar); ok {
				sr.DocType = col.Data()[i]
			}
			if col, ok := result.Fields.GetColumn("page").(*entity.ColumnInt64); ok {
				sr.Page = col.Data()[i]
			}
			if col, ok := result.Fields.GetColumn("section").(*entity.ColumnVarChar); ok {
				sr.Section = col.Data()[i]
			}
			if col, ok := result.Fields.GetColumn("span_start").(*entity.ColumnInt64); ok {
				sr.SpanStart = col.Data()[i]
			}
			if col, ok := result.Fields.GetColumn("span_end").(*entity.ColumnInt64); ok {
				sr.SpanEnd = col.Data()[i]
			}

			searchResults = append(searchResults, sr)
		}
	}

	span.SetAttributes(attribute.Int("result_count", len(searchResults)))
	return searchResults, nil
}

// InsertChunks 插入分块
func (r *Repository) InsertChunks(ctx context.Context, tenantID string, chunks []*BenefitChunk) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.InsertChunks",
		trace.WithAttributes(
			attribute.String("tenant_id", tenantID),
			attribute.Int("count", len(chunks)),
		))
	defer span.End()

	if len(chunks) == 0 {
		return nil
	}

	collName := r.client.CollectionName(CollectionBenefitChunks)
	partitionName := PartitionName(tenantID)

	// 确保分区存在
	has, _ := r.client.milvus.HasPartition(ctx, collName, partitionName)
	if !has {
		if err := r.CreatePartition(ctx, CollectionBenefitChunks, tenantID); err != nil {
			return err
		}
	}

	ids := make([]string, len(chunks))
	vectors := make([][]float32, len(chunks))
	tenantIDs := make([]string, len(chunks))
	planIDs := make([]string, len(chunks))
	documentIDs := make([]string, len(chunks))
	docTypes := make([]string, len(chunks))
	pages := make([]int64, len(chunks))
	sections := make([]string, len(chunks))
	spanStarts := make([]int64, len(chunks))
	spanEnds := make([]int64, len(chunks))
	textContents := make([]string, len(chunks))

	for i, c := range chunks {
		ids[i] = c.ID
		vectors[i] = c.Vector
		tenantIDs[i] = c.TenantID
		planIDs[i] = c.PlanID
		documentIDs[i] = c.DocumentID
		docTypes[i] = c.DocType
		pages[i] = c.Page
		sections[i] = c.Section
		spanStarts[i] = c.SpanStart
		spanEnds[i] = c.SpanEnd
		textContents[i] = c.TextContent
	}

	_, err := r.client.milvus.Insert(ctx, collName, partitionName,
		entity.NewColumnVarChar("id", ids),
		entity.NewColumnFloatVector("vector", VectorDimension, vectors),
		entity.NewColumnVarChar("tenant_id", tenantIDs),
		entity.NewColumnVarChar("plan_id", planIDs),
		entity.NewColumnVarChar("document_id", documentIDs),
		entity.NewColumnVarChar("doc_type", docTypes),
		entity.NewColumnInt64("page", pages),
		entity.NewColumnVarChar("section", sections),
		entity.NewColumnInt64("span_start", spanStarts),
		entity.NewColumnInt64("span_end", spanEnds),
		entity.NewColumnVarChar("text_content", textContents),
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to insert chunks: %w", err)
	}

	return nil
}

// DeleteChunksByDocument 删除指定文档的全部分块（重新索引前调用）
func (r *Repository) DeleteChunksByDocument(ctx context.Context, tenantID, documentID string) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		return nil
	}

	ctx, span := tracer.Start(ctx, "milvus.DeleteChunksByDocument",
		trace.WithAttributes(attribute.String("document_id", documentID)))
	defer span.End()

	collName := r.client.CollectionName(CollectionBenefitChunks)
	partitionName := PartitionName(tenantID)

	if has, err := r.client.milvus.HasPartition(ctx, collName, partitionName); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to check partition: %w", err)
	} else if !has {
		return nil
	}

	filter := fmt.Sprintf(`document_id == "%s"`, documentID)
	if err := r.client.milvus.Delete(ctx, collName, partitionName, filter); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

// EnsureBenefitChunksCollection 确保集合与索引可用（不存在则创建）。
// 约束：不会做 drop/rebuild 等破坏性操作。
func (r *Repository) EnsureBenefitChunksCollection(ctx context.Context) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}

	exists, err := r.client.HasCollection(ctx, CollectionBenefitChunks)
	if err != nil {
		return err
	}
	if !exists {
		if err := r.CreateCollection(ctx, BenefitChunksSchema()); err != nil {
			return err
		}
		// 新建集合时创建索引；若失败，允许后续由运维介入。
		_ = r.CreateIndex(ctx, CollectionBenefitChunks)
	}

	return r.client.LoadCollection(ctx, CollectionBenefitChunks)
}
