// Package milvus 提供 Milvus 向量数据库访问层实现
package milvus

import (
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

const (
	// CollectionBenefitChunks 计划文档分块集合
	CollectionBenefitChunks = "benefit_chunks"

	// VectorDimension 向量维度
	VectorDimension = 1024
)

// BenefitChunksSchema 计划文档分块 Collection Schema
func BenefitChunksSchema() *entity.Schema {
	return &entity.Schema{
		CollectionName: CollectionBenefitChunks,
		Description:    "Health plan document chunks for semantic search",
		Fields: []*entity.Field{
			{
				Name:       "id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "vector",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": "1024",
				},
			},
			{
				Name:     "tenant_id",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "plan_id",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "document_id",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "doc_type",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "32",
				},
			},
			{
				Name:     "page",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     "section",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "256",
				},
			},
			{
				Name:     "span_start",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     "span_end",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     "text_content",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "65535",
				},
			},
		},
	}
}

// BenefitChunk 分块数据结构
type BenefitChunk struct {
	ID          string    `json:"id"`
	Vector      []float32 `json:"vector"`
	TenantID    string    `json:"tenant_id"`
	PlanID      string    `json:"plan_id"`
	DocumentID  string    `json:"document_id"`
	DocType     string    `json:"doc_type"`
	Page        int64     `json:"page"`
	Section     string    `json:"section"`
	SpanStart   int64     `json:"span_start"`
	SpanEnd     int64     `json:"span_end"`
	TextContent string    `json:"text_content"`
}

// PartitionName 生成分区名称。按租户分区，计划过滤走表达式，
// 这样 plan_id 为空的全租户检索不需要跨分区合并。
func PartitionName(tenantID string) string {
	return "tenant_" + tenantID
}
