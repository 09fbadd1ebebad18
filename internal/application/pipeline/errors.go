package pipeline

import "errors"

var (
	// ErrVectorDisabled 表示向量检索能力未配置（Milvus 或 Embedder 不可用）。
	ErrVectorDisabled = errors.New("vector retrieval is disabled")
	// ErrGraphDisabled 表示福利关系图未配置，检索只走向量/关键词两路。
	ErrGraphDisabled = errors.New("relationship graph is disabled")
	// ErrGeneratorDisabled 表示未配置生成器，合成始终走模板兜底。
	ErrGeneratorDisabled = errors.New("answer generator is disabled")
)
