// Package entity 定义领域实体
package entity

// SourceKind 证据来源类型
type SourceKind string

const (
	SourceVector  SourceKind = "vector"
	SourceKeyword SourceKind = "keyword"
	SourceGraph   SourceKind = "graph"
)

// GraphProvenance 图遍历来源的专有元信息。
// 其他来源没有对应字段，融合逻辑按 Source 分派，不要探测空值猜来源。
type GraphProvenance struct {
	// PathLength 从查询实体到该节点的跳数（越少越精确）
	PathLength int `json:"path_length"`
	// Path 途经的关系描述，如 ["deductible", "APPLIES_TO", "outpatient surgery"]
	Path []string `json:"path,omitempty"`
	// NodeID 命中的福利图节点
	NodeID string `json:"node_id"`
}

// EvidenceCandidate 单个来源的一条未排序召回。
// 只在一次查询执行内存活，融合之后即丢弃。
type EvidenceCandidate struct {
	Source SourceKind `json:"source"`

	// DocumentID 原始文档（图来源为空，使用 Graph.NodeID）
	DocumentID string `json:"document_id,omitempty"`
	// SpanStart/SpanEnd 摘录在文档内的字节区间；未知时均为 0
	SpanStart int `json:"span_start,omitempty"`
	SpanEnd   int `json:"span_end,omitempty"`

	Excerpt string `json:"excerpt"`
	// Score 来源给出的原始相关度，[0,1]
	Score float64 `json:"score"`

	// BenefitTerm 该证据对应的福利实体/类别（跨源互证的匹配键），可为空
	BenefitTerm string `json:"benefit_term,omitempty"`

	// 文档内定位元信息
	Page    int    `json:"page,omitempty"`
	Section string `json:"section,omitempty"`

	// Graph 仅图来源填充
	Graph *GraphProvenance `json:"graph,omitempty"`
}

// Overlaps 判断两个候选是否指向同一文档的重叠文本区间
func (c *EvidenceCandidate) Overlaps(o *EvidenceCandidate) bool {
	if c.DocumentID == "" || c.DocumentID != o.DocumentID {
		return false
	}
	// 有区间信息时按区间相交判断
	if c.SpanEnd > c.SpanStart && o.SpanEnd > o.SpanStart {
		return c.SpanStart < o.SpanEnd && o.SpanStart < c.SpanEnd
	}
	// 没有区间信息时退化为（页码，小节）相同
	return c.Page == o.Page && c.Section == o.Section
}

// RankedEvidence 融合去重后的一条证据
type RankedEvidence struct {
	ID string `json:"id"`

	// Sources 贡献过该证据的来源（互证时多于一个）
	Sources []SourceKind `json:"sources"`

	DocumentID  string `json:"document_id,omitempty"`
	SpanStart   int    `json:"span_start,omitempty"`
	SpanEnd     int    `json:"span_end,omitempty"`
	Excerpt     string `json:"excerpt"`
	BenefitTerm string `json:"benefit_term,omitempty"`
	Page        int    `json:"page,omitempty"`
	Section     string `json:"section,omitempty"`

	// HopCount 图来源的最小跳数；非图证据为 0 且不参与精确度比较
	HopCount int `json:"hop_count,omitempty"`

	// Confidence 融合后的置信贡献，[0,1]
	Confidence float64 `json:"confidence"`

	// Corroborated 是否获得过跨源互证加成
	Corroborated bool `json:"corroborated"`
}

// HasSource 判断证据是否包含指定来源
func (e *RankedEvidence) HasSource(kind SourceKind) bool {
	for _, s := range e.Sources {
		if s == kind {
			return true
		}
	}
	return false
}
