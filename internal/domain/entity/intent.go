// Package entity 定义领域实体
package entity

// ComplexityTier 问题复杂度档位
type ComplexityTier string

const (
	// TierSimple 单事实查询
	TierSimple ComplexityTier = "simple"
	// TierComparative 多个福利类别的对比查询
	TierComparative ComplexityTier = "comparative"
	// TierMultiHop 依赖事实链条的查询（如先满足免赔额再看共付额）
	TierMultiHop ComplexityTier = "multi_hop"
)

// DocAffinity 文档类型倾向
type DocAffinity string

const (
	// AffinityBenefitTable 结构化福利表（费率、金额、schedule）
	AffinityBenefitTable DocAffinity = "benefit_table"
	// AffinityPlanText 计划说明叙述文本
	AffinityPlanText DocAffinity = "plan_text"
	// AffinityEither 两类都可
	AffinityEither DocAffinity = "either"
)

// EntityKind 抽取实体类别
type EntityKind string

const (
	EntityKindProcedure  EntityKind = "procedure"
	EntityKindCondition  EntityKind = "condition"
	EntityKindMedication EntityKind = "medication"
	EntityKindProvider   EntityKind = "provider"
	EntityKindBenefit    EntityKind = "benefit"
	EntityKindAmount     EntityKind = "amount"
)

// ExtractedEntity 从问题文本抽取的实体
type ExtractedEntity struct {
	Kind EntityKind `json:"kind"`
	Text string     `json:"text"` // 归一化后的小写词形
}

// Intent 问题的结构化解读。由分类器一次性生成，之后只读。
type Intent struct {
	QuestionID string            `json:"question_id"`
	Entities   []ExtractedEntity `json:"entities"`
	Affinity   DocAffinity       `json:"affinity"`
	Tier       ComplexityTier    `json:"tier"`

	// Confidence 分类自身的置信度；畸形输入会得到低置信的兜底 Intent
	Confidence float64 `json:"confidence"`
}

// EntitiesOfKind 过滤指定类别的实体
func (i *Intent) EntitiesOfKind(kind EntityKind) []ExtractedEntity {
	var out []ExtractedEntity
	for _, e := range i.Entities {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// BenefitTerms 返回参与图遍历的实体词（福利类别 + 医疗实体）
func (i *Intent) BenefitTerms() []string {
	var out []string
	for _, e := range i.Entities {
		switch e.Kind {
		case EntityKindBenefit, EntityKindProcedure, EntityKindCondition, EntityKindMedication, EntityKindProvider:
			out = append(out, e.Text)
		}
	}
	return out
}
