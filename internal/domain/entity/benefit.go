// Package entity 定义领域实体
package entity

import (
	"time"
)

// BenefitRelationType 福利实体间的关系类型
type BenefitRelationType string

const (
	// RelationAppliesTo 费用规则作用于服务类别（如免赔额 APPLIES_TO 门诊手术）
	RelationAppliesTo BenefitRelationType = "APPLIES_TO"
	// RelationCoveredBy 服务由某福利类别覆盖
	RelationCoveredBy BenefitRelationType = "COVERED_BY"
	// RelationLimitedBy 福利受限额/次数约束
	RelationLimitedBy BenefitRelationType = "LIMITED_BY"
	// RelationExcludes 排除条款
	RelationExcludes BenefitRelationType = "EXCLUDES"
	// RelationRequires 前置条件（如转诊、预授权）
	RelationRequires BenefitRelationType = "REQUIRES"
)

// BenefitNode 福利图节点：一个福利类别、服务或费用规则
type BenefitNode struct {
	ID          string    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TenantID    string    `json:"tenant_id" gorm:"type:uuid;index;not null"`
	PlanID      string    `json:"plan_id" gorm:"type:uuid;index;not null"`
	Name        string    `json:"name" gorm:"type:varchar(256);not null"`
	Category    string    `json:"category" gorm:"type:varchar(64)"` // deductible/copay/coinsurance/service/limit
	Description string    `json:"description,omitempty" gorm:"type:text"`
	DocumentID  string    `json:"document_id,omitempty" gorm:"type:uuid"`
	Page        int       `json:"page,omitempty"`
	Section     string    `json:"section,omitempty" gorm:"type:varchar(256)"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (BenefitNode) TableName() string {
	return "benefit_nodes"
}

// BenefitRelation 福利图有向边
type BenefitRelation struct {
	ID           string              `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TenantID     string              `json:"tenant_id" gorm:"type:uuid;index;not null"`
	PlanID       string              `json:"plan_id" gorm:"type:uuid;index;not null"`
	SourceNodeID string              `json:"source_node_id" gorm:"type:uuid;index;not null"`
	TargetNodeID string              `json:"target_node_id" gorm:"type:uuid;index;not null"`
	RelationType BenefitRelationType `json:"relation_type" gorm:"type:varchar(32);not null"`
	Detail       string              `json:"detail,omitempty" gorm:"type:text"`
	CreatedAt    time.Time           `json:"created_at" gorm:"autoCreateTime"`
}

// TableName 指定表名
func (BenefitRelation) TableName() string {
	return "benefit_relations"
}

// GraphHit 图遍历命中：目标节点及到达路径
type GraphHit struct {
	Node *BenefitNode
	// Path 起点实体到命中节点途经的节点名与关系类型交替序列
	Path []string
	// Hops 路径跳数
	Hops int
}
