// Package entity 定义领域实体
package entity

import "time"

// PipelineState 一次问答的终态
type PipelineState string

const (
	StateCompleted PipelineState = "completed"
	// StateDegraded 有检索源或生成器失败，但仍给出了有效答案
	StateDegraded PipelineState = "degraded"
	// StateFailed 连模板兜底都无法生成（理论上仅在内部错误时出现）
	StateFailed PipelineState = "failed"
)

// Citation 答案引用，可回溯到对应的 RankedEvidence
type Citation struct {
	EvidenceID  string     `json:"evidence_id"`
	Source      SourceKind `json:"source"`
	DocumentID  string     `json:"document_id,omitempty"`
	Page        int        `json:"page,omitempty"`
	Section     string     `json:"section,omitempty"`
	Excerpt     string     `json:"excerpt"`
	BenefitTerm string     `json:"benefit_term,omitempty"`
}

// Answer 流水线的唯一输出对象。本子系统不持久化答案。
type Answer struct {
	ID         string `json:"id"`
	QuestionID string `json:"question_id"`
	Text       string `json:"text"`

	// Confidence 总体置信度，[0,1]，不会超过所有引用证据置信度的最大值
	Confidence float64 `json:"confidence"`
	// LowConfidence 低于配置阈值时置位，调用方据此展示免责声明
	LowConfidence bool `json:"low_confidence"`

	Citations []Citation `json:"citations"`
	FollowUps []string   `json:"follow_ups,omitempty"`

	State PipelineState `json:"state"`
	// Degradations 记录被吸收的内部失败（来源、原因），用于排障
	Degradations []string `json:"degradations,omitempty"`

	GeneratedAt time.Time `json:"generated_at"`
}

// InsufficientEvidence 判断是否为“信息不足”答案
func (a *Answer) InsufficientEvidence() bool {
	return a.Confidence == 0 && len(a.Citations) == 0
}
