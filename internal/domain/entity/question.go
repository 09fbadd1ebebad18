// Package entity 定义领域实体
package entity

import (
	"strings"
	"time"
)

// TenantScope 租户范围，所有检索调用都必须携带。
// PlanID 为空表示在租户全部计划范围内检索。
type TenantScope struct {
	TenantID string `json:"tenant_id"`
	PlanID   string `json:"plan_id,omitempty"`
}

// Valid 校验租户范围是否完整
func (s TenantScope) Valid() bool {
	return strings.TrimSpace(s.TenantID) != ""
}

// ConversationTurn 历史对话轮次（只作为分类与生成的上下文，不持久化）
type ConversationTurn struct {
	Role    string `json:"role"` // user | assistant
	Content string `json:"content"`
}

// Question 一次福利问答的原始输入。提交后不可变。
type Question struct {
	ID          string             `json:"id"`
	Text        string             `json:"text"`
	Scope       TenantScope        `json:"scope"`
	History     []ConversationTurn `json:"history,omitempty"`
	SubmittedAt time.Time          `json:"submitted_at"`
}

// NewQuestion 创建问题
func NewQuestion(id, text string, scope TenantScope) *Question {
	return &Question{
		ID:          id,
		Text:        strings.TrimSpace(text),
		Scope:       scope,
		SubmittedAt: time.Now().UTC(),
	}
}
