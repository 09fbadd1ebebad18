// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"benefit-ai-api/internal/domain/entity"
)

// QueryRequest 问答请求
type QueryRequest struct {
	TenantID string `json:"tenant_id" binding:"required"`
	PlanID   string `json:"plan_id"`
	Question string `json:"question" binding:"required"`
	// History 历史对话轮次，仅作为上下文传递
	History []HistoryTurn `json:"history"`
}

// HistoryTurn 历史对话轮次
type HistoryTurn struct {
	Role    string `json:"role" binding:"oneof=user assistant"`
	Content string `json:"content" binding:"required"`
}

// CitationDTO 答案引用
type CitationDTO struct {
	EvidenceID  string `json:"evidence_id"`
	Source      string `json:"source"`
	DocumentID  string `json:"document_id,omitempty"`
	Page        int    `json:"page,omitempty"`
	Section     string `json:"section,omitempty"`
	Excerpt     string `json:"excerpt"`
	BenefitTerm string `json:"benefit_term,omitempty"`
}

// QueryResponse 问答响应
type QueryResponse struct {
	AnswerID      string        `json:"answer_id"`
	QuestionID    string        `json:"question_id"`
	Text          string        `json:"text"`
	Confidence    float64       `json:"confidence"`
	LowConfidence bool          `json:"low_confidence"`
	Citations     []CitationDTO `json:"citations"`
	FollowUps     []string      `json:"follow_ups,omitempty"`
	State         string        `json:"state"`
	Degradations  []string      `json:"degradations,omitempty"`
	Cached        bool          `json:"cached,omitempty"`
}

// NewQueryResponse 将答案实体转为响应
func NewQueryResponse(a *entity.Answer) *QueryResponse {
	resp := &QueryResponse{
		AnswerID:      a.ID,
		QuestionID:    a.QuestionID,
		Text:          a.Text,
		Confidence:    a.Confidence,
		LowConfidence: a.LowConfidence,
		Citations:     make([]CitationDTO, 0, len(a.Citations)),
		FollowUps:     a.FollowUps,
		State:         string(a.State),
		Degradations:  a.Degradations,
	}
	for _, cit := range a.Citations {
		resp.Citations = append(resp.Citations, CitationDTO{
			EvidenceID:  cit.EvidenceID,
			Source:      string(cit.Source),
			DocumentID:  cit.DocumentID,
			Page:        cit.Page,
			Section:     cit.Section,
			Excerpt:     cit.Excerpt,
			BenefitTerm: cit.BenefitTerm,
		})
	}
	return resp
}

// IndexDocumentRequest 文档索引请求
type IndexDocumentRequest struct {
	TenantID   string             `json:"tenant_id" binding:"required"`
	PlanID     string             `json:"plan_id" binding:"required"`
	DocumentID string             `json:"document_id" binding:"required"`
	DocType    string             `json:"doc_type" binding:"required,oneof=benefit_table plan_text"`
	Pages      []IndexDocumentPage `json:"pages" binding:"required,min=1"`
}

// IndexDocumentPage 文档页
type IndexDocumentPage struct {
	Number  int    `json:"number"`
	Section string `json:"section"`
	Text    string `json:"text" binding:"required"`
}

// IndexDocumentResponse 文档索引响应
type IndexDocumentResponse struct {
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
}
