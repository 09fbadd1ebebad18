package handler

import (
	"github.com/gin-gonic/gin"

	"benefit-ai-api/internal/application/pipeline"
	"benefit-ai-api/internal/domain/entity"
	"benefit-ai-api/internal/infrastructure/persistence/redis"
	"benefit-ai-api/internal/interfaces/http/dto"
	"benefit-ai-api/pkg/logger"
)

// DocumentHandler 文档索引处理器
type DocumentHandler struct {
	indexer *pipeline.Indexer
	cache   *redis.AnswerCache
}

// NewDocumentHandler 创建文档索引处理器
func NewDocumentHandler(indexer *pipeline.Indexer, cache *redis.AnswerCache) *DocumentHandler {
	return &DocumentHandler{indexer: indexer, cache: cache}
}

// Index 索引一份计划文档
// @Summary 索引计划文档
// @Description 切分、向量化并写入检索库，覆盖同文档旧内容
// @Tags Document
// @Accept json
// @Produce json
// @Param body body dto.IndexDocumentRequest true "文档内容"
// @Success 202 {object} dto.Response[dto.IndexDocumentResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/documents [post]
func (h *DocumentHandler) Index(c *gin.Context) {
	var req dto.IndexDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	if h.indexer == nil || !h.indexer.Enabled() {
		dto.ServiceUnavailable(c, "document indexing is unavailable")
		return
	}

	ctx := c.Request.Context()
	scope := entity.TenantScope{TenantID: req.TenantID, PlanID: req.PlanID}

	doc := &pipeline.SourceDocument{
		ID:      req.DocumentID,
		DocType: req.DocType,
	}
	for _, page := range req.Pages {
		doc.Pages = append(doc.Pages, pipeline.SourcePage{
			Number:  page.Number,
			Section: page.Section,
			Text:    page.Text,
		})
	}

	if err := h.indexer.IndexDocument(ctx, scope, doc); err != nil {
		logger.Error(ctx, "document indexing failed", err,
			"tenant_id", req.TenantID,
			"document_id", req.DocumentID,
		)
		dto.InternalError(c, "failed to index document")
		return
	}

	// 文档内容变更后旧答案可能失效，整租户清缓存
	if h.cache != nil {
		if err := h.cache.InvalidateTenant(ctx, req.TenantID); err != nil {
			logger.Warn(ctx, "answer cache invalidation failed",
				"tenant_id", req.TenantID,
				"error", err.Error(),
			)
		}
	}

	dto.Accepted(c, &dto.IndexDocumentResponse{
		DocumentID: req.DocumentID,
		Status:     "indexed",
	})
}
