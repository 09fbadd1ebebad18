// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"benefit-ai-api/internal/application/pipeline"
	"benefit-ai-api/internal/domain/entity"
	"benefit-ai-api/internal/infrastructure/persistence/redis"
	"benefit-ai-api/internal/interfaces/http/dto"
	apperrors "benefit-ai-api/pkg/errors"
	"benefit-ai-api/pkg/logger"
)

const defaultAnswerTTL = 10 * time.Minute

// QueryHandler 问答处理器
type QueryHandler struct {
	orchestrator *pipeline.Orchestrator
	cache        *redis.AnswerCache // nil 表示缓存关闭
	answerTTL    time.Duration
}

// NewQueryHandler 创建问答处理器
func NewQueryHandler(orchestrator *pipeline.Orchestrator, cache *redis.AnswerCache, answerTTL time.Duration) *QueryHandler {
	if answerTTL <= 0 {
		answerTTL = defaultAnswerTTL
	}
	return &QueryHandler{
		orchestrator: orchestrator,
		cache:        cache,
		answerTTL:    answerTTL,
	}
}

// Answer 回答一个福利问题
// @Summary 福利问答
// @Description 对租户计划文档执行检索增强问答
// @Tags Query
// @Accept json
// @Produce json
// @Param body body dto.QueryRequest true "问答请求"
// @Success 200 {object} dto.Response[dto.QueryResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/queries [post]
func (h *QueryHandler) Answer(c *gin.Context) {
	var req dto.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	ctx := c.Request.Context()
	scope := entity.TenantScope{TenantID: req.TenantID, PlanID: req.PlanID}

	// 带历史上下文的追问语义随上下文变化，不走缓存
	if h.cache == nil || len(req.History) > 0 {
		resp, err := h.answer(ctx, &req, scope)
		if err != nil {
			h.renderError(c, err)
			return
		}
		dto.Success(c, resp)
		return
	}

	// 答案缓存：同租户同计划的同一问题在 TTL 内直接复用，
	// 并发的同键未命中由 singleflight 合并成一次流水线执行。
	// 只有完整状态的答案会写回缓存，降级答案下次重算。
	cacheKey := redis.AnswerKey(req.TenantID, req.PlanID, req.Question)
	raw, hit, err := h.cache.GetOrLoadSafe(ctx, cacheKey, h.answerTTL, func() (interface{}, bool, error) {
		resp, err := h.answer(ctx, &req, scope)
		if err != nil {
			return nil, false, err
		}
		return resp, resp.State == string(entity.StateCompleted), nil
	})
	if err != nil {
		h.renderError(c, err)
		return
	}

	var resp dto.QueryResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		logger.Error(ctx, "answer payload decode failed", err, "tenant_id", req.TenantID)
		dto.InternalError(c, "failed to answer query")
		return
	}
	resp.Cached = hit
	dto.Success(c, &resp)
}

// answer 执行一次完整的问答流水线
func (h *QueryHandler) answer(ctx context.Context, req *dto.QueryRequest, scope entity.TenantScope) (*dto.QueryResponse, error) {
	question := entity.NewQuestion(uuid.New().String(), req.Question, scope)
	for _, turn := range req.History {
		question.History = append(question.History, entity.ConversationTurn{
			Role:    turn.Role,
			Content: turn.Content,
		})
	}

	answer, err := h.orchestrator.AnswerQuery(ctx, question)
	if err != nil {
		return nil, err
	}
	return dto.NewQueryResponse(answer), nil
}

func (h *QueryHandler) renderError(c *gin.Context, err error) {
	// 只有输入校验错误会走到这里
	if apperrors.IsValidation(err) {
		dto.FromAppError(c, err)
		return
	}
	logger.Error(c.Request.Context(), "query pipeline failed", err)
	dto.InternalError(c, "failed to answer query")
}
