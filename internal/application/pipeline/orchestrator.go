package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"benefit-ai-api/internal/config"
	"benefit-ai-api/internal/domain/entity"
	"benefit-ai-api/pkg/errors"
	"benefit-ai-api/pkg/logger"
	"benefit-ai-api/pkg/metrics"
	"benefit-ai-api/pkg/tracer"
)

const (
	defaultTotalBudget        = 12 * time.Second
	defaultLowConfidenceFloor = 0.5
)

// Orchestrator 流水线编排器：classify → retrieve → fuse → synthesize。
// 只有输入校验失败作为硬错误返回；检索、融合、生成的任何内部失败
// 都被吸收为降级答案。调用方在正常运行中永远拿到 Answer。
type Orchestrator struct {
	classifier  *Classifier
	coordinator *Coordinator
	fuser       *Fuser
	synthesizer *Synthesizer

	totalBudget        time.Duration
	lowConfidenceFloor float64
}

// NewOrchestrator 创建流水线编排器
func NewOrchestrator(classifier *Classifier, coordinator *Coordinator, fuser *Fuser, synthesizer *Synthesizer, cfg *config.PipelineConfig) *Orchestrator {
	o := &Orchestrator{
		classifier:         classifier,
		coordinator:        coordinator,
		fuser:              fuser,
		synthesizer:        synthesizer,
		totalBudget:        defaultTotalBudget,
		lowConfidenceFloor: defaultLowConfidenceFloor,
	}
	if cfg != nil {
		if cfg.TotalBudget > 0 {
			o.totalBudget = cfg.TotalBudget
		}
		if cfg.LowConfidenceFloor > 0 {
			o.lowConfidenceFloor = cfg.LowConfidenceFloor
		}
	}
	return o
}

// AnswerQuery 回答一个问题。错误只在输入校验失败时返回；
// 其余失败路径全部转化为降级但有效的答案。
// 同一问题重复提交会独立重算，本子系统不做缓存。
func (o *Orchestrator) AnswerQuery(ctx context.Context, question *entity.Question) (*entity.Answer, error) {
	ctx, span := tracer.Start(ctx, "pipeline.AnswerQuery")
	defer span.End()

	if question == nil || !question.Scope.Valid() {
		return nil, errors.ErrScopeMissing
	}
	ctx = logger.WithContext(ctx, logger.TenantIDKey, question.Scope.TenantID)
	if question.Scope.PlanID != "" {
		ctx = logger.WithContext(ctx, logger.PlanIDKey, question.Scope.PlanID)
	}

	// 整条流水线的墙钟预算；到期后未完成的阶段带着已有证据短路到合成
	ctx, cancel := context.WithTimeout(ctx, o.totalBudget)
	defer cancel()

	start := time.Now()

	intent, err := o.classify(ctx, question)
	if err != nil {
		// 校验错误是唯一出流水线的硬错误
		metrics.PipelineQueriesTotal.WithLabelValues(question.Scope.TenantID, string(entity.StateFailed)).Inc()
		return nil, err
	}

	result := o.retrieve(ctx, question, intent)
	ranked := o.fuse(ctx, result.Candidates)
	metrics.PipelineEvidenceCount.WithLabelValues(question.Scope.TenantID).Observe(float64(len(ranked)))

	answer, generationDegraded := o.synthesize(ctx, question, intent, ranked)

	answer.Degradations = degradations(result.Failures, generationDegraded, ctx.Err() != nil)
	if len(answer.Degradations) > 0 {
		answer.State = entity.StateDegraded
	}
	// 低置信只打标记，不拦截答案
	if answer.Confidence < o.lowConfidenceFloor {
		answer.LowConfidence = true
	}

	metrics.PipelineQueriesTotal.WithLabelValues(question.Scope.TenantID, string(answer.State)).Inc()
	span.SetAttributes(
		attribute.String("state", string(answer.State)),
		attribute.Float64("confidence", answer.Confidence),
		attribute.Int("evidence_count", len(ranked)),
	)
	logger.Info(ctx, "query answered",
		"question_id", question.ID,
		"tier", string(intent.Tier),
		"state", string(answer.State),
		"confidence", answer.Confidence,
		"evidence_count", len(ranked),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return answer, nil
}

func (o *Orchestrator) classify(ctx context.Context, question *entity.Question) (*entity.Intent, error) {
	defer observeStage("classify", time.Now())
	_, span := tracer.Start(ctx, "pipeline.classify")
	defer span.End()
	return o.classifier.Classify(question)
}

func (o *Orchestrator) retrieve(ctx context.Context, question *entity.Question, intent *entity.Intent) *RetrievalResult {
	defer observeStage("retrieve", time.Now())
	return o.coordinator.Retrieve(ctx, question, intent)
}

func (o *Orchestrator) fuse(ctx context.Context, candidates []*entity.EvidenceCandidate) []*entity.RankedEvidence {
	defer observeStage("fuse", time.Now())
	_, span := tracer.Start(ctx, "pipeline.fuse")
	defer span.End()
	return o.fuser.Fuse(candidates)
}

func (o *Orchestrator) synthesize(ctx context.Context, question *entity.Question, intent *entity.Intent, ranked []*entity.RankedEvidence) (*entity.Answer, bool) {
	defer observeStage("synthesize", time.Now())
	ctx, span := tracer.Start(ctx, "pipeline.synthesize")
	defer span.End()
	return o.synthesizer.Synthesize(ctx, question, intent, ranked)
}

// degradations 汇总被吸收的内部失败，写入答案供排障
func degradations(failures []SourceFailure, generationDegraded, budgetExceeded bool) []string {
	var out []string
	for _, f := range failures {
		out = append(out, fmt.Sprintf("%s_source_%s", f.Source, f.Reason))
	}
	if generationDegraded {
		out = append(out, "generation_fallback")
	}
	if budgetExceeded {
		out = append(out, "budget_exceeded")
	}
	return out
}

func observeStage(stage string, start time.Time) {
	metrics.PipelineStageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
