package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"benefit-ai-api/internal/config"
	"benefit-ai-api/internal/domain/entity"
	"benefit-ai-api/pkg/logger"
	"benefit-ai-api/pkg/metrics"
)

const (
	defaultMinCorroboration = 2
	defaultMultiHopPenalty  = 0.75
	// singleEvidenceDiscount 只有一条证据时对最高置信度打的折扣
	singleEvidenceDiscount = 0.9

	insufficientMessage = "I don't have enough plan information to answer that. " +
		"Please check your plan documents or contact member services."
)

// citationPattern 匹配生成文本里的 [n] 引用标记
var citationPattern = regexp.MustCompile(`\[(\d+)\]`)

// Synthesizer 答案合成器。调用外部生成器产出自然语言答案，
// 生成失败时回退到基于最高分证据的模板答案，绝不把生成错误抛给调用方。
type Synthesizer struct {
	generator AnswerGenerator // nil 表示生成器不可用，直接走模板

	minCorroboration int
	multiHopPenalty  float64
	maxExcerptRunes  int
}

// NewSynthesizer 创建答案合成器
func NewSynthesizer(generator AnswerGenerator, cfg *config.PipelineConfig) *Synthesizer {
	s := &Synthesizer{
		generator:        generator,
		minCorroboration: defaultMinCorroboration,
		multiHopPenalty:  defaultMultiHopPenalty,
		maxExcerptRunes:  400,
	}
	if cfg != nil {
		if cfg.MinCorroboration > 0 {
			s.minCorroboration = cfg.MinCorroboration
		}
		if cfg.MultiHopPenalty > 0 {
			s.multiHopPenalty = cfg.MultiHopPenalty
		}
	}
	return s
}

// Synthesize 合成最终答案。evidence 为空时返回显式的“信息不足”答案，
// 绝不凭空编造。degraded 返回值表示本次合成走了模板兜底。
func (s *Synthesizer) Synthesize(ctx context.Context, question *entity.Question, intent *entity.Intent, evidence []*entity.RankedEvidence) (answer *entity.Answer, degraded bool) {
	if len(evidence) == 0 {
		return s.insufficientAnswer(question), false
	}

	text, cited, usedFallback := s.generate(ctx, question, evidence)

	answer = &entity.Answer{
		ID:          uuid.New().String(),
		QuestionID:  question.ID,
		Text:        text,
		Confidence:  s.confidence(intent, evidence),
		Citations:   buildCitations(evidence, cited),
		FollowUps:   s.followUps(intent, evidence),
		State:       entity.StateCompleted,
		GeneratedAt: time.Now(),
	}
	metrics.PipelineAnswerConfidence.WithLabelValues(question.Scope.TenantID).Observe(answer.Confidence)
	return answer, usedFallback
}

// generate 调用外部生成器；失败或产出为空时落到模板答案。
// 返回生成文本与其按出现顺序引用的证据下标（从 0 计）。
func (s *Synthesizer) generate(ctx context.Context, question *entity.Question, evidence []*entity.RankedEvidence) (text string, cited []int, usedFallback bool) {
	if s.generator == nil {
		return s.templateAnswer(evidence), []int{0}, true
	}

	out, err := s.generator.Generate(ctx, GenerationInput{
		Question:        question.Text,
		History:         question.History,
		EvidenceContext: BuildEvidenceContext(evidence, s.maxExcerptRunes),
	})
	if err != nil || strings.TrimSpace(out) == "" {
		if err != nil {
			logger.Warn(ctx, "answer generation failed, falling back to template", "error", err.Error())
		}
		metrics.LLMFallbackTotal.Inc()
		return s.templateAnswer(evidence), []int{0}, true
	}

	cited = parseCitations(out, len(evidence))
	if len(cited) == 0 {
		// 生成器没打引用标记时，引用全部证据，保持可回溯
		cited = make([]int, len(evidence))
		for i := range evidence {
			cited[i] = i
		}
	}
	return strings.TrimSpace(out), cited, false
}

// templateAnswer 基于最高分证据构造的兜底答案
func (s *Synthesizer) templateAnswer(evidence []*entity.RankedEvidence) string {
	top := evidence[0]
	excerpt := truncateRunes(compactOneLine(top.Excerpt), s.maxExcerptRunes)
	loc := evidenceRef(top)
	if loc == "Context" {
		return fmt.Sprintf("According to your plan documents: %s", excerpt)
	}
	return fmt.Sprintf("According to your plan documents (%s): %s", loc, excerpt)
}

// confidence 总体置信度：上界为最高证据置信度。
// 证据只有一条时打折；multi-hop 档位证据数不足互证门槛时再乘惩罚系数。
func (s *Synthesizer) confidence(intent *entity.Intent, evidence []*entity.RankedEvidence) float64 {
	top := 0.0
	for _, e := range evidence {
		if e.Confidence > top {
			top = e.Confidence
		}
	}

	conf := top
	if len(evidence) == 1 {
		conf *= singleEvidenceDiscount
	}
	if intent.Tier == entity.TierMultiHop && len(evidence) < s.minCorroboration {
		conf *= s.multiHopPenalty
	}
	return clamp01(conf)
}

// followUps 从未被证据覆盖的 Intent 实体派生追问建议：
// 对比类问题只答了一边时，提示用户问另一边。
func (s *Synthesizer) followUps(intent *entity.Intent, evidence []*entity.RankedEvidence) []string {
	covered := make(map[string]bool, len(evidence))
	for _, e := range evidence {
		if e.BenefitTerm != "" {
			covered[e.BenefitTerm] = true
		}
		lowered := strings.ToLower(e.Excerpt)
		for _, ent := range intent.Entities {
			if ent.Text != "" && strings.Contains(lowered, ent.Text) {
				covered[ent.Text] = true
			}
		}
	}

	var out []string
	for _, ent := range intent.Entities {
		if ent.Kind == entity.EntityKindAmount || ent.Text == "" || covered[ent.Text] {
			continue
		}
		out = append(out, fmt.Sprintf("What does my plan say about %s?", ent.Text))
		if len(out) >= 3 {
			break
		}
	}
	return out
}

// insufficientAnswer 证据为空时的显式“无法回答”答案
func (s *Synthesizer) insufficientAnswer(question *entity.Question) *entity.Answer {
	return &entity.Answer{
		ID:          uuid.New().String(),
		QuestionID:  question.ID,
		Text:        insufficientMessage,
		Confidence:  0,
		Citations:   []entity.Citation{},
		State:       entity.StateCompleted,
		GeneratedAt: time.Now(),
	}
}

// parseCitations 解析生成文本中的 [n] 标记，按首次出现顺序去重，
// 越界编号直接忽略。返回从 0 计的证据下标。
func parseCitations(text string, evidenceCount int) []int {
	matches := citationPattern.FindAllStringSubmatch(text, -1)
	seen := make(map[int]bool, len(matches))
	var out []int
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > evidenceCount {
			continue
		}
		idx := n - 1
		if seen[idx] {
			continue
		}
		seen[idx] = true
		out = append(out, idx)
	}
	return out
}

// buildCitations 按引用顺序将证据下标转为引用对象
func buildCitations(evidence []*entity.RankedEvidence, cited []int) []entity.Citation {
	out := make([]entity.Citation, 0, len(cited))
	for _, idx := range cited {
		e := evidence[idx]
		source := entity.SourceVector
		if len(e.Sources) > 0 {
			source = e.Sources[0]
		}
		out = append(out, entity.Citation{
			EvidenceID:  e.ID,
			Source:      source,
			DocumentID:  e.DocumentID,
			Page:        e.Page,
			Section:     e.Section,
			Excerpt:     e.Excerpt,
			BenefitTerm: e.BenefitTerm,
		})
	}
	return out
}
