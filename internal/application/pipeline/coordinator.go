package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"benefit-ai-api/internal/config"
	"benefit-ai-api/internal/domain/entity"
	"benefit-ai-api/pkg/logger"
	"benefit-ai-api/pkg/metrics"
	"benefit-ai-api/pkg/tracer"
)

const (
	defaultSourceTimeout = 3 * time.Second
	defaultGraphMaxHops  = 3
)

// SourceFailure 被降级吸收的来源失败记录
type SourceFailure struct {
	Source entity.SourceKind
	Reason string
}

// RetrievalResult 检索结果：各来源成功候选的拼接，未排序
type RetrievalResult struct {
	Candidates []*entity.EvidenceCandidate
	Failures   []SourceFailure
}

// Coordinator 检索协调器。并发查询向量/关键词/图三路来源，
// 任何一路失败或超时只丢失该路候选，绝不让整次检索失败。
type Coordinator struct {
	embedder embedding.Embedder
	store    EvidenceStore
	graph    RelationshipGraph // nil 表示图不可用

	tiers         config.RetrievalTiersConfig
	sourceTimeout time.Duration
	graphMaxHops  int
}

// NewCoordinator 创建检索协调器
func NewCoordinator(embedder embedding.Embedder, store EvidenceStore, graph RelationshipGraph, cfg *config.PipelineConfig) *Coordinator {
	c := &Coordinator{
		embedder:      embedder,
		store:         store,
		graph:         graph,
		sourceTimeout: defaultSourceTimeout,
		graphMaxHops:  defaultGraphMaxHops,
	}
	if cfg != nil {
		c.tiers = cfg.Retrieval
		if cfg.SourceTimeout > 0 {
			c.sourceTimeout = cfg.SourceTimeout
		}
		if cfg.GraphMaxHops > 0 {
			c.graphMaxHops = cfg.GraphMaxHops
		}
	}
	return c
}

// tierParams 按复杂度档位取检索参数
func (c *Coordinator) tierParams(tier entity.ComplexityTier) config.RetrievalTierConfig {
	var p config.RetrievalTierConfig
	switch tier {
	case entity.TierComparative:
		p = c.tiers.Comparative
	case entity.TierMultiHop:
		p = c.tiers.MultiHop
	default:
		p = c.tiers.Simple
	}
	if p.TopK <= 0 {
		p.TopK = 5
	}
	return p
}

// affinityDocType 将文档倾向转为来源过滤条件
func affinityDocType(a entity.DocAffinity) string {
	switch a {
	case entity.AffinityBenefitTable:
		return "benefit_table"
	case entity.AffinityPlanText:
		return "plan_text"
	default:
		return ""
	}
}

// Retrieve 并发执行三路检索并拼接候选。
// 图遍历只在 comparative / multi-hop 档位且图可用时参与。
func (c *Coordinator) Retrieve(ctx context.Context, question *entity.Question, intent *entity.Intent) *RetrievalResult {
	ctx, span := tracer.Start(ctx, "pipeline.Retrieve")
	defer span.End()

	params := c.tierParams(intent.Tier)
	docType := affinityDocType(intent.Affinity)

	span.SetAttributes(
		attribute.String("tier", string(intent.Tier)),
		attribute.Int("top_k", params.TopK),
	)

	out := &RetrievalResult{}
	var mu sync.Mutex

	collect := func(source entity.SourceKind, cands []*entity.EvidenceCandidate, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			// 来源实现会用 %w 包装底层错误，必须按 errors.Is 分类
			reason := "error"
			switch {
			case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
				reason = "timeout"
			case errors.Is(err, ErrVectorDisabled) || errors.Is(err, ErrGraphDisabled):
				reason = "unavailable"
			}
			metrics.RetrievalSourceFailures.WithLabelValues(string(source), reason).Inc()
			logger.Warn(ctx, "retrieval source degraded",
				"source", string(source), "reason", reason, "error", err.Error())
			out.Failures = append(out.Failures, SourceFailure{Source: source, Reason: reason})
			return
		}
		metrics.RetrievalSourceCandidates.WithLabelValues(string(source)).Observe(float64(len(cands)))
		out.Candidates = append(out.Candidates, cands...)
	}

	// errgroup 只做并发编排；所有错误在 collect 里吸收，Wait 永远返回 nil
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sctx, cancel := context.WithTimeout(gctx, c.sourceTimeout)
		defer cancel()
		cands, err := c.vectorSearch(sctx, question, intent, params, docType)
		collect(entity.SourceVector, cands, err)
		return nil
	})

	g.Go(func() error {
		sctx, cancel := context.WithTimeout(gctx, c.sourceTimeout)
		defer cancel()
		cands, err := c.keywordSearch(sctx, question, params, docType)
		collect(entity.SourceKeyword, cands, err)
		return nil
	})

	if c.graphEligible(intent) {
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(gctx, c.sourceTimeout)
			defer cancel()
			cands, err := c.graphTraverse(sctx, question, intent, params)
			collect(entity.SourceGraph, cands, err)
			return nil
		})
	}

	_ = g.Wait()

	// 向量/关键词候选按 Intent 实体词标注福利词，供融合层做跨源互证
	tagBenefitTerms(out.Candidates, intent)

	span.SetAttributes(attribute.Int("candidate_count", len(out.Candidates)))
	return out
}

// graphEligible 判断本次检索是否走图
func (c *Coordinator) graphEligible(intent *entity.Intent) bool {
	if c.graph == nil {
		return false
	}
	if intent.Tier != entity.TierComparative && intent.Tier != entity.TierMultiHop {
		return false
	}
	return len(intent.BenefitTerms()) > 0
}

func (c *Coordinator) vectorSearch(ctx context.Context, q *entity.Question, intent *entity.Intent, params config.RetrievalTierConfig, docType string) ([]*entity.EvidenceCandidate, error) {
	if c.embedder == nil || c.store == nil {
		return nil, ErrVectorDisabled
	}

	vecs, err := c.embedder.EmbedStrings(ctx, []string{q.Text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, ErrVectorDisabled
	}
	emb := make([]float32, 0, len(vecs[0]))
	for _, x := range vecs[0] {
		emb = append(emb, float32(x))
	}

	return c.store.VectorSearch(ctx, VectorQuery{
		Scope:     q.Scope,
		Embedding: emb,
		TopK:      params.TopK,
		MinScore:  params.SimilarityThreshold,
		DocType:   docType,
	})
}

func (c *Coordinator) keywordSearch(ctx context.Context, q *entity.Question, params config.RetrievalTierConfig, docType string) ([]*entity.EvidenceCandidate, error) {
	if c.store == nil {
		return nil, ErrVectorDisabled
	}
	return c.store.KeywordSearch(ctx, KeywordQuery{
		Scope:   q.Scope,
		Text:    q.Text,
		TopK:    params.TopK,
		DocType: docType,
	})
}

func (c *Coordinator) graphTraverse(ctx context.Context, q *entity.Question, intent *entity.Intent, params config.RetrievalTierConfig) ([]*entity.EvidenceCandidate, error) {
	if c.graph == nil {
		return nil, ErrGraphDisabled
	}
	return c.graph.Traverse(ctx, GraphQuery{
		Scope:      q.Scope,
		StartTerms: intent.BenefitTerms(),
		MaxHops:    c.graphMaxHops,
		Limit:      params.TopK,
	})
}

// tagBenefitTerms 为尚无福利词标注的候选补标：
// 摘录中包含 Intent 福利词即认为该候选佐证该词。
func tagBenefitTerms(cands []*entity.EvidenceCandidate, intent *entity.Intent) {
	terms := intent.BenefitTerms()
	if len(terms) == 0 {
		return
	}
	for _, cand := range cands {
		if cand.BenefitTerm != "" {
			continue
		}
		lowered := strings.ToLower(cand.Excerpt)
		for _, t := range terms {
			if strings.Contains(lowered, t) {
				cand.BenefitTerm = t
				break
			}
		}
	}
}
