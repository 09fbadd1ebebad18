package pipeline

import (
	"sort"

	"github.com/google/uuid"

	"benefit-ai-api/internal/config"
	"benefit-ai-api/internal/domain/entity"
)

const (
	defaultCorroborationBoost = 0.1
	defaultMaxEvidence        = 8
)

// Fuser 证据融合排序器。无状态，纯变换：
// 合并重叠区间、跨源互证加成、按置信度排序后截断。
type Fuser struct {
	boost       float64
	maxEvidence int
}

// NewFuser 创建融合排序器
func NewFuser(cfg *config.PipelineConfig) *Fuser {
	f := &Fuser{
		boost:       defaultCorroborationBoost,
		maxEvidence: defaultMaxEvidence,
	}
	if cfg != nil {
		if cfg.CorroborationBoost > 0 {
			f.boost = cfg.CorroborationBoost
		}
		if cfg.MaxEvidence > 0 {
			f.maxEvidence = cfg.MaxEvidence
		}
	}
	return f
}

// mergeGroup 同一文档内互相重叠的候选聚为一组
type mergeGroup struct {
	members []*entity.EvidenceCandidate
}

func (g *mergeGroup) overlapsAny(c *entity.EvidenceCandidate) bool {
	for _, m := range g.members {
		if m.Overlaps(c) {
			return true
		}
	}
	return false
}

// Fuse 融合候选并产出排序后的证据。
// 去重合并取最大分而非求和，防止冗余命中抬高置信度。
func (f *Fuser) Fuse(candidates []*entity.EvidenceCandidate) []*entity.RankedEvidence {
	if len(candidates) == 0 {
		return nil
	}

	var groups []*mergeGroup
	for _, cand := range candidates {
		placed := false
		for _, g := range groups {
			if g.overlapsAny(cand) {
				g.members = append(g.members, cand)
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, &mergeGroup{members: []*entity.EvidenceCandidate{cand}})
		}
	}

	ranked := make([]*entity.RankedEvidence, 0, len(groups))
	for _, g := range groups {
		ranked = append(ranked, mergeCandidates(g.members))
	}

	f.applyCorroboration(ranked)

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return specificity(a) > specificity(b)
	})

	if len(ranked) > f.maxEvidence {
		ranked = ranked[:f.maxEvidence]
	}
	return ranked
}

// mergeCandidates 将一组重叠候选合并为一条证据：
// 置信度取最大值，来源取并集，摘录取最高分成员的。
func mergeCandidates(members []*entity.EvidenceCandidate) *entity.RankedEvidence {
	best := members[0]
	for _, m := range members[1:] {
		if m.Score > best.Score {
			best = m
		}
	}

	e := &entity.RankedEvidence{
		ID:          uuid.New().String(),
		DocumentID:  best.DocumentID,
		SpanStart:   best.SpanStart,
		SpanEnd:     best.SpanEnd,
		Excerpt:     best.Excerpt,
		BenefitTerm: best.BenefitTerm,
		Page:        best.Page,
		Section:     best.Section,
		Confidence:  clamp01(best.Score),
	}

	seen := make(map[entity.SourceKind]bool, 3)
	for _, m := range members {
		if !seen[m.Source] {
			seen[m.Source] = true
			e.Sources = append(e.Sources, m.Source)
		}
		if m.BenefitTerm != "" && e.BenefitTerm == "" {
			e.BenefitTerm = m.BenefitTerm
		}
		if m.Graph != nil && (e.HopCount == 0 || m.Graph.PathLength < e.HopCount) {
			e.HopCount = m.Graph.PathLength
		}
	}
	return e
}

// applyCorroboration 跨源互证加成：同一福利词同时被证据库与关系图
// 佐证时加一次有界 boost，封顶 1.0。合并过程中多来源落在同一条证据
// 上的情况同样算互证。
func (f *Fuser) applyCorroboration(ranked []*entity.RankedEvidence) {
	// 按福利词统计出现过的来源集合
	termSources := make(map[string]map[entity.SourceKind]bool)
	for _, e := range ranked {
		if e.BenefitTerm == "" {
			continue
		}
		set := termSources[e.BenefitTerm]
		if set == nil {
			set = make(map[entity.SourceKind]bool, 3)
			termSources[e.BenefitTerm] = set
		}
		for _, s := range e.Sources {
			set[s] = true
		}
	}

	for _, e := range ranked {
		if corroborated(e, termSources) {
			e.Corroborated = true
			e.Confidence = clamp01(e.Confidence + f.boost)
		}
	}
}

// corroborated 证据本身含图与存储两侧来源，或其福利词被图与存储两侧佐证
func corroborated(e *entity.RankedEvidence, termSources map[string]map[entity.SourceKind]bool) bool {
	storeSide := e.HasSource(entity.SourceVector) || e.HasSource(entity.SourceKeyword)
	graphSide := e.HasSource(entity.SourceGraph)
	if storeSide && graphSide {
		return true
	}
	if e.BenefitTerm == "" {
		return false
	}
	set := termSources[e.BenefitTerm]
	if set == nil {
		return false
	}
	return (set[entity.SourceVector] || set[entity.SourceKeyword]) && set[entity.SourceGraph]
}

// specificity 并列时的来源精确度：跳数少的图证据 > 向量 > 关键词
func specificity(e *entity.RankedEvidence) int {
	if e.HasSource(entity.SourceGraph) {
		// 跳数越少越精确；上限裁剪防止负分越过向量档
		hops := e.HopCount
		if hops > 10 {
			hops = 10
		}
		return 30 - hops
	}
	if e.HasSource(entity.SourceVector) {
		return 10
	}
	return 0
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
