package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"benefit-ai-api/internal/config"
	"benefit-ai-api/internal/domain/entity"
)

func vectorCand(docID string, start, end int, score float64) *entity.EvidenceCandidate {
	return &entity.EvidenceCandidate{
		Source:     entity.SourceVector,
		DocumentID: docID,
		SpanStart:  start,
		SpanEnd:    end,
		Excerpt:    "excerpt",
		Score:      score,
	}
}

func TestFuser_MergesOverlappingSpans(t *testing.T) {
	f := NewFuser(nil)

	ranked := f.Fuse([]*entity.EvidenceCandidate{
		vectorCand("doc-1", 0, 100, 0.6),
		{
			Source:     entity.SourceKeyword,
			DocumentID: "doc-1",
			SpanStart:  50,
			SpanEnd:    150,
			Excerpt:    "keyword excerpt",
			Score:      0.8,
		},
		vectorCand("doc-2", 0, 100, 0.5),
	})

	require.Len(t, ranked, 2)

	// 重叠区间合并为一条，取最高分成员的摘录与置信度
	merged := ranked[0]
	assert.Equal(t, "doc-1", merged.DocumentID)
	assert.Equal(t, "keyword excerpt", merged.Excerpt)
	assert.InDelta(t, 0.8, merged.Confidence, 0.001)
	assert.ElementsMatch(t, []entity.SourceKind{entity.SourceVector, entity.SourceKeyword}, merged.Sources)

	assert.Equal(t, "doc-2", ranked[1].DocumentID)
}

func TestFuser_MaxMergeDoesNotInflateConfidence(t *testing.T) {
	f := NewFuser(nil)

	// 五条冗余命中不应把置信度推高到超过单条最高分
	var cands []*entity.EvidenceCandidate
	for i := 0; i < 5; i++ {
		cands = append(cands, vectorCand("doc-1", 0, 100, 0.6))
	}

	ranked := f.Fuse(cands)
	require.Len(t, ranked, 1)
	assert.InDelta(t, 0.6, ranked[0].Confidence, 0.001)
}

func TestFuser_CorroborationBoost(t *testing.T) {
	f := NewFuser(&config.PipelineConfig{CorroborationBoost: 0.1, MaxEvidence: 8})

	store := vectorCand("doc-1", 0, 100, 0.7)
	store.BenefitTerm = "deductible"
	graph := &entity.EvidenceCandidate{
		Source:      entity.SourceGraph,
		Excerpt:     "deductible APPLIES_TO outpatient surgery",
		Score:       0.8,
		BenefitTerm: "deductible",
		Graph:       &entity.GraphProvenance{PathLength: 1, NodeID: "node-1"},
	}

	ranked := f.Fuse([]*entity.EvidenceCandidate{store, graph})
	require.Len(t, ranked, 2)

	for _, e := range ranked {
		assert.True(t, e.Corroborated, "both sides of the corroborating pair get the boost")
	}

	// 加成后严格高于各自的原始分
	byTermScore := map[entity.SourceKind]float64{}
	for _, e := range ranked {
		byTermScore[e.Sources[0]] = e.Confidence
	}
	assert.InDelta(t, 0.8, byTermScore[entity.SourceVector], 0.001)
	assert.InDelta(t, 0.9, byTermScore[entity.SourceGraph], 0.001)
}

func TestFuser_BoostIsBoundedAtOne(t *testing.T) {
	f := NewFuser(nil)

	store := vectorCand("doc-1", 0, 100, 0.97)
	store.BenefitTerm = "copay"
	graph := &entity.EvidenceCandidate{
		Source:      entity.SourceGraph,
		Excerpt:     "copay",
		Score:       0.99,
		BenefitTerm: "copay",
		Graph:       &entity.GraphProvenance{PathLength: 1, NodeID: "node-1"},
	}

	ranked := f.Fuse([]*entity.EvidenceCandidate{store, graph})
	for _, e := range ranked {
		assert.LessOrEqual(t, e.Confidence, 1.0)
	}
}

func TestFuser_OrderingAndTieBreak(t *testing.T) {
	f := NewFuser(nil)

	keyword := &entity.EvidenceCandidate{
		Source:     entity.SourceKeyword,
		DocumentID: "doc-k",
		SpanStart:  0,
		SpanEnd:    10,
		Score:      0.7,
	}
	vector := vectorCand("doc-v", 0, 10, 0.7)
	graphNear := &entity.EvidenceCandidate{
		Source:  entity.SourceGraph,
		Excerpt: "one hop",
		Score:   0.7,
		Graph:   &entity.GraphProvenance{PathLength: 1, NodeID: "n1"},
	}
	graphFar := &entity.EvidenceCandidate{
		Source:  entity.SourceGraph,
		Excerpt: "three hops",
		Score:   0.7,
		Graph:   &entity.GraphProvenance{PathLength: 3, NodeID: "n2"},
	}

	ranked := f.Fuse([]*entity.EvidenceCandidate{keyword, vector, graphFar, graphNear})
	require.Len(t, ranked, 4)

	// 同分时：跳数少的图证据 > 跳数多的图证据 > 向量 > 关键词
	assert.Equal(t, "one hop", ranked[0].Excerpt)
	assert.Equal(t, "three hops", ranked[1].Excerpt)
	assert.True(t, ranked[2].HasSource(entity.SourceVector))
	assert.True(t, ranked[3].HasSource(entity.SourceKeyword))
}

func TestFuser_TruncatesToMaxEvidence(t *testing.T) {
	f := NewFuser(&config.PipelineConfig{MaxEvidence: 3})

	var cands []*entity.EvidenceCandidate
	for i := 0; i < 10; i++ {
		cands = append(cands, vectorCand("doc-1", i*200, i*200+100, 0.5+float64(i)*0.04))
	}

	ranked := f.Fuse(cands)
	require.Len(t, ranked, 3)

	// 截断保留的是置信度最高的三条
	assert.InDelta(t, 0.86, ranked[0].Confidence, 0.001)
	assert.InDelta(t, 0.82, ranked[1].Confidence, 0.001)
	assert.InDelta(t, 0.78, ranked[2].Confidence, 0.001)
}

func TestFuser_EmptyInput(t *testing.T) {
	f := NewFuser(nil)
	assert.Nil(t, f.Fuse(nil))
}
