package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"benefit-ai-api/internal/config"
	"benefit-ai-api/internal/domain/entity"
)

// fakeGenerator 可编排的生成器桩
type fakeGenerator struct {
	out   string
	err   error
	calls int
	last  GenerationInput
}

func (g *fakeGenerator) Generate(_ context.Context, in GenerationInput) (string, error) {
	g.calls++
	g.last = in
	return g.out, g.err
}

func rankedEvidence(conf float64, term string) *entity.RankedEvidence {
	return &entity.RankedEvidence{
		ID:          "ev-" + term,
		Sources:     []entity.SourceKind{entity.SourceVector},
		DocumentID:  "doc-1",
		Excerpt:     "Your " + term + " is $500 per year.",
		BenefitTerm: term,
		Page:        3,
		Section:     "Cost Sharing",
		Confidence:  conf,
	}
}

func simpleIntent() *entity.Intent {
	return &entity.Intent{
		QuestionID: "q-1",
		Tier:       entity.TierSimple,
		Affinity:   entity.AffinityEither,
		Confidence: 0.9,
		Entities: []entity.ExtractedEntity{
			{Kind: entity.EntityKindBenefit, Text: "deductible"},
		},
	}
}

func TestSynthesizer_EmptyEvidenceReturnsInsufficientAnswer(t *testing.T) {
	s := NewSynthesizer(&fakeGenerator{out: "should not be called"}, nil)

	answer, degraded := s.Synthesize(context.Background(), newQuestion("what is my deductible"), simpleIntent(), nil)

	require.NotNil(t, answer)
	assert.False(t, degraded)
	assert.True(t, answer.InsufficientEvidence())
	assert.Zero(t, answer.Confidence)
	assert.Empty(t, answer.Citations)
	assert.Contains(t, answer.Text, "don't have enough plan information")
}

func TestSynthesizer_ParsesCitationMarkers(t *testing.T) {
	gen := &fakeGenerator{out: "Your deductible is $500 [2] and it applies to surgery [1]. Ignore [9]."}
	s := NewSynthesizer(gen, nil)

	evidence := []*entity.RankedEvidence{
		rankedEvidence(0.9, "deductible"),
		rankedEvidence(0.8, "copay"),
	}
	answer, degraded := s.Synthesize(context.Background(), newQuestion("what is my deductible"), simpleIntent(), evidence)

	assert.False(t, degraded)
	require.Len(t, answer.Citations, 2)
	// 按首次出现顺序：[2] 先于 [1]；越界的 [9] 被忽略
	assert.Equal(t, "ev-copay", answer.Citations[0].EvidenceID)
	assert.Equal(t, "ev-deductible", answer.Citations[1].EvidenceID)
}

func TestSynthesizer_NoMarkersCiteAllEvidence(t *testing.T) {
	gen := &fakeGenerator{out: "Your deductible is $500 per year."}
	s := NewSynthesizer(gen, nil)

	evidence := []*entity.RankedEvidence{
		rankedEvidence(0.9, "deductible"),
		rankedEvidence(0.8, "copay"),
	}
	answer, _ := s.Synthesize(context.Background(), newQuestion("what is my deductible"), simpleIntent(), evidence)

	require.Len(t, answer.Citations, 2)
}

func TestSynthesizer_PassesHistoryToGenerator(t *testing.T) {
	gen := &fakeGenerator{out: "With the deductible met, surgery is covered at 80% [1]."}
	s := NewSynthesizer(gen, nil)

	q := newQuestion("does that apply to outpatient surgery")
	q.History = []entity.ConversationTurn{
		{Role: "user", Content: "What is my deductible?"},
		{Role: "assistant", Content: "Your deductible is $500 per year."},
	}

	_, _ = s.Synthesize(context.Background(), q, simpleIntent(), []*entity.RankedEvidence{rankedEvidence(0.8, "deductible")})

	require.Equal(t, 1, gen.calls)
	assert.Equal(t, q.Text, gen.last.Question)
	assert.Equal(t, q.History, gen.last.History)
	assert.Contains(t, gen.last.EvidenceContext, "[1]")
}

func TestSynthesizer_GeneratorFailureFallsBackToTemplate(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("provider down")}
	s := NewSynthesizer(gen, nil)

	evidence := []*entity.RankedEvidence{rankedEvidence(0.9, "deductible"), rankedEvidence(0.7, "copay")}
	answer, degraded := s.Synthesize(context.Background(), newQuestion("what is my deductible"), simpleIntent(), evidence)

	assert.True(t, degraded)
	assert.Contains(t, answer.Text, "According to your plan documents")
	assert.Contains(t, answer.Text, "$500")
	require.Len(t, answer.Citations, 1)
	assert.Equal(t, "ev-deductible", answer.Citations[0].EvidenceID)
}

func TestSynthesizer_NilGeneratorUsesTemplate(t *testing.T) {
	s := NewSynthesizer(nil, nil)

	answer, degraded := s.Synthesize(context.Background(), newQuestion("what is my deductible"), simpleIntent(), []*entity.RankedEvidence{rankedEvidence(0.8, "deductible")})

	assert.True(t, degraded)
	assert.Contains(t, answer.Text, "According to your plan documents")
}

func TestSynthesizer_Confidence(t *testing.T) {
	s := NewSynthesizer(&fakeGenerator{out: "answer [1]"}, &config.PipelineConfig{
		MinCorroboration: 2,
		MultiHopPenalty:  0.75,
	})

	t.Run("bounded by top evidence confidence", func(t *testing.T) {
		evidence := []*entity.RankedEvidence{rankedEvidence(0.8, "deductible"), rankedEvidence(0.6, "copay")}
		answer, _ := s.Synthesize(context.Background(), newQuestion("q"), simpleIntent(), evidence)
		assert.InDelta(t, 0.8, answer.Confidence, 0.001)
	})

	t.Run("single evidence discounted", func(t *testing.T) {
		answer, _ := s.Synthesize(context.Background(), newQuestion("q"), simpleIntent(), []*entity.RankedEvidence{rankedEvidence(0.8, "deductible")})
		assert.InDelta(t, 0.72, answer.Confidence, 0.001)
	})

	t.Run("multi hop below corroboration floor penalized", func(t *testing.T) {
		intent := simpleIntent()
		intent.Tier = entity.TierMultiHop
		answer, _ := s.Synthesize(context.Background(), newQuestion("q"), intent, []*entity.RankedEvidence{rankedEvidence(0.8, "deductible")})
		// 0.8 * 0.9（单证据折扣）* 0.75（multi-hop 惩罚）
		assert.InDelta(t, 0.54, answer.Confidence, 0.001)
	})

	t.Run("multi hop with enough evidence unpenalized", func(t *testing.T) {
		intent := simpleIntent()
		intent.Tier = entity.TierMultiHop
		evidence := []*entity.RankedEvidence{rankedEvidence(0.8, "deductible"), rankedEvidence(0.6, "copay")}
		answer, _ := s.Synthesize(context.Background(), newQuestion("q"), intent, evidence)
		assert.InDelta(t, 0.8, answer.Confidence, 0.001)
	})
}

func TestSynthesizer_FollowUpsFromUncoveredEntities(t *testing.T) {
	s := NewSynthesizer(&fakeGenerator{out: "answer [1]"}, nil)

	intent := simpleIntent()
	intent.Entities = append(intent.Entities,
		entity.ExtractedEntity{Kind: entity.EntityKindProcedure, Text: "mri"},
		entity.ExtractedEntity{Kind: entity.EntityKindAmount, Text: "$500"},
	)

	// 证据只覆盖 deductible，mri 未覆盖，金额实体不生成追问
	answer, _ := s.Synthesize(context.Background(), newQuestion("q"), intent, []*entity.RankedEvidence{rankedEvidence(0.8, "deductible")})

	require.Len(t, answer.FollowUps, 1)
	assert.Contains(t, answer.FollowUps[0], "mri")
}
