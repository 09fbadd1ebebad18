package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"benefit-ai-api/internal/config"
	"benefit-ai-api/internal/domain/entity"
	apperrors "benefit-ai-api/pkg/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newOrchestrator(store EvidenceStore, graph RelationshipGraph, gen AnswerGenerator, cfg *config.PipelineConfig) *Orchestrator {
	return NewOrchestrator(
		NewClassifier(0),
		NewCoordinator(&fakeEmbedder{}, store, graph, cfg),
		NewFuser(cfg),
		NewSynthesizer(gen, cfg),
		cfg,
	)
}

func TestOrchestrator_HappyPath(t *testing.T) {
	store := &fakeStore{
		vectorCands: []*entity.EvidenceCandidate{{
			Source:     entity.SourceVector,
			DocumentID: "doc-1",
			SpanStart:  0,
			SpanEnd:    100,
			Excerpt:    "Your deductible is $500 per year.",
			Score:      0.85,
		}},
		keywordCands: []*entity.EvidenceCandidate{{
			Source:     entity.SourceKeyword,
			DocumentID: "doc-1",
			SpanStart:  400,
			SpanEnd:    500,
			Excerpt:    "The deductible resets every January.",
			Score:      0.6,
		}},
	}
	o := newOrchestrator(store, nil, &fakeGenerator{out: "Your deductible is $500 [1]."}, tierConfig())

	answer, err := o.AnswerQuery(context.Background(), newQuestion("What is my deductible?"))
	require.NoError(t, err)

	assert.Equal(t, entity.StateCompleted, answer.State)
	assert.Empty(t, answer.Degradations)
	assert.False(t, answer.LowConfidence)
	require.Len(t, answer.Citations, 1)
	assert.Equal(t, "doc-1", answer.Citations[0].DocumentID)
	assert.Greater(t, answer.Confidence, 0.5)
}

func TestOrchestrator_MissingScopeIsHardError(t *testing.T) {
	o := newOrchestrator(&fakeStore{}, nil, nil, tierConfig())

	q := entity.NewQuestion("q-1", "what is my deductible", entity.TenantScope{})
	_, err := o.AnswerQuery(context.Background(), q)
	assert.ErrorIs(t, err, apperrors.ErrScopeMissing)

	_, err = o.AnswerQuery(context.Background(), nil)
	assert.ErrorIs(t, err, apperrors.ErrScopeMissing)
}

func TestOrchestrator_EmptyQuestionIsHardError(t *testing.T) {
	o := newOrchestrator(&fakeStore{}, nil, nil, tierConfig())

	_, err := o.AnswerQuery(context.Background(), newQuestion("   "))
	assert.ErrorIs(t, err, apperrors.ErrQueryEmpty)
	assert.True(t, apperrors.IsValidation(err))
}

func TestOrchestrator_SourceFailureDegradesButAnswers(t *testing.T) {
	store := &fakeStore{
		vectorErr: errors.New("milvus down"),
		keywordCands: []*entity.EvidenceCandidate{{
			Source:     entity.SourceKeyword,
			DocumentID: "doc-1",
			Excerpt:    "Your deductible is $500 per year.",
			Score:      0.6,
		}},
	}
	o := newOrchestrator(store, nil, &fakeGenerator{out: "Your deductible is $500 [1]."}, tierConfig())

	answer, err := o.AnswerQuery(context.Background(), newQuestion("What is my deductible?"))
	require.NoError(t, err)

	assert.Equal(t, entity.StateDegraded, answer.State)
	assert.Contains(t, answer.Degradations, "vector_source_error")
	assert.NotEmpty(t, answer.Citations)
}

func TestOrchestrator_GenerationFallbackDegrades(t *testing.T) {
	store := &fakeStore{
		vectorErr: errors.New("milvus down"),
		keywordCands: []*entity.EvidenceCandidate{{
			Source:     entity.SourceKeyword,
			DocumentID: "doc-1",
			Excerpt:    "Your deductible is $500 per year.",
			Score:      0.6,
		}},
	}
	o := newOrchestrator(store, nil, &fakeGenerator{err: errors.New("llm down")}, tierConfig())

	answer, err := o.AnswerQuery(context.Background(), newQuestion("What is my deductible?"))
	require.NoError(t, err)

	assert.Equal(t, entity.StateDegraded, answer.State)
	assert.Contains(t, answer.Degradations, "vector_source_error")
	assert.Contains(t, answer.Degradations, "generation_fallback")
	assert.Contains(t, answer.Text, "According to your plan documents")
}

func TestOrchestrator_NoEvidenceStillAnswers(t *testing.T) {
	o := newOrchestrator(&fakeStore{}, nil, &fakeGenerator{out: "unused"}, tierConfig())

	answer, err := o.AnswerQuery(context.Background(), newQuestion("What is my deductible?"))
	require.NoError(t, err)

	assert.True(t, answer.InsufficientEvidence())
	assert.True(t, answer.LowConfidence)
}

func TestOrchestrator_BudgetExceededShortCircuits(t *testing.T) {
	store := &fakeStore{
		vectorDelay: 500 * time.Millisecond,
		keywordCands: []*entity.EvidenceCandidate{{
			Source:     entity.SourceKeyword,
			DocumentID: "doc-1",
			Excerpt:    "Your deductible is $500 per year.",
			Score:      0.6,
		}},
	}
	cfg := tierConfig()
	cfg.TotalBudget = 50 * time.Millisecond
	cfg.SourceTimeout = time.Second
	o := newOrchestrator(store, nil, &fakeGenerator{out: "Your deductible is $500 [1]."}, cfg)

	start := time.Now()
	answer, err := o.AnswerQuery(context.Background(), newQuestion("What is my deductible?"))
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 400*time.Millisecond)
	assert.Equal(t, entity.StateDegraded, answer.State)
	assert.Contains(t, answer.Degradations, "budget_exceeded")
}

func TestOrchestrator_ConfidenceNeverExceedsTopEvidence(t *testing.T) {
	store := &fakeStore{
		keywordCands: []*entity.EvidenceCandidate{
			{Source: entity.SourceKeyword, DocumentID: "doc-1", SpanStart: 0, SpanEnd: 50, Excerpt: "deductible info", Score: 0.62},
			{Source: entity.SourceKeyword, DocumentID: "doc-1", SpanStart: 100, SpanEnd: 150, Excerpt: "more deductible info", Score: 0.58},
		},
	}
	o := newOrchestrator(store, nil, &fakeGenerator{out: "answer [1] [2]"}, tierConfig())

	answer, err := o.AnswerQuery(context.Background(), newQuestion("What is my deductible?"))
	require.NoError(t, err)

	assert.LessOrEqual(t, answer.Confidence, 0.62+0.001)
}
