package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"benefit-ai-api/internal/config"
	"benefit-ai-api/internal/domain/entity"
)

// fakeEmbedder 固定向量的 Embedder 桩
type fakeEmbedder struct {
	err error
}

func (e *fakeEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = []float64{0.1, 0.2, 0.3}
	}
	return out, nil
}

// fakeStore 可编排的证据库桩
type fakeStore struct {
	vectorCands  []*entity.EvidenceCandidate
	vectorErr    error
	vectorDelay  time.Duration
	keywordCands []*entity.EvidenceCandidate
	keywordErr   error
}

func (s *fakeStore) VectorSearch(ctx context.Context, _ VectorQuery) ([]*entity.EvidenceCandidate, error) {
	if s.vectorDelay > 0 {
		select {
		case <-time.After(s.vectorDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.vectorCands, s.vectorErr
}

func (s *fakeStore) KeywordSearch(_ context.Context, _ KeywordQuery) ([]*entity.EvidenceCandidate, error) {
	return s.keywordCands, s.keywordErr
}

// fakeGraph 可编排的关系图桩
type fakeGraph struct {
	cands  []*entity.EvidenceCandidate
	err    error
	called bool
	query  GraphQuery
}

func (g *fakeGraph) Traverse(_ context.Context, q GraphQuery) ([]*entity.EvidenceCandidate, error) {
	g.called = true
	g.query = q
	return g.cands, g.err
}

func tierConfig() *config.PipelineConfig {
	return &config.PipelineConfig{
		Retrieval: config.RetrievalTiersConfig{
			Simple:      config.RetrievalTierConfig{TopK: 5, SimilarityThreshold: 0.55},
			Comparative: config.RetrievalTierConfig{TopK: 8, SimilarityThreshold: 0.45},
			MultiHop:    config.RetrievalTierConfig{TopK: 12, SimilarityThreshold: 0.35},
		},
		SourceTimeout: 200 * time.Millisecond,
		GraphMaxHops:  3,
	}
}

func TestCoordinator_MergesAllSources(t *testing.T) {
	store := &fakeStore{
		vectorCands:  []*entity.EvidenceCandidate{vectorCand("doc-1", 0, 100, 0.8)},
		keywordCands: []*entity.EvidenceCandidate{{Source: entity.SourceKeyword, DocumentID: "doc-2", SpanStart: 0, SpanEnd: 50, Excerpt: "kw", Score: 0.5}},
	}
	graph := &fakeGraph{cands: []*entity.EvidenceCandidate{{
		Source: entity.SourceGraph, Excerpt: "hit", Score: 0.9,
		Graph: &entity.GraphProvenance{PathLength: 1, NodeID: "n1"},
	}}}
	c := NewCoordinator(&fakeEmbedder{}, store, graph, tierConfig())

	intent := simpleIntent()
	intent.Tier = entity.TierComparative
	result := c.Retrieve(context.Background(), newQuestion("deductible vs copay"), intent)

	assert.Len(t, result.Candidates, 3)
	assert.Empty(t, result.Failures)
	assert.True(t, graph.called)
	assert.Equal(t, []string{"deductible"}, graph.query.StartTerms)
	assert.Equal(t, 3, graph.query.MaxHops)
}

func TestCoordinator_SourceFailureIsAbsorbed(t *testing.T) {
	store := &fakeStore{
		vectorErr:    errors.New("milvus down"),
		keywordCands: []*entity.EvidenceCandidate{{Source: entity.SourceKeyword, DocumentID: "doc-2", Excerpt: "kw", Score: 0.5}},
	}
	c := NewCoordinator(&fakeEmbedder{}, store, nil, tierConfig())

	result := c.Retrieve(context.Background(), newQuestion("what is my deductible"), simpleIntent())

	require.Len(t, result.Candidates, 1)
	assert.Equal(t, entity.SourceKeyword, result.Candidates[0].Source)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, entity.SourceVector, result.Failures[0].Source)
	assert.Equal(t, "error", result.Failures[0].Reason)
}

func TestCoordinator_SlowSourceTimesOut(t *testing.T) {
	store := &fakeStore{
		vectorDelay:  time.Second,
		vectorCands:  []*entity.EvidenceCandidate{vectorCand("doc-1", 0, 100, 0.8)},
		keywordCands: []*entity.EvidenceCandidate{{Source: entity.SourceKeyword, DocumentID: "doc-2", Excerpt: "kw", Score: 0.5}},
	}
	cfg := tierConfig()
	cfg.SourceTimeout = 20 * time.Millisecond
	c := NewCoordinator(&fakeEmbedder{}, store, nil, cfg)

	result := c.Retrieve(context.Background(), newQuestion("what is my deductible"), simpleIntent())

	require.Len(t, result.Candidates, 1)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, entity.SourceVector, result.Failures[0].Source)
	assert.Equal(t, "timeout", result.Failures[0].Reason)
}

func TestCoordinator_WrappedSourceErrorsClassified(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		reason string
	}{
		{"wrapped deadline", fmt.Errorf("vector search failed: %w", context.DeadlineExceeded), "timeout"},
		{"wrapped unavailable", fmt.Errorf("vector search failed: %w", ErrVectorDisabled), "unavailable"},
		{"plain failure", errors.New("milvus down"), "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCoordinator(&fakeEmbedder{}, &fakeStore{vectorErr: tt.err}, nil, tierConfig())

			result := c.Retrieve(context.Background(), newQuestion("what is my deductible"), simpleIntent())

			require.Len(t, result.Failures, 1)
			assert.Equal(t, tt.reason, result.Failures[0].Reason)
		})
	}
}

func TestCoordinator_EmbedderFailureOnlyDegradesVector(t *testing.T) {
	store := &fakeStore{
		keywordCands: []*entity.EvidenceCandidate{{Source: entity.SourceKeyword, DocumentID: "doc-2", Excerpt: "kw", Score: 0.5}},
	}
	c := NewCoordinator(&fakeEmbedder{err: errors.New("embedding api down")}, store, nil, tierConfig())

	result := c.Retrieve(context.Background(), newQuestion("what is my deductible"), simpleIntent())

	require.Len(t, result.Candidates, 1)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, entity.SourceVector, result.Failures[0].Source)
}

func TestCoordinator_GraphSkippedForSimpleTier(t *testing.T) {
	graph := &fakeGraph{}
	c := NewCoordinator(&fakeEmbedder{}, &fakeStore{}, graph, tierConfig())

	c.Retrieve(context.Background(), newQuestion("what is my deductible"), simpleIntent())

	assert.False(t, graph.called)
}

func TestCoordinator_GraphSkippedWithoutBenefitTerms(t *testing.T) {
	graph := &fakeGraph{}
	c := NewCoordinator(&fakeEmbedder{}, &fakeStore{}, graph, tierConfig())

	intent := &entity.Intent{QuestionID: "q-1", Tier: entity.TierComparative, Confidence: 0.3}
	c.Retrieve(context.Background(), newQuestion("a or b"), intent)

	assert.False(t, graph.called)
}

func TestCoordinator_MissingGraphReportsNoFailure(t *testing.T) {
	c := NewCoordinator(&fakeEmbedder{}, &fakeStore{}, nil, tierConfig())

	intent := simpleIntent()
	intent.Tier = entity.TierMultiHop
	result := c.Retrieve(context.Background(), newQuestion("after i meet my deductible"), intent)

	// 图整体缺席不算失败，只是少一路候选
	assert.Empty(t, result.Failures)
}

func TestCoordinator_TagsBenefitTerms(t *testing.T) {
	store := &fakeStore{
		vectorCands: []*entity.EvidenceCandidate{{
			Source:     entity.SourceVector,
			DocumentID: "doc-1",
			Excerpt:    "Your deductible is $500 per year.",
			Score:      0.8,
		}},
	}
	c := NewCoordinator(&fakeEmbedder{}, store, nil, tierConfig())

	result := c.Retrieve(context.Background(), newQuestion("what is my deductible"), simpleIntent())

	require.Len(t, result.Candidates, 1)
	assert.Equal(t, "deductible", result.Candidates[0].BenefitTerm)
}
