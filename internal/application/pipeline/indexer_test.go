package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"benefit-ai-api/internal/domain/entity"
)

// captureIndexSink 同时充当 VectorIndexer 与 ChunkWriter 的录制桩
type captureIndexSink struct {
	vectorChunks []*DocumentChunk
	savedChunks  []*DocumentChunk
}

func (s *captureIndexSink) InsertChunks(_ context.Context, _ entity.TenantScope, chunks []*DocumentChunk) error {
	s.vectorChunks = chunks
	return nil
}

func (s *captureIndexSink) SaveChunks(_ context.Context, _ entity.TenantScope, chunks []*DocumentChunk) error {
	s.savedChunks = chunks
	return nil
}

func TestSplitSpans_ByteOffsets(t *testing.T) {
	// 多字节字符场景：偏移按字节计，切分按 rune 计
	text := "健康保险 deductible 说明" // 4 + 1 + 10 + 1 + 2 runes

	spans := splitSpans(text, 10, 2)
	require.NotEmpty(t, spans)

	assert.Equal(t, 0, spans[0].start)
	for _, sp := range spans {
		assert.Equal(t, sp.text, text[sp.start:sp.end], "offsets must slice back to the chunk text")
	}
	// 末块右边界落在文本末尾
	assert.Equal(t, len(text), spans[len(spans)-1].end)
}

func TestSplitSpans_OverlapWindows(t *testing.T) {
	text := strings.Repeat("a", 25)

	spans := splitSpans(text, 10, 3)
	require.Len(t, spans, 4) // 步长 7：0-10, 7-17, 14-24, 21-25

	assert.Equal(t, 0, spans[0].start)
	assert.Equal(t, 10, spans[0].end)
	assert.Equal(t, 7, spans[1].start)
	assert.Equal(t, 21, spans[3].start)
	assert.Equal(t, 25, spans[3].end)
}

func TestIndexer_IndexDocument(t *testing.T) {
	sink := &captureIndexSink{}
	idx := NewIndexer(&fakeEmbedder{}, sink, sink, 2)

	doc := &SourceDocument{
		ID:      "doc-1",
		DocType: "plan_text",
		Pages: []SourcePage{
			{Number: 1, Section: "Cost Sharing", Text: "Your deductible is $500 per year."},
			{Number: 2, Section: "", Text: "   "},
			{Number: 3, Section: "Limits", Text: "Annual visit limit is 20 visits."},
		},
	}

	err := idx.IndexDocument(context.Background(), entity.TenantScope{TenantID: "tenant-1", PlanID: "plan-1"}, doc)
	require.NoError(t, err)

	// 空白页被跳过，两侧收到同一批 chunk
	require.Len(t, sink.vectorChunks, 2)
	assert.Equal(t, sink.vectorChunks, sink.savedChunks)

	first := sink.vectorChunks[0]
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, "doc-1", first.DocumentID)
	assert.Equal(t, "plan_text", first.DocType)
	assert.Equal(t, 1, first.Page)
	assert.Equal(t, "Cost Sharing", first.Section)
	assert.NotEmpty(t, first.Embedding)

	assert.Equal(t, 3, sink.vectorChunks[1].Page)
}

// shortEmbedder 返回的向量数恒为 1，无视输入条数
type shortEmbedder struct{}

func (shortEmbedder) EmbedStrings(_ context.Context, _ []string, _ ...embedding.Option) ([][]float64, error) {
	return [][]float64{{0.1, 0.2}}, nil
}

func TestIndexer_RejectsVectorCountMismatch(t *testing.T) {
	sink := &captureIndexSink{}
	idx := NewIndexer(shortEmbedder{}, sink, sink, 8)

	doc := &SourceDocument{
		ID:      "doc-1",
		DocType: "plan_text",
		Pages: []SourcePage{
			{Number: 1, Text: "Your deductible is $500 per year."},
			{Number: 2, Text: "Annual visit limit is 20 visits."},
		},
	}

	err := idx.IndexDocument(context.Background(), entity.TenantScope{TenantID: "tenant-1"}, doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vectors")

	// 向量数对不上时两侧都不应落任何分块
	assert.Empty(t, sink.vectorChunks)
	assert.Empty(t, sink.savedChunks)
}

func TestIndexer_RequiresScopeAndDocument(t *testing.T) {
	sink := &captureIndexSink{}
	idx := NewIndexer(&fakeEmbedder{}, sink, sink, 0)

	err := idx.IndexDocument(context.Background(), entity.TenantScope{}, &SourceDocument{ID: "doc-1"})
	assert.Error(t, err)

	err = idx.IndexDocument(context.Background(), entity.TenantScope{TenantID: "tenant-1"}, &SourceDocument{ID: "  "})
	assert.Error(t, err)
}

func TestIndexer_DisabledWithoutVectorBackend(t *testing.T) {
	idx := NewIndexer(nil, nil, nil, 0)
	assert.False(t, idx.Enabled())

	err := idx.IndexDocument(context.Background(), entity.TenantScope{TenantID: "tenant-1"}, &SourceDocument{ID: "doc-1"})
	assert.ErrorIs(t, err, ErrVectorDisabled)
}

func TestBuildEvidenceContext(t *testing.T) {
	evidence := []*entity.RankedEvidence{
		{
			ID:         "ev-1",
			Sources:    []entity.SourceKind{entity.SourceVector},
			DocumentID: "doc-1",
			Page:       3,
			Section:    "Cost Sharing",
			Excerpt:    "Your deductible\nis $500\nper year.",
			Confidence: 0.9,
		},
		{
			ID:          "ev-2",
			Sources:     []entity.SourceKind{entity.SourceGraph},
			BenefitTerm: "deductible",
			Excerpt:     "deductible APPLIES_TO outpatient surgery",
			Confidence:  0.8,
		},
	}

	out := BuildEvidenceContext(evidence, 400)

	lines := strings.Split(out, "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "cite by number")
	// 换行被压平，编号从 1 起
	assert.Contains(t, lines[1], "[1] (Doc:doc-1 p.3 Cost Sharing) Your deductible is $500 per year.")
	assert.Contains(t, lines[2], "[2] (Graph:deductible)")
}

func TestBuildEvidenceContext_TruncatesLongExcerpts(t *testing.T) {
	evidence := []*entity.RankedEvidence{{
		ID:      "ev-1",
		Sources: []entity.SourceKind{entity.SourceKeyword},
		Excerpt: strings.Repeat("x", 1000),
	}}

	out := BuildEvidenceContext(evidence, 100)
	assert.Less(t, len([]rune(out)), 200)
	assert.Contains(t, out, "…")
}

func TestBuildEvidenceContext_Empty(t *testing.T) {
	assert.Empty(t, BuildEvidenceContext(nil, 400))
}
