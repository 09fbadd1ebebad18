package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/google/uuid"

	"benefit-ai-api/internal/domain/entity"
)

const (
	defaultChunkSizeRunes    = 800
	defaultChunkOverlapRunes = 80
	defaultEmbeddingBatch    = 32
)

// SourcePage 待索引文档的一页
type SourcePage struct {
	Number  int
	Section string
	Text    string
}

// SourceDocument 待索引的计划文档
type SourceDocument struct {
	ID      string
	DocType string // benefit_table / plan_text
	Pages   []SourcePage
}

// Indexer 文档索引器。把计划文档切块、批量向量化，
// 同时写入向量索引与关键词检索两侧，两侧共用同一批 chunk ID。
type Indexer struct {
	embedder embedding.Embedder
	vector   VectorIndexer
	chunks   ChunkWriter

	embeddingBatchSize int
	chunkSizeRunes     int
	chunkOverlapRunes  int
}

// NewIndexer 创建文档索引器
func NewIndexer(embedder embedding.Embedder, vector VectorIndexer, chunks ChunkWriter, embeddingBatchSize int) *Indexer {
	bs := embeddingBatchSize
	if bs <= 0 {
		bs = defaultEmbeddingBatch
	}
	return &Indexer{
		embedder:           embedder,
		vector:             vector,
		chunks:             chunks,
		embeddingBatchSize: bs,
		chunkSizeRunes:     defaultChunkSizeRunes,
		chunkOverlapRunes:  defaultChunkOverlapRunes,
	}
}

func (i *Indexer) Enabled() bool {
	return i != nil && i.embedder != nil && i.vector != nil
}

// IndexDocument 索引一份计划文档。
// Span 偏移以页内字节位置记录，检索侧据此做重叠判定。
func (i *Indexer) IndexDocument(ctx context.Context, scope entity.TenantScope, doc *SourceDocument) error {
	if !scope.Valid() {
		return fmt.Errorf("tenant_id is required")
	}
	if doc == nil || strings.TrimSpace(doc.ID) == "" {
		return fmt.Errorf("document id is required")
	}
	if !i.Enabled() {
		return ErrVectorDisabled
	}

	var out []*DocumentChunk
	embedInputs := make([]string, 0, 64)

	for _, page := range doc.Pages {
		text := strings.TrimSpace(page.Text)
		if text == "" {
			continue
		}
		for _, span := range splitSpans(text, i.chunkSizeRunes, i.chunkOverlapRunes) {
			chunkText := strings.TrimSpace(span.text)
			if chunkText == "" {
				continue
			}

			embedText := chunkText
			if sec := strings.TrimSpace(page.Section); sec != "" {
				embedText = "Section: " + sec + "\n" + embedText
			}
			embedInputs = append(embedInputs, embedText)

			out = append(out, &DocumentChunk{
				ID:         uuid.NewString(),
				DocumentID: doc.ID,
				DocType:    doc.DocType,
				Page:       page.Number,
				Section:    page.Section,
				SpanStart:  span.start,
				SpanEnd:    span.end,
				Text:       chunkText,
			})
		}
	}
	if len(out) == 0 {
		return nil
	}

	vectors, err := i.embedBatch(ctx, embedInputs)
	if err != nil {
		return err
	}
	if len(vectors) != len(out) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(out))
	}
	for idx := range out {
		out[idx].Embedding = vectors[idx]
	}

	if err := i.vector.InsertChunks(ctx, scope, out); err != nil {
		return err
	}
	if i.chunks != nil {
		return i.chunks.SaveChunks(ctx, scope, out)
	}
	return nil
}

type chunkSpan struct {
	text  string
	start int // 页内字节偏移
	end   int
}

// splitSpans 按 rune 数滑窗切块并保留字节偏移
func splitSpans(s string, size, overlap int) []chunkSpan {
	if size <= 0 {
		size = defaultChunkSizeRunes
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	runes := []rune(s)
	// 前缀字节长度表，rune 下标 → 字节偏移
	byteAt := make([]int, len(runes)+1)
	for i, r := range runes {
		byteAt[i+1] = byteAt[i] + len(string(r))
	}

	step := size - overlap
	var out []chunkSpan
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, chunkSpan{
			text:  string(runes[start:end]),
			start: byteAt[start],
			end:   byteAt[end],
		})
		if end == len(runes) {
			break
		}
	}
	return out
}

func (i *Indexer) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if i == nil || i.embedder == nil {
		return nil, ErrVectorDisabled
	}
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += i.embeddingBatchSize {
		end := start + i.embeddingBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		v64, err := i.embedder.EmbedStrings(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		for _, vec := range v64 {
			f32 := make([]float32, 0, len(vec))
			for _, x := range vec {
				f32 = append(f32, float32(x))
			}
			out = append(out, f32)
		}
	}
	return out, nil
}
