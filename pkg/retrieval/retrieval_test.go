package retrieval

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inquiro-ai/inquiro/pkg/blobstore"
	"github.com/inquiro-ai/inquiro/pkg/embedder"
	"github.com/inquiro-ai/inquiro/pkg/vectordb"
)

// stubEmbedder returns a fixed vector for any input.
type stubEmbedder struct {
	vector []float32
	err    error
}

func (s *stubEmbedder) Embed(ctx context.Context, texts []string) (*embedder.EmbedResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = s.vector
	}
	return &embedder.EmbedResult{Vectors: vectors, PromptTokens: 5 * len(texts), Cost: 0.0001}, nil
}

func (s *stubEmbedder) Dimension() int    { return len(s.vector) }
func (s *stubEmbedder) ModelName() string { return "text-embedding-3-small" }

func newTestRetriever(t *testing.T) (*Retriever, *blobstore.MemoryStore) {
	t.Helper()

	vectors := vectordb.NewChromemStore()
	ctx := context.Background()

	seed := []struct {
		id     string
		vector []float32
		meta   map[string]any
	}{
		{"chunk-1", []float32{1, 0}, map[string]any{
			"doc_id": "doc-a", "chunk_id": "chunk-1", "title": "Attention Is All You Need",
			"url": "https://example.org/attention", "text": "Self-attention relates positions.",
		}},
		{"chunk-2", []float32{0.8, 0.2}, map[string]any{
			"doc_id": "doc-b", "chunk_id": "chunk-2", "title": "BERT",
			"url": "https://example.org/bert", "content": "Bidirectional encoders.",
		}},
	}
	for _, s := range seed {
		require.NoError(t, vectors.Upsert(ctx, "research_papers", s.id, s.vector, s.meta))
	}

	blobs := blobstore.NewMemoryStore()
	return NewRetriever(&stubEmbedder{vector: []float32{1, 0}}, vectors, blobs, "research_papers"), blobs
}

func TestSemanticSearch(t *testing.T) {
	r, _ := newTestRetriever(t)

	results, embedResult, err := r.SemanticSearch(context.Background(), "attention mechanisms", 10)
	require.NoError(t, err)
	require.NotNil(t, embedResult)
	assert.Equal(t, 5, embedResult.PromptTokens)

	require.Len(t, results, 2)
	assert.Equal(t, "chunk-1", results[0].ChunkID)
	assert.Equal(t, "doc-a", results[0].DocID)
	assert.Equal(t, "Attention Is All You Need", results[0].Title)
	assert.Equal(t, "Self-attention relates positions.", results[0].Text)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)

	// "content" metadata key is accepted as text fallback.
	assert.Equal(t, "Bidirectional encoders.", results[1].Text)
}

func TestSemanticSearchInvalidTopK(t *testing.T) {
	r, _ := newTestRetriever(t)

	_, _, err := r.SemanticSearch(context.Background(), "anything", 0)
	assert.ErrorIs(t, err, vectordb.ErrInvalidTopK)
}

func TestSemanticSearchEmbedFailure(t *testing.T) {
	vectors := vectordb.NewChromemStore()
	r := NewRetriever(&stubEmbedder{err: fmt.Errorf("quota exceeded")}, vectors, blobstore.NewMemoryStore(), "ns")

	_, _, err := r.SemanticSearch(context.Background(), "anything", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to embed query")
}

func TestHydrateChunks(t *testing.T) {
	r, blobs := newTestRetriever(t)
	ctx := context.Background()

	require.NoError(t, blobs.Put(ctx, blobstore.ChunkKey("chunk-1"),
		[]byte(`{"chunk_id":"chunk-1","doc_id":"doc-a","text":"body one","title":"T1","url":"u1"}`)))
	require.NoError(t, blobs.Put(ctx, blobstore.ChunkKey("chunk-3"),
		[]byte(`{"chunk_id":"chunk-3","doc_id":"doc-c","text":"body three","title":"T3","url":"u3"}`)))
	require.NoError(t, blobs.Put(ctx, blobstore.ChunkKey("chunk-bad"), []byte(`not json`)))

	chunks, err := r.HydrateChunks(ctx, []SearchResult{
		{ChunkID: "chunk-1", Score: 0.91},
		{ChunkID: "chunk-missing", Score: 0.5},
		{ChunkID: "chunk-bad", Score: 0.4},
		{ChunkID: "chunk-3", Score: 0.33},
	})
	require.NoError(t, err)

	// Missing and malformed entries are skipped; order is preserved.
	require.Len(t, chunks, 2)
	assert.Equal(t, "chunk-1", chunks[0].ChunkID)
	assert.Equal(t, "body one", chunks[0].Text)
	assert.Equal(t, "chunk-3", chunks[1].ChunkID)

	// Each hit's relevance score survives hydration.
	assert.Equal(t, float32(0.91), chunks[0].Score)
	assert.Equal(t, float32(0.33), chunks[1].Score)
}

func TestHydrateChunksTruncates(t *testing.T) {
	r, blobs := newTestRetriever(t)
	ctx := context.Background()

	huge := strings.Repeat("x", maxChunkBytes+500)
	body := fmt.Sprintf(`{"chunk_id":"big","doc_id":"d","text":%q,"title":"T","url":"u"}`, huge)
	require.NoError(t, blobs.Put(ctx, blobstore.ChunkKey("big"), []byte(body)))

	chunks, err := r.HydrateChunks(ctx, []SearchResult{{ChunkID: "big", Score: 0.7}})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Len(t, chunks[0].Text, maxChunkBytes)
}

func TestHydrateChunksTruncatesOnRuneBoundary(t *testing.T) {
	r, blobs := newTestRetriever(t)
	ctx := context.Background()

	// Three-byte runes never align with the byte limit, so a naive cut
	// would split the rune at the boundary.
	huge := strings.Repeat("€", maxChunkBytes/3+200)
	body := fmt.Sprintf(`{"chunk_id":"wide","doc_id":"d","text":%q,"title":"T","url":"u"}`, huge)
	require.NoError(t, blobs.Put(ctx, blobstore.ChunkKey("wide"), []byte(body)))

	chunks, err := r.HydrateChunks(ctx, []SearchResult{{ChunkID: "wide", Score: 0.7}})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.LessOrEqual(t, len(chunks[0].Text), maxChunkBytes)
	assert.True(t, utf8.ValidString(chunks[0].Text))
}

func TestHydrateChunksEmpty(t *testing.T) {
	r, _ := newTestRetriever(t)

	chunks, err := r.HydrateChunks(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	// Hits without a chunk id are skipped outright.
	chunks, err = r.HydrateChunks(context.Background(), []SearchResult{{DocID: "doc-a", Score: 0.9}})
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestFormatContext(t *testing.T) {
	chunks := []RetrievedChunk{
		{ChunkID: "c1", DocID: "doc-a", Text: "First body.", Title: "Alpha", URL: "https://a"},
		{ChunkID: "c2", DocID: "doc-b", Text: "Second body.", Title: "", URL: "https://b"},
	}

	out := FormatContext(chunks)

	assert.Contains(t, out, "[Source 1] Title: Alpha (Doc ID: doc-a, URL: https://a)\nContent: First body.")
	assert.Contains(t, out, "[Source 2] Title: Untitled (Doc ID: doc-b, URL: https://b)\nContent: Second body.")
	assert.True(t, strings.Index(out, "[Source 1]") < strings.Index(out, "[Source 2]"))

	assert.Empty(t, FormatContext(nil))
}

func TestTruncateToTokens(t *testing.T) {
	chunks := []RetrievedChunk{
		{ChunkID: "c1", Text: strings.Repeat("alpha ", 200)},
		{ChunkID: "c2", Text: strings.Repeat("beta ", 200)},
		{ChunkID: "c3", Text: strings.Repeat("gamma ", 200)},
	}

	// A huge budget keeps everything.
	kept := TruncateToTokens(chunks, "gpt-4o-mini", 1_000_000)
	assert.Len(t, kept, 3)

	// A tiny budget trims from the tail but never below one chunk.
	kept = TruncateToTokens(chunks, "gpt-4o-mini", 10)
	require.NotEmpty(t, kept)
	assert.Equal(t, "c1", kept[0].ChunkID)
	assert.Len(t, kept, 1)
}
