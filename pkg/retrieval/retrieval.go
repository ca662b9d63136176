// Copyright 2025 The Inquiro Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package retrieval implements the semantic-search substrate: query
// embedding, vector search, chunk hydration from the blob store, and
// numbered-context assembly. The numbering produced by FormatContext is
// the authoritative citation namespace for a single run.
package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/inquiro-ai/inquiro/pkg/blobstore"
	"github.com/inquiro-ai/inquiro/pkg/embedder"
	"github.com/inquiro-ai/inquiro/pkg/observability"
	"github.com/inquiro-ai/inquiro/pkg/vectordb"
)

// Chunk text beyond this is truncated before entering the context.
const maxChunkBytes = 40 * 1024

// hydrateConcurrency bounds parallel blob fetches during hydration.
const hydrateConcurrency = 8

// SearchResult is one scored hit from semantic search.
type SearchResult struct {
	DocID       string         `json:"doc_id"`
	ChunkID     string         `json:"chunk_id,omitempty"`
	Score       float32        `json:"score"`
	Text        string         `json:"text"`
	Title       string         `json:"title"`
	URL         string         `json:"url"`
	OriginQuery string         `json:"origin_query,omitempty"`
	Metadata    map[string]any `json:"extra_metadata,omitempty"`
}

// RetrievedChunk is a fully hydrated source chunk. Position in the
// chunk slice (1-based) is its citation number.
type RetrievedChunk struct {
	ChunkID string  `json:"chunk_id"`
	DocID   string  `json:"doc_id"`
	Text    string  `json:"text"`
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Score   float32 `json:"score"`
}

// chunkBlob is the silver-layer JSON shape for a stored chunk.
type chunkBlob struct {
	ChunkID string `json:"chunk_id"`
	DocID   string `json:"doc_id"`
	Text    string `json:"text"`
	Title   string `json:"title"`
	URL     string `json:"url"`
}

// Retriever binds the embedder, vector store, and blob store into the
// retrieval operations the agents consume.
type Retriever struct {
	embedder  embedder.Embedder
	vectors   vectordb.VectorStore
	blobs     blobstore.BlobStore
	namespace string
}

func NewRetriever(emb embedder.Embedder, vectors vectordb.VectorStore, blobs blobstore.BlobStore, namespace string) *Retriever {
	return &Retriever{
		embedder:  emb,
		vectors:   vectors,
		blobs:     blobs,
		namespace: namespace,
	}
}

// EmbedderModel returns the model name of the underlying embedder,
// for cost attribution.
func (r *Retriever) EmbedderModel() string {
	return r.embedder.ModelName()
}

// SemanticSearch embeds the query and returns up to topK matches sorted
// by descending similarity. The embed result is returned so callers can
// attribute its cost.
func (r *Retriever) SemanticSearch(ctx context.Context, query string, topK int) ([]SearchResult, *embedder.EmbedResult, error) {
	if topK <= 0 {
		return nil, nil, vectordb.ErrInvalidTopK
	}

	tracer := observability.GetTracer("inquiro.retrieval")
	ctx, span := tracer.Start(ctx, observability.SpanVectorQuery,
		trace.WithAttributes(
			attribute.String(observability.AttrVectorNamespace, r.namespace),
			attribute.Int(observability.AttrVectorTopK, topK),
		),
	)
	defer span.End()

	embedResult, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(embedResult.Vectors) == 0 {
		err := fmt.Errorf("embedder returned no vectors for query")
		span.RecordError(err)
		return nil, nil, err
	}

	start := time.Now()
	matches, err := r.vectors.Query(ctx, r.namespace, embedResult.Vectors[0], topK)
	duration := time.Since(start)

	if metrics := observability.GetGlobalMetrics(); metrics != nil {
		metrics.RecordVectorQuery(ctx, r.namespace, duration, err)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, fmt.Errorf("failed to query vector store: %w", err)
	}

	results := make([]SearchResult, 0, len(matches))
	for _, m := range matches {
		results = append(results, matchToResult(m))
	}

	span.SetAttributes(attribute.Int("vector.matches", len(results)))
	span.SetStatus(codes.Ok, "success")

	return results, embedResult, nil
}

func matchToResult(m vectordb.Match) SearchResult {
	result := SearchResult{
		Score:    m.Score,
		Metadata: m.Metadata,
	}

	result.DocID = metaString(m.Metadata, "doc_id")
	result.ChunkID = metaString(m.Metadata, "chunk_id")
	if result.ChunkID == "" {
		result.ChunkID = m.ID
	}
	result.Title = metaString(m.Metadata, "title")
	result.URL = metaString(m.Metadata, "url")

	result.Text = metaString(m.Metadata, "text")
	if result.Text == "" {
		result.Text = metaString(m.Metadata, "content")
	}

	return result
}

func metaString(metadata map[string]any, key string) string {
	if v, ok := metadata[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// HydrateChunks fetches full chunk bodies from the blob store for the
// given hits, carrying each hit's relevance score onto the hydrated
// chunk. Missing or malformed chunks are logged and skipped; output
// preserves the input order.
func (r *Retriever) HydrateChunks(ctx context.Context, hits []SearchResult) ([]RetrievedChunk, error) {
	if len(hits) == 0 {
		return nil, nil
	}

	tracer := observability.GetTracer("inquiro.retrieval")
	ctx, span := tracer.Start(ctx, observability.SpanBlobFetch,
		trace.WithAttributes(attribute.Int("blob.requested", len(hits))),
	)
	defer span.End()

	hydrated := make([]*RetrievedChunk, len(hits))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(hydrateConcurrency)

	for i, hit := range hits {
		if hit.ChunkID == "" {
			continue
		}
		g.Go(func() error {
			data, err := r.blobs.Get(gctx, blobstore.ChunkKey(hit.ChunkID))
			if err != nil {
				slog.Warn("Skipping chunk: fetch failed", "chunk_id", hit.ChunkID, "error", err)
				return nil
			}

			var blob chunkBlob
			if err := json.Unmarshal(data, &blob); err != nil {
				slog.Warn("Skipping chunk: malformed JSON", "chunk_id", hit.ChunkID, "error", err)
				return nil
			}

			if blob.ChunkID == "" {
				blob.ChunkID = hit.ChunkID
			}
			blob.Text = truncateBytes(blob.Text, maxChunkBytes)

			hydrated[i] = &RetrievedChunk{
				ChunkID: blob.ChunkID,
				DocID:   blob.DocID,
				Text:    blob.Text,
				Title:   blob.Title,
				URL:     blob.URL,
				Score:   hit.Score,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	chunks := make([]RetrievedChunk, 0, len(hits))
	for _, c := range hydrated {
		if c != nil {
			chunks = append(chunks, *c)
		}
	}

	span.SetAttributes(attribute.Int("blob.hydrated", len(chunks)))
	return chunks, nil
}

// truncateBytes cuts s to at most limit bytes without splitting a
// UTF-8 rune at the boundary.
func truncateBytes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}

// FormatContext numbers chunks 1..N in the given order and renders the
// context the synthesis prompt cites against.
func FormatContext(chunks []RetrievedChunk) string {
	if len(chunks) == 0 {
		return ""
	}

	var b strings.Builder
	for i, chunk := range chunks {
		title := chunk.Title
		if title == "" {
			title = "Untitled"
		}

		fmt.Fprintf(&b, "[Source %d] Title: %s (Doc ID: %s, URL: %s)\nContent: %s\n\n",
			i+1, title, chunk.DocID, chunk.URL, chunk.Text)
	}

	return b.String()
}
