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

package agents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/inquiro-ai/inquiro/pkg/ledger"
	"github.com/inquiro-ai/inquiro/pkg/llms"
	"github.com/inquiro-ai/inquiro/pkg/retrieval"
)

// ErrNoEvidence indicates synthesis had zero chunks to work from.
var ErrNoEvidence = errors.New("no evidence chunks available for synthesis")

const (
	// maxContextChunks caps the citation namespace size.
	maxContextChunks = 30

	// minContextChunks is the level below which evidence is considered
	// thin (acceptable but logged).
	minContextChunks = 5

	// broadRecallTopK is the direct-query search that complements the
	// expanded sub-queries.
	broadRecallTopK = 15

	synthesisTemperature = 0.3
)

// Synthesize assembles the citation context and drafts the report.
// The chunk list stored in state is the authoritative citation
// namespace the validator checks against.
func (a *Agents) Synthesize(ctx context.Context, state *ResearchState) error {
	profile := ProfileFor(state.Depth)

	chunks := resultsToChunks(state.SearchResults)

	// Broader recall pass on the raw query; its hits hydrate from the
	// blob store. Failures here only narrow the evidence.
	results, embedResult, err := a.retriever.SemanticSearch(ctx, state.UserQuery, broadRecallTopK)
	if err != nil {
		slog.Warn("Broad recall search failed", "task_id", state.TaskID, "error", err)
	} else {
		a.recordEmbedding(state.TaskID, a.retriever.EmbedderModel(), embedResult)

		hydrated, err := a.retriever.HydrateChunks(ctx, results)
		if err != nil {
			slog.Warn("Chunk hydration failed", "task_id", state.TaskID, "error", err)
		} else {
			chunks = append(chunks, hydrated...)
		}
	}

	chunks = dedupeChunks(chunks)
	if len(chunks) > maxContextChunks {
		chunks = chunks[:maxContextChunks]
	}
	if len(chunks) == 0 {
		return fmt.Errorf("synthesis agent: %w", ErrNoEvidence)
	}
	if len(chunks) < minContextChunks {
		slog.Warn("Thin evidence for synthesis", "task_id", state.TaskID, "chunks", len(chunks))
	}

	chunks = retrieval.TruncateToTokens(chunks, a.llm.ModelName(), profile.MaxContextTokens)
	sourceContext := retrieval.FormatContext(chunks)

	resp, err := a.llm.Chat(ctx, llms.ChatRequest{
		Messages: []llms.Message{
			{Role: llms.RoleSystem, Content: synthesisSystemPrompt},
			{Role: llms.RoleUser, Content: synthesisUserPrompt(state.UserQuery, sourceContext)},
		},
		Temperature: synthesisTemperature,
		MaxTokens:   profile.MaxReportTokens,
	})
	if err != nil {
		return fmt.Errorf("synthesis agent: %w", err)
	}
	a.recordChat(state.TaskID, ledger.OpSynthesis, resp)

	state.ReportDraft = resp.Content
	state.RetrievedChunks = chunks
	state.SourceCount = len(chunks)
	state.setProgress(AgentSynthesis, ProgressSynthesis, "Synthesizing report")

	slog.Debug("Synthesis complete",
		"task_id", state.TaskID,
		"chunks", len(chunks),
		"report_bytes", len(resp.Content))

	return nil
}

// resultsToChunks converts scored search hits into chunk shape.
func resultsToChunks(results []retrieval.SearchResult) []retrieval.RetrievedChunk {
	chunks := make([]retrieval.RetrievedChunk, 0, len(results))
	for _, r := range results {
		chunks = append(chunks, retrieval.RetrievedChunk{
			ChunkID: r.ChunkID,
			DocID:   r.DocID,
			Text:    r.Text,
			Title:   r.Title,
			URL:     r.URL,
			Score:   r.Score,
		})
	}
	return chunks
}

// dedupeChunks removes duplicates by chunk_id (doc_id when chunk_id is
// empty), keeping the first occurrence so ordering is preserved.
func dedupeChunks(chunks []retrieval.RetrievedChunk) []retrieval.RetrievedChunk {
	seen := make(map[string]bool, len(chunks))
	out := chunks[:0:0]
	for _, c := range chunks {
		key := c.ChunkID
		if key == "" {
			key = c.DocID
		}
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}
