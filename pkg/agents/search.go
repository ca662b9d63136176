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
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/inquiro-ai/inquiro/pkg/ledger"
	"github.com/inquiro-ai/inquiro/pkg/llms"
	"github.com/inquiro-ai/inquiro/pkg/retrieval"
)

// maxSearchResults caps the merged result set carried into synthesis.
const maxSearchResults = 20

const expansionTemperature = 0.3

// Search expands the user query into sub-queries, fans them out over
// the vector store, and merges the hits. Per-query failures are
// tolerated; the node fails only when every sub-query fails.
func (a *Agents) Search(ctx context.Context, state *ResearchState) error {
	profile := ProfileFor(state.Depth)

	queries, err := a.expandQuery(ctx, state.TaskID, state.UserQuery, profile.SubQueries)
	if err != nil {
		return fmt.Errorf("search agent: %w", err)
	}
	state.SearchQueries = queries

	var (
		mu        sync.Mutex
		merged    = make(map[string]retrieval.SearchResult)
		succeeded int
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, query := range queries {
		g.Go(func() error {
			results, embedResult, err := a.retriever.SemanticSearch(gctx, query, profile.TopK)
			if err != nil {
				slog.Warn("Sub-query search failed", "query", query, "error", err)
				return nil
			}
			a.recordEmbedding(state.TaskID, a.retriever.EmbedderModel(), embedResult)

			mu.Lock()
			defer mu.Unlock()
			succeeded++
			for _, r := range results {
				r.OriginQuery = query
				key := r.URL
				if key == "" {
					key = r.DocID
				}
				if current, ok := merged[key]; !ok || r.Score > current.Score {
					merged[key] = r
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("search agent: %w", err)
	}

	if succeeded == 0 {
		return fmt.Errorf("search agent: all %d sub-query searches failed", len(queries))
	}

	results := make([]retrieval.SearchResult, 0, len(merged))
	for _, r := range merged {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > maxSearchResults {
		results = results[:maxSearchResults]
	}

	state.SearchResults = results
	state.setProgress(AgentSearch, ProgressSearch, "Searching knowledge base")

	slog.Debug("Search complete",
		"task_id", state.TaskID,
		"sub_queries", len(queries),
		"succeeded", succeeded,
		"results", len(results))

	return nil
}

// expandQuery asks the model for n focused sub-queries as JSON.
func (a *Agents) expandQuery(ctx context.Context, taskID, topic string, n int) ([]string, error) {
	resp, err := a.llm.Chat(ctx, llms.ChatRequest{
		Messages: []llms.Message{
			{Role: llms.RoleSystem, Content: queryExpansionSystemPrompt},
			{Role: llms.RoleUser, Content: queryExpansionUserPrompt(topic, n)},
		},
		Temperature:  expansionTemperature,
		JSONResponse: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to expand query: %w", err)
	}
	a.recordChat(taskID, ledger.OpQueryExpansion, resp)

	var parsed struct {
		Queries []string `json:"queries"`
	}
	if err := decodeJSONObject(resp.Content, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse query expansion: %w", err)
	}

	queries := make([]string, 0, len(parsed.Queries))
	for _, q := range parsed.Queries {
		if q = strings.TrimSpace(q); q != "" {
			queries = append(queries, q)
		}
	}
	if len(queries) == 0 {
		return nil, fmt.Errorf("query expansion produced no sub-queries")
	}
	if len(queries) > n {
		queries = queries[:n]
	}

	return queries, nil
}
