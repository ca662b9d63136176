package agents

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inquiro-ai/inquiro/pkg/blobstore"
	"github.com/inquiro-ai/inquiro/pkg/embedder"
	"github.com/inquiro-ai/inquiro/pkg/ledger"
	"github.com/inquiro-ai/inquiro/pkg/llms"
	"github.com/inquiro-ai/inquiro/pkg/retrieval"
	"github.com/inquiro-ai/inquiro/pkg/taskstore"
	"github.com/inquiro-ai/inquiro/pkg/vectordb"
)

// stubLLM replays canned responses in order.
type stubLLM struct {
	mu        sync.Mutex
	responses []string
	err       error
	requests  []llms.ChatRequest
}

func (s *stubLLM) Chat(ctx context.Context, req llms.ChatRequest) (*llms.ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	content := "{}"
	if len(s.responses) > 0 {
		content = s.responses[0]
		s.responses = s.responses[1:]
	}
	return &llms.ChatResponse{
		Content:          content,
		Model:            "gpt-4o-mini",
		PromptTokens:     100,
		CompletionTokens: 50,
		Cost:             0.0001,
		Duration:         10 * time.Millisecond,
	}, nil
}

func (s *stubLLM) ModelName() string { return "gpt-4o-mini" }
func (s *stubLLM) Close() error      { return nil }

type stubEmbedder struct {
	err error
}

func (s *stubEmbedder) Embed(ctx context.Context, texts []string) (*embedder.EmbedResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 0}
	}
	return &embedder.EmbedResult{Vectors: vectors, PromptTokens: 5, Cost: 0.00001}, nil
}

func (s *stubEmbedder) Dimension() int    { return 2 }
func (s *stubEmbedder) ModelName() string { return "text-embedding-3-small" }

func newTestAgents(t *testing.T, llm *stubLLM, emb embedder.Embedder, seed int) (*Agents, *ledger.Ledger) {
	t.Helper()

	vectors := vectordb.NewChromemStore()
	blobs := blobstore.NewMemoryStore()
	ctx := context.Background()

	for i := 1; i <= seed; i++ {
		id := fmt.Sprintf("chunk-%d", i)
		meta := map[string]any{
			"doc_id":   fmt.Sprintf("doc-%d", i),
			"chunk_id": id,
			"title":    fmt.Sprintf("Paper %d", i),
			"url":      fmt.Sprintf("https://example.org/%d", i),
			"text":     fmt.Sprintf("Finding number %d.", i),
		}
		vector := []float32{1, float32(i) * 0.01}
		require.NoError(t, vectors.Upsert(ctx, "research_papers", id, vector, meta))

		body := fmt.Sprintf(`{"chunk_id":%q,"doc_id":"doc-%d","text":"Finding number %d.","title":"Paper %d","url":"https://example.org/%d"}`,
			id, i, i, i, i)
		require.NoError(t, blobs.Put(ctx, blobstore.ChunkKey(id), []byte(body)))
	}

	ld := ledger.New(t.TempDir() + "/costs.json")
	retriever := retrieval.NewRetriever(emb, vectors, blobs, "research_papers")
	return New(llm, retriever, ld), ld
}

func TestExtractCitations(t *testing.T) {
	tests := []struct {
		name   string
		report string
		want   []int
	}{
		{"none", "No citations here.", nil},
		{"single", "Claim [Source 1].", []int{1}},
		{"case and whitespace", "A [source 2] B [SOURCE  3] C [Source\t4]", []int{2, 3, 4}},
		{"dedupe keeps first order", "[Source 3] then [Source 1] then [Source 3]", []int{3, 1}},
		{"ignores malformed", "[Source] [Source x] [Source 5]", []int{5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractCitations(tt.report))
		})
	}
}

func TestInvalidCitations(t *testing.T) {
	assert.Nil(t, InvalidCitations([]int{1, 2, 3}, 3))
	assert.Equal(t, []int{0, 4, 99}, InvalidCitations([]int{4, 99, 2, 0}, 3))
}

func TestDecodeJSONObject(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"bare object", `{"queries": ["a"]}`, false},
		{"markdown fence", "```json\n{\"queries\": [\"a\"]}\n```", false},
		{"surrounding prose", `Here you go: {"queries": ["a"]} hope that helps`, false},
		{"brace inside string", `{"queries": ["a {weird} one"]}`, false},
		{"no json", "sorry, I cannot do that", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var parsed struct {
				Queries []string `json:"queries"`
			}
			err := decodeJSONObject(tt.content, &parsed)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, parsed.Queries)
		})
	}
}

func TestSearch(t *testing.T) {
	llm := &stubLLM{responses: []string{
		`{"queries": ["transformer architectures", "attention mechanisms", "scaling laws"]}`,
	}}
	a, ld := newTestAgents(t, llm, &stubEmbedder{}, 8)

	state := &ResearchState{TaskID: "t1", UserQuery: "transformers in NLP", Depth: taskstore.DepthStandard}
	require.NoError(t, a.Search(context.Background(), state))

	assert.Equal(t, []string{"transformer architectures", "attention mechanisms", "scaling laws"}, state.SearchQueries)
	require.NotEmpty(t, state.SearchResults)
	assert.LessOrEqual(t, len(state.SearchResults), maxSearchResults)

	// Identical hits across sub-queries are deduplicated.
	seen := map[string]bool{}
	for _, r := range state.SearchResults {
		assert.False(t, seen[r.URL], "duplicate url %s", r.URL)
		seen[r.URL] = true
		assert.NotEmpty(t, r.OriginQuery)
	}

	// Sorted by descending score.
	for i := 1; i < len(state.SearchResults); i++ {
		assert.GreaterOrEqual(t, state.SearchResults[i-1].Score, state.SearchResults[i].Score)
	}

	assert.Equal(t, AgentSearch, state.CurrentAgent)
	assert.Equal(t, ProgressSearch, state.Progress)

	// Expansion and per-query embeddings are in the ledger.
	assert.Equal(t, 1, ld.TotalsByOperation(ledger.OpQueryExpansion).Records)
	assert.Equal(t, 3, ld.TotalsByOperation(ledger.OpEmbedding).Records)
}

func TestSearchExpansionRecovery(t *testing.T) {
	llm := &stubLLM{responses: []string{
		"Sure! Here are the queries:\n```json\n{\"queries\": [\"only one\"]}\n```",
	}}
	a, _ := newTestAgents(t, llm, &stubEmbedder{}, 3)

	state := &ResearchState{UserQuery: "anything", Depth: taskstore.DepthQuick}
	require.NoError(t, a.Search(context.Background(), state))
	assert.Equal(t, []string{"only one"}, state.SearchQueries)
}

func TestSearchExpansionFailure(t *testing.T) {
	llm := &stubLLM{err: fmt.Errorf("rate limited")}
	a, _ := newTestAgents(t, llm, &stubEmbedder{}, 3)

	state := &ResearchState{UserQuery: "anything", Depth: taskstore.DepthQuick}
	err := a.Search(context.Background(), state)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to expand query")
}

func TestSearchExpansionEmpty(t *testing.T) {
	llm := &stubLLM{responses: []string{`{"queries": ["", "  "]}`}}
	a, _ := newTestAgents(t, llm, &stubEmbedder{}, 3)

	state := &ResearchState{UserQuery: "anything", Depth: taskstore.DepthQuick}
	err := a.Search(context.Background(), state)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no sub-queries")
}

func TestSearchAllSubQueriesFail(t *testing.T) {
	llm := &stubLLM{responses: []string{`{"queries": ["a", "b"]}`}}
	a, _ := newTestAgents(t, llm, &stubEmbedder{err: fmt.Errorf("embedder down")}, 3)

	state := &ResearchState{UserQuery: "anything", Depth: taskstore.DepthQuick}
	err := a.Search(context.Background(), state)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sub-query searches failed")
}

func TestSynthesize(t *testing.T) {
	llm := &stubLLM{responses: []string{
		"# Report\n\nTransformers changed NLP [Source 1]. Attention matters [Source 2].",
	}}
	a, ld := newTestAgents(t, llm, &stubEmbedder{}, 6)

	state := &ResearchState{
		TaskID:    "t1",
		UserQuery: "transformers in NLP",
		Depth:     taskstore.DepthStandard,
		Progress:  ProgressSearch,
		SearchResults: []retrieval.SearchResult{
			{ChunkID: "chunk-1", DocID: "doc-1", Title: "Paper 1", URL: "https://example.org/1", Text: "Finding number 1.", Score: 0.99},
		},
	}
	require.NoError(t, a.Synthesize(context.Background(), state))

	assert.Contains(t, state.ReportDraft, "[Source 1]")
	require.NotEmpty(t, state.RetrievedChunks)
	assert.Equal(t, len(state.RetrievedChunks), state.SourceCount)
	assert.LessOrEqual(t, state.SourceCount, maxContextChunks)

	// chunk-1 came in via search results; broad recall must not
	// duplicate it.
	count := 0
	for _, c := range state.RetrievedChunks {
		if c.ChunkID == "chunk-1" {
			count++
		}
	}
	assert.Equal(t, 1, count)

	// Search results lead the citation namespace.
	assert.Equal(t, "chunk-1", state.RetrievedChunks[0].ChunkID)

	assert.Equal(t, ProgressSynthesis, state.Progress)
	assert.Equal(t, 1, ld.TotalsByOperation(ledger.OpSynthesis).Records)

	// The synthesis request carried the numbered context.
	last := llm.requests[len(llm.requests)-1]
	assert.Contains(t, last.Messages[1].Content, "[Source 1]")
	assert.Equal(t, 2000, last.MaxTokens)
}

func TestSynthesizeBroadRecallKeepsScores(t *testing.T) {
	llm := &stubLLM{responses: []string{"# Report\n\nFindings [Source 1]."}}
	a, _ := newTestAgents(t, llm, &stubEmbedder{}, 4)

	// No search results: every chunk enters the context through the
	// broad recall pass and hydration.
	state := &ResearchState{
		TaskID:    "t-recall",
		UserQuery: "transformers in NLP",
		Depth:     taskstore.DepthStandard,
	}
	require.NoError(t, a.Synthesize(context.Background(), state))

	require.NotEmpty(t, state.RetrievedChunks)
	for _, c := range state.RetrievedChunks {
		assert.Greater(t, c.Score, float32(0), "chunk %s lost its relevance score", c.ChunkID)
	}
}

func TestSynthesizeNoEvidence(t *testing.T) {
	llm := &stubLLM{}
	a, _ := newTestAgents(t, llm, &stubEmbedder{}, 0)

	state := &ResearchState{UserQuery: "obscure topic", Depth: taskstore.DepthStandard}
	err := a.Synthesize(context.Background(), state)
	assert.ErrorIs(t, err, ErrNoEvidence)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name           string
		report         string
		sourceCount    int
		judgeResponse  string
		wantConfidence float64
		wantHITL       bool
		wantInvalid    []int
		wantContra     bool
	}{
		{
			name:           "clean report",
			report:         "Good [Source 1] and [Source 2].",
			sourceCount:    5,
			judgeResponse:  `{"valid": true, "confidence": 0.85, "issues": [], "citation_coverage": 0.9, "unsupported_claims": []}`,
			wantConfidence: 0.85,
			wantHITL:       false,
		},
		{
			name:           "invalid citation",
			report:         "Bad [Source 99].",
			sourceCount:    5,
			judgeResponse:  `{"valid": true, "confidence": 0.85, "issues": [], "citation_coverage": 0.9, "unsupported_claims": []}`,
			wantConfidence: 0.55,
			wantHITL:       true,
			wantInvalid:    []int{99},
		},
		{
			name:           "unsupported claims pile up",
			report:         "Fine [Source 1].",
			sourceCount:    5,
			judgeResponse:  `{"valid": false, "confidence": 0.8, "issues": [], "citation_coverage": 0.5, "unsupported_claims": ["a", "b", "c"]}`,
			wantConfidence: 0.6,
			wantHITL:       true,
		},
		{
			name:           "contradiction mined from issues",
			report:         "Fine [Source 1].",
			sourceCount:    5,
			judgeResponse:  `{"valid": false, "confidence": 0.9, "issues": ["section 2 contradicts section 4"], "citation_coverage": 0.8, "unsupported_claims": []}`,
			wantConfidence: 0.6,
			wantHITL:       true,
			wantContra:     true,
		},
		{
			name:           "deductions clamp at zero",
			report:         "Bad [Source 99].",
			sourceCount:    5,
			judgeResponse:  `{"valid": false, "confidence": 0.2, "issues": ["inconsistent numbers"], "citation_coverage": 0.1, "unsupported_claims": ["a","b","c"]}`,
			wantConfidence: 0,
			wantHITL:       true,
			wantInvalid:    []int{99},
			wantContra:     true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := &stubLLM{responses: []string{tt.judgeResponse}}
			a, _ := newTestAgents(t, llm, &stubEmbedder{}, 0)

			state := &ResearchState{
				ReportDraft: tt.report,
				SourceCount: tt.sourceCount,
			}
			require.NoError(t, a.Validate(context.Background(), state))

			assert.InDelta(t, tt.wantConfidence, state.ConfidenceScore, 1e-9)
			assert.Equal(t, tt.wantHITL, state.NeedsHITL)
			require.NotNil(t, state.ValidationResult)
			assert.Equal(t, tt.wantInvalid, state.ValidationResult.InvalidCitations)
			assert.Equal(t, tt.wantContra, state.ValidationResult.HasContradictions)
			assert.InDelta(t, tt.wantConfidence, state.ValidationResult.FinalConfidence, 1e-9)
		})
	}
}

func TestValidateJudgeFailureDegrades(t *testing.T) {
	llm := &stubLLM{err: fmt.Errorf("model overloaded")}
	a, _ := newTestAgents(t, llm, &stubEmbedder{}, 0)

	state := &ResearchState{ReportDraft: "Fine [Source 1].", SourceCount: 3}
	require.NoError(t, a.Validate(context.Background(), state))

	assert.InDelta(t, degradedConfidence, state.ConfidenceScore, 1e-9)
	assert.True(t, state.NeedsHITL)
	require.NotEmpty(t, state.ValidationResult.Issues)
	assert.Contains(t, state.ValidationResult.Issues[0], "validator unavailable")
}

func TestReview(t *testing.T) {
	a, _ := newTestAgents(t, &stubLLM{}, &stubEmbedder{}, 0)
	ctx := context.Background()

	// Auto-advance when no review is needed.
	state := &ResearchState{ReportDraft: "# Report", NeedsHITL: false}
	require.NoError(t, a.Review(ctx, state))
	assert.Equal(t, "# Report", state.FinalReport)

	// Pending review leaves the final report unset.
	state = &ResearchState{ReportDraft: "# Report", NeedsHITL: true}
	require.NoError(t, a.Review(ctx, state))
	assert.Empty(t, state.FinalReport)

	require.NoError(t, a.Finalize(ctx, state))
	assert.Equal(t, "# Report", state.FinalReport)
}

func TestProfileFor(t *testing.T) {
	assert.Equal(t, 3, ProfileFor(taskstore.DepthQuick).SubQueries)
	assert.Equal(t, 10, ProfileFor(taskstore.DepthStandard).TopK)
	assert.Equal(t, 3000, ProfileFor(taskstore.DepthComprehensive).MaxReportTokens)
	// Unknown depth falls back to standard.
	assert.Equal(t, ProfileFor(taskstore.DepthStandard), ProfileFor(taskstore.Depth("weird")))
}
