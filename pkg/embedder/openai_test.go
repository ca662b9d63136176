package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type embedServerResponse struct {
	Data []map[string]any `json:"data"`
	Usage map[string]int  `json:"usage"`
}

func newTestEmbedder(t *testing.T, handler http.HandlerFunc, opts ...OpenAIOption) *OpenAIEmbedder {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	opts = append(opts, WithBaseURL(server.URL))
	e, err := NewOpenAIEmbedder("sk-test", "text-embedding-3-small", 5*time.Second, 0, opts...)
	require.NoError(t, err)
	return e
}

func TestNewOpenAIEmbedder(t *testing.T) {
	_, err := NewOpenAIEmbedder("", "text-embedding-3-small", time.Second, 0)
	require.Error(t, err)

	e, err := NewOpenAIEmbedder("sk-test", "", time.Second, 0)
	require.NoError(t, err)
	assert.Equal(t, "text-embedding-3-small", e.ModelName())
	assert.Equal(t, 1536, e.Dimension())

	large, err := NewOpenAIEmbedder("sk-test", "text-embedding-3-large", time.Second, 0)
	require.NoError(t, err)
	assert.Equal(t, 3072, large.Dimension())
}

func TestEmbed(t *testing.T) {
	e := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)

		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req.Model)

		resp := embedServerResponse{Usage: map[string]int{"prompt_tokens": 12 * len(req.Input)}}
		// Return data out of order to exercise index sorting.
		for i := len(req.Input) - 1; i >= 0; i-- {
			resp.Data = append(resp.Data, map[string]any{
				"embedding": []float32{float32(i), float32(i) + 0.5},
				"index":     i,
			})
		}
		_ = json.NewEncoder(w).Encode(resp)
	})

	result, err := e.Embed(context.Background(), []string{"alpha", "beta", "gamma"})
	require.NoError(t, err)

	require.Len(t, result.Vectors, 3)
	assert.Equal(t, []float32{0, 0.5}, result.Vectors[0])
	assert.Equal(t, []float32{2, 2.5}, result.Vectors[2])
	assert.Equal(t, 36, result.PromptTokens)
	assert.Greater(t, result.Cost, 0.0)
}

func TestEmbedBatching(t *testing.T) {
	var batchSizes []int
	e := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		batchSizes = append(batchSizes, len(req.Input))

		resp := embedServerResponse{Usage: map[string]int{"prompt_tokens": len(req.Input)}}
		for i := range req.Input {
			resp.Data = append(resp.Data, map[string]any{
				"embedding": []float32{1},
				"index":     i,
			})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}, WithBatchSize(2))

	result, err := e.Embed(context.Background(), []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)

	assert.Equal(t, []int{2, 2, 1}, batchSizes)
	assert.Len(t, result.Vectors, 5)
	assert.Equal(t, 5, result.PromptTokens)
}

func TestEmbedEmpty(t *testing.T) {
	e, err := NewOpenAIEmbedder("sk-test", "text-embedding-3-small", time.Second, 0)
	require.NoError(t, err)

	result, err := e.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, result.Vectors)
	assert.Zero(t, result.Cost)
}

func TestEmbedAPIError(t *testing.T) {
	e := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "input too long", "type": "invalid_request_error"},
		})
	})

	_, err := e.Embed(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input too long")
}

func TestEmbedCountMismatch(t *testing.T) {
	e := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(embedServerResponse{
			Data:  []map[string]any{{"embedding": []float32{1}, "index": 0}},
			Usage: map[string]int{"prompt_tokens": 1},
		})
	})

	_, err := e.Embed(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 2 embeddings")
}
