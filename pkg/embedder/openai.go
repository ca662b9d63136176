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

package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/inquiro-ai/inquiro/pkg/httpclient"
	"github.com/inquiro-ai/inquiro/pkg/llms"
	"github.com/inquiro-ai/inquiro/pkg/observability"
)

// OpenAI caps embedding requests at 2048 inputs; we batch well below
// that to keep request bodies small.
const defaultBatchSize = 100

type OpenAIEmbedder struct {
	apiKey     string
	baseURL    string
	model      string
	dimension  int
	batchSize  int
	httpClient *httpclient.Client
}

type OpenAIOption func(*OpenAIEmbedder)

func WithBaseURL(url string) OpenAIOption {
	return func(e *OpenAIEmbedder) {
		e.baseURL = url
	}
}

func WithBatchSize(size int) OpenAIOption {
	return func(e *OpenAIEmbedder) {
		if size > 0 {
			e.batchSize = size
		}
	}
}

func NewOpenAIEmbedder(apiKey, model string, timeout time.Duration, maxRetries int, opts ...OpenAIOption) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required for OpenAI embedder")
	}

	if model == "" {
		model = "text-embedding-3-small"
	}

	dimension := 1536
	if model == "text-embedding-3-large" {
		dimension = 3072
	}

	e := &OpenAIEmbedder{
		apiKey:    apiKey,
		baseURL:   "https://api.openai.com/v1",
		model:     model,
		dimension: dimension,
		batchSize: defaultBatchSize,
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: timeout}),
			httpclient.WithMaxRetries(maxRetries),
			httpclient.WithHeaderParser(httpclient.ParseOpenAIHeaders),
		),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// Embed embeds texts in input order, batching large inputs.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) (*EmbedResult, error) {
	if len(texts) == 0 {
		return &EmbedResult{}, nil
	}

	tracer := observability.GetTracer("inquiro.embedder")
	ctx, span := tracer.Start(ctx, observability.SpanEmbedRequest,
		trace.WithAttributes(
			attribute.String(observability.AttrLLMModel, e.model),
			attribute.Int("embed.inputs", len(texts)),
		),
	)
	defer span.End()

	result := &EmbedResult{
		Vectors: make([][]float32, 0, len(texts)),
	}

	for i := 0; i < len(texts); i += e.batchSize {
		end := i + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		vectors, promptTokens, err := e.embedBatch(ctx, texts[i:end])
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("failed to embed batch starting at %d: %w", i, err)
		}

		result.Vectors = append(result.Vectors, vectors...)
		result.PromptTokens += promptTokens
	}

	result.Cost = llms.Cost(e.model, result.PromptTokens, 0)
	span.SetAttributes(attribute.Int(observability.AttrLLMTokensInput, result.PromptTokens))
	span.SetStatus(codes.Ok, "success")

	return result, nil
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, int, error) {
	requestBody, err := json.Marshal(embedRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", e.baseURL+"/embeddings", bytes.NewReader(requestBody))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(requestBody)), nil
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.httpClient.Do(req)
	if resp != nil {
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			return nil, 0, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
		}
	}
	if err != nil {
		return nil, 0, fmt.Errorf("HTTP request failed: %w", err)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response: %w", err)
	}

	var response embedResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, 0, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if response.Error != nil {
		return nil, 0, fmt.Errorf("OpenAI API error: %s (type: %s, code: %s)",
			response.Error.Message, response.Error.Type, response.Error.Code)
	}

	if len(response.Data) != len(texts) {
		return nil, 0, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(response.Data))
	}

	// The API documents index-ordered data; sort defensively since order
	// matters to callers.
	sort.Slice(response.Data, func(a, b int) bool {
		return response.Data[a].Index < response.Data[b].Index
	})

	vectors := make([][]float32, len(response.Data))
	for i, d := range response.Data {
		vectors[i] = d.Embedding
	}

	return vectors, response.Usage.PromptTokens, nil
}

func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}

var _ Embedder = (*OpenAIEmbedder)(nil)
