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

package observability

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	globalMetrics Metrics
	metricsMu     sync.RWMutex
)

// Metrics is the recording surface the pipeline uses. All methods must
// be safe to call on a zero-value implementation.
type Metrics interface {
	RecordWorkflowRun(ctx context.Context, duration time.Duration, regenerations int, err error)
	RecordLLMCall(ctx context.Context, model string, duration time.Duration, inputTokens, outputTokens int, err error)
	RecordVectorQuery(ctx context.Context, namespace string, duration time.Duration, err error)
}

type PrometheusMetrics struct {
	workflowDuration    metric.Float64Histogram
	workflowRunsTotal   metric.Int64Counter
	workflowErrorsTotal metric.Int64Counter
	workflowRegensTotal metric.Int64Counter

	llmDuration     metric.Float64Histogram
	llmInputTokens  metric.Int64Counter
	llmOutputTokens metric.Int64Counter
	llmErrorsTotal  metric.Int64Counter

	vectorDuration     metric.Float64Histogram
	vectorQueriesTotal metric.Int64Counter
	vectorErrorsTotal  metric.Int64Counter
}

func NewPrometheusMetrics(
	workflowDuration metric.Float64Histogram,
	workflowRunsTotal metric.Int64Counter,
	workflowErrorsTotal metric.Int64Counter,
	workflowRegensTotal metric.Int64Counter,
	llmDuration metric.Float64Histogram,
	llmInputTokens metric.Int64Counter,
	llmOutputTokens metric.Int64Counter,
	llmErrorsTotal metric.Int64Counter,
	vectorDuration metric.Float64Histogram,
	vectorQueriesTotal metric.Int64Counter,
	vectorErrorsTotal metric.Int64Counter,
) *PrometheusMetrics {
	return &PrometheusMetrics{
		workflowDuration:    workflowDuration,
		workflowRunsTotal:   workflowRunsTotal,
		workflowErrorsTotal: workflowErrorsTotal,
		workflowRegensTotal: workflowRegensTotal,
		llmDuration:         llmDuration,
		llmInputTokens:      llmInputTokens,
		llmOutputTokens:     llmOutputTokens,
		llmErrorsTotal:      llmErrorsTotal,
		vectorDuration:      vectorDuration,
		vectorQueriesTotal:  vectorQueriesTotal,
		vectorErrorsTotal:   vectorErrorsTotal,
	}
}

func (m *PrometheusMetrics) RecordWorkflowRun(ctx context.Context, duration time.Duration, regenerations int, err error) {
	if m == nil || m.workflowDuration == nil || m.workflowRunsTotal == nil {
		return
	}

	m.workflowDuration.Record(ctx, duration.Seconds())
	m.workflowRunsTotal.Add(ctx, 1)

	if regenerations > 0 && m.workflowRegensTotal != nil {
		m.workflowRegensTotal.Add(ctx, int64(regenerations))
	}

	if err != nil && m.workflowErrorsTotal != nil {
		m.workflowErrorsTotal.Add(ctx, 1)
	}
}

func (m *PrometheusMetrics) RecordLLMCall(ctx context.Context, model string, duration time.Duration, inputTokens, outputTokens int, err error) {
	if m == nil || m.llmDuration == nil || m.llmInputTokens == nil || m.llmOutputTokens == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("model", model),
	}

	m.llmDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.llmInputTokens.Add(ctx, int64(inputTokens), metric.WithAttributes(attrs...))
	m.llmOutputTokens.Add(ctx, int64(outputTokens), metric.WithAttributes(attrs...))

	if err != nil && m.llmErrorsTotal != nil {
		m.llmErrorsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func (m *PrometheusMetrics) RecordVectorQuery(ctx context.Context, namespace string, duration time.Duration, err error) {
	if m == nil || m.vectorDuration == nil || m.vectorQueriesTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("namespace", namespace),
	}

	m.vectorDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.vectorQueriesTotal.Add(ctx, 1, metric.WithAttributes(attrs...))

	if err != nil && m.vectorErrorsTotal != nil {
		m.vectorErrorsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func SetGlobalMetrics(m Metrics) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	globalMetrics = m
}

func GetGlobalMetrics() Metrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return globalMetrics
}
