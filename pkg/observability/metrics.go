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
	"fmt"

	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

type MetricsConfig struct {
	Enabled bool
}

// InitMetrics builds the Prometheus-backed metric instruments. When
// disabled an empty recorder is returned; its Record methods are no-ops.
func InitMetrics(ctx context.Context, cfg MetricsConfig) (*PrometheusMetrics, error) {
	if !cfg.Enabled {
		return &PrometheusMetrics{}, nil
	}

	promExporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
	)

	meter := meterProvider.Meter("inquiro")

	workflowDuration, err := meter.Float64Histogram(
		"inquiro_workflow_duration_seconds",
		metric.WithDescription("End-to-end research workflow duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create workflow duration histogram: %w", err)
	}

	workflowRuns, err := meter.Int64Counter(
		"inquiro_workflow_runs_total",
		metric.WithDescription("Total research workflow runs"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create workflow runs counter: %w", err)
	}

	workflowErrors, err := meter.Int64Counter(
		"inquiro_workflow_errors_total",
		metric.WithDescription("Total research workflow failures"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create workflow errors counter: %w", err)
	}

	workflowRegens, err := meter.Int64Counter(
		"inquiro_workflow_regenerations_total",
		metric.WithDescription("Total synthesis regenerations after rejection"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create workflow regenerations counter: %w", err)
	}

	llmDuration, err := meter.Float64Histogram(
		"inquiro_llm_request_duration_seconds",
		metric.WithDescription("LLM request duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm duration histogram: %w", err)
	}

	llmInputTokens, err := meter.Int64Counter(
		"inquiro_llm_tokens_input_total",
		metric.WithDescription("Total input tokens sent to the LLM"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm input tokens counter: %w", err)
	}

	llmOutputTokens, err := meter.Int64Counter(
		"inquiro_llm_tokens_output_total",
		metric.WithDescription("Total output tokens from the LLM"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm output tokens counter: %w", err)
	}

	llmErrors, err := meter.Int64Counter(
		"inquiro_llm_errors_total",
		metric.WithDescription("Total LLM errors"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm errors counter: %w", err)
	}

	vectorDuration, err := meter.Float64Histogram(
		"inquiro_vector_query_duration_seconds",
		metric.WithDescription("Vector store query duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create vector duration histogram: %w", err)
	}

	vectorQueries, err := meter.Int64Counter(
		"inquiro_vector_queries_total",
		metric.WithDescription("Total vector store queries"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create vector queries counter: %w", err)
	}

	vectorErrors, err := meter.Int64Counter(
		"inquiro_vector_errors_total",
		metric.WithDescription("Total vector store errors"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create vector errors counter: %w", err)
	}

	return NewPrometheusMetrics(
		workflowDuration,
		workflowRuns,
		workflowErrors,
		workflowRegens,
		llmDuration,
		llmInputTokens,
		llmOutputTokens,
		llmErrors,
		vectorDuration,
		vectorQueries,
		vectorErrors,
	), nil
}
