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

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/inquiro-ai/inquiro/pkg/agents"
	"github.com/inquiro-ai/inquiro/pkg/blobstore"
	"github.com/inquiro-ai/inquiro/pkg/config"
	"github.com/inquiro-ai/inquiro/pkg/embedder"
	"github.com/inquiro-ai/inquiro/pkg/executor"
	"github.com/inquiro-ai/inquiro/pkg/graph"
	"github.com/inquiro-ai/inquiro/pkg/ledger"
	"github.com/inquiro-ai/inquiro/pkg/llms"
	"github.com/inquiro-ai/inquiro/pkg/observability"
	"github.com/inquiro-ai/inquiro/pkg/retrieval"
	"github.com/inquiro-ai/inquiro/pkg/server"
	"github.com/inquiro-ai/inquiro/pkg/taskstore"
	"github.com/inquiro-ai/inquiro/pkg/vectordb"
)

// shutdownTimeout bounds the graceful drain of HTTP and the executor.
const shutdownTimeout = 30 * time.Second

// ServeCmd starts the research API server.
type ServeCmd struct {
	Host string `help:"Bind host (overrides API_HOST)."`
	Port int    `help:"Bind port (overrides API_PORT)."`
}

func (c *ServeCmd) Run() error {
	if err := config.LoadEnvFiles(); err != nil {
		return err
	}

	cfg := config.Load()
	if c.Host != "" {
		cfg.APIHost = c.Host
	}
	if c.Port != 0 {
		cfg.APIPort = c.Port
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx := context.Background()

	// Observability first so everything downstream records into it.
	if _, err := observability.InitGlobalTracer(ctx, observability.TracerConfig{
		Enabled:      cfg.TracingEnabled,
		EndpointURL:  cfg.TracingEndpoint,
		SamplingRate: 1.0,
		ServiceName:  observability.DefaultServiceName,
	}); err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	metrics, err := observability.InitMetrics(ctx, observability.MetricsConfig{Enabled: cfg.MetricsEnabled})
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	observability.SetGlobalMetrics(metrics)

	// External collaborators.
	llm := llms.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.SmallModel, cfg.LLMTimeout, cfg.LLMMaxRetries,
		llms.WithBaseURL(cfg.OpenAIBaseURL))
	defer llm.Close()

	emb, err := embedder.NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.EmbedModel, cfg.LLMTimeout, cfg.LLMMaxRetries,
		embedder.WithBaseURL(cfg.OpenAIBaseURL))
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %w", err)
	}

	vectors, err := vectordb.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize vector store: %w", err)
	}
	defer vectors.Close()

	blobs, err := blobstore.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize blob store: %w", err)
	}

	// Persistence.
	store, err := taskstore.Open(cfg.TaskDBPath)
	if err != nil {
		return fmt.Errorf("failed to open task store: %w", err)
	}
	defer store.Close()

	ld := ledger.New(cfg.LedgerPath)
	if err := ld.Load(); err != nil {
		return fmt.Errorf("failed to load cost ledger: %w", err)
	}

	// Workflow.
	retriever := retrieval.NewRetriever(emb, vectors, blobs, cfg.SearchNamespace)
	workflow, err := graph.NewResearchWorkflow(agents.New(llm, retriever, ld))
	if err != nil {
		return fmt.Errorf("failed to compile workflow: %w", err)
	}

	exec := executor.New(workflow, store,
		executor.WithWorkers(cfg.Workers),
		executor.WithQueueSize(cfg.QueueDepth),
		executor.WithLedger(ld),
		executor.WithBlobStore(blobs),
	)
	exec.Start()

	serverOpts := []server.Option{
		server.WithRateLimit(cfg.RateLimitPerMinute),
		server.WithStatusCacheTTL(cfg.StatusCacheTTL),
	}
	if cfg.MetricsEnabled {
		serverOpts = append(serverOpts, server.WithMetricsHandler())
	}
	srv := server.New(store, exec, ld, serverOpts...)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(cfg.Address())
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("Shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Stop intake first, then drain running workflows, then persist
	// the ledger.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown incomplete", "error", err)
	}
	if err := exec.Shutdown(shutdownCtx); err != nil {
		slog.Warn("Executor drain incomplete", "error", err)
	}
	if err := ld.Flush(); err != nil {
		slog.Warn("Ledger flush failed", "error", err)
	}

	slog.Info("Shutdown complete")
	return nil
}
