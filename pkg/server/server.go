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

// Package server is the HTTP API of the research orchestration
// service. It validates input, enforces per-principal rate limits, and
// never blocks a request on workflow completion.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/inquiro-ai/inquiro/pkg/executor"
	"github.com/inquiro-ai/inquiro/pkg/ledger"
	"github.com/inquiro-ai/inquiro/pkg/taskstore"
)

const (
	DefaultRateLimitPerMinute = 5
	DefaultStatusCacheTTL     = 2 * time.Second

	// Query length bounds on submissions.
	minQueryLength = 10
	maxQueryLength = 500
)

// Server wires the HTTP surface to the task store and executor.
type Server struct {
	store   *taskstore.Store
	exec    *executor.Executor
	ledger  *ledger.Ledger
	router  chi.Router
	cache   *statusCache
	limiter *rateLimiter

	metricsEnabled bool
	httpServer     *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithRateLimit overrides the per-principal submissions per minute.
func WithRateLimit(perMinute int) Option {
	return func(s *Server) {
		if perMinute > 0 {
			s.limiter = newRateLimiter(perMinute)
		}
	}
}

// WithStatusCacheTTL overrides the status response cache TTL. Zero
// disables the cache.
func WithStatusCacheTTL(ttl time.Duration) Option {
	return func(s *Server) { s.cache = newStatusCache(ttl) }
}

// WithMetricsHandler exposes Prometheus metrics at /metrics.
func WithMetricsHandler() Option {
	return func(s *Server) { s.metricsEnabled = true }
}

// New builds the server and its routes. The ledger may be nil; the
// costs endpoint then returns empty totals.
func New(store *taskstore.Store, exec *executor.Executor, ld *ledger.Ledger, opts ...Option) *Server {
	s := &Server{
		store:   store,
		exec:    exec,
		ledger:  ld,
		cache:   newStatusCache(DefaultStatusCacheTTL),
		limiter: newRateLimiter(DefaultRateLimitPerMinute),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware)
	r.Use(recoveryMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/research", s.handleCreateResearch)
		r.Get("/research", s.handleListResearch)
		r.Get("/status/{taskID}", s.handleStatus)
		r.Get("/report/{taskID}", s.handleReport)
		r.Post("/review/{taskID}", s.handleReview)
		r.Get("/costs/{taskID}", s.handleCosts)
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	s.router = r
	return s
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe blocks serving on addr until Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP server listening", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
