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

// Package executor runs research workflows on a bounded worker pool,
// decoupled from the HTTP request path. Submissions beyond queue
// capacity fail fast so the API can answer 503 instead of piling up.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/inquiro-ai/inquiro/pkg/agents"
	"github.com/inquiro-ai/inquiro/pkg/blobstore"
	"github.com/inquiro-ai/inquiro/pkg/graph"
	"github.com/inquiro-ai/inquiro/pkg/ledger"
	"github.com/inquiro-ai/inquiro/pkg/observability"
	"github.com/inquiro-ai/inquiro/pkg/taskstore"
)

const (
	DefaultWorkers   = 4
	DefaultQueueSize = 1024

	// maxSourceSummaries caps the sources list packaged into a result.
	maxSourceSummaries = 20

	// runTimeout bounds a single workflow run end to end.
	runTimeout = 5 * time.Minute
)

var (
	// ErrSaturated indicates the submission queue is full.
	ErrSaturated = errors.New("executor queue is saturated")

	// ErrStopped indicates the executor no longer accepts work.
	ErrStopped = errors.New("executor is stopped")
)

// Job is one workflow run request.
type Job struct {
	TaskID       string
	Query        string
	Depth        taskstore.Depth
	Regeneration int
}

// Executor owns the worker pool and the per-run bookkeeping around the
// compiled workflow: status transitions, progress pushes, result
// packaging, cost attribution, and report mirroring.
type Executor struct {
	workflow *graph.Workflow
	store    *taskstore.Store
	ledger   *ledger.Ledger
	blobs    blobstore.BlobStore
	workers  int

	jobs chan Job
	wg   sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

// Option configures an Executor.
type Option func(*Executor)

// WithWorkers overrides the worker pool size.
func WithWorkers(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithQueueSize overrides the submission queue depth.
func WithQueueSize(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.jobs = make(chan Job, n)
		}
	}
}

// WithLedger attaches the cost ledger; it is flushed after every run.
func WithLedger(l *ledger.Ledger) Option {
	return func(e *Executor) { e.ledger = l }
}

// WithBlobStore enables best-effort mirroring of completed reports to
// the gold layer.
func WithBlobStore(b blobstore.BlobStore) Option {
	return func(e *Executor) { e.blobs = b }
}

// New creates an executor; call Start before submitting.
func New(workflow *graph.Workflow, store *taskstore.Store, opts ...Option) *Executor {
	e := &Executor{
		workflow: workflow,
		store:    store,
		workers:  DefaultWorkers,
		jobs:     make(chan Job, DefaultQueueSize),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start launches the worker pool.
func (e *Executor) Start() {
	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			for job := range e.jobs {
				e.run(job)
			}
		}()
	}
	slog.Info("Executor started", "workers", e.workers, "queue_capacity", cap(e.jobs))
}

// Submit enqueues a job without blocking. It returns ErrSaturated when
// the queue is full and ErrStopped after Shutdown.
func (e *Executor) Submit(job Job) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return ErrStopped
	}
	select {
	case e.jobs <- job:
		return nil
	default:
		return ErrSaturated
	}
}

// Shutdown stops intake and waits for in-flight runs to drain, up to
// the context deadline.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil
	}
	e.stopped = true
	close(e.jobs)
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("executor drain interrupted: %w", ctx.Err())
	}
}

func (e *Executor) run(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	start := time.Now()
	logger := slog.With("task_id", job.TaskID)

	if e.ledger != nil {
		e.ledger.Bind(job.TaskID)
		defer func() {
			e.ledger.Unbind()
			if err := e.ledger.Flush(); err != nil {
				logger.Warn("Ledger flush failed", "error", err)
			}
		}()
	}

	processing := taskstore.StatusProcessing
	if err := e.store.Update(ctx, job.TaskID, taskstore.UpdateRequest{Status: &processing}); err != nil {
		logger.Error("Failed to mark task processing", "error", err)
		return
	}

	state := &agents.ResearchState{
		TaskID:            job.TaskID,
		UserQuery:         job.Query,
		Depth:             job.Depth,
		RegenerationCount: job.Regeneration,
	}

	err := e.workflow.Run(ctx, state, func(nodeName string, s *agents.ResearchState) {
		e.pushProgress(ctx, job.TaskID, s)
	})

	if metrics := observability.GetGlobalMetrics(); metrics != nil {
		metrics.RecordWorkflowRun(ctx, time.Since(start), state.RegenerationCount, err)
	}

	if err != nil {
		logger.Error("Workflow run failed", "error", err, "duration", time.Since(start))
		if markErr := e.store.MarkFailed(ctx, job.TaskID, err.Error()); markErr != nil {
			logger.Error("Failed to mark task failed", "error", markErr)
		}
		return
	}

	if err := e.storeResult(ctx, job, state); err != nil {
		logger.Error("Failed to store result", "error", err)
		if markErr := e.store.MarkFailed(ctx, job.TaskID, "failed to persist result"); markErr != nil {
			logger.Error("Failed to mark task failed", "error", markErr)
		}
		return
	}

	logger.Info("Workflow run finished",
		"needs_hitl", state.NeedsHITL,
		"confidence", state.ConfidenceScore,
		"sources", state.SourceCount,
		"duration", time.Since(start))
}

// pushProgress mirrors the state's progress fields to the store after
// each node. Failures are logged; they never stop the run.
func (e *Executor) pushProgress(ctx context.Context, taskID string, state *agents.ResearchState) {
	agent := state.CurrentAgent
	progress := state.Progress
	if err := e.store.Update(ctx, taskID, taskstore.UpdateRequest{
		CurrentAgent: &agent,
		Progress:     &progress,
	}); err != nil {
		slog.Warn("Failed to push progress", "task_id", taskID, "error", err)
	}
}

func (e *Executor) storeResult(ctx context.Context, job Job, state *agents.ResearchState) error {
	report := state.FinalReport
	if report == "" {
		report = state.ReportDraft
	}

	metadata := map[string]any{
		"depth":              string(job.Depth),
		"search_queries":     state.SearchQueries,
		"source_count":       state.SourceCount,
		"regeneration_count": state.RegenerationCount,
	}
	if v := state.ValidationResult; v != nil {
		metadata["citation_coverage"] = v.CitationCoverage
		metadata["invalid_citations"] = v.InvalidCitations
		metadata["has_contradictions"] = v.HasContradictions
	}

	sources := packageSources(state)
	if err := e.store.StoreResult(ctx, job.TaskID, report, sources,
		state.ConfidenceScore, state.NeedsHITL, metadata); err != nil {
		return err
	}

	// Only finalized reports reach the gold layer; a pending_review
	// draft may still change.
	if !state.NeedsHITL {
		e.mirrorReport(ctx, job.TaskID, report, sources, state.ConfidenceScore)
	}

	return nil
}

// packageSources summarizes the citation namespace, capped at
// maxSourceSummaries entries. Source ids match citation numbers.
func packageSources(state *agents.ResearchState) []taskstore.Source {
	chunks := state.RetrievedChunks
	if len(chunks) > maxSourceSummaries {
		chunks = chunks[:maxSourceSummaries]
	}

	sources := make([]taskstore.Source, 0, len(chunks))
	for i, c := range chunks {
		title := c.Title
		if title == "" {
			title = "Untitled"
		}
		sources = append(sources, taskstore.Source{
			SourceID:       i + 1,
			Title:          title,
			URL:            c.URL,
			RelevanceScore: c.Score,
		})
	}
	return sources
}

// mirrorReport writes the finalized report to the gold blob layer.
// Best effort: a blob failure never fails the task.
func (e *Executor) mirrorReport(ctx context.Context, taskID, report string, sources []taskstore.Source, confidence float64) {
	if e.blobs == nil {
		return
	}

	body, err := json.Marshal(map[string]any{
		"task_id":          taskID,
		"report":           report,
		"sources":          sources,
		"confidence_score": confidence,
		"generated_at":     time.Now().UTC(),
	})
	if err != nil {
		slog.Warn("Failed to serialize report mirror", "task_id", taskID, "error", err)
		return
	}

	key := blobstore.ReportKey(taskID)
	if err := e.blobs.Put(ctx, key, body); err != nil {
		slog.Warn("Failed to mirror report", "task_id", taskID, "error", err)
		return
	}
	if err := e.store.SetBlobURL(ctx, taskID, key); err != nil {
		slog.Warn("Failed to record report mirror", "task_id", taskID, "error", err)
	}
}
