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

package taskstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	_ "github.com/mattn/go-sqlite3"
)

const defaultListLimit = 50

const (
	// Separate statements for table and indexes for SQLite compatibility.
	createTasksTableSQL = `
CREATE TABLE IF NOT EXISTS tasks (
    id VARCHAR(36) PRIMARY KEY,
    query TEXT NOT NULL,
    user_id VARCHAR(255),
    depth VARCHAR(32) NOT NULL,
    status VARCHAR(32) NOT NULL,
    current_agent VARCHAR(64),
    progress INTEGER NOT NULL DEFAULT 0,
    error_message TEXT,
    regeneration_count INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
)`

	createTasksStatusIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`

	createTasksCreatedAtIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_tasks_created_at ON tasks(created_at)`

	createResultsTableSQL = `
CREATE TABLE IF NOT EXISTS results (
    task_id VARCHAR(36) PRIMARY KEY REFERENCES tasks(id),
    report TEXT NOT NULL,
    sources_json TEXT,
    confidence_score REAL NOT NULL,
    needs_hitl INTEGER NOT NULL,
    blob_url TEXT,
    metadata_json TEXT,
    created_at TIMESTAMP NOT NULL
)`
)

// Store is the SQLite-backed task store. SQLite allows a single writer,
// so the connection pool is capped at one connection; every operation
// is safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and initializes
// the schema. Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open task database: %w", err)
	}

	// One connection: serializes writers and keeps :memory: databases
	// from splitting across pool connections.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	statements := []string{
		createTasksTableSQL,
		createTasksStatusIndexSQL,
		createTasksCreatedAtIndexSQL,
		createResultsTableSQL,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

// Create inserts a new task in status queued and returns its id.
func (s *Store) Create(ctx context.Context, query, userID string, depth Depth) (string, error) {
	if query == "" {
		return "", fmt.Errorf("query is required")
	}
	if !ValidDepth(depth) {
		return "", fmt.Errorf("invalid depth: %s", depth)
	}

	taskID := uuid.NewString()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
INSERT INTO tasks (id, query, user_id, depth, status, progress, regeneration_count, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, 0, 0, ?, ?)`,
		taskID, query, nullable(userID), string(depth), string(StatusQueued), now, now)
	if err != nil {
		return "", fmt.Errorf("failed to create task: %w", err)
	}

	return taskID, nil
}

// GetStatus returns the task record for taskID.
func (s *Store) GetStatus(ctx context.Context, taskID string) (*TaskRecord, error) {
	return s.getTask(ctx, s.db, taskID)
}

// GetResult returns the task record together with its result. The
// result is ErrNoResult when the workflow has not produced one yet.
func (s *Store) GetResult(ctx context.Context, taskID string) (*TaskRecord, *ResultRecord, error) {
	task, err := s.getTask(ctx, s.db, taskID)
	if err != nil {
		return nil, nil, err
	}

	var (
		result       ResultRecord
		sourcesJSON  sql.NullString
		blobURL      sql.NullString
		metadataJSON sql.NullString
	)
	err = s.db.QueryRowContext(ctx, `
SELECT task_id, report, sources_json, confidence_score, needs_hitl, blob_url, metadata_json, created_at
FROM results WHERE task_id = ?`, taskID).Scan(
		&result.TaskID, &result.Report, &sourcesJSON, &result.ConfidenceScore,
		&result.NeedsHITL, &blobURL, &metadataJSON, &result.CreatedAt)
	if err == sql.ErrNoRows {
		return task, nil, fmt.Errorf("%w: %s", ErrNoResult, taskID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load result: %w", err)
	}

	result.BlobURL = blobURL.String
	if sourcesJSON.Valid && sourcesJSON.String != "" {
		if err := json.Unmarshal([]byte(sourcesJSON.String), &result.Sources); err != nil {
			return nil, nil, fmt.Errorf("failed to parse result sources: %w", err)
		}
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &result.Metadata); err != nil {
			return nil, nil, fmt.Errorf("failed to parse result metadata: %w", err)
		}
	}

	return task, &result, nil
}

// Update applies the non-nil fields of req. A status change outside the
// lifecycle graph fails with ErrIllegalTransition and writes nothing.
func (s *Store) Update(ctx context.Context, taskID string, req UpdateRequest) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	task, err := s.getTask(ctx, tx, taskID)
	if err != nil {
		return err
	}

	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC()}

	if req.Status != nil {
		if !ValidStatus(*req.Status) {
			return fmt.Errorf("invalid status: %s", *req.Status)
		}
		if !CanTransition(task.Status, *req.Status) {
			return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, task.Status, *req.Status)
		}
		sets = append(sets, "status = ?")
		args = append(args, string(*req.Status))
	}
	if req.CurrentAgent != nil {
		sets = append(sets, "current_agent = ?")
		args = append(args, *req.CurrentAgent)
	}
	if req.Progress != nil {
		sets = append(sets, "progress = ?")
		args = append(args, *req.Progress)
	}
	if req.ErrorMessage != nil {
		sets = append(sets, "error_message = ?")
		args = append(args, *req.ErrorMessage)
	}

	args = append(args, taskID)
	query := fmt.Sprintf("UPDATE tasks SET %s WHERE id = ?", strings.Join(sets, ", "))
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}

	return tx.Commit()
}

// StoreResult writes the result record and the terminal status change
// in one transaction: pending_review when needsHITL, completed
// otherwise. A result left over from a previous regeneration run is
// replaced.
func (s *Store) StoreResult(ctx context.Context, taskID, report string, sources []Source, confidence float64, needsHITL bool, metadata map[string]any) error {
	target := StatusCompleted
	if needsHITL {
		target = StatusPendingReview
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	task, err := s.getTask(ctx, tx, taskID)
	if err != nil {
		return err
	}
	if !CanTransition(task.Status, target) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, task.Status, target)
	}

	sourcesJSON, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("failed to serialize sources: %w", err)
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to serialize metadata: %w", err)
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
INSERT INTO results (task_id, report, sources_json, confidence_score, needs_hitl, blob_url, metadata_json, created_at)
VALUES (?, ?, ?, ?, ?, NULL, ?, ?)
ON CONFLICT(task_id) DO UPDATE SET
    report = excluded.report,
    sources_json = excluded.sources_json,
    confidence_score = excluded.confidence_score,
    needs_hitl = excluded.needs_hitl,
    metadata_json = excluded.metadata_json,
    created_at = excluded.created_at`,
		taskID, report, string(sourcesJSON), confidence, needsHITL, string(metadataJSON), now)
	if err != nil {
		return fmt.Errorf("failed to store result: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE tasks SET status = ?, progress = ?, updated_at = ? WHERE id = ?",
		string(target), progressFor(target), now, taskID)
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}

	return tx.Commit()
}

// SetBlobURL records where the result report was mirrored.
func (s *Store) SetBlobURL(ctx context.Context, taskID, blobURL string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE results SET blob_url = ? WHERE task_id = ?", blobURL, taskID)
	if err != nil {
		return fmt.Errorf("failed to set blob url: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNoResult, taskID)
	}
	return nil
}

// MarkFailed moves the task to failed and records the error message.
func (s *Store) MarkFailed(ctx context.Context, taskID, errorMessage string) error {
	status := StatusFailed
	return s.Update(ctx, taskID, UpdateRequest{
		Status:       &status,
		ErrorMessage: &errorMessage,
	})
}

// Approve moves the task to approved. Valid from pending_review and
// completed; approving an already approved task is a no-op.
func (s *Store) Approve(ctx context.Context, taskID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	task, err := s.getTask(ctx, tx, taskID)
	if err != nil {
		return err
	}
	if task.Status == StatusApproved {
		return nil
	}
	if !CanTransition(task.Status, StatusApproved) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, task.Status, StatusApproved)
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		"UPDATE tasks SET status = ?, progress = 100, updated_at = ? WHERE id = ?",
		string(StatusApproved), now, taskID)
	if err != nil {
		return fmt.Errorf("failed to approve task: %w", err)
	}

	return tx.Commit()
}

// Edit replaces the report text and approves the task. Only valid
// during pending_review.
func (s *Store) Edit(ctx context.Context, taskID, newReport string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	task, err := s.getTask(ctx, tx, taskID)
	if err != nil {
		return err
	}
	if task.Status != StatusPendingReview {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, task.Status, StatusApproved)
	}

	res, err := tx.ExecContext(ctx,
		"UPDATE results SET report = ? WHERE task_id = ?", newReport, taskID)
	if err != nil {
		return fmt.Errorf("failed to edit result: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNoResult, taskID)
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		"UPDATE tasks SET status = ?, progress = 100, updated_at = ? WHERE id = ?",
		string(StatusApproved), now, taskID)
	if err != nil {
		return fmt.Errorf("failed to approve task: %w", err)
	}

	return tx.Commit()
}

// Reject sends a pending_review task back to processing for a new run:
// the regeneration counter increments, progress resets to zero, and the
// original query is returned for re-submission. Once the counter has
// reached MaxRegenerations the task is failed instead and
// ErrRegenerationLimit is returned.
func (s *Store) Reject(ctx context.Context, taskID, reason string) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	task, err := s.getTask(ctx, tx, taskID)
	if err != nil {
		return "", err
	}
	if task.Status != StatusPendingReview {
		return "", fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, task.Status, StatusProcessing)
	}

	now := time.Now().UTC()

	if task.RegenerationCount >= MaxRegenerations {
		_, err = tx.ExecContext(ctx,
			"UPDATE tasks SET status = ?, error_message = ?, updated_at = ? WHERE id = ?",
			string(StatusFailed), "regeneration limit exceeded", now, taskID)
		if err != nil {
			return "", fmt.Errorf("failed to fail task: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return "", fmt.Errorf("failed to commit: %w", err)
		}
		return "", fmt.Errorf("%w: task %s", ErrRegenerationLimit, taskID)
	}

	slog.Info("Task rejected for regeneration",
		"task_id", taskID,
		"reason", reason,
		"attempt", task.RegenerationCount+1)

	_, err = tx.ExecContext(ctx, `
UPDATE tasks SET status = ?, progress = 0, regeneration_count = regeneration_count + 1, updated_at = ?
WHERE id = ?`,
		string(StatusProcessing), now, taskID)
	if err != nil {
		return "", fmt.Errorf("failed to requeue task: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit: %w", err)
	}

	return task.Query, nil
}

// List returns tasks newest first, optionally filtered by status.
// A non-positive limit falls back to the default page size.
func (s *Store) List(ctx context.Context, status *Status, limit, offset int) ([]TaskRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	query := taskColumnsSQL + " FROM tasks"
	args := []any{}
	if status != nil {
		query += " WHERE status = ?"
		args = append(args, string(*status))
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []TaskRecord
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tasks: %w", err)
	}

	return tasks, nil
}

const taskColumnsSQL = `
SELECT id, query, user_id, depth, status, current_agent, progress, error_message, regeneration_count, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) getTask(ctx context.Context, q querier, taskID string) (*TaskRecord, error) {
	row := q.QueryRowContext(ctx, taskColumnsSQL+" FROM tasks WHERE id = ?", taskID)
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, taskID)
	}
	return task, err
}

func scanTask(row rowScanner) (*TaskRecord, error) {
	var (
		task         TaskRecord
		userID       sql.NullString
		currentAgent sql.NullString
		errorMessage sql.NullString
		depth        string
		status       string
	)
	err := row.Scan(&task.TaskID, &task.Query, &userID, &depth, &status,
		&currentAgent, &task.Progress, &errorMessage, &task.RegenerationCount,
		&task.CreatedAt, &task.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan task: %w", err)
	}

	task.UserID = userID.String
	task.Depth = Depth(depth)
	task.Status = Status(status)
	task.CurrentAgent = currentAgent.String
	task.ErrorMessage = errorMessage.String
	return &task, nil
}

func progressFor(status Status) int {
	if status == StatusPendingReview {
		return 90
	}
	return 100
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
