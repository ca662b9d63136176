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

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/inquiro-ai/inquiro/pkg/executor"
	"github.com/inquiro-ai/inquiro/pkg/ledger"
	"github.com/inquiro-ai/inquiro/pkg/taskstore"
)

// Review actions.
const (
	actionApprove = "approve"
	actionEdit    = "edit"
	actionReject  = "reject"
)

// saturationRetryAfter is the backoff hint sent with saturated (503)
// responses.
const saturationRetryAfter = 30 * time.Second

// Rough run duration per depth, for the estimated_completion hint.
var estimatedRunDuration = map[taskstore.Depth]time.Duration{
	taskstore.DepthQuick:         time.Minute,
	taskstore.DepthStandard:      2 * time.Minute,
	taskstore.DepthComprehensive: 4 * time.Minute,
}

type createRequest struct {
	Query  string `json:"query"`
	Depth  string `json:"depth"`
	UserID string `json:"user_id"`
}

type createResponse struct {
	TaskID    string    `json:"task_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type statusResponse struct {
	TaskID              string     `json:"task_id"`
	Status              string     `json:"status"`
	CurrentAgent        string     `json:"current_agent,omitempty"`
	Progress            int        `json:"progress"`
	Message             string     `json:"message,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	EstimatedCompletion *time.Time `json:"estimated_completion,omitempty"`
}

type reviewRequest struct {
	Action          string `json:"action"`
	EditedReport    string `json:"edited_report"`
	RejectionReason string `json:"rejection_reason"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleCreateResearch(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidInput, "invalid JSON body")
		return
	}

	req.Query = strings.TrimSpace(req.Query)
	if n := utf8.RuneCountInString(req.Query); n < minQueryLength || n > maxQueryLength {
		writeError(w, http.StatusBadRequest, codeInvalidInput,
			fmt.Sprintf("query length must be between %d and %d characters", minQueryLength, maxQueryLength))
		return
	}

	depth := taskstore.DepthStandard
	if req.Depth != "" {
		depth = taskstore.Depth(req.Depth)
		if !taskstore.ValidDepth(depth) {
			writeError(w, http.StatusBadRequest, codeInvalidInput,
				"depth must be one of quick, standard, comprehensive")
			return
		}
	}

	principal := req.UserID
	if principal == "" {
		principal = clientIP(r)
	}
	if !s.limiter.Allow(principal) {
		retryAfter := s.limiter.RetryAfter()
		w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
		writeError(w, http.StatusTooManyRequests, codeRateLimited, "rate limit exceeded")
		return
	}

	taskID, err := s.store.Create(r.Context(), req.Query, req.UserID, depth)
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeInternal, "failed to create task")
		return
	}

	if err := s.exec.Submit(executor.Job{TaskID: taskID, Query: req.Query, Depth: depth}); err != nil {
		// Accepted work is never silently dropped: an unschedulable
		// task fails immediately.
		_ = s.store.MarkFailed(r.Context(), taskID, "executor queue full")
		writeSaturated(w)
		return
	}

	task, err := s.store.GetStatus(r.Context(), taskID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeInternal, "failed to load task")
		return
	}

	writeJSON(w, http.StatusCreated, createResponse{
		TaskID:    taskID,
		Status:    string(taskstore.StatusQueued),
		CreatedAt: task.CreatedAt,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	taskID, ok := taskIDParam(w, r)
	if !ok {
		return
	}

	if resp, ok := s.cache.Get(taskID); ok {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	task, err := s.store.GetStatus(r.Context(), taskID)
	if errors.Is(err, taskstore.ErrNotFound) {
		writeError(w, http.StatusNotFound, codeNotFound, "task not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeInternal, "failed to load task")
		return
	}

	resp := buildStatusResponse(task)
	s.cache.Set(taskID, resp)
	writeJSON(w, http.StatusOK, resp)
}

func buildStatusResponse(task *taskstore.TaskRecord) statusResponse {
	resp := statusResponse{
		TaskID:       task.TaskID,
		Status:       string(task.Status),
		CurrentAgent: task.CurrentAgent,
		Progress:     task.Progress,
		CreatedAt:    task.CreatedAt,
		UpdatedAt:    task.UpdatedAt,
	}

	switch task.Status {
	case taskstore.StatusQueued:
		resp.Message = "waiting for a worker"
	case taskstore.StatusProcessing:
		resp.Message = "research in progress"
	case taskstore.StatusPendingReview:
		resp.Message = "report awaiting human review"
	case taskstore.StatusFailed:
		resp.Message = task.ErrorMessage
	}

	if task.Status == taskstore.StatusQueued || task.Status == taskstore.StatusProcessing {
		eta := task.CreatedAt.Add(estimatedRunDuration[task.Depth])
		resp.EstimatedCompletion = &eta
	}

	return resp
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	taskID, ok := taskIDParam(w, r)
	if !ok {
		return
	}

	task, result, err := s.store.GetResult(r.Context(), taskID)
	if errors.Is(err, taskstore.ErrNotFound) {
		writeError(w, http.StatusNotFound, codeNotFound, "task not found")
		return
	}
	if task == nil {
		writeError(w, http.StatusInternalServerError, codeInternal, "failed to load task")
		return
	}

	switch task.Status {
	case taskstore.StatusQueued, taskstore.StatusProcessing, taskstore.StatusPendingReview:
		writeError(w, http.StatusConflict, codeConflict,
			"report is not ready", string(task.Status))
		return
	case taskstore.StatusFailed:
		writeError(w, http.StatusBadRequest, codeInvalidInput,
			"task failed", task.ErrorMessage)
		return
	}

	if err != nil || result == nil {
		writeError(w, http.StatusInternalServerError, codeInternal, "failed to load result")
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}

	switch format {
	case "json":
		writeJSON(w, http.StatusOK, map[string]any{
			"task_id":          task.TaskID,
			"report":           result.Report,
			"sources":          result.Sources,
			"confidence_score": result.ConfidenceScore,
			"needs_hitl":       result.NeedsHITL,
			"metadata":         result.Metadata,
		})
	case "markdown":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(result.Report))
	case "pdf":
		body, err := renderPDF(task, result)
		if err != nil {
			writeError(w, http.StatusInternalServerError, codeInternal, "failed to render pdf")
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	default:
		writeError(w, http.StatusBadRequest, codeInvalidInput,
			"format must be one of json, markdown, pdf")
	}
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	taskID, ok := taskIDParam(w, r)
	if !ok {
		return
	}

	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidInput, "invalid JSON body")
		return
	}

	switch req.Action {
	case actionApprove:
		if err := s.store.Approve(r.Context(), taskID); err != nil {
			writeReviewError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"task_id": taskID,
			"action":  actionApprove,
			"status":  string(taskstore.StatusApproved),
		})

	case actionEdit:
		if strings.TrimSpace(req.EditedReport) == "" {
			writeError(w, http.StatusBadRequest, codeInvalidInput, "edited_report is required for edit")
			return
		}
		if err := s.store.Edit(r.Context(), taskID, req.EditedReport); err != nil {
			writeReviewError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"task_id": taskID,
			"action":  actionEdit,
			"status":  string(taskstore.StatusApproved),
		})

	case actionReject:
		s.handleReject(w, r, taskID, req.RejectionReason)

	default:
		writeError(w, http.StatusBadRequest, codeInvalidInput,
			"action must be one of approve, edit, reject")
	}
}

// handleReject requeues a rejected task for a fresh run.
func (s *Server) handleReject(w http.ResponseWriter, r *http.Request, taskID, reason string) {
	query, err := s.store.Reject(r.Context(), taskID, reason)
	if errors.Is(err, taskstore.ErrRegenerationLimit) {
		writeJSON(w, http.StatusOK, map[string]string{
			"task_id": taskID,
			"action":  actionReject,
			"status":  string(taskstore.StatusFailed),
			"message": "regeneration limit exceeded",
		})
		return
	}
	if err != nil {
		writeReviewError(w, err)
		return
	}

	task, err := s.store.GetStatus(r.Context(), taskID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeInternal, "failed to load task")
		return
	}

	if err := s.exec.Submit(executor.Job{
		TaskID:       taskID,
		Query:        query,
		Depth:        task.Depth,
		Regeneration: task.RegenerationCount,
	}); err != nil {
		_ = s.store.MarkFailed(r.Context(), taskID, "executor queue full")
		writeSaturated(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"task_id":            taskID,
		"action":             actionReject,
		"status":             string(taskstore.StatusProcessing),
		"regeneration_count": task.RegenerationCount,
	})
}

func (s *Server) handleCosts(w http.ResponseWriter, r *http.Request) {
	taskID, ok := taskIDParam(w, r)
	if !ok {
		return
	}

	if _, err := s.store.GetStatus(r.Context(), taskID); err != nil {
		if errors.Is(err, taskstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, codeNotFound, "task not found")
			return
		}
		writeError(w, http.StatusInternalServerError, codeInternal, "failed to load task")
		return
	}

	totals := ledger.Totals{}
	breakdown := map[string]ledger.Totals{}
	if s.ledger != nil {
		totals = s.ledger.TotalsByTask(taskID)
		breakdown = s.ledger.TaskBreakdown(taskID)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"task_id":      taskID,
		"totals":       totals,
		"by_operation": breakdown,
	})
}

func (s *Server) handleListResearch(w http.ResponseWriter, r *http.Request) {
	var statusFilter *taskstore.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := taskstore.Status(raw)
		if !taskstore.ValidStatus(status) {
			writeError(w, http.StatusBadRequest, codeInvalidInput, "unknown status filter")
			return
		}
		statusFilter = &status
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	tasks, err := s.store.List(r.Context(), statusFilter, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeInternal, "failed to list tasks")
		return
	}
	if tasks == nil {
		tasks = []taskstore.TaskRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tasks": tasks,
		"count": len(tasks),
	})
}

// writeSaturated answers a submission the executor queue refused.
func writeSaturated(w http.ResponseWriter) {
	w.Header().Set("Retry-After", strconv.Itoa(int(saturationRetryAfter.Seconds())))
	writeError(w, http.StatusServiceUnavailable, codeSaturated, "research queue is full, try again later")
}

// writeReviewError maps store errors on the review path.
func writeReviewError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, taskstore.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, "task not found")
	case errors.Is(err, taskstore.ErrIllegalTransition), errors.Is(err, taskstore.ErrNoResult):
		writeError(w, http.StatusConflict, codeConflict,
			"action is not allowed in the task's current status", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, codeInternal, "review action failed")
	}
}

// taskIDParam extracts and validates the v4 UUID path parameter,
// answering 400 itself when invalid.
func taskIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := chi.URLParam(r, "taskID")
	id, err := uuid.Parse(raw)
	if err != nil || id.Version() != 4 {
		writeError(w, http.StatusBadRequest, codeInvalidInput, "task_id must be a valid v4 UUID")
		return "", false
	}
	return raw, true
}
