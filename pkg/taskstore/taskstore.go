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

// Package taskstore persists research tasks and their results in SQLite
// and enforces the task status state machine. All mutations validate the
// transition before writing; result storage and the terminal status
// change happen in a single transaction.
package taskstore

import (
	"errors"
	"time"
)

// Status is the task lifecycle state.
type Status string

const (
	StatusQueued        Status = "queued"
	StatusProcessing    Status = "processing"
	StatusPendingReview Status = "pending_review"
	StatusCompleted     Status = "completed"
	StatusApproved      Status = "approved"
	StatusFailed        Status = "failed"
)

// Depth selects the research effort profile.
type Depth string

const (
	DepthQuick         Depth = "quick"
	DepthStandard      Depth = "standard"
	DepthComprehensive Depth = "comprehensive"
)

// MaxRegenerations bounds how many times a rejected task may be re-run.
const MaxRegenerations = 2

var (
	// ErrNotFound indicates no task exists for the given id.
	ErrNotFound = errors.New("task not found")

	// ErrNoResult indicates the task has no stored result yet.
	ErrNoResult = errors.New("task has no result")

	// ErrIllegalTransition indicates a status change outside the
	// lifecycle graph.
	ErrIllegalTransition = errors.New("illegal status transition")

	// ErrRegenerationLimit indicates a reject was refused because the
	// task already used all its regeneration attempts.
	ErrRegenerationLimit = errors.New("regeneration limit exceeded")
)

// legalTransitions is the closed lifecycle graph. The only backward
// edge is pending_review -> processing, taken on reject.
var legalTransitions = map[Status]map[Status]bool{
	StatusQueued: {
		StatusProcessing: true,
		// A task the executor could not accept fails without running.
		StatusFailed: true,
	},
	StatusProcessing: {
		StatusPendingReview: true,
		StatusCompleted:     true,
		StatusFailed:        true,
	},
	StatusPendingReview: {
		StatusApproved:   true,
		StatusProcessing: true,
		StatusFailed:     true,
	},
	StatusCompleted: {
		StatusApproved: true,
	},
}

// CanTransition reports whether from -> to is a legal status change.
// A same-status update is always legal.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	return legalTransitions[from][to]
}

// ValidStatus reports whether s is a member of the status enum.
func ValidStatus(s Status) bool {
	switch s {
	case StatusQueued, StatusProcessing, StatusPendingReview,
		StatusCompleted, StatusApproved, StatusFailed:
		return true
	}
	return false
}

// ValidDepth reports whether d is a member of the depth enum.
func ValidDepth(d Depth) bool {
	switch d {
	case DepthQuick, DepthStandard, DepthComprehensive:
		return true
	}
	return false
}

// TaskRecord is the persisted state of one research task.
type TaskRecord struct {
	TaskID            string    `json:"task_id"`
	Query             string    `json:"query"`
	UserID            string    `json:"user_id,omitempty"`
	Depth             Depth     `json:"depth"`
	Status            Status    `json:"status"`
	CurrentAgent      string    `json:"current_agent,omitempty"`
	Progress          int       `json:"progress"`
	ErrorMessage      string    `json:"error_message,omitempty"`
	RegenerationCount int       `json:"regeneration_count"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Source is one cited source summary attached to a result.
type Source struct {
	SourceID       int     `json:"source_id"`
	Title          string  `json:"title"`
	URL            string  `json:"url"`
	RelevanceScore float32 `json:"relevance_score"`
}

// ResultRecord is the produced report for a task. At most one exists
// per task; a regeneration run replaces it.
type ResultRecord struct {
	TaskID          string         `json:"task_id"`
	Report          string         `json:"report"`
	Sources         []Source       `json:"sources"`
	ConfidenceScore float64        `json:"confidence_score"`
	NeedsHITL       bool           `json:"needs_hitl"`
	BlobURL         string         `json:"blob_url,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

// UpdateRequest carries the optional fields of a task update. Nil
// fields are left untouched.
type UpdateRequest struct {
	Status       *Status
	CurrentAgent *string
	Progress     *int
	ErrorMessage *string
}
