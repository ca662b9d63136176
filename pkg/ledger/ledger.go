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

// Package ledger is the append-only API cost ledger. Records accumulate
// in memory and flush to a single JSON file via temp-file-then-rename.
package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Operations a record can be attributed to.
const (
	OpQueryExpansion = "query_expansion"
	OpSynthesis      = "synthesis"
	OpValidation     = "validation"
	OpEmbedding      = "embedding"
)

// APICallRecord is one provider call.
type APICallRecord struct {
	Timestamp        time.Time     `json:"timestamp"`
	TaskID           string        `json:"task_id,omitempty"`
	Model            string        `json:"model"`
	PromptTokens     int           `json:"prompt_tokens"`
	CompletionTokens int           `json:"completion_tokens"`
	TotalTokens      int           `json:"total_tokens"`
	Cost             float64       `json:"cost"`
	Operation        string        `json:"operation"`
	Method           string        `json:"method"`
	Duration         time.Duration `json:"duration"`
}

// Totals is an aggregation over a record subset.
type Totals struct {
	Records          int     `json:"records"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	Cost             float64 `json:"cost"`
}

type ledgerFile struct {
	Records     []APICallRecord `json:"records"`
	LastUpdated time.Time       `json:"last_updated"`
}

// Ledger holds records and the process-wide current task binding. Agent
// code records calls without threading the task id explicitly; the
// executor binds it at run start and unbinds at end.
type Ledger struct {
	mu          sync.Mutex
	records     []APICallRecord
	path        string
	currentTask string
}

func New(path string) *Ledger {
	return &Ledger{path: path}
}

// Load reads an existing ledger file into memory. A missing file is not
// an error.
func (l *Ledger) Load() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read ledger file: %w", err)
	}

	var file ledgerFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse ledger file: %w", err)
	}

	l.records = file.Records
	return nil
}

// Bind sets the current task id; subsequent records without an explicit
// task id are attributed to it.
func (l *Ledger) Bind(taskID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.currentTask = taskID
}

// Unbind clears the current task binding.
func (l *Ledger) Unbind() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.currentTask = ""
}

// Record appends a call record. Zero Timestamp is filled with now;
// empty TaskID inherits the current binding; TotalTokens is derived
// when unset.
func (l *Ledger) Record(rec APICallRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if rec.TaskID == "" {
		rec.TaskID = l.currentTask
	}
	if rec.TotalTokens == 0 {
		rec.TotalTokens = rec.PromptTokens + rec.CompletionTokens
	}

	l.records = append(l.records, rec)
}

// Flush writes the whole ledger atomically.
func (l *Ledger) Flush() error {
	l.mu.Lock()
	file := ledgerFile{
		Records:     append([]APICallRecord(nil), l.records...),
		LastUpdated: time.Now().UTC(),
	}
	l.mu.Unlock()

	if file.Records == nil {
		file.Records = []APICallRecord{}
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal ledger: %w", err)
	}

	dir := filepath.Dir(l.path)
	tmp, err := os.CreateTemp(dir, ".ledger-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp ledger file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write temp ledger file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp ledger file: %w", err)
	}

	if err := os.Rename(tmp.Name(), l.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace ledger file: %w", err)
	}

	return nil
}

// Records returns a snapshot of all records.
func (l *Ledger) Records() []APICallRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]APICallRecord(nil), l.records...)
}

// TotalsByTask aggregates records for one task.
func (l *Ledger) TotalsByTask(taskID string) Totals {
	return l.totals(func(r *APICallRecord) bool { return r.TaskID == taskID })
}

// TotalsByOperation aggregates records for one operation kind.
func (l *Ledger) TotalsByOperation(operation string) Totals {
	return l.totals(func(r *APICallRecord) bool { return r.Operation == operation })
}

// TotalsByModel aggregates records for one model.
func (l *Ledger) TotalsByModel(model string) Totals {
	return l.totals(func(r *APICallRecord) bool { return r.Model == model })
}

// GrandTotal aggregates every record.
func (l *Ledger) GrandTotal() Totals {
	return l.totals(func(*APICallRecord) bool { return true })
}

// TaskBreakdown returns per-operation totals for one task.
func (l *Ledger) TaskBreakdown(taskID string) map[string]Totals {
	l.mu.Lock()
	defer l.mu.Unlock()

	breakdown := make(map[string]Totals)
	for i := range l.records {
		r := &l.records[i]
		if r.TaskID != taskID {
			continue
		}
		t := breakdown[r.Operation]
		addRecord(&t, r)
		breakdown[r.Operation] = t
	}
	return breakdown
}

func (l *Ledger) totals(match func(*APICallRecord) bool) Totals {
	l.mu.Lock()
	defer l.mu.Unlock()

	var t Totals
	for i := range l.records {
		if match(&l.records[i]) {
			addRecord(&t, &l.records[i])
		}
	}
	return t
}

func addRecord(t *Totals, r *APICallRecord) {
	t.Records++
	t.PromptTokens += r.PromptTokens
	t.CompletionTokens += r.CompletionTokens
	t.TotalTokens += r.TotalTokens
	t.Cost += r.Cost
}
