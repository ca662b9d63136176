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

// Package agents implements the research workflow nodes: query
// expansion and search, evidence synthesis, citation validation, and
// the review gate. Nodes mutate a shared ResearchState; persistence and
// progress reporting are the executor's concern.
package agents

import (
	"github.com/inquiro-ai/inquiro/pkg/retrieval"
	"github.com/inquiro-ai/inquiro/pkg/taskstore"
)

// Agent names as reported in task status.
const (
	AgentSearch     = "search"
	AgentSynthesis  = "synthesis"
	AgentValidation = "validation"
	AgentReview     = "review"
)

// Progress milestones pushed to the store after each node.
const (
	ProgressSearch     = 40
	ProgressSynthesis  = 70
	ProgressValidation = 85
)

// HITLThreshold is the confidence below which a human review is
// required.
const HITLThreshold = 0.70

// ValidationResult is the structured validator output.
type ValidationResult struct {
	Valid             bool     `json:"valid"`
	LLMConfidence     float64  `json:"llm_confidence"`
	FinalConfidence   float64  `json:"final_confidence"`
	Issues            []string `json:"issues"`
	CitationCoverage  float64  `json:"citation_coverage"`
	InvalidCitations  []int    `json:"invalid_citations"`
	UnsupportedClaims []string `json:"unsupported_claims"`
	HasContradictions bool     `json:"has_contradictions"`
}

// ResearchState is the single mutable state a workflow run threads
// through its nodes. One node owns it at a time.
type ResearchState struct {
	TaskID            string                     `json:"task_id"`
	UserQuery         string                     `json:"user_query"`
	Depth             taskstore.Depth            `json:"depth"`
	CurrentAgent      string                     `json:"current_agent,omitempty"`
	Progress          int                        `json:"progress"`
	Message           string                     `json:"message,omitempty"`
	SearchQueries     []string                   `json:"search_queries,omitempty"`
	SearchResults     []retrieval.SearchResult   `json:"search_results,omitempty"`
	RetrievedChunks   []retrieval.RetrievedChunk `json:"retrieved_chunks,omitempty"`
	SourceCount       int                        `json:"source_count"`
	ReportDraft       string                     `json:"report_draft,omitempty"`
	ValidationResult  *ValidationResult          `json:"validation_result,omitempty"`
	ConfidenceScore   float64                    `json:"confidence_score"`
	NeedsHITL         bool                       `json:"needs_hitl"`
	FinalReport       string                     `json:"final_report,omitempty"`
	RegenerationCount int                        `json:"regeneration_count"`
	Error             string                     `json:"error,omitempty"`
}

// setProgress advances progress monotonically within a run.
func (s *ResearchState) setProgress(agent string, progress int, message string) {
	s.CurrentAgent = agent
	if progress > s.Progress {
		s.Progress = progress
	}
	s.Message = message
}

// Profile is the per-depth effort tuning.
type Profile struct {
	SubQueries       int
	TopK             int
	MaxReportTokens  int
	MaxContextTokens int
}

var profiles = map[taskstore.Depth]Profile{
	taskstore.DepthQuick:         {SubQueries: 3, TopK: 5, MaxReportTokens: 1200, MaxContextTokens: 8000},
	taskstore.DepthStandard:      {SubQueries: 4, TopK: 10, MaxReportTokens: 2000, MaxContextTokens: 12000},
	taskstore.DepthComprehensive: {SubQueries: 5, TopK: 15, MaxReportTokens: 3000, MaxContextTokens: 16000},
}

// ProfileFor returns the effort profile for a depth, defaulting to
// standard for anything unknown.
func ProfileFor(depth taskstore.Depth) Profile {
	if p, ok := profiles[depth]; ok {
		return p
	}
	return profiles[taskstore.DepthStandard]
}
