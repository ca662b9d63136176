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

package agents

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/inquiro-ai/inquiro/pkg/ledger"
	"github.com/inquiro-ai/inquiro/pkg/llms"
	"github.com/inquiro-ai/inquiro/pkg/retrieval"
)

const validationTemperature = 0.1

// degradedConfidence is assumed when the judge call itself fails; the
// deterministic citation checks still apply on top of it.
const degradedConfidence = 0.5

// Confidence deductions applied on top of the judge's score.
const (
	deductionInvalidCitations  = 0.3
	deductionUnsupportedClaims = 0.2
	deductionContradictions    = 0.3
)

// unsupportedClaimsThreshold is how many unsupported claims trigger
// their deduction.
const unsupportedClaimsThreshold = 3

var citationPattern = regexp.MustCompile(`(?i)\[source\s+(\d+)\]`)

// ExtractCitations returns every citation number appearing in the
// report, in order of first appearance, without duplicates.
func ExtractCitations(report string) []int {
	matches := citationPattern.FindAllStringSubmatch(report, -1)
	seen := make(map[int]bool, len(matches))
	var citations []int
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil || seen[n] {
			continue
		}
		seen[n] = true
		citations = append(citations, n)
	}
	return citations
}

// InvalidCitations returns the cited numbers outside [1, sourceCount],
// sorted ascending.
func InvalidCitations(citations []int, sourceCount int) []int {
	var invalid []int
	for _, n := range citations {
		if n < 1 || n > sourceCount {
			invalid = append(invalid, n)
		}
	}
	sort.Ints(invalid)
	return invalid
}

// Validate checks the draft's citations deterministically, asks the
// judge model for a quality rating, and combines both into the final
// confidence score. A judge failure degrades the rating rather than
// failing the node.
func (a *Agents) Validate(ctx context.Context, state *ResearchState) error {
	citations := ExtractCitations(state.ReportDraft)
	invalid := InvalidCitations(citations, state.SourceCount)

	judged := a.judgeReport(ctx, state)

	hasContradictions := false
	for _, issue := range judged.Issues {
		lower := strings.ToLower(issue)
		if strings.Contains(lower, "contradict") || strings.Contains(lower, "inconsistent") {
			hasContradictions = true
			break
		}
	}

	final := judged.LLMConfidence
	if len(invalid) > 0 {
		final -= deductionInvalidCitations
	}
	if len(judged.UnsupportedClaims) >= unsupportedClaimsThreshold {
		final -= deductionUnsupportedClaims
	}
	if hasContradictions {
		final -= deductionContradictions
	}
	final = clamp(final, 0, 1)

	judged.InvalidCitations = invalid
	judged.HasContradictions = hasContradictions
	judged.FinalConfidence = final

	state.ValidationResult = judged
	state.ConfidenceScore = final
	state.NeedsHITL = final < HITLThreshold
	state.setProgress(AgentValidation, ProgressValidation, "Validating report")

	slog.Debug("Validation complete",
		"task_id", state.TaskID,
		"confidence", final,
		"invalid_citations", len(invalid),
		"needs_hitl", state.NeedsHITL)

	return nil
}

// judgeReport runs the LLM rating pass. On any failure it returns a
// degraded result carrying the failure as an issue.
func (a *Agents) judgeReport(ctx context.Context, state *ResearchState) *ValidationResult {
	resp, err := a.llm.Chat(ctx, llms.ChatRequest{
		Messages: []llms.Message{
			{Role: llms.RoleSystem, Content: validationSystemPrompt},
			{Role: llms.RoleUser, Content: validationUserPrompt(state.ReportDraft, retrieval.FormatContext(state.RetrievedChunks))},
		},
		Temperature:  validationTemperature,
		JSONResponse: true,
	})
	if err != nil {
		slog.Warn("Validation judge call failed", "task_id", state.TaskID, "error", err)
		return degradedResult(err)
	}
	a.recordChat(state.TaskID, ledger.OpValidation, resp)

	var parsed struct {
		Valid             bool     `json:"valid"`
		Confidence        float64  `json:"confidence"`
		Issues            []string `json:"issues"`
		CitationCoverage  float64  `json:"citation_coverage"`
		UnsupportedClaims []string `json:"unsupported_claims"`
	}
	if err := decodeJSONObject(resp.Content, &parsed); err != nil {
		slog.Warn("Validation judge returned unparseable output", "task_id", state.TaskID, "error", err)
		return degradedResult(err)
	}

	return &ValidationResult{
		Valid:             parsed.Valid,
		LLMConfidence:     clamp(parsed.Confidence, 0, 1),
		Issues:            parsed.Issues,
		CitationCoverage:  clamp(parsed.CitationCoverage, 0, 1),
		UnsupportedClaims: parsed.UnsupportedClaims,
	}
}

func degradedResult(err error) *ValidationResult {
	return &ValidationResult{
		Valid:         false,
		LLMConfidence: degradedConfidence,
		Issues:        []string{fmt.Sprintf("validator unavailable: %v", err)},
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
