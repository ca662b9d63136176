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

import "context"

// Review is the gate after validation. When no human is needed it
// auto-advances by promoting the draft. When review is needed it leaves
// the state as-is: the run exits at pending_review and the actual
// review arrives later over HTTP, never by blocking a worker.
func (a *Agents) Review(ctx context.Context, state *ResearchState) error {
	if !state.NeedsHITL {
		state.FinalReport = state.ReportDraft
	}
	state.CurrentAgent = AgentReview
	return nil
}

// Finalize promotes the draft when nothing upstream already did.
func (a *Agents) Finalize(ctx context.Context, state *ResearchState) error {
	if state.FinalReport == "" {
		state.FinalReport = state.ReportDraft
	}
	return nil
}
