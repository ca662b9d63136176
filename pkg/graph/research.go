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

package graph

import "github.com/inquiro-ai/inquiro/pkg/agents"

// Node names of the research workflow.
const (
	NodeSearch     = "search"
	NodeSynthesis  = "synthesis"
	NodeValidation = "validation"
	NodeReview     = "review"
	NodeFinalize   = "finalize"
)

// NewResearchWorkflow compiles the research pipeline:
//
//	search -> synthesis -> validation -> {review | finalize}
//
// The conditional after validation routes on needs_hitl. The review
// node exits the run; for a pending review the actual decision arrives
// later over HTTP.
func NewResearchWorkflow(a *agents.Agents) (*Workflow, error) {
	return NewBuilder().
		AddNode(NodeSearch, a.Search).
		AddNode(NodeSynthesis, a.Synthesize).
		AddNode(NodeValidation, a.Validate).
		AddNode(NodeReview, a.Review).
		AddNode(NodeFinalize, a.Finalize).
		AddEdge(NodeSearch, NodeSynthesis).
		AddEdge(NodeSynthesis, NodeValidation).
		AddConditional(NodeValidation, func(state *agents.ResearchState) string {
			if state.NeedsHITL {
				return NodeReview
			}
			return NodeFinalize
		}).
		SetEntry(NodeSearch).
		Compile()
}
