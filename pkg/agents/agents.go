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
	"github.com/inquiro-ai/inquiro/pkg/embedder"
	"github.com/inquiro-ai/inquiro/pkg/ledger"
	"github.com/inquiro-ai/inquiro/pkg/llms"
	"github.com/inquiro-ai/inquiro/pkg/retrieval"
)

// Agents bundles the workflow nodes with their external capabilities.
// The ledger may be nil, in which case cost recording is skipped.
type Agents struct {
	llm       llms.Provider
	retriever *retrieval.Retriever
	ledger    *ledger.Ledger
}

func New(llm llms.Provider, retriever *retrieval.Retriever, ld *ledger.Ledger) *Agents {
	return &Agents{
		llm:       llm,
		retriever: retriever,
		ledger:    ld,
	}
}

// Records carry the task id explicitly so attribution stays correct
// when several workers run at once; the ledger's process-wide binding
// only backstops calls made outside a run.
func (a *Agents) recordChat(taskID, operation string, resp *llms.ChatResponse) {
	if a.ledger == nil || resp == nil {
		return
	}
	a.ledger.Record(ledger.APICallRecord{
		TaskID:           taskID,
		Model:            resp.Model,
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
		Cost:             resp.Cost,
		Operation:        operation,
		Method:           "chat",
		Duration:         resp.Duration,
	})
}

func (a *Agents) recordEmbedding(taskID, model string, result *embedder.EmbedResult) {
	if a.ledger == nil || result == nil {
		return
	}
	a.ledger.Record(ledger.APICallRecord{
		TaskID:       taskID,
		Model:        model,
		PromptTokens: result.PromptTokens,
		Cost:         result.Cost,
		Operation:    ledger.OpEmbedding,
		Method:       "embed",
	})
}
