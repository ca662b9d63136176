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

package observability

const (
	AttrTaskID          = "task.id"
	AttrWorkflowPhase   = "workflow.phase"
	AttrLLMModel        = "llm.model"
	AttrLLMTokensInput  = "llm.tokens.input"
	AttrLLMTokensOutput = "llm.tokens.output"
	AttrVectorNamespace = "vector.namespace"
	AttrVectorTopK      = "vector.top_k"
	AttrErrorType       = "error.type"
	AttrStatusCode      = "http.status_code"

	SpanWorkflowRun   = "workflow.run"
	SpanSearchPhase   = "workflow.search"
	SpanSynthesis     = "workflow.synthesis"
	SpanValidation    = "workflow.validation"
	SpanLLMRequest    = "llm.request"
	SpanEmbedRequest  = "embed.request"
	SpanVectorQuery   = "vector.query"
	SpanBlobFetch     = "blob.fetch"

	DefaultServiceName = "inquiro"
)
