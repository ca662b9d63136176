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

// Package embedder turns text into embedding vectors for semantic search.
package embedder

import "context"

// EmbedResult carries the vectors plus usage accounting for the call.
type EmbedResult struct {
	Vectors      [][]float32
	PromptTokens int
	Cost         float64
}

// Embedder is the embedding capability. Implementations must preserve
// input order in the result vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) (*EmbedResult, error)
	Dimension() int
	ModelName() string
}
