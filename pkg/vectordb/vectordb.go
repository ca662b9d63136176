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

// Package vectordb abstracts the vector similarity store behind a small
// query/upsert surface with pluggable providers.
package vectordb

import (
	"context"
	"errors"
)

// ErrInvalidTopK is returned when a query asks for a non-positive
// number of matches.
var ErrInvalidTopK = errors.New("top_k must be positive")

// Match is one scored result from a similarity query.
type Match struct {
	ID       string
	Score    float32
	Metadata map[string]any
}

// VectorStore is the similarity-search capability. Query returns at
// most topK matches ordered by descending score. Upsert is used by
// the ingestion collaborator and by tests.
type VectorStore interface {
	Query(ctx context.Context, namespace string, vector []float32, topK int) ([]Match, error)
	Upsert(ctx context.Context, namespace string, id string, vector []float32, metadata map[string]any) error
	Close() error
}
