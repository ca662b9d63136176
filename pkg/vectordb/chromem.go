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

package vectordb

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/philippgille/chromem-go"
)

// ChromemStore is the embedded local/dev provider. Vectors live in
// memory; no external service is needed. Namespaces map to chromem
// collections.
type ChromemStore struct {
	db *chromem.DB

	mu          sync.Mutex
	collections map[string]*chromem.Collection
}

func NewChromemStore() *ChromemStore {
	return &ChromemStore{
		db:          chromem.NewDB(),
		collections: make(map[string]*chromem.Collection),
	}
}

func (s *ChromemStore) getCollection(namespace string) (*chromem.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if col, ok := s.collections[namespace]; ok {
		return col, nil
	}

	// Vectors are pre-computed; the embedding func must never run.
	embedFunc := func(ctx context.Context, text string) ([]float32, error) {
		return nil, fmt.Errorf("embedding function called but vectors are pre-computed")
	}

	col, err := s.db.GetOrCreateCollection(namespace, nil, embedFunc)
	if err != nil {
		return nil, fmt.Errorf("failed to get/create collection %q: %w", namespace, err)
	}

	s.collections[namespace] = col
	return col, nil
}

func (s *ChromemStore) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]Match, error) {
	if topK <= 0 {
		return nil, ErrInvalidTopK
	}

	col, err := s.getCollection(namespace)
	if err != nil {
		return nil, err
	}

	// chromem rejects nResults above the document count.
	if count := col.Count(); topK > count {
		if count == 0 {
			return nil, nil
		}
		topK = count
	}

	results, err := col.QueryEmbedding(ctx, vector, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query chromem: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		metadata := make(map[string]any, len(r.Metadata)+1)
		for k, v := range r.Metadata {
			metadata[k] = v
		}
		if r.Content != "" {
			metadata["content"] = r.Content
		}

		matches = append(matches, Match{
			ID:       r.ID,
			Score:    r.Similarity,
			Metadata: metadata,
		})
	}

	return matches, nil
}

func (s *ChromemStore) Upsert(ctx context.Context, namespace string, id string, vector []float32, metadata map[string]any) error {
	col, err := s.getCollection(namespace)
	if err != nil {
		return err
	}

	strMetadata := make(map[string]string, len(metadata))
	content := ""
	for k, v := range metadata {
		if k == "content" {
			if c, ok := v.(string); ok {
				content = c
				continue
			}
		}
		strMetadata[k] = fmt.Sprint(v)
	}

	doc := chromem.Document{
		ID:        id,
		Content:   content,
		Metadata:  strMetadata,
		Embedding: vector,
	}

	if err := col.AddDocuments(ctx, []chromem.Document{doc}, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}

	return nil
}

func (s *ChromemStore) Close() error {
	return nil
}

var _ VectorStore = (*ChromemStore)(nil)
