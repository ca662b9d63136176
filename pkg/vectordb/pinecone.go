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
	"sync"

	"github.com/pinecone-io/go-pinecone/pinecone"
	"google.golang.org/protobuf/types/known/structpb"
)

// PineconeStore is the production vector store. Namespaces map to
// Pinecone namespaces within a single index.
type PineconeStore struct {
	client    *pinecone.Client
	indexName string

	mu        sync.Mutex
	indexHost string
}

func NewPineconeStore(apiKey, indexName string) (*PineconeStore, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required for Pinecone")
	}
	if indexName == "" {
		return nil, fmt.Errorf("index name is required for Pinecone")
	}

	client, err := pinecone.NewClient(pinecone.NewClientParams{
		ApiKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Pinecone client: %w", err)
	}

	return &PineconeStore{
		client:    client,
		indexName: indexName,
	}, nil
}

// resolveHost caches the index host from DescribeIndex so connections
// after the first skip the control-plane round trip.
func (s *PineconeStore) resolveHost(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexHost != "" {
		return s.indexHost, nil
	}

	index, err := s.client.DescribeIndex(ctx, s.indexName)
	if err != nil {
		return "", fmt.Errorf("failed to describe index %s: %w", s.indexName, err)
	}

	s.indexHost = index.Host
	return s.indexHost, nil
}

func (s *PineconeStore) connect(ctx context.Context, namespace string) (*pinecone.IndexConnection, error) {
	host, err := s.resolveHost(ctx)
	if err != nil {
		return nil, err
	}

	conn, err := s.client.Index(pinecone.NewIndexConnParams{
		Host:      host,
		Namespace: namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create index connection: %w", err)
	}

	return conn, nil
}

func (s *PineconeStore) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]Match, error) {
	if topK <= 0 {
		return nil, ErrInvalidTopK
	}

	conn, err := s.connect(ctx, namespace)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	response, err := conn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          vector,
		TopK:            uint32(topK),
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query Pinecone: %w", err)
	}

	matches := make([]Match, 0, len(response.Matches))
	for _, scored := range response.Matches {
		if scored.Vector == nil {
			continue
		}

		metadata := map[string]any{}
		if scored.Vector.Metadata != nil {
			metadata = scored.Vector.Metadata.AsMap()
		}

		matches = append(matches, Match{
			ID:       scored.Vector.Id,
			Score:    scored.Score,
			Metadata: metadata,
		})
	}

	return matches, nil
}

func (s *PineconeStore) Upsert(ctx context.Context, namespace string, id string, vector []float32, metadata map[string]any) error {
	conn, err := s.connect(ctx, namespace)
	if err != nil {
		return err
	}
	defer conn.Close()

	var pineconeMetadata *pinecone.Metadata
	if len(metadata) > 0 {
		pineconeMetadata, err = structpb.NewStruct(metadata)
		if err != nil {
			return fmt.Errorf("failed to convert metadata: %w", err)
		}
	}

	_, err = conn.UpsertVectors(ctx, []*pinecone.Vector{{
		Id:       id,
		Values:   vector,
		Metadata: pineconeMetadata,
	}})
	if err != nil {
		return fmt.Errorf("failed to upsert vector: %w", err)
	}

	return nil
}

func (s *PineconeStore) Close() error {
	return nil
}

var _ VectorStore = (*PineconeStore)(nil)
