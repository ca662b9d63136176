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

// Package blobstore abstracts object storage for chunk bodies
// (silver/chunks/{id}.json) and mirrored reports
// (gold/reports/{task_id}.json).
package blobstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned when the requested key does not exist.
var ErrNotFound = errors.New("blob not found")

// BlobStore is the object-storage capability.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// Key layout the research core reads and writes.
const (
	ChunkKeyPrefix  = "silver/chunks/"
	ReportKeyPrefix = "gold/reports/"
)

// ChunkKey returns the blob key for a chunk id.
func ChunkKey(chunkID string) string {
	return ChunkKeyPrefix + chunkID + ".json"
}

// ReportKey returns the blob key for a finalized report.
func ReportKey(taskID string) string {
	return ReportKeyPrefix + taskID + ".json"
}
