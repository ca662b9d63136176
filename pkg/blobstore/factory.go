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

package blobstore

import (
	"context"
	"fmt"

	"github.com/inquiro-ai/inquiro/pkg/config"
)

// New builds the blob store the configuration selects.
func New(ctx context.Context, cfg *config.Config) (BlobStore, error) {
	switch cfg.BlobProvider {
	case config.BlobProviderS3:
		return NewS3Store(ctx, cfg.S3BucketName, cfg.AWSRegion, cfg.S3Endpoint)
	case config.BlobProviderMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown blob provider: %s", cfg.BlobProvider)
	}
}
