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
	"fmt"

	"github.com/inquiro-ai/inquiro/pkg/config"
)

// New builds the vector store the configuration selects.
func New(cfg *config.Config) (VectorStore, error) {
	switch cfg.VectorProvider {
	case config.VectorProviderPinecone:
		return NewPineconeStore(cfg.PineconeAPIKey, cfg.PineconeIndexName)
	case config.VectorProviderQdrant:
		return NewQdrantStore(cfg.QdrantHost, cfg.QdrantPort, "", false)
	case config.VectorProviderChromem:
		return NewChromemStore(), nil
	default:
		return nil, fmt.Errorf("unknown vector provider: %s", cfg.VectorProvider)
	}
}
