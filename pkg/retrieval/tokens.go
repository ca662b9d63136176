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

package retrieval

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encodingCache = make(map[string]*tiktoken.Tiktoken)
	encodingMu    sync.RWMutex
)

func encodingFor(model string) *tiktoken.Tiktoken {
	encodingMu.RLock()
	cached, ok := encodingCache[model]
	encodingMu.RUnlock()
	if ok {
		return cached
	}

	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		encoding, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil
		}
	}

	encodingMu.Lock()
	encodingCache[model] = encoding
	encodingMu.Unlock()

	return encoding
}

// CountTokens returns the token count of text for the given model,
// falling back to a bytes/4 estimate when the encoding is unavailable.
func CountTokens(text, model string) int {
	if encoding := encodingFor(model); encoding != nil {
		return len(encoding.Encode(text, nil, nil))
	}
	return len(text) / 4
}

// TruncateToTokens trims chunks from the tail until the rendered
// context fits the token budget. At least one chunk is always kept.
func TruncateToTokens(chunks []RetrievedChunk, model string, maxTokens int) []RetrievedChunk {
	if maxTokens <= 0 || len(chunks) == 0 {
		return chunks
	}

	for len(chunks) > 1 {
		if CountTokens(FormatContext(chunks), model) <= maxTokens {
			break
		}
		chunks = chunks[:len(chunks)-1]
	}

	return chunks
}
