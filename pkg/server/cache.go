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

package server

import (
	"sync"
	"time"
)

// statusCache absorbs poll storms on the status endpoint. Entries
// expire on TTL only; a freshly written status can be stale for at
// most one TTL.
type statusCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
}

type cacheEntry struct {
	response statusResponse
	expires  time.Time
}

func newStatusCache(ttl time.Duration) *statusCache {
	return &statusCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
	}
}

func (c *statusCache) Get(taskID string) (statusResponse, bool) {
	if c.ttl <= 0 {
		return statusResponse{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[taskID]
	if !ok {
		return statusResponse{}, false
	}
	if time.Now().After(entry.expires) {
		delete(c.entries, taskID)
		return statusResponse{}, false
	}
	return entry.response, true
}

func (c *statusCache) Set(taskID string, resp statusResponse) {
	if c.ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[taskID] = cacheEntry{
		response: resp,
		expires:  time.Now().Add(c.ttl),
	}
}
