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

	"golang.org/x/time/rate"
)

// Bucket pruning parameters.
const (
	pruneAbove = 10_000
	staleAfter = 10 * time.Minute
)

type principalBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter keeps one token bucket per principal (user id, or client
// IP for anonymous submissions).
type rateLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*principalBucket
	limit    rate.Limit
	burst    int
	interval time.Duration
}

// newRateLimiter allows perMinute requests per principal, with a burst
// of the same size.
func newRateLimiter(perMinute int) *rateLimiter {
	interval := time.Minute / time.Duration(perMinute)
	return &rateLimiter{
		buckets:  make(map[string]*principalBucket),
		limit:    rate.Every(interval),
		burst:    perMinute,
		interval: interval,
	}
}

// Allow consumes one token for principal, reporting whether the
// request may proceed.
func (rl *rateLimiter) Allow(principal string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[principal]
	if !ok {
		if len(rl.buckets) >= pruneAbove {
			rl.prune()
		}
		b = &principalBucket{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[principal] = b
	}
	b.lastSeen = time.Now()
	return b.limiter.Allow()
}

// RetryAfter is the interval a limited client should wait before
// retrying.
func (rl *rateLimiter) RetryAfter() time.Duration {
	return rl.interval
}

// prune drops buckets idle past staleAfter. Caller holds the lock.
func (rl *rateLimiter) prune() {
	cutoff := time.Now().Add(-staleAfter)
	for principal, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, principal)
		}
	}
}
