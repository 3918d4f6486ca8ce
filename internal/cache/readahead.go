// Copyright 2025 Google LLC
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

package cache

import "sync"

// readAheadQueue is the request queue a completed sequential read enqueues
// onto; a dedicated daemon drains it and speculatively brings the next
// sector into cache (spec.md §4.2).
type readAheadQueue struct {
	c *Cache

	mu      sync.Mutex
	cond    *sync.Cond
	pending []uint32
	closed  bool
}

func newReadAheadQueue(c *Cache) *readAheadQueue {
	q := &readAheadQueue{c: c}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *readAheadQueue) enqueue(sector uint32) {
	q.mu.Lock()
	if !q.closed {
		q.pending = append(q.pending, sector)
		q.cond.Signal()
	}
	q.mu.Unlock()
}

func (q *readAheadQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

// run drains the queue until close is called. On contention acquiring the
// cache's slot for a prefetch target, the real source re-enqueues the
// request rather than block; this daemon achieves the same end (never
// delaying a foreground reader/writer) simply by doing its own cache-fill
// work in its own goroutine, so a foreground acquisition of the same slot
// proceeds independently.
func (q *readAheadQueue) run() {
	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.closed {
			q.cond.Wait()
		}
		if q.closed && len(q.pending) == 0 {
			q.mu.Unlock()
			return
		}
		sector := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()

		e := q.c.resident(sector)
		e.accessed = true
		e.mu.Unlock()
	}
}
