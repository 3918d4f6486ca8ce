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

package sched

// Cond is a condition variable associated with a Lock, modeled as a list of
// one-shot waiter semaphores (spec.md §3): Wait atomically releases the
// lock and blocks on a fresh per-waiter semaphore, Signal wakes the single
// highest-priority waiter, Broadcast wakes them all. The caller must hold l
// across Wait/Signal/Broadcast, exactly as with a standard Mesa-style
// monitor condition variable.
type Cond struct {
	s       *Scheduler
	l       *Lock
	waiters []*condWaiter
}

type condWaiter struct {
	sem      *Semaphore
	priority int
}

// NewCond creates a condition variable guarded by l.
func (s *Scheduler) NewCond(l *Lock) *Cond {
	return &Cond{s: s, l: l}
}

// Wait releases c's lock and blocks t until signaled, then reacquires the
// lock before returning. t must currently hold the lock.
func (c *Cond) Wait(t *Thread) {
	sem := c.s.NewSemaphore(0)
	c.waiters = append(c.waiters, &condWaiter{sem: sem, priority: t.effective})

	c.l.Release(t)
	sem.Down(t)
	c.l.Acquire(t)
}

// Signal wakes the highest-priority thread blocked in Wait, if any.
func (c *Cond) Signal() {
	if len(c.waiters) == 0 {
		return
	}
	best := 0
	for i := 1; i < len(c.waiters); i++ {
		if c.waiters[i].priority > c.waiters[best].priority {
			best = i
		}
	}
	w := c.waiters[best]
	c.waiters = append(c.waiters[:best], c.waiters[best+1:]...)
	w.sem.Up()
}

// Broadcast wakes every thread blocked in Wait.
func (c *Cond) Broadcast() {
	for len(c.waiters) > 0 {
		c.Signal()
	}
}
