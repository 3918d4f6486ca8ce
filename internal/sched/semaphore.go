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

// Semaphore is a classic counting semaphore (spec.md §3): Down blocks while
// the count is zero, Up increments it and wakes the highest-priority waiter.
// Unlike Lock, a semaphore has no notion of ownership and does not donate
// priority.
type Semaphore struct {
	s       *Scheduler
	value   int
	waiters []*Thread
}

// NewSemaphore creates a semaphore with the given initial value.
func (s *Scheduler) NewSemaphore(value int) *Semaphore {
	return &Semaphore{s: s, value: value}
}

// Down decrements the semaphore, blocking t if the value is already zero.
func (sem *Semaphore) Down(t *Thread) {
	s := sem.s
	s.mu.Lock()
	if sem.value > 0 {
		sem.value--
		s.mu.Unlock()
		return
	}

	sem.waiters = append(sem.waiters, t)
	s.block(t)
	s.mu.Unlock()

	<-t.runGate
}

// Up increments the semaphore, waking the highest-priority waiter if any
// are blocked on it rather than actually bumping the value (spec.md §3:
// "Up... wakes the highest-priority waiter, if any").
func (sem *Semaphore) Up() {
	s := sem.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(sem.waiters) == 0 {
		sem.value++
		return
	}

	idx := highestWaiterLocked(sem.waiters)
	woken := sem.waiters[idx]
	sem.waiters = append(sem.waiters[:idx], sem.waiters[idx+1:]...)
	s.unblockLocked(woken)
}

// Value returns the semaphore's current count.
func (sem *Semaphore) Value() int {
	sem.s.mu.Lock()
	defer sem.s.mu.Unlock()
	return sem.value
}
