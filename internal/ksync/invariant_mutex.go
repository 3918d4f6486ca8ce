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

// Package ksync collects the small synchronization helpers every kernel-core
// subsystem builds on: an invariant-checked mutex in the style of
// github.com/jacobsa/syncutil.InvariantMutex, used wherever this repo's
// design notes call for "a lock guarding invariant X" — the buffer cache's
// global lock and per-slot locks, the open-inode table lock, the frame-table
// lock, and the swap-pool lock.
package ksync

import "sync"

// InvariantMutex is a sync.Mutex paired with a function that is run on
// every Unlock, while the mutex is still held, to verify the invariants the
// mutex protects. Lock does not run it. A panic from
// checkInvariants surfaces a genuine bug immediately instead of as a much
// later, harder-to-diagnose symptom.
type InvariantMutex struct {
	mu               sync.Mutex
	checkInvariants  func()
	invariantsActive bool
}

// NewInvariantMutex returns a mutex that calls checkInvariants on every
// Unlock, just before the mutex is released. checkInvariants must not attempt to acquire the mutex itself.
func NewInvariantMutex(checkInvariants func()) *InvariantMutex {
	return &InvariantMutex{checkInvariants: checkInvariants, invariantsActive: true}
}

// NewMutex returns an InvariantMutex with no invariant checking, for
// call sites that want the same API without the overhead.
func NewMutex() *InvariantMutex {
	return &InvariantMutex{}
}

func (m *InvariantMutex) Lock() {
	m.mu.Lock()
}

func (m *InvariantMutex) Unlock() {
	if m.invariantsActive && m.checkInvariants != nil {
		m.checkInvariants()
	}
	m.mu.Unlock()
}

// CheckInvariantsNow runs the invariant check without locking; callers must
// already hold the mutex.
func (m *InvariantMutex) CheckInvariantsNow() {
	if m.invariantsActive && m.checkInvariants != nil {
		m.checkInvariants()
	}
}
