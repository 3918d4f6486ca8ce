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

// Package cache implements the 64-slot clock-algorithm buffer cache that
// sits between the inode layer and the raw block device (spec.md §4.2): a
// fixed array of slots, each a rendezvous point between a reader/writer, an
// in-flight flush-then-load "switch" transition, and the read-ahead and
// write-behind daemons.
package cache

import (
	"sync"

	"github.com/go-kerncore/kerncore/internal/blockdev"
	"github.com/go-kerncore/kerncore/internal/ksync"
)

// NumSlots is the fixed number of buffer-cache entries.
const NumSlots = 64

// invalidSector is the sentinel meaning "this slot holds no sector". Real
// sector numbers (including 0, used by the free map) are all valid, so the
// sentinel must live outside the representable range's low end.
const invalidSector = ^uint32(0)

// entry is one buffer-cache slot. All fields below mu are guarded by mu;
// mu itself nests under the cache's global lock only while a slot is being
// found or chosen for eviction (spec.md §4.2: the global lock is dropped
// before waiting on a slot's condition variable or doing raw I/O).
type entry struct {
	mu   *ksync.InvariantMutex
	cond *sync.Cond

	sectorID     uint32 // current contents, or invalidSector
	nextSectorID uint32 // reserved during a flush-then-load switch

	dirty       bool
	accessed    bool
	loadingIn   bool
	flushingOut bool

	readers        int
	writers        int
	waitingReaders int
	waitingWriters int

	data [blockdev.SectorSize]byte
}

func newEntry() *entry {
	e := &entry{sectorID: invalidSector, nextSectorID: invalidSector}
	e.mu = ksync.NewInvariantMutex(e.checkInvariants)
	e.cond = sync.NewCond(e.mu)
	return e
}

// checkInvariants enforces spec.md §8: "no cache slot has simultaneous
// loading_in and flushing_out"; "readers > 0 => writers == 0"; "writers > 0
// => readers == 0"; "a dirty slot's sector id is valid". Must be called with
// e.mu held.
func (e *entry) checkInvariants() {
	if e.loadingIn && e.flushingOut {
		panic("cache: slot is simultaneously loading and flushing")
	}
	if e.readers > 0 && e.writers > 0 {
		panic("cache: slot has simultaneous readers and writers")
	}
	if e.dirty && e.sectorID == invalidSector {
		panic("cache: dirty slot has no valid sector id")
	}
}

// idleLocked reports whether the slot is free of readers, writers, waiters,
// and in-flight I/O — the precondition for eviction (spec.md §4.2, §8).
func (e *entry) idleLocked() bool {
	return e.readers == 0 && e.writers == 0 &&
		e.waitingReaders == 0 && e.waitingWriters == 0 &&
		!e.loadingIn && !e.flushingOut
}
