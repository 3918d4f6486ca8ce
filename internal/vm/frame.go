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

package vm

import (
	"fmt"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/go-kerncore/kerncore/internal/ksync"
)

// Frame is one physical-frame slot in the frame table (spec.md §3 "Frame
// Table Entry").
type Frame struct {
	Index    int
	Owner    *Entry
	Pinned   bool
	Accessed bool
}

// FrameTable is the global list of physical frames, the clock hand used to
// pick an eviction victim, and the mmap'd arena backing their storage
// (spec.md §4.5).
type FrameTable struct {
	mu     *ksync.InvariantMutex
	arena  []byte
	frames []*Frame
	free   []int
	hand   int
	swap   *SwapPool

	evictions uint64
}

// NewFrameTable mmaps a numFrames*PageSize anonymous arena to back physical
// frame storage (grounded on the teacher/pack's use of
// golang.org/x/sys/unix.Mmap for page-aligned buffers) and returns a table
// of that many initially-free frames.
func NewFrameTable(numFrames int, swap *SwapPool) (*FrameTable, error) {
	arena, err := unix.Mmap(-1, 0, numFrames*PageSize,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("vm: mmap frame arena: %w", err)
	}

	frames := make([]*Frame, numFrames)
	free := make([]int, numFrames)
	for i := range frames {
		frames[i] = &Frame{Index: i}
		free[i] = i
	}

	ft := &FrameTable{arena: arena, frames: frames, free: free, swap: swap}
	ft.mu = ksync.NewInvariantMutex(ft.checkInvariants)
	return ft, nil
}

func (ft *FrameTable) checkInvariants() {
	for _, f := range ft.frames {
		if f.Owner != nil && f.Owner.Frame != f {
			panic("vm: frame/supplemental-entry back-pointer mismatch")
		}
	}
}

// Close unmaps the arena. Must only be called once no frame is in use.
func (ft *FrameTable) Close() error {
	return unix.Munmap(ft.arena)
}

// Bytes returns the PageSize-byte slice backing f's physical storage.
func (ft *FrameTable) Bytes(f *Frame) []byte {
	return ft.arena[f.Index*PageSize : (f.Index+1)*PageSize]
}

// Acquire obtains a pinned frame for owner, evicting a victim via
// second-chance clock replacement if none is free (spec.md §4.5). On
// eviction the victim's contents are flushed (written back to its file for
// a dirty writable MMap page, or swapped out otherwise) and its
// supplemental entry's residency is cleared before the frame is handed to
// owner; the caller is responsible for invalidating the evicted page's
// page-table entry using the returned victim, since page tables are owned
// by the process layer rather than this package.
func (ft *FrameTable) Acquire(owner *Entry) (frame *Frame, victim *Entry) {
	ft.mu.Lock()

	if len(ft.free) > 0 {
		idx := ft.free[len(ft.free)-1]
		ft.free = ft.free[:len(ft.free)-1]
		f := ft.frames[idx]
		f.Owner = owner
		f.Pinned = true
		f.Accessed = false
		ft.mu.Unlock()
		return f, nil
	}

	f := ft.pickVictimLocked()
	victimEntry := f.Owner
	ft.mu.Unlock()
	atomic.AddUint64(&ft.evictions, 1)

	ft.flushVictim(f, victimEntry)

	ft.mu.Lock()
	f.Owner = owner
	f.Pinned = true
	f.Accessed = false
	ft.mu.Unlock()

	return f, victimEntry
}

// pickVictimLocked runs the second-chance clock: prefer a non-pinned,
// non-accessed, non-CodeSegment frame; if a full sweep finds none, a second
// sweep allows evicting a CodeSegment frame too (spec.md §4.5). Must be
// called with mu held; returns with mu still held, Owner still set to the
// victim (caller flushes and reassigns after dropping mu).
func (ft *FrameTable) pickVictimLocked() *Frame {
	if picked := ft.sweepLocked(true); picked != nil {
		return picked
	}
	if picked := ft.sweepLocked(false); picked != nil {
		return picked
	}
	panic("vm: frame table has no evictable frame (all pinned)")
}

func (ft *FrameTable) sweepLocked(skipCode bool) *Frame {
	n := len(ft.frames)
	for i := 0; i < 2*n; i++ {
		ft.hand = (ft.hand + 1) % n
		f := ft.frames[ft.hand]
		if f.Pinned || f.Owner == nil {
			continue
		}
		if skipCode && f.Owner.Type == CodeSegment {
			continue
		}
		if f.Accessed {
			f.Accessed = false
			continue
		}
		return f
	}
	return nil
}

// flushVictim writes back victim's contents (if dirty and needed) and
// clears its supplemental entry's residency. Called with the frame table
// lock NOT held, since it performs file/swap I/O.
func (ft *FrameTable) flushVictim(f *Frame, victim *Entry) {
	victim.Lock()
	data := ft.Bytes(f)

	switch victim.Type {
	case CodeSegment:
		// Read-only and always re-readable from its executable file:
		// evict by simple discard, no swap slot needed.
	case MMap:
		if victim.Writable {
			n := PageSize - int(victim.Backing.ZeroBytes)
			victim.Backing.File.WriteAt(victim.Backing.Offset, data[:n])
		}
	default: // DataSegment, StackZero
		slot := ft.swap.Get()
		ft.swap.WriteOut(slot, data)
		victim.SwapSlot = slot
	}

	victim.Frame = nil
	victim.Unlock()
}

// Release returns f to the free list without flushing (used by munmap/exit
// when the page's contents have already been handled by the caller).
func (ft *FrameTable) Release(f *Frame) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	f.Owner = nil
	f.Pinned = false
	f.Accessed = false
	ft.free = append(ft.free, f.Index)
}

// Unpin clears f's pinned flag once page-in has finished installing it in
// the owner's page directory.
func (ft *FrameTable) Unpin(f *Frame) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	f.Pinned = false
}

// MarkAccessed sets f's accessed bit (called by the page-fault handler on a
// successful resolution, standing in for hardware's accessed-bit update).
func (ft *FrameTable) MarkAccessed(f *Frame) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	f.Accessed = true
}

// Evictions returns the number of second-chance evictions performed so far,
// for internal/metrics to surface as a counter.
func (ft *FrameTable) Evictions() uint64 {
	return atomic.LoadUint64(&ft.evictions)
}
