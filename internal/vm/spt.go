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

// Package vm implements demand-paged virtual memory (spec.md §4.5): a
// per-process supplemental page table, a global frame table with
// second-chance eviction over an mmap'd physical-frame arena, a swap pool,
// and the page-in/page-fault orchestration tying them together.
package vm

import (
	"github.com/go-kerncore/kerncore/internal/fs/inode"
	"github.com/go-kerncore/kerncore/internal/ksync"
)

// PageSize is the size in bytes of one virtual/physical page.
const PageSize = 4096

// PageType classifies a supplemental-page entry's origin and how it is
// re-filled on a page fault (spec.md §3 "Supplemental-Page Entry").
type PageType int

const (
	// CodeSegment is a read-only page backed by the executable's text.
	CodeSegment PageType = iota
	// DataSegment is a writable page backed by the executable's data.
	DataSegment
	// StackZero is a page of the initial user stack, zero-filled on first
	// fault.
	StackZero
	// MMap is a page backed by a memory-mapped file region.
	MMap
)

// Backing describes the file region a CodeSegment/DataSegment/MMap page is
// read from; ZeroBytes is the tail of the page beyond the file's content
// (PageSize - bytes actually present in the file for this page).
type Backing struct {
	File      *inode.Inode
	Offset    uint32
	ZeroBytes uint32
}

// Entry is one supplemental-page-table entry: a process's knowledge of one
// virtual page regardless of whether it is currently resident.
type Entry struct {
	mu *ksync.InvariantMutex

	VAddr    uint32
	Type     PageType
	Writable bool
	Backing  Backing

	// GUARDED_BY(mu)
	Frame *Frame
	// GUARDED_BY(mu): valid only when Frame == nil and this page has been
	// paged out at least once.
	SwapSlot int
	// GUARDED_BY(mu)
	everFaulted bool
}

func newEntry(vaddr uint32, typ PageType, writable bool, backing Backing) *Entry {
	e := &Entry{VAddr: vaddr, Type: typ, Writable: writable, Backing: backing, SwapSlot: -1}
	e.mu = ksync.NewInvariantMutex(e.checkInvariants)
	return e
}

func (e *Entry) checkInvariants() {
	if e.Frame != nil && e.SwapSlot != -1 {
		panic("vm: supplemental entry is simultaneously resident and swapped out")
	}
}

// Lock/Unlock expose the entry's own lock to the page-fault handler, which
// must hold it across the whole fault-handling sequence (spec.md §4.5).
func (e *Entry) Lock()   { e.mu.Lock() }
func (e *Entry) Unlock() { e.mu.Unlock() }

// Resident reports whether e currently has a backing frame. Caller must
// hold e's lock.
func (e *Entry) Resident() bool { return e.Frame != nil }

// SPT is a per-process mapping from user virtual page address to
// supplemental-page entry.
type SPT struct {
	mu      *ksync.InvariantMutex
	entries map[uint32]*Entry
}

// NewSPT returns an empty supplemental page table.
func NewSPT() *SPT {
	t := &SPT{entries: make(map[uint32]*Entry)}
	t.mu = ksync.NewInvariantMutex(t.checkInvariants)
	return t
}

func (t *SPT) checkInvariants() {}

// InstallCode/InstallData/InstallMMap/InstallStack add a fresh, not-yet-
// resident entry for vaddr (spec.md §4.5: populated at ELF load time, at
// mmap, and at stack setup).
func (t *SPT) InstallCode(vaddr uint32, file *inode.Inode, offset, zeroBytes uint32) {
	t.install(newEntry(vaddr, CodeSegment, false, Backing{File: file, Offset: offset, ZeroBytes: zeroBytes}))
}

func (t *SPT) InstallData(vaddr uint32, file *inode.Inode, offset, zeroBytes uint32) {
	t.install(newEntry(vaddr, DataSegment, true, Backing{File: file, Offset: offset, ZeroBytes: zeroBytes}))
}

func (t *SPT) InstallMMap(vaddr uint32, file *inode.Inode, offset, zeroBytes uint32) {
	t.install(newEntry(vaddr, MMap, true, Backing{File: file, Offset: offset, ZeroBytes: zeroBytes}))
}

func (t *SPT) InstallStack(vaddr uint32) {
	t.install(newEntry(vaddr, StackZero, true, Backing{}))
}

func (t *SPT) install(e *Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[e.VAddr] = e
}

// Lookup returns the entry for vaddr, if any.
func (t *SPT) Lookup(vaddr uint32) (*Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[vaddr]
	return e, ok
}

// Remove deletes the entry for vaddr (used by munmap/process exit).
func (t *SPT) Remove(vaddr uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, vaddr)
}

// All returns every installed entry, for munmap/exit sweeps.
func (t *SPT) All() []*Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	return out
}

// StackFaultAllowed reports whether a fault at addr, given stack pointer sp
// and a fixed stack size limit, should grow the stack (spec.md §4.5: within
// 32 bytes below sp, not above sp, and not below the stack limit).
func StackFaultAllowed(addr, sp, stackLimit uint32) bool {
	if addr < stackLimit {
		return false
	}
	if addr+32 < sp || addr > sp {
		return false
	}
	return true
}
