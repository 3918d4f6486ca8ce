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

// PageDirectory is the process-layer abstraction a page fault installs
// resolved pages into and invalidates evicted ones from; internal/process
// supplies the real implementation, keeping this package free of a
// dependency on process state.
type PageDirectory interface {
	// Map installs vaddr -> the frame table's backing bytes for frame,
	// with the given writable bit.
	Map(vaddr uint32, frame *Frame, writable bool)
	// Invalidate removes any mapping for vaddr.
	Invalidate(vaddr uint32)
}

// Fault resolves a page fault at vaddr for a process whose supplemental
// page table is spt, using ft for frame acquisition and pd to install the
// result (spec.md §4.5 "Frame table + second-chance eviction", "Page-in").
// It returns false if vaddr has no supplemental entry and does not fall
// within the process's valid stack-growth region, meaning the fault is
// unresolvable and the process should be terminated.
func Fault(spt *SPT, ft *FrameTable, pd PageDirectory, vaddr, sp, stackLimit uint32) bool {
	page := vaddr &^ (PageSize - 1)

	entry, ok := spt.Lookup(page)
	if !ok {
		if !StackFaultAllowed(vaddr, sp, stackLimit) {
			return false
		}
		spt.InstallStack(page)
		entry, _ = spt.Lookup(page)
	}

	entry.Lock()
	defer entry.Unlock()

	if entry.Resident() {
		// Already paged in by a racing fault; nothing further to do.
		return true
	}

	frame, victim := ft.Acquire(entry)
	if victim != nil {
		pd.Invalidate(victim.VAddr)
	}

	pageIn(ft, frame, entry)

	entry.Frame = frame
	pd.Map(page, frame, entry.Writable)
	ft.MarkAccessed(frame)
	ft.Unpin(frame)

	return true
}

// pageIn fills frame's bytes according to entry's type and backing
// (spec.md §4.5 "Page-in").
func pageIn(ft *FrameTable, frame *Frame, entry *Entry) {
	data := ft.Bytes(frame)

	switch entry.Type {
	case CodeSegment, DataSegment, MMap:
		n := PageSize - int(entry.Backing.ZeroBytes)
		for i := range data {
			data[i] = 0
		}
		entry.Backing.File.ReadAt(entry.Backing.Offset, data[:n])
	case StackZero:
		for i := range data {
			data[i] = 0
		}
	}

	if entry.SwapSlot != -1 {
		ft.swap.ReadIn(entry.SwapSlot, data)
		ft.swap.Put(entry.SwapSlot)
		entry.SwapSlot = -1
	}
}

// Munmap iterates a process's memory-mapped region starting at vaddr for
// pageCount pages, writing back resident dirty writable pages, clearing
// page-table entries, freeing frames, and removing the supplemental
// entries (spec.md §4.5 "Munmap / process exit").
func Munmap(spt *SPT, ft *FrameTable, pd PageDirectory, vaddr uint32, pageCount int) {
	for i := 0; i < pageCount; i++ {
		page := vaddr + uint32(i*PageSize)
		entry, ok := spt.Lookup(page)
		if !ok {
			continue
		}

		entry.Lock()
		if entry.Resident() {
			if entry.Writable {
				data := ft.Bytes(entry.Frame)
				n := PageSize - int(entry.Backing.ZeroBytes)
				entry.Backing.File.WriteAt(entry.Backing.Offset, data[:n])
			}
			pd.Invalidate(page)
			ft.Release(entry.Frame)
			entry.Frame = nil
		}
		entry.Unlock()

		spt.Remove(page)
	}
}
