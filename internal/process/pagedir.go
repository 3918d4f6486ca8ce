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

package process

import (
	"sync"

	"github.com/go-kerncore/kerncore/internal/vm"
)

// PageTable is one process's virtual-to-physical mapping: the closest this
// package gets to an x86 page directory, since there is no MMU underneath
// it to walk. It satisfies vm.PageDirectory so internal/vm's page-fault
// handler can install and invalidate mappings without knowing this package
// exists (spec.md §4.5's frame table talks only to the PageDirectory
// interface).
type PageTable struct {
	mu     sync.Mutex
	mapped map[uint32]*vm.Frame
}

// NewPageTable returns an empty page table.
func NewPageTable() *PageTable {
	return &PageTable{mapped: make(map[uint32]*vm.Frame)}
}

func (pt *PageTable) Map(vaddr uint32, frame *vm.Frame, writable bool) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.mapped[vaddr] = frame
}

func (pt *PageTable) Invalidate(vaddr uint32) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	delete(pt.mapped, vaddr)
}

// Frame returns the frame currently mapped at vaddr, if any.
func (pt *PageTable) Frame(vaddr uint32) (*vm.Frame, bool) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	f, ok := pt.mapped[vaddr]
	return f, ok
}
