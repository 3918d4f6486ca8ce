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

	"github.com/google/uuid"
)

// WaitBlock is shared between a parent and exactly one child (spec.md §3
// "Wait Block"). It is allocated before the child's thread starts, added to
// the parent's child list once the child's load succeeds, and dropped by the
// parent on wait (or on parent exit, when finish clears that list).
type WaitBlock struct {
	// ID is a stable identifier for logging/tracing, not used for lookup.
	ID       string
	ChildTID uint64

	mu       sync.Mutex
	cond     *sync.Cond
	exited   bool
	exitCode int
}

func newWaitBlock(childTID uint64) *WaitBlock {
	wb := &WaitBlock{ID: uuid.NewString(), ChildTID: childTID}
	wb.cond = sync.NewCond(&wb.mu)
	return wb
}

// signalExit records the child's exit code and wakes anyone waiting on it.
func (wb *WaitBlock) signalExit(code int) {
	wb.mu.Lock()
	wb.exited = true
	wb.exitCode = code
	wb.mu.Unlock()
	wb.cond.Broadcast()
}

// wait blocks until the child has exited, then returns its exit code. Must
// only be called once per wait block (the caller removes it from its child
// list before calling wait, enforcing "fail if already waited-on").
func (wb *WaitBlock) wait() int {
	wb.mu.Lock()
	defer wb.mu.Unlock()
	for !wb.exited {
		wb.cond.Wait()
	}
	return wb.exitCode
}
