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

// State is a thread's position in its lifecycle. See spec.md §3 Thread.
type State int

const (
	StateReady State = iota
	StateRunning
	StateBlocked
	StateDying
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateBlocked:
		return "blocked"
	case StateDying:
		return "dying"
	default:
		return "unknown"
	}
}

const (
	PriMin = 0
	PriMax = 63

	// TimeSlice is the number of ticks a thread may run before a deferred
	// yield is requested at the next preemption checkpoint.
	TimeSlice = 4

	// maxDonationDepth bounds the length of a donation chain (spec.md §9(c)).
	maxDonationDepth = 8
)

// Thread is a schedulable unit of execution. All mutable fields are guarded
// by the owning Scheduler's mutex; a Thread never synchronizes on itself.
type Thread struct {
	ID   uint64
	Name string

	State State

	base      int // caller-set priority
	effective int // max(base, donations)

	// MLFQS-only fields, meaningless while s.mlfqs == false.
	nice      int
	recentCPU Fixed

	// WaitingOn is the lock this thread is blocked trying to acquire, or nil.
	WaitingOn *Lock
	// LocksHeld is the set of locks currently owned by this thread, needed to
	// recompute effective priority on release.
	LocksHeld []*Lock

	sliceTicks   int
	yieldPending bool
	readyBucket  int // priority bucket this thread is currently enqueued under, if State == StateReady

	runGate chan struct{}

	// UserProcess, when non-nil, links this thread to the process-layer state
	// of the user program it is the main thread of (spec.md §3 Thread).
	UserProcess any
}

func newThread(id uint64, name string, priority int) *Thread {
	return &Thread{
		ID:        id,
		Name:      name,
		State:     StateReady,
		base:      priority,
		effective: priority,
		runGate:   make(chan struct{}, 1),
	}
}

// Priority returns the thread's current effective priority.
func (t *Thread) Priority() int { return t.effective }

// BasePriority returns the thread's caller-set base priority (or, under
// MLFQS, the value last computed by the scheduler).
func (t *Thread) BasePriority() int { return t.base }

// Nice returns the MLFQS niceness value.
func (t *Thread) Nice() int { return t.nice }

// RecentCPU returns the MLFQS recent-CPU estimate.
func (t *Thread) RecentCPU() Fixed { return t.recentCPU }

func clampPriority(p int) int {
	if p < PriMin {
		return PriMin
	}
	if p > PriMax {
		return PriMax
	}
	return p
}
