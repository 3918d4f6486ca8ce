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

// Package sched implements the priority-based preemptive thread scheduler
// and its synchronization primitives (spec.md §4.1): an array of FIFO ready
// queues indexed by effective priority, built on internal/common's generic
// Queue. A single goroutine is ever allowed to be "running" at a time,
// mirroring the single-CPU kernel this package emulates; threads that are
// not running block on a per-thread gate channel, and the scheduler hands
// that gate to exactly one thread at a time.
package sched

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-kerncore/kerncore/internal/clock"
	"github.com/go-kerncore/kerncore/internal/common"
)

// Scheduler owns every thread's state. It is the "kernel root handle" for
// the scheduling subsystem (spec.md §9): no package-level globals.
type Scheduler struct {
	mu sync.Mutex

	ready   [PriMax + 1]common.Queue[*Thread]
	current *Thread
	threads map[uint64]*Thread
	nextID  uint64

	idle *Thread

	mlfqs   bool
	loadAvg Fixed
	ticks   uint64

	sleeping []*sleepEntry

	clk clock.Clock

	switches uint64
}

type sleepEntry struct {
	t        *Thread
	wakeTick uint64
}

// New creates a scheduler in round-robin/priority-donation mode (MLFQS off).
// Call EnableMLFQS before spawning any threads to switch modes.
func New(clk clock.Clock) *Scheduler {
	s := &Scheduler{
		threads: make(map[uint64]*Thread),
		clk:     clk,
	}
	for i := range s.ready {
		s.ready[i] = common.NewLinkedListQueue[*Thread]()
	}
	s.idle = newThread(0, "idle", PriMin)
	s.idle.State = StateRunning
	s.current = s.idle
	s.threads[0] = s.idle
	s.nextID = 1
	s.idle.runGate <- struct{}{}
	go s.idleLoop()
	return s
}

// idleLoop is the goroutine backing the idle thread. Pintos's idle thread
// halts the CPU until the next interrupt; since this package has no
// hardware interrupts to wake it, idle instead polls, yielding the CPU
// back to the scheduler so that any thread made ready while idle is
// "running" is picked up promptly. When the ready queues are empty it
// backs off briefly instead of spinning the host CPU at 100%.
func (s *Scheduler) idleLoop() {
	for {
		<-s.idle.runGate
		s.mu.Lock()
		hasWork := s.readyNonEmptyLocked()
		s.mu.Unlock()
		if !hasWork {
			time.Sleep(time.Millisecond)
		}
		s.Yield(s.idle)
	}
}

func (s *Scheduler) readyNonEmptyLocked() bool {
	for p := PriMax; p >= PriMin; p-- {
		if !s.ready[p].IsEmpty() {
			return true
		}
	}
	return false
}

// EnableMLFQS switches the scheduler into multi-level feedback queue mode.
// Must be called before any non-idle thread is spawned.
func (s *Scheduler) EnableMLFQS() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mlfqs = true
}

// MLFQS reports whether the scheduler is in MLFQS mode.
func (s *Scheduler) MLFQS() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mlfqs
}

// Spawn creates a new thread with the given base priority (or nice value,
// if MLFQS is on — see SetPriority) and starts its goroutine, which blocks
// immediately until the scheduler dispatches it. fn runs with the thread
// marked Running; when fn returns the thread exits (spec.md §3 Lifecycle).
func (s *Scheduler) Spawn(name string, priority int, fn func(t *Thread)) *Thread {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	t := newThread(id, name, clampPriority(priority))
	s.threads[id] = t
	s.pushReadyLocked(t)
	s.maybePreemptLocked(t)
	s.mu.Unlock()

	go func() {
		<-t.runGate
		fn(t)
		s.exit(t)
	}()

	return t
}

// Current returns the thread currently holding the CPU.
func (s *Scheduler) Current() *Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Thread looks up a thread by id.
func (s *Scheduler) Thread(id uint64) *Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threads[id]
}

func (s *Scheduler) pushReadyLocked(t *Thread) {
	t.State = StateReady
	t.readyBucket = t.effective
	s.ready[t.effective].Push(t)
}

// removeFromReadyLocked pulls t out of whichever bucket it is currently
// sitting in, preserving the relative order of the threads left behind.
// Returns false if t was not found on any ready queue.
func (s *Scheduler) removeFromReadyLocked(t *Thread) bool {
	q := s.ready[t.readyBucket]
	n := q.Len()
	found := false
	for i := 0; i < n; i++ {
		cand := q.Pop()
		if !found && cand == t {
			found = true
			continue
		}
		q.Push(cand)
	}
	return found
}

// popMaxLocked scans from PriMax down to PriMin and pops the first non-empty
// bucket's front thread: O(PriMax) selection, O(1) enqueue, FIFO within a
// priority (spec.md §4.1 Ready queue shape).
func (s *Scheduler) popMaxLocked() *Thread {
	for p := PriMax; p >= PriMin; p-- {
		if !s.ready[p].IsEmpty() {
			return s.ready[p].Pop()
		}
	}
	return nil
}

// dispatchLocked picks the next thread to run (or the idle thread) and hands
// it the CPU by granting its runGate. It never blocks. Must be called with
// mu held; it does NOT release mu — callers that need to block on runGate
// must unlock first.
func (s *Scheduler) dispatchLocked() *Thread {
	next := s.popMaxLocked()
	if next == nil {
		next = s.idle
		if s.idle.State != StateRunning {
			s.idle.State = StateRunning
		}
	} else {
		next.State = StateRunning
	}
	next.sliceTicks = 0
	next.yieldPending = false
	if s.current != next {
		atomic.AddUint64(&s.switches, 1)
	}
	s.current = next
	select {
	case next.runGate <- struct{}{}:
	default:
		// already has a pending grant (e.g. the idle thread re-selected itself)
	}
	return next
}

// maybePreemptLocked marks the running thread for a deferred yield if the
// newly-readied thread t now outranks it (spec.md §4.1 Dispatch: "a new
// thread enqueued with higher effective priority... preempts immediately").
// Preemption is deferred to the next checkpoint (Tick or an explicit Yield),
// matching the source's interrupt-return-honored flag.
func (s *Scheduler) maybePreemptLocked(t *Thread) {
	if s.current != nil && t.effective > s.current.effective {
		s.current.yieldPending = true
	}
}

// Yield voluntarily gives up the CPU. t must be the calling goroutine's own
// thread and must currently be Running.
func (s *Scheduler) Yield(t *Thread) {
	s.mu.Lock()
	if s.current != t {
		s.mu.Unlock()
		panic("sched: Yield called by a thread that is not current")
	}
	if t != s.idle {
		s.pushReadyLocked(t)
	}
	s.dispatchLocked()
	s.mu.Unlock()

	if s.current != t {
		<-t.runGate
	}
}

// CheckYield is the "interrupt return" checkpoint: if a deferred yield is
// pending for t (set by Tick reaching TimeSlice, or by a higher-priority
// thread becoming ready), t yields the CPU now.
func (s *Scheduler) CheckYield(t *Thread) {
	s.mu.Lock()
	pending := t.yieldPending
	s.mu.Unlock()
	if pending {
		s.Yield(t)
	}
}

// Tick advances the scheduler's notion of time by one timer tick: it wakes
// any sleeping threads whose wake-tick has passed (spec.md §4.1 Timer
// sleep), runs MLFQS bookkeeping if enabled, and bumps the running thread's
// slice counter, requesting a deferred yield at TimeSlice.
func (s *Scheduler) Tick() {
	s.mu.Lock()
	s.ticks++
	cur := s.current

	if cur != s.idle {
		cur.sliceTicks++
		if s.mlfqs {
			cur.recentCPU = cur.recentCPU.AddInt(1)
		}
		if cur.sliceTicks >= TimeSlice {
			cur.yieldPending = true
		}
	}

	s.wakeSleepersLocked()

	if s.mlfqs {
		s.mlfqsTickLocked()
	}
	s.mu.Unlock()
}

// wakeSleepersLocked unblocks every sleeping thread whose wake tick has
// passed (spec.md §4.1). It sorts the whole sleep list by wake tick on each
// call, then wakes the due prefix.
func (s *Scheduler) wakeSleepersLocked() {
	if len(s.sleeping) == 0 {
		return
	}
	sort.Slice(s.sleeping, func(i, j int) bool { return s.sleeping[i].wakeTick < s.sleeping[j].wakeTick })
	i := 0
	for ; i < len(s.sleeping); i++ {
		if s.sleeping[i].wakeTick > s.ticks {
			break
		}
		woken := s.sleeping[i].t
		s.pushReadyLocked(woken)
		s.maybePreemptLocked(woken)
	}
	s.sleeping = s.sleeping[i:]
}

// SleepUntil blocks the calling thread until the scheduler's tick counter
// reaches wakeTick (spec.md §4.1 "sleep_until(tick)").
func (s *Scheduler) SleepUntil(t *Thread, wakeTick uint64) {
	s.mu.Lock()
	if wakeTick <= s.ticks {
		s.mu.Unlock()
		return
	}
	s.sleeping = append(s.sleeping, &sleepEntry{t: t, wakeTick: wakeTick})
	t.State = StateBlocked
	s.dispatchLocked()
	s.mu.Unlock()

	<-t.runGate
}

// Ticks returns the current tick count.
func (s *Scheduler) Ticks() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks
}

// ContextSwitches returns the number of times dispatchLocked has handed the
// CPU to a thread other than the one already running, for internal/metrics
// to surface as a counter.
func (s *Scheduler) ContextSwitches() uint64 {
	return atomic.LoadUint64(&s.switches)
}

// block removes t from contention for the CPU (it must already not be on a
// ready queue) and dispatches the next thread. Must be called with mu held
// by the blocking thread's own goroutine; the caller must then receive on
// t.runGate after unlocking.
func (s *Scheduler) block(t *Thread) {
	t.State = StateBlocked
	s.dispatchLocked()
}

// unblockLocked moves a blocked thread back to Ready and preempts the
// current thread if warranted. Must be called with mu held.
func (s *Scheduler) unblockLocked(t *Thread) {
	s.pushReadyLocked(t)
	s.maybePreemptLocked(t)
}

func (s *Scheduler) exit(t *Thread) {
	s.mu.Lock()
	t.State = StateDying
	delete(s.threads, t.ID)
	s.dispatchLocked()
	s.mu.Unlock()

	if s.current != t {
		<-t.runGate
	}
}

// SetPriority sets a thread's base priority (non-MLFQS) or, under MLFQS,
// its nice value (spec.md §4.1: "While MLFQS is on, base-priority APIs
// write nice instead").
func (s *Scheduler) SetPriority(t *Thread, value int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mlfqs {
		t.nice = value
		s.recomputeMLFQSPriorityLocked(t)
		return
	}

	t.base = clampPriority(value)
	newEffective := s.recomputeEffectiveLocked(t)
	if newEffective != t.effective {
		t.effective = newEffective
		if t.State == StateReady {
			s.removeFromReadyLocked(t)
			s.pushReadyLocked(t)
		}
	}
	if t != s.current {
		s.maybePreemptLocked(t)
	} else if t.effective < s.currentMaxReadyLocked() {
		t.yieldPending = true
	}
}

func (s *Scheduler) currentMaxReadyLocked() int {
	for p := PriMax; p >= PriMin; p-- {
		if !s.ready[p].IsEmpty() {
			return p
		}
	}
	return PriMin - 1
}
