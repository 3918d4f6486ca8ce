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

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-kerncore/kerncore/internal/clock"
)

func newTestScheduler() *Scheduler {
	return New(clock.NewFakeClock(time.Unix(0, 0)))
}

func TestNewSchedulerStartsWithOnlyIdle(t *testing.T) {
	s := newTestScheduler()

	cur := s.Current()
	require.NotNil(t, cur)
	assert.Equal(t, "idle", cur.Name)
	assert.Equal(t, StateRunning, cur.State)
}

func TestSpawnRunsToCompletion(t *testing.T) {
	s := newTestScheduler()
	done := make(chan struct{})

	s.Spawn("worker", 10, func(t *Thread) {
		close(done)
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("spawned thread never ran")
	}
}

func TestSpawnedThreadSeesItselfAsCurrent(t *testing.T) {
	s := newTestScheduler()
	done := make(chan struct{})
	var sawSelf bool

	th := s.Spawn("worker", 10, func(t *Thread) {
		sawSelf = s.Current() == t
		close(done)
	})

	<-done
	assert.True(t, sawSelf)
	assert.Equal(t, "worker", th.Name)
}

func TestPopMaxLockedOrdersByPriority(t *testing.T) {
	s := newTestScheduler()
	low := newThread(100, "low", 5)
	mid := newThread(101, "mid", 20)
	high := newThread(102, "high", 40)

	s.mu.Lock()
	s.pushReadyLocked(low)
	s.pushReadyLocked(high)
	s.pushReadyLocked(mid)

	got := s.popMaxLocked()
	assert.Same(t, high, got)

	got = s.popMaxLocked()
	assert.Same(t, mid, got)

	got = s.popMaxLocked()
	assert.Same(t, low, got)

	assert.Nil(t, s.popMaxLocked())
	s.mu.Unlock()
}

func TestPopMaxLockedFIFOWithinPriority(t *testing.T) {
	s := newTestScheduler()
	first := newThread(100, "first", 10)
	second := newThread(101, "second", 10)

	s.mu.Lock()
	s.pushReadyLocked(first)
	s.pushReadyLocked(second)

	assert.Same(t, first, s.popMaxLocked())
	assert.Same(t, second, s.popMaxLocked())
	s.mu.Unlock()
}

func TestSetPriorityRebucketsReadyThread(t *testing.T) {
	s := newTestScheduler()
	low := newThread(100, "low", 50)
	rising := newThread(101, "rising", 5)

	s.mu.Lock()
	s.pushReadyLocked(low)
	s.pushReadyLocked(rising)
	s.mu.Unlock()

	s.SetPriority(rising, 60)

	s.mu.Lock()
	got := s.popMaxLocked()
	s.mu.Unlock()
	assert.Same(t, rising, got, "raising a ready thread's priority should move it to its new bucket")
}

func TestRemoveFromReadyLockedPreservesOrder(t *testing.T) {
	s := newTestScheduler()
	a := newThread(100, "a", 10)
	b := newThread(101, "b", 10)
	c := newThread(102, "c", 10)

	s.mu.Lock()
	s.pushReadyLocked(a)
	s.pushReadyLocked(b)
	s.pushReadyLocked(c)

	found := s.removeFromReadyLocked(b)
	require.True(t, found)

	assert.Same(t, a, s.popMaxLocked())
	assert.Same(t, c, s.popMaxLocked())
	s.mu.Unlock()
}

func TestTickAccumulatesSliceAndRequestsYield(t *testing.T) {
	s := newTestScheduler()
	done := make(chan struct{})
	started := make(chan struct{})

	th := s.Spawn("worker", 30, func(t *Thread) {
		close(started)
		<-done
	})

	<-started
	for i := 0; i < TimeSlice; i++ {
		s.Tick()
	}

	s.mu.Lock()
	pending := th.yieldPending
	s.mu.Unlock()
	assert.True(t, pending, "yieldPending should be set once sliceTicks reaches TimeSlice")
	close(done)
}

func TestSleepUntilBlocksAndWakes(t *testing.T) {
	s := newTestScheduler()
	woke := make(chan struct{})

	s.Spawn("sleeper", 10, func(t *Thread) {
		s.SleepUntil(t, 5)
		close(woke)
	})

	select {
	case <-woke:
		t.Fatal("sleeper woke before its wake tick")
	case <-time.After(50 * time.Millisecond):
	}

	for i := 0; i < 5; i++ {
		s.Tick()
	}

	select {
	case <-woke:
	case <-time.After(2 * time.Second):
		t.Fatal("sleeper never woke after its wake tick elapsed")
	}
}
