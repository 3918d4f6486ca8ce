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

	"github.com/stretchr/testify/assert"
)

func TestFixedPointRoundTrip(t *testing.T) {
	f := FromInt(59).DivInt(60)
	assert.Equal(t, 0, f.ToIntTrunc())
	assert.Equal(t, 1, f.ToIntRound())
}

func TestRecalcLoadAvgConvergesTowardReadyCount(t *testing.T) {
	s := newTestScheduler()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pushReadyLocked(newThread(200, "steady", 10))
	for i := 0; i < 10000; i++ {
		s.recalcLoadAvgLocked()
	}
	// With one thread permanently ready, load average should converge to 1.
	assert.InDelta(t, 1, s.loadAvg.ToIntRound(), 0)
}

func TestRecomputeMLFQSPriorityClampsToRange(t *testing.T) {
	s := newTestScheduler()
	t1 := newThread(200, "t1", PriMax)
	t1.recentCPU = FromInt(1000)
	t1.nice = 20

	s.mu.Lock()
	s.pushReadyLocked(t1)
	s.recomputeMLFQSPriorityLocked(t1)
	got := t1.Priority()
	s.mu.Unlock()

	assert.GreaterOrEqual(t, got, PriMin)
	assert.LessOrEqual(t, got, PriMax)
}

func TestRecomputeMLFQSPriorityRebucketsReadyThread(t *testing.T) {
	s := newTestScheduler()
	high := newThread(200, "high", 50)
	low := newThread(201, "low", 5)

	s.mu.Lock()
	s.pushReadyLocked(high)
	s.pushReadyLocked(low)

	// Crank up high's recent_cpu so its recomputed priority drops below low's.
	high.recentCPU = FromInt(1000)
	s.recomputeMLFQSPriorityLocked(high)

	got := s.popMaxLocked()
	s.mu.Unlock()

	assert.Same(t, low, got, "a thread whose MLFQS priority drops should no longer be dispatched ahead of a higher-bucket thread")
}

func TestEnableMLFQSSwitchesMode(t *testing.T) {
	s := newTestScheduler()
	assert.False(t, s.MLFQS())
	s.EnableMLFQS()
	assert.True(t, s.MLFQS())
}
