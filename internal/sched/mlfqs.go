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

// TimerFreq is the number of ticks per second, used to gate the once-a-
// second load-average/recent-CPU recalculation (spec.md §4.1 MLFQS mode).
const TimerFreq = 100

const niceMin, niceMax = -20, 20

// mlfqsTickLocked runs the per-tick MLFQS bookkeeping: every second,
// recompute load average and every thread's recent_cpu; every 4 ticks,
// recompute every thread's priority and re-bucket it if its priority class
// changed. Must be called with mu held.
func (s *Scheduler) mlfqsTickLocked() {
	if s.ticks%TimerFreq == 0 {
		s.recalcLoadAvgLocked()
		for _, t := range s.threads {
			s.recalcRecentCPULocked(t)
		}
	}
	if s.ticks%4 == 0 {
		for _, t := range s.threads {
			s.recomputeMLFQSPriorityLocked(t)
		}
	}
}

func (s *Scheduler) readyCountLocked() int {
	n := 0
	for _, q := range s.ready {
		n += q.Len()
	}
	if s.current != nil && s.current != s.idle {
		n++
	}
	return n
}

// recalcLoadAvgLocked: load_avg = (59/60)*load_avg + (1/60)*ready_count.
func (s *Scheduler) recalcLoadAvgLocked() {
	fiftyNineSixtieths := FromInt(59).DivInt(60)
	oneSixtieth := FromInt(1).DivInt(60)
	readyCount := FromInt(s.readyCountLocked())
	s.loadAvg = fiftyNineSixtieths.Mul(s.loadAvg).Add(oneSixtieth.Mul(readyCount))
}

// recalcRecentCPULocked: recent_cpu = (2*load_avg)/(2*load_avg+1)*recent_cpu + nice.
func (s *Scheduler) recalcRecentCPULocked(t *Thread) {
	twoLoadAvg := s.loadAvg.MulInt(2)
	coeff := twoLoadAvg.Div(twoLoadAvg.AddInt(1))
	t.recentCPU = coeff.Mul(t.recentCPU).AddInt(t.nice)
}

// recomputeMLFQSPriorityLocked: priority = clamp(PRI_MAX - recent_cpu/4 - nice*2).
func (s *Scheduler) recomputeMLFQSPriorityLocked(t *Thread) {
	p := FromInt(PriMax).Sub(t.recentCPU.DivInt(4)).Sub(FromInt(t.nice * 2))
	newPriority := clampPriority(p.ToIntRound())
	if newPriority == t.effective {
		return
	}
	t.effective = newPriority
	t.base = newPriority
	if t.State == StateReady {
		s.removeFromReadyLocked(t)
		s.pushReadyLocked(t)
	} else if t != s.current {
		s.maybePreemptLocked(t)
	}
}
