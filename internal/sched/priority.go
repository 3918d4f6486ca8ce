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

// recomputeEffectiveLocked implements spec.md §3's invariant: "effective
// priority is always the maximum of base priority and the highest effective
// priority among threads blocked on any lock this thread holds". Must be
// called with the scheduler mutex held.
func (s *Scheduler) recomputeEffectiveLocked(t *Thread) int {
	best := t.base
	for _, l := range t.LocksHeld {
		for _, w := range l.waiters {
			if w.effective > best {
				best = w.effective
			}
		}
	}
	return best
}

// donateLocked raises holder's effective priority to at least amount and,
// if the holder is itself blocked on another lock, propagates the donation
// transitively, bounded by maxDonationDepth (spec.md §4.1, §9(c)).
func (s *Scheduler) donateLocked(l *Lock, amount int, depth int) {
	if depth >= maxDonationDepth {
		return
	}
	holder := l.holder
	if holder == nil || amount <= holder.effective {
		return
	}
	holder.effective = amount
	if holder.State == StateReady {
		s.removeFromReadyLocked(holder)
		s.pushReadyLocked(holder)
	}
	if holder.WaitingOn != nil {
		s.donateLocked(holder.WaitingOn, amount, depth+1)
	}
}

// highestWaiterLocked returns the index of the waiter with the greatest
// effective priority, breaking ties in FIFO order (lowest index first).
func highestWaiterLocked(waiters []*Thread) int {
	best := 0
	for i := 1; i < len(waiters); i++ {
		if waiters[i].effective > waiters[best].effective {
			best = i
		}
	}
	return best
}
