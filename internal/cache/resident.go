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

package cache

import (
	"sync/atomic"

	"github.com/go-kerncore/kerncore/internal/blockdev"
)

// resident returns the slot holding sector, loading it (possibly evicting
// another slot first) if necessary. It returns with the slot's lock held
// and the cache's global lock released — callers must unlock it.
func (c *Cache) resident(sector uint32) *entry {
	for {
		c.globalMu.Lock()
		var match *entry
		for _, e := range c.entries {
			e.mu.Lock()
			if e.sectorID == sector || e.nextSectorID == sector {
				match = e
				break
			}
			e.mu.Unlock()
		}

		if match != nil {
			c.globalMu.Unlock()
			for match.loadingIn || match.flushingOut {
				match.cond.Wait()
			}
			if match.sectorID == sector {
				atomic.AddUint64(&c.metrics.Hits, 1)
				return match
			}
			// The slot was repurposed to a different sector while we
			// waited for its switch to finish; start over.
			match.mu.Unlock()
			continue
		}

		atomic.AddUint64(&c.metrics.Misses, 1)
		victim := c.pickVictimLocked()
		victim.nextSectorID = sector
		c.globalMu.Unlock()

		if victim.dirty {
			victim.flushingOut = true
			old := victim.sectorID
			var buf [blockdev.SectorSize]byte
			copy(buf[:], victim.data[:])
			victim.mu.Unlock()

			// Failure model: raw block I/O is assumed to succeed (spec.md §4.2).
			c.dev.WriteSector(old, buf[:])

			victim.mu.Lock()
			victim.dirty = false
			victim.flushingOut = false
			victim.cond.Broadcast()
		}

		victim.loadingIn = true
		victim.mu.Unlock()

		var buf [blockdev.SectorSize]byte
		c.dev.ReadSector(sector, buf[:])

		victim.mu.Lock()
		copy(victim.data[:], buf[:])
		evicted := victim.sectorID != invalidSector
		victim.sectorID = sector
		victim.nextSectorID = invalidSector
		victim.loadingIn = false
		victim.accessed = false
		victim.cond.Broadcast()
		if evicted {
			atomic.AddUint64(&c.metrics.Evictions, 1)
		}
		return victim
	}
}

// pickVictimLocked runs the clock algorithm to find an idle, unaccessed slot
// to repurpose. Must be called with globalMu held; returns with the chosen
// entry's lock held.
func (c *Cache) pickVictimLocked() *entry {
	for {
		for i := 0; i < NumSlots; i++ {
			c.hand = (c.hand + 1) % NumSlots
			e := c.entries[c.hand]
			e.mu.Lock()
			if !e.idleLocked() {
				e.mu.Unlock()
				continue
			}
			if e.accessed {
				e.accessed = false
				e.mu.Unlock()
				continue
			}
			return e
		}
		// Every slot was busy or freshly accessed; the sweep above cleared
		// every accessed bit, so the next pass is guaranteed to make progress
		// once any in-flight readers/writers/I-O drain.
	}
}
