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
	"github.com/go-kerncore/kerncore/internal/clock"
	"github.com/go-kerncore/kerncore/internal/ksync"
)

// Cache is the fixed 64-slot buffer cache sitting in front of a Device.
type Cache struct {
	globalMu *ksync.InvariantMutex

	entries [NumSlots]*entry
	hand    int

	dev blockdev.Device
	clk clock.Clock

	readAhead   *readAheadQueue
	metrics     Metrics
	daemonState *daemons
}

// Metrics are the counters spec.md's DOMAIN STACK wires to Prometheus
// (internal/metrics); kept as a plain struct here so this package has no
// hard dependency on the metrics registry, and tests can assert on it
// directly. Fields are updated with the atomic package since resident()
// touches them both with and without the global lock held.
type Metrics struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// Snapshot returns a consistent copy of the counters.
func (m *Metrics) Snapshot() Metrics {
	return Metrics{
		Hits:      atomic.LoadUint64(&m.Hits),
		Misses:    atomic.LoadUint64(&m.Misses),
		Evictions: atomic.LoadUint64(&m.Evictions),
	}
}

// New creates a cache of NumSlots empty slots in front of dev.
func New(dev blockdev.Device, clk clock.Clock) *Cache {
	c := &Cache{dev: dev, clk: clk}
	c.globalMu = ksync.NewInvariantMutex(c.checkInvariants)
	for i := range c.entries {
		c.entries[i] = newEntry()
	}
	c.readAhead = newReadAheadQueue(c)
	return c
}

// checkInvariants enforces spec.md §8's "the union of [resident sectors] has
// unique sector ids" — restricted to this cache's own slot array; uniqueness
// across the whole open-inode table is internal/fs/inode's concern.
//
// Run from InvariantMutex.Unlock while globalMu's own lock is still held, so
// it must never take a slot's e.mu: resident() always calls
// c.globalMu.Unlock() while holding the very slot lock (match.mu or
// victim.mu) this check would try to acquire, and sync.Mutex is not
// reentrant — locking it here would deadlock that caller against itself.
// Reading sectorID unlocked is a best-effort check, not a guarantee: the
// cache → slot lock order (spec.md §5) means the global lock must always be
// releasable while a slot lock is held.
func (c *Cache) checkInvariants() {
	seen := make(map[uint32]bool, NumSlots)
	for _, e := range c.entries {
		id := e.sectorID
		if id == invalidSector {
			continue
		}
		if seen[id] {
			panic("cache: duplicate resident sector id across slots")
		}
		seen[id] = true
	}
}

// Metrics returns a consistent snapshot of the cache's hit/miss/eviction
// counters.
func (c *Cache) Metrics() Metrics {
	return c.metrics.Snapshot()
}

// Read copies min(len(buf), SectorSize-offset) bytes from sector starting at
// offset into buf. nextSector is a sequentiality hint for read-ahead; pass 0
// for "no hint" (spec.md §9 open question (a): the sentinel 0 is never
// itself read ahead, matching the source this cache is modeled on).
func (c *Cache) Read(sector uint32, nextSector uint32, offset int, buf []byte) {
	e := c.resident(sector)
	e.waitingReaders++
	for e.writers > 0 || e.waitingWriters > 0 || e.loadingIn || e.flushingOut {
		e.cond.Wait()
	}
	e.waitingReaders--
	e.readers++
	e.mu.Unlock()

	n := copy(buf, e.data[offset:])
	_ = n

	e.mu.Lock()
	e.readers--
	e.accessed = true
	e.cond.Broadcast()
	e.mu.Unlock()

	if nextSector != 0 {
		c.readAhead.enqueue(nextSector)
	}
}

// Write copies buf into sector starting at offset and marks the slot dirty.
func (c *Cache) Write(sector uint32, offset int, buf []byte) {
	e := c.resident(sector)
	e.waitingWriters++
	for e.readers > 0 || e.writers > 0 || e.loadingIn || e.flushingOut {
		e.cond.Wait()
	}
	e.waitingWriters--
	e.writers++
	e.mu.Unlock()

	copy(e.data[offset:], buf)

	e.mu.Lock()
	e.writers--
	e.dirty = true
	e.accessed = true
	e.cond.Broadcast()
	e.mu.Unlock()
}

// ForceFlush blockingly writes back every dirty slot; used at filesystem
// shutdown (spec.md §4.2, §6 "Process shutdown").
func (c *Cache) ForceFlush() error {
	for _, e := range c.entries {
		e.mu.Lock()
		if !e.dirty || e.sectorID == invalidSector {
			e.mu.Unlock()
			continue
		}
		for e.flushingOut {
			e.cond.Wait()
		}
		if !e.dirty {
			e.mu.Unlock()
			continue
		}
		e.flushingOut = true
		sector := e.sectorID
		var buf [blockdev.SectorSize]byte
		copy(buf[:], e.data[:])
		e.mu.Unlock()

		if err := c.dev.WriteSector(sector, buf[:]); err != nil {
			e.mu.Lock()
			e.flushingOut = false
			e.cond.Broadcast()
			e.mu.Unlock()
			return err
		}

		e.mu.Lock()
		e.dirty = false
		e.flushingOut = false
		e.cond.Broadcast()
		e.mu.Unlock()
	}
	return nil
}
