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

package inode

import (
	"github.com/go-kerncore/kerncore/internal/cache"
	"github.com/go-kerncore/kerncore/internal/ksync"
)

// FreeMap is the bitmap of all disk sectors, persisted as a file living at a
// reserved sector range (spec.md §6, §4.3's free-map prose). Bit i set means
// sector i is in use. Allocation is a linear scan; release flips a bit back.
type FreeMap struct {
	mu *ksync.InvariantMutex

	bits         []byte
	totalSectors uint32
	baseSector   uint32 // first sector of the bitmap's own backing storage

	c *cache.Cache
}

// NewFreeMap creates a free map over totalSectors sectors, persisted starting
// at baseSector, with every sector initially free, including the range the
// free map itself occupies; callers reserve that range with MarkUsed.
func NewFreeMap(c *cache.Cache, baseSector, totalSectors uint32) *FreeMap {
	fm := &FreeMap{
		bits:         make([]byte, bitmapBytes(totalSectors)),
		totalSectors: totalSectors,
		baseSector:   baseSector,
		c:            c,
	}
	fm.mu = ksync.NewInvariantMutex(fm.checkInvariants)
	return fm
}

func bitmapBytes(totalSectors uint32) int {
	return int((totalSectors + 7) / 8)
}

func (fm *FreeMap) checkInvariants() {
	if int(bitmapBytes(fm.totalSectors)) != len(fm.bits) {
		panic("inode: free map bitmap size does not match sector count")
	}
}

// LoadFreeMap reconstructs a FreeMap from its persisted bitmap sectors.
func LoadFreeMap(c *cache.Cache, baseSector, totalSectors uint32) *FreeMap {
	fm := NewFreeMap(c, baseSector, totalSectors)
	nSectors := (len(fm.bits) + BlockSectorSize - 1) / BlockSectorSize
	for i := 0; i < nSectors; i++ {
		buf := make([]byte, BlockSectorSize)
		fm.c.Read(baseSector+uint32(i), 0, 0, buf)
		lo := i * BlockSectorSize
		hi := lo + BlockSectorSize
		if hi > len(fm.bits) {
			hi = len(fm.bits)
		}
		copy(fm.bits[lo:hi], buf[:hi-lo])
	}
	return fm
}

// MarkUsed forces sector to be recorded as in-use without persisting
// (used while bootstrapping reserved sectors before the free map itself is
// ready to be written through the cache).
func (fm *FreeMap) MarkUsed(sector uint32) {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	setBit(fm.bits, sector)
}

// Persist writes the whole bitmap back to its reserved sectors.
func (fm *FreeMap) Persist() {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	fm.persistLocked()
}

func (fm *FreeMap) persistLocked() {
	nSectors := (len(fm.bits) + BlockSectorSize - 1) / BlockSectorSize
	for i := 0; i < nSectors; i++ {
		lo := i * BlockSectorSize
		hi := lo + BlockSectorSize
		buf := make([]byte, BlockSectorSize)
		if hi > len(fm.bits) {
			hi = len(fm.bits)
		}
		copy(buf, fm.bits[lo:hi])
		fm.c.Write(fm.baseSector+uint32(i), 0, buf)
	}
}

// Allocate finds and claims the lowest-numbered free sector, returning
// (sector, true), or (0, false) if the disk is full.
func (fm *FreeMap) Allocate() (uint32, bool) {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	for s := uint32(0); s < fm.totalSectors; s++ {
		if !testBit(fm.bits, s) {
			setBit(fm.bits, s)
			fm.persistLocked()
			return s, true
		}
	}
	return 0, false
}

// Release returns sector to the free pool.
func (fm *FreeMap) Release(sector uint32) {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	clearBit(fm.bits, sector)
	fm.persistLocked()
}

// IsUsed reports whether sector is currently marked allocated.
func (fm *FreeMap) IsUsed(sector uint32) bool {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	return testBit(fm.bits, sector)
}

func setBit(bits []byte, i uint32)   { bits[i/8] |= 1 << (i % 8) }
func clearBit(bits []byte, i uint32) { bits[i/8] &^= 1 << (i % 8) }
func testBit(bits []byte, i uint32) bool {
	return bits[i/8]&(1<<(i%8)) != 0
}
