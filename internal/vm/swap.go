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

package vm

import (
	"github.com/go-kerncore/kerncore/internal/blockdev"
	"github.com/go-kerncore/kerncore/internal/ksync"
)

// SectorsPerSlot is the number of consecutive disk sectors one swap slot
// occupies: PageSize / blockdev.SectorSize (spec.md §3 "Swap Pool": "8
// sectors each").
const SectorsPerSlot = PageSize / blockdev.SectorSize

// SwapPool is a free list of page-sized slots over a dedicated swap device.
type SwapPool struct {
	mu   *ksync.InvariantMutex
	dev  blockdev.Device
	free []int
}

// NewSwapPool creates a swap pool of numSlots slots over dev, all initially
// free.
func NewSwapPool(dev blockdev.Device, numSlots int) *SwapPool {
	free := make([]int, numSlots)
	for i := range free {
		free[i] = i
	}
	p := &SwapPool{dev: dev, free: free}
	p.mu = ksync.NewInvariantMutex(p.checkInvariants)
	return p
}

func (p *SwapPool) checkInvariants() {}

// Get pops a free slot. Swap exhaustion is fatal (spec.md §4.5, §7): the
// kernel cannot make forward progress once a page must be evicted but
// nowhere exists to put it, so this panics rather than returning an error.
func (p *SwapPool) Get() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) == 0 {
		panic("vm: swap pool exhausted")
	}
	slot := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	return slot
}

// Put returns slot to the free list.
func (p *SwapPool) Put(slot int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = append(p.free, slot)
}

// ReadIn reads the PageSize bytes of slot into buf via SectorsPerSlot
// sequential sector reads.
func (p *SwapPool) ReadIn(slot int, buf []byte) {
	base := uint32(slot * SectorsPerSlot)
	for i := 0; i < SectorsPerSlot; i++ {
		lo := i * blockdev.SectorSize
		p.dev.ReadSector(base+uint32(i), buf[lo:lo+blockdev.SectorSize])
	}
}

// WriteOut writes the PageSize bytes of buf to slot via SectorsPerSlot
// sequential sector writes.
func (p *SwapPool) WriteOut(slot int, buf []byte) {
	base := uint32(slot * SectorsPerSlot)
	for i := 0; i < SectorsPerSlot; i++ {
		lo := i * blockdev.SectorSize
		p.dev.WriteSector(base+uint32(i), buf[lo:lo+blockdev.SectorSize])
	}
}
