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

package vm_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-kerncore/kerncore/internal/cache"
	"github.com/go-kerncore/kerncore/internal/clock"
	"github.com/go-kerncore/kerncore/internal/fs/inode"
	"github.com/go-kerncore/kerncore/internal/vm"
)

type memDevice struct {
	sectors map[uint32][]byte
	count   uint32
}

func newMemDevice(count uint32) *memDevice {
	return &memDevice{sectors: make(map[uint32][]byte), count: count}
}
func (d *memDevice) SectorCount() uint32 { return d.count }
func (d *memDevice) ReadSector(sector uint32, buf []byte) error {
	copy(buf, d.sectors[sector])
	return nil
}
func (d *memDevice) WriteSector(sector uint32, buf []byte) error {
	cp := make([]byte, inode.BlockSectorSize)
	copy(cp, buf)
	d.sectors[sector] = cp
	return nil
}

// fakePageDirectory records Map/Invalidate calls instead of touching real
// page tables, which this package deliberately has no dependency on.
type fakePageDirectory struct {
	mapped map[uint32]*vm.Frame
}

func newFakePageDirectory() *fakePageDirectory {
	return &fakePageDirectory{mapped: make(map[uint32]*vm.Frame)}
}
func (p *fakePageDirectory) Map(vaddr uint32, frame *vm.Frame, writable bool) {
	p.mapped[vaddr] = frame
}
func (p *fakePageDirectory) Invalidate(vaddr uint32) { delete(p.mapped, vaddr) }

func newFileFixture(t *testing.T) (*inode.Table, *inode.Inode) {
	t.Helper()
	dev := newMemDevice(4096)
	c := cache.New(dev, clock.NewFakeClock(time.Unix(0, 0)))
	fm := inode.NewFreeMap(c, 0, 4096)
	for s := uint32(0); s < 8; s++ {
		fm.MarkUsed(s)
	}
	fm.Persist()
	tbl := inode.NewTable(c, fm)
	sector, ok := fm.Allocate()
	require.True(t, ok)
	require.NoError(t, inode.Create(c, fm, sector, 0, false))
	in := tbl.Open(sector)
	in.WriteAt(0, []byte("hello, kerncore"))
	return tbl, in
}

func TestStackFaultPagesInZeroFilled(t *testing.T) {
	swapDev := newMemDevice(256)
	swap := vm.NewSwapPool(swapDev, 8)
	ft, err := vm.NewFrameTable(4, swap)
	require.NoError(t, err)
	defer ft.Close()

	spt := vm.NewSPT()
	pd := newFakePageDirectory()

	const stackLimit = 0x1000
	const sp = 0x10000
	const faultAddr = sp - 4

	ok := vm.Fault(spt, ft, pd, faultAddr, sp, stackLimit)
	require.True(t, ok)
	assert.Contains(t, pd.mapped, uint32(faultAddr&^(vm.PageSize-1)))
}

func TestFaultOutsideStackRegionFails(t *testing.T) {
	swapDev := newMemDevice(256)
	swap := vm.NewSwapPool(swapDev, 8)
	ft, err := vm.NewFrameTable(4, swap)
	require.NoError(t, err)
	defer ft.Close()

	spt := vm.NewSPT()
	pd := newFakePageDirectory()

	ok := vm.Fault(spt, ft, pd, 0x500000, 0x10000, 0x1000)
	assert.False(t, ok)
}

func TestCodeSegmentFaultReadsFromFile(t *testing.T) {
	tbl, in := newFileFixture(t)
	defer tbl.Close(in)

	swapDev := newMemDevice(256)
	swap := vm.NewSwapPool(swapDev, 8)
	ft, err := vm.NewFrameTable(4, swap)
	require.NoError(t, err)
	defer ft.Close()

	spt := vm.NewSPT()
	spt.InstallCode(0x400000, in, 0, vm.PageSize-15)
	pd := newFakePageDirectory()

	ok := vm.Fault(spt, ft, pd, 0x400000, 0x10000, 0x1000)
	require.True(t, ok)

	frame := pd.mapped[0x400000]
	require.NotNil(t, frame)
	assert.Equal(t, "hello, kerncore", string(ft.Bytes(frame)[:15]))
}

func TestEvictionSwapsOutAndBackIn(t *testing.T) {
	swapDev := newMemDevice(256)
	swap := vm.NewSwapPool(swapDev, 8)
	ft, err := vm.NewFrameTable(1, swap) // exactly one frame: second fault must evict
	require.NoError(t, err)
	defer ft.Close()

	spt := vm.NewSPT()
	pd := newFakePageDirectory()

	spt.InstallStack(0x10000)
	spt.InstallStack(0x20000)

	require.True(t, vm.Fault(spt, ft, pd, 0x10000, 0x10000+4, 0x1000))
	firstFrame := pd.mapped[0x10000]

	// Second fault forces eviction of the first page's frame.
	require.True(t, vm.Fault(spt, ft, pd, 0x20000, 0x20000+4, 0x1000))
	assert.NotContains(t, pd.mapped, uint32(0x10000), "evicted page must be invalidated in the page directory")

	// Faulting the first page again must page it back in via the same
	// (now-reused) frame table, without error.
	require.True(t, vm.Fault(spt, ft, pd, 0x10000, 0x10000+4, 0x1000))
	assert.Contains(t, pd.mapped, uint32(0x10000))
	_ = firstFrame
}
