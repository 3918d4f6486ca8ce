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

package inode_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-kerncore/kerncore/internal/cache"
	"github.com/go-kerncore/kerncore/internal/clock"
	"github.com/go-kerncore/kerncore/internal/fs/inode"
)

// memDevice is an in-RAM blockdev.Device test double, sized generously
// enough to exercise multi-level indirection without a real disk image.
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

const (
	freeMapBase   = 0
	freeMapSpan   = 4 // sectors reserved for the bitmap itself
	rootDirSector = freeMapBase + freeMapSpan
	firstFree     = rootDirSector + 1
	totalSectors  = 4096
)

func newTestFixture(t *testing.T) (*cache.Cache, *inode.FreeMap, *inode.Table) {
	t.Helper()
	dev := newMemDevice(totalSectors)
	c := cache.New(dev, clock.NewFakeClock(time.Unix(0, 0)))
	fm := inode.NewFreeMap(c, freeMapBase, totalSectors)
	for s := uint32(0); s < firstFree; s++ {
		fm.MarkUsed(s)
	}
	fm.Persist()
	tbl := inode.NewTable(c, fm)
	return c, fm, tbl
}

func TestCreateOpenReadWriteRoundTrips(t *testing.T) {
	c, fm, tbl := newTestFixture(t)

	sector, ok := fm.Allocate()
	require.True(t, ok)
	require.NoError(t, inode.Create(c, fm, sector, 0, false))

	in := tbl.Open(sector)
	defer tbl.Close(in)

	want := bytes.Repeat([]byte("kerncore"), 100) // 800 bytes, spans >1 sector
	n := in.WriteAt(0, want)
	assert.Equal(t, len(want), n)

	got := make([]byte, len(want))
	n = in.ReadAt(0, got)
	assert.Equal(t, len(want), n)
	assert.Equal(t, want, got)
}

func TestWriteGrowsSparselyWithZeroFill(t *testing.T) {
	c, fm, tbl := newTestFixture(t)

	sector, ok := fm.Allocate()
	require.True(t, ok)
	require.NoError(t, inode.Create(c, fm, sector, 0, false))

	in := tbl.Open(sector)
	defer tbl.Close(in)

	in.WriteAt(100000, []byte("end"))
	assert.EqualValues(t, 100003, in.Length())

	got := make([]byte, 100000)
	n := in.ReadAt(0, got)
	assert.Equal(t, 100000, n)
	for _, b := range got {
		assert.Equal(t, byte(0), b)
	}
}

func TestReadShortReadsAtEOF(t *testing.T) {
	c, fm, tbl := newTestFixture(t)

	sector, ok := fm.Allocate()
	require.True(t, ok)
	require.NoError(t, inode.Create(c, fm, sector, 0, false))

	in := tbl.Open(sector)
	defer tbl.Close(in)

	in.WriteAt(0, []byte("hello"))
	buf := make([]byte, 100)
	n := in.ReadAt(0, buf)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(buf[:n]))
}

func TestOpenTwiceSharesOneInMemoryInode(t *testing.T) {
	c, fm, tbl := newTestFixture(t)
	sector, ok := fm.Allocate()
	require.True(t, ok)
	require.NoError(t, inode.Create(c, fm, sector, 0, false))

	a := tbl.Open(sector)
	b := tbl.Open(sector)
	assert.Same(t, a, b)

	tbl.Close(a)
	tbl.Close(b)
}

func TestRemoveWhileOpenFreesSectorsOnLastClose(t *testing.T) {
	c, fm, tbl := newTestFixture(t)
	sector, ok := fm.Allocate()
	require.True(t, ok)
	require.NoError(t, inode.Create(c, fm, sector, 512, false))

	in := tbl.Open(sector)
	other := tbl.Open(sector)

	tbl.Remove(in)
	// Still readable while at least one opener remains (spec.md §8 item 6).
	buf := make([]byte, 10)
	n := in.ReadAt(0, buf)
	assert.Equal(t, 10, n)

	tbl.Close(in)
	assert.True(t, fm.IsUsed(sector), "sector must stay allocated while another opener remains")

	tbl.Close(other)
	assert.False(t, fm.IsUsed(sector), "sector must be freed once the last opener closes")
}

func TestDenyWriteAssertsCountBound(t *testing.T) {
	c, fm, tbl := newTestFixture(t)
	sector, ok := fm.Allocate()
	require.True(t, ok)
	require.NoError(t, inode.Create(c, fm, sector, 0, false))

	in := tbl.Open(sector)
	defer tbl.Close(in)

	assert.True(t, in.Writable())
	in.DenyWrite()
	assert.False(t, in.Writable())
	in.AllowWrite()
	assert.True(t, in.Writable())
}
