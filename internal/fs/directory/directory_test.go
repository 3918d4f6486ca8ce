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

package directory_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-kerncore/kerncore/internal/cache"
	"github.com/go-kerncore/kerncore/internal/clock"
	"github.com/go-kerncore/kerncore/internal/fs/directory"
	"github.com/go-kerncore/kerncore/internal/fs/inode"
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

const (
	rootDirSector = 4
	firstFree     = rootDirSector + 1
	totalSectors  = 4096
)

func newFixture(t *testing.T) (*inode.Table, *inode.FreeMap) {
	t.Helper()
	dev := newMemDevice(totalSectors)
	c := cache.New(dev, clock.NewFakeClock(time.Unix(0, 0)))
	fm := inode.NewFreeMap(c, 0, totalSectors)
	for s := uint32(0); s < firstFree; s++ {
		fm.MarkUsed(s)
	}
	fm.Persist()
	require.NoError(t, inode.Create(c, fm, rootDirSector, 0, true))
	tbl := inode.NewTable(c, fm)
	return tbl, fm
}

func TestRootDirStartsWithDotEntries(t *testing.T) {
	tbl, _ := newFixture(t)
	root := directory.New(tbl, tbl.Open(rootDirSector))
	defer tbl.Close(root.In)

	root.InitDotEntries(rootDirSector, rootDirSector)

	sector, isDir, err := root.Lookup(".")
	require.NoError(t, err)
	assert.EqualValues(t, rootDirSector, sector)
	assert.True(t, isDir)

	sector, isDir, err = root.Lookup("..")
	require.NoError(t, err)
	assert.EqualValues(t, rootDirSector, sector)
	assert.True(t, isDir)
}

func TestAddLookupRemoveRoundTrips(t *testing.T) {
	tbl, fm := newFixture(t)
	root := directory.New(tbl, tbl.Open(rootDirSector))
	defer tbl.Close(root.In)
	root.InitDotEntries(rootDirSector, rootDirSector)

	fileSector, ok := fm.Allocate()
	require.True(t, ok)
	require.NoError(t, inode.Create(tbl.Cache(), fm, fileSector, 0, false))

	require.NoError(t, root.Add("hello.txt", fileSector, false))

	sector, isDir, err := root.Lookup("hello.txt")
	require.NoError(t, err)
	assert.Equal(t, fileSector, sector)
	assert.False(t, isDir)

	_, _, err = root.Lookup("missing.txt")
	assert.ErrorIs(t, err, directory.ErrNotFound)

	removedSector, err := root.Remove("hello.txt")
	require.NoError(t, err)
	assert.Equal(t, fileSector, removedSector)

	_, _, err = root.Lookup("hello.txt")
	assert.ErrorIs(t, err, directory.ErrNotFound)
}

func TestAddRejectsDuplicateName(t *testing.T) {
	tbl, fm := newFixture(t)
	root := directory.New(tbl, tbl.Open(rootDirSector))
	defer tbl.Close(root.In)
	root.InitDotEntries(rootDirSector, rootDirSector)

	s1, _ := fm.Allocate()
	require.NoError(t, inode.Create(tbl.Cache(), fm, s1, 0, false))
	require.NoError(t, root.Add("a", s1, false))

	s2, _ := fm.Allocate()
	require.NoError(t, inode.Create(tbl.Cache(), fm, s2, 0, false))
	assert.ErrorIs(t, root.Add("a", s2, false), directory.ErrExists)
}

func TestRemoveRefusesNonEmptyDirectory(t *testing.T) {
	tbl, fm := newFixture(t)
	root := directory.New(tbl, tbl.Open(rootDirSector))
	defer tbl.Close(root.In)
	root.InitDotEntries(rootDirSector, rootDirSector)

	subSector, ok := fm.Allocate()
	require.True(t, ok)
	require.NoError(t, inode.Create(tbl.Cache(), fm, subSector, 0, true))
	require.NoError(t, root.Add("sub", subSector, true))

	sub := directory.New(tbl, tbl.Open(subSector))
	defer tbl.Close(sub.In)
	sub.InitDotEntries(subSector, rootDirSector)

	childSector, ok := fm.Allocate()
	require.True(t, ok)
	require.NoError(t, inode.Create(tbl.Cache(), fm, childSector, 0, false))
	require.NoError(t, sub.Add("child", childSector, false))

	_, err := root.Remove("sub")
	assert.ErrorIs(t, err, directory.ErrNotEmpty)
}
