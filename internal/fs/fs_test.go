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

package fs_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-kerncore/kerncore/internal/cache"
	"github.com/go-kerncore/kerncore/internal/clock"
	kfs "github.com/go-kerncore/kerncore/internal/fs"
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

const freeMapSectors = 4
const totalSectors = 8192

func newFixture(t *testing.T) *kfs.FS {
	t.Helper()
	dev := newMemDevice(totalSectors)
	c := cache.New(dev, clock.NewFakeClock(time.Unix(0, 0)))
	free := inode.NewFreeMap(c, 0, totalSectors)
	tbl := inode.NewTable(c, free)
	require.NoError(t, kfs.Format(tbl, free, freeMapSectors))
	return kfs.New(tbl, free)
}

func TestCreateThenOpenRoundTrips(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.Create(kfs.RootDirSector, "hello.txt", 0))

	in, err := f.Open(kfs.RootDirSector, "hello.txt")
	require.NoError(t, err)
	defer f.Table.Close(in)
	assert.False(t, in.IsDir())
}

func TestMkdirChdirReaddir(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.Mkdir(kfs.RootDirSector, "sub"))

	sub, err := f.Chdir(kfs.RootDirSector, "sub")
	require.NoError(t, err)

	require.NoError(t, f.Create(sub, "a.txt", 0))
	require.NoError(t, f.Create(sub, "b.txt", 0))

	names, err := f.Readdir(sub, ".")
	require.NoError(t, err)
	assert.Contains(t, names, "a.txt")
	assert.Contains(t, names, "b.txt")
	assert.Contains(t, names, ".")
	assert.Contains(t, names, "..")
}

func TestCreateOpenCloseRemoveOpenReturnsNotFound(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.Create(kfs.RootDirSector, "x", 0))

	in, err := f.Open(kfs.RootDirSector, "x")
	require.NoError(t, err)
	f.Table.Close(in)

	require.NoError(t, f.Remove(kfs.RootDirSector, "x"))

	_, err = f.Open(kfs.RootDirSector, "x")
	assert.ErrorIs(t, err, kfs.ErrNotFound)
}

func TestRemoveWhileOpenStillReadableUntilClose(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.Create(kfs.RootDirSector, "x", 0))

	in, err := f.Open(kfs.RootDirSector, "x")
	require.NoError(t, err)

	require.NoError(t, f.Remove(kfs.RootDirSector, "x"))

	buf := make([]byte, 10)
	n := in.ReadAt(0, buf)
	assert.Equal(t, 0, n) // empty file, but the read call itself must not panic

	f.Table.Close(in)

	_, err = f.Open(kfs.RootDirSector, "x")
	assert.ErrorIs(t, err, kfs.ErrNotFound)
}

func TestRemoveRootIsRefused(t *testing.T) {
	f := newFixture(t)
	err := f.Remove(kfs.RootDirSector, "/")
	assert.ErrorIs(t, err, kfs.ErrRemoveRoot)
}

func TestNestedPathResolution(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.Mkdir(kfs.RootDirSector, "a"))
	a, err := f.Chdir(kfs.RootDirSector, "a")
	require.NoError(t, err)
	require.NoError(t, f.Mkdir(a, "b"))

	in, err := f.Open(kfs.RootDirSector, "a/b")
	require.NoError(t, err)
	defer f.Table.Close(in)
	assert.True(t, in.IsDir())
}
