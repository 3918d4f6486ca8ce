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
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-kerncore/kerncore/internal/blockdev"
	"github.com/go-kerncore/kerncore/internal/clock"
)

type countingDevice struct {
	mu      sync.Mutex
	sectors map[uint32][]byte
	count   uint32
	reads   int
	writes  int
}

func newCountingDevice(count uint32) *countingDevice {
	return &countingDevice{sectors: make(map[uint32][]byte), count: count}
}

func (d *countingDevice) SectorCount() uint32 { return d.count }

func (d *countingDevice) ReadSector(sector uint32, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reads++
	copy(buf, d.sectors[sector])
	return nil
}

func (d *countingDevice) WriteSector(sector uint32, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writes++
	cp := make([]byte, blockdev.SectorSize)
	copy(cp, buf)
	d.sectors[sector] = cp
	return nil
}

func (d *countingDevice) readCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reads
}

func newTestCache() (*Cache, *countingDevice) {
	dev := newCountingDevice(256)
	c := New(dev, clock.NewFakeClock(time.Unix(0, 0)))
	return c, dev
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	c, _ := newTestCache()
	want := bytes.Repeat([]byte{0x7A}, blockdev.SectorSize)

	c.Write(5, 0, want)

	got := make([]byte, blockdev.SectorSize)
	c.Read(5, 0, 0, got)
	assert.Equal(t, want, got)
}

func TestPartialOffsetReadWrite(t *testing.T) {
	c, _ := newTestCache()
	c.Write(1, 0, bytes.Repeat([]byte{0}, blockdev.SectorSize))
	c.Write(1, 100, []byte("hello"))

	got := make([]byte, 5)
	c.Read(1, 0, 100, got)
	assert.Equal(t, "hello", string(got))
}

func TestForceFlushWritesDirtySlots(t *testing.T) {
	c, dev := newTestCache()
	c.Write(2, 0, bytes.Repeat([]byte{0x11}, blockdev.SectorSize))

	require.Equal(t, 0, dev.writes)
	require.NoError(t, c.ForceFlush())
	assert.Equal(t, 1, dev.writes)

	// A second force-flush with nothing dirty should not write again.
	require.NoError(t, c.ForceFlush())
	assert.Equal(t, 1, dev.writes)
}

func TestEvictionFlushesDirtyVictim(t *testing.T) {
	c, dev := newTestCache()
	// Fill every slot, dirtying each, then touch one more sector to force
	// an eviction; the clock hand must flush whatever it picks.
	for i := uint32(0); i < NumSlots; i++ {
		c.Write(i, 0, bytes.Repeat([]byte{byte(i)}, blockdev.SectorSize))
	}
	require.Equal(t, 0, dev.writes)

	c.Write(NumSlots, 0, bytes.Repeat([]byte{0xFF}, blockdev.SectorSize))
	assert.Equal(t, 1, dev.writes, "the evicted dirty slot should have been flushed first")
}

func TestReadAheadPrefetchesNextSector(t *testing.T) {
	c, dev := newTestCache()
	dev.sectors[11] = bytes.Repeat([]byte{0x09}, blockdev.SectorSize)
	// Seed sector 10 directly so Read(10, ...) is itself a hit.
	c.Write(10, 0, bytes.Repeat([]byte{0x01}, blockdev.SectorSize))
	require.NoError(t, c.ForceFlush())
	before := dev.readCount()

	c.StartDaemons(context.Background())
	defer c.Stop()

	buf := make([]byte, blockdev.SectorSize)
	c.Read(10, 11, 0, buf)

	for i := 0; i < 200; i++ {
		if dev.readCount() > before {
			break
		}
		time.Sleep(time.Millisecond)
	}
	assert.Greater(t, dev.readCount(), before, "read-ahead daemon should have fetched sector 11")
}

func TestReadAheadSkipsSentinelZero(t *testing.T) {
	c, dev := newTestCache()
	c.Write(1, 0, bytes.Repeat([]byte{0x01}, blockdev.SectorSize))
	require.NoError(t, c.ForceFlush())
	before := dev.readCount()

	c.StartDaemons(context.Background())
	defer c.Stop()

	buf := make([]byte, blockdev.SectorSize)
	c.Read(1, 0, 0, buf)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, before, dev.readCount(), "a next-sector hint of 0 must never be prefetched")
}
