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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-kerncore/kerncore/internal/blockdev"
	"github.com/go-kerncore/kerncore/internal/clock"
)

func TestWriteBehindFlushesAfterPeriod(t *testing.T) {
	dev := newCountingDevice(32)
	fc := clock.NewFakeClock(time.Unix(0, 0))
	c := New(dev, fc)

	c.Write(3, 0, bytes.Repeat([]byte{0x42}, blockdev.SectorSize))
	require.Equal(t, 0, dev.writes)

	c.StartDaemons(context.Background())
	defer c.Stop()

	// Give the write-behind goroutine a chance to register its timer before
	// the clock is advanced past it.
	deadline := time.Now().Add(time.Second)
	for dev.writes == 0 && time.Now().Before(deadline) {
		fc.Advance(WriteBehindPeriod)
		time.Sleep(time.Millisecond)
	}

	assert.Equal(t, 1, dev.writes)
}

func TestMetricsTracksHitsMissesAndEvictions(t *testing.T) {
	c, _ := newTestCache()

	buf := make([]byte, blockdev.SectorSize)
	c.Read(1, 0, 0, buf) // miss: sector 1 not resident
	c.Read(1, 0, 0, buf) // hit: sector 1 now resident

	m := c.Metrics()
	assert.Equal(t, uint64(1), m.Hits)
	assert.Equal(t, uint64(1), m.Misses)
	assert.Equal(t, uint64(0), m.Evictions)

	for i := uint32(2); i <= NumSlots+1; i++ {
		c.Read(i, 0, 0, buf)
	}
	m = c.Metrics()
	assert.Greater(t, m.Evictions, uint64(0))
}
