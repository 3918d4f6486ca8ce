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

package blockdev

import (
	"golang.org/x/time/rate"

	"github.com/go-kerncore/kerncore/internal/clock"
)

// Throttle wraps a Device with a token-bucket limiter modeling finite disk
// bandwidth: every sector read or write consumes one token, and a caller
// blocks until the bucket holds enough. This has no analogue in the
// original kernel's ide.c — which talked to real hardware with real seek
// and transfer latency — but gives the buffer cache's read-ahead and
// write-behind daemons something to actually contend over.
type Throttle struct {
	dev Device
	clk clock.Clock
	lim *rate.Limiter
}

// NewThrottle wraps dev with a limiter of sectorsPerSecond sustained rate and
// burst depth burst (immediately available sectors with an empty queue).
func NewThrottle(dev Device, clk clock.Clock, sectorsPerSecond float64, burst int) *Throttle {
	return &Throttle{
		dev: dev,
		clk: clk,
		lim: rate.NewLimiter(rate.Limit(sectorsPerSecond), burst),
	}
}

func (t *Throttle) SectorCount() uint32 { return t.dev.SectorCount() }

func (t *Throttle) ReadSector(sector uint32, buf []byte) error {
	t.wait()
	return t.dev.ReadSector(sector, buf)
}

func (t *Throttle) WriteSector(sector uint32, buf []byte) error {
	t.wait()
	return t.dev.WriteSector(sector, buf)
}

// wait blocks the caller until the limiter has a token available, using the
// injected clock rather than wall time so that tests can drive it with a
// clock.FakeClock.
func (t *Throttle) wait() {
	now := t.clk.Now()
	r := t.lim.ReserveN(now, 1)
	if !r.OK() {
		// Burst smaller than 1 token; nothing we can do but proceed.
		return
	}
	delay := r.DelayFrom(now)
	if delay <= 0 {
		return
	}
	<-t.clk.After(delay)
}
