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
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/go-kerncore/kerncore/internal/blockdev"
)

// WriteBehindPeriod is the interval between write-behind sweeps (spec.md §4.2).
const WriteBehindPeriod = 30 * time.Second

// daemons holds the lifecycle of the cache's two background goroutines so
// Stop can wait for a clean exit instead of abandoning them.
type daemons struct {
	group  *errgroup.Group
	cancel context.CancelFunc
}

// StartDaemons launches the read-ahead and write-behind daemons. Stop must
// be called to release them.
func (c *Cache) StartDaemons(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		done := make(chan struct{})
		go func() { c.readAhead.run(); close(done) }()
		<-gctx.Done()
		c.readAhead.close()
		<-done
		return nil
	})

	g.Go(func() error {
		c.writeBehindLoop(gctx)
		return nil
	})

	c.daemonState = &daemons{group: g, cancel: cancel}
}

// Stop signals both daemons and waits for them to exit.
func (c *Cache) Stop() {
	if c.daemonState == nil {
		return
	}
	c.daemonState.cancel()
	c.daemonState.group.Wait()
	c.daemonState = nil
}

func (c *Cache) writeBehindLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.clk.After(WriteBehindPeriod):
			c.nonWaitingFlushPass()
		}
	}
}

// nonWaitingFlushPass attempts a flush of every dirty slot without blocking
// on any slot that is currently busy, unlike ForceFlush.
func (c *Cache) nonWaitingFlushPass() {
	for _, e := range c.entries {
		e.mu.Lock()
		if !e.dirty || !e.idleLocked() {
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
			continue
		}

		e.mu.Lock()
		e.dirty = false
		e.flushingOut = false
		e.cond.Broadcast()
		e.mu.Unlock()
	}
}
