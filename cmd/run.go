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

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"runtime/debug"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/go-kerncore/kerncore/cfg"
	"github.com/go-kerncore/kerncore/internal/blockdev"
	"github.com/go-kerncore/kerncore/internal/cache"
	"github.com/go-kerncore/kerncore/internal/clock"
	kfs "github.com/go-kerncore/kerncore/internal/fs"
	"github.com/go-kerncore/kerncore/internal/fs/inode"
	"github.com/go-kerncore/kerncore/internal/logger"
	"github.com/go-kerncore/kerncore/internal/metrics"
	kproc "github.com/go-kerncore/kerncore/internal/process"
	"github.com/go-kerncore/kerncore/internal/process/testprog"
	"github.com/go-kerncore/kerncore/internal/sched"
	ksys "github.com/go-kerncore/kerncore/internal/syscall"
	"github.com/go-kerncore/kerncore/internal/tracing"
	"github.com/go-kerncore/kerncore/internal/vm"
)

// machine is every long-lived handle bootMachine opens, kept so shutdown can
// tear them down in the right order (spec.md §6: force a cache flush and
// persist the free map before the disk device closes).
type machine struct {
	disk  *blockdev.FileDevice
	swap  *blockdev.FileDevice
	cache *cache.Cache
	free  *inode.FreeMap
	table *inode.Table
	sched *sched.Scheduler
	ft    *vm.FrameTable
}

// runMachine boots one kernel-core instance from c and runs it until its
// spawned init program exits: opens the disk and swap images, brings up the
// buffer cache's daemons, formats a fresh filesystem or loads an existing
// one, starts the scheduler's timer-tick loop, and spawns the registered
// init program to exercise the process/syscall layers end to end. This
// plays the role spec.md's overview assigns to "external collaborators" —
// the harness that loads an executable image, delivers timer ticks, and
// posts syscall requests into the four core subsystems.
func runMachine(ctx context.Context, c cfg.Config) (runErr error) {
	log, closeLog, err := logger.New(c.Logging)
	if err != nil {
		return fmt.Errorf("cmd: build logger: %w", err)
	}
	defer closeLog.Close()

	if c.Logging.CrashLogPath != "" {
		pw := NewPanicWriter(c.Logging.CrashLogPath)
		defer func() {
			if r := recover(); r != nil {
				fmt.Fprintf(pw, "panic: %v\n%s\n", r, debug.Stack())
				runErr = fmt.Errorf("cmd: recovered panic: %v", r)
			}
		}()
	}

	m, fresh, err := bootMachine(c, log)
	if err != nil {
		return err
	}
	defer m.shutdown(log)

	registry := metrics.NewRegistry()
	registry.RegisterCache("root", cacheHitsFn(m.cache), cacheMissesFn(m.cache), cacheEvictionsFn(m.cache))
	registry.RegisterFrameTable(m.ft.Evictions)
	registry.RegisterScheduler(m.sched.ContextSwitches)

	if c.Monitoring.PrometheusAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry.Gatherer(), promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: c.Monitoring.PrometheusAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server exited", "error", err)
			}
		}()
		defer srv.Shutdown(context.Background())
	}

	tracer, err := tracing.New(os.Stderr, c.Monitoring.TraceSampleRate)
	if err != nil {
		return fmt.Errorf("cmd: build tracer: %w", err)
	}
	defer tracer.Shutdown(context.Background())

	tickCtx, stopTicks := context.WithCancel(ctx)
	defer stopTicks()
	go driveTicks(tickCtx, m.sched, time.Duration(c.Scheduler.TickPeriodMs)*time.Millisecond)

	fsys := kfs.New(m.table, m.free)
	disp := ksys.New(fsys, m.sched)
	disp.Stdin = os.Stdin
	disp.Stdout = os.Stdout
	disp.OnHalt = stopTicks

	registerInitProgram(m.sched, disp, m.ft, registry, tracer, log)

	if fresh {
		if err := fsys.Create(kfs.RootDirSector, "init", 0); err != nil {
			return fmt.Errorf("cmd: create init program file: %w", err)
		}
	}

	bootThread := m.sched.Spawn("boot", sched.PriMin, func(*sched.Thread) {})
	bootProc := kproc.NewRoot(fsys, "/", kfs.RootDirSector, bootThread)

	initProc, err := kproc.Spawn(m.sched, fsys, bootProc, "init")
	if err != nil {
		return fmt.Errorf("cmd: spawn init: %w", err)
	}
	log.Info("machine booted", "disk", c.Disk.ImagePath, "frames", c.VM.FrameCount, "mlfqs", c.Scheduler.MLFQS)

	code, err := bootProc.Wait(initProc.Thread.ID)
	if err != nil {
		return fmt.Errorf("cmd: wait for init: %w", err)
	}
	log.Info("init exited", "code", code)
	return nil
}

// bootMachine opens the disk/swap images and the filesystem/VM state atop
// them. It reports fresh=true when imagePath did not exist before this call,
// meaning the caller must still install a root directory's worth of
// bootstrap files.
func bootMachine(c cfg.Config, log *slog.Logger) (*machine, bool, error) {
	_, statErr := os.Stat(c.Disk.ImagePath)
	fresh := errors.Is(statErr, os.ErrNotExist)

	disk, err := blockdev.OpenFileDevice(c.Disk.ImagePath, c.Disk.SectorCount)
	if err != nil {
		return nil, false, fmt.Errorf("cmd: open disk image: %w", err)
	}

	swap, err := blockdev.OpenFileDevice(c.Disk.SwapImagePath, uint32(c.VM.SwapSectorCount))
	if err != nil {
		disk.Close()
		return nil, false, fmt.Errorf("cmd: open swap image: %w", err)
	}

	var dev blockdev.Device = disk
	if c.Disk.ThrottleBytesPerSec > 0 {
		sectorsPerSec := float64(c.Disk.ThrottleBytesPerSec) / float64(blockdev.SectorSize)
		dev = blockdev.NewThrottle(disk, clock.RealClock{}, sectorsPerSec, int(sectorsPerSec)+1)
	}

	bc := cache.New(dev, clock.RealClock{})
	bc.StartDaemons(context.Background())

	var free *inode.FreeMap
	var table *inode.Table
	if fresh {
		free = inode.NewFreeMap(bc, 0, c.Disk.SectorCount)
		table = inode.NewTable(bc, free)
		if err := kfs.Format(table, free, c.Disk.FreeMapSectors); err != nil {
			return nil, false, fmt.Errorf("cmd: format filesystem: %w", err)
		}
	} else {
		free = inode.LoadFreeMap(bc, 0, c.Disk.SectorCount)
		table = inode.NewTable(bc, free)
	}

	swapPool := vm.NewSwapPool(swap, c.VM.SwapSectorCount/8)
	ft, err := vm.NewFrameTable(c.VM.FrameCount, swapPool)
	if err != nil {
		return nil, false, fmt.Errorf("cmd: build frame table: %w", err)
	}

	s := sched.New(clock.RealClock{})
	if c.Scheduler.MLFQS {
		s.EnableMLFQS()
	}

	log.Info("filesystem ready", "fresh", fresh, "sectors", c.Disk.SectorCount)
	return &machine{disk: disk, swap: swap, cache: bc, free: free, table: table, sched: s, ft: ft}, fresh, nil
}

// shutdown flushes and closes every handle bootMachine opened: cache
// daemons first (so no write-behind races the free-map persist below),
// then the free map, then the frame table's swap arena, then the
// underlying devices (spec.md §6's own shutdown ordering).
func (m *machine) shutdown(log *slog.Logger) {
	m.cache.Stop()
	if err := m.cache.ForceFlush(); err != nil {
		log.Error("force flush failed", "error", err)
	}
	m.free.Persist()
	if err := m.cache.ForceFlush(); err != nil {
		log.Error("force flush failed", "error", err)
	}
	if err := m.ft.Close(); err != nil {
		log.Error("close frame table failed", "error", err)
	}
	m.disk.Close()
	m.swap.Close()
}

// driveTicks delivers one scheduler tick every period until ctx is
// canceled, standing in for the timer interrupt spec.md §4.1 assumes (the
// only contract the core needs from that external collaborator).
func driveTicks(ctx context.Context, s *sched.Scheduler, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

func cacheHitsFn(c *cache.Cache) func() uint64      { return func() uint64 { return c.Metrics().Hits } }
func cacheMissesFn(c *cache.Cache) func() uint64    { return func() uint64 { return c.Metrics().Misses } }
func cacheEvictionsFn(c *cache.Cache) func() uint64 { return func() uint64 { return c.Metrics().Evictions } }

// registerInitProgram registers the "init" testprog.Program: the kernel's
// own stand-in for a first user-mode executable (spec.md §4.6's load/exec,
// see internal/process/testprog's doc comment), driving the real syscall
// dispatcher through the filesystem rather than calling fs operations
// directly, so the demo machine exercises the same path a real syscall
// from user mode would.
func registerInitProgram(s *sched.Scheduler, disp *ksys.Dispatcher, ft *vm.FrameTable, registry *metrics.Registry, tracer *tracing.Tracer, log *slog.Logger) {
	testprog.Register(&testprog.Program{
		Name: "init",
		Main: func(argv []string) int {
			proc, ok := s.Current().UserProcess.(*kproc.Process)
			if !ok {
				log.Error("init: no user process bound to current thread")
				return -1
			}

			mem := &ksys.Memory{
				SPT:        proc.SPT,
				FrameTable: ft,
				PageDir:    proc.PageDir,
				SP:         proc.StackPtr,
				StackLimit: kproc.StackTop - vm.PageSize,
			}

			base := kproc.StackTop - vm.PageSize
			namePtr := base + 16
			dataPtr := base + 256
			readPtr := base + 512

			ctx := context.Background()
			dispatch := func(name string, num ksys.Number, args ksys.Args) int32 {
				_, span := tracer.StartSyscall(ctx, name, "init")
				registry.ObserveSyscall(name)
				ret := disp.Dispatch(num, proc, mem, args)
				tracer.End(span, nil)
				return ret
			}

			writeCString(mem, namePtr, "welcome.txt")
			ret := dispatch("Create", ksys.Create, ksys.Args{namePtr, 0})
			if ret != 1 {
				log.Error("init: create failed", "ret", ret)
				return -1
			}

			fd := uint32(dispatch("Open", ksys.Open, ksys.Args{namePtr}))
			writeCString(mem, dataPtr, "kerncore is up")
			n := dispatch("Write", ksys.Write, ksys.Args{fd, dataPtr, 14})
			dispatch("Seek", ksys.Seek, ksys.Args{fd, 0})
			dispatch("Read", ksys.Read, ksys.Args{fd, readPtr, 14})
			dispatch("Close", ksys.Close, ksys.Args{fd})

			log.Info("init: wrote and read back welcome.txt", "bytes", n)
			dispatch("Halt", ksys.Halt, ksys.Args{})
			return 0
		},
	})
}

func writeCString(mem *ksys.Memory, addr uint32, s string) {
	_ = mem.WriteBuf(addr, append([]byte(s), 0))
}
