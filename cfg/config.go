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

// Package cfg is the boot-configuration layer for the kernel-core runner:
// a Config struct bound to both command-line flags and an optional YAML
// file, following the teacher's cfg/config.go generated-struct pattern
// (viper binds flags, mapstructure decodes the file over them).
package cfg

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is every boot parameter the "kerncore run" command needs to bring
// up a machine: the disk image backing the filesystem, the physical memory
// and swap sizing the VM subsystem needs, and the scheduler's mode knobs
// (spec.md §4.1, §4.5, §6).
type Config struct {
	Disk      DiskConfig      `yaml:"disk"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	VM        VMConfig        `yaml:"vm"`
	Logging   LoggingConfig   `yaml:"logging"`
	Debug     DebugConfig     `yaml:"debug"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

// DiskConfig locates the raw sector stores the block device layer opens
// (spec.md §6 "Block device contract").
type DiskConfig struct {
	// ImagePath is the file backing the filesystem's sector store.
	ImagePath string `yaml:"image-path"`

	// SwapImagePath is the file backing the VM swap pool's sector store.
	SwapImagePath string `yaml:"swap-image-path"`

	// CacheSlots is checked by ValidateConfig but does not size the cache:
	// internal/cache always has its fixed cache.NumSlots (64) entries.
	CacheSlots int `yaml:"cache-slots"`

	// SectorCount is the total size of the filesystem's sector store, in
	// 512-byte sectors (spec.md §6 "On-disk layout").
	SectorCount uint32 `yaml:"sector-count"`

	// FreeMapSectors is the number of sectors reserved at the front of the
	// disk for the free-map bitmap's own data (spec.md §3 "Free Map").
	FreeMapSectors uint32 `yaml:"free-map-sectors"`

	// ThrottleBytesPerSec caps raw sector I/O throughput; zero disables
	// throttling (supplemental realism knob, see SPEC_FULL.md module 1).
	ThrottleBytesPerSec int64 `yaml:"throttle-bytes-per-sec"`
}

// SchedulerConfig selects priority-donation or MLFQS mode and the tick
// parameters spec.md §4.1 names.
type SchedulerConfig struct {
	// MLFQS enables the multi-level feedback queue scheduler; when false
	// the scheduler runs in priority-donation mode.
	MLFQS bool `yaml:"mlfqs"`

	// TimeSliceTicks is checked by ValidateConfig but does not set the
	// preemption quantum: internal/sched always uses its fixed
	// sched.TimeSlice (4 ticks).
	TimeSliceTicks int `yaml:"time-slice-ticks"`

	// TickPeriodMs is the wall-clock period of one simulated timer tick.
	TickPeriodMs int `yaml:"tick-period-ms"`
}

// VMConfig sizes the frame table and swap pool (spec.md §3, §4.5).
type VMConfig struct {
	// FrameCount is the number of physical user frames the frame table
	// manages.
	FrameCount int `yaml:"frame-count"`

	// SwapSectorCount is the size, in 512-byte sectors, of the swap
	// device's sector store (must be a multiple of 8, spec.md §3 "Swap
	// Pool": "8 sectors each").
	SwapSectorCount int `yaml:"swap-sector-count"`
}

// LoggingConfig mirrors the teacher's LoggingConfig shape (severity plus a
// rotating file sink), adapted to this repo's log/slog-based logger.
type LoggingConfig struct {
	Severity LogSeverity `yaml:"severity"`
	// Format selects slog's output encoding: "text" or "json".
	Format    string                 `yaml:"format"`
	FilePath  string                 `yaml:"file-path"`
	LogRotate LogRotateLoggingConfig `yaml:"log-rotate"`

	// CrashLogPath, when set, receives a recovered-panic report (message
	// plus goroutine stack) appended as a crash record, independent of the
	// structured log above — a panic can occur after the logger's own
	// handler has already faulted.
	CrashLogPath string `yaml:"crash-log-path"`
}

// LogRotateLoggingConfig configures gopkg.in/natefinch/lumberjack.v2's
// rotation policy, the same library the teacher wires for its own
// rotating log sink.
type LogRotateLoggingConfig struct {
	MaxFileSizeMb   int  `yaml:"max-file-size-mb"`
	BackupFileCount int  `yaml:"backup-file-count"`
	Compress        bool `yaml:"compress"`
}

// DebugConfig exposes the invariant-violation behavior spec.md §7
// classifies as "Assertion violations": panic, by default, but a test
// harness may want the panic recovered and converted into a reported
// failure instead.
type DebugConfig struct {
	ExitOnInvariantViolation bool `yaml:"exit-on-invariant-violation"`
}

// MonitoringConfig toggles the Prometheus/OpenTelemetry exporters
// internal/metrics and internal/tracing register at startup.
type MonitoringConfig struct {
	PrometheusAddr  string `yaml:"prometheus-addr"`
	TraceSampleRate float64 `yaml:"trace-sample-rate"`
}

// BindFlags declares a pflag for each Config field except the log-rotate
// settings (which come only from a config file) and binds it into viper
// under the same dotted key its yaml tag uses, following the teacher's
// BindFlags pattern (one StringP/IntP/BoolP + BindPFlag pair per field).
func BindFlags(flagSet *pflag.FlagSet) error {
	bind := func(key string, bindErr error) error {
		if bindErr != nil {
			return bindErr
		}
		return nil
	}

	flagSet.StringP("disk-image", "", "kerncore.img", "Path to the disk image backing the filesystem.")
	if err := bind("disk.image-path", viper.BindPFlag("disk.image-path", flagSet.Lookup("disk-image"))); err != nil {
		return err
	}

	flagSet.StringP("swap-image", "", "kerncore.swap", "Path to the disk image backing the swap pool.")
	if err := bind("disk.swap-image-path", viper.BindPFlag("disk.swap-image-path", flagSet.Lookup("swap-image"))); err != nil {
		return err
	}

	flagSet.IntP("cache-slots", "", 64, "Buffer-cache slot count (validated only; the cache always has 64 slots).")
	if err := bind("disk.cache-slots", viper.BindPFlag("disk.cache-slots", flagSet.Lookup("cache-slots"))); err != nil {
		return err
	}

	flagSet.Int64P("throttle-bytes-per-sec", "", 0, "Raw sector I/O throughput cap in bytes/sec (0 disables throttling).")
	if err := bind("disk.throttle-bytes-per-sec", viper.BindPFlag("disk.throttle-bytes-per-sec", flagSet.Lookup("throttle-bytes-per-sec"))); err != nil {
		return err
	}

	flagSet.Uint32P("disk-sectors", "", 8192, "Total size of the filesystem's sector store, in 512-byte sectors.")
	if err := bind("disk.sector-count", viper.BindPFlag("disk.sector-count", flagSet.Lookup("disk-sectors"))); err != nil {
		return err
	}

	flagSet.Uint32P("free-map-sectors", "", 4, "Sectors reserved at the front of the disk for the free-map bitmap.")
	if err := bind("disk.free-map-sectors", viper.BindPFlag("disk.free-map-sectors", flagSet.Lookup("free-map-sectors"))); err != nil {
		return err
	}

	flagSet.BoolP("mlfqs", "", false, "Run the scheduler in multi-level feedback queue mode instead of priority donation.")
	if err := bind("scheduler.mlfqs", viper.BindPFlag("scheduler.mlfqs", flagSet.Lookup("mlfqs"))); err != nil {
		return err
	}

	flagSet.IntP("time-slice-ticks", "", 4, "Preemption quantum, in timer ticks (validated only; the scheduler always uses 4).")
	if err := bind("scheduler.time-slice-ticks", viper.BindPFlag("scheduler.time-slice-ticks", flagSet.Lookup("time-slice-ticks"))); err != nil {
		return err
	}

	flagSet.IntP("tick-period-ms", "", 10, "Wall-clock duration of one simulated timer tick.")
	if err := bind("scheduler.tick-period-ms", viper.BindPFlag("scheduler.tick-period-ms", flagSet.Lookup("tick-period-ms"))); err != nil {
		return err
	}

	flagSet.IntP("frame-count", "", 32, "Number of physical user frames.")
	if err := bind("vm.frame-count", viper.BindPFlag("vm.frame-count", flagSet.Lookup("frame-count"))); err != nil {
		return err
	}

	flagSet.IntP("swap-sector-count", "", 8*64, "Size of the swap device, in 512-byte sectors (must be a multiple of 8).")
	if err := bind("vm.swap-sector-count", viper.BindPFlag("vm.swap-sector-count", flagSet.Lookup("swap-sector-count"))); err != nil {
		return err
	}

	flagSet.StringP("log-severity", "", "INFO", "Minimum log severity: TRACE, DEBUG, INFO, WARNING, ERROR, OFF.")
	if err := bind("logging.severity", viper.BindPFlag("logging.severity", flagSet.Lookup("log-severity"))); err != nil {
		return err
	}

	flagSet.StringP("log-format", "", "json", "Log encoding: text or json.")
	if err := bind("logging.format", viper.BindPFlag("logging.format", flagSet.Lookup("log-format"))); err != nil {
		return err
	}

	flagSet.StringP("log-file", "", "", "Path to the rotating kernel log file; empty logs to stderr only.")
	if err := bind("logging.file-path", viper.BindPFlag("logging.file-path", flagSet.Lookup("log-file"))); err != nil {
		return err
	}

	flagSet.StringP("crash-log", "", "", "Path to append a recovered-panic crash report to; empty disables it.")
	if err := bind("logging.crash-log-path", viper.BindPFlag("logging.crash-log-path", flagSet.Lookup("crash-log"))); err != nil {
		return err
	}

	flagSet.BoolP("exit-on-invariant-violation", "", true, "Panic the process when a subsystem invariant check fails.")
	if err := bind("debug.exit-on-invariant-violation", viper.BindPFlag("debug.exit-on-invariant-violation", flagSet.Lookup("exit-on-invariant-violation"))); err != nil {
		return err
	}

	flagSet.StringP("prometheus-addr", "", "", "Address to serve /metrics on; empty disables the exporter.")
	if err := bind("monitoring.prometheus-addr", viper.BindPFlag("monitoring.prometheus-addr", flagSet.Lookup("prometheus-addr"))); err != nil {
		return err
	}

	flagSet.Float64P("trace-sample-rate", "", 0, "Fraction of syscalls/page faults to trace (0..1); 0 disables tracing.")
	if err := bind("monitoring.trace-sample-rate", viper.BindPFlag("monitoring.trace-sample-rate", flagSet.Lookup("trace-sample-rate"))); err != nil {
		return err
	}

	return nil
}
