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

package cfg

// Default disk, scheduler and VM sizing, used by tests and by Default()
// below — matches the flag defaults declared in BindFlags so a Config
// built without ever touching viper still boots a usable machine.
const (
	DefaultCacheSlots      = 64
	DefaultSectorCount     = 8192
	DefaultFreeMapSectors  = 4
	DefaultFrameCount      = 32
	DefaultSwapSectorCount = 8 * 64
	DefaultTimeSliceTicks  = 4
	DefaultTickPeriodMs    = 10
)

// GetDefaultLoggingConfig returns the default configuration used before a
// flag/file-parsed Config is available, mirroring the teacher's
// GetDefaultLoggingConfig (used during early startup logging).
func GetDefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Severity: InfoLogSeverity,
		Format:   "json",
		LogRotate: LogRotateLoggingConfig{
			BackupFileCount: 10,
			Compress:        true,
			MaxFileSizeMb:   64,
		},
	}
}

// Default returns a Config with every field set to BindFlags' declared
// defaults, for tests and for `kerncore run` invocations with no flags.
func Default() Config {
	return Config{
		Disk: DiskConfig{
			ImagePath:      "kerncore.img",
			SwapImagePath:  "kerncore.swap",
			CacheSlots:     DefaultCacheSlots,
			SectorCount:    DefaultSectorCount,
			FreeMapSectors: DefaultFreeMapSectors,
		},
		Scheduler: SchedulerConfig{
			TimeSliceTicks: DefaultTimeSliceTicks,
			TickPeriodMs:   DefaultTickPeriodMs,
		},
		VM: VMConfig{
			FrameCount:      DefaultFrameCount,
			SwapSectorCount: DefaultSwapSectorCount,
		},
		Logging: GetDefaultLoggingConfig(),
		Debug: DebugConfig{
			ExitOnInvariantViolation: true,
		},
	}
}
