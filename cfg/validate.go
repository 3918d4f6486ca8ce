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

import "fmt"

// ValidateConfig returns a non-nil error if config cannot boot a machine,
// following the teacher's ValidateConfig: one named check per subsystem,
// first failure wins.
func ValidateConfig(config *Config) error {
	if config.Disk.CacheSlots <= 0 {
		return fmt.Errorf("disk.cache-slots must be positive, got %d", config.Disk.CacheSlots)
	}
	if config.Disk.SectorCount == 0 {
		return fmt.Errorf("disk.sector-count must be positive, got %d", config.Disk.SectorCount)
	}
	if config.Disk.FreeMapSectors == 0 || config.Disk.FreeMapSectors >= config.Disk.SectorCount {
		return fmt.Errorf("disk.free-map-sectors must be in (0, %d), got %d", config.Disk.SectorCount, config.Disk.FreeMapSectors)
	}
	if config.VM.FrameCount <= 0 {
		return fmt.Errorf("vm.frame-count must be positive, got %d", config.VM.FrameCount)
	}
	if config.VM.SwapSectorCount%8 != 0 {
		return fmt.Errorf("vm.swap-sector-count must be a multiple of 8 (one page is 8 sectors), got %d", config.VM.SwapSectorCount)
	}
	if config.Scheduler.TimeSliceTicks <= 0 {
		return fmt.Errorf("scheduler.time-slice-ticks must be positive, got %d", config.Scheduler.TimeSliceTicks)
	}
	if config.Scheduler.TickPeriodMs <= 0 {
		return fmt.Errorf("scheduler.tick-period-ms must be positive, got %d", config.Scheduler.TickPeriodMs)
	}
	if config.Logging.Severity.Rank() == -1 {
		return fmt.Errorf("logging.severity %q is not a recognized level", config.Logging.Severity)
	}
	if config.Monitoring.TraceSampleRate < 0 || config.Monitoring.TraceSampleRate > 1 {
		return fmt.Errorf("monitoring.trace-sample-rate must be in [0,1], got %f", config.Monitoring.TraceSampleRate)
	}
	return nil
}
