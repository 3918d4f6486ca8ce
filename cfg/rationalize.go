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

// Rationalize updates Config fields based on the values of other fields,
// following the teacher's cfg.Rationalize (a pass run once after
// flags/file are merged, before validation).
func Rationalize(c *Config) error {
	// A debug build that wants to halt on invariant violations also wants
	// to see everything leading up to the violation.
	if c.Debug.ExitOnInvariantViolation && c.Logging.Severity == "" {
		c.Logging.Severity = TraceLogSeverity
	}

	if c.VM.SwapSectorCount == 0 {
		c.VM.SwapSectorCount = DefaultSwapSectorCount
	}

	return nil
}
