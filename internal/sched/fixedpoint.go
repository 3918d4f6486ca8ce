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

package sched

// Fixed is a Q17.14 fixed-point value: 17 integer bits, 14 fractional bits,
// ported from the original kernel's threads/fixed_point.c so that the MLFQS
// load-average and recent-CPU arithmetic matches it exactly (no floats, to
// avoid drift and to mirror the absence of a floating point unit on the
// original target).
type Fixed int32

const fixedShift = 14
const fixedOne = Fixed(1 << fixedShift)

// FromInt converts an integer to fixed-point.
func FromInt(n int) Fixed {
	return Fixed(n) << fixedShift
}

// ToIntTrunc truncates toward zero.
func (f Fixed) ToIntTrunc() int {
	return int(f >> fixedShift)
}

// ToIntRound rounds to the nearest integer, ties away from zero.
func (f Fixed) ToIntRound() int {
	if f >= 0 {
		return int((f + fixedOne/2) >> fixedShift)
	}
	return int((f - fixedOne/2) >> fixedShift)
}

func (f Fixed) Add(g Fixed) Fixed { return f + g }
func (f Fixed) Sub(g Fixed) Fixed { return f - g }

func (f Fixed) AddInt(n int) Fixed { return f + FromInt(n) }
func (f Fixed) SubInt(n int) Fixed { return f - FromInt(n) }

// Mul multiplies two fixed-point values.
func (f Fixed) Mul(g Fixed) Fixed {
	return Fixed((int64(f) * int64(g)) >> fixedShift)
}

// Div divides f by g, both fixed-point.
func (f Fixed) Div(g Fixed) Fixed {
	return Fixed((int64(f) << fixedShift) / int64(g))
}

// MulInt multiplies a fixed-point value by a plain integer.
func (f Fixed) MulInt(n int) Fixed { return f * Fixed(n) }

// DivInt divides a fixed-point value by a plain integer.
func (f Fixed) DivInt(n int) Fixed { return f / Fixed(n) }
