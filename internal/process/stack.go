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

package process

import "encoding/binary"

// BuildUserStack lays out argv on a fresh PageSize-byte user stack exactly
// as spec.md §4.6's load() describes: the argument strings themselves
// bottom-up, a word-alignment pad, a NULL terminator, the argv pointer
// array (reverse order so it reads forward), the argv base pointer, argc,
// and a fake return-address slot. stackSize is the size of the stack page;
// the strings start at its top.
//
// It returns the filled stack bytes (indexed from 0 = lowest address of the
// page) and the resulting stack pointer as an offset from that lowest
// address; the argv pointers written into the stack are offsets on the same
// basis.
func BuildUserStack(argv []string, stackSize uint32) (stack []byte, esp uint32) {
	buf := make([]byte, stackSize)
	sp := stackSize

	push := func(data []byte) {
		sp -= uint32(len(data))
		copy(buf[sp:], data)
	}

	argvAddrs := make([]uint32, len(argv))
	for i := len(argv) - 1; i >= 0; i-- {
		push([]byte(argv[i] + "\x00"))
		argvAddrs[i] = sp
	}

	for sp%4 != 0 {
		sp--
	}

	var zero [4]byte
	sp -= 4
	copy(buf[sp:sp+4], zero[:])

	for i := len(argv) - 1; i >= 0; i-- {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], argvAddrs[i])
		sp -= 4
		copy(buf[sp:sp+4], b[:])
	}
	argvBase := sp

	var argvBaseBytes [4]byte
	binary.LittleEndian.PutUint32(argvBaseBytes[:], argvBase)
	sp -= 4
	copy(buf[sp:sp+4], argvBaseBytes[:])

	var argcBytes [4]byte
	binary.LittleEndian.PutUint32(argcBytes[:], uint32(len(argv)))
	sp -= 4
	copy(buf[sp:sp+4], argcBytes[:])

	sp -= 4 // fake return address, never actually jumped to

	return buf, sp
}
