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

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildUserStackLayout(t *testing.T) {
	argv := []string{"echo", "hello", "world"}
	stack, esp := BuildUserStack(argv, UserStackSize)

	require.True(t, esp%4 == 0, "stack pointer must be word-aligned")

	argc := binary.LittleEndian.Uint32(stack[esp+4 : esp+8])
	assert.Equal(t, uint32(len(argv)), argc)

	argvBase := binary.LittleEndian.Uint32(stack[esp+8 : esp+12])
	require.True(t, argvBase > esp, "argv pointer array must sit above the fake-return-address slot")

	for i, want := range argv {
		ptr := binary.LittleEndian.Uint32(stack[argvBase+4*uint32(i) : argvBase+4*uint32(i)+4])
		got := readCString(stack, ptr)
		assert.Equal(t, want, got)
	}

	nullTerm := binary.LittleEndian.Uint32(stack[argvBase+4*uint32(len(argv)) : argvBase+4*uint32(len(argv))+4])
	assert.Zero(t, nullTerm, "argv array must be NULL-terminated")
}

func TestBuildUserStackEmptyArgv(t *testing.T) {
	stack, esp := BuildUserStack(nil, UserStackSize)
	argc := binary.LittleEndian.Uint32(stack[esp+4 : esp+8])
	assert.Zero(t, argc)
}

func readCString(buf []byte, offset uint32) string {
	end := offset
	for buf[end] != 0 {
		end++
	}
	return string(buf[offset:end])
}
