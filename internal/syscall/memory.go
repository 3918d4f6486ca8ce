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

package syscall

import (
	"errors"

	"github.com/go-kerncore/kerncore/internal/vm"
)

// ErrBadPointer is returned when a user-supplied address does not resolve
// to a page present in the caller's supplemental page table (or, for a
// write destination, resolves to a non-writable one). Per spec.md §4.6,
// any failed check here terminates the owning process with exit code −1.
var ErrBadPointer = errors.New("syscall: invalid user pointer")

// Memory is the syscall dispatcher's view of one process's address space:
// every user-pointer argument is read or written through it, which pages
// data in on demand exactly like a real access would fault it in. Callers
// normally set SPT to the calling process's own *process.Process.SPT,
// FrameTable to the kernel-wide frame table, and PageDir to that process's
// page-directory implementation; they're kept separate from *process.Process
// here because the frame table is shared kernel-wide state, not per-process.
type Memory struct {
	SPT        *vm.SPT
	FrameTable *vm.FrameTable
	PageDir    vm.PageDirectory
	SP         uint32
	StackLimit uint32
}

func (m *Memory) ensureResident(addr uint32) (*vm.Entry, error) {
	if !vm.Fault(m.SPT, m.FrameTable, m.PageDir, addr, m.SP, m.StackLimit) {
		return nil, ErrBadPointer
	}
	page := addr &^ (vm.PageSize - 1)
	entry, _ := m.SPT.Lookup(page)
	return entry, nil
}

// ReadByte validates and reads one byte at addr.
func (m *Memory) ReadByte(addr uint32) (byte, error) {
	entry, err := m.ensureResident(addr)
	if err != nil {
		return 0, err
	}
	entry.Lock()
	defer entry.Unlock()
	data := m.FrameTable.Bytes(entry.Frame)
	return data[addr%vm.PageSize], nil
}

// WriteByte validates that addr is writable and writes b there.
func (m *Memory) WriteByte(addr uint32, b byte) error {
	entry, err := m.ensureResident(addr)
	if err != nil {
		return err
	}
	entry.Lock()
	defer entry.Unlock()
	if !entry.Writable {
		return ErrBadPointer
	}
	data := m.FrameTable.Bytes(entry.Frame)
	data[addr%vm.PageSize] = b
	return nil
}

// ReadCString walks addr byte by byte until a NUL, per spec.md §4.6
// ("strings are walked byte-by-byte until a NUL is found").
func (m *Memory) ReadCString(addr uint32) (string, error) {
	var out []byte
	for {
		c, err := m.ReadByte(addr)
		if err != nil {
			return "", err
		}
		if c == 0 {
			return string(out), nil
		}
		out = append(out, c)
		addr++
	}
}

// ReadBuf reads n bytes starting at addr.
func (m *Memory) ReadBuf(addr, n uint32) ([]byte, error) {
	buf := make([]byte, n)
	for i := uint32(0); i < n; i++ {
		c, err := m.ReadByte(addr + i)
		if err != nil {
			return nil, err
		}
		buf[i] = c
	}
	return buf, nil
}

// WriteBuf validates and writes buf starting at addr ("for buffer-out
// arguments, that the mapping is writable", spec.md §4.6).
func (m *Memory) WriteBuf(addr uint32, buf []byte) error {
	for i, c := range buf {
		if err := m.WriteByte(addr+uint32(i), c); err != nil {
			return err
		}
	}
	return nil
}
