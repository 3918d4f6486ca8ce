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

// Package process implements the process half of spec.md §4.6: per-process
// state (fd table, cwd, argv, exit code, wait blocks, mmap list, SPT),
// spawn/load/wait/exit. A real ELF loader and x86 execution context are out
// of scope for a Go process (there is no instruction set to jump into);
// internal/process/testprog stands in for the loaded program so the rest of
// this layer — load, the syscall-facing bookkeeping, wait/exit — is real,
// exercised code rather than a stub.
package process

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-kerncore/kerncore/internal/fs"
	"github.com/go-kerncore/kerncore/internal/fs/inode"
	"github.com/go-kerncore/kerncore/internal/process/testprog"
	"github.com/go-kerncore/kerncore/internal/sched"
	"github.com/go-kerncore/kerncore/internal/vm"
)

// FD is a per-process file descriptor.
type FD int

const (
	// FDStdin/FDStdout are reserved for console input/output (spec.md §4.6).
	FDStdin  FD = 0
	FDStdout FD = 1

	firstUserFD FD = 2

	// UserStackSize is the size in bytes of the argv-bearing stack page
	// load() builds (spec.md §4.6, one PGSIZE page).
	UserStackSize = vm.PageSize
)

var (
	// ErrNotAChild is returned by Wait when tid does not name a live child
	// of the caller (including "already waited on").
	ErrNotAChild = errors.New("process: tid is not a waitable child")
	// ErrBadFD is returned by descriptor-table operations given an unknown
	// or reserved descriptor.
	ErrBadFD = errors.New("process: bad file descriptor")
)

type fileHandle struct {
	in   *inode.Inode
	name string
	pos  uint32
}

// Process is one user process's kernel-side state (spec.md §3 "Per-Process
// State").
type Process struct {
	mu sync.Mutex

	Thread *sched.Thread
	fsys   *fs.FS

	fds    map[FD]*fileHandle
	nextFD FD

	CwdPath   string
	CwdSector uint32

	Argv []string

	StackBytes []byte
	StackPtr   uint32

	exitCode int
	exited   bool

	// childWaitBlocks is keyed by child thread id.
	childWaitBlocks map[uint64]*WaitBlock
	parentWaitBlock *WaitBlock

	mmaps map[uint32]*mmapRegion

	SPT     *vm.SPT
	PageDir *PageTable

	program *testprog.Program
	exec    *inode.Inode
}

type mmapRegion struct {
	vaddr     uint32
	pageCount int
	file      *inode.Inode
}

func newProcess(fsys *fs.FS, parentCwdPath string, parentCwdSector uint32) *Process {
	return &Process{
		fsys:            fsys,
		fds:             make(map[FD]*fileHandle),
		nextFD:          firstUserFD,
		CwdPath:         parentCwdPath,
		CwdSector:       parentCwdSector,
		childWaitBlocks: make(map[uint64]*WaitBlock),
		mmaps:           make(map[uint32]*mmapRegion),
		PageDir:         NewPageTable(),
	}
}

// NewRoot creates a process with no parent, for the kernel's initial
// process (the one the boot sequence hands the first "run" command line
// to). Everything below it is created by Spawn instead.
func NewRoot(fsys *fs.FS, cwdPath string, cwdSector uint32, thread *sched.Thread) *Process {
	p := newProcess(fsys, cwdPath, cwdSector)
	p.Thread = thread
	return p
}

// Open registers an already-opened inode under a fresh descriptor, caching
// name for lookups like readdir that want the path a fd was opened with.
func (p *Process) Open(in *inode.Inode, name string) FD {
	p.mu.Lock()
	defer p.mu.Unlock()
	fd := p.nextFD
	p.nextFD++
	p.fds[fd] = &fileHandle{in: in, name: name}
	return fd
}

// handle returns the open file behind fd.
func (p *Process) handle(fd FD) (*fileHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if fd == FDStdin || fd == FDStdout {
		return nil, ErrBadFD
	}
	h, ok := p.fds[fd]
	if !ok {
		return nil, ErrBadFD
	}
	return h, nil
}

// Inode returns the inode backing fd.
func (p *Process) Inode(fd FD) (*inode.Inode, error) {
	h, err := p.handle(fd)
	if err != nil {
		return nil, err
	}
	return h.in, nil
}

// Name returns the path fd was opened with.
func (p *Process) Name(fd FD) (string, error) {
	h, err := p.handle(fd)
	if err != nil {
		return "", err
	}
	return h.name, nil
}

// Seek/Tell track fd's read/write position, per spec.md §4.6's syscall set.
func (p *Process) Seek(fd FD, pos uint32) error {
	h, err := p.handle(fd)
	if err != nil {
		return err
	}
	p.mu.Lock()
	h.pos = pos
	p.mu.Unlock()
	return nil
}

func (p *Process) Tell(fd FD) (uint32, error) {
	h, err := p.handle(fd)
	if err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return h.pos, nil
}

// Read/Write advance fd's position by the amount actually transferred.
func (p *Process) Read(fd FD, buf []byte) (int, error) {
	h, err := p.handle(fd)
	if err != nil {
		return 0, err
	}
	p.mu.Lock()
	pos := h.pos
	p.mu.Unlock()
	n := h.in.ReadAt(pos, buf)
	p.mu.Lock()
	h.pos += uint32(n)
	p.mu.Unlock()
	return n, nil
}

func (p *Process) Write(fd FD, buf []byte) (int, error) {
	h, err := p.handle(fd)
	if err != nil {
		return 0, err
	}
	p.mu.Lock()
	pos := h.pos
	p.mu.Unlock()
	n := h.in.WriteAt(pos, buf)
	p.mu.Lock()
	h.pos += uint32(n)
	p.mu.Unlock()
	return n, nil
}

// Close closes fd, releasing the underlying open-inode-table reference.
func (p *Process) Close(fd FD) error {
	p.mu.Lock()
	h, ok := p.fds[fd]
	if ok {
		delete(p.fds, fd)
	}
	p.mu.Unlock()
	if !ok {
		return ErrBadFD
	}
	p.fsys.Table.Close(h.in)
	return nil
}

// AddMmap/RemoveMmap/Mmaps track a process's active memory mappings so
// exit/munmap can sweep them (spec.md §4.5 "Munmap / process exit").
func (p *Process) AddMmap(vaddr uint32, pageCount int, file *inode.Inode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mmaps[vaddr] = &mmapRegion{vaddr: vaddr, pageCount: pageCount, file: file}
}

func (p *Process) RemoveMmap(vaddr uint32) (pageCount int, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.mmaps[vaddr]
	if !ok {
		return 0, false
	}
	delete(p.mmaps, vaddr)
	return r.pageCount, true
}

// ExitCode returns the process's recorded exit code, valid once it has
// exited.
func (p *Process) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

func (p *Process) String() string {
	return fmt.Sprintf("process{argv=%v, tid=%d}", p.Argv, p.Thread.ID)
}
