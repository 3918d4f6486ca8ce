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
	"io"
	"sync"

	"github.com/go-kerncore/kerncore/internal/fs"
	kproc "github.com/go-kerncore/kerncore/internal/process"
	"github.com/go-kerncore/kerncore/internal/sched"
)

// Args is the fixed-arity argument vector every handler receives, standing
// in for the words a real syscall reads off the user stack above the
// syscall number.
type Args [3]uint32

// handler is one vtable entry. A returned error means argument validation
// failed (a bad user pointer); Dispatch terminates the process with exit
// code −1 in that case rather than propagating it to the caller, per
// spec.md §4.6.
type handler func(d *Dispatcher, p *kproc.Process, mem *Memory, args Args) (int32, error)

// Dispatcher is the syscall-numbered vtable plus the per-filesystem lock
// spec.md §4.6 requires around every filesystem call ("to preserve the
// cache-plus-inode invariants that assume a single writer of the open-inode
// table"). One Dispatcher is shared by every process in the kernel.
type Dispatcher struct {
	fsMu sync.Mutex

	fsys  *fs.FS
	sched *sched.Scheduler
	table map[Number]handler

	// Stdin/Stdout back file descriptors 0 and 1 (spec.md §4.6: "Descriptors
	// 0 and 1 are reserved for console input/output").
	Stdin  io.Reader
	Stdout io.Writer

	// OnHalt is invoked by the halt syscall; nil is a no-op, letting tests
	// exercise halt without a real machine to shut down.
	OnHalt func()
}

// New builds a Dispatcher with every syscall number wired to its handler.
func New(fsys *fs.FS, s *sched.Scheduler) *Dispatcher {
	d := &Dispatcher{fsys: fsys, sched: s}
	d.table = map[Number]handler{
		Halt:     haltHandler,
		Exit:     exitHandler,
		Exec:     execHandler,
		Wait:     waitHandler,
		Create:   createHandler,
		Remove:   removeHandler,
		Open:     openHandler,
		Filesize: filesizeHandler,
		Read:     readHandler,
		Write:    writeHandler,
		Seek:     seekHandler,
		Tell:     tellHandler,
		Close:    closeHandler,
		Mmap:     mmapHandler,
		Munmap:   munmapHandler,
		Chdir:    chdirHandler,
		Mkdir:    mkdirHandler,
		Readdir:  readdirHandler,
		Isdir:    isdirHandler,
		Inumber:  inumberHandler,
	}
	return d
}

// Dispatch runs the numbered operation for the calling process p. Any
// validation failure inside the handler (a bad user pointer) terminates p
// with exit code −1, matching spec.md §4.6's "any failed check terminates
// the process with exit code −1".
func (d *Dispatcher) Dispatch(num Number, p *kproc.Process, mem *Memory, args Args) int32 {
	h, ok := d.table[num]
	if !ok {
		p.Exit(-1)
		return -1
	}
	ret, err := h(d, p, mem, args)
	if err != nil {
		p.Exit(-1)
		return -1
	}
	return ret
}

// withFS runs fn holding the per-filesystem lock.
func (d *Dispatcher) withFS(fn func() (int32, error)) (int32, error) {
	d.fsMu.Lock()
	defer d.fsMu.Unlock()
	return fn()
}
