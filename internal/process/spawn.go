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
	"fmt"
	"strings"

	"github.com/go-kerncore/kerncore/internal/fs"
	"github.com/go-kerncore/kerncore/internal/process/testprog"
	"github.com/go-kerncore/kerncore/internal/sched"
	"github.com/go-kerncore/kerncore/internal/vm"
)

const (
	// CodeBase is the user virtual address the loaded executable's first
	// segment page is installed at (matches the original's ELF load base).
	CodeBase = 0x08048000
	// StackTop is one past the highest valid user stack address (PHYS_BASE
	// in the original); the initial stack page sits just below it.
	StackTop = 0xC0000000

	// defaultPriority is the base priority a freshly spawned user process's
	// thread starts at.
	defaultPriority = sched.PriMin + 31
)

// Spawn implements spec.md §4.6's spawn(command_line): it creates a thread
// that runs load() then, in place of jumping to user mode (there is no
// instruction set to jump into — see the package doc), invokes the
// registered testprog.Program's Main. It blocks until load has run and
// returns the child process or an error if load failed.
func Spawn(s *sched.Scheduler, fsys *fs.FS, parent *Process, commandLine string) (*Process, error) {
	child := newProcess(fsys, parent.CwdPath, parent.CwdSector)
	wb := newWaitBlock(0)
	child.parentWaitBlock = wb
	loaded := make(chan bool, 1)

	childThread := s.Spawn("process", defaultPriority, func(t *sched.Thread) {
		child.Thread = t
		t.UserProcess = child

		ok := child.load(commandLine)
		loaded <- ok
		if !ok {
			child.finish(-1)
			return
		}

		code := child.program.Main(child.Argv)
		child.finish(code)
	})

	if !<-loaded {
		return nil, fmt.Errorf("process: load failed for %q", commandLine)
	}

	wb.ChildTID = childThread.ID

	parent.mu.Lock()
	parent.childWaitBlocks[childThread.ID] = wb
	parent.mu.Unlock()

	return child, nil
}

// load parses the first whitespace-delimited token of commandLine as the
// executable name, opens it through the filesystem, verifies it names a
// registered program (standing in for ELF-header verification), installs
// its supplemental-page entries, and builds the initial argv stack
// (spec.md §4.6 "load").
func (p *Process) load(commandLine string) bool {
	argv := strings.Fields(commandLine)
	if len(argv) == 0 {
		return false
	}

	file, err := p.fsys.Open(p.CwdSector, argv[0])
	if err != nil {
		return false
	}

	prog, ok := testprog.Lookup(argv[0])
	if !ok {
		p.fsys.Table.Close(file)
		return false
	}

	file.DenyWrite()
	p.exec = file
	p.program = prog
	p.Argv = argv

	p.SPT = vm.NewSPT()
	p.SPT.InstallCode(CodeBase, file, 0, 0)

	stackPage := uint32(StackTop - vm.PageSize)
	p.SPT.InstallStack(stackPage)

	stack, esp := BuildUserStack(argv, UserStackSize)
	p.StackBytes = stack
	p.StackPtr = stackPage + esp

	return true
}

// Wait implements spec.md §4.6's wait(child_tid): blocks until the named
// child has exited, then returns and frees its exit code. Returns
// ErrNotAChild if childTID never named a live child of p, or has already
// been waited on.
func (p *Process) Wait(childTID uint64) (int, error) {
	p.mu.Lock()
	wb, ok := p.childWaitBlocks[childTID]
	if ok {
		delete(p.childWaitBlocks, childTID)
	}
	p.mu.Unlock()

	if !ok {
		return 0, ErrNotAChild
	}
	return wb.wait(), nil
}

// Exit implements spec.md §4.6's exit path: records code, closes the
// executable (re-allowing writes), drops this process's own child wait
// blocks so its children can exit without a parent, and signals the
// parent's wait block. It does not release the SPT: its entries, and any
// frames or swap slots they hold, stay allocated. Safe to call more than once (a process that is torn down by
// an unresolvable fault after already having called exit is a no-op here).
func (p *Process) Exit(code int) {
	p.finish(code)
}

func (p *Process) finish(code int) {
	p.mu.Lock()
	if p.exited {
		p.mu.Unlock()
		return
	}
	p.exited = true
	p.exitCode = code
	exec := p.exec
	p.exec = nil
	p.childWaitBlocks = make(map[uint64]*WaitBlock)
	wb := p.parentWaitBlock
	p.mu.Unlock()

	if exec != nil {
		exec.AllowWrite()
		p.fsys.Table.Close(exec)
	}

	if wb != nil {
		wb.signalExit(code)
	}
}
