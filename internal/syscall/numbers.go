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

// Package syscall implements the dispatch half of spec.md §4.6: a numbered
// table of operations fed by a single frontend (Dispatch), modeled
// structurally on the teacher's fuseutil.FileSystem/server.go op-relay
// pattern — a fixed vtable keyed by op code rather than a big switch
// statement baked into one function — plus the user-pointer validation the
// spec requires before any argument is trusted.
package syscall

// Number is a system-call number (spec.md §4.6's named list).
type Number int

const (
	Halt Number = iota
	Exit
	Exec
	Wait
	Create
	Remove
	Open
	Filesize
	Read
	Write
	Seek
	Tell
	Close
	Mmap
	Munmap
	Chdir
	Mkdir
	Readdir
	Isdir
	Inumber
)

func (n Number) String() string {
	switch n {
	case Halt:
		return "halt"
	case Exit:
		return "exit"
	case Exec:
		return "exec"
	case Wait:
		return "wait"
	case Create:
		return "create"
	case Remove:
		return "remove"
	case Open:
		return "open"
	case Filesize:
		return "filesize"
	case Read:
		return "read"
	case Write:
		return "write"
	case Seek:
		return "seek"
	case Tell:
		return "tell"
	case Close:
		return "close"
	case Mmap:
		return "mmap"
	case Munmap:
		return "munmap"
	case Chdir:
		return "chdir"
	case Mkdir:
		return "mkdir"
	case Readdir:
		return "readdir"
	case Isdir:
		return "isdir"
	case Inumber:
		return "inumber"
	default:
		return "unknown"
	}
}
