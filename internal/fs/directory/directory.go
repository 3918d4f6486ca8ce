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

// Package directory implements the directory layer (spec.md §4.4): a
// directory inode is a regular file whose contents are fixed-size entry
// records, scanned linearly for lookup/add/remove.
package directory

import (
	"errors"

	"github.com/go-kerncore/kerncore/internal/fs/inode"
)

// NameMax is the longest name a directory entry can hold, matching
// spec.md §6's `name: [u8; NAME_MAX+1 = 15]`.
const NameMax = 14

// entrySize is the on-disk size of one directory record:
// inode_sector(4) + name(15) + in_use(1) + is_dir(1).
const entrySize = 4 + (NameMax + 1) + 1 + 1

// ErrNameTooLong is returned when a requested entry name exceeds NameMax.
var ErrNameTooLong = errors.New("directory: name too long")

// ErrNotFound is returned when a lookup finds no matching in-use entry.
var ErrNotFound = errors.New("directory: entry not found")

// ErrExists is returned when Add is asked to create a name that is already
// in use.
var ErrExists = errors.New("directory: entry already exists")

// ErrNotEmpty is returned when Remove targets a directory with entries
// other than "." and "..".
var ErrNotEmpty = errors.New("directory: directory not empty")

// entry is the decoded form of one fixed-size directory record.
type entry struct {
	sector uint32
	name   string
	inUse  bool
	isDir  bool
}

func encodeEntry(e entry) []byte {
	buf := make([]byte, entrySize)
	buf[0] = byte(e.sector)
	buf[1] = byte(e.sector >> 8)
	buf[2] = byte(e.sector >> 16)
	buf[3] = byte(e.sector >> 24)
	copy(buf[4:4+NameMax+1], e.name)
	if e.inUse {
		buf[4+NameMax+1] = 1
	}
	if e.isDir {
		buf[4+NameMax+2] = 1
	}
	return buf
}

func decodeEntry(buf []byte) entry {
	sector := uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
	nameBytes := buf[4 : 4+NameMax+1]
	end := 0
	for end < len(nameBytes) && nameBytes[end] != 0 {
		end++
	}
	return entry{
		sector: sector,
		name:   string(nameBytes[:end]),
		inUse:  buf[4+NameMax+1] != 0,
		isDir:  buf[4+NameMax+2] != 0,
	}
}

// Dir wraps a directory inode with the entry-record operations spec.md §4.4
// describes. All mutations hold the inode's DirMu for the duration of the
// scan-then-mutate, so Add/Remove never race with each other on the same
// directory.
type Dir struct {
	In    *inode.Inode
	Table *inode.Table
}

// New wraps in (an inode already known to be a directory) for entry access.
// table is used only by Remove, to open a candidate subdirectory long enough
// to check it is empty.
func New(table *inode.Table, in *inode.Inode) *Dir { return &Dir{In: in, Table: table} }

func (d *Dir) numEntries() uint32 {
	return d.In.Length() / entrySize
}

func (d *Dir) readEntry(i uint32) entry {
	buf := make([]byte, entrySize)
	d.In.ReadAt(i*entrySize, buf)
	return decodeEntry(buf)
}

func (d *Dir) writeEntry(i uint32, e entry) {
	d.In.WriteAt(i*entrySize, encodeEntry(e))
}

// Lookup scans in-use entries for name, returning its inode sector and
// directory flag.
func (d *Dir) Lookup(name string) (sector uint32, isDir bool, err error) {
	d.In.DirMu.Lock()
	defer d.In.DirMu.Unlock()

	n := d.numEntries()
	for i := uint32(0); i < n; i++ {
		e := d.readEntry(i)
		if e.inUse && e.name == name {
			return e.sector, e.isDir, nil
		}
	}
	return 0, false, ErrNotFound
}

// Add installs a new entry for name pointing at sector, reusing a freed
// slot if one exists or appending otherwise.
func (d *Dir) Add(name string, sector uint32, isDir bool) error {
	if len(name) > NameMax {
		return ErrNameTooLong
	}

	d.In.DirMu.Lock()
	defer d.In.DirMu.Unlock()

	n := d.numEntries()
	freeSlot := n
	for i := uint32(0); i < n; i++ {
		e := d.readEntry(i)
		if e.inUse && e.name == name {
			return ErrExists
		}
		if !e.inUse && freeSlot == n {
			freeSlot = i
		}
	}

	d.writeEntry(freeSlot, entry{sector: sector, name: name, inUse: true, isDir: isDir})
	return nil
}

// Remove clears the entry for name, refusing "." / ".." and non-empty
// directories (spec.md §4.4). It reports the removed entry's inode sector
// so the caller can drop its open-inode reference.
func (d *Dir) Remove(name string) (sector uint32, err error) {
	if name == "." || name == ".." {
		return 0, errors.New("directory: cannot remove . or ..")
	}

	d.In.DirMu.Lock()
	defer d.In.DirMu.Unlock()

	n := d.numEntries()
	var target *uint32
	var targetEntry entry
	for i := uint32(0); i < n; i++ {
		e := d.readEntry(i)
		if e.inUse && e.name == name {
			idx := i
			target = &idx
			targetEntry = e
			break
		}
	}
	if target == nil {
		return 0, ErrNotFound
	}

	if targetEntry.isDir {
		sub := New(d.Table, d.Table.Open(targetEntry.sector))
		defer d.Table.Close(sub.In)
		if !sub.isEmptyExceptDotEntries() {
			return 0, ErrNotEmpty
		}
	}

	d.writeEntry(*target, entry{})
	return targetEntry.sector, nil
}

func (d *Dir) isEmptyExceptDotEntries() bool {
	n := d.numEntries()
	for i := uint32(0); i < n; i++ {
		e := d.readEntry(i)
		if e.inUse && e.name != "." && e.name != ".." {
			return false
		}
	}
	return true
}

// InitDotEntries installs "." (pointing at self) and ".." (pointing at
// parent) as the first two entries of a freshly created directory
// (spec.md §4.4).
func (d *Dir) InitDotEntries(selfSector, parentSector uint32) {
	d.In.DirMu.Lock()
	defer d.In.DirMu.Unlock()
	d.writeEntry(0, entry{sector: selfSector, name: ".", inUse: true, isDir: true})
	d.writeEntry(1, entry{sector: parentSector, name: "..", inUse: true, isDir: true})
}

// List returns the names of all in-use entries, including "." and "..".
func (d *Dir) List() []string {
	d.In.DirMu.Lock()
	defer d.In.DirMu.Unlock()

	n := d.numEntries()
	names := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		e := d.readEntry(i)
		if e.inUse {
			names = append(names, e.name)
		}
	}
	return names
}
