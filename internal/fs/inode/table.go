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

package inode

import (
	"github.com/go-kerncore/kerncore/internal/cache"
	"github.com/go-kerncore/kerncore/internal/ksync"
)

// Table is the process-wide open-inode registry keyed by sector id
// (spec.md §3's "at most one in-memory inode per sector id" invariant).
// Reopening an already-open sector increments its reference count instead
// of constructing a second Inode value; closing the last reference removes
// it from the table and, if the inode was removed, releases its sectors.
type Table struct {
	mu *ksync.InvariantMutex

	bySector map[uint32]*Inode
	c        *cache.Cache
	fm       *FreeMap
}

// Cache returns the buffer cache this table reads/writes inodes through.
func (t *Table) Cache() *cache.Cache { return t.c }

// FreeMap returns the free map this table allocates sectors from.
func (t *Table) FreeMap() *FreeMap { return t.fm }

// NewTable creates an empty open-inode table backed by c and fm.
func NewTable(c *cache.Cache, fm *FreeMap) *Table {
	t := &Table{bySector: make(map[uint32]*Inode), c: c, fm: fm}
	t.mu = ksync.NewInvariantMutex(t.checkInvariants)
	return t
}

func (t *Table) checkInvariants() {
	for sector, in := range t.bySector {
		if in.sector != sector {
			panic("inode: table key does not match inode's own sector")
		}
	}
}

// Open returns the in-memory Inode for sector, creating it from the on-disk
// record if this is the first open, and incrementing its open count either
// way.
func (t *Table) Open(sector uint32) *Inode {
	t.mu.Lock()
	defer t.mu.Unlock()

	if in, ok := t.bySector[sector]; ok {
		in.Mu.Lock()
		in.openCount++
		in.Mu.Unlock()
		return in
	}

	buf := make([]byte, BlockSectorSize)
	t.c.Read(sector, 0, 0, buf)
	d := DecodeOnDisk(buf)

	in := newInode(t.c, t.fm, sector, d)
	in.openCount = 1
	t.bySector[sector] = in
	return in
}

// Remove marks in for deletion: its directory entry is expected to already
// have been cleared by the caller (internal/fs/directory). The sectors are
// only actually freed once the last opener closes it.
func (t *Table) Remove(in *Inode) {
	in.Mu.Lock()
	in.removed = true
	in.Mu.Unlock()
}

// Close drops one reference to in. On the last close of a removed inode,
// every data/index/inode sector it owns is returned to the free map
// (spec.md §3).
func (t *Table) Close(in *Inode) {
	in.Mu.Lock()
	in.openCount--
	if in.openCount > 0 {
		in.Mu.Unlock()
		return
	}
	removed := in.removed
	sector := in.sector
	d := in.readOnDisk()
	in.Mu.Unlock()

	t.mu.Lock()
	delete(t.bySector, sector)
	t.mu.Unlock()

	if removed {
		releaseAllSectors(t.c, t.fm, sector, d)
	}
}
