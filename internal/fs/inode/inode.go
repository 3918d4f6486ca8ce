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
	"errors"

	"github.com/go-kerncore/kerncore/internal/cache"
	"github.com/go-kerncore/kerncore/internal/ksync"
)

// ErrNoSpace is returned when the free map cannot satisfy an allocation.
var ErrNoSpace = errors.New("inode: free map exhausted")

// Inode is the in-memory representation of an open file or directory
// (spec.md §3 "In-Memory Inode"): the sector id of its on-disk record, its
// reference count, and a cached readable length so concurrent readers never
// observe a partially extended file.
type Inode struct {
	/////////////////////////
	// Constant data
	/////////////////////////

	sector uint32
	c      *cache.Cache
	fm     *FreeMap

	/////////////////////////
	// Mutable state
	/////////////////////////

	// Mu guards everything below except directory content, which
	// internal/fs/directory serializes with DirMu instead — the split
	// mirrors spec.md §3's "two locks (one for directory content, one for
	// inode fields)".
	Mu *ksync.InvariantMutex

	// GUARDED_BY(Mu)
	openCount int
	// GUARDED_BY(Mu)
	removed bool
	// GUARDED_BY(Mu)
	denyCount int
	// GUARDED_BY(Mu)
	readableLength uint32
	// GUARDED_BY(Mu)
	isDir bool

	// DirMu serializes directory-content mutations (add/remove entry); held
	// independently of Mu so a reader scanning entries never blocks a writer
	// touching unrelated inode fields such as deny_write.
	DirMu *ksync.InvariantMutex
}

func newInode(c *cache.Cache, fm *FreeMap, sector uint32, d *OnDisk) *Inode {
	in := &Inode{
		sector:         sector,
		c:              c,
		fm:             fm,
		readableLength: d.Length,
		isDir:          d.IsDirBool(),
	}
	in.Mu = ksync.NewInvariantMutex(in.checkInvariants)
	in.DirMu = ksync.NewMutex()
	return in
}

func (in *Inode) checkInvariants() {
	if in.openCount < 0 {
		panic("inode: negative open count")
	}
	if in.denyCount > in.openCount {
		panic("inode: deny_write count exceeds open count")
	}
}

// Sector returns the inode's on-disk sector id.
func (in *Inode) Sector() uint32 { return in.sector }

// IsDir reports whether this inode is a directory.
func (in *Inode) IsDir() bool {
	in.Mu.Lock()
	defer in.Mu.Unlock()
	return in.isDir
}

// Length returns the cached readable length.
func (in *Inode) Length() uint32 {
	in.Mu.Lock()
	defer in.Mu.Unlock()
	return in.readableLength
}

// readOnDisk loads the current on-disk inode record.
func (in *Inode) readOnDisk() *OnDisk {
	buf := make([]byte, BlockSectorSize)
	in.c.Read(in.sector, 0, 0, buf)
	return DecodeOnDisk(buf)
}

func (in *Inode) writeOnDisk(d *OnDisk) {
	in.c.Write(in.sector, 0, d.Encode())
}

// Create allocates a fresh on-disk inode at sector, growing it to hold
// length bytes of zero-filled data, and records whether it is a directory
// (spec.md §4.3). On allocation failure every sector claimed during this
// call is released and ErrNoSpace is returned; the inode sector itself is
// never written.
func Create(c *cache.Cache, fm *FreeMap, sector uint32, length uint32, isDir bool) error {
	d := &OnDisk{
		Length:         0,
		Magic:          InodeMagic,
		IsDir:          0,
		SingleIndirect: InvalidSector,
		DoubleIndirect: InvalidSector,
	}
	for i := range d.Direct {
		d.Direct[i] = InvalidSector
	}
	if isDir {
		d.IsDir = 1
	}

	want := sectorsFor(length)
	var allAllocated []uint32
	for i := uint32(0); i < want; i++ {
		allocated, ok := appendSector(c, fm, d, i)
		if !ok {
			for _, s := range allAllocated {
				fm.Release(s)
			}
			return ErrNoSpace
		}
		allAllocated = append(allAllocated, allocated...)
	}
	d.Length = length

	c.Write(sector, 0, d.Encode())
	return nil
}

// DenyWrite increments the deny-write counter, refusing writes to this
// inode's backing executable image while it is loaded (spec.md §4.3).
func (in *Inode) DenyWrite() {
	in.Mu.Lock()
	defer in.Mu.Unlock()
	in.denyCount++
}

// AllowWrite reverses one DenyWrite.
func (in *Inode) AllowWrite() {
	in.Mu.Lock()
	defer in.Mu.Unlock()
	in.denyCount--
}

// Writable reports whether the inode currently accepts writes.
func (in *Inode) Writable() bool {
	in.Mu.Lock()
	defer in.Mu.Unlock()
	return in.denyCount == 0
}

// ReadAt copies up to len(buf) bytes starting at pos into buf, short-reading
// at the inode's readable length; it never grows the file (spec.md §4.3).
// It returns the number of bytes actually read.
func (in *Inode) ReadAt(pos uint32, buf []byte) int {
	in.Mu.Lock()
	readable := in.readableLength
	in.Mu.Unlock()

	if pos >= readable {
		return 0
	}
	n := len(buf)
	if pos+uint32(n) > readable {
		n = int(readable - pos)
	}

	d := in.readOnDisk()
	read := 0
	for read < n {
		sectorIndex := (pos + uint32(read)) / BlockSectorSize
		sectorOfs := int((pos + uint32(read)) % BlockSectorSize)
		chunk := BlockSectorSize - sectorOfs
		if chunk > n-read {
			chunk = n - read
		}

		sector, ok := byteToSector(in.c, d, sectorIndex*BlockSectorSize)
		if !ok {
			break
		}
		tmp := make([]byte, chunk)
		in.c.Read(sector, 0, sectorOfs, tmp)
		copy(buf[read:read+chunk], tmp)
		read += chunk
	}
	return read
}

// WriteAt copies buf into the file starting at pos, growing the file with
// zero-filled sectors if pos+len(buf) exceeds the current on-disk length
// (spec.md §4.3). It returns the number of bytes written, which is less
// than len(buf) only when the free map runs out of sectors while the file
// is being grown.
func (in *Inode) WriteAt(pos uint32, buf []byte) int {
	n := len(buf)
	if n == 0 {
		return 0
	}

	in.Mu.Lock()
	d := in.readOnDisk()
	oldLength := d.Length
	needed := pos + uint32(n)

	achieved := needed
	if needed > oldLength {
		achieved = in.growLocked(d, oldLength, needed)
	}

	written := 0
	for written < n && pos+uint32(written) < achieved {
		sectorIndex := (pos + uint32(written)) / BlockSectorSize
		sectorOfs := int((pos + uint32(written)) % BlockSectorSize)
		chunk := BlockSectorSize - sectorOfs
		if chunk > n-written {
			chunk = n - written
		}
		if pos+uint32(written)+uint32(chunk) > achieved {
			chunk = int(achieved - (pos + uint32(written)))
		}

		sector, ok := byteToSector(in.c, d, sectorIndex*BlockSectorSize)
		if !ok {
			break
		}
		in.c.Write(sector, sectorOfs, buf[written:written+chunk])
		written += chunk
	}

	if achieved > oldLength {
		d.Length = achieved
		in.writeOnDisk(d)
		in.readableLength = achieved
	}
	in.Mu.Unlock()

	return written
}

// growLocked appends zero-filled data sectors (and any index blocks they
// require) until d has enough sectors to cover byte offset `needed`, and
// zero-pads the partial tail of the previously-last sector. Must be called
// with Mu held. It returns the length actually backed by allocated sectors,
// which is needed only when allocation runs out of space partway through;
// callers must never advertise a readable length past this value (spec.md
// §4.3: short reads are only valid exactly at EOF).
func (in *Inode) growLocked(d *OnDisk, oldLength, needed uint32) uint32 {
	oldSectors := sectorsFor(oldLength)
	newSectors := sectorsFor(needed)

	if oldLength%BlockSectorSize != 0 && oldSectors > 0 {
		lastIndex := oldSectors - 1
		if sector, ok := byteToSector(in.c, d, lastIndex*BlockSectorSize); ok {
			tailStart := int(oldLength % BlockSectorSize)
			zero := make([]byte, BlockSectorSize-tailStart)
			in.c.Write(sector, tailStart, zero)
		}
	}

	i := oldSectors
	for ; i < newSectors; i++ {
		// Failure model: out-of-space during growth is a resource
		// exhaustion the caller observes as a short write; stop growing at
		// the first allocation failure rather than rolling back bytes
		// already written to earlier sectors in this call.
		if _, ok := appendSector(in.c, in.fm, d, i); !ok {
			break
		}
	}
	if i == newSectors {
		return needed
	}
	return i * BlockSectorSize
}
