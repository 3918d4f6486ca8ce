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

import "github.com/go-kerncore/kerncore/internal/cache"

// byteToSector resolves pos to the sector holding it, consulting direct
// indices for pos/BlockSectorSize < DirectBlocksCount, otherwise the
// single-indirect block, otherwise the double-indirect block (spec.md §4.3).
// It returns (sector, true), or (0, false) if index is beyond the inode's
// allocated sectors.
func byteToSector(c *cache.Cache, d *OnDisk, pos uint32) (uint32, bool) {
	index := pos / BlockSectorSize
	if index < DirectBlocksCount {
		s := d.Direct[index]
		return s, s != InvalidSector
	}
	index -= DirectBlocksCount

	if index < IndexEntriesPerBlock {
		if d.SingleIndirect == InvalidSector {
			return 0, false
		}
		return readIndexEntry(c, d.SingleIndirect, index)
	}
	index -= IndexEntriesPerBlock

	if index < IndexEntriesPerBlock*IndexEntriesPerBlock {
		if d.DoubleIndirect == InvalidSector {
			return 0, false
		}
		outer := index / IndexEntriesPerBlock
		inner := index % IndexEntriesPerBlock
		firstLevel, ok := readIndexEntry(c, d.DoubleIndirect, outer)
		if !ok || firstLevel == InvalidSector {
			return 0, false
		}
		return readIndexEntry(c, firstLevel, inner)
	}

	return 0, false
}

func readIndexEntry(c *cache.Cache, indexSector uint32, slot uint32) (uint32, bool) {
	buf := make([]byte, BlockSectorSize)
	c.Read(indexSector, 0, 0, buf)
	entries := decodeIndexBlock(buf)
	v := entries[slot]
	return v, v != InvalidSector
}

// writeIndexEntry stores value at slot within the indirect block at
// indexSector.
func writeIndexEntry(c *cache.Cache, indexSector uint32, slot uint32, value uint32) {
	buf := make([]byte, BlockSectorSize)
	c.Read(indexSector, 0, 0, buf)
	entries := decodeIndexBlock(buf)
	entries[slot] = value
	c.Write(indexSector, 0, encodeIndexBlock(entries))
}

// newInvalidIndexBlock returns BlockSectorSize bytes encoding an index block
// whose every entry is InvalidSector, used to initialize a freshly allocated
// indirect block.
func newInvalidIndexBlock() []byte {
	var entries [IndexEntriesPerBlock]uint32
	for i := range entries {
		entries[i] = InvalidSector
	}
	return encodeIndexBlock(entries)
}

// appendSector allocates one new data sector and wires it into d at the next
// available slot in the direct/single/double scheme, allocating new index
// blocks on demand. It returns the list of sectors allocated during this
// call (data sector plus any newly allocated index blocks, in allocation
// order) so the caller can roll all of them back on a later failure, and
// false if the free map is exhausted (in which case nothing was mutated).
func appendSector(c *cache.Cache, fm *FreeMap, d *OnDisk, index uint32) ([]uint32, bool) {
	var allocated []uint32

	data, ok := fm.Allocate()
	if !ok {
		return nil, false
	}
	allocated = append(allocated, data)

	var zero [BlockSectorSize]byte
	c.Write(data, 0, zero[:])

	if index < DirectBlocksCount {
		d.Direct[index] = data
		return allocated, true
	}
	index -= DirectBlocksCount

	if index < IndexEntriesPerBlock {
		if d.SingleIndirect == InvalidSector {
			sib, ok := fm.Allocate()
			if !ok {
				fm.Release(data)
				return nil, false
			}
			c.Write(sib, 0, newInvalidIndexBlock())
			d.SingleIndirect = sib
			allocated = append(allocated, sib)
		}
		writeIndexEntry(c, d.SingleIndirect, index, data)
		return allocated, true
	}
	index -= IndexEntriesPerBlock

	outer := index / IndexEntriesPerBlock
	inner := index % IndexEntriesPerBlock

	if d.DoubleIndirect == InvalidSector {
		dib, ok := fm.Allocate()
		if !ok {
			fm.Release(data)
			return nil, false
		}
		c.Write(dib, 0, newInvalidIndexBlock())
		d.DoubleIndirect = dib
		allocated = append(allocated, dib)
	}

	firstLevel, _ := readIndexEntry(c, d.DoubleIndirect, outer)
	if firstLevel == InvalidSector {
		fl, ok := fm.Allocate()
		if !ok {
			for _, s := range allocated {
				fm.Release(s)
			}
			if len(allocated) > 1 {
				d.DoubleIndirect = InvalidSector
			}
			return nil, false
		}
		c.Write(fl, 0, newInvalidIndexBlock())
		writeIndexEntry(c, d.DoubleIndirect, outer, fl)
		firstLevel = fl
		allocated = append(allocated, fl)
	}
	writeIndexEntry(c, firstLevel, inner, data)

	return allocated, true
}

// releaseAllSectors frees every data and index sector reachable from d, plus
// d's own inode sector, in reverse dependency order (spec.md §4.3).
func releaseAllSectors(c *cache.Cache, fm *FreeMap, inodeSector uint32, d *OnDisk) {
	for _, s := range d.Direct {
		if s != InvalidSector {
			fm.Release(s)
		}
	}
	if d.SingleIndirect != InvalidSector {
		releaseIndexBlockData(c, fm, d.SingleIndirect)
		fm.Release(d.SingleIndirect)
	}
	if d.DoubleIndirect != InvalidSector {
		buf := make([]byte, BlockSectorSize)
		c.Read(d.DoubleIndirect, 0, 0, buf)
		entries := decodeIndexBlock(buf)
		for _, firstLevel := range entries {
			if firstLevel != InvalidSector {
				releaseIndexBlockData(c, fm, firstLevel)
				fm.Release(firstLevel)
			}
		}
		fm.Release(d.DoubleIndirect)
	}
	fm.Release(inodeSector)
}

func releaseIndexBlockData(c *cache.Cache, fm *FreeMap, indexSector uint32) {
	buf := make([]byte, BlockSectorSize)
	c.Read(indexSector, 0, 0, buf)
	entries := decodeIndexBlock(buf)
	for _, s := range entries {
		if s != InvalidSector {
			fm.Release(s)
		}
	}
}
