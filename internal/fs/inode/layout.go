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

// Package inode implements the on-disk inode layout (spec.md §4.3): a single
// sector holding length, a magic number, a directory flag, and a three-tier
// direct/single-indirect/double-indirect sector index, plus the in-memory
// open-inode table and the free-map bitmap-as-file that backs allocation.
package inode

import "encoding/binary"

const (
	// BlockSectorSize is the size in bytes of one on-disk sector, matching
	// internal/blockdev.SectorSize; named separately here because the
	// original source's on-disk struct layout is defined in these terms
	// independent of any particular block device implementation.
	BlockSectorSize = 512

	// InodeMagic identifies a sector as holding a valid on-disk inode.
	InodeMagic = 0x494e4f44

	// DirectBlocksCount is the number of direct sector indices the on-disk
	// inode stores inline.
	DirectBlocksCount = 123

	// IndexEntriesPerBlock is the number of u32 sector indices that fit in
	// one indirect index block.
	IndexEntriesPerBlock = BlockSectorSize / 4 // 128

	// MaxFileSectors is the largest number of data sectors addressable by
	// the direct/single-indirect/double-indirect scheme.
	MaxFileSectors = DirectBlocksCount + IndexEntriesPerBlock + IndexEntriesPerBlock*IndexEntriesPerBlock

	// InvalidSector marks an unallocated direct/indirect slot.
	InvalidSector = ^uint32(0)
)

// OnDisk is the 512-byte on-disk inode record (spec.md §6): length in bytes,
// a magic number, a directory flag, the direct block array, and the
// single/double indirect index-block pointers.
//
// Encoded layout (little-endian, exactly BlockSectorSize bytes):
//
//	length          u32
//	magic           u32
//	is_dir          u32
//	direct[123]     u32
//	single_indirect u32
//	double_indirect u32
type OnDisk struct {
	Length         uint32
	Magic          uint32
	IsDir          uint32
	Direct         [DirectBlocksCount]uint32
	SingleIndirect uint32
	DoubleIndirect uint32
}

// Encode writes d into a fresh BlockSectorSize-byte sector.
func (d *OnDisk) Encode() []byte {
	buf := make([]byte, BlockSectorSize)
	binary.LittleEndian.PutUint32(buf[0:4], d.Length)
	binary.LittleEndian.PutUint32(buf[4:8], d.Magic)
	binary.LittleEndian.PutUint32(buf[8:12], d.IsDir)
	off := 12
	for _, s := range d.Direct {
		binary.LittleEndian.PutUint32(buf[off:off+4], s)
		off += 4
	}
	binary.LittleEndian.PutUint32(buf[off:off+4], d.SingleIndirect)
	binary.LittleEndian.PutUint32(buf[off+4:off+8], d.DoubleIndirect)
	return buf
}

// DecodeOnDisk parses a BlockSectorSize-byte sector into an OnDisk record.
func DecodeOnDisk(buf []byte) *OnDisk {
	d := &OnDisk{}
	d.Length = binary.LittleEndian.Uint32(buf[0:4])
	d.Magic = binary.LittleEndian.Uint32(buf[4:8])
	d.IsDir = binary.LittleEndian.Uint32(buf[8:12])
	off := 12
	for i := range d.Direct {
		d.Direct[i] = binary.LittleEndian.Uint32(buf[off : off+4])
		off += 4
	}
	d.SingleIndirect = binary.LittleEndian.Uint32(buf[off : off+4])
	d.DoubleIndirect = binary.LittleEndian.Uint32(buf[off+4 : off+8])
	return d
}

// IsDirBool reports whether d is a directory inode.
func (d *OnDisk) IsDirBool() bool { return d.IsDir != 0 }

// sectorsFor returns the number of data sectors needed to hold length bytes.
func sectorsFor(length uint32) uint32 {
	return (length + BlockSectorSize - 1) / BlockSectorSize
}

// encodeIndexBlock/decodeIndexBlock convert an indirect index block between
// its on-disk byte form and a slice of IndexEntriesPerBlock sector numbers.
func encodeIndexBlock(entries [IndexEntriesPerBlock]uint32) []byte {
	buf := make([]byte, BlockSectorSize)
	off := 0
	for _, e := range entries {
		binary.LittleEndian.PutUint32(buf[off:off+4], e)
		off += 4
	}
	return buf
}

func decodeIndexBlock(buf []byte) [IndexEntriesPerBlock]uint32 {
	var entries [IndexEntriesPerBlock]uint32
	off := 0
	for i := range entries {
		entries[i] = binary.LittleEndian.Uint32(buf[off : off+4])
		off += 4
	}
	return entries
}
