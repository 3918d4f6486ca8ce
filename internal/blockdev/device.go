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

// Package blockdev provides the raw sector-addressed storage abstraction
// that the buffer cache (internal/cache) and inode layer (internal/fs/inode)
// are built on top of: a fixed-size, randomly-addressable array of 512-byte
// sectors, identified by a 32-bit sector number (spec.md §4.2, §9(d)).
package blockdev

import "errors"

// SectorSize is the fixed size in bytes of every sector on a Device.
const SectorSize = 512

// ErrOutOfRange is returned by ReadSector/WriteSector when the sector
// number is not within [0, SectorCount).
var ErrOutOfRange = errors.New("blockdev: sector number out of range")

// Device is a random-access block device: a flat array of fixed-size
// sectors. Implementations need not be safe for concurrent use by multiple
// goroutines without external locking — internal/cache serializes access
// per sector via its own slot locks.
type Device interface {
	// ReadSector reads SectorSize bytes from sector into buf, which must be
	// at least SectorSize bytes long.
	ReadSector(sector uint32, buf []byte) error

	// WriteSector writes the first SectorSize bytes of buf to sector.
	WriteSector(sector uint32, buf []byte) error

	// SectorCount returns the number of addressable sectors on the device.
	SectorCount() uint32
}
