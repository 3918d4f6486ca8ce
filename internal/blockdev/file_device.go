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

package blockdev

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// FileDevice is a Device backed by a single flat image file on the host
// filesystem — the Go analogue of the original kernel's IDE disk, which was
// itself just a flat array of sectors behind a simpler interface than the
// host OS gives us. The file is opened with O_DSYNC so that every WriteSector
// is durable before it returns, matching the original's synchronous PIO
// writes without buffering a second time underneath our own buffer cache.
type FileDevice struct {
	f           *os.File
	sectorCount uint32
}

// OpenFileDevice opens (creating if necessary) a disk-image file of exactly
// sectorCount sectors at path. If the file is smaller than that, it is
// extended (sparsely) to the required size; if larger, the extra length is
// ignored.
func OpenFileDevice(path string, sectorCount uint32) (*FileDevice, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_DSYNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("blockdev: open %s: %w", path, err)
	}
	f := os.NewFile(uintptr(fd), path)

	size := int64(sectorCount) * SectorSize
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("blockdev: stat %s: %w", path, err)
	}
	if info.Size() < size {
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, fmt.Errorf("blockdev: truncate %s: %w", path, err)
		}
	}

	return &FileDevice{f: f, sectorCount: sectorCount}, nil
}

// Close releases the underlying file handle.
func (d *FileDevice) Close() error {
	return d.f.Close()
}

func (d *FileDevice) SectorCount() uint32 { return d.sectorCount }

func (d *FileDevice) ReadSector(sector uint32, buf []byte) error {
	if sector >= d.sectorCount {
		return ErrOutOfRange
	}
	if len(buf) < SectorSize {
		return fmt.Errorf("blockdev: read buffer shorter than a sector (%d < %d)", len(buf), SectorSize)
	}
	n, err := d.f.ReadAt(buf[:SectorSize], int64(sector)*SectorSize)
	if err != nil {
		return fmt.Errorf("blockdev: read sector %d: %w", sector, err)
	}
	if n != SectorSize {
		return fmt.Errorf("blockdev: short read of sector %d: got %d bytes", sector, n)
	}
	return nil
}

func (d *FileDevice) WriteSector(sector uint32, buf []byte) error {
	if sector >= d.sectorCount {
		return ErrOutOfRange
	}
	if len(buf) < SectorSize {
		return fmt.Errorf("blockdev: write buffer shorter than a sector (%d < %d)", len(buf), SectorSize)
	}
	n, err := d.f.WriteAt(buf[:SectorSize], int64(sector)*SectorSize)
	if err != nil {
		return fmt.Errorf("blockdev: write sector %d: %w", sector, err)
	}
	if n != SectorSize {
		return fmt.Errorf("blockdev: short write of sector %d: wrote %d bytes", sector, n)
	}
	return nil
}
