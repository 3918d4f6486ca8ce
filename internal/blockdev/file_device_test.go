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
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileDeviceRoundTripsASector(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	dev, err := OpenFileDevice(path, 16)
	require.NoError(t, err)
	defer dev.Close()

	assert.Equal(t, uint32(16), dev.SectorCount())

	want := bytes.Repeat([]byte{0xAB}, SectorSize)
	require.NoError(t, dev.WriteSector(3, want))

	got := make([]byte, SectorSize)
	require.NoError(t, dev.ReadSector(3, got))
	assert.Equal(t, want, got)
}

func TestFileDeviceRejectsOutOfRangeSector(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	dev, err := OpenFileDevice(path, 4)
	require.NoError(t, err)
	defer dev.Close()

	buf := make([]byte, SectorSize)
	assert.ErrorIs(t, dev.ReadSector(4, buf), ErrOutOfRange)
	assert.ErrorIs(t, dev.WriteSector(4, buf), ErrOutOfRange)
}

func TestFileDeviceReopenPreservesContents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	dev, err := OpenFileDevice(path, 4)
	require.NoError(t, err)

	want := bytes.Repeat([]byte{0x42}, SectorSize)
	require.NoError(t, dev.WriteSector(0, want))
	require.NoError(t, dev.Close())

	reopened, err := OpenFileDevice(path, 4)
	require.NoError(t, err)
	defer reopened.Close()

	got := make([]byte, SectorSize)
	require.NoError(t, reopened.ReadSector(0, got))
	assert.Equal(t, want, got)
}
