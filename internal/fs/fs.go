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

// Package fs is the filesystem facade (spec.md §4.6's facade half):
// create/open/remove/mkdir/chdir/readdir built on internal/fs/inode and
// internal/fs/directory, plus path resolution and the per-process current
// working directory.
package fs

import (
	"errors"
	"strings"

	"github.com/go-kerncore/kerncore/internal/fs/directory"
	"github.com/go-kerncore/kerncore/internal/fs/inode"
)

// ErrNotFound mirrors a failed path-component lookup.
var ErrNotFound = errors.New("fs: no such file or directory")

// ErrNotDir is returned when a non-terminal path component is not a
// directory.
var ErrNotDir = errors.New("fs: not a directory")

// ErrIsDir is returned when a file-only operation is given a directory.
var ErrIsDir = errors.New("fs: is a directory")

// ErrRemoveRoot is returned when Remove targets the root directory.
var ErrRemoveRoot = errors.New("fs: cannot remove root directory")

// RootDirSector is the reserved sector holding the root directory's inode
// (spec.md §6).
const RootDirSector = 4

// FS is the kernel-wide filesystem state: the open-inode table, free map,
// and buffer cache, shared by every process (spec.md §4.6).
type FS struct {
	Table *inode.Table
	Free  *inode.FreeMap
}

// New wraps an already-initialized table and free map as a filesystem
// facade. Bootstrapping the on-disk root directory/free map is the caller's
// responsibility (see Format).
func New(table *inode.Table, free *inode.FreeMap) *FS {
	return &FS{Table: table, Free: free}
}

// resolved is the outcome of walking a path down to its final component.
type resolved struct {
	parentSector uint32
	name         string // empty means "the directory itself" (root case)
}

// resolve walks path (absolute or relative to cwdSector) to (parent, final
// name), honoring "." and ".." and requiring every intermediate component to
// be an existing, non-removed directory (spec.md §4.4).
func (f *FS) resolve(cwdSector uint32, path string) (resolved, error) {
	sector := cwdSector
	if strings.HasPrefix(path, "/") {
		sector = RootDirSector
	}

	parts := splitPath(path)
	if len(parts) == 0 {
		return resolved{parentSector: sector, name: ""}, nil
	}

	for i, part := range parts[:len(parts)-1] {
		_ = i
		next, isDir, err := f.lookupIn(sector, part)
		if err != nil {
			return resolved{}, err
		}
		if !isDir {
			return resolved{}, ErrNotDir
		}
		sector = next
	}

	return resolved{parentSector: sector, name: parts[len(parts)-1]}, nil
}

func splitPath(path string) []string {
	raw := strings.Split(path, "/")
	parts := make([]string, 0, len(raw))
	for _, p := range raw {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

func (f *FS) lookupIn(dirSector uint32, name string) (sector uint32, isDir bool, err error) {
	in := f.Table.Open(dirSector)
	defer f.Table.Close(in)
	d := directory.New(f.Table, in)
	s, isD, lerr := d.Lookup(name)
	if lerr != nil {
		return 0, false, ErrNotFound
	}
	return s, isD, nil
}

// Create makes a new regular file of the given initial length at path,
// relative to cwdSector.
func (f *FS) Create(cwdSector uint32, path string, length uint32) error {
	r, err := f.resolve(cwdSector, path)
	if err != nil {
		return err
	}
	if r.name == "" {
		return ErrIsDir
	}

	sector, ok := f.Free.Allocate()
	if !ok {
		return inode.ErrNoSpace
	}
	if err := inode.Create(f.Table.Cache(), f.Free, sector, length, false); err != nil {
		f.Free.Release(sector)
		return err
	}

	parent := f.Table.Open(r.parentSector)
	defer f.Table.Close(parent)
	d := directory.New(f.Table, parent)
	if err := d.Add(r.name, sector, false); err != nil {
		f.Free.Release(sector)
		return err
	}
	return nil
}

// Mkdir creates a new, empty subdirectory at path with "." and ".." entries
// installed (spec.md §4.4).
func (f *FS) Mkdir(cwdSector uint32, path string) error {
	r, err := f.resolve(cwdSector, path)
	if err != nil {
		return err
	}
	if r.name == "" {
		return ErrIsDir
	}

	sector, ok := f.Free.Allocate()
	if !ok {
		return inode.ErrNoSpace
	}
	if err := inode.Create(f.Table.Cache(), f.Free, sector, 0, true); err != nil {
		f.Free.Release(sector)
		return err
	}

	parent := f.Table.Open(r.parentSector)
	defer f.Table.Close(parent)
	pd := directory.New(f.Table, parent)
	if err := pd.Add(r.name, sector, true); err != nil {
		f.Free.Release(sector)
		return err
	}

	sub := f.Table.Open(sector)
	defer f.Table.Close(sub)
	directory.New(f.Table, sub).InitDotEntries(sector, r.parentSector)
	return nil
}

// Open resolves path and returns the opened inode. The caller is
// responsible for eventually closing it via f.Table.Close.
func (f *FS) Open(cwdSector uint32, path string) (*inode.Inode, error) {
	r, err := f.resolve(cwdSector, path)
	if err != nil {
		return nil, err
	}
	var sector uint32
	if r.name == "" {
		sector = r.parentSector
	} else {
		s, _, lerr := f.lookupIn(r.parentSector, r.name)
		if lerr != nil {
			return nil, lerr
		}
		sector = s
	}
	return f.Table.Open(sector), nil
}

// Remove unlinks the file or empty directory at path. The root directory
// may never be removed.
func (f *FS) Remove(cwdSector uint32, path string) error {
	r, err := f.resolve(cwdSector, path)
	if err != nil {
		return err
	}
	if r.name == "" {
		return ErrRemoveRoot
	}

	parent := f.Table.Open(r.parentSector)
	defer f.Table.Close(parent)
	d := directory.New(f.Table, parent)

	sector, rerr := d.Remove(r.name)
	if rerr != nil {
		return rerr
	}

	target := f.Table.Open(sector)
	f.Table.Remove(target)
	f.Table.Close(target)
	return nil
}

// Chdir resolves path to a directory sector, for the caller to store as its
// new current working directory.
func (f *FS) Chdir(cwdSector uint32, path string) (uint32, error) {
	in, err := f.Open(cwdSector, path)
	if err != nil {
		return 0, err
	}
	defer f.Table.Close(in)
	if !in.IsDir() {
		return 0, ErrNotDir
	}
	return in.Sector(), nil
}

// Readdir lists the names of all in-use entries in the directory at path.
func (f *FS) Readdir(cwdSector uint32, path string) ([]string, error) {
	in, err := f.Open(cwdSector, path)
	if err != nil {
		return nil, err
	}
	defer f.Table.Close(in)
	if !in.IsDir() {
		return nil, ErrNotDir
	}
	return directory.New(f.Table, in).List(), nil
}

// Format bootstraps a fresh disk: reserves the free-map's own sectors and
// the root directory's sector, creates the root directory inode, and
// installs its self-referencing "." and ".." entries.
func Format(table *inode.Table, free *inode.FreeMap, freeMapSectors uint32) error {
	for s := uint32(0); s < freeMapSectors; s++ {
		free.MarkUsed(s)
	}
	free.MarkUsed(RootDirSector)
	free.Persist()

	if err := inode.Create(table.Cache(), free, RootDirSector, 0, true); err != nil {
		return err
	}
	root := table.Open(RootDirSector)
	defer table.Close(root)
	directory.New(table, root).InitDotEntries(RootDirSector, RootDirSector)
	return nil
}
