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

package syscall

import (
	"github.com/go-kerncore/kerncore/internal/fs/directory"
	kproc "github.com/go-kerncore/kerncore/internal/process"
	"github.com/go-kerncore/kerncore/internal/vm"
)

func haltHandler(d *Dispatcher, p *kproc.Process, mem *Memory, args Args) (int32, error) {
	if d.OnHalt != nil {
		d.OnHalt()
	}
	return 0, nil
}

func exitHandler(d *Dispatcher, p *kproc.Process, mem *Memory, args Args) (int32, error) {
	code := int32(args[0])
	p.Exit(int(code))
	return code, nil
}

func execHandler(d *Dispatcher, p *kproc.Process, mem *Memory, args Args) (int32, error) {
	cmdline, err := mem.ReadCString(args[0])
	if err != nil {
		return -1, err
	}
	child, serr := kproc.Spawn(d.sched, d.fsys, p, cmdline)
	if serr != nil {
		return -1, nil
	}
	return int32(child.Thread.ID), nil
}

func waitHandler(d *Dispatcher, p *kproc.Process, mem *Memory, args Args) (int32, error) {
	code, err := p.Wait(uint64(args[0]))
	if err != nil {
		return -1, nil
	}
	return int32(code), nil
}

func createHandler(d *Dispatcher, p *kproc.Process, mem *Memory, args Args) (int32, error) {
	name, err := mem.ReadCString(args[0])
	if err != nil {
		return 0, err
	}
	size := args[1]
	return d.withFS(func() (int32, error) {
		if cerr := d.fsys.Create(p.CwdSector, name, size); cerr != nil {
			return 0, nil
		}
		return 1, nil
	})
}

func removeHandler(d *Dispatcher, p *kproc.Process, mem *Memory, args Args) (int32, error) {
	name, err := mem.ReadCString(args[0])
	if err != nil {
		return 0, err
	}
	return d.withFS(func() (int32, error) {
		if rerr := d.fsys.Remove(p.CwdSector, name); rerr != nil {
			return 0, nil
		}
		return 1, nil
	})
}

func openHandler(d *Dispatcher, p *kproc.Process, mem *Memory, args Args) (int32, error) {
	name, err := mem.ReadCString(args[0])
	if err != nil {
		return -1, err
	}
	return d.withFS(func() (int32, error) {
		in, oerr := d.fsys.Open(p.CwdSector, name)
		if oerr != nil {
			return -1, nil
		}
		return int32(p.Open(in, name)), nil
	})
}

func filesizeHandler(d *Dispatcher, p *kproc.Process, mem *Memory, args Args) (int32, error) {
	in, err := p.Inode(kproc.FD(args[0]))
	if err != nil {
		return -1, nil
	}
	return int32(in.Length()), nil
}

func readHandler(d *Dispatcher, p *kproc.Process, mem *Memory, args Args) (int32, error) {
	fd := kproc.FD(args[0])
	bufPtr, size := args[1], args[2]

	if fd == kproc.FDStdout {
		return -1, nil
	}
	if fd == kproc.FDStdin {
		buf := make([]byte, size)
		n, _ := d.Stdin.Read(buf)
		if n < 0 {
			n = 0
		}
		if werr := mem.WriteBuf(bufPtr, buf[:n]); werr != nil {
			return 0, werr
		}
		return int32(n), nil
	}

	buf := make([]byte, size)
	n, rerr := p.Read(fd, buf)
	if rerr != nil {
		return -1, nil
	}
	if werr := mem.WriteBuf(bufPtr, buf[:n]); werr != nil {
		return 0, werr
	}
	return int32(n), nil
}

func writeHandler(d *Dispatcher, p *kproc.Process, mem *Memory, args Args) (int32, error) {
	fd := kproc.FD(args[0])
	bufPtr, size := args[1], args[2]

	buf, err := mem.ReadBuf(bufPtr, size)
	if err != nil {
		return 0, err
	}

	if fd == kproc.FDStdin {
		return -1, nil
	}
	if fd == kproc.FDStdout {
		n, _ := d.Stdout.Write(buf)
		return int32(n), nil
	}

	n, werr := p.Write(fd, buf)
	if werr != nil {
		return -1, nil
	}
	return int32(n), nil
}

func seekHandler(d *Dispatcher, p *kproc.Process, mem *Memory, args Args) (int32, error) {
	if err := p.Seek(kproc.FD(args[0]), args[1]); err != nil {
		return -1, nil
	}
	return 0, nil
}

func tellHandler(d *Dispatcher, p *kproc.Process, mem *Memory, args Args) (int32, error) {
	pos, err := p.Tell(kproc.FD(args[0]))
	if err != nil {
		return -1, nil
	}
	return int32(pos), nil
}

func closeHandler(d *Dispatcher, p *kproc.Process, mem *Memory, args Args) (int32, error) {
	if err := p.Close(kproc.FD(args[0])); err != nil {
		return -1, nil
	}
	return 0, nil
}

func mmapHandler(d *Dispatcher, p *kproc.Process, mem *Memory, args Args) (int32, error) {
	fd := kproc.FD(args[0])
	addr := args[1]

	in, err := p.Inode(fd)
	if err != nil {
		return -1, nil
	}

	length := in.Length()
	if length == 0 || addr%vm.PageSize != 0 {
		return -1, nil
	}

	pageCount := int((length + vm.PageSize - 1) / vm.PageSize)
	for i := 0; i < pageCount; i++ {
		offset := uint32(i) * vm.PageSize
		zeroBytes := uint32(0)
		if remaining := length - offset; remaining < vm.PageSize {
			zeroBytes = vm.PageSize - remaining
		}
		mem.SPT.InstallMMap(addr+offset, in, offset, zeroBytes)
	}
	p.AddMmap(addr, pageCount, in)
	return int32(addr), nil
}

func munmapHandler(d *Dispatcher, p *kproc.Process, mem *Memory, args Args) (int32, error) {
	addr := args[0]
	pageCount, ok := p.RemoveMmap(addr)
	if !ok {
		return -1, nil
	}
	vm.Munmap(mem.SPT, mem.FrameTable, mem.PageDir, addr, pageCount)
	return 0, nil
}

func chdirHandler(d *Dispatcher, p *kproc.Process, mem *Memory, args Args) (int32, error) {
	path, err := mem.ReadCString(args[0])
	if err != nil {
		return 0, err
	}
	return d.withFS(func() (int32, error) {
		sector, cerr := d.fsys.Chdir(p.CwdSector, path)
		if cerr != nil {
			return 0, nil
		}
		p.CwdSector = sector
		p.CwdPath = path
		return 1, nil
	})
}

func mkdirHandler(d *Dispatcher, p *kproc.Process, mem *Memory, args Args) (int32, error) {
	path, err := mem.ReadCString(args[0])
	if err != nil {
		return 0, err
	}
	return d.withFS(func() (int32, error) {
		if merr := d.fsys.Mkdir(p.CwdSector, path); merr != nil {
			return 0, nil
		}
		return 1, nil
	})
}

func readdirHandler(d *Dispatcher, p *kproc.Process, mem *Memory, args Args) (int32, error) {
	fd := kproc.FD(args[0])
	bufPtr := args[1]

	in, err := p.Inode(fd)
	if err != nil || !in.IsDir() {
		return 0, nil
	}
	idx, terr := p.Tell(fd)
	if terr != nil {
		return 0, nil
	}

	return d.withFS(func() (int32, error) {
		entries := directory.New(d.fsys.Table, in).List()
		if int(idx) >= len(entries) {
			return 0, nil
		}
		name := append([]byte(entries[idx]), 0)
		if werr := mem.WriteBuf(bufPtr, name); werr != nil {
			return 0, werr
		}
		p.Seek(fd, idx+1)
		return 1, nil
	})
}

func isdirHandler(d *Dispatcher, p *kproc.Process, mem *Memory, args Args) (int32, error) {
	in, err := p.Inode(kproc.FD(args[0]))
	if err != nil {
		return 0, nil
	}
	if in.IsDir() {
		return 1, nil
	}
	return 0, nil
}

func inumberHandler(d *Dispatcher, p *kproc.Process, mem *Memory, args Args) (int32, error) {
	in, err := p.Inode(kproc.FD(args[0]))
	if err != nil {
		return -1, nil
	}
	return int32(in.Sector()), nil
}
