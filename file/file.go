// Package file provides open file handles on easyfs files: a cursor over an
// inode, with the access mode it was opened with.
package file

import (
	"io"
	"sync"

	"github.com/unconsolable/easyfs/common"
	"github.com/unconsolable/easyfs/inode"
)

type OpenFlags uint32

const (
	O_RDONLY OpenFlags = 0
	O_WRONLY OpenFlags = 1 << 0
	O_RDWR   OpenFlags = 1 << 1
	O_CREATE OpenFlags = 1 << 9
	O_TRUNC  OpenFlags = 1 << 10
)

// ReadWrite returns whether the flags allow reading and writing
func (f OpenFlags) ReadWrite() (bool, bool) {
	switch {
	case f&O_WRONLY != 0:
		return false, true
	case f&O_RDWR != 0:
		return true, true
	default:
		return true, false
	}
}

type File struct {
	readable bool
	writable bool

	m      sync.Mutex
	offset int // GUARDED_BY(m)
	rip    *inode.Inode
}

func New(rip *inode.Inode, readable, writable bool) *File {
	return &File{readable: readable, writable: writable, rip: rip}
}

// Open opens the file called 'name' in the directory 'dir'. With O_CREATE
// a missing file is created and an existing one is truncated; with O_TRUNC
// alone an existing file is truncated.
func Open(dir *inode.Inode, name string, flags OpenFlags) (*File, error) {
	readable, writable := flags.ReadWrite()

	rip := dir.Find(name)
	switch {
	case rip != nil && flags&(O_CREATE|O_TRUNC) != 0:
		rip.Clear()
	case rip == nil && flags&O_CREATE != 0:
		var err error
		if rip, err = dir.Create(name); err != nil {
			return nil, err
		}
	case rip == nil:
		return nil, common.ENOENT
	}
	return New(rip, readable, writable), nil
}

func (f *File) Readable() bool { return f.readable }
func (f *File) Writable() bool { return f.writable }

// Inode returns the inode the file is open on
func (f *File) Inode() *inode.Inode {
	return f.rip
}

// Read reads from the current position and advances it
func (f *File) Read(p []byte) (int, error) {
	if !f.readable {
		return 0, common.EBADF
	}
	f.m.Lock()
	defer f.m.Unlock()

	n := f.rip.ReadAt(f.offset, p)
	f.offset += n
	if n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Write writes at the current position and advances it
func (f *File) Write(p []byte) (int, error) {
	if !f.writable {
		return 0, common.EBADF
	}
	f.m.Lock()
	defer f.m.Unlock()

	n, err := f.rip.WriteAt(f.offset, p)
	f.offset += n
	return n, err
}

func (f *File) Seek(offset int64, whence int) (int64, error) {
	f.m.Lock()
	defer f.m.Unlock()

	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = int64(f.offset) + offset
	case io.SeekEnd:
		pos = int64(f.rip.Stat().Size) + offset
	default:
		return 0, common.EINVAL
	}
	if pos < 0 {
		return 0, common.EINVAL
	}
	f.offset = int(pos)
	return pos, nil
}

// ReadAll reads from the current position to the end of the file
func (f *File) ReadAll() ([]byte, error) {
	if !f.readable {
		return nil, common.EBADF
	}
	return io.ReadAll(f)
}

func (f *File) Stat() common.Stat {
	return f.rip.Stat()
}

var _ io.ReadWriteSeeker = &File{}
