// Package fuse exposes an easyfs volume through FUSE. The volume's single
// directory is the mount's root; it holds regular files only.
package fuse

import (
	"context"
	"syscall"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"github.com/unconsolable/easyfs/common"
	easyfs "github.com/unconsolable/easyfs/fs"
	"github.com/unconsolable/easyfs/inode"
)

// FS serves one easyfs volume
type FS struct {
	efs  *easyfs.FileSystem
	root *inode.Inode
}

func NewFS(v *easyfs.FileSystem) *FS {
	return &FS{efs: v, root: inode.Root(v)}
}

// Root returns the root directory of the filesystem
func (f *FS) Root() (fs.Node, error) {
	return &Dir{f}, nil
}

// Statfs reports the volume's usage
func (f *FS) Statfs(ctx context.Context, req *fuse.StatfsRequest, resp *fuse.StatfsResponse) error {
	u := f.efs.Usage()
	resp.Blocks = uint64(u.BlocksTotal)
	resp.Bfree = uint64(u.BlocksTotal - u.BlocksUsed)
	resp.Bavail = resp.Bfree
	resp.Files = uint64(u.InodesTotal)
	resp.Ffree = uint64(u.InodesTotal - u.InodesUsed)
	resp.Bsize = common.BLOCK_SZ
	resp.Frsize = common.BLOCK_SZ
	resp.Namelen = common.NAME_LENGTH_LIMIT
	return nil
}

// FUSE reserves inode 0, and easyfs numbers its root 0
func fuseInode(inum uint32) uint64 {
	return uint64(inum) + 1
}

// errno maps easyfs errors onto the errors FUSE passes to the kernel
func errno(err error) error {
	switch err {
	case nil:
		return nil
	case common.ENOENT:
		return fuse.ENOENT
	case common.EEXIST:
		return fuse.EEXIST
	case common.ENOSPC:
		return fuse.Errno(syscall.ENOSPC)
	case common.ENFILE:
		return fuse.Errno(syscall.ENFILE)
	case common.EFBIG:
		return fuse.Errno(syscall.EFBIG)
	case common.ENAMETOOLONG:
		return fuse.Errno(syscall.ENAMETOOLONG)
	case common.EINVAL:
		return fuse.Errno(syscall.EINVAL)
	case common.EBADF:
		return fuse.Errno(syscall.EBADF)
	case common.ENOTDIR:
		return fuse.Errno(syscall.ENOTDIR)
	}
	return fuse.EIO
}

var _ fs.FS = &FS{}
var _ fs.FSStatfser = &FS{}
