package fuse

import (
	"context"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"github.com/unconsolable/easyfs/inode"
)

// File is a regular file, serving as its own handle
type File struct {
	fs  *FS
	rip *inode.Inode
}

// Attr sets the attributes of the file
func (f *File) Attr(ctx context.Context, attr *fuse.Attr) error {
	st := f.rip.Stat()
	attr.Inode = fuseInode(st.Inum)
	attr.Mode = 0644
	attr.Nlink = st.HardLink
	attr.Size = uint64(st.Size)
	attr.Blocks = (attr.Size + 511) / 512
	return nil
}

func (f *File) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	buf := make([]byte, req.Size)
	n := f.rip.ReadAt(int(req.Offset), buf)
	resp.Data = buf[:n]
	return nil
}

func (f *File) Write(ctx context.Context, req *fuse.WriteRequest, resp *fuse.WriteResponse) error {
	n, err := f.rip.WriteAt(int(req.Offset), req.Data)
	if err != nil {
		return errno(err)
	}
	resp.Size = n
	return nil
}

// Setattr handles truncation
func (f *File) Setattr(ctx context.Context, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	if req.Valid.Size() {
		if err := f.rip.Truncate(int(req.Size)); err != nil {
			return errno(err)
		}
	}
	return f.Attr(ctx, &resp.Attr)
}

// Fsync is a no-op: every write is flushed before it returns
func (f *File) Fsync(ctx context.Context, req *fuse.FsyncRequest) error {
	return nil
}

var _ fs.Node = &File{}
var _ fs.HandleReader = &File{}
var _ fs.HandleWriter = &File{}
var _ fs.NodeSetattrer = &File{}
var _ fs.NodeFsyncer = &File{}
