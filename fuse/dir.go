package fuse

import (
	"context"
	"os"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	log "github.com/sirupsen/logrus"
	"github.com/unconsolable/easyfs/common"
)

// Dir is the volume's root directory
type Dir struct {
	fs *FS
}

// Attr sets the attributes of the directory
func (d *Dir) Attr(ctx context.Context, attr *fuse.Attr) error {
	st := d.fs.root.Stat()
	attr.Inode = fuseInode(st.Inum)
	attr.Mode = os.ModeDir | 0755
	attr.Nlink = st.HardLink
	attr.Size = uint64(st.Size)
	return nil
}

// Lookup looks up a specific entry in the directory
func (d *Dir) Lookup(ctx context.Context, name string) (fs.Node, error) {
	rip := d.fs.root.Find(name)
	if rip == nil {
		return nil, fuse.ENOENT
	}
	return &File{d.fs, rip}, nil
}

// ReadDirAll returns all entries in the directory
func (d *Dir) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	var dirents []fuse.Dirent
	for _, e := range d.fs.root.Entries() {
		dirents = append(dirents, fuse.Dirent{
			Inode: fuseInode(e.Inum()),
			Name:  e.Name(),
			Type:  fuse.DT_File,
		})
	}
	return dirents, nil
}

func (d *Dir) Create(ctx context.Context, req *fuse.CreateRequest, resp *fuse.CreateResponse) (fs.Node, fs.Handle, error) {
	if req.Mode.IsDir() {
		return nil, nil, fuse.EPERM
	}
	rip, err := d.fs.root.Create(req.Name)
	if err != nil {
		log.Debugf("Create %q failed: %s", req.Name, err)
		return nil, nil, errno(err)
	}
	f := &File{d.fs, rip}
	return f, f, nil
}

func (d *Dir) Remove(ctx context.Context, req *fuse.RemoveRequest) error {
	if req.Dir {
		return errno(common.ENOTDIR)
	}
	return errno(d.fs.root.Unlinkat(req.Name))
}

func (d *Dir) Link(ctx context.Context, req *fuse.LinkRequest, old fs.Node) (fs.Node, error) {
	of, ok := old.(*File)
	if !ok {
		return nil, fuse.EPERM
	}

	// Links are made by name; find one for the old node
	for _, e := range d.fs.root.Entries() {
		if e.Inum() != of.rip.Inum() {
			continue
		}
		if err := d.fs.root.Linkat(e.Name(), req.NewName); err != nil {
			return nil, errno(err)
		}
		return &File{d.fs, of.rip}, nil
	}
	return nil, fuse.ENOENT
}

var _ fs.Node = &Dir{}
var _ fs.NodeStringLookuper = &Dir{}
var _ fs.HandleReadDirAller = &Dir{}
var _ fs.NodeCreater = &Dir{}
var _ fs.NodeRemover = &Dir{}
var _ fs.NodeLinker = &Dir{}
