package common

import (
	"bytes"
	"encoding/binary"
)

// A superblock as stored on disk. The areas follow it in the order they are
// declared: inode bitmap, inode area, data bitmap, data area.
type SuperBlock struct {
	Magic             uint32
	TotalBlocks       uint32
	InodeBitmapBlocks uint32
	InodeAreaBlocks   uint32
	DataBitmapBlocks  uint32
	DataAreaBlocks    uint32
	UUID              [16]byte // volume identifier stamped by mkfs
}

func (sb *SuperBlock) Valid() bool {
	return sb.Magic == EFS_MAGIC
}

// A directory entry as stored on disk. The name is NUL padded; a name of
// exactly NAME_LENGTH_LIMIT bytes still leaves one terminating NUL.
type DirEntry struct {
	name [NAME_LENGTH_LIMIT + 1]byte
	inum uint32
}

// NewDirEntry builds an entry for 'name', which must not be longer than
// NAME_LENGTH_LIMIT.
func NewDirEntry(name string, inum uint32) DirEntry {
	if len(name) > NAME_LENGTH_LIMIT {
		panic("directory entry name too long")
	}
	var d DirEntry
	copy(d.name[:], name)
	d.inum = inum
	return d
}

// DecodeDirEntry parses the DIRENT_SZ bytes at the start of b
func DecodeDirEntry(b []byte) DirEntry {
	var d DirEntry
	copy(d.name[:], b[:len(d.name)])
	d.inum = binary.LittleEndian.Uint32(b[len(d.name):DIRENT_SZ])
	return d
}

func (d DirEntry) Name() string {
	if end := bytes.IndexByte(d.name[:], 0); end >= 0 {
		return string(d.name[:end])
	}
	return string(d.name[:])
}

func (d DirEntry) Inum() uint32 {
	return d.inum
}

// Bytes returns the on-disk encoding of the entry
func (d DirEntry) Bytes() []byte {
	b := make([]byte, DIRENT_SZ)
	copy(b, d.name[:])
	binary.LittleEndian.PutUint32(b[len(d.name):], d.inum)
	return b
}

// Stat is a snapshot of an inode's metadata taken at the time of the call
type Stat struct {
	IsDir    bool
	IsFile   bool
	Inum     uint32
	HardLink uint32
	Size     uint32
}
