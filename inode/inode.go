// Package inode is the virtual filesystem layer of easyfs: handles on disk
// inodes through which files in the root directory are found, created,
// linked, unlinked, read and written.
//
// Every operation takes the filesystem lock for its whole duration, so at
// most one structural change is in flight per volume. Mutating operations
// end by flushing the block cache.
package inode

import (
	"fmt"
	"strings"

	"github.com/unconsolable/easyfs/common"
	"github.com/unconsolable/easyfs/dinode"
	"github.com/unconsolable/easyfs/fs"
)

// Inode is a handle on one disk inode. Handles are cheap and any number of
// them may refer to the same inode.
type Inode struct {
	blockID     int
	blockOffset int
	inum        uint32
	fs          *fs.FileSystem
}

func New(blockID, blockOffset int, inum uint32, efs *fs.FileSystem) *Inode {
	return &Inode{blockID, blockOffset, inum, efs}
}

// Root returns a handle on the root directory of 'efs'
func Root(efs *fs.FileSystem) *Inode {
	return newFromInum(efs, common.ROOT_INODE)
}

func newFromInum(efs *fs.FileSystem, inum uint32) *Inode {
	block, offset := efs.DiskInodePos(inum)
	return New(block, offset, inum, efs)
}

func (ip *Inode) Inum() uint32 {
	return ip.inum
}

func (ip *Inode) String() string {
	return fmt.Sprintf("inode %d at block %d offset %d", ip.inum, ip.blockID, ip.blockOffset)
}

func (ip *Inode) readDiskInode() *dinode.View {
	return dinode.Read(ip.fs.Cache(), ip.blockID, ip.blockOffset)
}

func (ip *Inode) modifyDiskInode() *dinode.View {
	return dinode.Modify(ip.fs.Cache(), ip.blockID, ip.blockOffset)
}

// dirents reads every record of a directory, tombstones included
func (ip *Inode) dirents(di *dinode.DiskInode) []common.DirEntry {
	if !di.IsDir() {
		panic(fmt.Sprintf("%s is not a directory", ip))
	}
	count := int(di.Size) / common.DIRENT_SZ
	entries := make([]common.DirEntry, 0, count)
	buf := make([]byte, common.DIRENT_SZ)
	for i := 0; i < count; i++ {
		if n := di.ReadAt(i*common.DIRENT_SZ, buf, ip.fs.Cache()); n != common.DIRENT_SZ {
			panic(fmt.Sprintf("short read of directory entry %d: %d bytes", i, n))
		}
		entries = append(entries, common.DecodeDirEntry(buf))
	}
	return entries
}

// findInodeID returns the inode number of the first live entry called
// 'name' in the directory 'di'.
func (ip *Inode) findInodeID(name string, di *dinode.DiskInode) (uint32, bool) {
	for _, d := range ip.dirents(di) {
		if d.Inum() != common.DIRENT_INVALID_INODE_ID && d.Name() == name {
			return d.Inum(), true
		}
	}
	return 0, false
}

// lookup is findInodeID against this inode
func (ip *Inode) lookup(name string) (uint32, bool) {
	v := ip.readDiskInode()
	defer v.Release()
	return ip.findInodeID(name, v.DiskInode)
}

// Find returns a handle on the entry called 'name', or nil when there is
// no such entry.
func (ip *Inode) Find(name string) *Inode {
	l := ip.fs.Lock()
	defer l.Unlock()

	inum, ok := ip.lookup(name)
	if !ok {
		return nil
	}
	return newFromInum(ip.fs, inum)
}

// increaseSize grows 'di' to 'newSize' bytes. Either every block needed is
// allocated and the inode grows, or nothing changes and the allocation
// error is returned.
func (ip *Inode) increaseSize(newSize uint32, di *dinode.DiskInode, l *fs.Locked) error {
	if newSize <= di.Size {
		return nil
	}
	if newSize > common.MAX_FILE_SIZE {
		return common.EFBIG
	}

	needed := di.BlocksNumNeeded(newSize)
	blocks := make([]uint32, 0, needed)
	for i := uint32(0); i < needed; i++ {
		b, err := l.AllocData()
		if err != nil {
			for _, b := range blocks {
				l.DeallocData(b)
			}
			return err
		}
		blocks = append(blocks, b)
	}
	di.IncreaseSize(newSize, blocks, ip.fs.Cache())
	return nil
}

// appendEntry adds the record {name, inum} to the end of the directory
func (ip *Inode) appendEntry(name string, inum uint32, l *fs.Locked) error {
	v := ip.modifyDiskInode()
	defer v.Release()

	if !v.IsDir() {
		panic(fmt.Sprintf("%s is not a directory", ip))
	}
	count := v.Size / common.DIRENT_SZ
	if err := ip.increaseSize((count+1)*common.DIRENT_SZ, v.DiskInode, l); err != nil {
		return err
	}
	d := common.NewDirEntry(name, inum)
	v.WriteAt(int(count)*common.DIRENT_SZ, d.Bytes(), ip.fs.Cache())
	return nil
}

// checkName rejects names a directory record cannot hold: the record is
// NUL padded, so a NUL would cut the name short.
func checkName(name string) error {
	if len(name) > common.NAME_LENGTH_LIMIT {
		return common.ENAMETOOLONG
	}
	if strings.IndexByte(name, 0) >= 0 {
		return common.EINVAL
	}
	return nil
}

// Create makes an empty file called 'name' in this directory. It fails
// with EEXIST, allocating nothing, when a live entry of that name exists.
func (ip *Inode) Create(name string) (*Inode, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}

	l := ip.fs.Lock()
	defer l.Unlock()

	if _, ok := ip.lookup(name); ok {
		return nil, common.EEXIST
	}

	inum, err := l.AllocInode()
	if err != nil {
		return nil, err
	}
	rip := newFromInum(ip.fs, inum)
	v := rip.modifyDiskInode()
	v.Initialize(dinode.File)
	v.Release()

	if err := ip.appendEntry(name, inum, l); err != nil {
		l.DeallocInode(inum)
		return nil, err
	}

	ip.fs.Sync()
	return rip, nil
}

// Ls returns the names of the live entries in the directory, in the order
// they were added.
func (ip *Inode) Ls() []string {
	l := ip.fs.Lock()
	defer l.Unlock()

	var names []string
	for _, d := range ip.entries() {
		names = append(names, d.Name())
	}
	return names
}

// Entries returns the live records of the directory, in the order they
// were added.
func (ip *Inode) Entries() []common.DirEntry {
	l := ip.fs.Lock()
	defer l.Unlock()
	return ip.entries()
}

// Scan returns the metadata of the directory and its live records for a
// caller that already holds the filesystem lock. Entries are nil when the
// inode is not a directory.
func (ip *Inode) Scan(l *fs.Locked) (common.Stat, []common.DirEntry) {
	st := ip.stat()
	if !st.IsDir {
		return st, nil
	}
	return st, ip.entries()
}

func (ip *Inode) entries() []common.DirEntry {
	v := ip.readDiskInode()
	defer v.Release()

	var live []common.DirEntry
	for _, d := range ip.dirents(v.DiskInode) {
		if d.Inum() != common.DIRENT_INVALID_INODE_ID {
			live = append(live, d)
		}
	}
	return live
}

// adjustLinks changes the link count of inode 'inum' by 'delta' and returns
// the new count.
func (ip *Inode) adjustLinks(inum uint32, delta int) uint32 {
	v := newFromInum(ip.fs, inum).modifyDiskInode()
	defer v.Release()

	links := int64(v.HardLink) + int64(delta)
	if links < 0 {
		panic(fmt.Sprintf("link count of inode %d dropped below zero", inum))
	}
	v.HardLink = uint32(links)
	return v.HardLink
}

// Linkat adds the entry 'newName' for the file called 'oldName'. An
// existing entry called 'newName' is not detected: both stay live, and
// lookups find whichever was added first.
func (ip *Inode) Linkat(oldName, newName string) error {
	if oldName == newName {
		return common.EINVAL
	}
	if err := checkName(newName); err != nil {
		return err
	}

	l := ip.fs.Lock()
	defer l.Unlock()

	inum, ok := ip.lookup(oldName)
	if !ok {
		return common.ENOENT
	}
	ip.adjustLinks(inum, 1)
	if err := ip.appendEntry(newName, inum, l); err != nil {
		ip.adjustLinks(inum, -1)
		return err
	}

	ip.fs.Sync()
	return nil
}

// Unlinkat removes every live entry called 'name' and drops one link from
// the file the first of them refers to. When no links remain the file's
// blocks are freed. Its inode stays allocated with no links, so handles
// still held on it never alias a file created later.
func (ip *Inode) Unlinkat(name string) error {
	target, err := ip.unlink(name)
	if err != nil {
		return err
	}
	if target != nil {
		// The filesystem lock is not held here, Clear takes it
		target.Clear()
	}
	return nil
}

// unlink does the part of Unlinkat made under the filesystem lock. It
// returns the unlinked file when its last link is gone.
func (ip *Inode) unlink(name string) (*Inode, error) {
	l := ip.fs.Lock()
	defer l.Unlock()

	inum, ok := ip.lookup(name)
	if !ok {
		return nil, common.ENOENT
	}
	links := ip.adjustLinks(inum, -1)
	ip.tombstone(name)
	ip.fs.Sync()

	if links > 0 {
		return nil, nil
	}
	return newFromInum(ip.fs, inum), nil
}

// tombstone invalidates every live record called 'name'. The records keep
// their slots: directories never shrink.
func (ip *Inode) tombstone(name string) {
	v := ip.modifyDiskInode()
	defer v.Release()

	dead := common.NewDirEntry(name, common.DIRENT_INVALID_INODE_ID)
	for i, d := range ip.dirents(v.DiskInode) {
		if d.Inum() != common.DIRENT_INVALID_INODE_ID && d.Name() == name {
			v.WriteAt(i*common.DIRENT_SZ, dead.Bytes(), ip.fs.Cache())
		}
	}
}

// ReadAt reads file data starting at 'offset' into buf and returns the
// number of bytes read, which is short at the end of the file. Nothing is
// read at a negative offset.
func (ip *Inode) ReadAt(offset int, buf []byte) int {
	if offset < 0 {
		return 0
	}

	l := ip.fs.Lock()
	defer l.Unlock()

	v := ip.readDiskInode()
	defer v.Release()
	return v.ReadAt(offset, buf, ip.fs.Cache())
}

// WriteAt writes buf into the file at 'offset', growing the file first
// when the write reaches past its end.
func (ip *Inode) WriteAt(offset int, buf []byte) (int, error) {
	if offset < 0 {
		return 0, common.EINVAL
	}
	if int64(offset)+int64(len(buf)) > common.MAX_FILE_SIZE {
		return 0, common.EFBIG
	}

	l := ip.fs.Lock()
	defer l.Unlock()

	n, err := ip.write(offset, buf, l)
	if err != nil {
		return 0, err
	}
	ip.fs.Sync()
	return n, nil
}

func (ip *Inode) write(offset int, buf []byte, l *fs.Locked) (int, error) {
	v := ip.modifyDiskInode()
	defer v.Release()

	if err := ip.increaseSize(uint32(offset+len(buf)), v.DiskInode, l); err != nil {
		return 0, err
	}
	return v.WriteAt(offset, buf, ip.fs.Cache()), nil
}

// Clear truncates the file to zero bytes and frees all of its blocks
func (ip *Inode) Clear() {
	l := ip.fs.Lock()
	defer l.Unlock()

	ip.clear(l)
	ip.fs.Sync()
}

func (ip *Inode) clear(l *fs.Locked) {
	v := ip.modifyDiskInode()
	defer v.Release()

	size := v.Size
	blocks := v.ClearSize(ip.fs.Cache())
	if uint32(len(blocks)) != dinode.TotalBlocks(size) {
		panic(fmt.Sprintf("cleared %d blocks from %s, size %d needs %d",
			len(blocks), ip, size, dinode.TotalBlocks(size)))
	}
	for _, b := range blocks {
		l.DeallocData(b)
	}
}

// Truncate sets the size of the file to 'size' bytes. Growing pads with
// zeros. Files only shrink by being cleared, so the kept prefix is read
// out and written back, all under one hold of the filesystem lock.
func (ip *Inode) Truncate(size int) error {
	if size < 0 {
		return common.EINVAL
	}
	if size > common.MAX_FILE_SIZE {
		return common.EFBIG
	}

	l := ip.fs.Lock()
	defer l.Unlock()

	cur := int(ip.stat().Size)
	switch {
	case size == cur:
		return nil
	case size > cur:
		if _, err := ip.write(size-1, []byte{0}, l); err != nil {
			return err
		}
		ip.fs.Sync()
		return nil
	}

	keep := make([]byte, size)
	v := ip.readDiskInode()
	v.ReadAt(0, keep, ip.fs.Cache())
	v.Release()

	ip.clear(l)
	if size > 0 {
		// The blocks just freed are enough to hold the prefix again
		if _, err := ip.write(0, keep, l); err != nil {
			panic(fmt.Sprintf("rewriting %d bytes of %s: %s", size, ip, err))
		}
	}
	ip.fs.Sync()
	return nil
}

// Stat returns a snapshot of the inode's metadata
func (ip *Inode) Stat() common.Stat {
	l := ip.fs.Lock()
	defer l.Unlock()
	return ip.stat()
}

func (ip *Inode) stat() common.Stat {
	v := ip.readDiskInode()
	defer v.Release()
	return common.Stat{
		IsDir:    v.IsDir(),
		IsFile:   v.IsFile(),
		Inum:     ip.inum,
		HardLink: v.HardLink,
		Size:     v.Size,
	}
}
