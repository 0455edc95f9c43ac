package fs

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/unconsolable/easyfs/common"
)

// Locked is proof that the caller holds the filesystem lock. Allocation is
// only reachable through it.
type Locked struct {
	fs *FileSystem
}

// Lock acquires the filesystem lock. The returned guard must be unlocked
// exactly once.
func (fs *FileSystem) Lock() *Locked {
	fs.mu.Lock()
	return &Locked{fs}
}

func (l *Locked) Unlock() {
	if l.fs == nil {
		panic("filesystem lock released twice")
	}
	fs := l.fs
	l.fs = nil
	fs.mu.Unlock()
}

// FileSystem returns the volume the lock belongs to
func (l *Locked) FileSystem() *FileSystem {
	return l.fs
}

// AllocInode allocates an inode number. The disk inode itself is left for
// the caller to initialise.
func (l *Locked) AllocInode() (uint32, error) {
	fs := l.fs
	bit, ok := fs.inodeBitmap.Alloc(fs.cache)
	if !ok {
		log.Warnf("Out of i-nodes on device %s", fs.volume())
		return 0, common.ENFILE
	}
	fs.inodesUsed++
	return uint32(bit), nil
}

func (l *Locked) DeallocInode(inum uint32) {
	fs := l.fs
	fs.inodeBitmap.Dealloc(fs.cache, int(inum))
	fs.inodesUsed--
}

// AllocData allocates a data block and returns its block number. Free data
// blocks are always zero filled.
func (l *Locked) AllocData() (uint32, error) {
	fs := l.fs
	bit, ok := fs.dataBitmap.Alloc(fs.cache)
	if !ok {
		log.Warnf("No space on device %s", fs.volume())
		return 0, common.ENOSPC
	}
	fs.blocksUsed++
	return uint32(bit) + fs.dataAreaStart, nil
}

// DeallocData zeroes data block 'block' and returns it to the data bitmap
func (l *Locked) DeallocData(block uint32) {
	fs := l.fs
	if block < fs.dataAreaStart {
		panic(fmt.Sprintf("tried to free block %d outside the data area", block))
	}

	bp := fs.cache.GetBlock(int(block))
	bp.Lock()
	bp.Zero()
	bp.Unlock()
	fs.cache.PutBlock(bp)

	fs.dataBitmap.Dealloc(fs.cache, int(block-fs.dataAreaStart))
	fs.blocksUsed--
}

func (l *Locked) Usage() Usage {
	fs := l.fs
	return Usage{
		InodesUsed:  fs.inodesUsed,
		InodesTotal: fs.inodeBitmap.Maximum(),
		BlocksUsed:  fs.blocksUsed,
		BlocksTotal: fs.dataBitmap.Maximum(),
	}
}

func (l *Locked) InodeAllocated(inum uint32) bool {
	fs := l.fs
	return int(inum) < fs.inodeBitmap.Maximum() && fs.inodeBitmap.IsSet(fs.cache, int(inum))
}

func (l *Locked) DataAllocated(block uint32) bool {
	fs := l.fs
	if block < fs.dataAreaStart || int(block-fs.dataAreaStart) >= fs.dataBitmap.Maximum() {
		return false
	}
	return fs.dataBitmap.IsSet(fs.cache, int(block-fs.dataAreaStart))
}

func (fs *FileSystem) volume() string {
	return fmt.Sprintf("%x", fs.super.UUID[:4])
}
