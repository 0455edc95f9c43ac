// Package fs manages the layout of an easyfs volume: the superblock, the two
// allocation bitmaps and the inode area, along with the lock that serialises
// every operation on the volume.
package fs

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
	"github.com/jacobsa/syncutil"
	log "github.com/sirupsen/logrus"
	"github.com/unconsolable/easyfs/alloctbl"
	"github.com/unconsolable/easyfs/bcache"
	"github.com/unconsolable/easyfs/common"
	"github.com/unconsolable/easyfs/dinode"
)

type FileSystem struct {
	dev   common.BlockDevice
	cache *bcache.LRUCache
	super common.SuperBlock

	inodeBitmap    *alloctbl.Bitmap
	dataBitmap     *alloctbl.Bitmap
	inodeAreaStart uint32
	dataAreaStart  uint32

	mu syncutil.InvariantMutex

	// Number of allocated inodes and data blocks
	//
	// GUARDED_BY(mu)
	inodesUsed int
	blocksUsed int
}

// Usage is a snapshot of how much of the volume is allocated
type Usage struct {
	InodesUsed  int
	InodesTotal int
	BlocksUsed  int
	BlocksTotal int
}

// Create formats 'dev' as an easyfs volume of 'totalBlocks' blocks with
// 'inodeBitmapBlocks' blocks of inode bitmap, and allocates the root
// directory as inode 0. Every block of the volume is zeroed.
func Create(dev common.BlockDevice, totalBlocks, inodeBitmapBlocks uint32, opts ...Option) (*FileSystem, error) {
	o, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}

	sb, err := layout(totalBlocks, inodeBitmapBlocks)
	if err != nil {
		return nil, err
	}
	if o.uuid == uuid.Nil {
		o.uuid = uuid.New()
	}
	sb.UUID = o.uuid

	fs := newFileSystem(dev, sb, o)

	// Clear the whole volume
	for i := 0; i < int(totalBlocks); i++ {
		bp := fs.cache.GetBlock(i)
		bp.Lock()
		bp.Zero()
		bp.Unlock()
		fs.cache.PutBlock(bp)
	}

	bp := fs.cache.GetBlock(common.SUPER_BLOCK)
	bp.Lock()
	bp.Write(0, &fs.super)
	bp.Unlock()
	fs.cache.PutBlock(bp)

	fs.startLocking()
	if err := fs.createRoot(); err != nil {
		return nil, err
	}
	fs.cache.Flush()

	log.Debugf("Created easyfs volume %s: %d blocks, %d inodes, %d data blocks",
		o.uuid, totalBlocks, fs.inodeBitmap.Maximum(), fs.dataBitmap.Maximum())
	return fs, nil
}

func (fs *FileSystem) createRoot() error {
	l := fs.Lock()
	defer l.Unlock()

	inum, err := l.AllocInode()
	if err != nil {
		return err
	}
	if inum != common.ROOT_INODE {
		panic(fmt.Sprintf("root directory allocated as inode %d", inum))
	}
	block, offset := fs.DiskInodePos(inum)
	v := dinode.Modify(fs.cache, block, offset)
	v.Initialize(dinode.Directory)
	v.Release()
	return nil
}

// Open mounts the easyfs volume on 'dev'. It fails with EINVAL when block 0
// does not hold a valid superblock.
func Open(dev common.BlockDevice, opts ...Option) (*FileSystem, error) {
	o, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, common.BLOCK_SZ)
	if err := dev.ReadBlock(common.SUPER_BLOCK, buf); err != nil {
		return nil, fmt.Errorf("reading superblock: %w", err)
	}
	var sb common.SuperBlock
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &sb); err != nil {
		return nil, fmt.Errorf("decoding superblock: %w", err)
	}
	if !sb.Valid() {
		log.Debugf("Bad magic number %#x on device", sb.Magic)
		return nil, common.EINVAL
	}

	fs := newFileSystem(dev, &sb, o)
	fs.startLocking()

	log.Debugf("Opened easyfs volume %s: %d/%d inodes, %d/%d data blocks in use",
		uuid.UUID(sb.UUID), fs.inodesUsed, fs.inodeBitmap.Maximum(),
		fs.blocksUsed, fs.dataBitmap.Maximum())
	return fs, nil
}

// layout computes the superblock for a volume of the given size
func layout(totalBlocks, inodeBitmapBlocks uint32) (*common.SuperBlock, error) {
	if inodeBitmapBlocks == 0 {
		return nil, common.EINVAL
	}
	inodeNum := inodeBitmapBlocks * common.BLOCK_BITS
	inodeAreaBlocks := (inodeNum*common.DISK_INODE_SZ + common.BLOCK_SZ - 1) / common.BLOCK_SZ
	inodeTotal := inodeBitmapBlocks + inodeAreaBlocks

	// A data bitmap block and a data block, at least
	if uint64(totalBlocks) < uint64(inodeTotal)+3 {
		return nil, common.EINVAL
	}
	dataTotal := totalBlocks - 1 - inodeTotal
	dataBitmapBlocks := (dataTotal + common.BLOCK_BITS) / (common.BLOCK_BITS + 1)

	return &common.SuperBlock{
		Magic:             common.EFS_MAGIC,
		TotalBlocks:       totalBlocks,
		InodeBitmapBlocks: inodeBitmapBlocks,
		InodeAreaBlocks:   inodeAreaBlocks,
		DataBitmapBlocks:  dataBitmapBlocks,
		DataAreaBlocks:    dataTotal - dataBitmapBlocks,
	}, nil
}

func newFileSystem(dev common.BlockDevice, sb *common.SuperBlock, o *options) *FileSystem {
	fs := &FileSystem{
		dev:   dev,
		cache: bcache.NewLRUCache(dev, o.slots),
		super: *sb,
	}

	inodeBitmapStart := common.SUPER_BLOCK + 1
	fs.inodeAreaStart = uint32(inodeBitmapStart) + sb.InodeBitmapBlocks
	dataBitmapStart := fs.inodeAreaStart + sb.InodeAreaBlocks
	fs.dataAreaStart = dataBitmapStart + sb.DataBitmapBlocks

	fs.inodeBitmap = alloctbl.NewBitmap(inodeBitmapStart, int(sb.InodeBitmapBlocks),
		int(sb.InodeBitmapBlocks)*common.BLOCK_BITS)
	fs.dataBitmap = alloctbl.NewBitmap(int(dataBitmapStart), int(sb.DataBitmapBlocks),
		int(sb.DataAreaBlocks))
	return fs
}

// startLocking loads the allocation counters from the bitmaps and sets up
// the filesystem lock. The lock checks its invariants as soon as it is
// built, so this must run once the bitmaps on the device are final.
func (fs *FileSystem) startLocking() {
	fs.inodesUsed = fs.inodeBitmap.Count(fs.cache)
	fs.blocksUsed = fs.dataBitmap.Count(fs.cache)
	fs.mu = syncutil.NewInvariantMutex(fs.checkInvariants)
}

// LOCKS_REQUIRED(fs.mu)
func (fs *FileSystem) checkInvariants() {
	if fs.inodesUsed < 0 || fs.inodesUsed > fs.inodeBitmap.Maximum() {
		panic(fmt.Sprintf("inode count %d out of range", fs.inodesUsed))
	}
	if fs.blocksUsed < 0 || fs.blocksUsed > fs.dataBitmap.Maximum() {
		panic(fmt.Sprintf("data block count %d out of range", fs.blocksUsed))
	}
	if n := fs.inodeBitmap.Count(fs.cache); n != fs.inodesUsed {
		panic(fmt.Sprintf("inode bitmap has %d bits set, expected %d", n, fs.inodesUsed))
	}
	if n := fs.dataBitmap.Count(fs.cache); n != fs.blocksUsed {
		panic(fmt.Sprintf("data bitmap has %d bits set, expected %d", n, fs.blocksUsed))
	}
}

// DiskInodePos returns the block holding inode 'inum' and the byte offset
// of the inode within it.
func (fs *FileSystem) DiskInodePos(inum uint32) (int, int) {
	if int(inum) >= fs.inodeBitmap.Maximum() {
		panic(fmt.Sprintf("inode %d outside of inode area", inum))
	}
	block := fs.inodeAreaStart + inum/common.INODES_PER_BLOCK
	offset := (inum % common.INODES_PER_BLOCK) * common.DISK_INODE_SZ
	return int(block), int(offset)
}

// Cache returns the block cache shared by everything on this volume
func (fs *FileSystem) Cache() *bcache.LRUCache {
	return fs.cache
}

// SuperBlock returns a copy of the volume's superblock
func (fs *FileSystem) SuperBlock() common.SuperBlock {
	return fs.super
}

// DataAreaStart returns the block number of the first data block
func (fs *FileSystem) DataAreaStart() uint32 {
	return fs.dataAreaStart
}

// Sync writes every dirty cached block to the device
func (fs *FileSystem) Sync() {
	fs.cache.Flush()
}

func (fs *FileSystem) Usage() Usage {
	l := fs.Lock()
	defer l.Unlock()
	return l.Usage()
}

// InodeAllocated reports whether 'inum' is marked in use in the inode bitmap
func (fs *FileSystem) InodeAllocated(inum uint32) bool {
	l := fs.Lock()
	defer l.Unlock()
	return l.InodeAllocated(inum)
}

// DataAllocated reports whether data block 'block' is marked in use
func (fs *FileSystem) DataAllocated(block uint32) bool {
	l := fs.Lock()
	defer l.Unlock()
	return l.DataAllocated(block)
}

// Close flushes the cache and closes the device
func (fs *FileSystem) Close() error {
	fs.cache.Flush()
	return fs.dev.Close()
}
