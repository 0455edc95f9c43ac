package dinode

import (
	"github.com/unconsolable/easyfs/bcache"
)

// View is a decoded copy of one disk inode whose cache block stays pinned
// and locked until Release. Changes made through a View opened with Modify
// are written back to the cache block on Release; a View opened with Read
// discards them.
//
// Every View must be released exactly once, normally with a defer right
// after it is opened:
//
//	v := dinode.Modify(cache, block, offset)
//	defer v.Release()
type View struct {
	*DiskInode

	cache  *bcache.LRUCache
	bp     *bcache.CacheBlock
	offset int
	modify bool
}

func open(cache *bcache.LRUCache, block, offset int, modify bool) *View {
	bp := cache.GetBlock(block)
	bp.Lock()
	di := new(DiskInode)
	bp.Read(offset, di)
	return &View{di, cache, bp, offset, modify}
}

// Read opens a read-only view of the disk inode at 'offset' in 'block'
func Read(cache *bcache.LRUCache, block, offset int) *View {
	return open(cache, block, offset, false)
}

// Modify opens a writable view of the disk inode at 'offset' in 'block'
func Modify(cache *bcache.LRUCache, block, offset int) *View {
	return open(cache, block, offset, true)
}

// Release writes back a modified inode and gives up the cache block
func (v *View) Release() {
	if v.bp == nil {
		panic("disk inode view released twice")
	}
	if v.modify {
		v.bp.Write(v.offset, v.DiskInode)
	}
	v.bp.Unlock()
	v.cache.PutBlock(v.bp)
	v.bp = nil
}
