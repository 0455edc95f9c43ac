// Package dinode implements the on-disk inode: its layout, block addressing
// and byte-range access to the data it describes.
package dinode

import (
	"fmt"

	"github.com/unconsolable/easyfs/bcache"
	"github.com/unconsolable/easyfs/common"
)

type Type uint32

const (
	File Type = iota
	Directory
)

// A disk inode as stored in the inode area, DISK_INODE_SZ bytes long. Data
// block n of the file lives in Direct[n] for n < DIRECT_BOUND, in the
// single indirect block for n < INDIRECT1_BOUND, and in the double indirect
// tree beyond that.
type DiskInode struct {
	Size      uint32
	Direct    [common.INODE_DIRECT_COUNT]uint32
	Indirect1 uint32
	Indirect2 uint32
	Type      Type
	HardLink  uint32
}

// Initialize turns the inode into an empty object of the given type with a
// single link.
func (di *DiskInode) Initialize(t Type) {
	*di = DiskInode{Type: t, HardLink: 1}
}

func (di *DiskInode) IsDir() bool  { return di.Type == Directory }
func (di *DiskInode) IsFile() bool { return di.Type == File }

// DataBlocks returns the number of data blocks holding the file's contents
func (di *DiskInode) DataBlocks() uint32 {
	return dataBlocks(di.Size)
}

func dataBlocks(size uint32) uint32 {
	return (size + common.BLOCK_SZ - 1) / common.BLOCK_SZ
}

// TotalBlocks returns the number of blocks, data and index, that a file of
// 'size' bytes occupies.
func TotalBlocks(size uint32) uint32 {
	data := dataBlocks(size)
	total := data
	if data > common.DIRECT_BOUND {
		total++
	}
	if data > common.INDIRECT1_BOUND {
		total++
		total += (data - common.INDIRECT1_BOUND + common.INODE_INDIRECT1_COUNT - 1) / common.INODE_INDIRECT1_COUNT
	}
	return total
}

// BlocksNumNeeded returns how many blocks must be allocated to grow the
// file to 'newSize' bytes.
func (di *DiskInode) BlocksNumNeeded(newSize uint32) uint32 {
	if newSize < di.Size {
		panic(fmt.Sprintf("cannot shrink inode from %d to %d bytes", di.Size, newSize))
	}
	return TotalBlocks(newSize) - TotalBlocks(di.Size)
}

// GetBlockID maps block 'inner' of the file to a device block number
func (di *DiskInode) GetBlockID(inner uint32, cache *bcache.LRUCache) uint32 {
	switch {
	case inner < common.DIRECT_BOUND:
		return di.Direct[inner]
	case inner < common.INDIRECT1_BOUND:
		return indirect(cache, di.Indirect1, inner-common.DIRECT_BOUND)
	default:
		last := inner - common.INDIRECT1_BOUND
		ind1 := indirect(cache, di.Indirect2, last/common.INODE_INDIRECT1_COUNT)
		return indirect(cache, ind1, last%common.INODE_INDIRECT1_COUNT)
	}
}

// IncreaseSize grows the file to 'newSize' bytes, using newBlocks (exactly
// BlocksNumNeeded(newSize) of them, in order) for the new data and index
// blocks. Index blocks handed in must be zero-filled.
func (di *DiskInode) IncreaseSize(newSize uint32, newBlocks []uint32, cache *bcache.LRUCache) {
	if uint32(len(newBlocks)) != di.BlocksNumNeeded(newSize) {
		panic(fmt.Sprintf("growing to %d bytes needs %d blocks, given %d",
			newSize, di.BlocksNumNeeded(newSize), len(newBlocks)))
	}
	next := func() uint32 {
		b := newBlocks[0]
		newBlocks = newBlocks[1:]
		return b
	}

	current := di.DataBlocks()
	di.Size = newSize
	total := di.DataBlocks()

	// fill direct
	for current < total && current < common.DIRECT_BOUND {
		di.Direct[current] = next()
		current++
	}

	// alloc indirect1
	if total <= common.DIRECT_BOUND {
		return
	}
	if current == common.DIRECT_BOUND {
		di.Indirect1 = next()
	}
	current -= common.DIRECT_BOUND
	total -= common.DIRECT_BOUND

	// fill indirect1
	withBlock(cache, di.Indirect1, func(bp *bcache.CacheBlock) {
		for current < total && current < common.INODE_INDIRECT1_COUNT {
			bp.PutUint32(int(current)*4, next())
			current++
		}
	})

	// alloc indirect2
	if total <= common.INODE_INDIRECT1_COUNT {
		return
	}
	if current == common.INODE_INDIRECT1_COUNT {
		di.Indirect2 = next()
	}
	current -= common.INODE_INDIRECT1_COUNT
	total -= common.INODE_INDIRECT1_COUNT

	// fill indirect2 from (a0, b0) -> (a1, b1)
	a0, b0 := current/common.INODE_INDIRECT1_COUNT, current%common.INODE_INDIRECT1_COUNT
	a1, b1 := total/common.INODE_INDIRECT1_COUNT, total%common.INODE_INDIRECT1_COUNT
	withBlock(cache, di.Indirect2, func(ind2 *bcache.CacheBlock) {
		for a0 < a1 || (a0 == a1 && b0 < b1) {
			if b0 == 0 {
				ind2.PutUint32(int(a0)*4, next())
			}
			withBlock(cache, ind2.Uint32(int(a0)*4), func(ind1 *bcache.CacheBlock) {
				ind1.PutUint32(int(b0)*4, next())
			})
			b0++
			if b0 == common.INODE_INDIRECT1_COUNT {
				b0 = 0
				a0++
			}
		}
	})
}

// Blocks returns every block the file occupies, data and index blocks
// alike, in the order ClearSize frees them.
func (di *DiskInode) Blocks(cache *bcache.LRUCache) []uint32 {
	var v []uint32
	data := di.DataBlocks()

	// direct
	for i := uint32(0); i < data && i < common.DIRECT_BOUND; i++ {
		v = append(v, di.Direct[i])
	}
	if data <= common.DIRECT_BOUND {
		return v
	}

	// indirect1
	v = append(v, di.Indirect1)
	data -= common.DIRECT_BOUND
	withBlock(cache, di.Indirect1, func(bp *bcache.CacheBlock) {
		for i := uint32(0); i < data && i < common.INODE_INDIRECT1_COUNT; i++ {
			v = append(v, bp.Uint32(int(i)*4))
		}
	})
	if data <= common.INODE_INDIRECT1_COUNT {
		return v
	}

	// indirect2
	v = append(v, di.Indirect2)
	data -= common.INODE_INDIRECT1_COUNT
	a1, b1 := data/common.INODE_INDIRECT1_COUNT, data%common.INODE_INDIRECT1_COUNT
	withBlock(cache, di.Indirect2, func(ind2 *bcache.CacheBlock) {
		for a := uint32(0); a < a1; a++ {
			id := ind2.Uint32(int(a) * 4)
			v = append(v, id)
			withBlock(cache, id, func(ind1 *bcache.CacheBlock) {
				for b := 0; b < common.INODE_INDIRECT1_COUNT; b++ {
					v = append(v, ind1.Uint32(b*4))
				}
			})
		}
		if b1 > 0 {
			id := ind2.Uint32(int(a1) * 4)
			v = append(v, id)
			withBlock(cache, id, func(ind1 *bcache.CacheBlock) {
				for b := uint32(0); b < b1; b++ {
					v = append(v, ind1.Uint32(int(b)*4))
				}
			})
		}
	})
	return v
}

// ClearSize empties the file and returns every block it occupied. The
// blocks themselves are left untouched.
func (di *DiskInode) ClearSize(cache *bcache.LRUCache) []uint32 {
	v := di.Blocks(cache)
	t := di.Type
	links := di.HardLink
	*di = DiskInode{Type: t, HardLink: links}
	return v
}

// ReadAt copies file data starting at 'offset' into buf, stopping at the end
// of the file, and returns the number of bytes copied.
func (di *DiskInode) ReadAt(offset int, buf []byte, cache *bcache.LRUCache) int {
	start := offset
	end := offset + len(buf)
	if end > int(di.Size) {
		end = int(di.Size)
	}
	if start >= end {
		return 0
	}
	return di.span(start, end, cache, func(bp *bcache.CacheBlock, boff, done, n int) {
		copy(buf[done:done+n], bp.Bytes(boff, n))
	})
}

// WriteAt copies buf into the file starting at 'offset'. The file must
// already be large enough: writes never grow a disk inode.
func (di *DiskInode) WriteAt(offset int, buf []byte, cache *bcache.LRUCache) int {
	start := offset
	end := offset + len(buf)
	if end > int(di.Size) {
		end = int(di.Size)
	}
	if start > end {
		panic(fmt.Sprintf("write at %d past end of %d byte inode", offset, di.Size))
	}
	if start == end {
		return 0
	}
	return di.span(start, end, cache, func(bp *bcache.CacheBlock, boff, done, n int) {
		copy(bp.Bytes(boff, n), buf[done:done+n])
		bp.MarkDirty()
	})
}

// span walks the data blocks covering [start, end), calling f with each
// locked block, the offset within it, the bytes handled so far and the
// number of bytes in this block.
func (di *DiskInode) span(start, end int, cache *bcache.LRUCache, f func(*bcache.CacheBlock, int, int, int)) int {
	done := 0
	for start < end {
		blockEnd := (start/common.BLOCK_SZ + 1) * common.BLOCK_SZ
		if blockEnd > end {
			blockEnd = end
		}
		n := blockEnd - start
		id := di.GetBlockID(uint32(start/common.BLOCK_SZ), cache)
		withBlock(cache, id, func(bp *bcache.CacheBlock) {
			f(bp, start%common.BLOCK_SZ, done, n)
		})
		done += n
		start = blockEnd
	}
	return done
}

func indirect(cache *bcache.LRUCache, block, index uint32) uint32 {
	var id uint32
	withBlock(cache, block, func(bp *bcache.CacheBlock) {
		id = bp.Uint32(int(index) * 4)
	})
	return id
}

// withBlock runs f against a pinned, locked cache block
func withBlock(cache *bcache.LRUCache, block uint32, f func(*bcache.CacheBlock)) {
	bp := cache.GetBlock(int(block))
	defer cache.PutBlock(bp)
	bp.Lock()
	defer bp.Unlock()
	f(bp)
}
