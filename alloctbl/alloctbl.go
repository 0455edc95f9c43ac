// Package alloctbl implements the on-disk allocation bitmaps used for both
// inodes and data blocks.
package alloctbl

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/unconsolable/easyfs/bcache"
	"github.com/unconsolable/easyfs/common"
)

const (
	WORD_BITS       = 64
	WORDS_PER_BLOCK = common.BLOCK_SZ / 8
)

// Bitmap is a run of 'blocks' consecutive blocks starting at block 'start',
// of which the first 'maxBits' bits are usable. Callers serialise access
// through the filesystem lock.
type Bitmap struct {
	start   int
	blocks  int
	maxBits int
}

func NewBitmap(start, blocks, maxBits int) *Bitmap {
	if maxBits > blocks*common.BLOCK_BITS {
		panic(fmt.Sprintf("%d bits do not fit in %d bitmap blocks", maxBits, blocks))
	}
	return &Bitmap{start, blocks, maxBits}
}

// Maximum returns the number of bits that can be allocated
func (bm *Bitmap) Maximum() int {
	return bm.maxBits
}

// Alloc allocates the lowest free bit and returns its bit number. It
// returns false when every bit is in use.
func (bm *Bitmap) Alloc(cache *bcache.LRUCache) (int, bool) {
	for block := 0; block < bm.blocks; block++ {
		if b, ok := bm.allocIn(cache, block); ok {
			return b, true
		} else if b >= bm.maxBits {
			break
		}
	}
	return 0, false
}

// allocIn looks for a free bit in one bitmap block. On failure the returned
// bit number is the first bit past that block.
func (bm *Bitmap) allocIn(cache *bcache.LRUCache, block int) (int, bool) {
	bp := cache.GetBlock(bm.start + block)
	defer cache.PutBlock(bp)
	bp.Lock()
	defer bp.Unlock()

	// Iterate over the words in a block
	for i := 0; i < WORDS_PER_BLOCK; i++ {
		num := bp.Uint64(i * 8)

		// Does this word contain a free bit?
		if num == math.MaxUint64 {
			continue
		}
		bit := bits.TrailingZeros64(^num)

		// Get the bit number from the start of the bit map
		b := block*common.BLOCK_BITS + i*WORD_BITS + bit

		// Don't allocate bits beyond the end of the map
		if b >= bm.maxBits {
			return b, false
		}

		bp.PutUint64(i*8, num|(1<<uint(bit)))
		return b, true
	}
	return (block + 1) * common.BLOCK_BITS, false
}

// Dealloc frees an allocated bit. Freeing a bit that is not allocated means
// the bitmap is corrupt.
func (bm *Bitmap) Dealloc(cache *bcache.LRUCache, bit int) {
	bp, word, mask := bm.locate(cache, bit)
	defer cache.PutBlock(bp)
	bp.Lock()
	defer bp.Unlock()

	k := bp.Uint64(word * 8)
	if (k & mask) == 0 {
		panic(fmt.Sprintf("tried to free unused bit %d", bit))
	}
	bp.PutUint64(word*8, k&^mask)
}

// IsSet reports whether 'bit' is allocated
func (bm *Bitmap) IsSet(cache *bcache.LRUCache, bit int) bool {
	bp, word, mask := bm.locate(cache, bit)
	defer cache.PutBlock(bp)
	bp.Lock()
	defer bp.Unlock()
	return bp.Uint64(word*8)&mask != 0
}

// Count returns the number of allocated bits
func (bm *Bitmap) Count(cache *bcache.LRUCache) int {
	n := 0
	for block := 0; block < bm.blocks; block++ {
		bp := cache.GetBlock(bm.start + block)
		bp.Lock()
		for i := 0; i < WORDS_PER_BLOCK; i++ {
			n += bits.OnesCount64(bp.Uint64(i * 8))
		}
		bp.Unlock()
		cache.PutBlock(bp)
	}
	return n
}

func (bm *Bitmap) locate(cache *bcache.LRUCache, bit int) (*bcache.CacheBlock, int, uint64) {
	if bit < 0 || bit >= bm.maxBits {
		panic(fmt.Sprintf("bit %d outside of bitmap (%d bits)", bit, bm.maxBits))
	}
	block := bit / common.BLOCK_BITS
	word := (bit % common.BLOCK_BITS) / WORD_BITS
	mask := uint64(1) << uint(bit%WORD_BITS)
	return cache.GetBlock(bm.start + block), word, mask
}
