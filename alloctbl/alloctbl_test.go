package alloctbl

import (
	"testing"

	"github.com/unconsolable/easyfs/bcache"
	"github.com/unconsolable/easyfs/common"
	"github.com/unconsolable/easyfs/testutils"
)

func openTestBitmap(blocks, maxBits int) (*bcache.LRUCache, *Bitmap) {
	dev := testutils.NewBlankDevice(blocks + 1)
	return bcache.NewLRUCache(dev, 4), NewBitmap(1, blocks, maxBits)
}

func TestAllocInOrder(test *testing.T) {
	cache, bm := openTestBitmap(1, 100)

	for i := 0; i < 100; i++ {
		b, ok := bm.Alloc(cache)
		if !ok {
			testutils.FatalHere(test, "Allocation %d failed", i)
		}
		if b != i {
			testutils.FatalHere(test, "Expected bit %d, got %d", i, b)
		}
	}

	if _, ok := bm.Alloc(cache); ok {
		testutils.ErrorHere(test, "Allocated beyond the end of the map")
	}
	if n := bm.Count(cache); n != 100 {
		testutils.ErrorHere(test, "Expected 100 bits set, got %d", n)
	}
}

func TestFreedBitIsReused(test *testing.T) {
	cache, bm := openTestBitmap(2, 2*common.BLOCK_BITS)

	for i := 0; i < 70; i++ {
		bm.Alloc(cache)
	}
	bm.Dealloc(cache, 65)
	if bm.IsSet(cache, 65) {
		testutils.FatalHere(test, "Bit 65 still set after dealloc")
	}

	b, ok := bm.Alloc(cache)
	if !ok || b != 65 {
		testutils.ErrorHere(test, "Expected to reallocate bit 65, got %d (%v)", b, ok)
	}
}

func TestAllocSpansBlocks(test *testing.T) {
	cache, bm := openTestBitmap(2, common.BLOCK_BITS+10)

	for i := 0; i < common.BLOCK_BITS; i++ {
		bm.Alloc(cache)
	}
	b, ok := bm.Alloc(cache)
	if !ok || b != common.BLOCK_BITS {
		testutils.ErrorHere(test, "Expected bit %d from second block, got %d (%v)", common.BLOCK_BITS, b, ok)
	}
}

func TestDoubleFreePanics(test *testing.T) {
	cache, bm := openTestBitmap(1, 10)

	b, _ := bm.Alloc(cache)
	bm.Dealloc(cache, b)
	testutils.ExpectPanic(test, "tried to free unused bit", func() {
		bm.Dealloc(cache, b)
	})
	testutils.ExpectPanic(test, "bit outside of bitmap", func() {
		bm.Dealloc(cache, 10)
	})
}
