package bcache

import (
	"testing"

	"github.com/unconsolable/easyfs/common"
	"github.com/unconsolable/easyfs/testutils"
)

func openTestCache(test *testing.T) (*testutils.CountingDevice, *LRUCache) {
	dev := testutils.NewCountingDevice(testutils.NewTestDevice(100))
	return dev, NewLRUCache(dev, 10)
}

// Test to ensure that blocks are re-used in last-recently-used order, i.e.
// in the order they are 'put' back into the cache.
func TestLRUOrder(test *testing.T) {
	_, cache := openTestCache(test)

	// get 10 blocks
	blocks := make([]*CacheBlock, 10)
	for i := 0; i < 10; i++ {
		blocks[i] = cache.GetBlock(i)
	}

	// put them back
	for i := 0; i < 10; i++ {
		cache.PutBlock(blocks[i])
	}

	// now fetch 10 more different blocks
	for i := 0; i < 10; i++ {
		cb := cache.GetBlock(i + 10)
		if cb != blocks[i] {
			testutils.ErrorHere(test, "cache block mismatch, expected %p, got %p", blocks[i], cb)
		}
		if cb.Blocknum != i+10 {
			testutils.ErrorHere(test, "Blocknum mismatch, expected %d, got %d", i+10, cb.Blocknum)
		}
	}
}

func TestCacheFullPanic(test *testing.T) {
	_, cache := openTestCache(test)

	for i := 0; i < 10; i++ {
		_ = cache.GetBlock(i)
	}

	testutils.ExpectPanic(test, "all buffers in use", func() {
		_ = cache.GetBlock(11)
	})

	// A resident block can still be fetched when every slot is pinned
	cb := cache.GetBlock(3)
	if cb.Blocknum != 3 {
		testutils.ErrorHere(test, "Blocknum mismatch, expected 3, got %d", cb.Blocknum)
	}
}

// Test that blocks are cached: the second get of a block must not reach the
// device.
func TestDoesCache(test *testing.T) {
	dev, cache := openTestCache(test)

	cb1 := cache.GetBlock(5)
	cb1.Lock()
	data := cb1.Bytes(0, common.BLOCK_SZ)
	if data[0] != 5 {
		testutils.ErrorHere(test, "Data in block did not match, expected %x, got %x", 5, data[0])
	}
	cb1.Unlock()

	cb2 := cache.GetBlock(5)
	if cb1 != cb2 {
		testutils.ErrorHere(test, "Cache block mismatch, expected %p, got %p", cb1, cb2)
	}
	cache.PutBlock(cb1)
	cache.PutBlock(cb2)

	cb3 := cache.GetBlock(5)
	cache.PutBlock(cb3)

	if n := dev.Reads(5); n != 1 {
		testutils.ErrorHere(test, "Expected 1 device read of block 5, got %d", n)
	}
}

func TestDirtyBlockWrittenOnEviction(test *testing.T) {
	dev, cache := openTestCache(test)

	cb := cache.GetBlock(0)
	cb.Lock()
	cb.PutUint32(8, 0xdeadbeef)
	cb.Unlock()
	cache.PutBlock(cb)

	if n := dev.Writes(0); n != 0 {
		testutils.FatalHere(test, "Dirty block written before eviction (%d writes)", n)
	}

	// Cycle enough other blocks through the cache to push block 0 out
	for i := 1; i <= 10; i++ {
		cache.PutBlock(cache.GetBlock(i))
	}
	if n := dev.Writes(0); n != 1 {
		testutils.FatalHere(test, "Expected block 0 to be written once on eviction, got %d", n)
	}

	cb = cache.GetBlock(0)
	cb.Lock()
	if v := cb.Uint32(8); v != 0xdeadbeef {
		testutils.ErrorHere(test, "Reloaded block mismatch, expected %x, got %x", 0xdeadbeef, v)
	}
	cb.Unlock()
	cache.PutBlock(cb)
}

func TestFlushWritesOnlyDirty(test *testing.T) {
	dev, cache := openTestCache(test)

	clean := cache.GetBlock(1)
	dirty := cache.GetBlock(2)
	dirty.Lock()
	dirty.Zero()
	dirty.Unlock()

	// Flush must cope with pinned blocks
	cache.Flush()
	cache.PutBlock(clean)
	cache.PutBlock(dirty)

	if n := dev.Writes(1); n != 0 {
		testutils.ErrorHere(test, "Clean block was written %d times", n)
	}
	if n := dev.Writes(2); n != 1 {
		testutils.ErrorHere(test, "Dirty block was written %d times, expected 1", n)
	}
	if dirty.Dirty() {
		testutils.ErrorHere(test, "Block still dirty after flush")
	}

	// Nothing left to write
	cache.Flush()
	if n := dev.TotalWrites(); n != 1 {
		testutils.ErrorHere(test, "Expected 1 write in total, got %d", n)
	}
}

func TestTypedAccess(test *testing.T) {
	_, cache := openTestCache(test)

	type pair struct {
		A uint32
		B uint16
	}

	cb := cache.GetBlock(7)
	defer cache.PutBlock(cb)
	cb.Lock()
	defer cb.Unlock()

	cb.Write(100, &pair{0x01020304, 0x0506})
	raw := cb.Bytes(100, 6)
	expected := []byte{0x04, 0x03, 0x02, 0x01, 0x06, 0x05}
	for i := range expected {
		if raw[i] != expected[i] {
			testutils.ErrorHere(test, "Byte %d mismatch, expected %x, got %x", i, expected[i], raw[i])
		}
	}

	var p pair
	cb.Read(100, &p)
	if p.A != 0x01020304 || p.B != 0x0506 {
		testutils.ErrorHere(test, "Decoded %+v", p)
	}

	testutils.ExpectPanic(test, "out of range", func() {
		cb.Bytes(common.BLOCK_SZ-2, 4)
	})
}

func TestInvalidate(test *testing.T) {
	dev, cache := openTestCache(test)

	cache.PutBlock(cache.GetBlock(4))
	if cache.Resident() != 1 {
		testutils.FatalHere(test, "Expected 1 resident block, got %d", cache.Resident())
	}
	cache.Invalidate()
	if cache.Resident() != 0 {
		testutils.FatalHere(test, "Expected no resident blocks, got %d", cache.Resident())
	}
	cache.PutBlock(cache.GetBlock(4))
	if n := dev.Reads(4); n != 2 {
		testutils.ErrorHere(test, "Expected block 4 to be read twice, got %d", n)
	}
}
