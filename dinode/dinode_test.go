package dinode

import (
	"bytes"
	"reflect"
	"sort"
	"testing"

	"github.com/unconsolable/easyfs/bcache"
	"github.com/unconsolable/easyfs/common"
	"github.com/unconsolable/easyfs/testutils"
)

// A trivial block allocator handing out consecutive block numbers
type seqAlloc struct {
	next uint32
}

func (a *seqAlloc) take(n uint32) []uint32 {
	v := make([]uint32, n)
	for i := range v {
		v[i] = a.next
		a.next++
	}
	return v
}

func openTestCache() *bcache.LRUCache {
	return bcache.NewLRUCache(testutils.NewBlankDevice(512), common.NR_BUFS)
}

func grow(di *DiskInode, size uint32, alloc *seqAlloc, cache *bcache.LRUCache) {
	di.IncreaseSize(size, alloc.take(di.BlocksNumNeeded(size)), cache)
}

func TestDiskInodeSize(test *testing.T) {
	cache := openTestCache()
	bp := cache.GetBlock(0)
	defer cache.PutBlock(bp)
	bp.Lock()
	defer bp.Unlock()

	// Four inodes must fit a block exactly
	for i := 0; i < common.INODES_PER_BLOCK; i++ {
		bp.Write(i*common.DISK_INODE_SZ, &DiskInode{Size: uint32(i)})
	}
	var di DiskInode
	bp.Read(3*common.DISK_INODE_SZ, &di)
	if di.Size != 3 {
		testutils.ErrorHere(test, "Expected size 3, got %d", di.Size)
	}
}

func TestTotalBlocks(test *testing.T) {
	cases := []struct {
		size  uint32
		total uint32
	}{
		{0, 0},
		{1, 1},
		{common.BLOCK_SZ, 1},
		{common.BLOCK_SZ + 1, 2},
		{common.DIRECT_BOUND * common.BLOCK_SZ, common.DIRECT_BOUND},
		{(common.DIRECT_BOUND + 1) * common.BLOCK_SZ, common.DIRECT_BOUND + 2},
		{common.INDIRECT1_BOUND * common.BLOCK_SZ, common.INDIRECT1_BOUND + 1},
		{(common.INDIRECT1_BOUND + 1) * common.BLOCK_SZ, common.INDIRECT1_BOUND + 4},
		{(common.INDIRECT1_BOUND + common.INODE_INDIRECT1_COUNT + 1) * common.BLOCK_SZ,
			common.INDIRECT1_BOUND + common.INODE_INDIRECT1_COUNT + 5},
	}
	for _, c := range cases {
		if got := TotalBlocks(c.size); got != c.total {
			testutils.ErrorHere(test, "TotalBlocks(%d): expected %d, got %d", c.size, c.total, got)
		}
	}
}

func TestInitialize(test *testing.T) {
	di := DiskInode{Size: 10, HardLink: 5}
	di.Direct[0] = 42
	di.Initialize(Directory)
	if !di.IsDir() || di.IsFile() {
		testutils.ErrorHere(test, "Expected a directory")
	}
	if di.Size != 0 || di.Direct[0] != 0 || di.HardLink != 1 {
		testutils.ErrorHere(test, "Inode not reset: %+v", di)
	}
}

// Grow a file step by step across the direct, indirect and double indirect
// regions, then read everything back.
func TestGrowWriteRead(test *testing.T) {
	cache := openTestCache()
	alloc := &seqAlloc{next: 100}
	var di DiskInode
	di.Initialize(File)

	sizes := []uint32{
		100,
		common.DIRECT_BOUND * common.BLOCK_SZ,
		(common.DIRECT_BOUND+3)*common.BLOCK_SZ + 7,
		common.INDIRECT1_BOUND * common.BLOCK_SZ,
		(common.INDIRECT1_BOUND+common.INODE_INDIRECT1_COUNT+2)*common.BLOCK_SZ + 1,
	}

	var expected []byte
	for _, size := range sizes {
		old := di.Size
		grow(&di, size, alloc, cache)
		if di.Size != size {
			testutils.FatalHere(test, "Expected size %d, got %d", size, di.Size)
		}
		chunk := make([]byte, size-old)
		for i := range chunk {
			chunk[i] = byte((int(old) + i) % 251)
		}
		if n := di.WriteAt(int(old), chunk, cache); n != len(chunk) {
			testutils.FatalHere(test, "Short write: %d of %d", n, len(chunk))
		}
		expected = append(expected, chunk...)
	}

	got := make([]byte, len(expected)+100)
	n := di.ReadAt(0, got, cache)
	if n != len(expected) {
		testutils.FatalHere(test, "Expected to read %d bytes, got %d", len(expected), n)
	}
	if !bytes.Equal(got[:n], expected) {
		testutils.FatalHere(test, "Data read back does not match data written")
	}

	// A read in the middle, straddling a block boundary
	mid := make([]byte, 10)
	off := common.INDIRECT1_BOUND*common.BLOCK_SZ - 5
	di.ReadAt(off, mid, cache)
	if !bytes.Equal(mid, expected[off:off+10]) {
		testutils.ErrorHere(test, "Straddling read mismatch")
	}

	// Reads at or past the end return nothing
	if n := di.ReadAt(int(di.Size), mid, cache); n != 0 {
		testutils.ErrorHere(test, "Expected 0 bytes at EOF, got %d", n)
	}
}

func TestClearSizeReturnsEveryBlock(test *testing.T) {
	cache := openTestCache()
	alloc := &seqAlloc{next: 100}
	var di DiskInode
	di.Initialize(File)

	size := uint32((common.INDIRECT1_BOUND+common.INODE_INDIRECT1_COUNT+3)*common.BLOCK_SZ - 1)
	grow(&di, 10, alloc, cache)
	grow(&di, size, alloc, cache)

	listed := di.Blocks(cache)
	freed := di.ClearSize(cache)
	if !reflect.DeepEqual(listed, freed) {
		testutils.ErrorHere(test, "Blocks and ClearSize disagree")
	}
	if !di.IsFile() || di.HardLink != 1 {
		testutils.ErrorHere(test, "ClearSize changed type or links: %+v", di)
	}
	if uint32(len(freed)) != TotalBlocks(size) {
		testutils.FatalHere(test, "Expected %d blocks, got %d", TotalBlocks(size), len(freed))
	}
	sort.Slice(freed, func(i, j int) bool { return freed[i] < freed[j] })
	for i, b := range freed {
		if b != uint32(100+i) {
			testutils.FatalHere(test, "Freed blocks are not the allocated ones: %d at %d", b, i)
		}
	}
	if di.Size != 0 || di.Indirect1 != 0 || di.Indirect2 != 0 || di.Direct[0] != 0 {
		testutils.ErrorHere(test, "Inode not emptied: %+v", di)
	}
	if again := di.ClearSize(cache); len(again) != 0 {
		testutils.ErrorHere(test, "Clearing an empty inode returned %d blocks", len(again))
	}
}

func TestShrinkAndOverrunPanic(test *testing.T) {
	cache := openTestCache()
	alloc := &seqAlloc{next: 100}
	var di DiskInode
	di.Initialize(File)
	grow(&di, 600, alloc, cache)

	testutils.ExpectPanic(test, "cannot shrink", func() {
		di.BlocksNumNeeded(10)
	})
	testutils.ExpectPanic(test, "wrong number of blocks", func() {
		di.IncreaseSize(2000, nil, cache)
	})
	testutils.ExpectPanic(test, "write past end", func() {
		di.WriteAt(601, []byte{1}, cache)
	})

	// A write starting inside the file is clamped to its size
	if n := di.WriteAt(599, []byte{1, 2, 3}, cache); n != 1 {
		testutils.ErrorHere(test, "Expected clamped write of 1 byte, got %d", n)
	}
}

func TestViewWriteBack(test *testing.T) {
	cache := openTestCache()

	v := Modify(cache, 3, common.DISK_INODE_SZ)
	v.Initialize(Directory)
	v.HardLink = 7
	v.Release()

	r := Read(cache, 3, common.DISK_INODE_SZ)
	if !r.IsDir() || r.HardLink != 7 {
		testutils.ErrorHere(test, "Modified view not written back: %+v", *r.DiskInode)
	}
	r.HardLink = 1
	r.Release()

	r = Read(cache, 3, common.DISK_INODE_SZ)
	defer r.Release()
	if r.HardLink != 7 {
		testutils.ErrorHere(test, "Read view wrote back its changes")
	}

	testutils.ExpectPanic(test, "released twice", func() {
		v.Release()
	})
}
