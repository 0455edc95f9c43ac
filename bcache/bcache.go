package bcache

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/unconsolable/easyfs/common"
)

const NO_BLOCK = -1

// CacheBlock is the cached copy of one device block. A block obtained from
// GetBlock is pinned until it is handed back with PutBlock; its contents may
// only be touched while holding its lock.
type CacheBlock struct {
	Blocknum int // the number of this block, NO_BLOCK if the slot is unused

	m     sync.Mutex
	data  []byte
	dirty bool

	count int         // the number of clients of this block, guarded by the cache
	next  *CacheBlock // used to link all free bufs in a chain
	prev  *CacheBlock // used to link all free bufs the other way
}

func (cb *CacheBlock) Lock()   { cb.m.Lock() }
func (cb *CacheBlock) Unlock() { cb.m.Unlock() }

// Bytes returns the n bytes at 'offset' within the block. Writes through the
// returned slice must be followed by MarkDirty.
func (cb *CacheBlock) Bytes(offset, n int) []byte {
	if offset < 0 || offset+n > common.BLOCK_SZ {
		panic(fmt.Sprintf("range [%d, %d) outside of block %d", offset, offset+n, cb.Blocknum))
	}
	return cb.data[offset : offset+n]
}

// Read decodes the fixed-size value v from the bytes at 'offset'
func (cb *CacheBlock) Read(offset int, v interface{}) {
	n := binary.Size(v)
	if n < 0 {
		panic(fmt.Sprintf("cannot decode %T from a block", v))
	}
	if err := binary.Read(bytes.NewReader(cb.Bytes(offset, n)), binary.LittleEndian, v); err != nil {
		panic(err)
	}
}

// Write encodes the fixed-size value v into the bytes at 'offset' and marks
// the block dirty.
func (cb *CacheBlock) Write(offset int, v interface{}) {
	n := binary.Size(v)
	if n < 0 {
		panic(fmt.Sprintf("cannot encode %T into a block", v))
	}
	var w bytes.Buffer
	if err := binary.Write(&w, binary.LittleEndian, v); err != nil {
		panic(err)
	}
	copy(cb.Bytes(offset, n), w.Bytes())
	cb.dirty = true
}

func (cb *CacheBlock) Uint32(offset int) uint32 {
	return binary.LittleEndian.Uint32(cb.Bytes(offset, 4))
}

func (cb *CacheBlock) PutUint32(offset int, v uint32) {
	binary.LittleEndian.PutUint32(cb.Bytes(offset, 4), v)
	cb.dirty = true
}

func (cb *CacheBlock) Uint64(offset int) uint64 {
	return binary.LittleEndian.Uint64(cb.Bytes(offset, 8))
}

func (cb *CacheBlock) PutUint64(offset int, v uint64) {
	binary.LittleEndian.PutUint64(cb.Bytes(offset, 8), v)
	cb.dirty = true
}

// Zero clears the whole block
func (cb *CacheBlock) Zero() {
	for i := range cb.data {
		cb.data[i] = 0
	}
	cb.dirty = true
}

func (cb *CacheBlock) MarkDirty() { cb.dirty = true }
func (cb *CacheBlock) Dirty() bool { return cb.dirty }

// LRUCache is a fixed-size cache of the blocks of a single device. Blocks are
// re-used in least-recently-put order; dirty blocks reach the device when
// they are evicted or when Flush is called.
type LRUCache struct {
	dev common.BlockDevice

	m     sync.Mutex
	buf   []*CacheBlock       // static list of cache blocks
	hash  map[int]*CacheBlock // resident blocks by block number
	front *CacheBlock         // the least recently used unpinned block
	rear  *CacheBlock         // the most recently used unpinned block
}

// NewLRUCache creates a new LRUCache for 'dev' with the given number of slots
func NewLRUCache(dev common.BlockDevice, numslots int) *LRUCache {
	if numslots < 1 {
		panic("block cache needs at least one slot")
	}
	c := &LRUCache{
		dev:  dev,
		buf:  make([]*CacheBlock, numslots),
		hash: make(map[int]*CacheBlock, numslots),
	}

	// Create all of the entries in buf ahead of time
	for i := 0; i < numslots; i++ {
		c.buf[i] = &CacheBlock{
			Blocknum: NO_BLOCK,
			data:     make([]byte, common.BLOCK_SZ),
		}
		c.append_lru(c.buf[i])
	}
	return c
}

// GetBlock returns the cached copy of block 'bnum', reading it from the
// device if it is not resident. The block stays pinned until PutBlock.
func (c *LRUCache) GetBlock(bnum int) *CacheBlock {
	c.m.Lock()
	defer c.m.Unlock()

	if bp, ok := c.hash[bnum]; ok {
		if bp.count == 0 {
			c.rm_lru(bp)
		}
		bp.count++
		return bp
	}

	// Desired block is not resident. Take the oldest unpinned block.
	bp := c.front
	if bp == nil {
		panic("all buffers in use")
	}
	c.rm_lru(bp)

	if bp.Blocknum != NO_BLOCK {
		if bp.dirty {
			c.writeBlock(bp)
		}
		delete(c.hash, bp.Blocknum)
		log.Debugf("bcache: evicting block %d for block %d", bp.Blocknum, bnum)
	}

	if err := c.dev.ReadBlock(bnum, bp.data); err != nil {
		// put the slot back, it holds nothing useful
		bp.Blocknum = NO_BLOCK
		c.prepend_lru(bp)
		panic(fmt.Sprintf("error reading block %d: %s", bnum, err))
	}
	bp.Blocknum = bnum
	bp.dirty = false
	bp.count = 1
	c.hash[bnum] = bp
	return bp
}

// PutBlock releases a block obtained from GetBlock. Once no client holds it,
// it goes on the rear of the LRU chain.
func (c *LRUCache) PutBlock(bp *CacheBlock) {
	if bp == nil {
		return
	}
	c.m.Lock()
	defer c.m.Unlock()

	if bp.count <= 0 {
		panic(fmt.Sprintf("block %d put more times than it was got", bp.Blocknum))
	}
	bp.count--
	if bp.count > 0 { // block is still in use
		return
	}
	c.append_lru(bp)
}

// Flush writes every dirty block to the device
func (c *LRUCache) Flush() {
	for i := range c.buf {
		// Pin one slot at a time so the flush never starves GetBlock, and
		// write without the cache lock so a client holding a block lock can
		// still call GetBlock.
		c.m.Lock()
		bp := c.buf[i]
		if bp.Blocknum == NO_BLOCK {
			c.m.Unlock()
			continue
		}
		if bp.count == 0 {
			c.rm_lru(bp)
		}
		bp.count++
		c.m.Unlock()

		bp.Lock()
		if bp.dirty {
			c.writeBlock(bp)
		}
		bp.Unlock()
		c.PutBlock(bp)
	}
}

// Invalidate forgets every resident block that is neither pinned nor dirty,
// so that it is read from the device again on the next GetBlock.
func (c *LRUCache) Invalidate() {
	c.m.Lock()
	defer c.m.Unlock()
	for _, bp := range c.buf {
		if bp.Blocknum != NO_BLOCK && bp.count == 0 && !bp.dirty {
			delete(c.hash, bp.Blocknum)
			bp.Blocknum = NO_BLOCK
			c.rm_lru(bp)
			c.prepend_lru(bp)
		}
	}
}

// Resident reports the number of slots currently holding a device block
func (c *LRUCache) Resident() int {
	c.m.Lock()
	defer c.m.Unlock()
	return len(c.hash)
}

func (c *LRUCache) writeBlock(bp *CacheBlock) {
	if err := c.dev.WriteBlock(bp.Blocknum, bp.data); err != nil {
		panic(fmt.Sprintf("error writing block %d: %s", bp.Blocknum, err))
	}
	bp.dirty = false
}

// Remove a block from its LRU chain
func (c *LRUCache) rm_lru(bp *CacheBlock) {
	nextp := bp.next
	prevp := bp.prev
	if prevp != nil {
		prevp.next = nextp
	} else {
		c.front = nextp
	}

	if nextp != nil {
		nextp.prev = prevp
	} else {
		c.rear = prevp
	}
	bp.next = nil
	bp.prev = nil
}

// Block probably will be needed quickly. Put it on rear of chain. It will
// not be evicted from the cache for a long time.
func (c *LRUCache) append_lru(bp *CacheBlock) {
	bp.prev = c.rear
	bp.next = nil
	if c.rear == nil {
		c.front = bp
	} else {
		c.rear.next = bp
	}
	c.rear = bp
}

// Put an empty slot on the front of the chain so it is the next to be used
func (c *LRUCache) prepend_lru(bp *CacheBlock) {
	bp.prev = nil
	bp.next = c.front
	if c.front == nil {
		c.rear = bp
	} else {
		c.front.prev = bp
	}
	c.front = bp
}
