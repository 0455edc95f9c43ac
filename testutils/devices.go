package testutils

import (
	"sync"

	"github.com/unconsolable/easyfs/common"
	"github.com/unconsolable/easyfs/device"
)

//////////////////////////////////////////////////////////////////////////////
// A ramdisk device with a certain number of blocks. Each block is filled
// with the low byte of the block number, so each byte in the first block
// contains a 0, the next block contains all 1, etc.
//////////////////////////////////////////////////////////////////////////////

func NewTestDevice(blocks int) common.BlockDevice {
	data := make([]byte, common.BLOCK_SZ*blocks)
	for i := 0; i < blocks; i++ {
		for j := 0; j < common.BLOCK_SZ; j++ {
			data[(i*common.BLOCK_SZ)+j] = byte(i)
		}
	}
	return device.NewRamdiskDevice(data)
}

// NewBlankDevice returns a zero-filled ramdisk device
func NewBlankDevice(blocks int) common.BlockDevice {
	return device.NewRamdiskDevice(make([]byte, common.BLOCK_SZ*blocks))
}

//////////////////////////////////////////////////////////////////////////////
// A device that counts the block reads and writes that reach it
//////////////////////////////////////////////////////////////////////////////

type CountingDevice struct {
	common.BlockDevice

	m      sync.Mutex
	reads  map[int]int
	writes map[int]int
}

func NewCountingDevice(dev common.BlockDevice) *CountingDevice {
	return &CountingDevice{
		BlockDevice: dev,
		reads:       make(map[int]int),
		writes:      make(map[int]int),
	}
}

func (dev *CountingDevice) ReadBlock(id int, buf []byte) error {
	dev.m.Lock()
	dev.reads[id]++
	dev.m.Unlock()
	return dev.BlockDevice.ReadBlock(id, buf)
}

func (dev *CountingDevice) WriteBlock(id int, buf []byte) error {
	dev.m.Lock()
	dev.writes[id]++
	dev.m.Unlock()
	return dev.BlockDevice.WriteBlock(id, buf)
}

// Reads returns how many times block 'id' was read from the device
func (dev *CountingDevice) Reads(id int) int {
	dev.m.Lock()
	defer dev.m.Unlock()
	return dev.reads[id]
}

// Writes returns how many times block 'id' was written to the device
func (dev *CountingDevice) Writes(id int) int {
	dev.m.Lock()
	defer dev.m.Unlock()
	return dev.writes[id]
}

// TotalWrites returns the number of block writes across the whole device
func (dev *CountingDevice) TotalWrites() int {
	dev.m.Lock()
	defer dev.m.Unlock()
	n := 0
	for _, w := range dev.writes {
		n += w
	}
	return n
}
