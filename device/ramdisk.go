package device

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/unconsolable/easyfs/common"
)

type ramdiskDevice struct {
	m    sync.RWMutex
	data []byte
}

// NewRamdiskDevice uses 'data' as the contents of the device. Any trailing
// partial block is not addressable.
func NewRamdiskDevice(data []byte) common.BlockDevice {
	return &ramdiskDevice{data: data}
}

// NewRamdiskDeviceFile loads an entire image file into memory. Writes are
// not propagated back to the file.
func NewRamdiskDeviceFile(filename string) (common.BlockDevice, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	return NewRamdiskDevice(data), nil
}

// Blocks returns the number of addressable blocks on the device
func (dev *ramdiskDevice) Blocks() int {
	dev.m.RLock()
	defer dev.m.RUnlock()
	return len(dev.data) / common.BLOCK_SZ
}

func (dev *ramdiskDevice) span(id int, buf []byte) (int, error) {
	if len(buf) != common.BLOCK_SZ {
		return 0, ERR_BADBUF
	}
	pos := id * common.BLOCK_SZ
	if id < 0 || pos+common.BLOCK_SZ > len(dev.data) {
		return 0, fmt.Errorf("block %d out of range (size %d): %w", id, len(dev.data), ERR_SEEK)
	}
	return pos, nil
}

func (dev *ramdiskDevice) ReadBlock(id int, buf []byte) error {
	dev.m.RLock()
	defer dev.m.RUnlock()
	pos, err := dev.span(id, buf)
	if err != nil {
		return err
	}
	copy(buf, dev.data[pos:])
	return nil
}

func (dev *ramdiskDevice) WriteBlock(id int, buf []byte) error {
	dev.m.Lock()
	defer dev.m.Unlock()
	pos, err := dev.span(id, buf)
	if err != nil {
		return err
	}
	copy(dev.data[pos:], buf)
	return nil
}

func (dev *ramdiskDevice) Close() error {
	dev.m.Lock()
	defer dev.m.Unlock()
	dev.data = nil
	return nil
}

var _ common.BlockDevice = &ramdiskDevice{}
