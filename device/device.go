// Package device provides the block devices a filesystem can be placed on.
package device

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/unconsolable/easyfs/common"
)

var ERR_SEEK = errors.New("could not seek to given position")
var ERR_BADBUF = errors.New("buffer is not one block long")

type fileDevice struct {
	m    sync.Mutex
	file *os.File
}

// NewFileDevice opens an existing image file as a block device
func NewFileDevice(filename string) (common.BlockDevice, error) {
	file, err := os.OpenFile(filename, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open image file %s: %w", filename, err)
	}
	return &fileDevice{file: file}, nil
}

// CreateFileDevice creates (or truncates) an image file large enough for
// 'blocks' blocks and opens it as a block device.
func CreateFileDevice(filename string, blocks int) (common.BlockDevice, error) {
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open image file %s: %w", filename, err)
	}
	if err := file.Truncate(int64(blocks) * common.BLOCK_SZ); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to truncate image file: %w", err)
	}
	return &fileDevice{file: file}, nil
}

func (dev *fileDevice) ReadBlock(id int, buf []byte) error {
	if len(buf) != common.BLOCK_SZ {
		return ERR_BADBUF
	}
	dev.m.Lock()
	defer dev.m.Unlock()
	if _, err := dev.file.ReadAt(buf, int64(id)*common.BLOCK_SZ); err != nil {
		return fmt.Errorf("disk read error at block %d: %w", id, err)
	}
	return nil
}

func (dev *fileDevice) WriteBlock(id int, buf []byte) error {
	if len(buf) != common.BLOCK_SZ {
		return ERR_BADBUF
	}
	dev.m.Lock()
	defer dev.m.Unlock()
	if _, err := dev.file.WriteAt(buf, int64(id)*common.BLOCK_SZ); err != nil {
		return fmt.Errorf("disk write error at block %d: %w", id, err)
	}
	return nil
}

func (dev *fileDevice) Close() error {
	dev.m.Lock()
	defer dev.m.Unlock()
	if err := dev.file.Sync(); err != nil {
		return fmt.Errorf("disk sync error: %w", err)
	}
	if err := dev.file.Close(); err != nil {
		return fmt.Errorf("disk close error: %w", err)
	}
	return nil
}

var _ common.BlockDevice = &fileDevice{}
