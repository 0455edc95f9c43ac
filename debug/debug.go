// Package debug prints the raw contents of easyfs blocks
package debug

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"math/bits"

	log "github.com/sirupsen/logrus"
	"github.com/unconsolable/easyfs/common"
	"github.com/unconsolable/easyfs/dinode"
	"github.com/unconsolable/easyfs/fs"
)

// DirBlock prints the directory entries held in a block of directory data.
// Tombstones are shown with their name and marked dead.
func DirBlock(w io.Writer, data []byte) {
	for i := 0; i+common.DIRENT_SZ <= len(data); i += common.DIRENT_SZ {
		d := common.DecodeDirEntry(data[i:])
		if d.Name() == "" && d.Inum() == 0 {
			continue
		}
		state := ""
		if d.Inum() == common.DIRENT_INVALID_INODE_ID {
			state = " (dead)"
		}
		fmt.Fprintf(w, "Entry %4d: %-28q at inode %8d%s\n", i/common.DIRENT_SZ, d.Name(), d.Inum(), state)
	}
}

// InodeBlock prints the disk inodes in a block of the inode area, the first
// of which is inode 'first'.
func InodeBlock(w io.Writer, data []byte, first uint32) {
	fmt.Fprintf(w, "%8s %-4s %8s %8s %10s %10s %s\n", "INODE #", "TYPE", "NLINKS", "SIZE", "INDIRECT1", "INDIRECT2", "DIRECT")
	r := bytes.NewReader(data)
	for i := 0; i < common.INODES_PER_BLOCK; i++ {
		var di dinode.DiskInode
		if err := binary.Read(r, binary.LittleEndian, &di); err != nil {
			log.Debugf("Short inode block: %s", err)
			return
		}
		if di.HardLink == 0 && di.Size == 0 {
			continue
		}
		kind := "file"
		if di.IsDir() {
			kind = "dir"
		}
		direct := di.DataBlocks()
		if direct > common.INODE_DIRECT_COUNT {
			direct = common.INODE_DIRECT_COUNT
		}
		fmt.Fprintf(w, "%8d %-4s %8d %8d %10d %10d %v\n", first+uint32(i), kind,
			di.HardLink, di.Size, di.Indirect1, di.Indirect2, di.Direct[:direct])
	}
}

// Bitmap prints the numbers of the set bits in a bitmap block
func Bitmap(w io.Writer, data []byte, firstBit int) {
	var set []int
	for i := 0; i+8 <= len(data); i += 8 {
		word := binary.LittleEndian.Uint64(data[i:])
		for word != 0 {
			b := bits.TrailingZeros64(word)
			set = append(set, firstBit+i*8+b)
			word &^= 1 << uint(b)
		}
	}
	fmt.Fprintf(w, "%d bits set: %v\n", len(set), set)
}

// Block prints block 'n' of the volume according to the area it is in
func Block(w io.Writer, efs *fs.FileSystem, n int) error {
	sb := efs.SuperBlock()
	if n < 0 || n >= int(sb.TotalBlocks) {
		return common.EINVAL
	}

	cache := efs.Cache()
	bp := cache.GetBlock(n)
	bp.Lock()
	data := append([]byte(nil), bp.Bytes(0, common.BLOCK_SZ)...)
	bp.Unlock()
	cache.PutBlock(bp)

	inodeBitmap := 1
	inodeArea := inodeBitmap + int(sb.InodeBitmapBlocks)
	dataBitmap := inodeArea + int(sb.InodeAreaBlocks)
	dataArea := dataBitmap + int(sb.DataBitmapBlocks)

	switch {
	case n == common.SUPER_BLOCK:
		fmt.Fprintf(w, "Block %d: superblock\n", n)
		fmt.Fprintf(w, "%+v\n", sb)
	case n < inodeArea:
		fmt.Fprintf(w, "Block %d: inode bitmap\n", n)
		Bitmap(w, data, (n-inodeBitmap)*common.BLOCK_BITS)
	case n < dataBitmap:
		first := uint32(n-inodeArea) * common.INODES_PER_BLOCK
		fmt.Fprintf(w, "Block %d: inodes %d to %d\n", n, first, first+common.INODES_PER_BLOCK-1)
		InodeBlock(w, data, first)
	case n < dataArea:
		fmt.Fprintf(w, "Block %d: data bitmap\n", n)
		Bitmap(w, data, (n-dataBitmap)*common.BLOCK_BITS)
	default:
		fmt.Fprintf(w, "Block %d: data block %d\n", n, n-dataArea)
		fmt.Fprint(w, hex.Dump(data))
	}
	return nil
}
