// Package check verifies the consistency of an easyfs volume: directory
// entries against the inode bitmap, link counts against entries, and the
// blocks owned by inodes against the data bitmap.
package check

import (
	"fmt"
	"sort"

	"github.com/unconsolable/easyfs/common"
	"github.com/unconsolable/easyfs/dinode"
	"github.com/unconsolable/easyfs/fs"
	"github.com/unconsolable/easyfs/inode"
)

type Kind int

const (
	RootNotDirectory Kind = iota
	DanglingEntry         // a live entry names a free inode
	LinkCount             // link count differs from the number of entries
	Orphan                // allocated inode with links but no entry
	UnallocatedBlock      // inode owns a block that is free in the bitmap
	DuplicateBlock        // block owned twice
	LeakedBlocks          // allocated blocks owned by no inode
)

type Problem struct {
	Kind  Kind
	Inum  uint32
	Name  string
	Block uint32
	Want  int
	Got   int
}

func (p Problem) String() string {
	switch p.Kind {
	case RootNotDirectory:
		return "root inode is not a directory"
	case DanglingEntry:
		return fmt.Sprintf("entry %q refers to free inode %d", p.Name, p.Inum)
	case LinkCount:
		return fmt.Sprintf("inode %d has link count %d, %d entries refer to it", p.Inum, p.Got, p.Want)
	case Orphan:
		return fmt.Sprintf("inode %d has %d links but no entry", p.Inum, p.Got)
	case UnallocatedBlock:
		return fmt.Sprintf("inode %d owns block %d which is not allocated", p.Inum, p.Block)
	case DuplicateBlock:
		return fmt.Sprintf("block %d is owned by inode %d and inode %d", p.Block, p.Want, p.Inum)
	case LeakedBlocks:
		return fmt.Sprintf("%d blocks allocated, %d owned by inodes", p.Got, p.Want)
	}
	return fmt.Sprintf("unknown problem %d", p.Kind)
}

type Report struct {
	Entries    int // live directory entries
	Tombstones int // dead directory entries
	Inodes     int // allocated inodes
	Unlinked   int // allocated inodes whose last link was removed
	Blocks     int // blocks owned by inodes
	Problems   []Problem
}

func (r *Report) Clean() bool {
	return len(r.Problems) == 0
}

func (r *Report) add(p Problem) {
	r.Problems = append(r.Problems, p)
}

// Check examines the volume and reports every inconsistency found. It does
// not change anything.
func Check(efs *fs.FileSystem) *Report {
	r := new(Report)
	root := inode.Root(efs)
	cache := efs.Cache()

	l := efs.Lock()
	defer l.Unlock()

	rootStat, entries := root.Scan(l)
	if !rootStat.IsDir {
		r.add(Problem{Kind: RootNotDirectory})
		return r
	}
	r.Entries = len(entries)
	r.Tombstones = int(rootStat.Size)/common.DIRENT_SZ - len(entries)

	refs := make(map[uint32]int)
	for _, d := range entries {
		if !l.InodeAllocated(d.Inum()) {
			r.add(Problem{Kind: DanglingEntry, Inum: d.Inum(), Name: d.Name()})
			continue
		}
		refs[d.Inum()]++
	}

	owner := make(map[uint32]uint32)
	usage := l.Usage()
	for inum := uint32(0); int(inum) < usage.InodesTotal; inum++ {
		if !l.InodeAllocated(inum) {
			continue
		}
		r.Inodes++

		block, offset := efs.DiskInodePos(inum)
		v := dinode.Read(cache, block, offset)
		links := v.HardLink
		blocks := v.Blocks(cache)
		v.Release()

		if inum != common.ROOT_INODE {
			switch n := refs[inum]; {
			case n == 0 && links == 0:
				r.Unlinked++
			case n == 0:
				r.add(Problem{Kind: Orphan, Inum: inum, Got: int(links)})
			case int(links) != n:
				r.add(Problem{Kind: LinkCount, Inum: inum, Want: n, Got: int(links)})
			}
		}

		for _, b := range blocks {
			if prev, ok := owner[b]; ok {
				r.add(Problem{Kind: DuplicateBlock, Inum: inum, Block: b, Want: int(prev)})
				continue
			}
			owner[b] = inum
			if !l.DataAllocated(b) {
				r.add(Problem{Kind: UnallocatedBlock, Inum: inum, Block: b})
			}
		}
	}

	r.Blocks = len(owner)
	if usage.BlocksUsed != r.Blocks {
		r.add(Problem{Kind: LeakedBlocks, Want: r.Blocks, Got: usage.BlocksUsed})
	}

	sort.SliceStable(r.Problems, func(i, j int) bool {
		return r.Problems[i].Kind < r.Problems[j].Kind
	})
	return r
}
