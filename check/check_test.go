package check

import (
	"fmt"
	"testing"

	"github.com/unconsolable/easyfs/common"
	"github.com/unconsolable/easyfs/dinode"
	"github.com/unconsolable/easyfs/fs"
	"github.com/unconsolable/easyfs/inode"
	. "github.com/unconsolable/easyfs/testutils"
)

func openTestFS(test *testing.T) (*fs.FileSystem, *inode.Inode) {
	efs, err := fs.Create(NewBlankDevice(2048), 2048, 1)
	if err != nil {
		FatalHere(test, "Failed creating filesystem: %s", err)
	}
	return efs, inode.Root(efs)
}

func kinds(r *Report) []Kind {
	var v []Kind
	for _, p := range r.Problems {
		v = append(v, p.Kind)
	}
	return v
}

func hasKind(r *Report, k Kind) bool {
	for _, p := range r.Problems {
		if p.Kind == k {
			return true
		}
	}
	return false
}

func TestCleanVolume(test *testing.T) {
	efs, root := openTestFS(test)
	a, _ := root.Create("a")
	a.WriteAt(0, make([]byte, 40*common.BLOCK_SZ))
	root.Create("b")
	root.Linkat("a", "c")
	root.Unlinkat("b")

	r := Check(efs)
	if !r.Clean() {
		FatalHere(test, "Expected a clean volume, got %v", r.Problems)
	}
	if r.Entries != 2 || r.Tombstones != 1 || r.Inodes != 3 || r.Unlinked != 1 {
		ErrorHere(test, "Unexpected counts: %+v", r)
	}
	if r.Blocks != efs.Usage().BlocksUsed {
		ErrorHere(test, "Owned blocks %d, allocated %d", r.Blocks, efs.Usage().BlocksUsed)
	}
}

func TestDuplicateNameLinkCount(test *testing.T) {
	efs, root := openTestFS(test)
	a, _ := root.Create("a")
	root.Create("b")
	root.Linkat("a", "b")
	root.Unlinkat("b")

	r := Check(efs)
	if len(r.Problems) != 1 || r.Problems[0].Kind != LinkCount {
		FatalHere(test, "Expected one link count problem, got %v", r.Problems)
	}
	p := r.Problems[0]
	if p.Inum != a.Inum() || p.Got != 2 || p.Want != 1 {
		ErrorHere(test, "Unexpected problem: %s", p)
	}
}

func TestDanglingEntry(test *testing.T) {
	efs, root := openTestFS(test)
	a, _ := root.Create("a")
	l := efs.Lock()
	l.DeallocInode(a.Inum())
	l.Unlock()

	r := Check(efs)
	if len(r.Problems) != 1 || r.Problems[0].Kind != DanglingEntry || r.Problems[0].Name != "a" {
		ErrorHere(test, "Expected a dangling entry, got %v", r.Problems)
	}
}

func TestOrphanAndLeak(test *testing.T) {
	efs, root := openTestFS(test)
	root.Create("a")

	l := efs.Lock()
	inum, _ := l.AllocInode()
	l.AllocData()
	l.Unlock()

	// An inode with a link but no entry naming it
	block, offset := efs.DiskInodePos(inum)
	v := dinode.Modify(efs.Cache(), block, offset)
	v.Initialize(dinode.File)
	v.Release()

	r := Check(efs)
	if !hasKind(r, Orphan) || !hasKind(r, LeakedBlocks) || len(r.Problems) != 2 {
		FatalHere(test, "Expected an orphan and a leak, got %v", kinds(r))
	}
	if r.Problems[0].Kind != Orphan || r.Problems[0].Inum != inum {
		ErrorHere(test, "Problems not ordered by kind: %v", r.Problems)
	}
}

func TestUnallocatedBlock(test *testing.T) {
	efs, root := openTestFS(test)
	a, _ := root.Create("a")
	a.WriteAt(0, []byte("some data"))

	// Free the file's only data block behind its back
	l := efs.Lock()
	l.DeallocData(efs.DataAreaStart() + 1)
	l.Unlock()

	r := Check(efs)
	if !hasKind(r, UnallocatedBlock) || !hasKind(r, LeakedBlocks) {
		ErrorHere(test, "Expected an unallocated block, got %v", kinds(r))
	}
}

// Checking runs under the filesystem lock, so it sees a directory and its
// inodes from the same moment even while files are being made.
func TestCheckWhileCreating(test *testing.T) {
	efs, root := openTestFS(test)
	done := make(chan bool)
	go func() {
		for i := 0; i < 50; i++ {
			root.Create(fmt.Sprintf("f%d", i))
		}
		close(done)
	}()

	for running := true; running; {
		select {
		case <-done:
			running = false
		default:
		}
		if r := Check(efs); !r.Clean() {
			FatalHere(test, "Problems found during creation: %v", r.Problems)
		}
	}
}

func TestUnlinkedNotOrphan(test *testing.T) {
	efs, root := openTestFS(test)
	a, _ := root.Create("a")
	a.WriteAt(0, []byte("data"))
	root.Unlinkat("a")

	r := Check(efs)
	if !r.Clean() || r.Unlinked != 1 || r.Blocks != 0 {
		ErrorHere(test, "Unexpected report after unlink: %+v", r)
	}
}
