package file

import (
	"bytes"
	"io"
	"testing"

	"github.com/unconsolable/easyfs/common"
	"github.com/unconsolable/easyfs/fs"
	"github.com/unconsolable/easyfs/inode"
	. "github.com/unconsolable/easyfs/testutils"
)

func openTestRoot(test *testing.T) *inode.Inode {
	efs, err := fs.Create(NewBlankDevice(2048), 2048, 1)
	if err != nil {
		FatalHere(test, "Failed creating filesystem: %s", err)
	}
	return inode.Root(efs)
}

func TestFlags(test *testing.T) {
	cases := []struct {
		flags OpenFlags
		r, w  bool
	}{
		{O_RDONLY, true, false},
		{O_WRONLY, false, true},
		{O_RDWR, true, true},
		{O_WRONLY | O_CREATE | O_TRUNC, false, true},
	}
	for _, c := range cases {
		if r, w := c.flags.ReadWrite(); r != c.r || w != c.w {
			ErrorHere(test, "Flags %#x: got (%v, %v), expected (%v, %v)", c.flags, r, w, c.r, c.w)
		}
	}
}

func TestOpenMissing(test *testing.T) {
	root := openTestRoot(test)
	if _, err := Open(root, "missing", O_RDONLY); err != common.ENOENT {
		ErrorHere(test, "Expected ENOENT, got %v", err)
	}
	if _, err := Open(root, "missing", O_TRUNC); err != common.ENOENT {
		ErrorHere(test, "Expected ENOENT with O_TRUNC, got %v", err)
	}
}

func TestWriteThenRead(test *testing.T) {
	root := openTestRoot(test)

	w, err := Open(root, "greeting", O_WRONLY|O_CREATE)
	if err != nil {
		FatalHere(test, "Failed opening for write: %s", err)
	}
	w.Write([]byte("hello, "))
	w.Write([]byte("world"))
	if _, err := w.Read(make([]byte, 1)); err != common.EBADF {
		ErrorHere(test, "Expected EBADF reading a write-only file, got %v", err)
	}

	r, err := Open(root, "greeting", O_RDONLY)
	if err != nil {
		FatalHere(test, "Failed opening for read: %s", err)
	}
	data, err := r.ReadAll()
	if err != nil || string(data) != "hello, world" {
		ErrorHere(test, "Read %q, %v", data, err)
	}
	if _, err := r.Write([]byte("x")); err != common.EBADF {
		ErrorHere(test, "Expected EBADF writing a read-only file, got %v", err)
	}
	if n, err := r.Read(make([]byte, 4)); n != 0 || err != io.EOF {
		ErrorHere(test, "Expected EOF, got %d, %v", n, err)
	}
}

func TestCreateTruncates(test *testing.T) {
	root := openTestRoot(test)

	f, _ := Open(root, "f", O_RDWR|O_CREATE)
	f.Write(bytes.Repeat([]byte("x"), 3000))
	inum := f.Inode().Inum()

	f, err := Open(root, "f", O_RDWR|O_CREATE)
	if err != nil {
		FatalHere(test, "Reopen failed: %s", err)
	}
	if f.Inode().Inum() != inum {
		ErrorHere(test, "Reopen created a new inode")
	}
	if st := f.Stat(); st.Size != 0 {
		ErrorHere(test, "Expected size 0 after reopen, got %d", st.Size)
	}

	f.Write([]byte("abc"))
	f, _ = Open(root, "f", O_RDONLY)
	if st := f.Stat(); st.Size != 3 {
		ErrorHere(test, "Plain open changed size to %d", st.Size)
	}
	f, _ = Open(root, "f", O_WRONLY|O_TRUNC)
	if st := f.Stat(); st.Size != 0 {
		ErrorHere(test, "O_TRUNC left size %d", st.Size)
	}
}

func TestSeek(test *testing.T) {
	root := openTestRoot(test)
	f, _ := Open(root, "f", O_RDWR|O_CREATE)
	f.Write([]byte("0123456789"))

	if pos, _ := f.Seek(-4, io.SeekEnd); pos != 6 {
		ErrorHere(test, "Expected position 6, got %d", pos)
	}
	buf := make([]byte, 2)
	f.Read(buf)
	if string(buf) != "67" {
		ErrorHere(test, "Read %q at 6", buf)
	}
	if pos, _ := f.Seek(-5, io.SeekCurrent); pos != 3 {
		ErrorHere(test, "Expected position 3, got %d", pos)
	}
	if _, err := f.Seek(-1, io.SeekStart); err != common.EINVAL {
		ErrorHere(test, "Expected EINVAL, got %v", err)
	}

	// Writing past the end leaves a zero filled hole
	f.Seek(12, io.SeekStart)
	f.Write([]byte("!"))
	f.Seek(0, io.SeekStart)
	data, _ := f.ReadAll()
	if !bytes.Equal(data, []byte("0123456789\x00\x00!")) {
		ErrorHere(test, "Unexpected contents %q", data)
	}
}
