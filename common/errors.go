package common

import "errors"

// The following string constants are taken from the Minix 3.1.0 source,
// specifically from lib/ansi/errlist.c.

var (
	EBADF        = errors.New("Bad file number")
	EEXIST       = errors.New("File exists")
	EFBIG        = errors.New("File too large")
	EINVAL       = errors.New("Invalid argument")
	ENAMETOOLONG = errors.New("File name too long")
	ENFILE       = errors.New("File table overflow")
	ENOENT       = errors.New("No such file or directory")
	ENOSPC       = errors.New("No space left on device")
	ENOTDIR      = errors.New("Not a directory")
)
