package common

const (
	BLOCK_SZ   = 512 // bytes per block, the unit of device and cache I/O
	BLOCK_BITS = BLOCK_SZ * 8

	EFS_MAGIC = 0x3b800001

	NAME_LENGTH_LIMIT = 27
	DIRENT_SZ         = 32 // NAME_LENGTH_LIMIT+1 name bytes and a u32 inum

	DISK_INODE_SZ         = 128
	INODES_PER_BLOCK      = BLOCK_SZ / DISK_INODE_SZ
	INODE_DIRECT_COUNT    = 27
	INODE_INDIRECT1_COUNT = BLOCK_SZ / 4
	INODE_INDIRECT2_COUNT = INODE_INDIRECT1_COUNT * INODE_INDIRECT1_COUNT
	DIRECT_BOUND          = INODE_DIRECT_COUNT
	INDIRECT1_BOUND       = DIRECT_BOUND + INODE_INDIRECT1_COUNT
	INDIRECT2_BOUND       = INDIRECT1_BOUND + INODE_INDIRECT2_COUNT

	// The largest file the inode addressing scheme can describe
	MAX_FILE_SIZE = INDIRECT2_BOUND * BLOCK_SZ

	ROOT_INODE = 0

	// Directories cannot shrink, so a deleted entry keeps its slot and has
	// its inode number replaced with this value. It is the root's inode
	// number, which never appears as a child of any directory.
	DIRENT_INVALID_INODE_ID = ROOT_INODE

	SUPER_BLOCK = 0 // block number of the superblock

	NR_BUFS = 16 // default number of slots in the block cache
)
