package common

// BlockDevice is a random access device addressed in units of BLOCK_SZ
// bytes. Implementations must be safe for concurrent use.
type BlockDevice interface {
	// Read block 'id' into buf, which must be BLOCK_SZ bytes long
	ReadBlock(id int, buf []byte) error
	// Write buf, which must be BLOCK_SZ bytes long, to block 'id'
	WriteBlock(id int, buf []byte) error
	// Close the device, releasing any resources
	Close() error
}
