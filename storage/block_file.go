package storage

// BlockFile abstracts the physical file on storage that backs a single named
// file's blocks. It handles block-level reads and writes, as well as space
// allocation.
//
// Implementations must be safe for concurrent use. Specifically, multiple
// threads should be able to ReadBlock and WriteBlock to different blocks
// simultaneously.
type BlockFile interface {
	// AppendBlock reserves a single new block at the end of the file and
	// returns its block number. The new block is filled with zeros.
	AppendBlock() (int64, error)
	// ReadBlock reads the contents of the block identified by blockNum into
	// the provided byte slice. dst must be exactly common.PageSize bytes.
	ReadBlock(blockNum int64, dst []byte) error
	// WriteBlock writes the content of src to the block identified by
	// blockNum. src must be exactly common.PageSize bytes, and blockNum must
	// be strictly less than NumBlocks(). This method cannot be used to
	// extend the file; use AppendBlock instead.
	WriteBlock(blockNum int64, src []byte) error
	// Sync forces any buffered writes to stable storage, ensuring durability.
	Sync() error
	// Close closes the underlying file handle and releases resources.
	Close() error
	// NumBlocks returns the number of blocks currently allocated in the file.
	NumBlocks() (int64, error)
}

// BlockFileManager manages the lifecycle and caching of BlockFile instances,
// keyed by file name. It acts as the registry for all open files in the
// system.
type BlockFileManager interface {
	// GetFile retrieves the BlockFile handle for the given file name. If the
	// file is already open, the existing handle is returned. If the file
	// does not exist on disk, it is created.
	GetFile(fileName string) (BlockFile, error)
	// DeleteFile permanently removes the physical file with the given name.
	// The caller is responsible for ensuring that no other threads are
	// currently accessing this file (e.g. via the Pool).
	DeleteFile(fileName string) error
}
