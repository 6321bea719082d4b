package common

import "fmt"

// PageSize is the fixed size, in bytes, of every block/frame in the system.
const PageSize int = 4096

// LSN is a Log Sequence Number: a monotonically increasing byte offset into
// the write-ahead log.
type LSN int64

// BlockID uniquely identifies a block within a named file. It is the unit of
// exchange between the buffer pool and the block/file layer.
type BlockID struct {
	FileName string
	BlockNum int64
}

// IsNil reports whether b is the zero value, i.e. a frame that has never
// been assigned a block.
func (b BlockID) IsNil() bool {
	return b.FileName == "" && b.BlockNum == 0
}

func (b BlockID) String() string {
	return fmt.Sprintf("Block(%s, %d)", b.FileName, b.BlockNum)
}

// Hash returns a stable hash of the block identity, used as the input to
// the striped block-latch index. The Resident Index keys on BlockID itself
// and hashes it with its map's own hasher.
func (b BlockID) Hash() uint64 {
	h := Hash([]byte(b.FileName))
	// Fold in the block number the same way FNV-1a folds in bytes, so the
	// hash is sensitive to both fields.
	h ^= uint64(b.BlockNum)
	h *= prime64
	return h
}
