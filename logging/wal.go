package logging

import (
	"github.com/delgadom/bufpool/common"
)

type LogRecordType uint16

const (
	InvalidLogRecord LogRecordType = iota // So we can catch uninitialized values
	LogPageWrite
)

func (t LogRecordType) String() string {
	switch t {
	case InvalidLogRecord:
		return "INVALID"
	case LogPageWrite:
		return "PAGE WRITE"
	}
	return "UNKNOWN"
}

// LogManager is the write-ahead log interface the buffer pool depends on.
// It is deliberately narrow: the pool only ever needs to append a record
// ahead of a dirty write and later block until that record is durable. It
// handles the append-only storage of log records and ensures durability
// guarantees.
type LogManager interface {
	// Append writes a log record to the log buffer.
	// It returns the LSN (Log Sequence Number) assigned to the record.
	// Note: This does not guarantee the record is on disk yet; use WaitUntilFlushed for that.
	Append(record LogRecord) (common.LSN, error)

	// WaitUntilFlushed blocks until the log record with the given LSN (and all prior records)
	// has been successfully written to stable storage (disk).
	WaitUntilFlushed(lsn common.LSN) error

	// Close cleans up file handles and ensures any pending buffers are flushed.
	Close() error
}
