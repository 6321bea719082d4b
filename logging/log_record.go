package logging

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/delgadom/bufpool/common"
)

// LogRecord is the in-memory representation.
// fields are unexported to enforce immutability outside the logging package.
// Header Layout: Size (2) | Checksum (4) | type (2) | Type-dependent payload
// Type-dependent Payload Layout
// PageWrite: blockNum (8) | fileNameLen (2) | fileName (fileNameLen) | afterImage (?)
type LogRecord struct {
	data []byte
}

const MaxLogRecordSize = logBufferSize
const logRecordHeaderSize = 8

// Offsets for writing/reading
const (
	offsetSize        = 0
	offsetChecksum    = offsetSize + 2
	offsetType        = offsetChecksum + 4
	offsetBlockNum    = offsetType + 2
	offsetFileNameLen = offsetBlockNum + 8
)

// IsNil returns true if the underlying log data is empty.
func (r LogRecord) IsNil() bool {
	return len(r.data) == 0
}

// Size returns the total size of the log record in bytes.
func (r LogRecord) Size() int {
	return len(r.data)
}

// RecordType returns the type identifier for this log record.
func (r LogRecord) RecordType() LogRecordType {
	return LogRecordType(binary.LittleEndian.Uint16(r.data[offsetType:]))
}

// Block returns the block identity written by this record. Only valid for LogPageWrite records.
func (r LogRecord) Block() common.BlockID {
	common.Assert(r.RecordType() == LogPageWrite, "log type %s does not support Block()", r.RecordType())
	blockNum := int64(binary.LittleEndian.Uint64(r.data[offsetBlockNum:]))
	nameLen := int(binary.LittleEndian.Uint16(r.data[offsetFileNameLen:]))
	name := string(r.data[offsetFileNameLen+2 : offsetFileNameLen+2+nameLen])
	return common.BlockID{FileName: name, BlockNum: blockNum}
}

// AfterImage returns the post-write page bytes recorded by a LogPageWrite record.
func (r LogRecord) AfterImage() []byte {
	common.Assert(r.RecordType() == LogPageWrite, "log type %s does not support AfterImage()", r.RecordType())
	nameLen := int(binary.LittleEndian.Uint16(r.data[offsetFileNameLen:]))
	start := offsetFileNameLen + 2 + nameLen
	return r.data[start:]
}

// WriteToLog serializes the record into the provided buffer and calculates the checksum.
// The buffer must be large enough to hold r.Size() bytes.
func (r LogRecord) WriteToLog(buffer []byte) {
	common.Assert(len(buffer) >= r.Size(), "buffer allocated must be large enough for the record")
	copy(buffer, r.data)
	binary.LittleEndian.PutUint16(buffer[offsetSize:], uint16(r.Size()))
	// We checksum everything AFTER the checksum field (i.e., from the type onwards).
	checksum := crc32.ChecksumIEEE(buffer[offsetChecksum+4 : r.Size()])
	binary.LittleEndian.PutUint32(buffer[offsetChecksum:], checksum)
}

var ErrCorruptedLogRecord = fmt.Errorf("log record corrupted: checksum mismatch")

// AsVerifiedLogRecord parses a raw byte slice into a LogRecord and verifies its checksum.
// It returns an ErrCorruptedLogRecord if the data is too short or the checksum does not match.
func AsVerifiedLogRecord(data []byte) (LogRecord, error) {
	if len(data) < logRecordHeaderSize {
		return LogRecord{}, ErrCorruptedLogRecord
	}

	recordLen := int(binary.LittleEndian.Uint16(data))
	if recordLen <= 0 || recordLen > len(data) {
		return LogRecord{}, ErrCorruptedLogRecord
	}

	storedChecksum := binary.LittleEndian.Uint32(data[offsetChecksum:])
	computedChecksum := crc32.ChecksumIEEE(data[offsetChecksum+4 : recordLen])

	if storedChecksum != computedChecksum {
		return LogRecord{}, ErrCorruptedLogRecord
	}

	return LogRecord{
		data: data[:recordLen],
	}, nil
}

// AsLogRecord wraps a raw byte slice as a LogRecord without performing verification.
// Use this only when the data is known to be valid.
func AsLogRecord(buf []byte) LogRecord {
	return LogRecord{data: buf}
}

// PageWriteRecordSize returns the size required for a PageWrite record given the block's file name and image.
func PageWriteRecordSize(fileName string, afterImage []byte) int {
	return logRecordHeaderSize + 8 + 2 + len(fileName) + len(afterImage)
}

// NewPageWriteRecord initializes a LogPageWrite record describing a page's
// post-image ahead of the write reaching storage.
func NewPageWriteRecord(buf []byte, block common.BlockID, afterImage []byte) LogRecord {
	size := PageWriteRecordSize(block.FileName, afterImage)
	r := LogRecord{data: buf[:size]}
	binary.LittleEndian.PutUint16(r.data[offsetType:], uint16(LogPageWrite))
	binary.LittleEndian.PutUint64(r.data[offsetBlockNum:], uint64(block.BlockNum))
	binary.LittleEndian.PutUint16(r.data[offsetFileNameLen:], uint16(len(block.FileName)))
	copy(r.data[offsetFileNameLen+2:], block.FileName)
	copy(r.data[offsetFileNameLen+2+len(block.FileName):], afterImage)
	return r
}
