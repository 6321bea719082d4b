package logging

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/delgadom/bufpool/common"
)

// NoopLogManager discards everything. It is useful in tests that exercise
// buffer pool mechanics without caring about write-ahead logging, since
// WaitUntilFlushed always returns immediately.
type NoopLogManager struct{}

func (n NoopLogManager) Append(record LogRecord) (common.LSN, error) {
	return 0, nil
}

func (n NoopLogManager) WaitUntilFlushed(lsn common.LSN) error {
	return nil
}

func (n NoopLogManager) Close() error {
	return nil
}

// MemoryLogManager is an in-memory LogManager for tests that need real
// Append/WaitUntilFlushed semantics without touching disk. It stores
// records in a single flat byte slice to minimize allocation overhead.
type MemoryLogManager struct {
	buffer       []byte
	flushedUntil atomic.Int64
	appendError  atomic.Value
	sync.Mutex
}

func NewMemoryLogManager() *MemoryLogManager {
	return &MemoryLogManager{
		buffer: make([]byte, 0, 4096),
	}
}

func (m *MemoryLogManager) Append(record LogRecord) (common.LSN, error) {
	if v := m.appendError.Load(); v != nil {
		if err, ok := v.(error); ok && err != nil {
			return 0, err
		}
	}

	m.Lock()
	defer m.Unlock()
	lsn := len(m.buffer)
	m.buffer = append(m.buffer, record.data...)
	return common.LSN(lsn), nil
}

func (m *MemoryLogManager) WaitUntilFlushed(lsn common.LSN) error {
	for m.flushedUntil.Load() < int64(lsn) {
		time.Sleep(time.Millisecond)
	}
	return nil
}

func (m *MemoryLogManager) Close() error {
	return nil
}

// SetFlushedLSN lets tests simulate durability without a real flush loop.
func (m *MemoryLogManager) SetFlushedLSN(lsn common.LSN) {
	m.flushedUntil.Store(int64(lsn))
}

// SetAppendError makes subsequent Append calls fail, to simulate a broken log.
func (m *MemoryLogManager) SetAppendError(err error) {
	m.appendError.Store(err)
}
