package storage

import (
	"sync"

	"github.com/delgadom/bufpool/common"
	"github.com/delgadom/bufpool/logging"
)

// Frame is a single cache slot: it owns a page buffer, its resident block
// identity (or none), a pin count, a dirty flag, a recently-pinned clock
// bit, and the swap lock that guards transitions of identity and pin count.
//
// All fields below mu are only ever touched while mu is held. mu is not
// reentrant (Go's sync.Mutex isn't), so callers that need to re-enter while
// already holding it (the Pool's hit-path re-validation) use an explicit
// retry loop instead of recursing.
type Frame struct {
	Bytes [common.PageSize]byte

	mu sync.Mutex

	block       common.BlockID
	pinCount    int32
	dirty       bool
	recent      bool
	recoveryLSN common.LSN
}

// TryLock attempts to acquire the frame's swap lock without blocking. It is
// used exclusively by the Replacement Scanner, which must never block on a
// frame another thread is actively swapping.
func (f *Frame) TryLock() bool {
	return f.mu.TryLock()
}

// Lock acquires the frame's swap lock, blocking until available.
func (f *Frame) Lock() {
	f.mu.Lock()
}

// Unlock releases the frame's swap lock.
func (f *Frame) Unlock() {
	f.mu.Unlock()
}

// Block returns the frame's resident block identity. Caller must hold mu.
func (f *Frame) Block() common.BlockID {
	return f.block
}

// IsPinned reports whether the frame is currently pinned. Caller must hold mu.
func (f *Frame) IsPinned() bool {
	return f.pinCount > 0
}

// pin increments the pin count and sets the recent bit. Caller must hold mu.
func (f *Frame) pin() {
	f.pinCount++
	f.recent = true
}

// unpin decrements the pin count. Caller must hold mu.
func (f *Frame) unpin() {
	common.Assert(f.pinCount > 0, "unpin called on a frame with pinCount %d", f.pinCount)
	f.pinCount--
}

// checkRecentAndReset atomically reads the recent bit and clears it,
// returning the prior value. Caller must hold mu. A racing pin() between the
// read and a scanner's decision to evict re-sets recent to true on its own
// next call, so losing this particular race only costs a reprieve, never
// correctness.
func (f *Frame) checkRecentAndReset() bool {
	was := f.recent
	f.recent = false
	return was
}

// loadBlock reads block b from storage into the page buffer, setting the
// frame's identity on success. On a read failure the frame is left with no
// identity rather than half-assigned to a block it couldn't load. This
// mirrors the combined read-then-assign step Frame performs on a miss: the
// pool calls flush and removes the stale index entry itself before calling
// loadBlock, so a failed load never leaves a removed index entry
// unaccounted for. Caller must hold mu.
func (f *Frame) loadBlock(b common.BlockID, files BlockFileManager) error {
	file, err := files.GetFile(b.FileName)
	if err != nil {
		f.block = common.BlockID{}
		return err
	}
	if err := file.ReadBlock(b.BlockNum, f.Bytes[:]); err != nil {
		f.block = common.BlockID{}
		return err
	}

	f.block = b
	f.dirty = false
	f.recent = false
	return nil
}

// assignToNew appends a new block to file via the file layer, formats it in
// memory, and marks the frame dirty (its contents have never been written
// to storage). Caller must hold mu.
func (f *Frame) assignToNew(fileName string, fmtr PageFormatter, files BlockFileManager) error {
	file, err := files.GetFile(fileName)
	if err != nil {
		return err
	}
	blockNum, err := file.AppendBlock()
	if err != nil {
		return err
	}

	fmtr.Format(f.Bytes[:])
	f.block = common.BlockID{FileName: fileName, BlockNum: blockNum}
	f.dirty = true
	f.recent = false
	return nil
}

// flush writes the frame's page back to storage if dirty, first flushing
// the write-ahead log through the page's recovery LSN. No-op when clean or
// when the frame holds no block. Caller must hold mu.
func (f *Frame) flush(files BlockFileManager, log logging.LogManager) error {
	if !f.dirty || f.block.IsNil() {
		return nil
	}

	if err := log.WaitUntilFlushed(f.recoveryLSN); err != nil {
		return err
	}

	file, err := files.GetFile(f.block.FileName)
	if err != nil {
		return err
	}
	if err := file.WriteBlock(f.block.BlockNum, f.Bytes[:]); err != nil {
		return err
	}

	f.dirty = false
	return nil
}

// MarkDirty records that the caller has written to the frame's page bytes
// and stamps the recovery LSN that must be durable before this frame may be
// flushed. Ordinary callers should go through Pool.MarkDirty, which assigns
// the LSN from a real write-ahead log append; this method is the low-level
// primitive it builds on. Callers hold a pin (so the frame cannot be
// evicted out from under them) but do not otherwise hold mu, so MarkDirty
// acquires it itself for the duration of the update.
func (f *Frame) MarkDirty(lsn common.LSN) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dirty = true
	if lsn > f.recoveryLSN {
		f.recoveryLSN = lsn
	}
}
