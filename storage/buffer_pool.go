package storage

import (
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/delgadom/bufpool/common"
	"github.com/delgadom/bufpool/logging"
)

// Pool is the buffer pool manager: a fixed-size cache of Frames mapping
// block identities to in-memory page bytes. It orchestrates Pin, PinNew,
// Unpin, and FlushAll, serializing only the requests that actually collide
// on the same block or file via striped latches rather than a single
// pool-wide lock.
type Pool struct {
	frames  []*Frame
	index   *xsync.MapOf[common.BlockID, *Frame]
	scanner *clockScanner
	cursor  atomic.Uint64

	numAvailable atomic.Int64

	blockLatches stripedLatches
	fileLatches  stripedLatches

	totalCount atomic.Int64
	missCount  atomic.Int64

	files BlockFileManager
	log   logging.LogManager
}

// NewPool allocates numBuffers empty frames and wires them to files for
// block I/O and log for write-ahead-log durability. numBuffers must be at
// least 2: the replacement scanner otherwise can never find space to load
// a second distinct block.
func NewPool(numBuffers int, files BlockFileManager, log logging.LogManager) (*Pool, error) {
	if numBuffers < 2 {
		return nil, common.Error{
			Code:      common.ErrInvalidPoolSize,
			ErrString: "pool must have at least 2 buffers",
		}
	}

	frames := make([]*Frame, numBuffers)
	for i := range frames {
		frames[i] = &Frame{}
	}

	p := &Pool{
		frames: frames,
		index:  xsync.NewMapOf[common.BlockID, *Frame](),
		files:  files,
		log:    log,
	}
	p.scanner = newClockScanner(p.frames, &p.cursor)
	p.numAvailable.Store(int64(numBuffers))
	return p, nil
}

// Pin returns a pinned Frame resident for block, loading it from storage if
// it is not already cached. It returns (nil, nil) if every frame is
// currently pinned or recently pinned and no victim could be found on a
// single scan — callers may retry.
func (p *Pool) Pin(block common.BlockID) (*Frame, error) {
	h := blockHash(block)

	for {
		// Counted on every entry to this loop, including retries forced by
		// a concurrent eviction racing the hit-path re-validation below:
		// each retry is a fresh attempt to satisfy the request.
		p.totalCount.Add(1)
		p.blockLatches.lock(h)

		if f, ok := p.index.Load(block); ok {
			f.Lock()
			// Release the block latch early: subsequent pinners for this
			// block will find the same frame in the index and take the
			// same hit path, so they no longer need the latch.
			p.blockLatches.unlock(h)

			if f.Block() != block {
				// A concurrent eviction reassigned this frame between our
				// index lookup and acquiring its lock. Go's Mutex isn't
				// reentrant, so we restart from the top instead of
				// recursing; the block latch still serializes us against
				// same-block pinners.
				f.Unlock()
				continue
			}

			if !f.IsPinned() {
				p.numAvailable.Add(-1)
			}
			f.pin()
			f.Unlock()
			return f, nil
		}

		// Miss path: the block latch stays held for the whole swap so a
		// concurrent pinner for the same block blocks here and finds the
		// newly-installed index entry (the hit path) instead of racing us
		// into a second load.
		p.missCount.Add(1)

		v, ok := p.scanner.scan()
		if !ok {
			p.blockLatches.unlock(h)
			return nil, nil
		}
		// v is returned locked.

		prior := v.Block()
		if !prior.IsNil() {
			if err := v.flush(p.files, p.log); err != nil {
				v.Unlock()
				p.blockLatches.unlock(h)
				return nil, err
			}
			// Only remove the stale index entry after a successful flush,
			// so a flush failure leaves the old identity fully discoverable.
			p.index.Delete(prior)
		}

		wasPinned := v.IsPinned()
		if err := v.loadBlock(block, p.files); err != nil {
			// loadBlock already cleared v's identity; the index has no
			// entry for either the old or new block at this point, which
			// matches the prescribed failure semantics.
			v.Unlock()
			p.blockLatches.unlock(h)
			return nil, err
		}

		p.index.Store(block, v)
		if !wasPinned {
			p.numAvailable.Add(-1)
		}
		v.pin()
		v.Unlock()
		p.blockLatches.unlock(h)
		return v, nil
	}
}

// PinNew appends a new block to fileName, formats it via fmtr, and returns
// it pinned and marked dirty. It returns (nil, nil) if no victim frame
// could be found.
func (p *Pool) PinNew(fileName string, fmtr PageFormatter) (*Frame, error) {
	h := fileHash(fileName)
	p.fileLatches.lock(h)
	defer p.fileLatches.unlock(h)

	v, ok := p.scanner.scan()
	if !ok {
		return nil, nil
	}
	// v is returned locked.

	prior := v.Block()
	if !prior.IsNil() {
		if err := v.flush(p.files, p.log); err != nil {
			v.Unlock()
			return nil, err
		}
		p.index.Delete(prior)
	}

	wasPinned := v.IsPinned()
	if err := v.assignToNew(fileName, fmtr, p.files); err != nil {
		v.Unlock()
		return nil, err
	}

	p.index.Store(v.Block(), v)
	if !wasPinned {
		p.numAvailable.Add(-1)
	}
	v.pin()
	v.Unlock()
	return v, nil
}

// Unpin releases a pin acquired by Pin or PinNew on each of frames.
// Unpinning order is independent; no cross-frame atomicity is required.
func (p *Pool) Unpin(frames ...*Frame) {
	for _, f := range frames {
		f.Lock()
		f.unpin()
		if !f.IsPinned() {
			p.numAvailable.Add(1)
		}
		f.Unlock()
	}
}

// MarkDirty appends a page-write log record carrying afterImage for f's
// resident block, then marks f dirty with the LSN the record was assigned.
// Any later flush of f will block on WaitUntilFlushed(lsn) first, so the
// record is guaranteed durable before f's bytes reach storage. The caller
// must hold a pin on f (as returned by Pin or PinNew) for the duration of
// the call, so its block identity cannot change underneath it.
func (p *Pool) MarkDirty(f *Frame, afterImage []byte) (common.LSN, error) {
	f.Lock()
	block := f.Block()
	f.Unlock()

	buf := make([]byte, logging.PageWriteRecordSize(block.FileName, afterImage))
	record := logging.NewPageWriteRecord(buf, block, afterImage)

	lsn, err := p.log.Append(record)
	if err != nil {
		return 0, err
	}
	f.MarkDirty(lsn)
	return lsn, nil
}

// FlushAll writes every dirty frame back to storage, respecting WAL
// ordering for each. It is not a barrier: a concurrent writer may re-dirty
// a frame immediately after it is flushed.
func (p *Pool) FlushAll() error {
	for _, f := range p.frames {
		f.Lock()
		err := f.flush(p.files, p.log)
		f.Unlock()
		if err != nil {
			return err
		}
	}
	return nil
}

// Available returns the number of frames currently unpinned.
func (p *Pool) Available() int {
	return int(p.numAvailable.Load())
}

// HitRate atomically drains the miss/total counters and returns
// 1 - misses/total, or 1.0 if no pin requests occurred since the last call.
func (p *Pool) HitRate() float64 {
	total := p.totalCount.Swap(0)
	misses := p.missCount.Swap(0)
	if total == 0 {
		return 1.0
	}
	return 1.0 - float64(misses)/float64(total)
}
