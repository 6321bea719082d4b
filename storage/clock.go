package storage

import "sync/atomic"

// clockScanner implements second-chance (clock) victim selection over a
// fixed array of frames. It owns no lock of its own: it advances a shared
// cursor and tryLocks candidate frames, skipping any it cannot immediately
// lock or that are ineligible, so it never blocks a pinner that holds a
// frame's swap_lock.
type clockScanner struct {
	frames []*Frame
	cursor *atomic.Uint64
}

func newClockScanner(frames []*Frame, cursor *atomic.Uint64) *clockScanner {
	return &clockScanner{frames: frames, cursor: cursor}
}

// scan walks the frame array starting just after the cursor's current
// position, advancing it by one full lap at most. Every frame it locks has
// its recent bit read and cleared, pinned or not. It returns a locked,
// unpinned victim frame whose recent bit was already clear, or (nil, false)
// if no frame in the lap was lockable, unpinned and clear of its recent
// bit. The caller must Unlock the returned frame.
func (s *clockScanner) scan() (*Frame, bool) {
	n := uint64(len(s.frames))
	if n == 0 {
		return nil, false
	}

	for i := uint64(0); i < n; i++ {
		idx := s.cursor.Add(1) % n
		f := s.frames[idx]

		if !f.TryLock() {
			continue
		}

		// Clear the bit as the hand passes, even on a pinned frame, so a
		// frame that stays cold after its last pin is evicted on a later lap.
		recent := f.checkRecentAndReset()
		if f.IsPinned() || recent {
			// Pinned frames are never victims; a recent one gets its second
			// chance and is skipped this lap.
			f.Unlock()
			continue
		}

		return f, true
	}

	return nil, false
}
