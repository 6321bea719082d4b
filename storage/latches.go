package storage

import (
	"sync"

	"github.com/delgadom/bufpool/common"
)

// stripeSize is the number of mutexes in each striped latch array. It is
// prime so that keys whose hashes differ by a small stride still land on
// different stripes.
const stripeSize = 1009

// stripedLatches is a fixed array of mutexes indexed by hash(key) mod N,
// serializing only those callers that collide on the same stripe rather
// than every caller in the pool. Go's sync.Mutex is not reentrant, so
// callers that must re-enter while already holding a stripe (the pin
// hit-path re-validation) use an explicit unlock/relock loop instead of
// recursing.
type stripedLatches struct {
	mus [stripeSize]sync.Mutex
}

func (s *stripedLatches) index(h uint64) int {
	return int(h % stripeSize)
}

func (s *stripedLatches) lock(h uint64) {
	s.mus[s.index(h)].Lock()
}

func (s *stripedLatches) unlock(h uint64) {
	s.mus[s.index(h)].Unlock()
}

func blockHash(b common.BlockID) uint64 {
	return b.Hash()
}

func fileHash(fileName string) uint64 {
	return common.Hash([]byte(fileName))
}
