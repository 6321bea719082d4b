package maintenance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/delgadom/bufpool/common"
	"github.com/delgadom/bufpool/logging"
	"github.com/delgadom/bufpool/storage"
)

func TestFlusher_PeriodicallyFlushesDirtyFrames(t *testing.T) {
	files := storage.NewDiskBlockFileManager(t.TempDir())
	pool, err := storage.NewPool(4, files, logging.NoopLogManager{})
	require.NoError(t, err)

	frame, err := pool.PinNew("data.dat", storage.ZeroFormatter{})
	require.NoError(t, err)
	copy(frame.Bytes[:], []byte("dirty-by-flusher"))
	_, err = pool.MarkDirty(frame, frame.Bytes[:])
	require.NoError(t, err)
	pool.Unpin(frame)

	f := NewFlusher(pool, 10*time.Millisecond)
	f.Start()
	defer f.Stop()

	assert.Eventually(t, func() bool {
		again, err := pool.Pin(common.BlockID{FileName: "data.dat", BlockNum: 0})
		if err != nil || again == nil {
			return false
		}
		defer pool.Unpin(again)

		file, err := files.GetFile("data.dat")
		if err != nil {
			return false
		}
		onDisk := make([]byte, common.PageSize)
		if err := file.ReadBlock(0, onDisk); err != nil {
			return false
		}
		return string(onDisk[:len("dirty-by-flusher")]) == "dirty-by-flusher"
	}, time.Second, 10*time.Millisecond, "flusher should eventually persist the dirty frame")
}

func TestFlusher_StopPerformsFinalFlush(t *testing.T) {
	files := storage.NewDiskBlockFileManager(t.TempDir())
	pool, err := storage.NewPool(4, files, logging.NoopLogManager{})
	require.NoError(t, err)

	frame, err := pool.PinNew("final.dat", storage.ZeroFormatter{})
	require.NoError(t, err)
	copy(frame.Bytes[:], []byte("final-flush"))
	_, err = pool.MarkDirty(frame, frame.Bytes[:])
	require.NoError(t, err)
	pool.Unpin(frame)

	f := NewFlusher(pool, time.Hour) // long enough that only Stop's flush matters
	f.Start()
	f.Stop()

	file, err := files.GetFile("final.dat")
	require.NoError(t, err)
	onDisk := make([]byte, common.PageSize)
	require.NoError(t, file.ReadBlock(0, onDisk))
	assert.Equal(t, "final-flush", string(onDisk[:len("final-flush")]))
}
