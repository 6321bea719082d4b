package bufpool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/delgadom/bufpool/common"
	"github.com/delgadom/bufpool/storage"
)

func TestOpen_PinWriteCloseReopen(t *testing.T) {
	dir := t.TempDir()

	db, err := Open(Options{DataDir: dir, NumBuffers: 4})
	require.NoError(t, err)

	frame, err := db.Pool.PinNew("accounts.dat", storage.ZeroFormatter{})
	require.NoError(t, err)
	copy(frame.Bytes[:], []byte("hello durable world"))
	_, err = db.Pool.MarkDirty(frame, frame.Bytes[:])
	require.NoError(t, err)
	block := frame.Block()
	db.Pool.Unpin(frame)

	require.NoError(t, db.Close())

	db2, err := Open(Options{DataDir: dir, NumBuffers: 4})
	require.NoError(t, err)
	defer db2.Close()

	reopened, err := db2.Pool.Pin(block)
	require.NoError(t, err)
	require.NotNil(t, reopened)
	assert.Contains(t, string(reopened.Bytes[:len("hello durable world")]), "hello durable world")
	db2.Pool.Unpin(reopened)
}

func TestOpen_RejectsUndersizedPool(t *testing.T) {
	_, err := Open(Options{DataDir: t.TempDir(), NumBuffers: 1})
	assert.Error(t, err)
}

func TestOpen_BackgroundFlusherPersistsWithoutExplicitFlush(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(Options{DataDir: dir, NumBuffers: 4, FlushInterval: 10 * time.Millisecond})
	require.NoError(t, err)
	defer db.Close()

	frame, err := db.Pool.PinNew("ticks.dat", storage.ZeroFormatter{})
	require.NoError(t, err)
	copy(frame.Bytes[:], []byte("ticked"))
	_, err = db.Pool.MarkDirty(frame, frame.Bytes[:])
	require.NoError(t, err)
	block := frame.Block()
	db.Pool.Unpin(frame)

	assert.Eventually(t, func() bool {
		f, err := db.Files.GetFile(block.FileName)
		if err != nil {
			return false
		}
		buf := make([]byte, common.PageSize)
		if err := f.ReadBlock(block.BlockNum, buf); err != nil {
			return false
		}
		return string(buf[:len("ticked")]) == "ticked"
	}, time.Second, 10*time.Millisecond)
}
