// Package bufpool wires the block/file layer, the write-ahead log, the
// buffer pool manager, and the background flusher into a single handle
// that most callers only need to Open and Close.
package bufpool

import (
	"path/filepath"
	"time"

	"github.com/delgadom/bufpool/logging"
	"github.com/delgadom/bufpool/maintenance"
	"github.com/delgadom/bufpool/storage"
)

const defaultFlushInterval = 100 * time.Millisecond

// Options configures Open.
type Options struct {
	// DataDir holds the block files managed by the pool.
	DataDir string
	// LogPath is the write-ahead log file. Defaults to DataDir/wal.log.
	LogPath string
	// NumBuffers is the number of frames in the pool; must be >= 2.
	NumBuffers int
	// FlushInterval is how often the background flusher drains dirty
	// frames. Zero disables the background flusher entirely.
	FlushInterval time.Duration
}

// DB bundles the storage, logging, and maintenance layers behind a single
// lifecycle. It is the root object most programs using this module
// construct once at startup.
type DB struct {
	Files   *storage.DiskBlockFileManager
	Log     *logging.DoubleBufferLogManager
	Pool    *storage.Pool
	flusher *maintenance.Flusher
}

// Open constructs a DB from opts, starting the background flusher if
// FlushInterval is non-zero.
func Open(opts Options) (*DB, error) {
	logPath := opts.LogPath
	if logPath == "" {
		logPath = filepath.Join(opts.DataDir, "wal.log")
	}

	log, err := logging.NewDoubleBufferLogManager(logPath)
	if err != nil {
		return nil, err
	}

	files := storage.NewDiskBlockFileManager(opts.DataDir)

	pool, err := storage.NewPool(opts.NumBuffers, files, log)
	if err != nil {
		_ = log.Close()
		return nil, err
	}

	db := &DB{
		Files: files,
		Log:   log,
		Pool:  pool,
	}

	if opts.FlushInterval > 0 {
		db.flusher = maintenance.NewFlusher(pool, opts.FlushInterval)
		db.flusher.Start()
	}

	return db, nil
}

// Close stops the background flusher (if any), performs a final FlushAll,
// and closes the write-ahead log.
func (db *DB) Close() error {
	if db.flusher != nil {
		db.flusher.Stop()
	}
	if err := db.Pool.FlushAll(); err != nil {
		return err
	}
	return db.Log.Close()
}
