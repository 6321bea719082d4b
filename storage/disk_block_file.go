package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/delgadom/bufpool/common"
)

// diskBlockFile implements BlockFile using a standard OS file.
type diskBlockFile struct {
	file *os.File
	// numBlocks is a cached value of the file size (in blocks) to avoid
	// stat() syscalls on every read. It is updated atomically after
	// physical allocation.
	numBlocks atomic.Int64
	// allocMu serializes file expansion operations (Truncate) to ensure
	// thread safety during allocation.
	allocMu sync.Mutex
}

// newDiskBlockFile creates a diskBlockFile wrapper around an already open OS
// file, initializing the block count based on the current file size.
func newDiskBlockFile(file *os.File) (*diskBlockFile, error) {
	stat, err := file.Stat()
	if err != nil {
		return nil, err
	}

	numBlocks := stat.Size() / int64(common.PageSize)

	f := &diskBlockFile{file: file}
	f.numBlocks.Store(numBlocks)
	return f, nil
}

// AppendBlock grows the underlying file by a single block.
func (f *diskBlockFile) AppendBlock() (int64, error) {
	f.allocMu.Lock()
	defer f.allocMu.Unlock()

	currentBlocks := f.numBlocks.Load()
	newSizeBytes := (currentBlocks + 1) * int64(common.PageSize)

	// Physically extend the file. This ensures the OS changes the file size
	// immediately, although it may not be backed by physical pages yet.
	// Reads from the new area will return zeros.
	if err := f.file.Truncate(newSizeBytes); err != nil {
		return 0, errors.Wrap(err, "failed to allocate block")
	}
	f.numBlocks.Store(currentBlocks + 1)
	return currentBlocks, nil
}

// ReadBlock reads the content of the block identified by blockNum into dst.
func (f *diskBlockFile) ReadBlock(blockNum int64, dst []byte) error {
	common.Assert(len(dst) == common.PageSize, "buffer size must match PageSize")
	if blockNum >= f.numBlocks.Load() {
		return common.Error{Code: common.ErrBlockNotFound, ErrString: fmt.Sprintf("read out of bounds: block %d does not exist (file has %d blocks)", blockNum, f.numBlocks.Load())}
	}

	offset := blockNum * int64(common.PageSize)
	_, err := f.file.ReadAt(dst, offset)
	return errors.Wrap(err, "read block")
}

// WriteBlock writes the content of src to the block identified by blockNum.
func (f *diskBlockFile) WriteBlock(blockNum int64, src []byte) error {
	common.Assert(len(src) == common.PageSize, "buffer size must match PageSize")
	if blockNum >= f.numBlocks.Load() {
		return common.Error{Code: common.ErrBlockNotFound, ErrString: fmt.Sprintf("write out of bounds: block %d does not exist", blockNum)}
	}

	offset := blockNum * int64(common.PageSize)
	_, err := f.file.WriteAt(src, offset)
	return errors.Wrap(err, "write block")
}

// Sync flushes writes to stable storage.
func (f *diskBlockFile) Sync() error {
	return f.file.Sync()
}

// Close closes the underlying OS file.
func (f *diskBlockFile) Close() error {
	return f.file.Close()
}

// NumBlocks returns the number of blocks currently allocated in the file.
func (f *diskBlockFile) NumBlocks() (int64, error) {
	return f.numBlocks.Load(), nil
}

// DiskBlockFileManager manages a collection of diskBlockFiles rooted at a
// specific directory, one physical file per name.
type DiskBlockFileManager struct {
	rootPath  string
	fileCache *xsync.MapOf[string, BlockFile]
}

// NewDiskBlockFileManager initializes a manager rooted at rootPath.
func NewDiskBlockFileManager(rootPath string) *DiskBlockFileManager {
	return &DiskBlockFileManager{
		rootPath:  rootPath,
		fileCache: xsync.NewMapOf[string, BlockFile](),
	}
}

// GetFile retrieves or creates a BlockFile for the given name.
//
// It maintains a cache of open files to ensure only one instance of
// diskBlockFile exists per physical file.
func (m *DiskBlockFileManager) GetFile(fileName string) (BlockFile, error) {
	if file, ok := m.fileCache.Load(fileName); ok {
		return file, nil
	}

	path := filepath.Join(m.rootPath, fileName)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return nil, errors.Wrapf(err, "open file %q", fileName)
	}
	newFile, err := newDiskBlockFile(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	actual, loaded := m.fileCache.LoadOrStore(fileName, newFile)
	if loaded {
		// We lost the race. Another thread opened the file and inserted it
		// first; close our unnecessary handle and use theirs.
		_ = newFile.Close()
		return actual, nil
	}

	return newFile, nil
}

// DeleteFile permanently deletes the file with the given name.
//
// Warning: the caller must ensure that no other threads are currently
// using/getting the file.
func (m *DiskBlockFileManager) DeleteFile(fileName string) error {
	file, loaded := m.fileCache.LoadAndDelete(fileName)
	if loaded {
		if err := file.Close(); err != nil {
			fmt.Printf("failed to close file %q when deleting: %v, proceeding with deletion\n", fileName, err)
		}
	}

	path := filepath.Join(m.rootPath, fileName)
	return os.Remove(path)
}
