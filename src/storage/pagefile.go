// Package storage provides fixed-size page I/O over a single file.
//
// This is the bottom layer of the index: it knows nothing about nodes,
// cells or records, only about zero-based page indices and byte
// buffers. Everything above it (the node store, the record store, the
// metadata page) is built on top of a PageFile.
package storage

import (
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// PageFile is a fixed-size paged view over a single OS file. Page size
// is fixed at creation and never changes for the lifetime of the file.
type PageFile struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	pageSize int

	Reads  uint64
	Writes uint64

	logger *zap.SugaredLogger
}

// Open opens path for read/write, creating it if it doesn't exist.
// pageSize must match the page size the file was created with; callers
// are responsible for keeping that invariant across restarts.
func Open(path string, pageSize int, logger *zap.SugaredLogger) (*PageFile, error) {
	if pageSize <= 0 {
		return nil, fmt.Errorf("storage: page size must be positive, got %d", pageSize)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &PageFile{
		path:     path,
		file:     f,
		pageSize: pageSize,
		logger:   logger,
	}, nil
}

// PageSize returns the fixed page size this file was opened with.
func (pf *PageFile) PageSize() int {
	return pf.pageSize
}

// PageCount returns the number of whole pages currently in the file.
func (pf *PageFile) PageCount() (int, error) {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	return pf.pageCountLocked()
}

func (pf *PageFile) pageCountLocked() (int, error) {
	info, err := pf.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("storage: stat %s: %w", pf.path, err)
	}
	return int(info.Size()) / pf.pageSize, nil
}

// GetPage reads the page at index. Reading beyond the current length
// of the file returns a zero-filled page; the file is not extended and
// PageCount does not change until SetPage writes that index.
func (pf *PageFile) GetPage(index int) ([]byte, error) {
	if index < 0 {
		return nil, fmt.Errorf("storage: negative page index %d", index)
	}
	pf.mu.Lock()
	defer pf.mu.Unlock()

	buf := make([]byte, pf.pageSize)
	offset := int64(index) * int64(pf.pageSize)
	_, err := pf.file.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("storage: read page %d of %s: %w", index, pf.path, err)
	}
	// A short or zero read (err == io.EOF) means index lies at or past
	// the current file length; buf is already zero-filled.
	pf.Reads++
	return buf, nil
}

// SetPage writes data (must be exactly PageSize() bytes) to the page at
// index, extending the file if necessary.
func (pf *PageFile) SetPage(index int, data []byte) error {
	if index < 0 {
		return fmt.Errorf("storage: negative page index %d", index)
	}
	if len(data) != pf.pageSize {
		return fmt.Errorf("storage: page write of %d bytes, want %d", len(data), pf.pageSize)
	}
	pf.mu.Lock()
	defer pf.mu.Unlock()

	offset := int64(index) * int64(pf.pageSize)
	if _, err := pf.file.WriteAt(data, offset); err != nil {
		return fmt.Errorf("storage: write page %d of %s: %w", index, pf.path, err)
	}
	pf.Writes++
	return nil
}

// Clear truncates the file to empty. Used when (re)initializing a
// fresh tree or heap.
func (pf *PageFile) Clear() error {
	pf.mu.Lock()
	defer pf.mu.Unlock()

	if err := pf.file.Truncate(0); err != nil {
		return fmt.Errorf("storage: truncate %s: %w", pf.path, err)
	}
	if _, err := pf.file.Seek(0, 0); err != nil {
		return fmt.Errorf("storage: seek %s: %w", pf.path, err)
	}
	return nil
}

// Flush is the durability barrier: every write that happened before a
// Flush call must survive a crash that happens after it returns. On
// top of the portable File.Sync, unix.Fdatasync is called directly on
// the descriptor; it is best-effort, and platforms or filesystems that
// don't support it still get the guarantee from File.Sync.
func (pf *PageFile) Flush() error {
	pf.mu.Lock()
	defer pf.mu.Unlock()

	if err := pf.file.Sync(); err != nil {
		return fmt.Errorf("storage: sync %s: %w", pf.path, err)
	}
	if err := unix.Fdatasync(int(pf.file.Fd())); err != nil {
		pf.logger.Debugf("storage: fdatasync %s not available, relying on File.Sync: %v", pf.path, err)
	}
	return nil
}

// Close releases the underlying file handle.
func (pf *PageFile) Close() error {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	if pf.file == nil {
		return nil
	}
	err := pf.file.Close()
	pf.file = nil
	return err
}
