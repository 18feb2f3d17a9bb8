package btreeindex

import (
	"fmt"

	"sbdbtree/src/storage"

	"go.uber.org/zap"
)

// recordStore wraps a storage.PageFile whose page size holds multiple
// fixed-size records, and tracks the append cursor (nextPage,
// nextOffset) new inserts land at.
type recordStore struct {
	pf         *storage.PageFile
	recordSize int
	nextPage   int64
	nextOffset int64
	logger     *zap.SugaredLogger
}

func openRecordStore(path string, pageSize, recordSize int, logger *zap.SugaredLogger) (*recordStore, error) {
	if recordSize <= 0 || recordSize > pageSize {
		return nil, fmt.Errorf("btreeindex: record size %d must fit in page size %d", recordSize, pageSize)
	}
	pf, err := storage.Open(path, pageSize, logger)
	if err != nil {
		return nil, fmt.Errorf("btreeindex: open record file %s: %w", path, err)
	}
	return &recordStore{pf: pf, recordSize: recordSize, logger: logger}, nil
}

// insert appends data (exactly recordSize bytes) at the current cursor,
// advancing to the next page first if it doesn't fit in the remainder
// of the current one, and returns the coordinate it was written at.
func (rs *recordStore) insert(data []byte) (page, offset int64, err error) {
	if len(data) != rs.recordSize {
		return 0, 0, fmt.Errorf("btreeindex: record of %d bytes, want %d", len(data), rs.recordSize)
	}
	if int(rs.nextOffset)+rs.recordSize > rs.pf.PageSize() {
		rs.nextPage++
		rs.nextOffset = 0
	}
	if err := rs.writeAt(rs.nextPage, rs.nextOffset, data); err != nil {
		return 0, 0, err
	}
	page, offset = rs.nextPage, rs.nextOffset
	rs.nextOffset += int64(rs.recordSize)
	return page, offset, nil
}

// get reads the record at (page, offset).
func (rs *recordStore) get(page, offset int64) ([]byte, error) {
	buf, err := rs.pf.GetPage(int(page))
	if err != nil {
		return nil, fmt.Errorf("btreeindex: read record at page %d: %w", page, err)
	}
	if int(offset)+rs.recordSize > len(buf) {
		return nil, fmt.Errorf("btreeindex: record offset %d exceeds page size %d: %w", offset, len(buf), ErrCorrupt)
	}
	out := make([]byte, rs.recordSize)
	copy(out, buf[offset:int(offset)+rs.recordSize])
	return out, nil
}

// set overwrites the record at (page, offset) in place.
func (rs *recordStore) set(page, offset int64, data []byte) error {
	if len(data) != rs.recordSize {
		return fmt.Errorf("btreeindex: record of %d bytes, want %d", len(data), rs.recordSize)
	}
	return rs.writeAt(page, offset, data)
}

func (rs *recordStore) writeAt(page, offset int64, data []byte) error {
	buf, err := rs.pf.GetPage(int(page))
	if err != nil {
		return fmt.Errorf("btreeindex: read record page %d before write: %w", page, err)
	}
	copy(buf[offset:int(offset)+rs.recordSize], data)
	if err := rs.pf.SetPage(int(page), buf); err != nil {
		return fmt.Errorf("btreeindex: write record page %d: %w", page, err)
	}
	return nil
}

func (rs *recordStore) clear() error {
	if err := rs.pf.Clear(); err != nil {
		return err
	}
	rs.nextPage = 0
	rs.nextOffset = 0
	return nil
}

func (rs *recordStore) flush() error {
	return rs.pf.Flush()
}

func (rs *recordStore) close() error {
	return rs.pf.Close()
}
