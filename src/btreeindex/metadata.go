package btreeindex

import (
	"encoding/binary"
	"fmt"

	"sbdbtree/src/storage"

	"go.uber.org/zap"
)

// metadataFields is the count of persisted metadata integers.
const metadataFields = 7
const metadataPageSize = metadataFields * 8

// metadata is the in-memory mirror of the tree's 7-integer metadata
// page. Field order matches the wire format exactly.
type metadata struct {
	elementCount   int64 // 0
	nodeCount      int64 // 1
	height         int64 // 2
	root           int64 // 3
	dataNextPage   int64 // 4
	dataNextOffset int64 // 5
	btreeNextNode  int64 // 6
}

func (m *metadata) encode() []byte {
	buf := make([]byte, metadataPageSize)
	vals := [metadataFields]int64{
		m.elementCount, m.nodeCount, m.height, m.root,
		m.dataNextPage, m.dataNextOffset, m.btreeNextNode,
	}
	for i, v := range vals {
		binary.LittleEndian.PutUint64(buf[i*8:(i+1)*8], uint64(v))
	}
	return buf
}

func decodeMetadata(buf []byte) (metadata, error) {
	if len(buf) != metadataPageSize {
		return metadata{}, fmt.Errorf("btreeindex: metadata page is %d bytes, want %d", len(buf), metadataPageSize)
	}
	var vals [metadataFields]int64
	for i := range vals {
		vals[i] = int64(binary.LittleEndian.Uint64(buf[i*8 : (i+1)*8]))
	}
	return metadata{
		elementCount:   vals[0],
		nodeCount:      vals[1],
		height:         vals[2],
		root:           vals[3],
		dataNextPage:   vals[4],
		dataNextOffset: vals[5],
		btreeNextNode:  vals[6],
	}, nil
}

// metadataStore owns the small, separate .meta file holding the 7
// integers at page 0.
type metadataStore struct {
	pf     *storage.PageFile
	logger *zap.SugaredLogger
}

func openMetadataStore(path string, logger *zap.SugaredLogger) (*metadataStore, error) {
	pf, err := storage.Open(path, metadataPageSize, logger)
	if err != nil {
		return nil, fmt.Errorf("btreeindex: open metadata file %s: %w", path, err)
	}
	return &metadataStore{pf: pf, logger: logger}, nil
}

// isEmpty reports whether the metadata file has never been written,
// the signal to initialize a brand-new tree.
func (ms *metadataStore) isEmpty() (bool, error) {
	count, err := ms.pf.PageCount()
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

func (ms *metadataStore) load() (metadata, error) {
	page, err := ms.pf.GetPage(0)
	if err != nil {
		return metadata{}, err
	}
	return decodeMetadata(page)
}

func (ms *metadataStore) save(m metadata) error {
	return ms.pf.SetPage(0, m.encode())
}

func (ms *metadataStore) flush() error {
	return ms.pf.Flush()
}

func (ms *metadataStore) close() error {
	return ms.pf.Close()
}
