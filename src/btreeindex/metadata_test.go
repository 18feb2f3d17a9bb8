package btreeindex

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMetadataStoreIsEmptyBeforeFirstSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idx.meta")
	ms, err := openMetadataStore(path, nil)
	require.NoError(t, err)
	defer ms.close()

	empty, err := ms.isEmpty()
	require.NoError(t, err)
	require.True(t, empty)
}

func TestMetadataStoreSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idx.meta")
	ms, err := openMetadataStore(path, nil)
	require.NoError(t, err)
	defer ms.close()

	m := metadata{
		elementCount:   42,
		nodeCount:      5,
		height:         3,
		root:           2,
		dataNextPage:   7,
		dataNextOffset: 128,
		btreeNextNode:  6,
	}
	require.NoError(t, ms.save(m))

	empty, err := ms.isEmpty()
	require.NoError(t, err)
	require.False(t, empty)

	got, err := ms.load()
	require.NoError(t, err)
	require.Equal(t, m, got)
}

func TestDecodeMetadataRejectsWrongSize(t *testing.T) {
	_, err := decodeMetadata(make([]byte, 10))
	require.Error(t, err)
}
