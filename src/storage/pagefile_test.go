package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestFile(t *testing.T, pageSize int) *PageFile {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.pf")
	pf, err := Open(path, pageSize, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pf.Close() })
	return pf
}

func TestGetPageBeyondEOFIsZeroFilled(t *testing.T) {
	pf := openTestFile(t, 16)
	page, err := pf.GetPage(3)
	require.NoError(t, err)
	require.Len(t, page, 16)
	for _, b := range page {
		require.Zero(t, b)
	}
}

func TestSetThenGetRoundTrip(t *testing.T) {
	pf := openTestFile(t, 8)
	data := []byte("abcdefgh")
	require.NoError(t, pf.SetPage(2, data))

	got, err := pf.GetPage(2)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestSetPageWrongSizeRejected(t *testing.T) {
	pf := openTestFile(t, 8)
	err := pf.SetPage(0, []byte("short"))
	require.Error(t, err)
}

func TestClearResetsFile(t *testing.T) {
	pf := openTestFile(t, 8)
	require.NoError(t, pf.SetPage(0, []byte("12345678")))
	require.NoError(t, pf.Clear())

	count, err := pf.PageCount()
	require.NoError(t, err)
	require.Zero(t, count)

	page, err := pf.GetPage(0)
	require.NoError(t, err)
	for _, b := range page {
		require.Zero(t, b)
	}
}

func TestPageCountGrowsWithWrites(t *testing.T) {
	pf := openTestFile(t, 4)
	require.NoError(t, pf.SetPage(0, []byte("aaaa")))
	require.NoError(t, pf.SetPage(1, []byte("bbbb")))

	count, err := pf.PageCount()
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestFlushDoesNotError(t *testing.T) {
	pf := openTestFile(t, 8)
	require.NoError(t, pf.SetPage(0, []byte("12345678")))
	require.NoError(t, pf.Flush())
}
