package btreeindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeFindEqual(t *testing.T) {
	n := newEmptyNode(0)
	n.insertSorted(cell{Key: 10, Child: noIndex})
	n.insertSorted(cell{Key: 30, Child: noIndex})
	n.insertSorted(cell{Key: 20, Child: noIndex})

	i, ok := n.findEqual(20)
	require.True(t, ok)
	assert.Equal(t, int64(20), n.cells[i].Key)

	_, ok = n.findEqual(25)
	assert.False(t, ok)
}

func TestNodeChildForBoundaries(t *testing.T) {
	// interior node: sentinel -> 100, cell(10)->101, cell(20)->102, cell(30)->103
	n := newEmptyNode(0)
	n.sentinel.Child = 100
	n.insertSorted(cell{Key: 10, Child: 101})
	n.insertSorted(cell{Key: 20, Child: 102})
	n.insertSorted(cell{Key: 30, Child: 103})

	assert.Equal(t, int64(100), n.childFor(5), "below the first cell descends via the sentinel")
	assert.Equal(t, int64(101), n.childFor(15), "between cell 10 and cell 20 descends via cell 10's child")
	assert.Equal(t, int64(102), n.childFor(25))
	assert.Equal(t, int64(103), n.childFor(35), "above the last cell descends via its child")
}

func TestNodePopByKeyMissing(t *testing.T) {
	n := newEmptyNode(0)
	n.insertSorted(cell{Key: 10})
	_, err := n.popByKey(99)
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestNodeEncodeDecodeRoundTrip(t *testing.T) {
	d := 2
	n := newEmptyNode(3)
	n.parent = 1
	n.leaf = true
	n.sentinel.Child = noIndex
	n.insertSorted(cell{Key: 5, Page: 1, Offset: 2, Child: noIndex})
	n.insertSorted(cell{Key: 15, Page: 1, Offset: 3, Child: noIndex})

	page := make([]byte, encodedNodeSize(d))
	require.NoError(t, n.encode(d, page))

	got, err := decodeNode(d, page)
	require.NoError(t, err)
	assert.Equal(t, n.index, got.index)
	assert.Equal(t, n.parent, got.parent)
	assert.Equal(t, n.leaf, got.leaf)
	assert.Equal(t, n.cells, got.cells)
}

func TestNodeEncodeOverflowRejected(t *testing.T) {
	d := 2
	n := newEmptyNode(0)
	for i := 0; i < 2*d+2; i++ {
		n.cells = append(n.cells, cell{Key: int64(i)})
	}
	page := make([]byte, encodedNodeSize(d))
	err := n.encode(d, page)
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestPositionOfAndSiblingShape(t *testing.T) {
	parent := newEmptyNode(0)
	parent.sentinel.Child = 1
	parent.insertSorted(cell{Key: 10, Child: 2})
	parent.insertSorted(cell{Key: 20, Child: 3})

	pos, ok := parent.positionOf(1)
	require.True(t, ok)
	assert.Equal(t, -1, pos)

	pos, ok = parent.positionOf(2)
	require.True(t, ok)
	assert.Equal(t, 0, pos)
	assert.Equal(t, int64(1), parent.childAt(pos-1), "left neighbor of child 2 is the sentinel's child")
	assert.Equal(t, int64(3), parent.childAt(pos+1), "right neighbor of child 2 is cell 20's child")

	_, ok = parent.positionOf(999)
	assert.False(t, ok)
}
