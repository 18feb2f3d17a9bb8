package btreeindex

import (
	"encoding/binary"
	"fmt"
)

// nodeHeaderSize is the encoded size of a node's fixed fields: index,
// parent, leaf flag, cell count: four little-endian int64s.
const nodeHeaderSize = 4 * 8

// node is an interior or leaf B-tree node, serialized into exactly one
// page. index equals the node's own page index within the node file.
//
// cells holds only the "real" cells (size() == len(cells)); the
// left-sentinel is stored separately in sentinel and is never counted
// toward the d..2d occupancy invariant. A leaf's real cells all carry
// Child == noIndex; sentinel.Child is also noIndex for a leaf.
type node struct {
	index    int64
	parent   int64
	leaf     bool
	sentinel cell
	cells    []cell
}

func newEmptyNode(index int64) *node {
	return &node{
		index:    index,
		parent:   noIndex,
		leaf:     false,
		sentinel: emptyCell(),
		cells:    nil,
	}
}

// size is the number of real cells, excluding the left-sentinel. The
// node layout invariant (d <= size <= 2d, transient overflow to 2d+1)
// is expressed in terms of this count.
func (n *node) size() int {
	return len(n.cells)
}

// findEqual returns the index of the real cell whose key equals key,
// or ok=false if none does.
func (n *node) findEqual(key int64) (idx int, ok bool) {
	for i, c := range n.cells {
		if c.Key == key {
			return i, true
		}
		if c.Key > key {
			break
		}
	}
	return -1, false
}

// childFor returns the subtree pointer that should contain key, given
// that no cell's key equals it: the Child of the last real cell whose
// key is less than key, or the left-sentinel's Child if no real cell
// qualifies. A cell's child covers the open interval between its own
// key and the next cell's key, so descent must use the predecessor
// cell's child, never the successor's.
func (n *node) childFor(key int64) int64 {
	child := n.sentinel.Child
	for _, c := range n.cells {
		if c.Key > key {
			break
		}
		child = c.Child
	}
	return child
}

// insertSorted inserts c into the real cell array in key order. The
// caller is responsible for checking/handling overflow afterward.
func (n *node) insertSorted(c cell) {
	i := 0
	for i < len(n.cells) && n.cells[i].Key < c.Key {
		i++
	}
	n.cells = append(n.cells, cell{})
	copy(n.cells[i+1:], n.cells[i:])
	n.cells[i] = c
}

// popByKey removes and returns the real cell with the given key.
func (n *node) popByKey(key int64) (cell, error) {
	i, ok := n.findEqual(key)
	if !ok {
		return cell{}, fmt.Errorf("btreeindex: pop of missing key %d in node %d: %w", key, n.index, ErrCorrupt)
	}
	c := n.cells[i]
	n.cells = append(n.cells[:i], n.cells[i+1:]...)
	return c, nil
}

// cellByChild returns the cell (sentinel included, as position -1)
// whose Child equals childIdx. ok is false if no cell points to it.
func (n *node) cellByChild(childIdx int64) (*cell, bool) {
	if n.sentinel.Child == childIdx {
		return &n.sentinel, true
	}
	for i := range n.cells {
		if n.cells[i].Child == childIdx {
			return &n.cells[i], true
		}
	}
	return nil, false
}

// positionOf returns the position of the cell whose Child equals
// childIdx: -1 for the left-sentinel, or an index into cells. ok is
// false if nothing in this node points to childIdx.
func (n *node) positionOf(childIdx int64) (pos int, ok bool) {
	if n.sentinel.Child == childIdx {
		return -1, true
	}
	for i, c := range n.cells {
		if c.Child == childIdx {
			return i, true
		}
	}
	return 0, false
}

// childAt returns the Child pointer at pos, where -1 denotes the
// left-sentinel.
func (n *node) childAt(pos int) int64 {
	if pos == -1 {
		return n.sentinel.Child
	}
	return n.cells[pos].Child
}

// encodedNodeSize returns the fixed page size needed to serialize a
// node for a tree of the given order d: the header, the sentinel cell,
// and up to the transient overflow capacity of 2d+1 real cells.
func encodedNodeSize(d int) int {
	maxRealCells := 2*d + 1
	return nodeHeaderSize + cellSize*(1+maxRealCells)
}

// encode serializes the node into a page of exactly encodedNodeSize(d)
// bytes. Unused cell slots are zeroed.
func (n *node) encode(d int, page []byte) error {
	maxRealCells := 2*d + 1
	want := encodedNodeSize(d)
	if len(page) != want {
		return fmt.Errorf("btreeindex: encode node %d into %d-byte page, want %d", n.index, len(page), want)
	}
	if len(n.cells) > maxRealCells {
		return fmt.Errorf("btreeindex: node %d has %d cells, exceeds capacity %d: %w", n.index, len(n.cells), maxRealCells, ErrCorrupt)
	}

	leafFlag := int64(0)
	if n.leaf {
		leafFlag = 1
	}
	binary.LittleEndian.PutUint64(page[0:8], uint64(n.index))
	binary.LittleEndian.PutUint64(page[8:16], uint64(n.parent))
	binary.LittleEndian.PutUint64(page[16:24], uint64(leafFlag))
	binary.LittleEndian.PutUint64(page[24:32], uint64(len(n.cells)))

	off := nodeHeaderSize
	encodeCell(page[off:off+cellSize], n.sentinel)
	off += cellSize
	for _, c := range n.cells {
		encodeCell(page[off:off+cellSize], c)
		off += cellSize
	}
	// Remaining slots stay zeroed (decode reads only the first count
	// cells, so zero padding past count is never interpreted).
	return nil
}

func encodeCell(buf []byte, c cell) {
	binary.LittleEndian.PutUint64(buf[0:8], uint64(c.Key))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(c.Page))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(c.Offset))
	binary.LittleEndian.PutUint64(buf[24:32], uint64(c.Child))
}

func decodeCell(buf []byte) cell {
	return cell{
		Key:    int64(binary.LittleEndian.Uint64(buf[0:8])),
		Page:   int64(binary.LittleEndian.Uint64(buf[8:16])),
		Offset: int64(binary.LittleEndian.Uint64(buf[16:24])),
		Child:  int64(binary.LittleEndian.Uint64(buf[24:32])),
	}
}

// decodeNode deserializes a node from a page produced by encode.
func decodeNode(d int, page []byte) (*node, error) {
	want := encodedNodeSize(d)
	if len(page) != want {
		return nil, fmt.Errorf("btreeindex: decode node from %d-byte page, want %d", len(page), want)
	}
	n := &node{}
	n.index = int64(binary.LittleEndian.Uint64(page[0:8]))
	n.parent = int64(binary.LittleEndian.Uint64(page[8:16]))
	n.leaf = binary.LittleEndian.Uint64(page[16:24]) != 0
	count := int(binary.LittleEndian.Uint64(page[24:32]))

	off := nodeHeaderSize
	n.sentinel = decodeCell(page[off : off+cellSize])
	off += cellSize

	maxRealCells := 2*d + 1
	if count < 0 || count > maxRealCells {
		return nil, fmt.Errorf("btreeindex: node %d decoded with invalid cell count %d: %w", n.index, count, ErrCorrupt)
	}
	n.cells = make([]cell, count)
	for i := 0; i < count; i++ {
		n.cells[i] = decodeCell(page[off : off+cellSize])
		off += cellSize
	}
	return n, nil
}
