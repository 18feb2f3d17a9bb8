package btreeindex

// noIndex is the sentinel for "no parent" / "no child". It is distinct
// from any index a node or page can legitimately hold.
const noIndex int64 = -1

// cellSize is the encoded size, in bytes, of a single cell: four
// little-endian int64 fields (key, page, offset, child). The byte order
// is fixed and does not follow the host's.
const cellSize = 4 * 8

// cell is the atomic unit inside a node: a key with the (page, offset)
// coordinate of its record in the heap file, plus a child pointer to
// the subtree of keys strictly between this cell's key and the next
// cell's key. The left-sentinel cell of a node reuses this type with
// Key/Page/Offset unused and Child holding the leftmost subtree
// pointer.
type cell struct {
	Key    int64
	Page   int64
	Offset int64
	Child  int64
}

func emptyCell() cell {
	return cell{Child: noIndex}
}

// swapCellValues exchanges key/page/offset between two cells, leaving
// their Child fields untouched. Used by compensation and merge to move
// a separator between a node and its parent without touching subtree
// pointers.
func swapCellValues(a, b *cell) {
	a.Key, b.Key = b.Key, a.Key
	a.Page, b.Page = b.Page, a.Page
	a.Offset, b.Offset = b.Offset, a.Offset
}

// swapChildren exchanges only the Child pointers of two cells.
func swapChildren(a, b *cell) {
	a.Child, b.Child = b.Child, a.Child
}
