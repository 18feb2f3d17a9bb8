package btreeindex

import (
	"fmt"
	"path/filepath"

	"sbdbtree/src/record"

	"go.uber.org/zap"
)

// Tree is the B-tree engine: descent, insertion with
// compensation-or-split, deletion with compensation-or-merge, and
// metadata bookkeeping. A Tree is not safe for concurrent use; callers
// own it from a single goroutine.
type Tree struct {
	d       int
	nodes   *nodeStore
	records *recordStore
	meta    *metadataStore
	m       metadata
	logger  *zap.SugaredLogger
}

// Open opens or creates the three files backing an index named name
// under dir: <name>.btree (nodes), <name>.data (records), <name>.meta
// (the 7-integer metadata page). recordSize is the fixed on-disk size
// of every record; dataPageSize governs how many records are packed
// per record-file page.
func Open(dir, name string, d, recordSize, dataPageSize int, logger *zap.SugaredLogger) (*Tree, error) {
	if d < 1 {
		return nil, fmt.Errorf("btreeindex: order d must be >= 1, got %d", d)
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	metaPath := filepath.Join(dir, name+".meta")
	nodePath := filepath.Join(dir, name+".btree")
	dataPath := filepath.Join(dir, name+".data")

	ms, err := openMetadataStore(metaPath, logger)
	if err != nil {
		return nil, err
	}
	ns, err := openNodeStore(nodePath, d, logger)
	if err != nil {
		return nil, err
	}
	rs, err := openRecordStore(dataPath, dataPageSize, recordSize, logger)
	if err != nil {
		return nil, err
	}

	t := &Tree{d: d, nodes: ns, records: rs, meta: ms, logger: logger}

	empty, err := ms.isEmpty()
	if err != nil {
		return nil, err
	}
	if empty {
		if err := t.createTree(); err != nil {
			return nil, err
		}
		logger.Infow("btreeindex: initialized new tree", "name", name, "order", d)
	} else {
		m, err := ms.load()
		if err != nil {
			return nil, err
		}
		t.m = m
		ns.next = m.btreeNextNode
		rs.nextPage = m.dataNextPage
		rs.nextOffset = m.dataNextOffset
		logger.Infow("btreeindex: opened existing tree", "name", name, "elements", m.elementCount, "height", m.height)
	}
	return t, nil
}

// createTree initializes a brand-new tree: zero metadata, clear both
// data files, allocate the root as an empty leaf.
func (t *Tree) createTree() error {
	t.m = metadata{}
	if err := t.nodes.clear(); err != nil {
		return err
	}
	if err := t.records.clear(); err != nil {
		return err
	}
	root := t.nodes.newNode()
	root.leaf = true
	t.m.nodeCount = 1
	t.m.height = 1
	t.m.root = root.index
	return nil
}

// allocNode allocates a fresh node and keeps metadata.nodeCount in
// sync.
func (t *Tree) allocNode() *node {
	t.m.nodeCount++
	return t.nodes.newNode()
}

// locate descends from the root, returning the node that either holds
// key or, if absent, the leaf where it would be inserted.
func (t *Tree) locate(key int64) (*node, bool, error) {
	n, err := t.nodes.get(t.m.root)
	if err != nil {
		return nil, false, err
	}
	for {
		if _, ok := n.findEqual(key); ok {
			return n, true, nil
		}
		child := n.childFor(key)
		if child == noIndex {
			return n, false, nil
		}
		next, err := t.nodes.get(child)
		if err != nil {
			return nil, false, err
		}
		n = next
	}
}

// Get performs a point lookup, unmarshaling the stored record into
// rec. It returns false if key is absent.
func (t *Tree) Get(key int64, rec record.Record) (bool, error) {
	n, found, err := t.locate(key)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	i, _ := n.findEqual(key)
	c := n.cells[i]
	buf, err := t.records.get(c.Page, c.Offset)
	if err != nil {
		return false, err
	}
	if err := rec.UnmarshalBinary(buf); err != nil {
		return false, fmt.Errorf("btreeindex: unmarshal record for key %d: %w", key, err)
	}
	return true, nil
}

// Set inserts rec under key, or overwrites the record in place if key
// is already present.
func (t *Tree) Set(key int64, rec record.Record) error {
	n, found, err := t.locate(key)
	if err != nil {
		return err
	}
	data, err := rec.MarshalBinary()
	if err != nil {
		return fmt.Errorf("btreeindex: marshal record for key %d: %w", key, err)
	}
	if found {
		i, _ := n.findEqual(key)
		c := n.cells[i]
		return t.records.set(c.Page, c.Offset, data)
	}
	page, offset, err := t.records.insert(data)
	if err != nil {
		return err
	}
	c := cell{Key: key, Page: page, Offset: offset, Child: noIndex}
	if err := t.insertCellIntoNode(c, n); err != nil {
		return err
	}
	t.m.elementCount++
	return nil
}

// insertCellIntoNode inserts c in key order into n, then resolves any
// resulting overflow via compensation, falling back to split.
func (t *Tree) insertCellIntoNode(c cell, n *node) error {
	if n.size() > 2*t.d {
		return fmt.Errorf("btreeindex: node %d already overflowed before insert: %w", n.index, ErrCorrupt)
	}
	n.insertSorted(c)
	if n.size() > 2*t.d {
		ok, err := t.compensationPhaseOne(n)
		if err != nil {
			return err
		}
		if !ok {
			t.logger.Debugw("btreeindex: splitting node", "node", n.index)
			return t.splitNode(n)
		}
		t.logger.Debugw("btreeindex: compensated overflow", "node", n.index)
	}
	return nil
}

// compensationPhaseOne looks for a sibling of n that can absorb or
// donate cells so both land within normal occupancy. Shared by the
// insertion-overflow path and the deletion-underflow path: a pair
// qualifies when the combined size fits both nodes after
// redistribution, i.e. lies in [2d, 4d].
func (t *Tree) compensationPhaseOne(n *node) (bool, error) {
	sibs, err := t.siblings(n)
	if err != nil {
		return false, err
	}
	for _, idx := range sibs {
		if idx == noIndex {
			continue
		}
		n2, err := t.nodes.get(idx)
		if err != nil {
			return false, err
		}
		total := n.size() + n2.size()
		if total >= 2*t.d && total <= 4*t.d {
			if err := t.compensationPhaseTwo(n, n2); err != nil {
				return false, err
			}
			return true, nil
		}
	}
	return false, nil
}

// normalizeSiblingOrder orders node1/node2 so node1 holds the lesser
// keys: by comparing first keys when both sides are non-empty, or by
// parent-array position when one side is empty.
func (t *Tree) normalizeSiblingOrder(node1, node2, parent *node) (*node, *node, error) {
	if node1.size() > 0 && node2.size() > 0 {
		if node1.cells[0].Key > node2.cells[0].Key {
			node1, node2 = node2, node1
		}
		return node1, node2, nil
	}
	p1, ok1 := parent.positionOf(node1.index)
	p2, ok2 := parent.positionOf(node2.index)
	if !ok1 || !ok2 {
		return nil, nil, fmt.Errorf("btreeindex: siblings %d/%d not linked from parent %d: %w", node1.index, node2.index, parent.index, ErrCorrupt)
	}
	if p1 > p2 {
		node1, node2 = node2, node1
	}
	return node1, node2, nil
}

// reparentChildren updates the parent pointer of every real child
// referenced by n, including the left-sentinel's.
func (t *Tree) reparentChildren(n *node) error {
	if n.sentinel.Child != noIndex {
		child, err := t.nodes.get(n.sentinel.Child)
		if err != nil {
			return err
		}
		child.parent = n.index
	}
	for _, c := range n.cells {
		if c.Child == noIndex {
			continue
		}
		child, err := t.nodes.get(c.Child)
		if err != nil {
			return err
		}
		child.parent = n.index
	}
	return nil
}

// compensationPhaseTwo rotates cells between node1 and node2 through
// their shared parent separator until both are as close to balanced as
// the combined size allows.
//
// The separator is the parent cell whose Child is node2 (after
// normalization): its key sits between node1's greatest key and
// node2's least. Each rotation step swaps a border cell's values with
// the separator and its child pointer with node2's left-sentinel, so
// the subtree between the two moving keys changes sides along with
// them and the ordering invariant holds without any re-sort.
func (t *Tree) compensationPhaseTwo(node1, node2 *node) error {
	if node1.size() == node2.size() {
		return nil
	}
	parent, err := t.nodes.get(node1.parent)
	if err != nil {
		return err
	}
	targetLength := (node1.size() + node2.size()) / 2
	if targetLength > 2*t.d {
		return fmt.Errorf("btreeindex: compensation target %d exceeds capacity: %w", targetLength, ErrCorrupt)
	}

	node1, node2, err = t.normalizeSiblingOrder(node1, node2, parent)
	if err != nil {
		return err
	}

	parentCell, ok := parent.cellByChild(node2.index)
	if !ok {
		return fmt.Errorf("btreeindex: parent %d has no separator for child %d: %w", parent.index, node2.index, ErrCorrupt)
	}

	if node1.size() > node2.size() {
		// Right rotation: node1's last cell moves to the front of node2.
		for node1.size() != targetLength && node1.size() > 1 {
			last := len(node1.cells) - 1
			moved := node1.cells[last]
			node1.cells = node1.cells[:last]
			swapChildren(&moved, &node2.sentinel)
			swapCellValues(&moved, parentCell)
			node2.cells = append([]cell{moved}, node2.cells...)
		}
	} else {
		// Left rotation: node2's first cell moves to the end of node1.
		for node1.size() != targetLength && node2.size() > 1 {
			moved := node2.cells[0]
			node2.cells = node2.cells[1:]
			swapCellValues(parentCell, &moved)
			swapChildren(&moved, &node2.sentinel)
			node1.cells = append(node1.cells, moved)
		}
	}

	if err := t.reparentChildren(node1); err != nil {
		return err
	}
	return t.reparentChildren(node2)
}

// splitNode is called when compensation phase 1 fails to resolve an
// overflow. The center cell is promoted to the parent (or to a new
// root); the cells above it move to a freshly allocated node whose
// left-sentinel takes over the center cell's old subtree, and the
// center cell's child is re-pointed at the new node.
func (t *Tree) splitNode(node *node) error {
	target := len(node.cells) / 2
	center := node.cells[target]
	right := append([]cell(nil), node.cells[target+1:]...)
	node.cells = node.cells[:target]

	newNode := t.allocNode()
	newNode.leaf = node.leaf
	newNode.sentinel.Child = center.Child
	newNode.cells = right
	if err := t.reparentChildren(newNode); err != nil {
		return err
	}
	center.Child = newNode.index

	if node.parent == noIndex {
		newRoot := t.allocNode()
		newRoot.leaf = false
		newRoot.sentinel.Child = node.index
		newRoot.cells = []cell{center}
		node.parent = newRoot.index
		newNode.parent = newRoot.index
		t.m.root = newRoot.index
		t.m.height++
		return nil
	}

	newNode.parent = node.parent
	parent, err := t.nodes.get(node.parent)
	if err != nil {
		return err
	}
	return t.insertCellIntoNode(center, parent)
}

// Delete removes key, returning ErrKeyNotFound if it is absent (the
// tree is left unchanged in that case).
func (t *Tree) Delete(key int64) error {
	n, found, err := t.locate(key)
	if err != nil {
		return err
	}
	if !found {
		return ErrKeyNotFound
	}
	if err := t.deleteKeyFromNode(key, n); err != nil {
		return err
	}
	t.m.elementCount--
	return nil
}

// deleteKeyFromNode removes key from n. For a leaf, it pops the cell
// directly. For an interior node, it swaps the cell's values with its
// in-order predecessor (the last cell of the leaf reached by entering
// the subtree just left of the cell and following rightmost child
// pointers all the way down), then recurses the deletion into that
// leaf.
func (t *Tree) deleteKeyFromNode(key int64, n *node) error {
	if n.leaf {
		if _, err := n.popByKey(key); err != nil {
			return err
		}
		return t.fixNodeAfterDeleting(n)
	}

	i, ok := n.findEqual(key)
	if !ok {
		return fmt.Errorf("btreeindex: delete descent lost key %d at node %d: %w", key, n.index, ErrCorrupt)
	}
	target := &n.cells[i]
	predRoot := n.sentinel.Child
	if i > 0 {
		predRoot = n.cells[i-1].Child
	}
	child, err := t.nodes.get(predRoot)
	if err != nil {
		return err
	}
	for !child.leaf {
		rightmost := child.cells[len(child.cells)-1].Child
		child, err = t.nodes.get(rightmost)
		if err != nil {
			return err
		}
	}
	last := &child.cells[len(child.cells)-1]
	swapCellValues(target, last)
	return t.deleteKeyFromNode(key, child)
}

// fixNodeAfterDeleting restores n's occupancy after a pop, sharing
// with a sibling if possible, else merging.
func (t *Tree) fixNodeAfterDeleting(n *node) error {
	if n.index == t.m.root {
		return nil
	}
	if n.size() >= t.d {
		return nil
	}
	ok, err := t.compensationPhaseOne(n)
	if err != nil {
		return err
	}
	if !ok {
		return t.rebalanceAfterDeleting(n)
	}
	return nil
}

// rebalanceAfterDeleting looks for a sibling with which n's combined
// size falls under 2d, the merge threshold.
func (t *Tree) rebalanceAfterDeleting(n *node) error {
	sibs, err := t.siblings(n)
	if err != nil {
		return err
	}
	for _, idx := range sibs {
		if idx == noIndex {
			continue
		}
		n2, err := t.nodes.get(idx)
		if err != nil {
			return err
		}
		if n.size()+n2.size() < 2*t.d {
			t.logger.Debugw("btreeindex: merging nodes", "node1", n.index, "node2", n2.index)
			return t.mergeNodesAfterDeleting(n, n2)
		}
	}
	return nil
}

// mergeNodesAfterDeleting folds node2 into node1: the parent separator
// (the cell whose Child is node2) comes down as node1's new last cell,
// carrying node2's old leftmost subtree as its child, and node2's
// cells follow. The separator is removed from the parent; the pointer
// to node1 below it is untouched, so the parent keeps exactly one
// reference to the merged node.
func (t *Tree) mergeNodesAfterDeleting(node1, node2 *node) error {
	if node1.parent == noIndex || node1.parent != node2.parent {
		return fmt.Errorf("btreeindex: cannot merge nodes %d/%d with no shared parent: %w", node1.index, node2.index, ErrCorrupt)
	}
	parent, err := t.nodes.get(node1.parent)
	if err != nil {
		return err
	}
	node1, node2, err = t.normalizeSiblingOrder(node1, node2, parent)
	if err != nil {
		return err
	}

	sep, ok := parent.positionOf(node2.index)
	if !ok || sep < 0 {
		return fmt.Errorf("btreeindex: parent %d has no separator for child %d: %w", parent.index, node2.index, ErrCorrupt)
	}
	sepCell := parent.cells[sep]
	parent.cells = append(parent.cells[:sep], parent.cells[sep+1:]...)

	node1.cells = append(node1.cells, cell{
		Key:    sepCell.Key,
		Page:   sepCell.Page,
		Offset: sepCell.Offset,
		Child:  node2.sentinel.Child,
	})
	node1.cells = append(node1.cells, node2.cells...)
	node2.cells = nil
	if err := t.reparentChildren(node1); err != nil {
		return err
	}
	t.nodes.removeFromCache(node2.index)

	if err := t.fixNodeAfterDeleting(parent); err != nil {
		return err
	}

	if parent.index == t.m.root && parent.size() == 0 {
		t.m.root = node1.index
		t.nodes.removeFromCache(parent.index)
		t.m.height--
		node1.parent = noIndex
		node1.leaf = t.m.height == 1
	}
	return nil
}

// PrintAll walks every cell in key order, unmarshaling each record
// with newRecord and passing it to visit.
func (t *Tree) PrintAll(newRecord func() record.Record, visit func(key int64, rec record.Record) error) error {
	return t.walkInOrder(t.m.root, newRecord, visit)
}

func (t *Tree) walkInOrder(idx int64, newRecord func() record.Record, visit func(int64, record.Record) error) error {
	if idx == noIndex {
		return nil
	}
	n, err := t.nodes.get(idx)
	if err != nil {
		return err
	}
	if err := t.walkInOrder(n.sentinel.Child, newRecord, visit); err != nil {
		return err
	}
	for _, c := range n.cells {
		buf, err := t.records.get(c.Page, c.Offset)
		if err != nil {
			return err
		}
		rec := newRecord()
		if err := rec.UnmarshalBinary(buf); err != nil {
			return err
		}
		if err := visit(c.Key, rec); err != nil {
			return err
		}
		if err := t.walkInOrder(c.Child, newRecord, visit); err != nil {
			return err
		}
	}
	return nil
}

// ElementCount, Height and Order expose read-only metadata for
// callers (tests, the CLI) that want to report tree shape without
// reaching into internals.
func (t *Tree) ElementCount() int64 { return t.m.elementCount }
func (t *Tree) Height() int64       { return t.m.height }
func (t *Tree) Order() int          { return t.d }

// Flush mirrors the allocation cursors into metadata, persists the
// metadata page, then flushes the node and record stores. This is the
// durability barrier: nothing written since the previous Flush is
// guaranteed on disk before it returns.
func (t *Tree) Flush() error {
	if err := t.saveMetadata(); err != nil {
		return err
	}
	if err := t.meta.flush(); err != nil {
		return err
	}
	if err := t.nodes.flush(); err != nil {
		return err
	}
	if err := t.records.flush(); err != nil {
		return err
	}
	t.logger.Infow("btreeindex: flushed tree", "elements", t.m.elementCount, "height", t.m.height, "nodes", t.m.nodeCount)
	return nil
}

func (t *Tree) saveMetadata() error {
	t.m.dataNextPage = t.records.nextPage
	t.m.dataNextOffset = t.records.nextOffset
	t.m.btreeNextNode = t.nodes.next
	return t.meta.save(t.m)
}

// Close writes the metadata page and releases the underlying file
// handles. The node and record stores are not flushed implicitly;
// callers must call Flush first to guarantee durability of the data
// itself.
func (t *Tree) Close() error {
	if err := t.saveMetadata(); err != nil {
		return err
	}
	if err := t.meta.flush(); err != nil {
		return err
	}
	if err := t.meta.close(); err != nil {
		return err
	}
	if err := t.nodes.close(); err != nil {
		return err
	}
	return t.records.close()
}
