package btreeindex

import "fmt"

// siblings returns up to two neighbor child indices of n under its
// parent: the one immediately to the left and/or right of n's own
// position in the parent's cell array, sentinel included at position
// -1. A root node has no siblings. A parent with no
// real cells at all has no siblings either (can only happen
// transiently during restructuring).
func (t *Tree) siblings(n *node) ([]int64, error) {
	if n.parent == noIndex {
		return nil, nil
	}
	parent, err := t.nodes.get(n.parent)
	if err != nil {
		return nil, err
	}
	if parent.size() == 0 {
		return nil, nil
	}
	pos, ok := parent.positionOf(n.index)
	if !ok {
		return nil, fmt.Errorf("btreeindex: node %d not linked from parent %d: %w", n.index, parent.index, ErrCorrupt)
	}

	var out []int64
	if pos > -1 {
		out = append(out, parent.childAt(pos-1))
	}
	if pos < parent.size()-1 {
		out = append(out, parent.childAt(pos+1))
	}
	return out, nil
}
