package btreeindex

import "errors"

// Sentinel errors, wrapped at call sites with %w.
var (
	// ErrKeyNotFound is returned by Delete for a key that isn't present.
	// The tree is left unchanged.
	ErrKeyNotFound = errors.New("btreeindex: key not found")

	// ErrCorrupt marks a structural invariant violation: a merge across
	// differing parents, a cell array past its capacity, a child missing
	// from its parent's cell array. These are programmer errors and are
	// fatal; callers should discard the Tree without flushing.
	ErrCorrupt = errors.New("btreeindex: structural invariant violation")
)
