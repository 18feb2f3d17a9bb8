package btreeindex

import (
	"fmt"

	"sbdbtree/src/storage"

	"go.uber.org/zap"
)

// nodeStore wraps a storage.PageFile whose page size equals a single
// serialized node, and layers an in-memory, identity-preserving cache
// on top of it. The engine mutates nodes through the cached *node
// pointer; nothing is written back to disk until flush (or an explicit
// set, used by restructuring code that wants to write through).
type nodeStore struct {
	pf   *storage.PageFile
	d    int
	next int64 // mirrors metadata[6], next free node index

	cache  map[int64]*node
	logger *zap.SugaredLogger
}

func openNodeStore(path string, d int, logger *zap.SugaredLogger) (*nodeStore, error) {
	pf, err := storage.Open(path, encodedNodeSize(d), logger)
	if err != nil {
		return nil, fmt.Errorf("btreeindex: open node file %s: %w", path, err)
	}
	return &nodeStore{
		pf:     pf,
		d:      d,
		cache:  make(map[int64]*node),
		logger: logger,
	}, nil
}

// get returns the node at index, preserving identity across calls: two
// get calls for the same index between flushes return the same *node,
// so that restructuring code can hand a node to a sub-routine without
// reloading it.
func (ns *nodeStore) get(index int64) (*node, error) {
	if n, ok := ns.cache[index]; ok {
		return n, nil
	}
	page, err := ns.pf.GetPage(int(index))
	if err != nil {
		return nil, fmt.Errorf("btreeindex: read node %d: %w", index, err)
	}
	n, err := decodeNode(ns.d, page)
	if err != nil {
		return nil, fmt.Errorf("btreeindex: decode node %d: %w", index, err)
	}
	ns.cache[index] = n
	return n, nil
}

// set serializes node to its page immediately and evicts it from
// cache; the serialized form becomes the source of truth. The engine
// does not call this in the common path, which mutates cached nodes
// and writes them back at flush. It exists for explicit write-through.
func (ns *nodeStore) set(index int64, n *node) error {
	page := make([]byte, ns.pf.PageSize())
	if err := n.encode(ns.d, page); err != nil {
		return err
	}
	if err := ns.pf.SetPage(int(index), page); err != nil {
		return fmt.Errorf("btreeindex: write node %d: %w", index, err)
	}
	delete(ns.cache, index)
	return nil
}

func (ns *nodeStore) addToCache(n *node) {
	ns.cache[n.index] = n
}

func (ns *nodeStore) removeFromCache(index int64) {
	delete(ns.cache, index)
}

// newNode allocates a fresh node at the next free index, preinitialized
// as an empty leaf-capable layout (leaf flag defaults false; callers
// set it explicitly), and places it in cache.
func (ns *nodeStore) newNode() *node {
	idx := ns.next
	ns.next++
	n := newEmptyNode(idx)
	ns.cache[idx] = n
	return n
}

// flush serializes every cached node, flushes the underlying file, then
// clears the cache.
func (ns *nodeStore) flush() error {
	for index, n := range ns.cache {
		page := make([]byte, ns.pf.PageSize())
		if err := n.encode(ns.d, page); err != nil {
			return err
		}
		if err := ns.pf.SetPage(int(index), page); err != nil {
			return fmt.Errorf("btreeindex: flush node %d: %w", index, err)
		}
	}
	if err := ns.pf.Flush(); err != nil {
		return err
	}
	ns.cache = make(map[int64]*node)
	return nil
}

func (ns *nodeStore) clear() error {
	if err := ns.pf.Clear(); err != nil {
		return err
	}
	ns.cache = make(map[int64]*node)
	ns.next = 0
	return nil
}

func (ns *nodeStore) close() error {
	return ns.pf.Close()
}
