package btreeindex

import (
	"encoding/binary"
	"path/filepath"
	"testing"

	"sbdbtree/src/record"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// valueRecord is a minimal fixed-size record.Record used only by
// these tests, wrapping a single int64.
type valueRecord struct {
	v int64
}

func (r *valueRecord) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(r.v))
	return buf, nil
}

func (r *valueRecord) UnmarshalBinary(data []byte) error {
	r.v = int64(binary.LittleEndian.Uint64(data))
	return nil
}

func (r *valueRecord) Size() int { return 8 }

func testLogger(t *testing.T) *zap.SugaredLogger {
	t.Helper()
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)
	return logger.Sugar()
}

func openTestTree(t *testing.T, dir string) *Tree {
	t.Helper()
	tr, err := Open(dir, "idx", 2, 8, 64, testLogger(t))
	require.NoError(t, err)
	return tr
}

func mustSet(t *testing.T, tr *Tree, key int64) {
	t.Helper()
	require.NoError(t, tr.Set(key, &valueRecord{v: key}))
}

func mustGet(t *testing.T, tr *Tree, key int64) int64 {
	t.Helper()
	var rec valueRecord
	found, err := tr.Get(key, &rec)
	require.NoError(t, err)
	require.True(t, found, "key %d should be present", key)
	return rec.v
}

// Three keys fit in the root leaf without any restructuring.
func TestNoSplitInsertion(t *testing.T) {
	tr := openTestTree(t, t.TempDir())
	for _, k := range []int64{10, 20, 30} {
		mustSet(t, tr, k)
	}
	require.Equal(t, int64(1), tr.m.height)
	require.Equal(t, int64(1), tr.m.nodeCount)
	root, err := tr.nodes.get(tr.m.root)
	require.NoError(t, err)
	require.Equal(t, 3, root.size())
	require.Equal(t, int64(3), tr.m.elementCount)
}

// The 5th insert overflows the root with no sibling available,
// forcing a split into a new root and two leaves.
func TestRootSplit(t *testing.T) {
	tr := openTestTree(t, t.TempDir())
	for _, k := range []int64{10, 20, 30, 40, 50} {
		mustSet(t, tr, k)
	}
	require.Equal(t, int64(2), tr.m.height)
	require.Equal(t, int64(3), tr.m.nodeCount)

	root, err := tr.nodes.get(tr.m.root)
	require.NoError(t, err)
	require.False(t, root.leaf)
	require.Equal(t, 1, root.size())
	require.Equal(t, int64(30), root.cells[0].Key)

	left, err := tr.nodes.get(root.sentinel.Child)
	require.NoError(t, err)
	require.Equal(t, []int64{10, 20}, keysOf(left))

	right, err := tr.nodes.get(root.cells[0].Child)
	require.NoError(t, err)
	require.Equal(t, []int64{40, 50}, keysOf(right))
	verifyTreeInvariants(t, tr)
}

func keysOf(n *node) []int64 {
	out := make([]int64, len(n.cells))
	for i, c := range n.cells {
		out[i] = c.Key
	}
	return out
}

// Compensation avoids a split when a sibling has room.
func TestCompensationAvoidsSplit(t *testing.T) {
	tr := openTestTree(t, t.TempDir())
	for _, k := range []int64{10, 20, 30, 40, 50} {
		mustSet(t, tr, k)
	}
	mustSet(t, tr, 5) // left leaf -> [5,10,20], size 3, no restructuring needed
	require.Equal(t, int64(3), tr.m.nodeCount)

	mustSet(t, tr, 6)
	mustSet(t, tr, 7) // left leaf would overflow to 5; compensation should kick in

	require.Equal(t, int64(3), tr.m.nodeCount, "compensation must not allocate a new node")
	require.Equal(t, int64(2), tr.m.height, "compensation must not change height")

	root, err := tr.nodes.get(tr.m.root)
	require.NoError(t, err)
	left, err := tr.nodes.get(root.sentinel.Child)
	require.NoError(t, err)
	right, err := tr.nodes.get(root.cells[0].Child)
	require.NoError(t, err)
	require.Equal(t, 8, left.size()+right.size()+root.size(), "all 8 keys accounted for (7 leaf cells + 1 separator)")
	require.Equal(t, []int64{5, 6, 7}, keysOf(left))
	require.Equal(t, int64(10), root.cells[0].Key, "rotation pulls the separator down and a leaf key up")
	require.Equal(t, []int64{20, 30, 40, 50}, keysOf(right))

	for _, k := range []int64{5, 6, 7, 10, 20, 30, 40, 50} {
		require.Equal(t, k, mustGet(t, tr, k))
	}
	verifyTreeInvariants(t, tr)
}

// Deleting below minimum occupancy merges the leaves and shrinks the
// height back to 1.
func TestDeleteWithMergeShrinksHeight(t *testing.T) {
	tr := openTestTree(t, t.TempDir())
	for _, k := range []int64{10, 20, 30, 40, 50} {
		mustSet(t, tr, k)
	}
	require.NoError(t, tr.Delete(10))
	require.NoError(t, tr.Delete(20))

	require.Equal(t, int64(1), tr.m.height)
	require.Equal(t, int64(3), tr.m.elementCount)

	root, err := tr.nodes.get(tr.m.root)
	require.NoError(t, err)
	require.True(t, root.leaf)
	require.Equal(t, []int64{30, 40, 50}, keysOf(root))
	verifyTreeInvariants(t, tr)
}

// Updating an existing key overwrites in place: no duplicate entry,
// no second element-count bump.
func TestUpdateInPlace(t *testing.T) {
	tr := openTestTree(t, t.TempDir())
	mustSet(t, tr, 7)
	before := tr.m.elementCount
	require.NoError(t, tr.Set(7, &valueRecord{v: 999}))
	require.Equal(t, before, tr.m.elementCount)
	require.Equal(t, int64(999), mustGet(t, tr, 7))
}

// A flushed tree survives close and reopen with identical contents
// and metadata.
func TestPersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	tr := openTestTree(t, dir)
	for k := int64(1); k <= 100; k++ {
		mustSet(t, tr, k)
	}
	require.NoError(t, tr.Flush())
	require.NoError(t, tr.Close())

	reopened, err := Open(dir, "idx", 2, 8, 64, testLogger(t))
	require.NoError(t, err)
	defer reopened.Close()

	require.Equal(t, int64(100), reopened.m.elementCount)
	for k := int64(1); k <= 100; k++ {
		require.Equal(t, k, mustGet(t, reopened, k))
	}
	var rec valueRecord
	found, err := reopened.Get(101, &rec)
	require.NoError(t, err)
	require.False(t, found)
	verifyTreeInvariants(t, reopened)
}

// verifyTreeInvariants walks the whole structure checking the
// between-operations invariants: strictly increasing in-order keys,
// uniform leaf depth equal to the recorded height, d..2d occupancy on
// every non-root node, correct parent pointers, and an element count
// matching the number of live cells.
func verifyTreeInvariants(t *testing.T, tr *Tree) {
	t.Helper()
	count := 0
	var last *int64
	var visit func(idx, parent, depth int64)
	visit = func(idx, parent, depth int64) {
		n, err := tr.nodes.get(idx)
		require.NoError(t, err)
		require.Equal(t, idx, n.index, "node %d knows its own index", idx)
		require.Equal(t, parent, n.parent, "parent pointer of node %d", idx)
		if idx != tr.m.root {
			require.GreaterOrEqual(t, n.size(), tr.d, "occupancy of node %d", idx)
		}
		require.LessOrEqual(t, n.size(), 2*tr.d, "occupancy of node %d", idx)
		if n.leaf {
			require.EqualValues(t, tr.m.height, depth, "depth of leaf %d", idx)
			require.Equal(t, noIndex, n.sentinel.Child, "leaf %d has no subtrees", idx)
		} else {
			require.NotEqual(t, noIndex, n.sentinel.Child, "interior node %d has a leftmost subtree", idx)
			visit(n.sentinel.Child, idx, depth+1)
		}
		for _, c := range n.cells {
			if last != nil {
				require.Greater(t, c.Key, *last, "in-order keys strictly increasing at node %d", idx)
			}
			k := c.Key
			last = &k
			count++
			if n.leaf {
				require.Equal(t, noIndex, c.Child, "leaf %d cell has no child", idx)
			} else {
				require.NotEqual(t, noIndex, c.Child, "interior node %d cell has a child", idx)
				visit(c.Child, idx, depth+1)
			}
		}
	}
	visit(tr.m.root, noIndex, 1)
	require.EqualValues(t, tr.m.elementCount, count, "element count matches live cells")
}

// Strictly ascending keys force a right-leaning split cascade.
func TestAscendingInsertCascade(t *testing.T) {
	tr := openTestTree(t, t.TempDir())
	for k := int64(1); k <= 64; k++ {
		mustSet(t, tr, k)
	}
	verifyTreeInvariants(t, tr)
	require.Greater(t, tr.m.height, int64(2))
	for k := int64(1); k <= 64; k++ {
		require.Equal(t, k, mustGet(t, tr, k))
	}
}

// Strictly descending keys force a left-leaning cascade.
func TestDescendingInsertCascade(t *testing.T) {
	tr := openTestTree(t, t.TempDir())
	for k := int64(64); k >= 1; k-- {
		mustSet(t, tr, k)
	}
	verifyTreeInvariants(t, tr)
	for k := int64(1); k <= 64; k++ {
		require.Equal(t, k, mustGet(t, tr, k))
	}
}

// Deleting down to a single element must collapse the tree back to a
// one-node, height-1 leaf root.
func TestDeleteToSingleElement(t *testing.T) {
	tr := openTestTree(t, t.TempDir())
	for k := int64(1); k <= 32; k++ {
		mustSet(t, tr, k)
	}
	for k := int64(1); k <= 31; k++ {
		require.NoError(t, tr.Delete(k))
		verifyTreeInvariants(t, tr)
	}
	require.Equal(t, int64(1), tr.m.height)
	require.Equal(t, int64(1), tr.m.elementCount)
	root, err := tr.nodes.get(tr.m.root)
	require.NoError(t, err)
	require.True(t, root.leaf)
	require.Equal(t, []int64{32}, keysOf(root))
	require.Equal(t, int64(32), mustGet(t, tr, 32))
}

// Interleaved sets and deletes against a model map, exercising
// interior-node deletion (predecessor swap) and repeated
// grow/shrink cycles.
func TestMixedOperationsMatchModel(t *testing.T) {
	tr := openTestTree(t, t.TempDir())
	model := map[int64]int64{}

	// Deterministic pseudo-random walk over a small key space so the
	// same keys are hit by sets and deletes repeatedly.
	state := int64(12345)
	next := func(mod int64) int64 {
		state = (state*1103515245 + 12347) % 2147483647
		return state % mod
	}
	for i := 0; i < 500; i++ {
		key := next(64)
		if next(3) == 0 {
			if _, ok := model[key]; ok {
				require.NoError(t, tr.Delete(key))
				delete(model, key)
			} else {
				require.ErrorIs(t, tr.Delete(key), ErrKeyNotFound)
			}
		} else {
			val := next(100000)
			require.NoError(t, tr.Set(key, &valueRecord{v: val}))
			model[key] = val
		}
	}

	verifyTreeInvariants(t, tr)
	require.EqualValues(t, len(model), tr.m.elementCount)
	for key, want := range model {
		require.Equal(t, want, mustGet(t, tr, key))
	}
	var rec valueRecord
	for key := int64(0); key < 64; key++ {
		if _, ok := model[key]; ok {
			continue
		}
		found, err := tr.Get(key, &rec)
		require.NoError(t, err)
		require.False(t, found, "key %d was deleted", key)
	}
}

// A net-effect sequence survives flush, close, and reopen unchanged.
func TestReopenAfterMixedOperations(t *testing.T) {
	dir := t.TempDir()
	tr := openTestTree(t, dir)
	for k := int64(1); k <= 40; k++ {
		mustSet(t, tr, k)
	}
	for k := int64(1); k <= 40; k += 2 {
		require.NoError(t, tr.Delete(k))
	}
	require.NoError(t, tr.Set(2, &valueRecord{v: 222}))
	require.NoError(t, tr.Flush())
	require.NoError(t, tr.Close())

	reopened, err := Open(dir, "idx", 2, 8, 64, testLogger(t))
	require.NoError(t, err)
	defer reopened.Close()

	verifyTreeInvariants(t, reopened)
	require.Equal(t, int64(222), mustGet(t, reopened, 2))
	for k := int64(4); k <= 40; k += 2 {
		require.Equal(t, k, mustGet(t, reopened, k))
	}
	var rec valueRecord
	for k := int64(1); k <= 40; k += 2 {
		found, err := reopened.Get(k, &rec)
		require.NoError(t, err)
		require.False(t, found)
	}
}

func TestDeleteMissingKey(t *testing.T) {
	tr := openTestTree(t, t.TempDir())
	mustSet(t, tr, 1)
	err := tr.Delete(42)
	require.ErrorIs(t, err, ErrKeyNotFound)
	require.Equal(t, int64(1), tr.m.elementCount)
}

func TestPrintAllInOrder(t *testing.T) {
	tr := openTestTree(t, t.TempDir())
	keys := []int64{50, 10, 40, 20, 30, 5, 45}
	for _, k := range keys {
		mustSet(t, tr, k)
	}
	var seen []int64
	err := tr.PrintAll(
		func() record.Record { return &valueRecord{} },
		func(key int64, rec record.Record) error {
			seen = append(seen, key)
			return nil
		},
	)
	require.NoError(t, err)
	require.Equal(t, []int64{5, 10, 20, 30, 40, 45, 50}, seen)
}

func TestOpenUsesSeparateFiles(t *testing.T) {
	dir := t.TempDir()
	tr := openTestTree(t, dir)
	mustSet(t, tr, 1)
	require.NoError(t, tr.Flush())
	require.NoError(t, tr.Close())

	require.FileExists(t, filepath.Join(dir, "idx.meta"))
	require.FileExists(t, filepath.Join(dir, "idx.btree"))
	require.FileExists(t, filepath.Join(dir, "idx.data"))
}
