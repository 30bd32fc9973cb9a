package btreeiter

// testFetcher is a minimal, static NodeFetcher for exercising Cursor against
// a hand-built tree: no splits, no cache misses, just GetNode/RootPointer
// over a fixed Children side table (mirrors node.Tree's resolution, without
// that package's mutation machinery).
type testFetcher struct {
	root     *BtreeNode
	rootLvl  int
	prefetch []Key
}

func (f *testFetcher) GetNode(parent *BtreeNode, key Key, level int, mode LockMode) (*BtreeNode, error) {
	child, ok := parent.Children[key.P]
	if !ok {
		return nil, ErrIO
	}
	return child, nil
}

func (f *testFetcher) Prefetch(parent *BtreeNode, key Key, level int) {
	f.prefetch = append(f.prefetch, key)
}

func (f *testFetcher) RootPointer(id BtreeID) (*BtreeNode, int, error) {
	return f.root, f.rootLvl, nil
}

var nextTestNodeID uint64

func freshNodeID() uint64 {
	nextTestNodeID++
	return nextTestNodeID
}

// buildTwoLevelTree assembles one interior root over len(leafKeys) leaves,
// each leaf seeded with the given keys (already in ascending order).
// Separators carry each leaf's upper bound; the last leaf is the catch-all
// for the rest of the keyspace.
func buildTwoLevelTree(leafKeys [][]uint64) (*testFetcher, []*BtreeNode) {
	var leaves []*BtreeNode
	var minKey Pos

	for i, offs := range leafKeys {
		keys := make([]Key, len(offs))
		for j, o := range offs {
			keys[j] = keyAt(o)
		}
		lo := minKey
		if i > 0 {
			lo = Successor(BtreeExtents, leaves[i-1].MaxKey())
		}
		leaf := NewBtreeNode(freshNodeID(), 0, lo, keys)
		leaves = append(leaves, leaf)
	}

	seps := make([]Key, 0, len(leaves))
	for i, leaf := range leaves {
		if i < len(leaves)-1 {
			leaf.MaxBound = leaf.MaxKey()
		}
		seps = append(seps, Key{P: leaf.MaxBound})
	}

	root := NewBtreeNode(freshNodeID(), 1, PosMin, seps)
	for i, leaf := range leaves {
		root.Children[seps[i].P] = leaf
	}

	return &testFetcher{root: root, rootLvl: 1}, leaves
}
