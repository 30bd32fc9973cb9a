package node

import (
	"fmt"
	"sync"

	"github.com/dijkstracula/btreeiter"
)

// maxLeafEntries and maxInteriorFanout bound how many entries a node may
// hold before Insert splits it - small values so tests exercise splits
// (and the fixup/drop callbacks they trigger) without needing huge
// fixtures.
const (
	maxLeafEntries    = 8
	maxInteriorFanout = 4
)

// Tree is the reference B-tree backing the cursor core in tests and the
// demo command: an in-memory implementation of the
// GetNode/Prefetch/RootPointer contract (btreeiter.NodeFetcher), plus a
// minimal Insert/Delete mutation path that drives the fixup callbacks the
// way a production mutator would.
//
// Interior separators carry each child's upper bound, so a separator entry
// stays valid as keys are added beneath it; only a split introduces a new
// separator.
type Tree struct {
	id    btreeiter.BtreeID
	cache *Cache

	mu      sync.RWMutex
	root    *btreeiter.BtreeNode
	rootLvl int
}

// NewTree returns an empty single-leaf tree backed by cache.
func NewTree(id btreeiter.BtreeID, cache *Cache) *Tree {
	root := btreeiter.NewBtreeNode(cache.NewID(), 0, btreeiter.PosMin, nil)
	cache.Store(root)
	return &Tree{id: id, cache: cache, root: root, rootLvl: 0}
}

// GetNode resolves the child parent's entry key points at via parent's
// Children side table - it never faults anything in from disk, since every
// node reachable from the root is already resident here.
func (t *Tree) GetNode(parent *btreeiter.BtreeNode, key btreeiter.Key, level int, mode btreeiter.LockMode) (*btreeiter.BtreeNode, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	child, ok := parent.Children[key.P]
	if !ok {
		return nil, btreeiter.ErrIO
	}
	return child, nil
}

// Prefetch is a fire-and-forget hint; this reference cache has nothing
// further to fault in, so it is a no-op kept only to satisfy the
// NodeFetcher contract's call shape.
func (t *Tree) Prefetch(parent *btreeiter.BtreeNode, key btreeiter.Key, level int) {}

// RootPointer returns the tree's current root and its level.
func (t *Tree) RootPointer(id btreeiter.BtreeID) (*btreeiter.BtreeNode, int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.root, t.rootLvl, nil
}

// splitResult is what insertLocked propagates up to its caller when a node
// it touched overflowed and had to split: the new right sibling, already
// rebounded, with no parent separator pointing at it yet.
type splitResult struct {
	newNode *btreeiter.BtreeNode
}

// Insert adds (or overwrites) k, repairing every cursor in ring whose
// locked path touches an edited node (via btreeiter.NodeIterFix) and
// dropping any cursor whose position moved into a freshly split-off
// sibling.
func (t *Tree) Insert(ring []*btreeiter.Cursor, k btreeiter.Key) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	split, err := t.insertLocked(ring, t.root, k)
	if err != nil {
		return err
	}
	if split == nil {
		return nil
	}

	// The root itself split: grow the tree by one level. The old root kept
	// the lower half and was rebounded by maybeSplit; the sibling took over
	// the old root's upper bound.
	t.cache.Store(split.newNode)
	newRoot := btreeiter.NewBtreeNode(t.cache.NewID(), t.root.Level+1, t.root.MinKey, []btreeiter.Key{
		{P: t.root.MaxBound},
		{P: split.newNode.MaxBound},
	})
	newRoot.Children[t.root.MaxBound] = t.root
	newRoot.Children[split.newNode.MaxBound] = split.newNode
	t.cache.Store(newRoot)
	t.root = newRoot
	t.rootLvl = newRoot.Level
	return nil
}

// Note on locking: Insert and Delete serialize all structural mutation on
// t.mu for the whole call, rather than additionally taking each touched
// node's own NodeLock. The two can't be combined naively: t.mu is held for
// the call's entire duration, including while descending into children, so
// a mutator blocking on a node's write lock while a reader cursor holds
// that node's read lock - and that cursor's next step needs t.mu.RLock() to
// resolve its own next child via GetNode - deadlocks. A cursor's NodeLock
// acquisitions still matter for cross-cursor coordination and the fixup
// protocol below - just not for excluding this reference tree's
// single-mutex mutator, which callers of Insert/Delete that also hold open
// cursors on the same tree from other goroutines must account for (see
// txn's concurrency test, which keeps mutation and traversal on separate,
// non-overlapping phases per worker for exactly this reason).
func (t *Tree) insertLocked(ring []*btreeiter.Cursor, n *btreeiter.BtreeNode, k btreeiter.Key) (*splitResult, error) {
	if n.Level == 0 {
		bs := n.PrimaryBset()
		where, clobber, newCount := n.InsertOrOverwrite(k)
		btreeiter.NodeIterFix(ring, n, bs, where, clobber, newCount)
		return t.maybeSplit(ring, n, maxLeafEntries), nil
	}

	childEntry, ok := n.FindChildFor(k.P)
	if !ok {
		return nil, fmt.Errorf("btreeiter/node: interior node %d has no children", n.ID)
	}
	child, ok := n.Children[childEntry.P]
	if !ok {
		return nil, btreeiter.ErrIO
	}

	split, err := t.insertLocked(ring, child, k)
	if err != nil || split == nil {
		return nil, err
	}

	// The child split. Its old separator's position is now the new
	// sibling's upper bound, so that entry just gets re-pointed; the
	// shrunken child gets a fresh separator at its new bound.
	t.cache.Store(split.newNode)
	n.Children[split.newNode.MaxBound] = split.newNode

	sep := btreeiter.Key{P: child.MaxBound}
	bs := n.PrimaryBset()
	where, clobber, newCount := n.InsertOrOverwrite(sep)
	n.Children[sep.P] = child
	btreeiter.NodeIterFix(ring, n, bs, where, clobber, newCount)
	return t.maybeSplit(ring, n, maxInteriorFanout), nil
}

// maybeSplit splits n in half if it has grown past maxEntries: the tail
// half's keys (and, for interior nodes, their child pointers) move to a
// brand new sibling, bounds are recomputed so the two halves partition n's
// old range, and any cursor in ring whose position fell into the sibling's
// half is dropped so its next traversal redescends through the parent's
// updated separators.
func (t *Tree) maybeSplit(ring []*btreeiter.Cursor, n *btreeiter.BtreeNode, maxEntries int) *splitResult {
	bs := n.PrimaryBset()
	if bs.Len() <= maxEntries {
		return nil
	}

	mid := bs.Len() / 2
	tailKeys := n.Split(mid)

	// A leaf partitions at the first moved key's start; an interior node
	// partitions at its last remaining separator, since separators carry
	// child bounds and the gap up to the first moved separator belongs to
	// that separator's child.
	var leftBound btreeiter.Pos
	if n.Level > 0 {
		lastKept, _ := n.EntryAt(mid - 1)
		leftBound = lastKept.P
	} else {
		leftBound = btreeiter.Predecessor(t.id, btreeiter.StartPos(tailKeys[0]))
	}

	newNode := btreeiter.NewBtreeNode(t.cache.NewID(), n.Level,
		btreeiter.Successor(t.id, leftBound), tailKeys)
	newNode.MaxBound = n.MaxBound
	n.MaxBound = leftBound

	if n.Level > 0 {
		for _, tk := range tailKeys {
			if child, ok := n.Children[tk.P]; ok {
				newNode.Children[tk.P] = child
				delete(n.Children, tk.P)
			}
		}
	}

	for _, cur := range ring {
		if cur.PosAtOrAfter(newNode.MinKey) {
			btreeiter.NodeDrop([]*btreeiter.Cursor{cur}, n)
		}
	}

	return &splitResult{newNode: newNode}
}

// Delete marks the entry at pos as a whiteout, repairing every cursor in
// ring that has the leaf in its locked path. It is idempotent: deleting an
// already-deleted key still reports found=true.
func (t *Tree) Delete(ring []*btreeiter.Cursor, pos btreeiter.Pos) (found bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.root
	for n.Level > 0 {
		entry, ok := n.FindChildFor(pos)
		if !ok {
			return false, nil
		}
		child, ok := n.Children[entry.P]
		if !ok {
			return false, btreeiter.ErrIO
		}
		n = child
	}

	where, clobber, newCount, found := n.MarkDeleted(pos)
	if found {
		btreeiter.NodeIterFix(ring, n, n.PrimaryBset(), where, clobber, newCount)
	}
	return found, nil
}
