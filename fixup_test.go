package btreeiter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// cursorWatching returns a bare cursor parked on n at the node's own level
// via a freshly built iterator at pos, as if a prior traversal had placed
// it there - enough state for NodeIterFix to find and repair.
func cursorWatching(n *BtreeNode, pos Pos) *Cursor {
	c := &Cursor{btreeID: BtreeDirents, pos: pos, uptodate: UpToDate}
	for i := range c.l {
		c.l[i].node = notEnd
	}
	c.l[n.Level] = levelState{node: n, iter: newNodeIterAt(n, pos, BtreeDirents)}
	return c
}

func TestNodeIterFixShiftsTrailingOffsets(t *testing.T) {
	n := NewBtreeNode(1, 0, PosMin, []Key{keyAt(10), keyAt(20), keyAt(30)})
	cur := cursorWatching(n, posAt(20))

	k, ok := cur.l[0].iter.PeekAll()
	assert.True(t, ok)
	assert.Equal(t, posAt(20), k.P)

	// A mutator inserts a key before the cursor's position: the entry the
	// iterator was parked on shifts one slot right, and the iterator must
	// follow it.
	bs := n.PrimaryBset()
	where, clobber, newCount := n.InsertOrOverwrite(keyAt(15))
	NodeIterFix([]*Cursor{cur}, n, bs, where, clobber, newCount)

	k, ok = cur.l[0].iter.PeekAll()
	assert.True(t, ok)
	assert.Equal(t, posAt(20), k.P, "iterator still points at the same logical key after the shift")
}

func TestNodeIterFixSnapsOntoNewVisibleKey(t *testing.T) {
	n := NewBtreeNode(1, 0, PosMin, []Key{keyAt(10), keyAt(40)})
	cur := cursorWatching(n, posAt(20))

	// The iterator had settled on 40; a key lands at 20, exactly where the
	// cursor is positioned, so the iterator snaps back onto it - the same
	// entry a freshly built iterator at 20 would start from.
	bs := n.PrimaryBset()
	where, clobber, newCount := n.InsertOrOverwrite(keyAt(20))
	NodeIterFix([]*Cursor{cur}, n, bs, where, clobber, newCount)

	assert.Equal(t, NeedPeek, cur.uptodate)
	k, ok := cur.l[0].iter.PeekAll()
	assert.True(t, ok)
	assert.Equal(t, posAt(20), k.P)
	assert.Equal(t, posAt(20), cur.k.P, "the cached key was reloaded from the repaired iterator")
}

func TestNodeIterFixStepsPastClobberedEntry(t *testing.T) {
	n := NewBtreeNode(1, 0, PosMin, []Key{keyAt(10), keyAt(20)})
	cur := cursorWatching(n, posAt(20))

	// The entry the iterator was parked on is overwritten by a whiteout:
	// nothing visible remains at 20, so the iterator moves just past the
	// edit - here, off the end of the bset.
	bs := n.PrimaryBset()
	where, clobber, newCount := n.InsertOrOverwrite(Key{P: posAt(20), Type: KeyTypeDeleted})
	NodeIterFix([]*Cursor{cur}, n, bs, where, clobber, newCount)

	assert.Equal(t, NeedPeek, cur.uptodate)
	_, ok := cur.l[0].iter.PeekAll()
	assert.False(t, ok, "the overwritten entry is no longer reachable going forward")
}

func TestNodeIterFixInteriorRewindsPastSkippedWhiteout(t *testing.T) {
	// An interior node with two bsets: the primary holds a separator at 80,
	// an older bset holds a whiteout at 60 which the cursor's iterator has
	// already skipped past. A new live separator lands at 40 - between the
	// cursor's position and the skipped whiteout - so the iterator must
	// rewind the older bset onto the whiteout, or a later backward step
	// would miss it.
	n := &BtreeNode{ID: 2, Level: 1, Lock: NewNodeLock(), MinKey: PosMin, MaxBound: PosMax}
	primary := newBset([]Key{keyAt(80)})
	second := newBset([]Key{{P: posAt(60), Type: KeyTypeDeleted}})
	n.bsets = []*Bset{primary, second}

	cur := &Cursor{btreeID: BtreeDirents, pos: posAt(30), uptodate: UpToDate}
	for i := range cur.l {
		cur.l[i].node = notEnd
	}
	cur.l[1] = levelState{node: n, iter: &NodeIter{node: n, btreeID: BtreeDirents, sets: []*iterSet{
		{bset: primary, k: 0, end: 1},
		{bset: second, k: 1, end: 1}, // past its one entry: the skipped whiteout
	}}}

	primary.entries = append([]bsetEntry{{key: keyAt(40)}}, primary.entries...)
	for i := range primary.entries {
		primary.entries[i].offset = i
	}
	NodeIterFix([]*Cursor{cur}, n, primary, 0, 0, 1)

	found := false
	for _, s := range cur.l[1].iter.sets {
		if s.bset == second && s.k == 0 {
			found = true
		}
	}
	assert.True(t, found, "the skipped whiteout at 60 is reachable again after the rewind")

	k, ok := cur.l[1].iter.PeekAll()
	assert.True(t, ok)
	assert.Equal(t, posAt(40), k.P, "the new separator comes first in the merged order")
}

func TestNodeIterFixRevivesDroppedBset(t *testing.T) {
	n := NewBtreeNode(1, 0, PosMin, []Key{keyAt(10)})
	cur := cursorWatching(n, posAt(5))
	cur.l[0].iter.Advance() // run the only participant off its end

	_, ok := cur.l[0].iter.PeekAll()
	assert.False(t, ok)

	bs := n.PrimaryBset()
	where, clobber, newCount := n.InsertOrOverwrite(keyAt(30))
	NodeIterFix([]*Cursor{cur}, n, bs, where, clobber, newCount)

	k, ok := cur.l[0].iter.PeekAll()
	assert.True(t, ok)
	assert.Equal(t, posAt(30), k.P, "a new visible key revives the exhausted participant")
}

func TestNodeReplaceRelinksContainingCursors(t *testing.T) {
	old := NewBtreeNode(1, 0, PosMin, []Key{keyAt(10), keyAt(20)})
	cur := cursorWatching(old, posAt(10))

	newNode := NewBtreeNode(2, 0, PosMin, []Key{keyAt(10), keyAt(20), keyAt(30)})
	NodeReplace([]*Cursor{cur}, newNode)

	assert.Equal(t, newNode, cur.l[0].node)
	assert.Equal(t, NeedPeek, cur.uptodate)
	mode, held := newNode.Lock.HeldMode()
	assert.True(t, held)
	assert.Equal(t, LockRead, mode)
}

func TestNodeDropUnlinksCursors(t *testing.T) {
	n := NewBtreeNode(1, 0, PosMin, []Key{keyAt(10)})
	cur := cursorWatching(n, posAt(10))
	n.Lock.TryLock(LockRead)
	cur.markLocked(0, LockRead)

	NodeDrop([]*Cursor{cur}, n)

	assert.Same(t, notEnd, cur.l[0].node)
	assert.Equal(t, NeedTraverse, cur.uptodate)
	_, held := n.Lock.HeldMode()
	assert.False(t, held, "the dropped node's lock reference was released")
}

func TestReinitNodeRebuildsIterator(t *testing.T) {
	n := NewBtreeNode(1, 0, PosMin, []Key{keyAt(10), keyAt(20)})
	cur := cursorWatching(n, posAt(10))

	n.bsets[0].entries = append(n.bsets[0].entries, bsetEntry{offset: 2, key: keyAt(30)})
	ReinitNode([]*Cursor{cur}, n)

	k, ok := cur.l[0].iter.PeekAll()
	assert.True(t, ok)
	assert.Equal(t, posAt(10), k.P)
	assert.Equal(t, NeedPeek, cur.uptodate)
}
