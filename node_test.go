package btreeiter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func posAt(off uint64) Pos { return Pos{Offset: off} }

func keyAt(off uint64) Key { return Key{P: posAt(off)} }

func TestBtreeNodeInsertOrOverwrite(t *testing.T) {
	n := NewBtreeNode(1, 0, PosMin, []Key{keyAt(10), keyAt(30)})

	where, clobber, newCount := n.InsertOrOverwrite(keyAt(20))
	assert.Equal(t, 1, where)
	assert.Equal(t, 0, clobber)
	assert.Equal(t, 1, newCount)
	assert.Equal(t, 3, n.PrimaryBset().Len())

	k, ok := n.EntryAt(1)
	assert.True(t, ok)
	assert.Equal(t, posAt(20), k.P)

	// Overwriting an existing position clobbers in place.
	where, clobber, newCount = n.InsertOrOverwrite(Key{P: posAt(20), Size: 0, Type: KeyTypeDeleted})
	assert.Equal(t, 1, where)
	assert.Equal(t, 1, clobber)
	assert.Equal(t, 1, newCount)
	assert.Equal(t, 3, n.PrimaryBset().Len())
	k, _ = n.EntryAt(1)
	assert.True(t, k.IsWhiteout())
}

func TestBtreeNodeMarkDeletedIdempotent(t *testing.T) {
	n := NewBtreeNode(1, 0, PosMin, []Key{keyAt(10), keyAt(20)})

	where, clobber, newCount, ok := n.MarkDeleted(posAt(10))
	assert.True(t, ok)
	assert.Equal(t, 0, where)
	assert.Equal(t, 1, clobber)
	assert.Equal(t, 1, newCount)

	k, _ := n.EntryAt(0)
	assert.True(t, k.IsWhiteout())

	// Deleting again still reports ok, matching a double-delete being a
	// no-op rather than an error.
	_, _, _, ok = n.MarkDeleted(posAt(10))
	assert.True(t, ok)

	_, _, _, ok = n.MarkDeleted(posAt(999))
	assert.False(t, ok)
}

func TestBtreeNodeSplit(t *testing.T) {
	n := NewBtreeNode(1, 0, PosMin, []Key{keyAt(1), keyAt(2), keyAt(3), keyAt(4)})
	tail := n.Split(2)

	assert.Equal(t, 2, n.PrimaryBset().Len())
	assert.Len(t, tail, 2)
	assert.Equal(t, posAt(3), tail[0].P)
	assert.Equal(t, posAt(4), tail[1].P)
}

func TestBtreeNodeFindChildFor(t *testing.T) {
	n := NewBtreeNode(1, 1, PosMin, []Key{keyAt(10), keyAt(20)})

	k, ok := n.FindChildFor(posAt(5))
	assert.True(t, ok)
	assert.Equal(t, posAt(10), k.P, "first separator >= pos wins")

	k, ok = n.FindChildFor(posAt(15))
	assert.True(t, ok)
	assert.Equal(t, posAt(20), k.P)

	k, ok = n.FindChildFor(posAt(999))
	assert.True(t, ok)
	assert.Equal(t, posAt(20), k.P, "rightmost separator is the catch-all")

	empty := NewBtreeNode(2, 1, PosMin, nil)
	_, ok = empty.FindChildFor(posAt(0))
	assert.False(t, ok)
}

func TestBtreeNodeBoundsAndContains(t *testing.T) {
	n := NewBtreeNode(1, 0, posAt(10), []Key{keyAt(10), keyAt(50)})
	assert.Equal(t, posAt(50), n.MaxKey())
	assert.Equal(t, PosMax, n.MaxBound, "a fresh node is the catch-all for everything above its min")
	assert.True(t, n.contains(posAt(10)))
	assert.True(t, n.contains(posAt(9999)))
	assert.False(t, n.contains(posAt(9)))

	n.MaxBound = posAt(50)
	assert.True(t, n.contains(posAt(50)))
	assert.False(t, n.contains(posAt(51)), "a rebounded node no longer covers past its bound")

	empty := NewBtreeNode(2, 0, posAt(5), nil)
	assert.Equal(t, posAt(5), empty.MaxKey(), "an empty node's max key falls back to its min")
}

func TestNodeIterPeekAdvancePrev(t *testing.T) {
	n := NewBtreeNode(1, 0, PosMin, []Key{keyAt(10), keyAt(20), keyAt(30)})
	it := newNodeIterAt(n, PosMin, BtreeDirents)

	k, ok := it.Peek()
	assert.True(t, ok)
	assert.Equal(t, posAt(10), k.P)

	it.Advance()
	k, ok = it.Peek()
	assert.True(t, ok)
	assert.Equal(t, posAt(20), k.P)

	k, ok = it.Prev(posAt(25))
	assert.True(t, ok)
	assert.Equal(t, posAt(20), k.P)

	it2 := newNodeIterAt(n, posAt(31), BtreeDirents)
	_, ok = it2.PeekAll()
	assert.False(t, ok, "iterator built past the last entry has nothing left")
}

func TestNodeIterStopsOnCoveringExtent(t *testing.T) {
	ext := func(end, size uint64) Key { return Key{P: posAt(end), Size: size} }
	n := NewBtreeNode(1, 0, PosMin, []Key{ext(8, 8), ext(16, 8)})

	// A position inside the first extent's range still lands on it.
	it := newNodeIterAt(n, posAt(3), BtreeExtents)
	k, ok := it.Peek()
	assert.True(t, ok)
	assert.Equal(t, posAt(8), k.P)

	// A position exactly at an extent's end belongs to the next one.
	it = newNodeIterAt(n, posAt(8), BtreeExtents)
	k, ok = it.Peek()
	assert.True(t, ok)
	assert.Equal(t, posAt(16), k.P)
}

func TestNodeIterSkipsWhiteouts(t *testing.T) {
	n := NewBtreeNode(1, 0, PosMin, nil)
	n.InsertOrOverwrite(keyAt(10))
	n.InsertOrOverwrite(keyAt(20))
	n.MarkDeleted(posAt(10))

	it := newNodeIterAt(n, PosMin, BtreeDirents)
	k, ok := it.PeekAll()
	assert.True(t, ok)
	assert.Equal(t, posAt(10), k.P, "PeekAll sees the whiteout")
	assert.True(t, k.IsWhiteout())

	k, ok = it.Peek()
	assert.True(t, ok)
	assert.Equal(t, posAt(20), k.P, "Peek skips the whiteout at 10")
}

func TestNodeIterCloneIsIndependent(t *testing.T) {
	n := NewBtreeNode(1, 0, PosMin, []Key{keyAt(10), keyAt(20)})
	it := newNodeIterAt(n, PosMin, BtreeDirents)
	cp := it.clone()

	cp.Advance()
	k, ok := it.PeekAll()
	assert.True(t, ok)
	assert.Equal(t, posAt(10), k.P, "advancing a clone leaves the original parked")
	k, ok = cp.PeekAll()
	assert.True(t, ok)
	assert.Equal(t, posAt(20), k.P)
}

func TestKeyStartEndPosForExtents(t *testing.T) {
	point := keyAt(10)
	assert.Equal(t, posAt(10), StartPos(point))
	assert.Equal(t, posAt(11), EndPos(BtreeExtents, point))

	extent := Key{P: posAt(30), Size: 10}
	assert.True(t, extent.IsExtent())
	assert.Equal(t, posAt(20), StartPos(extent))
	assert.Equal(t, posAt(30), EndPos(BtreeExtents, extent))
}

func TestNewHoleClampsToMaxSlotSize(t *testing.T) {
	h := newHole(posAt(0), Pos{Offset: MaxSlotSize * 2})
	assert.True(t, h.IsWhiteout())
	assert.Equal(t, uint64(MaxSlotSize), h.Size)
	assert.Equal(t, posAt(MaxSlotSize), h.P)

	small := newHole(posAt(5), posAt(8))
	assert.Equal(t, uint64(3), small.Size)
	assert.Equal(t, posAt(8), small.P)
}
