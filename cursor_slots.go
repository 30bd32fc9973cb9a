package btreeiter

import "math"

// PeekSlot returns either the live key covering the cursor's position, or a
// synthetic deleted "hole" key standing in for the gap there, so callers
// never have to special-case "nothing here yet". On a non-extent tree the
// hole is a zero-size key at pos; on an extent tree it spans from pos up to
// the next live key (or this leaf's bound), clamped to MaxSlotSize. ok is
// false, with no error, only at the absolute end of an extent keyspace.
func (c *Cursor) PeekSlot() (Key, bool, error) {
	if err := c.ensureReady(); err != nil {
		return Key{}, false, err
	}
	if c.uptodate == UpToDate {
		return c.k, true, nil
	}
	for {
		if err := c.Traverse(); err != nil {
			return Key{}, false, err
		}
		st := &c.l[0]
		if !st.isRealNode() {
			return Key{}, false, nil
		}

		k, ok := st.iter.Peek()
		if !ok && posGreater(c.pos, st.node.MaxBound) {
			// Walked off this leaf; redescend at pos.
			c.uptodate = NeedTraverse
			continue
		}
		if ok && posLessEq(StartPos(k), c.pos) {
			c.k = k
			c.uptodate = UpToDate
			return k, true, nil
		}

		// Hole.
		if !c.isExtents() {
			hole := Key{P: c.pos, Type: KeyTypeDeleted}
			c.k = hole
			c.uptodate = UpToDate
			return hole, true, nil
		}

		if c.pos.Offset == math.MaxUint64 {
			if c.pos.Inode == math.MaxUint64 {
				return Key{}, false, nil
			}
			c.pos = Pos{Inode: c.pos.Inode + 1}
			c.uptodate = NeedTraverse
			continue
		}

		end := Successor(c.btreeID, st.node.MaxBound)
		if ok {
			end = StartPos(k)
		}
		hole := newHole(c.pos, end)
		c.k = hole
		c.uptodate = UpToDate
		return hole, true, nil
	}
}

// NextSlot advances past whatever PeekSlot last returned - a real key or a
// fabricated hole - and peeks the following slot. The covered slots tile
// the keyspace: each call resumes exactly at the previous slot's end.
func (c *Cursor) NextSlot() (Key, bool, error) {
	if err := c.ensureReady(); err != nil {
		return Key{}, false, err
	}
	if c.uptodate != UpToDate {
		if _, ok, err := c.PeekSlot(); err != nil || !ok {
			return Key{}, ok, err
		}
	}

	c.pos = EndPos(c.btreeID, c.k)
	if !c.k.IsWhiteout() {
		// A fabricated hole never moved the iterator; a real key did get
		// peeked, so step past it.
		if st := &c.l[0]; st.isRealNode() && st.iter != nil {
			st.iter.Advance()
		}
	}
	c.uptodate = NeedPeek
	return c.PeekSlot()
}

// PeekNode returns the whole node locked at the cursor's target depth, or
// nil at the end of the tree. The cursor's position moves to the node's
// upper bound, so NextNode resumes just past it.
func (c *Cursor) PeekNode() (*BtreeNode, error) {
	if err := c.ensureReady(); err != nil {
		return nil, err
	}
	if err := c.Traverse(); err != nil {
		return nil, err
	}
	st := &c.l[c.depth]
	if !st.isRealNode() {
		return nil, nil
	}
	c.pos = st.node.MaxBound
	c.uptodate = UpToDate
	return st.node, nil
}

// NextNode moves past the current node and peeks the next one at the same
// depth, or nil once the current node's bound reaches the end of the
// keyspace.
func (c *Cursor) NextNode() (*BtreeNode, error) {
	st := &c.l[c.depth]
	if !st.isRealNode() {
		return nil, nil
	}
	if st.node.MaxBound == PosMax {
		c.unlockLevel(c.depth)
		st.node = notEnd
		return nil, nil
	}
	c.pos = Successor(c.btreeID, st.node.MaxBound)
	c.uptodate = NeedTraverse
	return c.PeekNode()
}
