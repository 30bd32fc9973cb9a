package btreeiter

// fixup.go holds the callbacks a mutator invokes after editing a node, so
// that every cursor with that node in its locked path has its in-node
// iterator corrected in place instead of being forced to retraverse. The
// mutation logic itself (insert, delete, and the structural split/merge
// driving it) lives with the node cache's owner - the reference
// implementation is node.Tree.

// NodeIterFix repairs the in-node iterator of every cursor in ring that has
// b at its level, after a mutator replaced clobberEntries entries at offset
// where in bs with newEntries entries. where/clobber/new are entry counts,
// not word counts - see node.go's comment on that simplification.
func NodeIterFix(ring []*Cursor, b *BtreeNode, bs *Bset, where, clobberEntries, newEntries int) {
	shift := newEntries - clobberEntries
	preEnd := bs.end() - shift

	for _, cur := range ring {
		st := &cur.l[b.Level]
		if st.node != b || st.iter == nil {
			continue
		}
		if !fixOneSet(cur, st, bs, where, clobberEntries, newEntries, shift, preEnd) {
			continue
		}
		if b.Level > 0 && newEntries > 0 {
			if nk, ok := bs.entryAt(where); ok && !nk.key.IsWhiteout() && keyAfterPos(nk.key, cur.pos) {
				fixInteriorRewind(st.iter, bs, where)
			}
		}
	}
}

// fixOneSet adjusts the one participant of cur's iterator that tracks bs.
// Returns false when nothing further can apply to this cursor - the
// participant had been dropped (whether or not a new visible entry revived
// it), or the edit lies ahead of the iterator's position, not yet reached -
// so the caller skips the interior rewind too.
//
// The participant's end offset is shifted if it was watching the bset's old
// end, and its position k is then reconciled with the edit:
//
//   - a new entry that is visible at or after the cursor's position snaps k
//     back onto it, wherever k was - a freshly built iterator would land
//     there;
//   - an overwritten entry the iterator was parked on, replaced by
//     something no longer visible, pushes k just past the edit;
//   - anything else past the edit shifts by the size difference, with the
//     current key untouched.
func fixOneSet(cur *Cursor, st *levelState, bs *Bset, where, clobberEntries, newEntries, shift, preEnd int) bool {
	it := st.iter

	var found *iterSet
	for _, s := range it.sets {
		if s.bset == bs {
			found = s
			break
		}
	}

	newEntry, hasNew := bs.entryAt(where)
	visible := hasNew && newEntries > 0 && keyAfterPos(newEntry.key, cur.pos)

	if found == nil {
		// The iterator had run off this bset's end and dropped it; a new
		// visible entry revives it.
		if visible {
			cur.uptodate = maxUptodate(cur.uptodate, NeedPeek)
			it.Push(bs, where)
			reloadCachedKey(cur, st)
		}
		return false
	}

	if found.end == preEnd {
		found.end += shift
	}
	if found.k < where {
		// The iterator hasn't gotten to the edited region yet; nothing to
		// reconcile, and no rewind either.
		return false
	}

	switch {
	case visible:
		found.k = where
	case found.k < where+clobberEntries:
		found.k = where + newEntries
	default:
		found.k += shift
		// The key the iterator is parked on did not move relative to it.
		return true
	}

	cur.uptodate = maxUptodate(cur.uptodate, NeedPeek)
	it.Sort()
	reloadCachedKey(cur, st)
	return true
}

// reloadCachedKey refreshes the cursor's cached current key after a
// leaf-level iterator repair, so a caller holding the previous peek result
// observes the post-edit key.
func reloadCachedKey(cur *Cursor, st *levelState) {
	if st.node.Level != 0 || st != &cur.l[0] {
		return
	}
	if k, ok := st.iter.PeekAll(); ok {
		cur.k = k
	}
}

// fixInteriorRewind handles the interior-node special case. Interior
// iterators skip whiteouts as they go, so they may sit past entries that
// compare greater than the cursor's position. When a new visible entry
// lands before such a skipped entry, the iterator must rewind to include
// it, or a later backward step would miss it. For every bset other than the
// edited one: take the entry just before that bset's current iterator
// position; if it sorts after the entry just inserted, pull the iterator
// back onto it.
func fixInteriorRewind(it *NodeIter, editedBset *Bset, where int) {
	newEntry, ok := editedBset.entryAt(where)
	if !ok {
		return
	}
	newStart := StartPos(newEntry.key)

	for _, b := range it.node.bsets {
		if b == editedBset {
			continue
		}
		cur := b.end()
		for _, s := range it.sets {
			if s.bset == b {
				cur = s.k
				break
			}
		}
		if cur == 0 {
			continue
		}
		prev, ok := b.entryAt(cur - 1)
		if !ok {
			continue
		}
		if posGreater(StartPos(prev.key), newStart) {
			it.Push(b, cur-1)
		}
	}
}

// NodeReplace relinks cursors onto newNode after a mutator swapped it in
// wholesale for a node covering the same range (a compaction or rewrite
// that keeps the content but a new node object). Every cursor whose
// position falls within newNode's range takes a recursive reference on the
// new node's lock in its wanted mode and gets a fresh iterator there.
func NodeReplace(ring []*Cursor, newNode *BtreeNode) {
	level := newNode.Level
	for _, cur := range ring {
		if !newNode.contains(cur.pos) {
			continue
		}
		mode := cur.wantMode(level)
		newNode.Lock.Increment(mode)
		cur.l[level] = levelState{
			node: newNode,
			iter: newNodeIterAt(newNode, cur.pos, cur.btreeID),
		}
		cur.markLocked(level, mode)
		cur.uptodate = maxUptodate(cur.uptodate, NeedPeek)
	}
}

// NodeDrop detaches cursors from old after it has gone away (split into
// siblings, freed). Every cursor with old at its level is unlocked there
// and marked off-tree, so its next traversal redescends from the parent and
// picks up whichever node covers its position now.
func NodeDrop(ring []*Cursor, old *BtreeNode) {
	level := old.Level
	for _, cur := range ring {
		if cur.l[level].node != old {
			continue
		}
		cur.unlockLevel(level)
		cur.l[level].node = notEnd
		cur.uptodate = maxUptodate(cur.uptodate, NeedTraverse)
	}
}

// ReinitNode rebuilds iterators after b's content was rewritten out from
// under its lock holders (a re-sort without structural change). Every
// cursor with b at its level gets a fresh in-node iterator at its current
// position.
func ReinitNode(ring []*Cursor, b *BtreeNode) {
	level := b.Level
	for _, cur := range ring {
		if cur.l[level].node != b {
			continue
		}
		cur.l[level].iter = newNodeIterAt(b, cur.pos, cur.btreeID)
		cur.uptodate = maxUptodate(cur.uptodate, NeedPeek)
	}
}
