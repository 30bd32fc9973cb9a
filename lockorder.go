package btreeiter

// idPosLess/idPosLessEq order (btreeID, pos) pairs first by tree, then by
// position - the global order every cursor in a ring must acquire locks in,
// regardless of which btree each one walks.
func idPosLess(aID BtreeID, aPos Pos, bID BtreeID, bPos Pos) bool {
	if aID != bID {
		return aID < bID
	}
	return posLess(aPos, bPos)
}

func idPosLessEq(aID BtreeID, aPos Pos, bID BtreeID, bPos Pos) bool {
	if aID != bID {
		return aID < bID
	}
	return posLessEq(aPos, bPos)
}

func lowestLockedLevel(c *Cursor) (int, bool) {
	if c.nodesLocked == 0 {
		return 0, false
	}
	for l := 0; l < MaxDepth; l++ {
		if c.nodesLocked&(1<<uint(l)) != 0 {
			return l, true
		}
	}
	return 0, false
}

func highestLockedLevel(c *Cursor) (int, bool) {
	for l := MaxDepth - 1; l >= 0; l-- {
		if c.nodesLocked&(1<<uint(l)) != 0 {
			return l, true
		}
	}
	return 0, false
}

// lockWithCoordinator is the slow-path lock acquisition: take n in mode at
// level for a cursor positioned at pos, consulting the cursor's ring so
// cooperating cursors never deadlock against each other.
//
//   - A peer already holding n in >= mode just hands out a recursive
//     increment - no blocking, no ordering concerns.
//   - Locks must be taken in ascending (btree id, pos) order: a cursor may
//     not block on a node behind its own held position, nor behind where a
//     peer with locks already sits.
//   - A cursor must not block waiting for intent while any ring member
//     still holds plain read locks: that read could be blocking another
//     thread's writer, which may in turn hold the intent we want. With
//     mayDropLocks the offending peer's locksWant is raised and its reads
//     upgraded so the retry won't hit the same wall - but this attempt
//     still fails, since the upgrade may itself have shuffled lock state.
//   - Ancestors must be locked before descendants: a peer holding only
//     descendants of the level we're about to lock gets its locksWant
//     raised to cover that level (under mayDropLocks) so it locks the
//     ancestors first; this attempt fails for the same reason.
//
// Returning false means the caller must fail the in-progress traversal
// with ErrRestart and let the ring-wide retry procedure re-establish every
// cursor in a conflict-free order.
func (c *Cursor) lockWithCoordinator(n *BtreeNode, pos Pos, level int, mode LockMode, mayDropLocks bool) bool {
	for _, p := range c.RingAll() {
		if p.l[level].node == n {
			if held, ok := p.heldModeAt(level); ok && held >= mode {
				n.Lock.Increment(mode)
				return true
			}
		}
	}

	if low, ok := lowestLockedLevel(c); ok && low <= level &&
		idPosLess(c.btreeID, pos, c.btreeID, c.pos) {
		return false
	}

	ok := true
	for _, p := range c.Peers() {
		if p.nodesLocked == 0 {
			continue
		}

		if idPosLess(c.btreeID, pos, p.btreeID, p.pos) {
			ok = false
		}

		if mode == LockIntent && p.nodesLocked != p.nodesIntentLocked {
			if mayDropLocks {
				if hi, hok := highestLockedLevel(p); hok && hi+1 > p.locksWant {
					p.locksWant = hi + 1
				}
				p.acquireLocksWant(true)
			}
			ok = false
		}

		if p.btreeID == c.btreeID {
			if hi, hok := highestLockedLevel(p); hok && level > hi {
				if mayDropLocks {
					if level+1 > p.locksWant {
						p.locksWant = level + 1
					}
					p.acquireLocksWant(true)
				}
				ok = false
			}
		}
	}

	if !ok {
		return false
	}

	n.Lock.Lock(mode, 0)
	return true
}
