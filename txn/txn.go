// Package txn is the transaction container: a bounded set of cursor slots
// sharing one ring (and therefore one consistent, deadlock-free view), a
// bump-allocator for scratch memory scoped to a single attempt, and the
// begin/restart bookkeeping a retry loop drives.
package txn

import (
	"errors"
	"math/bits"

	"github.com/dijkstracula/btreeiter"
)

// initialIters is how many cursor slots a transaction starts with; most
// transactions never need more. MaxIters is the hard ceiling, set by how
// many members one ring can hold.
const (
	initialIters = 8
	MaxIters     = btreeiter.MaxRingSlots
)

// Transaction groups cursors behind stable slots. iterIDs carry the
// caller-supplied identity GetIter/CopyIter dedup on, which survives a
// restart even though the slot's liveness does not; live and the ring's own
// linked bitmask are kept distinct - a slot can stay linked across Begin
// (so its locks and position survive for the relock fast path) without
// being live in the new attempt. The slot arrays start small and grow on
// demand up to MaxIters; growing while any cursor is live forces a restart,
// since the attempt's slot indices were handed out against the old bound.
type Transaction struct {
	fetcher btreeiter.NodeFetcher
	ring    *btreeiter.Ring

	cursors []*btreeiter.Cursor
	iterIDs []uint64
	live    uint64

	mem        *arena
	nrRestarts int
}

// New returns an empty transaction whose cursors resolve nodes through
// fetcher.
func New(fetcher btreeiter.NodeFetcher) *Transaction {
	return &Transaction{
		fetcher: fetcher,
		ring:    btreeiter.NewRing(),
		cursors: make([]*btreeiter.Cursor, initialIters),
		iterIDs: make([]uint64, initialIters),
		mem:     newArena(),
	}
}

func (t *Transaction) isLive(slot int) bool { return t.live&(1<<uint(slot)) != 0 }

func (t *Transaction) allocSlot() (int, bool) {
	for i := range t.cursors {
		if t.ring.IsLinked(i) {
			continue
		}
		return i, true
	}
	return 0, false
}

func (t *Transaction) anyLinkedSlot() (int, bool) {
	for i := range t.cursors {
		if t.ring.IsLinked(i) {
			return i, true
		}
	}
	return 0, false
}

// reallocIters grows the slot arrays once every current slot is linked.
// If any cursor is live this attempt, the growth invalidates it: the
// transaction is unlocked and the caller gets a restart, re-requesting its
// cursors against the grown arrays. With nothing live yet the growth is
// invisible and allocation just proceeds.
func (t *Transaction) reallocIters() error {
	if len(t.cursors) >= MaxIters {
		return btreeiter.ErrNoMem
	}
	size := len(t.cursors) * 2
	if size > MaxIters {
		size = MaxIters
	}

	cursors := make([]*btreeiter.Cursor, size)
	copy(cursors, t.cursors)
	t.cursors = cursors

	iterIDs := make([]uint64, size)
	copy(iterIDs, t.iterIDs)
	t.iterIDs = iterIDs

	if t.live != 0 {
		_ = t.Unlock()
		return btreeiter.ErrRestart
	}
	return nil
}

// GetIter finds the linked slot with matching iterID - live or not, since
// it may be a cursor surviving from the previous attempt that Begin didn't
// unlink - repositions it at pos, and marks it live again. Otherwise it
// allocates a fresh cursor positioned at pos and links it into the
// transaction's shared ring so it cooperates with every cursor the
// transaction already holds.
func (t *Transaction) GetIter(btreeID btreeiter.BtreeID, pos btreeiter.Pos, depth int, flags btreeiter.CursorFlags, iterID uint64) (*btreeiter.Cursor, error) {
	for i := range t.cursors {
		if t.ring.IsLinked(i) && t.iterIDs[i] == iterID {
			t.live |= 1 << uint(i)
			t.cursors[i].SetPos(pos)
			return t.cursors[i], nil
		}
	}

	slot, ok := t.allocSlot()
	if !ok {
		if err := t.reallocIters(); err != nil {
			return nil, err
		}
		slot, _ = t.allocSlot()
	}

	c := btreeiter.NewUnlinkedCursor(t.fetcher, btreeID, pos, depth, flags)
	if existing, linked := t.anyLinkedSlot(); linked {
		t.ring.Link(existing, slot, c)
	} else {
		t.ring.Attach(slot, c)
	}

	t.live |= 1 << uint(slot)
	t.iterIDs[slot] = iterID
	t.cursors[slot] = c
	return c, nil
}

// CopyIter duplicates src's position and locks into the slot keyed on
// iterID (allocating one if needed) - both cursors then jointly hold src's
// nodes via recursive lock references.
func (t *Transaction) CopyIter(src *btreeiter.Cursor, iterID uint64) (*btreeiter.Cursor, error) {
	for i := range t.cursors {
		if t.ring.IsLinked(i) && t.iterIDs[i] == iterID {
			t.live |= 1 << uint(i)
			t.cursors[i].Copy(src)
			return t.cursors[i], nil
		}
	}

	slot, ok := t.allocSlot()
	if !ok {
		if err := t.reallocIters(); err != nil {
			return nil, err
		}
		slot, _ = t.allocSlot()
	}

	c := btreeiter.NewUnlinkedCursor(t.fetcher, btreeiter.BtreeExtents, btreeiter.PosMin, 0, 0)
	if existing, linked := t.anyLinkedSlot(); linked {
		t.ring.Link(existing, slot, c)
	} else {
		t.ring.Attach(slot, c)
	}
	c.Copy(src)

	t.live |= 1 << uint(slot)
	t.iterIDs[slot] = iterID
	t.cursors[slot] = c
	return c, nil
}

// IterFree unlocks and unlinks one cursor, freeing its slot for reuse.
func (t *Transaction) IterFree(c *btreeiter.Cursor) error {
	for i := range t.cursors {
		if t.cursors[i] != c {
			continue
		}
		err := c.Unlock()
		t.ring.Unlink(i)
		t.live &^= 1 << uint(i)
		t.cursors[i] = nil
		t.iterIDs[i] = 0
		return err
	}
	return errors.New("txn: iter not owned by this transaction")
}

// Kmalloc is a scratch allocation from the transaction's arena, reclaimed
// wholesale on Exit or Begin. The arena's very first sizing is free, but
// any growth after that - for the whole lifetime of the transaction, not
// just the current attempt - returns ErrRestart instead of memory: growth
// reallocates the backing array and invalidates every slice already handed
// out, so the caller must restart rather than keep stale pointers.
func (t *Transaction) Kmalloc(n int) ([]byte, error) { return t.mem.alloc(n) }

// Unlock drops every lock every live cursor holds, without freeing any
// slot - the first step of a restart. The worst error wins: a poisoned
// cursor's I/O failure outranks success.
func (t *Transaction) Unlock() error {
	var first error
	for i := range t.cursors {
		if !t.isLive(i) {
			continue
		}
		if err := t.cursors[i].Unlock(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// PreloadIters warms every live cursor's path down the tree, so the real
// work that follows starts from held locks instead of a cold descent.
// Best-effort: failures surface soon enough on the cursors themselves.
func (t *Transaction) PreloadIters() {
	for i := range t.cursors {
		if t.isLive(i) {
			_ = t.cursors[i].Traverse()
		}
	}
}

// Begin starts the next attempt. A transaction isn't required to allocate
// the same iterators on a retry that it did last time, so before forgetting
// which cursors were live, unlink any cursor still linked at a higher slot
// index than the highest live one - it was allocated further into the
// failed attempt than this one may get. Then clear the live set: every
// cursor the new attempt touches must go through GetIter again, even ones
// at low indices that stay linked for the relock fast path.
func (t *Transaction) Begin() {
	for t.ring.LinkedMask() != 0 && t.live != 0 &&
		bits.Len64(t.ring.LinkedMask()) > bits.Len64(t.live) {
		idx := bits.Len64(t.ring.LinkedMask()) - 1
		_ = t.cursors[idx].Unlock()
		t.ring.Unlink(idx)
		t.cursors[idx] = nil
		t.iterIDs[idx] = 0
	}

	t.live = 0
	t.mem.reset()
	t.nrRestarts++
}

// Exit tears the transaction down: unlock and unlink every cursor, release
// the arena. The transaction is unusable afterward except via a fresh New.
func (t *Transaction) Exit() {
	for i := range t.cursors {
		if t.ring.IsLinked(i) {
			_ = t.cursors[i].Unlock()
			t.ring.Unlink(i)
			t.cursors[i] = nil
			t.iterIDs[i] = 0
		}
	}
	t.live = 0
	t.mem.reset()
}

// Restarts reports how many times Begin has been called.
func (t *Transaction) Restarts() int { return t.nrRestarts }

// HasPeers reports whether c (a cursor this transaction owns) currently
// shares its ring with any other cursor.
func (t *Transaction) HasPeers(c *btreeiter.Cursor) bool {
	for i := range t.cursors {
		if t.cursors[i] == c {
			return t.ring.HasPeers(i)
		}
	}
	return false
}

// IsLinked reports whether c's slot is still linked into the transaction's
// ring at all - distinct from HasPeers: a solitary linked cursor is a
// member of the transaction without having anyone to coordinate with.
func (t *Transaction) IsLinked(c *btreeiter.Cursor) bool {
	for i := range t.cursors {
		if t.cursors[i] == c {
			return t.ring.IsLinked(i)
		}
	}
	return false
}
