package btreeiter

import "errors"

// IterMode selects what a cursor's Peek/Next family of operations yield:
// live keys only (Keys), live keys plus synthetic holes for gaps (Slots),
// or whole nodes at a fixed depth (Nodes).
type IterMode uint8

const (
	ModeKeys IterMode = iota
	ModeSlots
	ModeNodes
)

// CursorFlags are the caller-supplied options for a cursor.
type CursorFlags uint32

const (
	// FlagIntent means the cursor wants intent (not just read) held on its
	// leaf level; this is what seeds locksWant to 1 instead of 0.
	FlagIntent CursorFlags = 1 << iota
	// FlagPrefetch asks descend to issue best-effort prefetch hints for
	// nearby siblings after locking a child.
	FlagPrefetch
	// FlagSlots selects SLOTS mode (synthetic holes fabricated for gaps).
	FlagSlots
	// FlagNodes selects NODES mode (whole-node iteration at the cursor's
	// depth).
	FlagNodes
	// FlagAtEndOfLeaf is output-only bookkeeping: set when a same-leaf
	// reposition ran off the end of the locked leaf, cleared on the next
	// full traversal.
	FlagAtEndOfLeaf
	// FlagError is set once a cursor has observed ErrIO; every subsequent
	// operation on it fails fast with ErrIO until it is reinitialized.
	FlagError
	// FlagExtents selects extent-aware comparisons and hole fabrication.
	// Implied for the extents tree in key-returning modes; callers only
	// need it explicitly for an extent-formatted keyspace under another
	// tree id.
	FlagExtents
)

// Uptodate is the cursor's staleness ladder: how much work the next peek
// must do before the cached key is trustworthy again. Values are ordered so
// that max(a, b) is always "at least as much work remaining". Mutator
// callbacks only ever raise the level; Traverse lowers it.
type Uptodate uint8

const (
	UpToDate Uptodate = iota
	NeedPeek
	NeedRelock
	NeedTraverse
)

func maxUptodate(a, b Uptodate) Uptodate {
	if a > b {
		return a
	}
	return b
}

// MaxDepth bounds how many levels a single cursor can track - generous
// headroom over any realistic B-tree height.
const MaxDepth = 8

// DebugAssertions gates the lock-invariant checks verifyLocks runs after
// every traversal; tests turn it on, production code leaves it off.
var DebugAssertions = false

// Cursor is one position within one btree id's keyspace, with a locked
// path from (some prefix of) the root down toward that position, and a
// cached current key. Multiple cursors cooperate through a Ring, which is
// what lets a transaction hold several positions open against the same
// tree without deadlocking against itself.
type Cursor struct {
	fetcher NodeFetcher
	btreeID BtreeID
	pos     Pos
	k       Key

	l     [MaxDepth]levelState
	level int
	depth int // target depth: 0 for Keys/Slots, caller-supplied for Nodes

	locksWant         int
	nodesLocked       uint32
	nodesIntentLocked uint32

	flags    CursorFlags
	iterMode IterMode
	uptodate Uptodate

	ring *Ring
	slot int
}

// NewCursor returns a freestanding cursor (its own solitary ring) positioned
// at pos in btreeID's keyspace, needing a full traversal before its first
// Peek.
func NewCursor(fetcher NodeFetcher, btreeID BtreeID, pos Pos, depth int, flags CursorFlags) *Cursor {
	c := NewUnlinkedCursor(fetcher, btreeID, pos, depth, flags)
	c.ring = NewRing()
	c.ring.Attach(0, c)
	return c
}

// NewUnlinkedCursor builds cursor state without any ring membership at all
// - for a transaction (txn.Transaction) that wants to splice the new cursor
// into its own shared ring rather than give it a private one.
func NewUnlinkedCursor(fetcher NodeFetcher, btreeID BtreeID, pos Pos, depth int, flags CursorFlags) *Cursor {
	c := &Cursor{
		fetcher:  fetcher,
		btreeID:  btreeID,
		pos:      pos,
		depth:    depth,
		flags:    flags,
		level:    MaxDepth - 1,
		uptodate: NeedTraverse,
	}
	switch {
	case flags&FlagNodes != 0:
		c.iterMode = ModeNodes
	case flags&FlagSlots != 0:
		c.iterMode = ModeSlots
	default:
		c.iterMode = ModeKeys
	}
	if btreeID == BtreeExtents && c.iterMode != ModeNodes {
		c.flags |= FlagExtents
	}
	if flags&FlagIntent != 0 {
		c.locksWant = 1
	}
	for i := range c.l {
		c.l[i].node = notEnd
	}
	return c
}

// Mode reports which of Keys/Slots/Nodes this cursor was constructed as.
func (c *Cursor) Mode() IterMode { return c.iterMode }

// Pos returns the cursor's current logical position.
func (c *Cursor) Pos() Pos { return c.pos }

// PosAtOrAfter reports whether the cursor's current position is at or past
// pos - used by mutators to decide which cursors a split must drop.
func (c *Cursor) PosAtOrAfter(pos Pos) bool { return posGreaterEq(c.pos, pos) }

func (c *Cursor) isExtents() bool { return c.flags&FlagExtents != 0 }

// wantMode reports the lock mode this cursor wants to hold at level: intent
// for every level below locksWant, read above it.
func (c *Cursor) wantMode(level int) LockMode {
	if level < c.locksWant {
		return LockIntent
	}
	return LockRead
}

func (c *Cursor) heldModeAt(level int) (LockMode, bool) {
	bit := uint(level)
	if c.nodesLocked&(1<<bit) == 0 {
		return LockRead, false
	}
	if c.nodesIntentLocked&(1<<bit) != 0 {
		return LockIntent, true
	}
	return LockRead, true
}

func (c *Cursor) markLocked(level int, mode LockMode) {
	bit := uint(level)
	c.nodesLocked |= 1 << bit
	if mode == LockIntent {
		c.nodesIntentLocked |= 1 << bit
	} else {
		c.nodesIntentLocked &^= 1 << bit
	}
	c.l[level].lockSeq = c.l[level].node.Lock.Seq() &^ 1
}

func (c *Cursor) unlockLevel(level int) {
	st := &c.l[level]
	bit := uint(level)
	if st.isRealNode() && c.nodesLocked&(1<<bit) != 0 {
		mode := LockRead
		if c.nodesIntentLocked&(1<<bit) != 0 {
			mode = LockIntent
		}
		st.node.Lock.Unlock(mode)
	}
	c.nodesLocked &^= 1 << bit
	c.nodesIntentLocked &^= 1 << bit
}

// relockLevel reacquires level in its wanted mode, either trivially (still
// held) or via the optimistic sequence check.
func (c *Cursor) relockLevel(level int) bool {
	st := &c.l[level]
	if !st.isRealNode() {
		return false
	}
	if c.nodesLocked&(1<<uint(level)) != 0 {
		return true
	}
	mode := c.wantMode(level)
	if st.node.Lock.Relock(mode, st.lockSeq) {
		c.markLocked(level, mode)
		return true
	}
	return false
}

// tryUpgradeLevel brings level to intent: trivially if already intent,
// in-place if read locked, via sequence relock if unlocked, or by taking a
// recursive reference when the sequence is still current and a ring peer
// already holds the node in intent.
func (c *Cursor) tryUpgradeLevel(level int) bool {
	st := &c.l[level]
	if !st.isRealNode() {
		return false
	}
	mode, held := c.heldModeAt(level)
	if held && mode == LockIntent {
		return true
	}
	if held {
		if st.node.Lock.TryUpgrade() {
			c.markLocked(level, LockIntent)
			return true
		}
	} else if st.node.Lock.Relock(LockIntent, st.lockSeq) {
		c.markLocked(level, LockIntent)
		return true
	}
	if st.lockSeq == st.node.Lock.Seq()&^1 {
		for _, p := range c.Peers() {
			pm, pok := p.heldModeAt(level)
			if pok && pm == LockIntent && p.l[level].node == st.node {
				if held {
					c.unlockLevel(level)
				}
				st.node.Lock.Increment(LockIntent)
				c.markLocked(level, LockIntent)
				return true
			}
		}
	}
	return false
}

// acquireLocksWant runs the relock (or upgrade) cascade: starting at the
// cursor's current level and continuing upward while the level is below
// locksWant, reacquire
// each level in its wanted mode. The first level always gets one attempt
// even when locksWant is below it, so an unlocked leaf is reacquired too.
// On any failure the failed level and everything below it are unlocked and
// marked off-tree, forcing the next full traversal to walk back down
// through the node that could not be relocked.
func (c *Cursor) acquireLocksWant(upgrade bool) bool {
	failIdx := -1
	l := c.level
	for {
		if !c.l[l].isRealNode() {
			break
		}
		ok := false
		if upgrade {
			ok = c.tryUpgradeLevel(l)
		} else {
			ok = c.relockLevel(l)
		}
		if !ok {
			failIdx = l
			c.uptodate = maxUptodate(c.uptodate, NeedTraverse)
		}
		l++
		if l >= c.locksWant || l >= MaxDepth {
			break
		}
	}

	for failIdx >= 0 {
		c.unlockLevel(failIdx)
		c.l[failIdx].node = notEnd
		failIdx--
	}

	if c.uptodate == NeedRelock {
		c.uptodate = NeedPeek
	}
	c.verifyLocks()
	return c.uptodate < NeedRelock
}

// Unlock drops every lock this cursor holds but keeps the node references
// and their sequence snapshots, so the next traversal can try the cheap
// relock cascade before redescending.
func (c *Cursor) Unlock() error {
	c.uptodate = maxUptodate(c.uptodate, NeedRelock)
	for l := 0; l < MaxDepth; l++ {
		if c.l[l].isRealNode() {
			c.unlockLevel(l)
		}
	}
	if c.flags&FlagError != 0 {
		return ErrIO
	}
	return nil
}

// Peers returns every other cursor sharing this cursor's ring.
func (c *Cursor) Peers() []*Cursor {
	if c.ring == nil {
		return nil
	}
	return c.ring.Peers(c.slot)
}

// RingAll returns this cursor plus its peers, self first.
func (c *Cursor) RingAll() []*Cursor {
	return append([]*Cursor{c}, c.Peers()...)
}

// Copy unlocks dst, then adopts src's position and lock bookkeeping
// wholesale, incrementing every lock src holds so both cursors jointly hold
// the referenced nodes. dst keeps its own ring membership. In-node
// iterators are cloned so the two cursors advance independently.
func (c *Cursor) Copy(src *Cursor) {
	c.Unlock()
	ring, slot := c.ring, c.slot
	*c = *src
	c.ring = ring
	c.slot = slot
	for l := 0; l < MaxDepth; l++ {
		if !c.l[l].isRealNode() {
			continue
		}
		c.l[l].iter = c.l[l].iter.clone()
		if mode, ok := c.heldModeAt(l); ok {
			c.l[l].node.Lock.Increment(mode)
		}
	}
}

// raceFaultHook is a test-injection point for the root race window in
// lockRoot: tests can force a retry regardless of whether the root pointer
// actually changed.
var raceFaultHook func() bool

func raceFault() bool {
	if raceFaultHook != nil {
		return raceFaultHook()
	}
	return false
}

// Traverse brings the cursor's locked path up to date with its current pos
// and locksWant, descending from the root as needed. Restart and
// out-of-memory failures are absorbed by the ring-wide recovery procedure
// (TraverseError); what is returned is an I/O failure, or ErrRestart when
// the cursor still has ring peers after that recovery.
func (c *Cursor) Traverse() error {
	if c.flags&FlagError != 0 {
		return ErrIO
	}
	err := c.traverseOne()
	if err != nil && (errors.Is(err, ErrRestart) || errors.Is(err, ErrNoMem)) {
		cann, _ := c.fetcher.(CacheCannibaliser)
		err = TraverseError(c, err, cann)
	}
	return err
}

// traverseOne is the traversal state machine proper, without the ring-wide
// error recovery Traverse layers on top.
func (c *Cursor) traverseOne() error {
	if c.uptodate < NeedRelock {
		return nil
	}

	// Optimistic fast path: reacquire the old locks by sequence number.
	if c.acquireLocksWant(false) {
		return nil
	}

	c.flags &^= FlagAtEndOfLeaf

	// Walk up to the highest level still relockable whose node covers pos,
	// dropping everything beneath it.
	c.level = c.upUntilLocked()
	if st := &c.l[c.level]; st.isRealNode() {
		c.advancePast(st)
	}

	// Walk back down, locking as we go. A nil/off-tree top level means we
	// lost (or never had) the root and must reacquire it.
	for c.level > c.depth {
		if c.l[c.level].isRealNode() {
			if err := c.descend(); err != nil {
				c.level = c.depth
				c.l[c.depth].node = notEnd
				return err
			}
			continue
		}
		done, err := c.lockRoot()
		if err != nil {
			c.level = c.depth
			c.l[c.depth].node = notEnd
			return err
		}
		if done {
			break
		}
	}

	c.uptodate = NeedPeek
	c.verifyLocks()
	return nil
}

// upUntilLocked walks upward from the cursor's level looking for the first
// level that can be relocked and whose node still covers pos, unlocking and
// marking off-tree everything that cannot. Returns the level found, or the
// top sentinel level (off-tree) when nothing qualifies.
func (c *Cursor) upUntilLocked() int {
	l := c.level
	for l < MaxDepth {
		st := &c.l[l]
		if !st.isRealNode() {
			l++
			continue
		}
		if c.relockLevel(l) && st.node.contains(c.pos) {
			return l
		}
		c.unlockLevel(l)
		st.node = notEnd
		l++
	}
	return MaxDepth - 1
}

// advancePast moves a level's in-node iterator forward past every entry
// wholly before the cursor's position, so the level is ready to resume
// descending or peeking from pos onward.
func (c *Cursor) advancePast(st *levelState) {
	if st.iter == nil {
		st.iter = newNodeIterAt(st.node, c.pos, c.btreeID)
		return
	}
	for {
		k, ok := st.iter.PeekAll()
		if !ok || keyAfterPos(k, c.pos) {
			break
		}
		st.iter.Advance()
	}
}

// descend locks the child referenced by the current level's in-node
// iterator position and moves the cursor down one level.
func (c *Cursor) descend() error {
	st := &c.l[c.level]
	if st.iter == nil {
		st.iter = newNodeIterAt(st.node, c.pos, c.btreeID)
	}
	k, ok := st.iter.Peek()
	if !ok {
		// No child at or after pos below this level: off the end of the
		// tree.
		for l := c.depth; l < c.level; l++ {
			c.unlockLevel(l)
			c.l[l].node = notEnd
		}
		c.level = c.depth
		return nil
	}

	nextLevel := c.level - 1
	mode := c.wantMode(nextLevel)

	child, err := c.fetcher.GetNode(st.node, k, nextLevel, mode)
	if err != nil {
		if errors.Is(err, ErrIO) {
			c.flags |= FlagError
		}
		return err
	}
	if !c.lockWithCoordinator(child, c.pos, nextLevel, mode, true) {
		return ErrRestart
	}

	c.l[nextLevel] = levelState{
		node: child,
		iter: newNodeIterAt(child, c.pos, c.btreeID),
	}
	c.markLocked(nextLevel, mode)

	if c.flags&FlagPrefetch != 0 {
		c.prefetchSiblings(st, nextLevel)
	}

	c.level = nextLevel
	return nil
}

// lockRoot locks the tree's current root, retrying if a concurrent root
// swap is detected between the lock and the re-check. done is true once the
// cursor's target depth already exceeds the tree's height (nothing left to
// lock - walking nodes at a depth the tree does not have).
func (c *Cursor) lockRoot() (done bool, err error) {
	for {
		root, rootLevel, err := c.fetcher.RootPointer(c.btreeID)
		if err != nil {
			return false, err
		}
		if rootLevel < c.depth {
			c.level = c.depth
			c.l[c.level].node = nil
			return true, nil
		}

		mode := c.wantMode(rootLevel)
		// The root bounds the whole keyspace, so order it as the greatest
		// position rather than wherever this cursor happens to sit.
		if !c.lockWithCoordinator(root, PosMax, rootLevel, mode, true) {
			return false, ErrRestart
		}

		root2, rootLevel2, err2 := c.fetcher.RootPointer(c.btreeID)
		if raceFault() || err2 != nil || root2 != root || rootLevel2 != rootLevel {
			root.Lock.Unlock(mode)
			if err2 != nil {
				return false, err2
			}
			continue
		}

		for i := 0; i < rootLevel; i++ {
			c.l[i].node = notEnd
		}
		c.l[rootLevel] = levelState{
			node: root,
			iter: newNodeIterAt(root, c.pos, c.btreeID),
		}
		c.level = rootLevel
		c.markLocked(rootLevel, mode)
		return false, nil
	}
}

// prefetchSiblings peeks a few entries past the one just descended into, on
// a private clone of the parent's iterator, and issues best-effort prefetch
// hints for them. Leaf children get a deeper lookahead than interior ones.
func (c *Cursor) prefetchSiblings(st *levelState, childLevel int) {
	it := st.iter.clone()
	nr := 1
	if childLevel == 0 {
		nr = 2
	}
	for i := 0; i < nr; i++ {
		it.Advance()
		k, ok := it.Peek()
		if !ok {
			break
		}
		c.fetcher.Prefetch(st.node, k, childLevel)
	}
}

func (c *Cursor) ensureReady() error {
	if c.flags&FlagError != 0 {
		return ErrIO
	}
	return nil
}

// setKey caches k as the cursor's current key. pos moves to the key's start
// position, except that an extent already straddling pos leaves pos where
// it is.
func (c *Cursor) setKey(k Key) {
	c.k = k
	if !k.IsExtent() || posGreater(StartPos(k), c.pos) {
		c.pos = StartPos(k)
	}
	c.uptodate = UpToDate
}

// Peek returns the first live key at or after the cursor's position,
// traversing or retraversing as needed. ok is false, with no error, at the
// end of the tree.
func (c *Cursor) Peek() (Key, bool, error) {
	if err := c.ensureReady(); err != nil {
		return Key{}, false, err
	}
	for {
		if c.uptodate == UpToDate {
			return c.k, true, nil
		}
		if err := c.Traverse(); err != nil {
			return Key{}, false, err
		}
		st := &c.l[0]
		if !st.isRealNode() {
			return Key{}, false, nil
		}
		k, ok := st.iter.Peek()
		if !ok {
			// Ran off the end of this leaf.
			c.pos = st.node.MaxBound
			c.uptodate = NeedTraverse
			if c.pos == PosMax {
				return Key{}, false, nil
			}
			c.pos = Successor(c.btreeID, c.pos)
			continue
		}
		c.setKey(k)
		return k, true, nil
	}
}

// Next advances past the current key and returns the next live one, rolling
// over to the next leaf when this one is exhausted.
func (c *Cursor) Next() (Key, bool, error) {
	if err := c.ensureReady(); err != nil {
		return Key{}, false, err
	}
	if c.uptodate != UpToDate {
		if _, ok, err := c.Peek(); err != nil || !ok {
			return Key{}, ok, err
		}
	}
	st := &c.l[0]
	for {
		st.iter.Advance()
		k, ok := st.iter.PeekAll()
		if !ok {
			c.pos = st.node.MaxBound
			c.uptodate = NeedTraverse
			if c.pos == PosMax {
				return Key{}, false, nil
			}
			c.pos = Successor(c.btreeID, c.pos)
			return c.Peek()
		}
		if !k.IsWhiteout() {
			c.k = k
			c.pos = StartPos(k)
			return k, true, nil
		}
	}
}

// Prev returns the greatest live key strictly before the current one (or at
// or before pos, if the cursor is not parked on a key), stepping backward
// across leaves as needed.
func (c *Cursor) Prev() (Key, bool, error) {
	if err := c.ensureReady(); err != nil {
		return Key{}, false, err
	}
	if c.uptodate == UpToDate {
		start := StartPos(c.k)
		if start == PosMin {
			return Key{}, false, nil
		}
		c.SetPos(Predecessor(c.btreeID, start))
	}
	for {
		if err := c.Traverse(); err != nil {
			return Key{}, false, err
		}
		st := &c.l[0]
		if !st.isRealNode() {
			return Key{}, false, nil
		}
		k, ok := st.iter.Prev(c.pos)
		if !ok {
			if st.node.MinKey == PosMin {
				return Key{}, false, nil
			}
			// SetPos, not a bare assignment: the parent's iterator has to
			// rewind too for the redescent to pick the right child.
			c.SetPos(Predecessor(c.btreeID, st.node.MinKey))
			continue
		}
		c.k = k
		c.pos = StartPos(k)
		c.uptodate = UpToDate
		return k, true, nil
	}
}

// tryAdvanceIterBounded bumps a level's iterator forward at most maxSteps
// entries; false means too many keys lie between and the caller should
// rebuild the iterator from scratch instead.
func (c *Cursor) tryAdvanceIterBounded(st *levelState, maxSteps int) bool {
	if st.iter == nil {
		return false
	}
	for i := 0; i < maxSteps; i++ {
		k, ok := st.iter.PeekAll()
		if !ok || keyAfterPos(k, c.pos) {
			return true
		}
		st.iter.Advance()
	}
	return false
}

// SetPos repositions the cursor, keeping whatever locked prefix of its path
// still covers newPos. Within a still-covering node, a short forward move
// just advances the in-node iterator; a long or backward one rebuilds it.
func (c *Cursor) SetPos(newPos Pos) {
	cmp := ComparePos(newPos, c.pos)
	if cmp == 0 {
		return
	}
	c.pos = newPos

	level := c.upUntilLocked()
	if st := &c.l[level]; st.isRealNode() {
		if cmp < 0 || !c.tryAdvanceIterBounded(st, 8) {
			st.iter = newNodeIterAt(st.node, newPos, c.btreeID)
		}
	}

	if level != c.level {
		c.uptodate = maxUptodate(c.uptodate, NeedTraverse)
	} else {
		c.uptodate = maxUptodate(c.uptodate, NeedPeek)
	}
}

// SetPosSameLeaf repositions the cursor forward within its current leaf
// only, without touching any lock - callers must already hold the leaf and
// know newPos is not behind the current position. If the move runs off the
// leaf's end the cursor is flagged and marked for a full traversal.
func (c *Cursor) SetPosSameLeaf(newPos Pos) {
	st := &c.l[0]
	c.pos = newPos
	c.uptodate = maxUptodate(c.uptodate, NeedPeek)
	if !st.isRealNode() || st.iter == nil {
		return
	}
	for {
		k, ok := st.iter.PeekAll()
		if !ok {
			if posGreater(c.pos, st.node.MaxBound) {
				c.uptodate = maxUptodate(c.uptodate, NeedTraverse)
				c.flags |= FlagAtEndOfLeaf
			}
			return
		}
		if keyAfterPos(k, c.pos) {
			return
		}
		st.iter.Advance()
	}
}

// Upgrade raises this cursor's locksWant to newLocksWant and runs the
// upgrade cascade. On failure it also raises locksWant on peers that order
// at or before this cursor in the same tree, so their next traversal takes
// the stronger locks first and a retry does not immediately hit the same
// ordering conflict.
func (c *Cursor) Upgrade(newLocksWant int) bool {
	if newLocksWant <= c.locksWant {
		return true
	}
	c.locksWant = newLocksWant

	if c.acquireLocksWant(true) {
		return true
	}

	for _, p := range c.Peers() {
		if p.btreeID == c.btreeID &&
			idPosLessEq(p.btreeID, p.pos, c.btreeID, c.pos) &&
			p.locksWant < newLocksWant {
			p.locksWant = newLocksWant
			p.acquireLocksWant(true)
		}
	}
	return false
}

// Downgrade lowers locksWant for this cursor and every peer (an earlier
// Upgrade may have raised theirs too), releasing levels above the new want
// and converting the remaining intent back to read where the cursor's own
// flags no longer require it.
func (c *Cursor) Downgrade(to int) {
	for _, p := range c.RingAll() {
		want := to
		if want == 0 && p.flags&FlagIntent != 0 {
			want = 1
		}
		if p.locksWant <= want {
			continue
		}
		p.locksWant = want
		for {
			hi, ok := highestLockedLevel(p)
			if !ok || hi < p.locksWant {
				break
			}
			if hi > p.level {
				p.unlockLevel(hi)
				continue
			}
			if p.nodesIntentLocked&(1<<uint(hi)) != 0 {
				p.l[hi].node.Lock.Downgrade()
				p.nodesIntentLocked &^= 1 << uint(hi)
				p.l[hi].lockSeq = p.l[hi].node.Lock.Seq() &^ 1
			}
			break
		}
		p.verifyLocks()
	}
}

// RelockAll runs the cheap relock cascade on every cursor in the ring,
// returning false if any of them needs a full traversal instead.
func (c *Cursor) RelockAll() bool {
	ok := true
	for _, p := range c.RingAll() {
		if p.uptodate >= NeedRelock {
			ok = p.acquireLocksWant(false) && ok
		}
	}
	return ok
}

// verifyLocks asserts that every level whose locked bit is set references a
// real node, is actually held in at least the wanted mode, and that the
// saved sequence snapshot still matches the lock.
func (c *Cursor) verifyLocks() {
	if !DebugAssertions {
		return
	}
	if c.nodesIntentLocked&^c.nodesLocked != 0 {
		panic("btreeiter: intent bits outside locked bits")
	}
	for l := 0; l < MaxDepth; l++ {
		if c.nodesLocked&(1<<uint(l)) == 0 {
			continue
		}
		st := &c.l[l]
		if !st.isRealNode() {
			panic("btreeiter: locked level without a node")
		}
		held, anyone := st.node.Lock.HeldMode()
		if !anyone || held < c.wantMode(l) {
			panic("btreeiter: node lock below the cursor's wanted mode")
		}
		if st.lockSeq>>1 != st.node.Lock.Seq()>>1 {
			panic("btreeiter: lock sequence snapshot out of date")
		}
	}
}
