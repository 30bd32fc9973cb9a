package btreeiter

import "sort"

// bsetEntry is one key plus the storage offset it occupies within its
// owning Bset. Real on-disk bsets pack keys into variable-length u64 words;
// this in-memory representation gives every key a fixed width of one
// storage unit, so the edit callbacks in fixup.go count entries rather than
// words. The algorithm shape - shift trailing offsets, snap an overwritten
// offset to either side of the edit - is unaffected by that simplification.
type bsetEntry struct {
	offset int
	key    Key
}

// Bset is one sorted run of keys within a node. A node holds one or more
// bsets; NodeIter merges across all of a node's bsets. The mutation path in
// this module (InsertOrOverwrite/MarkDeleted) edits the primary bset in
// place and never appends a new one.
type Bset struct {
	entries []bsetEntry
}

func newBset(keys []Key) *Bset {
	b := &Bset{entries: make([]bsetEntry, len(keys))}
	for i, k := range keys {
		b.entries[i] = bsetEntry{offset: i, key: k}
	}
	return b
}

// end returns the offset one past the last entry - the bset's exclusive end
// offset, which the fixup protocol uses to detect which iterator
// participants were watching this bset when an edit landed.
func (b *Bset) end() int { return len(b.entries) }

func (b *Bset) entryAt(offset int) (bsetEntry, bool) {
	if offset < 0 || offset >= len(b.entries) {
		return bsetEntry{}, false
	}
	return b.entries[offset], true
}

// Len reports how many live-or-whiteout entries a bset holds.
func (b *Bset) Len() int { return len(b.entries) }

// BtreeNode is a cached in-memory image of one B-tree page: its level, key
// range, per-node lock, and content (one or more sorted Bsets). Interior
// nodes (Level > 0) store child pointers in Children, keyed by each child's
// separator position.
type BtreeNode struct {
	ID    uint64 // stable node identity, used as the node cache key
	Level int    // 0 = leaf
	Lock  *NodeLock

	// MinKey/MaxBound bound the keyspace this node is responsible for:
	// every key the node may ever hold falls within [MinKey, MaxBound].
	// MaxBound is fixed at creation/split time and is not derived from the
	// node's current content - the rightmost node on each level carries
	// PosMax.
	MinKey   Pos
	MaxBound Pos

	bsets []*Bset

	// Children holds child BtreeNode pointers for interior nodes, keyed by
	// the separator position each entry carries; leaves leave it nil. Kept
	// as a side table rather than inline in Key.Value to keep Key a plain
	// value type usable by both interior and leaf nodes.
	Children map[Pos]*BtreeNode
}

// NewBtreeNode returns a leaf or interior node seeded with one Bset,
// bounded [minKey, PosMax] until a split narrows it.
func NewBtreeNode(id uint64, level int, minKey Pos, keys []Key) *BtreeNode {
	n := &BtreeNode{
		ID:       id,
		Level:    level,
		Lock:     NewNodeLock(),
		MinKey:   minKey,
		MaxBound: PosMax,
		bsets:    []*Bset{newBset(keys)},
	}
	if level > 0 {
		n.Children = make(map[Pos]*BtreeNode)
	}
	return n
}

// MaxKey is the greatest key position currently stored in the node; for an
// empty node it is MinKey. Distinct from MaxBound, which is the greatest
// position the node is responsible for whether or not a key is there yet.
func (n *BtreeNode) MaxKey() Pos {
	max := n.MinKey
	for _, b := range n.bsets {
		for _, e := range b.entries {
			if posGreater(e.key.P, max) {
				max = e.key.P
			}
		}
	}
	return max
}

// contains reports whether pos falls within the node's [MinKey, MaxBound]
// responsibility range.
func (n *BtreeNode) contains(pos Pos) bool {
	return posLessEq(n.MinKey, pos) && posLessEq(pos, n.MaxBound)
}

// PrimaryBset returns the node's first bset. The reference mutation path
// (node.Tree) only ever edits this one; additional bsets are only ever
// constructed directly by tests exercising NodeIterFix's multi-participant
// merge path.
func (n *BtreeNode) PrimaryBset() *Bset { return n.bsets[0] }

// EntryAt is the exported form of entryAt for the primary bset, used by
// node.Tree to find a split boundary key.
func (n *BtreeNode) EntryAt(offset int) (Key, bool) {
	e, ok := n.bsets[0].entryAt(offset)
	return e.key, ok
}

// Split truncates the primary bset to its first mid entries and returns the
// keys that were removed, in ascending order, renumbering what remains.
// Callers are expected to build a new sibling BtreeNode from the returned
// keys and to rebound both nodes afterward.
func (n *BtreeNode) Split(mid int) []Key {
	b := n.bsets[0]
	tail := make([]Key, 0, len(b.entries)-mid)
	for _, e := range b.entries[mid:] {
		tail = append(tail, e.key)
	}
	b.entries = b.entries[:mid]
	n.renumber()
	return tail
}

// InsertOrOverwrite inserts k in sorted order by StartPos, or overwrites the
// entry already at that position, returning the (where, clobberEntries,
// newEntries) triple NodeIterFix expects.
func (n *BtreeNode) InsertOrOverwrite(k Key) (where, clobberEntries, newEntries int) {
	b := n.bsets[0]
	start := StartPos(k)
	idx := sort.Search(len(b.entries), func(i int) bool {
		return posGreaterEq(StartPos(b.entries[i].key), start)
	})
	if idx < len(b.entries) && StartPos(b.entries[idx].key) == start {
		b.entries[idx].key = k
		return idx, 1, 1
	}
	b.entries = append(b.entries, bsetEntry{})
	copy(b.entries[idx+1:], b.entries[idx:len(b.entries)-1])
	b.entries[idx] = bsetEntry{key: k}
	n.renumber()
	return idx, 0, 1
}

// MarkDeleted turns the live entry at pos into a whiteout in place. It is
// idempotent: marking an already-deleted entry deleted again still reports
// ok. ok is false only when no entry at all exists at pos.
func (n *BtreeNode) MarkDeleted(pos Pos) (where, clobberEntries, newEntries int, ok bool) {
	b := n.bsets[0]
	idx := sort.Search(len(b.entries), func(i int) bool {
		return posGreaterEq(b.entries[i].key.P, pos)
	})
	if idx >= len(b.entries) || b.entries[idx].key.P != pos {
		return 0, 0, 0, false
	}
	b.entries[idx].key.Type = KeyTypeDeleted
	return idx, 1, 1, true
}

// renumber resets every entry's offset field to its slice index, after an
// edit that shifted entries around.
func (n *BtreeNode) renumber() {
	for i := range n.bsets[0].entries {
		n.bsets[0].entries[i].offset = i
	}
}

// FindChildFor returns the interior entry that should be descended into to
// reach pos: the first entry whose separator position is >= pos, or the
// last entry if pos exceeds every separator - the rightmost child is the
// catch-all for everything beyond the last recorded separator.
func (n *BtreeNode) FindChildFor(pos Pos) (Key, bool) {
	b := n.bsets[0]
	if len(b.entries) == 0 {
		return Key{}, false
	}
	idx := sort.Search(len(b.entries), func(i int) bool {
		return posGreaterEq(b.entries[i].key.P, pos)
	})
	if idx == len(b.entries) {
		idx = len(b.entries) - 1
	}
	return b.entries[idx].key, true
}

// keyAfterPos reports whether k is at or after an iterator positioned at
// pos, i.e. whether a forward iterator should stop at k rather than pass
// it. An extent whose end equals pos covers nothing at pos and is passed
// over; so is a whiteout sitting exactly at pos, so peeks resume on the
// first key that could still be visible there.
func keyAfterPos(k Key, pos Pos) bool {
	cmp := ComparePos(k.P, pos)
	return cmp > 0 || (cmp == 0 && !k.IsExtent() && !k.IsWhiteout())
}

// iterSet tracks one bset's current position within a merged NodeIter: k is
// the bset-local offset the iterator is parked at, and end is that bset's
// end offset as of when the iterator last observed it (fixup uses it to
// detect which participants an edit shifted).
type iterSet struct {
	bset *Bset
	k    int
	end  int
}

// NodeIter is a cursor's merged view across a node's bsets, positioned at
// some key. It supports peek/peek-all (view without consuming), advance
// (move past the current entry), backward peeks, push (reinsert a set, used
// by the interior fixup rewind), and sort (re-establish ascending order
// after an offset edit).
type NodeIter struct {
	node    *BtreeNode
	sets    []*iterSet
	btreeID BtreeID
}

// newNodeIterAt builds a NodeIter for node positioned at the first entry at
// or after pos, per keyAfterPos. btreeID is the owning tree's id, needed by
// Prev's whiteout backstep, which must decrement by the tree-kind's own
// predecessor rather than assuming one kind for every node.
func newNodeIterAt(n *BtreeNode, pos Pos, btreeID BtreeID) *NodeIter {
	it := &NodeIter{node: n, btreeID: btreeID}
	for _, b := range n.bsets {
		k := sort.Search(len(b.entries), func(i int) bool {
			return keyAfterPos(b.entries[i].key, pos)
		})
		if k < len(b.entries) {
			it.sets = append(it.sets, &iterSet{bset: b, k: k, end: b.end()})
		}
	}
	it.sortSets()
	return it
}

// clone returns an independent copy sharing the same underlying bsets but
// with private positions, so advancing one iterator never perturbs the
// other. Used by cursor copies and by prefetch lookahead.
func (it *NodeIter) clone() *NodeIter {
	if it == nil {
		return nil
	}
	cp := &NodeIter{node: it.node, btreeID: it.btreeID}
	for _, s := range it.sets {
		cp.sets = append(cp.sets, &iterSet{bset: s.bset, k: s.k, end: s.end})
	}
	return cp
}

func (it *NodeIter) sortSets() {
	sort.Slice(it.sets, func(i, j int) bool {
		ei, oki := it.sets[i].bset.entryAt(it.sets[i].k)
		ej, okj := it.sets[j].bset.entryAt(it.sets[j].k)
		if !oki {
			return false
		}
		if !okj {
			return true
		}
		return posLess(StartPos(ei.key), StartPos(ej.key))
	})
}

// Sort re-establishes ascending order across participants; exported for the
// fixup protocol, which must re-sort after editing offsets in place.
func (it *NodeIter) Sort() { it.sortSets() }

// dropEmpty removes any set whose k offset has run off the end of its bset.
func (it *NodeIter) dropEmpty() {
	kept := it.sets[:0]
	for _, s := range it.sets {
		if _, ok := s.bset.entryAt(s.k); ok {
			kept = append(kept, s)
		}
	}
	it.sets = kept
}

// PeekAll returns the entry the iterator is parked at, including whiteouts,
// or false if the node has no more entries at or after the iterator.
func (it *NodeIter) PeekAll() (Key, bool) {
	it.dropEmpty()
	if len(it.sets) == 0 {
		return Key{}, false
	}
	e, _ := it.sets[0].bset.entryAt(it.sets[0].k)
	return e.key, true
}

// Peek is PeekAll but skips whiteouts, returning the first live
// (non-deleted) key. Skipped whiteouts are consumed.
func (it *NodeIter) Peek() (Key, bool) {
	for {
		it.dropEmpty()
		if len(it.sets) == 0 {
			return Key{}, false
		}
		e, _ := it.sets[0].bset.entryAt(it.sets[0].k)
		if !e.key.IsWhiteout() {
			return e.key, true
		}
		it.Advance()
	}
}

// Advance moves the iterator past whatever PeekAll currently returns.
func (it *NodeIter) Advance() {
	it.dropEmpty()
	if len(it.sets) == 0 {
		return
	}
	it.sets[0].k++
	it.sortSets()
}

// PrevAll returns the greatest entry with start position <= pos, scanning
// backward across all bsets.
func (it *NodeIter) PrevAll(pos Pos) (Key, bool) {
	var best *Key
	for _, b := range it.node.bsets {
		k := sort.Search(len(b.entries), func(i int) bool {
			return posGreater(StartPos(b.entries[i].key), pos)
		})
		if k == 0 {
			continue
		}
		cand := b.entries[k-1].key
		if best == nil || posGreater(StartPos(cand), StartPos(*best)) {
			c := cand
			best = &c
		}
	}
	if best == nil {
		return Key{}, false
	}
	return *best, true
}

// Prev is PrevAll but skips whiteouts.
func (it *NodeIter) Prev(pos Pos) (Key, bool) {
	for {
		k, ok := it.PrevAll(pos)
		if !ok {
			return Key{}, false
		}
		if !k.IsWhiteout() {
			return k, true
		}
		pos = Predecessor(it.btreeID, StartPos(k))
	}
}

// Push reinserts a (bset, offset) pair into the merged iterator - used by
// the interior-node fixup rewind to bring back an entry the cursor had
// already stepped past.
func (it *NodeIter) Push(b *Bset, offset int) {
	for _, s := range it.sets {
		if s.bset == b {
			if offset < s.k {
				s.k = offset
			}
			it.sortSets()
			return
		}
	}
	it.sets = append(it.sets, &iterSet{bset: b, k: offset, end: b.end()})
	it.sortSets()
}
