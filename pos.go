package btreeiter

import "math"

// BtreeID names one of the keyspaces sharing this cursor/transaction
// machinery. Successor/predecessor of a Pos is defined per BtreeID: ordinary
// trees advance the offset (wrapping into the next inode on overflow), while
// the inodes tree advances the inode instead.
type BtreeID uint8

const (
	BtreeExtents BtreeID = iota
	BtreeDirents
	BtreeInodes
	BtreeXattrs
)

// IsInodesTree reports whether successor/predecessor should advance the
// inode component rather than the offset component.
func (id BtreeID) IsInodesTree() bool { return id == BtreeInodes }

// Pos is an ordered key identifier: a total order over (inode, offset)
// pairs.
type Pos struct {
	Inode  uint64
	Offset uint64
}

// PosMin and PosMax bound every Pos ordering from below and above.
var (
	PosMin = Pos{Inode: 0, Offset: 0}
	PosMax = Pos{Inode: math.MaxUint64, Offset: math.MaxUint64}
)

// ComparePos returns -1, 0, or 1 as a is less than, equal to, or greater
// than b, ordering first by Inode and then by Offset.
func ComparePos(a, b Pos) int {
	switch {
	case a.Inode < b.Inode:
		return -1
	case a.Inode > b.Inode:
		return 1
	case a.Offset < b.Offset:
		return -1
	case a.Offset > b.Offset:
		return 1
	default:
		return 0
	}
}

func posLess(a, b Pos) bool      { return ComparePos(a, b) < 0 }
func posLessEq(a, b Pos) bool    { return ComparePos(a, b) <= 0 }
func posGreater(a, b Pos) bool   { return ComparePos(a, b) > 0 }
func posGreaterEq(a, b Pos) bool { return ComparePos(a, b) >= 0 }

// Successor returns the next Pos after p within btree id's key space.
func Successor(id BtreeID, p Pos) Pos {
	if id.IsInodesTree() {
		if p.Inode == math.MaxUint64 {
			return PosMax
		}
		return Pos{Inode: p.Inode + 1, Offset: 0}
	}
	if p.Offset == math.MaxUint64 {
		if p.Inode == math.MaxUint64 {
			return PosMax
		}
		return Pos{Inode: p.Inode + 1, Offset: 0}
	}
	return Pos{Inode: p.Inode, Offset: p.Offset + 1}
}

// Predecessor returns the Pos immediately before p within btree id's key
// space.
func Predecessor(id BtreeID, p Pos) Pos {
	if id.IsInodesTree() {
		if p.Inode == 0 {
			return PosMin
		}
		return Pos{Inode: p.Inode - 1, Offset: math.MaxUint64}
	}
	if p.Offset == 0 {
		if p.Inode == 0 {
			return PosMin
		}
		return Pos{Inode: p.Inode - 1, Offset: math.MaxUint64}
	}
	return Pos{Inode: p.Inode, Offset: p.Offset - 1}
}

// KeyType distinguishes ordinary, deleted (whiteout), and extent keys.
type KeyType uint8

const (
	KeyTypeNormal KeyType = iota
	// KeyTypeDeleted marks a whiteout: a tombstone that hides an
	// underlying key from visibility without yet being physically removed.
	KeyTypeDeleted
)

// MaxSlotSize bounds the size of a synthetic hole key fabricated by
// PeekSlot/NextSlot; a gap larger than this is reported as several holes.
const MaxSlotSize = 1 << 20

// Key is a single B-tree key. A point key's start position is P; an extent
// key (Size > 0) logically covers the half-open range [P.Offset-Size,
// P.Offset) of the same inode.
type Key struct {
	P    Pos
	Size uint64
	Type KeyType
	// Value is opaque cursor payload; the core never inspects it.
	Value []byte
}

// IsWhiteout reports whether k represents absence rather than data.
func (k Key) IsWhiteout() bool { return k.Type == KeyTypeDeleted }

// IsExtent reports whether k covers a range rather than a single point.
func (k Key) IsExtent() bool { return k.Size > 0 }

// StartPos returns a key's start position: P for point keys, or
// P.Offset-Size (same inode) for extents.
func StartPos(k Key) Pos {
	if !k.IsExtent() {
		return k.P
	}
	return Pos{Inode: k.P.Inode, Offset: k.P.Offset - k.Size}
}

// EndPos returns the exclusive end of the range a key covers: P.Offset for
// extents, or Successor(P) for point keys (a single-position range).
func EndPos(id BtreeID, k Key) Pos {
	if k.IsExtent() {
		return k.P
	}
	return Successor(id, k.P)
}

// newHole fabricates a synthetic deleted key covering [from, to) used by
// SLOTS-mode iteration to represent a gap between live keys.
func newHole(from Pos, to Pos) Key {
	size := to.Offset - from.Offset
	if to.Inode != from.Inode || size > MaxSlotSize {
		size = MaxSlotSize
	}
	return Key{
		P:    Pos{Inode: from.Inode, Offset: from.Offset + size},
		Size: size,
		Type: KeyTypeDeleted,
	}
}
