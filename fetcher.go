package btreeiter

// NodeFetcher is the node cache contract the cursor core traverses against
// but never owns. GetNode resolves the child referenced by one entry of an
// already-locked parent node; Prefetch is a fire-and-forget hint;
// RootPointer is how a cursor discovers (and, implicitly, races on) the
// current root.
type NodeFetcher interface {
	// GetNode resolves the child of parent that key (one of parent's
	// entries) points at, at the given level and in the given intended lock
	// mode (the fetcher does not itself lock the node - Traverse does that
	// through the peer-ring coordinator once GetNode returns).
	GetNode(parent *BtreeNode, key Key, level int, mode LockMode) (*BtreeNode, error)

	// Prefetch hints that key's child (or children near it) will likely be
	// wanted soon. Implementations may ignore this entirely.
	Prefetch(parent *BtreeNode, key Key, level int)

	// RootPointer returns the tree's current root node and its level.
	RootPointer(id BtreeID) (*BtreeNode, int, error)
}
