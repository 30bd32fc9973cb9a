package btreeiter

// notEnd is the sentinel a levelState.node field is set to when that level
// holds no node of the cursor's path: not reached yet (every level starts
// out this way), unwound past, or dropped. It is distinct from nil, which
// lockRoot stores at the target depth when the tree's root sits below that
// depth.
var notEnd = &BtreeNode{}

// levelState is one cursor's state at one tree level: the node occupying
// that level of the cursor's path, the cursor's position iterator within
// it, and the lock sequence snapshot taken while the node was held -
// what Relock checks after the lock was temporarily dropped.
type levelState struct {
	node    *BtreeNode
	iter    *NodeIter
	lockSeq uint64
}

// isRealNode reports whether this level holds an actual node reference,
// as opposed to being unset (nil) or off-tree (notEnd).
func (s *levelState) isRealNode() bool { return s.node != nil && s.node != notEnd }
