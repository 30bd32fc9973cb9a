// Package node supplies the collaborators the cursor/transaction core
// treats as opaque: an in-memory node cache and a reference B-tree
// mutation path (Tree) that exercises the core's fixup callbacks
// end-to-end, standing in for the production cache and mutation machinery.
package node

import (
	"sync"
	"sync/atomic"

	"github.com/dijkstracula/btreeiter"
)

// Cache is an in-memory node store. It never evicts, so lookups never miss
// once a node has been stored; CannibaliseLock exists to preserve the
// recovery call shape the core's retry-all procedure expects when a real
// cache runs out of room.
type Cache struct {
	nodes  sync.Map // uint64 -> *btreeiter.BtreeNode
	nextID uint64

	cannibalise sync.Mutex
}

// NewCache returns an empty cache.
func NewCache() *Cache { return &Cache{} }

// NewID allocates a fresh node identity.
func (c *Cache) NewID() uint64 { return atomic.AddUint64(&c.nextID, 1) }

// Store records n under its own ID.
func (c *Cache) Store(n *btreeiter.BtreeNode) { c.nodes.Store(n.ID, n) }

// Load resolves a node by ID.
func (c *Cache) Load(id uint64) (*btreeiter.BtreeNode, bool) {
	v, ok := c.nodes.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*btreeiter.BtreeNode), true
}

// Delete removes a node's cache entry.
func (c *Cache) Delete(id uint64) { c.nodes.Delete(id) }

// CannibaliseLock/CannibaliseUnlock serialize out-of-memory recovery
// attempts against each other. This reference cache never actually runs
// out, so nothing in this module reaches the ErrNoMem path that takes it.
func (c *Cache) CannibaliseLock()   { c.cannibalise.Lock() }
func (c *Cache) CannibaliseUnlock() { c.cannibalise.Unlock() }
