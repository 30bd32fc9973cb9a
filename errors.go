package btreeiter

import (
	"errors"
	"sort"
)

// The three errors Traverse and its callers propagate. Every other failure
// mode is a programming error (invariant violation) and panics instead of
// returning an error - consistent with the rest of the package treating
// lock/iterator invariants as assertions, not recoverable conditions.
var (
	// ErrRestart means the whole transaction must unlock, reorder, and
	// retraverse every cursor in the ring; returned when the peer-ring lock
	// coordinator detects an ordering conflict (a lost root race is retried
	// in place and does not surface). Always recoverable by retrying.
	ErrRestart = errors.New("btreeiter: transaction restart required")

	// ErrNoMem means the node cache had no room to fault in a node; the
	// recovery path takes the cache's cannibalise lock before retrying so
	// concurrent restarts don't thrash.
	ErrNoMem = errors.New("btreeiter: node cache exhausted")

	// ErrIO means a node failed to read back (checksum failure or
	// equivalent); the cursor is poisoned (FlagError) and every future
	// operation on it returns ErrIO until it is reinitialized.
	ErrIO = errors.New("btreeiter: I/O or checksum failure")
)

// CacheCannibaliser is the slice of the node cache contract the restart
// path needs: a way to serialize ErrNoMem recovery against concurrent
// restarts. The cache may block the caller until it can guarantee a free
// node.
type CacheCannibaliser interface {
	CannibaliseLock()
	CannibaliseUnlock()
}

// TraverseError is the ring-wide recovery procedure run when one cursor's
// traversal fails: unlock every cursor in c's ring, take the cache's
// cannibalise lock if the failure was ErrNoMem, then retraverse every
// cursor in ascending (btree id, pos) order - the same global order the
// lock coordinator enforces, which is what guarantees the retry converges.
// A cursor that itself reports an ordering conflict is retried in place;
// any other failure restarts the whole procedure, since by then the locks
// other ring members hold may have changed. An I/O failure is not
// recoverable: the originating cursor is poisoned and the error surfaced.
//
// Returns nil when c ended up solitary (its traversal succeeded and no
// peer's view could have been invalidated), or ErrRestart when c still has
// peers - the caller's transaction must restart, because the peers'
// positions were re-established in an order the caller did not choose.
func TraverseError(c *Cursor, cause error, cache CacheCannibaliser) error {
	cannibalised := false
	defer func() {
		if cannibalised {
			cache.CannibaliseUnlock()
		}
	}()

retryAll:
	for {
		for _, p := range c.RingAll() {
			p.Unlock()
		}

		if !errors.Is(cause, ErrRestart) && !errors.Is(cause, ErrNoMem) {
			c.flags |= FlagError
			return cause
		}

		if errors.Is(cause, ErrNoMem) && cache != nil && !cannibalised {
			cache.CannibaliseLock()
			cannibalised = true
		}

		sorted := append([]*Cursor(nil), c.RingAll()...)
		sort.Slice(sorted, func(i, j int) bool {
			return idPosLess(sorted[i].btreeID, sorted[i].pos, sorted[j].btreeID, sorted[j].pos)
		})

		for _, p := range sorted {
			for {
				err := p.traverseOne()
				if err == nil {
					break
				}
				if errors.Is(err, ErrRestart) {
					continue
				}
				cause = err
				continue retryAll
			}
		}

		if len(c.Peers()) > 0 {
			return ErrRestart
		}
		return nil
	}
}
