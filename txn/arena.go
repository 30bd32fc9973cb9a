package txn

import "github.com/dijkstracula/btreeiter"

// arena is the bump allocator behind Kmalloc: scratch memory reset
// wholesale on restart or exit rather than freed piecemeal. The backing
// array starts empty and survives resets, so its sizing is paid once per
// transaction, not once per attempt.
type arena struct {
	buf   []byte
	off   int
	grown bool
}

const arenaDefaultCap = 4096

func newArena() *arena {
	return &arena{}
}

// alloc returns n zeroed bytes from the arena, growing it if necessary.
// The very first growth - sizing an arena that has never held anything -
// is free, since no slice handed out before it can exist. Every growth
// after that, for the whole lifetime of the arena (resets clear the
// allocations, not the growth history), reallocates the backing array and
// invalidates every slice already handed out, so it returns ErrRestart
// instead of the new slice; the caller must abandon the attempt rather
// than keep pointers into the stale array.
func (a *arena) alloc(n int) ([]byte, error) {
	if a.off+n > len(a.buf) {
		first := !a.grown
		a.grown = true

		size := len(a.buf)*2 + n
		if size < arenaDefaultCap {
			size = arenaDefaultCap
		}
		grown := make([]byte, size)
		copy(grown, a.buf[:a.off])
		a.buf = grown

		if !first {
			return nil, btreeiter.ErrRestart
		}
	}
	b := a.buf[a.off : a.off+n]
	a.off += n
	return b, nil
}

// reset reclaims every allocation made since the arena was created or last
// reset, keeping both the backing array and the record that it has already
// been sized - a growth on a later attempt still signals a restart.
func (a *arena) reset() {
	a.off = 0
}
