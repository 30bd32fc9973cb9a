// Copyright 2020 Nathan Taylor (nbtaylor@gmail.com)
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package btreeiter implements the cursor and transaction core of a
// copy-on-write B-tree: a per-node lock with three modes (read, intent,
// write), a traversal state machine that descends the tree acquiring those
// locks in a deadlock-free order across cooperating cursors, and a
// transaction container that groups cursors so they see a mutually
// consistent view.
//
// The per-node lock below is a close relative of hierarchical intention
// locks (S, X, IS, IX): a small state machine guarded by a mutex/condvar
// pair, with a compatibility predicate and a register step per mode. The
// B-tree core only needs three modes - read, intent, write - and adds an
// optimistic sequence counter so that a cursor which has dropped its locks
// can cheaply reacquire them (Relock) without a full re-traversal.
package btreeiter

import "sync"

// LockMode is one of the three states a NodeLock may be held in.
type LockMode uint8

const (
	// LockRead is held by any number of readers, so long as no writer holds
	// the node.
	LockRead LockMode = iota
	// LockIntent is held by at most one holder at a time (recursive
	// increments by a cursor that already holds it do not count as a second
	// holder); compatible with any number of readers. A write acquisition
	// must already hold intent.
	LockIntent
	// LockWrite is exclusive: no other reader, intent, or write holder.
	LockWrite
)

// NodeLock is the per-node lock every BtreeNode carries. Cursors acquire it
// through Traverse (via the peer-ring coordinator in lockorder.go) rather
// than calling its methods directly, except in tests.
type NodeLock struct {
	mu   sync.Mutex
	cond *sync.Cond

	readers    int
	intentHeld bool
	intentRec  int
	writeHeld  bool
	writeRec   int

	// seq is the optimistic sequence counter: its bottom bit is set while a
	// write is in progress, and it is bumped by one (past the in-progress
	// value, landing back on even) on every write unlock. A (begin, end)
	// pair of write holds therefore advances seq by exactly 2.
	seq uint64
}

// NewNodeLock returns an unlocked NodeLock.
func NewNodeLock() *NodeLock {
	l := &NodeLock{}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// compatible reports whether mode may be granted given the lock's current
// holders. Callers must hold l.mu.
func (l *NodeLock) compatible(mode LockMode) bool {
	switch mode {
	case LockRead:
		return !l.writeHeld
	case LockIntent:
		return !l.writeHeld && !l.intentHeld
	case LockWrite:
		return !l.writeHeld && l.readers == 0
	default:
		panic("btreeiter: unknown lock mode")
	}
}

// register records mode as held. Callers must hold l.mu and must have
// already established compatibility (or be performing a recursive
// increment, where compatibility was established by the first holder).
func (l *NodeLock) register(mode LockMode) {
	switch mode {
	case LockRead:
		l.readers++
	case LockIntent:
		l.intentHeld = true
		l.intentRec++
	case LockWrite:
		l.writeHeld = true
		l.writeRec++
		l.seq |= 1
	}
}

// TryLock attempts to take mode without blocking.
func (l *NodeLock) TryLock(mode LockMode) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.compatible(mode) {
		return false
	}
	l.register(mode)
	return true
}

// Lock blocks until mode can be acquired. selfReadHolds is the number of
// read locks the calling cursor's ring already holds on this node; a write
// acquisition temporarily subtracts them before waiting for readers to
// drain, because the caller already holds intent on this node (no other
// writer can race in underneath it) and its own reads cannot block its own
// write.
func (l *NodeLock) Lock(mode LockMode, selfReadHolds int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if mode == LockWrite {
		l.readers -= selfReadHolds
		for !l.compatible(LockWrite) {
			l.cond.Wait()
		}
		l.readers += selfReadHolds
		l.register(LockWrite)
		return
	}

	for !l.compatible(mode) {
		l.cond.Wait()
	}
	l.register(mode)
}

// Unlock releases one reference to mode.
func (l *NodeLock) Unlock(mode LockMode) {
	l.mu.Lock()
	switch mode {
	case LockRead:
		l.readers--
	case LockIntent:
		l.intentRec--
		if l.intentRec == 0 {
			l.intentHeld = false
		}
	case LockWrite:
		l.writeRec--
		if l.writeRec == 0 {
			l.writeHeld = false
			l.seq++
		}
	}
	l.mu.Unlock()
	l.cond.Broadcast()
}

// Relock succeeds iff the lock is unheld (or held compatibly with mode) and
// seq still matches the caller's saved snapshot: the optimistic fast path a
// cursor takes after temporarily dropping its locks.
func (l *NodeLock) Relock(mode LockMode, seq uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seq != seq || !l.compatible(mode) {
		return false
	}
	l.register(mode)
	return true
}

// Increment records an additional recursive reference to a lock the caller
// already holds (in >= mode) via a peer cursor in the same ring - see R1 in
// lockorder.go. It never blocks and never checks compatibility, since the
// peer-ring coordinator already established that the caller is entitled to
// it.
func (l *NodeLock) Increment(mode LockMode) {
	l.mu.Lock()
	l.register(mode)
	l.mu.Unlock()
}

// TryUpgrade attempts read -> intent in place, without releasing the read
// reference first. Fails if another holder already has intent or write.
func (l *NodeLock) TryUpgrade() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.intentHeld || l.writeHeld {
		return false
	}
	l.readers--
	l.intentHeld = true
	l.intentRec++
	return true
}

// Downgrade converts one intent reference back to a read reference.
func (l *NodeLock) Downgrade() {
	l.mu.Lock()
	l.intentRec--
	if l.intentRec == 0 {
		l.intentHeld = false
	}
	l.readers++
	l.mu.Unlock()
	l.cond.Broadcast()
}

// Seq returns the current sequence counter.
func (l *NodeLock) Seq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}

// HeldMode reports the strongest mode currently held by anyone and whether
// anything is held at all. Used by debug assertions and by the coordinator.
func (l *NodeLock) HeldMode() (mode LockMode, held bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch {
	case l.writeHeld:
		return LockWrite, true
	case l.intentHeld:
		return LockIntent, true
	case l.readers > 0:
		return LockRead, true
	default:
		return LockRead, false
	}
}
