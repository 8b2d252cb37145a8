// Package deque implements the Chase-Lev work-stealing deque, plus the
// local scope claim built on top of it (in scope.go).
package deque

import (
	"sync/atomic"

	"github.com/nebulous-runtime/hhgc/modules"
)

// Task is whatever the scheduler pushes onto a worker's deque. This
// module does not interpret task contents; it only needs the depth field
// co-located with each task for GC scope claiming.
type Task interface {
	// Depth returns the fork-join nesting level this task was spawned
	// at.
	Depth() int
}

// Deque is a fixed-capacity, lock-free, single-owner/multi-thief
// work-stealing deque. The owner calls PushBot and TryPopBot; any other
// goroutine ("thief") calls TryPopTop.
//
// Go's sync/atomic exposes only sequentially-consistent operations, never
// anything weaker than a relaxed/release/acquire ordering; every
// operation below is therefore at least as strong as the Chase-Lev
// algorithm's own memory-ordering requirements (see DESIGN.md's Open
// Question resolution #2).
type Deque struct {
	buf [modules.DequeCapacity]Task

	// top is advanced only by a successful CAS (a thief's TryPopTop, or
	// the owner's TryPopBot taking the last element) or by SetDepth.
	top int64
	// bot is advanced only by the owner (or set_depth).
	bot int64
}

// New returns an empty deque.
func New() *Deque {
	return &Deque{}
}

// PushBot is owner-only. It returns false ("fork depth exceeded") rather
// than panicking so that callers in a non-fatal test harness can observe
// the boundary condition; production callers treat a false return as
// fatal.
func (d *Deque) PushBot(t Task) bool {
	b := atomic.LoadInt64(&d.bot)
	top := atomic.LoadInt64(&d.top)
	if b-top >= modules.DequeCapacity {
		return false
	}
	d.buf[b%modules.DequeCapacity] = t
	atomic.StoreInt64(&d.bot, b+1)
	return true
}

// TryPopBot is owner-only. It returns (task, true) on success, or
// (nil, false) if the deque was empty or the owner lost a last-element
// race against a thief.
func (d *Deque) TryPopBot() (Task, bool) {
	b := atomic.LoadInt64(&d.bot) - 1
	atomic.StoreInt64(&d.bot, b)
	top := atomic.LoadInt64(&d.top)

	if top > b {
		// Deque was already empty; restore bot and report empty.
		atomic.StoreInt64(&d.bot, b+1)
		return nil, false
	}

	task := d.buf[b%modules.DequeCapacity]
	if top < b {
		// More than one element remained; no contest with any thief.
		return task, true
	}

	// top == b: exactly one element left. Race a thief for it via CAS.
	ok := atomic.CompareAndSwapInt64(&d.top, top, top+1)
	atomic.StoreInt64(&d.bot, b+1)
	if !ok {
		return nil, false
	}
	return task, true
}

// TryPopTop may be called by any thief concurrently with the owner and
// with other thieves. A spurious false on a lost race is expected and
// never itself a sign of corruption.
func (d *Deque) TryPopTop() (Task, bool) {
	top := atomic.LoadInt64(&d.top)
	b := atomic.LoadInt64(&d.bot)
	if top >= b {
		return nil, false
	}
	task := d.buf[top%modules.DequeCapacity]
	if !atomic.CompareAndSwapInt64(&d.top, top, top+1) {
		return nil, false
	}
	return task, true
}

// Top returns the current top cursor, primarily for tests and for the
// local scope claim in scope.go.
func (d *Deque) Top() int64 { return atomic.LoadInt64(&d.top) }

// Bot returns the current bot cursor.
func (d *Deque) Bot() int64 { return atomic.LoadInt64(&d.bot) }

// Empty reports whether top == bot, i.e. no tasks are outstanding. It is
// a snapshot, not a linearizable check, and is intended for the
// SetDepth precondition and for tests.
func (d *Deque) Empty() bool {
	return atomic.LoadInt64(&d.top) == atomic.LoadInt64(&d.bot)
}

// SetDepth repoints the deque at a new depth d. The deque must be empty
// (top == bot) or SetDepth fails with modules.ErrDequeNotEmpty (fatal in
// production, testable here as a plain error return).
//
// The store order depends on the direction of the move so that any
// concurrent observer still sees an empty deque at every intermediate
// point: moving to a smaller depth lowers bot first, then top; moving to
// a larger depth raises top first, then bot.
func (d *Deque) SetDepth(dDepth int64) error {
	b := atomic.LoadInt64(&d.bot)
	top := atomic.LoadInt64(&d.top)
	if top != b {
		return modules.ErrDequeNotEmpty
	}

	if dDepth < b {
		atomic.StoreInt64(&d.bot, dDepth)
		atomic.StoreInt64(&d.top, dDepth)
	} else {
		atomic.StoreInt64(&d.top, dDepth)
		atomic.StoreInt64(&d.bot, dDepth)
	}
	return nil
}
