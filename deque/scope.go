package deque

import "sync/atomic"

// TryClaimLocalScope claims the next depth available for exclusive
// collection: the deque's bot cursor doubles as "the next depth this
// worker would collect", so claiming a depth is just a TryPopBot whose
// success means "this depth is now exclusively mine". It returns the
// claimed depth and true on success.
func (d *Deque) TryClaimLocalScope() (claimedDepth int64, ok bool) {
	task, ok := d.TryPopBot()
	if !ok {
		return 0, false
	}
	return int64(task.Depth()), true
}

// ReleaseLocalScope restores bot to its pre-collection value with
// sequentially-consistent ordering.
func (d *Deque) ReleaseLocalScope(originalBot int64) {
	atomic.StoreInt64(&d.bot, originalBot)
}
