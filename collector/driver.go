package collector

import (
	"time"

	"github.com/nebulous-runtime/hhgc/build"
	"github.com/nebulous-runtime/hhgc/deque"
	"github.com/nebulous-runtime/hhgc/heap"
	"github.com/nebulous-runtime/hhgc/modules"
	"github.com/nebulous-runtime/hhgc/mutator"
	"github.com/nebulous-runtime/hhgc/persist"
	"github.com/nebulous-runtime/hhgc/world"
)

// Stats reports what a single CollectLocal run did: the bytesMoved/
// bytesCopied pair folded back into the HeapHandle, plus the window it
// ended up collecting (useful for cmd/hhgcbench and for tests asserting
// collection-soundness properties).
type Stats struct {
	Min, Max    int
	BytesMoved  int64
	BytesCopied int64
}

// Driver is the per-worker composition of everything CollectLocal needs:
// the arena to copy into, the deque whose bottom doubles as the scope
// claim, the thread whose roots get forwarded, and the allocator whose
// frontier must be repaired once collection finishes. The runtime package
// builds one Driver per worker and wires Driver.CollectLocal in as that
// worker's Allocator.Collect.
type Driver struct {
	Arena     *heap.Arena
	Deque     *deque.Deque
	Thread    *world.Thread
	Allocator *mutator.Allocator
	Config    modules.Config

	// Log is where a precondition-skip is recorded at info level and,
	// when Config.DetailedGCTime is set, where per-phase timings for a
	// completed CollectLocal are written. Nil disables both; the pool
	// wires in its own logger (or leaves this nil) when it builds each
	// worker's Driver.
	Log *persist.Logger
}

// CollectLocal runs one local collection cycle: claim a collection
// window, promote down-pointers into it, forward every root, scan the
// copied objects to forward their own fields, then install the resulting
// to-space lists in place of the collected ones. Its signature matches
// mutator.CollectFunc so it can be wired directly as an Allocator's
// Collect hook.
func (d *Driver) CollectLocal(desiredScope int, force bool) error {
	if d.Config.HHCollectionLevel == modules.CollectionNone {
		d.logSkip("collection disabled by config")
		return nil
	}
	if !force && desiredScope <= 1 {
		d.logSkip("sequential section (depth <= 1)")
		return nil
	}

	min, claimed, originalBot := d.claimWindow(desiredScope)
	if claimed {
		defer d.Deque.ReleaseLocalScope(originalBot)
	}
	max := desiredScope

	if !force && min > max {
		// The claimed window starts above the current depth and the
		// caller did not force a collection: there is no depth to
		// collect, so skip it.
		d.logSkip("claimed window starts above the current depth")
		return nil
	}

	start := time.Now()
	d.Allocator.ExitLocalHeap()

	var args ForwardArgs
	args.Min, args.Max = min, max
	var toSpace [modules.MaxDepth]*heap.ChunkList
	args.ToSpace = &toSpace

	fwd := NewForwarder(d.Arena, d.Thread.StackTop)

	promoteStart := time.Now()
	if err := PromoteDownPointers(d.Thread.HH, fwd, &args); err != nil {
		return modules.ExtendErr(err, modules.ErrInvariantViolated)
	}
	promoteElapsed := time.Since(promoteStart)

	forwardStart := time.Now()
	if err := d.forwardRoots(fwd, &args); err != nil {
		return err
	}
	forwardElapsed := time.Since(forwardStart)

	scanStart := time.Now()
	if err := d.scanToSpace(fwd, &args); err != nil {
		return err
	}
	scanElapsed := time.Since(scanStart)

	d.releaseFromSpace(min, max)
	d.installToSpace(&toSpace, min, max)

	d.Thread.HH.BytesSurvivedLastCollection = fwd.BytesMoved + fwd.BytesCopied
	d.Thread.HH.BytesAllocatedSinceLastCollection = 0
	d.Thread.BytesSurvivedLastCollection = d.Thread.HH.BytesSurvivedLastCollection

	d.Allocator.EnterLocalHeap()

	if d.Config.DetailedGCTime && d.Log != nil {
		d.Log.Printf("collect_local window=[%d,%d] promote=%s forwardRoots=%s scan=%s total=%s bytesMoved=%d bytesCopied=%d",
			min, max, promoteElapsed, forwardElapsed, scanElapsed, time.Since(start), fwd.BytesMoved, fwd.BytesCopied)
	}
	return nil
}

// logSkip records a precondition-skip soft error at info level: the
// collection is a no-op and CollectLocal still returns nil, but the
// reason is not silently dropped when a logger is attached.
func (d *Driver) logSkip(reason string) {
	if d.Log != nil {
		d.Log.Println("collect_local skipped:", reason)
	}
}

// claimWindow determines how far below desiredScope this collection is
// allowed to reach. CollectionSuperlocal never claims below the current
// depth;
// CollectionAll walks TryClaimLocalScope down toward cfg.MinLocalLevel,
// one depth at a time, for as long as the deque will grant the claim.
func (d *Driver) claimWindow(desiredScope int) (min int, claimed bool, originalBot int64) {
	min = desiredScope
	if d.Config.HHCollectionLevel != modules.CollectionAll {
		return min, false, 0
	}

	originalBot = d.Deque.Bot()
	for min > d.Config.MinLocalLevel {
		depth, ok := d.Deque.TryClaimLocalScope()
		if !ok || int(depth) >= min {
			break
		}
		min = int(depth)
		if min < d.Config.MinLocalLevel {
			min = d.Config.MinLocalLevel
		}
		claimed = true
	}
	return min, claimed, originalBot
}

// forwardRoots forwards the thread-local roots: its own heap-resident
// representation, its exception-handler stack, and its control stack,
// writing each forwarded result back onto the thread.
//
// It deliberately does not walk this worker's own deque looking for
// in-flight task closures: deque.Task is an opaque interface this package
// only ever calls Depth() on, by design (see deque's own package doc), so
// there is no generic way to reach into a queued task and forward the
// heap references it closes over. A task runs to completion on the
// worker that popped it before that worker ever calls CollectLocal again
// at a depth shallow enough to reach the task's own fork level, so in
// practice nothing queued on this deque can be holding the only
// reference to an object in the window being collected -- but that is an
// argument from this scheduler's own call discipline, not something this
// package enforces or checks.
func (d *Driver) forwardRoots(fwd *Forwarder, args *ForwardArgs) error {
	var err error
	if d.Thread.Self, err = fwd.Forward(d.Thread.Self, args); err != nil {
		return err
	}
	if d.Thread.ExnStack, err = fwd.Forward(d.Thread.ExnStack, args); err != nil {
		return err
	}
	if d.Thread.StackTop, err = fwd.Forward(d.Thread.StackTop, args); err != nil {
		return err
	}
	return nil
}

// scanToSpace drains the forwarder's worklist, forwarding the pointer
// fields of every object just copied into to-space until it catches up
// with the allocation frontier. Each pointer field forwarded this way may
// itself enqueue more work, exactly mirroring Cheney's classic
// two-finger scan but driven off an explicit worklist instead of a
// per-chunk cursor, since to-space here is a set of independently
// growing per-depth chunk lists rather than one contiguous semispace.
func (d *Driver) scanToSpace(fwd *Forwarder, args *ForwardArgs) error {
	for {
		obj, ok := fwd.PopWork()
		if !ok {
			return nil
		}
		h := obj.Chunk.HeaderAt(obj.Offset)
		if h == nil {
			continue
		}
		for _, off := range h.PointerOffsets(obj.Offset) {
			target := obj.Chunk.PointerAt(off)
			if target.IsNil() {
				continue
			}
			newTarget, err := fwd.Forward(target, args)
			if err != nil {
				return err
			}
			obj.Chunk.SetPointer(off, newTarget)
		}
	}
}

// releaseFromSpace returns every chunk in the collected levels' old
// (from-space) lists to the arena, poisoning them first in debug builds.
func (d *Driver) releaseFromSpace(min, max int) {
	for lvl := min; lvl <= max; lvl++ {
		list := d.Thread.HH.Level(lvl)
		if list == nil {
			continue
		}
		for c := list.Head(); c != nil; {
			next := c.Next
			if build.DEBUG {
				c.Poison()
			}
			heap.UnlinkChunk(c)
			d.Arena.Release(c)
			c = next
		}
	}
}

// installToSpace replaces the collected levels' chunk lists with the
// freshly forwarded to-space lists, carrying over each old list's
// remembered set (where deferred promotion re-filed its surviving
// down-pointers) and adopting each list into the thread's own HH, and
// repairs HH.LastAllocatedChunk. A
// level with no surviving objects gets an empty list rather than a nil
// slot, matching the rest of this module's convention that HH.Level
// only returns nil for a depth never touched at all.
func (d *Driver) installToSpace(toSpace *[modules.MaxDepth]*heap.ChunkList, min, max int) {
	for lvl := min; lvl <= max; lvl++ {
		list := toSpace[lvl]
		if list == nil {
			list = heap.NewChunkList(lvl, d.Thread.HH)
		}
		if old := d.Thread.HH.Level(lvl); old != nil && old.RememberedSet != nil {
			list.RememberedSet = old.RememberedSet
		}
		list.HH = d.Thread.HH
		list.IsInToSpace = false
		d.Thread.HH.SetLevel(lvl, list)
		if tail := list.Tail(); tail != nil {
			d.Thread.HH.LastAllocatedChunk = tail
		}
	}
}
