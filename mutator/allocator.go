// Package mutator implements the frontier-and-limit bump allocator used
// by every allocation: the fast path the compiled mutator code inlines,
// and the slow path that grows the stack and, when necessary, triggers a
// local collection.
//
// This package deliberately does not import the collector package.
// Running a collection is injected as a plain function value (Collect)
// rather than a direct dependency: GC state is threaded explicitly
// rather than reached through a global, and the collector driver itself
// needs to reach back into this package's Allocator to repair the
// frontier once collection finishes -- a direct two-way package import
// would be a cycle. The composition root (package runtime) wires the two
// together.
package mutator

import (
	"github.com/nebulous-runtime/hhgc/heap"
	"github.com/nebulous-runtime/hhgc/modules"
)

// CollectFunc runs a local collection with the given desired scope and
// force flag; it is the slow path's hook into the collector driver
// (component I).
type CollectFunc func(desiredScope int, force bool) error

// StackGrowFunc checks whether the currently active thread's stack object
// has room for bytesNeeded more bytes and, if it does not, grows it (via
// this Allocator's own GrowStack) and returns the chunk that should now
// back the frontier cache. A nil return with a nil error means the stack
// already had enough room and GCIfNeeded should move on unchanged. It is
// the slow path's hook into the owning Thread, injected by the
// composition root (package runtime) the same way Collect is, so that
// this package never needs to import world.
type StackGrowFunc func(bytesNeeded int) (*heap.Chunk, error)

// Allocator is the per-worker mutator-facing allocation state: the
// frontier/limit/limitPlusSlop cache plus enough of the owning
// HeapHandle's bookkeeping to run the slow path.
type Allocator struct {
	Arena *heap.Arena
	HH    *heap.HeapHandle

	// CurrentDepth is the fork-join nesting level new allocations should
	// land at.
	CurrentDepth int

	// Collect runs a local collection. It is nil until the composition
	// root (package runtime) wires it in; GCIfNeeded treats a nil
	// Collect as "collection unavailable" and skips straight to growing
	// the HH, the same outcome as collection being disabled by config.
	Collect CollectFunc

	// EnsureStackRoom is nil until package runtime wires it in; GCIfNeeded
	// treats a nil EnsureStackRoom as "no stack to grow" and skips
	// straight to the collection/extend-HH steps.
	EnsureStackRoom StackGrowFunc

	// Slop is extra headroom added to limit when computing
	// limitPlusSlop, so that "bytesNeeded <= limitPlusSlop - frontier"
	// holds with room to spare. A small slop lets the fast path's single
	// compare-and-advance use a slightly generous bound without every
	// allocation needing to recompute it.
	Slop int

	frontier      int
	limit         int
	limitPlusSlop int
	current       *heap.Chunk

	entered bool
}

// NewAllocator returns an Allocator bound to the given arena and heap
// handle, with the frontier cache unprimed (EnterLocalHeap must be called
// before Allocate).
func NewAllocator(arena *heap.Arena, hh *heap.HeapHandle, slop int) *Allocator {
	return &Allocator{Arena: arena, HH: hh, Slop: slop}
}

// EnterLocalHeap loads (frontier, limit, limitPlusSlop) from the HH's
// LastAllocatedChunk. Pairing with ExitLocalHeap is the caller's
// responsibility via the call stack.
func (a *Allocator) EnterLocalHeap() {
	if a.entered {
		return
	}
	a.entered = true
	a.loadFrontier()
}

// ExitLocalHeap stores the frontier cache back into the current chunk.
// After this call the frontier triple must not be touched until
// EnterLocalHeap is called again.
func (a *Allocator) ExitLocalHeap() {
	a.storeFrontier()
	a.entered = false
}

func (a *Allocator) loadFrontier() {
	a.current = a.HH.LastAllocatedChunk
	if a.current == nil {
		a.frontier, a.limit, a.limitPlusSlop = 0, 0, 0
		return
	}
	a.frontier = a.current.Frontier
	a.limit = a.current.Limit
	a.limitPlusSlop = a.limit + a.Slop
}

func (a *Allocator) storeFrontier() {
	if a.current != nil {
		a.current.Frontier = a.frontier
	}
}

// Allocate bump-allocates n bytes. The fast path is a single
// compare-and-advance against limit; if that fails -- or if
// the current chunk is a dedicated single-object (stack or sequence)
// chunk, which may never host a second object regardless of how much
// Available() it reports -- the slow path calls GCIfNeeded(n,
// force=false, ensureCurrentDepth=false) and retries once.
func (a *Allocator) Allocate(n int) (heap.ObjectRef, error) {
	if a.current != nil && a.current.MightContainMultipleObjects && a.frontier+n <= a.limit {
		ref := heap.ObjectRef{Chunk: a.current, Offset: a.frontier}
		a.frontier += n
		a.HH.BytesAllocatedSinceLastCollection += int64(n)
		return ref, nil
	}

	if err := a.GCIfNeeded(n, false, false); err != nil {
		return heap.ObjectRef{}, err
	}

	if a.frontier+n > a.limit {
		return heap.ObjectRef{}, modules.ExtendErr(modules.ErrOutOfHeap, modules.ErrInvariantViolated)
	}
	ref := heap.ObjectRef{Chunk: a.current, Offset: a.frontier}
	a.frontier += n
	a.HH.BytesAllocatedSinceLastCollection += int64(n)
	return ref, nil
}

// depthExhausted reports whether accumulated allocation since the last
// collection has crossed the HH's collection threshold.
func (a *Allocator) depthExhausted() bool {
	return a.HH.BytesAllocatedSinceLastCollection >= a.HH.CollectionThreshold
}

// GCIfNeeded enforces the mutator-frontier invariant: if the stack is
// full it grows the stack; if force or the depth is exhausted it runs a
// local collection; then it extends the HH if the current chunk cannot
// satisfy bytes, or if ensureCurrentDepth requires that the last chunk
// be at the current depth.
func (a *Allocator) GCIfNeeded(bytes int, force, ensureCurrentDepth bool) error {
	a.storeFrontier()

	if a.current != nil && !a.current.MightContainMultipleObjects && a.EnsureStackRoom != nil {
		grown, err := a.EnsureStackRoom(bytes)
		if err != nil {
			return err
		}
		if grown != nil {
			a.HH.LastAllocatedChunk = grown
			a.loadFrontier()
		}
	}

	if force || a.depthExhausted() {
		if a.Collect != nil {
			if err := a.Collect(a.CurrentDepth, force); err != nil {
				return err
			}
		}
	}

	// A chunk dedicated to a single stack or sequence object can never
	// serve as the general bump-allocation target, regardless of how much
	// Available() it reports: the frontier's chunk must always be one
	// that might contain multiple objects.
	needsNewChunk := a.current == nil || !a.current.MightContainMultipleObjects || a.current.Available() < bytes
	needsDepthFix := ensureCurrentDepth && (a.current == nil || a.current.Owner == nil || a.current.Owner.Depth != a.CurrentDepth)
	if needsNewChunk || needsDepthFix {
		list := a.HH.EnsureLevel(a.CurrentDepth)
		chunkBytes := bytes
		if chunkBytes < a.Arena.BlockSize() {
			chunkBytes = int(a.Arena.BlockSize()) - modules.SequenceMetadataSize
		}
		c, err := a.Arena.AllocateChunk(list, chunkBytes)
		if err != nil {
			return modules.ExtendErr(modules.ErrOutOfHeap, err)
		}
		a.HH.LastAllocatedChunk = c
		a.loadFrontier()
	} else {
		a.loadFrontier()
	}

	if a.limit-a.frontier < bytes {
		return modules.ErrInvariantViolated
	}
	return nil
}

// growStack allocates a new, larger stack object at the current depth and
// copies the old stack's live bytes forward, then releases the old
// chunk, letting a thread's stack grow in place when a deep call
// sequence outruns its reserved space.
//
// used is the number of live bytes in the old stack that must be
// preserved; newReserved is the new stack's total reserved capacity.
func (a *Allocator) growStack(old heap.ObjectRef, used, newReserved int) (heap.ObjectRef, error) {
	list := a.HH.EnsureLevel(a.CurrentDepth)
	c, err := a.Arena.AllocateChunk(list, newReserved)
	if err != nil {
		return heap.ObjectRef{}, modules.ExtendErr(modules.ErrOutOfHeap, err)
	}
	c.MightContainMultipleObjects = false
	c.SetHeader(0, &heap.Header{Type: heap.TypeStack, NonPointerBytes: newReserved})

	if !old.IsNil() {
		copy(c.Data()[:used], old.Chunk.Data()[old.Offset:old.Offset+used])
	}
	c.Frontier = used

	if !old.IsNil() {
		heap.UnlinkChunk(old.Chunk)
		a.Arena.Release(old.Chunk)
	}
	return heap.ObjectRef{Chunk: c, Offset: 0}, nil
}

// GrowStack is the exported entry point GCIfNeeded's stack-growth clause
// reaches through EnsureStackRoom (bound by package runtime to
// Worker.ensureStackRoom); it is also exercised directly from tests.
func (a *Allocator) GrowStack(old heap.ObjectRef, used, newReserved int) (heap.ObjectRef, error) {
	return a.growStack(old, used, newReserved)
}

// Frontier exposes the current frontier offset, primarily for tests
// asserting the mutator-frontier invariant.
func (a *Allocator) Frontier() int { return a.frontier }

// Limit exposes the current limit, mirroring Frontier.
func (a *Allocator) Limit() int { return a.limit }

// LimitPlusSlop exposes the slop-padded limit.
func (a *Allocator) LimitPlusSlop() int { return a.limitPlusSlop }

// CurrentChunk exposes the chunk the frontier cache was primed from.
func (a *Allocator) CurrentChunk() *heap.Chunk { return a.current }
