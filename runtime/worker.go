// Package runtime is the composition root: it wires the heap, mutator,
// deque, collector and world packages together into a running worker
// pool, binding the same pieces a single scheduler process needs into
// one Pool. None of the other packages import this one; everything here
// only flows inward.
package runtime

import (
	nlerrors "github.com/NebulousLabs/errors"
	"github.com/NebulousLabs/threadgroup"

	"github.com/nebulous-runtime/hhgc/build"
	"github.com/nebulous-runtime/hhgc/collector"
	"github.com/nebulous-runtime/hhgc/deque"
	"github.com/nebulous-runtime/hhgc/heap"
	"github.com/nebulous-runtime/hhgc/modules"
	"github.com/nebulous-runtime/hhgc/mutator"
	"github.com/nebulous-runtime/hhgc/persist"
	"github.com/nebulous-runtime/hhgc/world"
)

// Worker is the per-OS-thread state a single scheduler thread owns: its
// own hierarchical heap, its own deque, and the bump allocator and
// collector driver bound to both. Workers never touch another worker's
// HeapHandle directly; the only cross-worker interaction is stealing
// tasks from another worker's Deque.
type Worker struct {
	ID     int
	Thread *world.Thread
	Deque  *deque.Deque
	Alloc  *mutator.Allocator
	driver *collector.Driver
}

// Fork records that w is about to descend one fork-join level deeper:
// the thread's and the allocator's current depth advance; the deque is
// not touched. Callers push a Task onto Deque themselves
// (this module does not know what a scheduler's task payload looks
// like); Fork only keeps the heap and depth bookkeeping in step.
func (w *Worker) Fork() {
	w.Thread.CurrentDepth++
	w.Alloc.CurrentDepth = w.Thread.CurrentDepth
}

// Join is Fork's inverse. By the time a join runs, a local collection
// (possibly spanning down to this depth) has already forwarded anything
// still reachable out of the child's level and left behind only
// already-dead space, so the child's level list is folded into its
// parent's via heap.AppendChunkList rather than scanned again.
// The child's now-empty slot is then discarded.
func (w *Worker) Join() {
	d := w.Thread.CurrentDepth
	parent := d - 1

	child := w.Thread.HH.DiscardLevel(d)
	if child != nil && !child.Empty() {
		parentList := w.Thread.HH.EnsureLevel(parent)
		heap.AppendChunkList(parentList, child)
		if tail := parentList.Tail(); tail != nil {
			w.Thread.HH.LastAllocatedChunk = tail
		}
	}

	w.Thread.CurrentDepth = parent
	w.Alloc.CurrentDepth = parent
}

// Allocate is the mutator-facing entry point: bump-allocate n bytes at
// the worker's current depth, triggering a local collection through w's
// bound Driver if the allocator's slow path needs one.
func (w *Worker) Allocate(n int) (heap.ObjectRef, error) {
	ref, err := w.Alloc.Allocate(n)
	w.reportFatal(err)
	return ref, err
}

// GCIfNeeded forces or lets the bound Allocator decide whether the
// current depth needs a local collection before the next n-byte
// allocation, forwarded straight through.
func (w *Worker) GCIfNeeded(n int, force, ensureCurrentDepth bool) error {
	err := w.Alloc.GCIfNeeded(n, force, ensureCurrentDepth)
	w.reportFatal(err)
	return err
}

// reportFatal is the one place this runtime decides what to do with an
// error the core never recovers from: log it (if this worker's driver
// has a logger attached) and hand it to build.Severe for an
// invariant-violation report, or build.Critical for everything else.
// Critical/Severe only panic when build.DEBUG is set; either way the
// original error is still returned to the caller unchanged.
func (w *Worker) reportFatal(err error) {
	if err == nil {
		return
	}
	if w.driver.Log != nil {
		w.driver.Log.Println("fatal:", err)
	}
	if nlerrors.Contains(err, modules.ErrInvariantViolated) {
		build.Severe(err)
		return
	}
	build.Critical(err)
}

// EnterLocalHeap and ExitLocalHeap bracket a mutator-frontier scope.
func (w *Worker) EnterLocalHeap() { w.Alloc.EnterLocalHeap() }
func (w *Worker) ExitLocalHeap()  { w.Alloc.ExitLocalHeap() }

// SwitchToThread sets the worker's current-thread register to t,
// re-pointing the bound Driver and Allocator at t's own HeapHandle and
// depth so that the next Allocate, GCIfNeeded or CollectLocal operates
// against the resumed thread rather than the one previously running on
// this worker.
func (w *Worker) SwitchToThread(t *world.Thread) {
	w.Alloc.ExitLocalHeap()
	w.Thread = t
	w.driver.Thread = t
	w.Alloc.HH = t.HH
	w.Alloc.CurrentDepth = t.CurrentDepth
	w.Alloc.EnterLocalHeap()
}

// DequePushBot, DequeTryPopBot, DequeTryPopTop and DequeSetDepth are the
// scheduler-facing entry points this worker exposes over its own Deque.
// There is no separate "register this deque" step: Pool.Workers exposes
// every worker's Deque to the rest of the pool at construction time
// instead.
func (w *Worker) DequePushBot(t deque.Task) bool     { return w.Deque.PushBot(t) }
func (w *Worker) DequeTryPopBot() (deque.Task, bool) { return w.Deque.TryPopBot() }
func (w *Worker) DequeTryPopTop() (deque.Task, bool) { return w.Deque.TryPopTop() }
func (w *Worker) DequeSetDepth(d int64) error        { return w.Deque.SetDepth(d) }

// newWorker builds a worker around a freshly duplicated Thread, wiring
// its Allocator's Collect hook to a Driver bound to the same thread and
// deque -- the dependency-injection seam mutator.Allocator's package doc
// describes.
func newWorker(id int, arena *heap.Arena, cfg modules.Config, t *world.Thread, log *persist.Logger) *Worker {
	d := deque.New()
	alloc := mutator.NewAllocator(arena, t.HH, modules.SequenceMetadataSize)
	alloc.CurrentDepth = t.CurrentDepth

	w := &Worker{ID: id, Thread: t, Deque: d, Alloc: alloc}
	w.driver = &collector.Driver{
		Arena:     arena,
		Deque:     d,
		Thread:    t,
		Allocator: alloc,
		Config:    cfg,
		Log:       log,
	}
	alloc.Collect = w.driver.CollectLocal
	alloc.EnsureStackRoom = w.ensureStackRoom
	alloc.EnterLocalHeap()
	return w
}

// ensureStackRoom is mutator.StackGrowFunc bound to this worker's own
// thread: it grows the thread's stack object in place once its reserved
// capacity falls short of bytesNeeded, doubling (or, if that is still not
// enough, growing to fit exactly) rather than growing by the bare minimum
// every time.
func (w *Worker) ensureStackRoom(bytesNeeded int) (*heap.Chunk, error) {
	old := w.Thread.StackTop
	if w.Alloc.CurrentChunk() != old.Chunk || old.Chunk.Available() >= bytesNeeded {
		return nil, nil
	}

	used := old.Chunk.Frontier - old.Offset
	if used < 0 {
		used = 0
	}
	newReserved := used + bytesNeeded
	if doubled := w.Thread.StackReserved() * 2; newReserved < doubled {
		newReserved = doubled
	}

	newRef, err := w.Alloc.GrowStack(old, used, newReserved)
	if err != nil {
		return nil, err
	}
	w.Thread.StackTop = newRef
	w.Thread.SetStackReserved(newReserved)
	return newRef.Chunk, nil
}

// stopThreadGroup is a package-level indirection so Pool.Close reads as a
// single call site even though threadgroup.ThreadGroup.Stop's signature
// is the only place this package touches the vendored API directly.
func stopThreadGroup(tg *threadgroup.ThreadGroup) error {
	return tg.Stop()
}
