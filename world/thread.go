// Package world implements world init and the thread/stack objects that
// live inside a worker's hierarchical heap.
package world

import (
	"github.com/nebulous-runtime/hhgc/heap"
	"github.com/nebulous-runtime/hhgc/modules"
)

// Thread is the in-heap representation of a running computation's
// control state. It carries its own HH, currentDepth, bytesNeeded (the
// size requested by the most recent allocation slow-path call),
// bytesSurvivedLastCollection, and a reference to its stack object.
type Thread struct {
	HH *heap.HeapHandle

	// CurrentDepth is the fork-join nesting level this thread is
	// currently executing at.
	CurrentDepth int

	// BytesNeeded records the size of the most recent allocation
	// slow-path request.
	BytesNeeded int

	// BytesSurvivedLastCollection mirrors HeapHandle's own field at the
	// thread level so a thread's stats survive a join even if its HH
	// slot is discarded.
	BytesSurvivedLastCollection int64

	// StackTop is a reference to this thread's current stack object.
	// Its chunk always has MightContainMultipleObjects == false.
	StackTop heap.ObjectRef

	// ExnStack is a reference to the thread's exception-handler stack
	// object. NewThreadWithHeap leaves it nil; InitWorld allocates it for
	// the root thread and DuplicateWorld copies it from the source thread.
	// It is one of the roots the collector driver forwards.
	ExnStack heap.ObjectRef

	// Self is a reference to this Thread's own heap-resident
	// representation, used as a forwarding root in its own right.
	Self heap.ObjectRef

	// stackReserved is the reserved capacity, in bytes, of the chunk
	// backing StackTop.
	stackReserved int
}

// StackReserved returns the thread's current stack reservation.
func (t *Thread) StackReserved() int {
	return t.stackReserved
}

// SetStackReserved updates the thread's recorded stack reservation after
// StackTop has been repointed at a newly grown stack chunk.
func (t *Thread) SetStackReserved(n int) {
	t.stackReserved = n
}

// NewThreadWithHeap creates a thread with a fresh hierarchical heap and a
// stack object at the given level.
func NewThreadWithHeap(arena *heap.Arena, collectionThreshold int64, stackReserved, level int) (*Thread, error) {
	hh := heap.NewHeapHandle(collectionThreshold)
	list := hh.EnsureLevel(level)

	c, err := arena.AllocateChunk(list, stackReserved)
	if err != nil {
		return nil, modules.ExtendErr(modules.ErrOutOfHeap, err)
	}
	c.MightContainMultipleObjects = false
	c.SetHeader(0, &heap.Header{Type: heap.TypeStack, NonPointerBytes: stackReserved})
	hh.LastAllocatedChunk = c

	t := &Thread{
		HH:            hh,
		CurrentDepth:  level,
		StackTop:      heap.ObjectRef{Chunk: c, Offset: 0},
		stackReserved: stackReserved,
	}
	return t, nil
}
