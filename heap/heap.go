package heap

import "github.com/nebulous-runtime/hhgc/modules"

// HeapHandle is a per-worker hierarchical heap: a fixed-capacity array of
// chunk lists indexed by depth, plus the bookkeeping a collection cycle
// needs (lastAllocatedChunk, collection threshold, bytes allocated since
// the last collection).
type HeapHandle struct {
	levels [modules.MaxDepth]*ChunkList

	// LastAllocatedChunk is the chunk the mutator's frontier cache was
	// most recently primed from; it anchors the mutator-frontier
	// invariant.
	LastAllocatedChunk *Chunk

	// CollectionThreshold is the byte count that triggers a local
	// collection when BytesAllocatedSinceLastCollection reaches it and
	// the worker is not in a sequential (depth <= 1) section.
	CollectionThreshold int64

	// BytesAllocatedSinceLastCollection accrues on every allocate() call.
	BytesAllocatedSinceLastCollection int64

	// BytesSurvivedLastCollection is the bytesMoved + bytesCopied total
	// reported by the most recently completed local collection.
	BytesSurvivedLastCollection int64
}

// NewHeapHandle returns an empty hierarchical heap with the given initial
// collection threshold.
func NewHeapHandle(collectionThreshold int64) *HeapHandle {
	return &HeapHandle{CollectionThreshold: collectionThreshold}
}

// Level returns the chunk list currently installed at depth d, or nil if
// that slot is unoccupied.
func (h *HeapHandle) Level(d int) *ChunkList {
	if d < 0 || d >= modules.MaxDepth {
		return nil
	}
	return h.levels[d]
}

// SetLevel installs list as the chunk list at depth d. An occupied slot
// is conventionally appended to rather than replaced when the caller
// knows that slot already holds live data; SetLevel itself performs a
// raw replace and leaves that append-vs-replace decision to the
// collector driver, which knows whether it is installing fresh to-space
// or restoring a pre-existing slot.
func (h *HeapHandle) SetLevel(d int, list *ChunkList) {
	h.levels[d] = list
}

// EnsureLevel returns the chunk list at depth d, creating an empty one
// owned by h if none exists yet. This is how the HH grows when a
// worker's depth increases on fork.
func (h *HeapHandle) EnsureLevel(d int) *ChunkList {
	if h.levels[d] == nil {
		h.levels[d] = NewChunkList(d, h)
	}
	return h.levels[d]
}

// DiscardLevel removes the chunk list at depth d, shrinking the HH on
// join. The chunks themselves are not freed here; the caller decides what
// happens to them (the runtime package's Join folds them into the parent
// level rather than returning them to the arena free list).
func (h *HeapHandle) DiscardLevel(d int) *ChunkList {
	old := h.levels[d]
	h.levels[d] = nil
	return old
}

// HighestOccupiedLevel returns the greatest depth with a non-nil, non-empty
// chunk list, or -1 if the heap is entirely empty.
func (h *HeapHandle) HighestOccupiedLevel() int {
	for d := modules.MaxDepth - 1; d >= 0; d-- {
		if h.levels[d] != nil && !h.levels[d].Empty() {
			return d
		}
	}
	return -1
}
