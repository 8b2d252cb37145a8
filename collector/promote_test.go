package collector

import (
	"testing"

	"github.com/nebulous-runtime/hhgc/heap"
	"github.com/stretchr/testify/assert"
)

func TestPromoteDownPointersForwardsAndRehomes(t *testing.T) {
	arena := heap.NewArena(4096, 0)
	hh := heap.NewHeapHandle(1 << 30)

	target := newNormalObject(t, arena, 1, 8, 0)
	source := newNormalObject(t, arena, 2, 16, 1)
	source.Chunk.SetPointer(source.Offset+16, target)

	dp := heap.DownPointer{Source: source, FieldOffset: 16, Target: target}
	RememberAt(hh, target.Depth(), dp)

	fwd := NewForwarder(arena, heap.ObjectRef{})
	args := newArgs(1, 2)

	err := PromoteDownPointers(hh, fwd, args)
	assert.NoError(t, err)

	// Both ends of the edge are now forwarded (source's header is a
	// one-way pointer to its to-space copy).
	assert.True(t, source.Chunk.HeaderAt(source.Offset).Forwarded)
	assert.True(t, target.Chunk.HeaderAt(target.Offset).Forwarded)

	newTarget := target.Chunk.HeaderAt(target.Offset).ForwardTo
	newSource := source.Chunk.HeaderAt(source.Offset).ForwardTo

	// The edge is still a down-pointer (source deeper than target) so it
	// was re-filed at the target's new depth rather than dropped.
	list := hh.Level(newTarget.Depth())
	assert.NotNil(t, list.RememberedSet)
	entries := list.RememberedSet.DownPointers()
	assert.Len(t, entries, 1)
	assert.Equal(t, newSource, entries[0].Source)
	assert.Equal(t, newTarget, entries[0].Target)

	// The source's field was patched in place to point at the new target.
	assert.Equal(t, newTarget, newSource.Chunk.PointerAt(newSource.Offset+16))
}

func TestPromoteDownPointersPatchesSourceOutsideWindow(t *testing.T) {
	arena := heap.NewArena(4096, 0)
	hh := heap.NewHeapHandle(1 << 30)

	target := newNormalObject(t, arena, 1, 8, 0)
	// Source lives deeper than the collection window's max (2), so it is
	// never itself forwarded -- only its field is patched directly.
	source := newNormalObject(t, arena, 5, 16, 1)
	source.Chunk.SetPointer(source.Offset+16, target)

	dp := heap.DownPointer{Source: source, FieldOffset: 16, Target: target}
	RememberAt(hh, target.Depth(), dp)

	fwd := NewForwarder(arena, heap.ObjectRef{})
	args := newArgs(1, 2)

	err := PromoteDownPointers(hh, fwd, args)
	assert.NoError(t, err)

	assert.False(t, source.Chunk.HeaderAt(source.Offset).Forwarded)
	newTarget := target.Chunk.HeaderAt(target.Offset).ForwardTo
	assert.Equal(t, newTarget, source.Chunk.PointerAt(source.Offset+16))
}

func TestPromoteDownPointersSkipsEmptyLevels(t *testing.T) {
	arena := heap.NewArena(4096, 0)
	hh := heap.NewHeapHandle(1 << 30)
	fwd := NewForwarder(arena, heap.ObjectRef{})

	err := PromoteDownPointers(hh, fwd, newArgs(0, 3))
	assert.NoError(t, err)
}

func TestRememberAtCreatesLevelAndSet(t *testing.T) {
	hh := heap.NewHeapHandle(1 << 30)
	dp := heap.DownPointer{FieldOffset: 8}

	RememberAt(hh, 4, dp)

	list := hh.Level(4)
	assert.NotNil(t, list)
	assert.NotNil(t, list.RememberedSet)
	assert.Len(t, list.RememberedSet.DownPointers(), 1)
}
