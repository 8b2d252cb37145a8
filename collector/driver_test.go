package collector

import (
	"testing"

	"github.com/nebulous-runtime/hhgc/deque"
	"github.com/nebulous-runtime/hhgc/heap"
	"github.com/nebulous-runtime/hhgc/modules"
	"github.com/nebulous-runtime/hhgc/mutator"
	"github.com/nebulous-runtime/hhgc/world"
	"github.com/stretchr/testify/assert"
)

func newTestDriver(t *testing.T, cfg modules.Config) (*Driver, *world.Thread, *mutator.Allocator) {
	t.Helper()
	arena := heap.NewArena(4096, 0)
	thread, err := world.NewThreadWithHeap(arena, 1<<30, 512, 1)
	assert.NoError(t, err)

	alloc := mutator.NewAllocator(arena, thread.HH, modules.SequenceMetadataSize)
	alloc.CurrentDepth = 1
	alloc.EnterLocalHeap()

	d := &Driver{
		Arena:     arena,
		Deque:     deque.New(),
		Thread:    thread,
		Allocator: alloc,
		Config:    cfg,
	}
	return d, thread, alloc
}

func TestCollectLocalForwardsLiveRootsAndDropsGarbage(t *testing.T) {
	cfg := modules.Config{HHCollectionLevel: modules.CollectionSuperlocal, MinLocalLevel: 0}
	d, thread, _ := newTestDriver(t, cfg)

	list := thread.HH.EnsureLevel(1)
	c, err := d.Arena.AllocateChunk(list, 256)
	assert.NoError(t, err)

	// A (NORMAL, one pointer field) points at B; C is unreachable garbage.
	hA := &heap.Header{Type: heap.TypeNormal, NonPointerBytes: 8, NumPointers: 1}
	refA := heap.ObjectRef{Chunk: c, Offset: c.Frontier}
	c.SetHeader(refA.Offset, hA)
	c.Frontier += hA.ObjectBytes()

	hB := &heap.Header{Type: heap.TypeNormal, NonPointerBytes: 8, NumPointers: 0}
	refB := heap.ObjectRef{Chunk: c, Offset: c.Frontier}
	c.SetHeader(refB.Offset, hB)
	c.Frontier += hB.ObjectBytes()

	hC := &heap.Header{Type: heap.TypeNormal, NonPointerBytes: 8, NumPointers: 0}
	refC := heap.ObjectRef{Chunk: c, Offset: c.Frontier}
	c.SetHeader(refC.Offset, hC)
	c.Frontier += hC.ObjectBytes()
	_ = refC

	c.SetPointer(refA.Offset+8, refB)
	thread.Self = refA

	// Depth 1 is a sequential section, so the collection must be forced.
	err = d.CollectLocal(1, true)
	assert.NoError(t, err)

	// refA's header is now a forwarding pointer; the live copy still
	// reaches B through the same field offset.
	assert.True(t, refA.Chunk.HeaderAt(refA.Offset).Forwarded)
	newSelf := thread.Self
	assert.NotEqual(t, refA, newSelf)

	newB := newSelf.Chunk.PointerAt(newSelf.Offset + 8)
	assert.False(t, newB.IsNil())
	assert.NotEqual(t, refB, newB)

	assert.True(t, thread.HH.BytesSurvivedLastCollection > 0)
	assert.Equal(t, int64(0), thread.HH.BytesAllocatedSinceLastCollection)

	// The old from-space chunk was released back to the arena.
	assert.Nil(t, c.Data())
}

func TestCollectLocalNoOpWhenDisabled(t *testing.T) {
	cfg := modules.Config{HHCollectionLevel: modules.CollectionNone}
	d, thread, _ := newTestDriver(t, cfg)
	thread.HH.BytesAllocatedSinceLastCollection = 42

	err := d.CollectLocal(1, false)
	assert.NoError(t, err)
	assert.Equal(t, int64(42), thread.HH.BytesAllocatedSinceLastCollection)
}

func TestClaimWindowSuperlocalNeverDescends(t *testing.T) {
	cfg := modules.Config{HHCollectionLevel: modules.CollectionSuperlocal, MinLocalLevel: 0}
	d, _, _ := newTestDriver(t, cfg)

	min, claimed, _ := d.claimWindow(3)
	assert.Equal(t, 3, min)
	assert.False(t, claimed)
}

type depthTask int

func (t depthTask) Depth() int { return int(t) }

func TestClaimWindowAllWalksDownToMinLocalLevel(t *testing.T) {
	cfg := modules.Config{HHCollectionLevel: modules.CollectionAll, MinLocalLevel: 0}
	d, _, _ := newTestDriver(t, cfg)
	d.Deque.PushBot(depthTask(0))

	min, claimed, _ := d.claimWindow(2)
	assert.Equal(t, 0, min)
	assert.True(t, claimed)
}
