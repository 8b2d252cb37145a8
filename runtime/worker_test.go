package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nebulous-runtime/hhgc/modules"
	"github.com/nebulous-runtime/hhgc/world"
)

// taskAt is a minimal deque.Task implementation for exercising Fork/Join
// and Deque interactions without pulling in a real scheduler payload.
type taskAt int

func (t taskAt) Depth() int { return int(t) }

func newTestPool(t *testing.T, numWorkers int) *Pool {
	cfg := modules.DefaultConfig()
	cfg.BlockSize = 4096
	p, err := NewPool(cfg, numWorkers, "")
	assert.NoError(t, err)
	return p
}

func TestNewPoolBuildsOneThreadPerWorker(t *testing.T) {
	p := newTestPool(t, 3)
	defer p.Close()

	assert.Len(t, p.Workers(), 3)
	for i, w := range p.Workers() {
		assert.Equal(t, i, w.ID)
		assert.Equal(t, 1, w.Thread.CurrentDepth, "every worker thread is duplicated one level below root")
		assert.NotNil(t, w.driver)
		assert.NotNil(t, w.Alloc.Collect, "Allocator.Collect must be wired to the worker's own driver")
	}
}

func TestWorkerForkJoinRoundTripsDepth(t *testing.T) {
	p := newTestPool(t, 1)
	defer p.Close()

	w := p.Workers()[0]
	base := w.Thread.CurrentDepth

	w.Fork()
	assert.Equal(t, base+1, w.Thread.CurrentDepth)
	assert.Equal(t, base+1, w.Alloc.CurrentDepth)

	w.Join()
	assert.Equal(t, base, w.Thread.CurrentDepth)
	assert.Equal(t, base, w.Alloc.CurrentDepth)
}

func TestWorkerJoinFoldsChildLevelIntoParent(t *testing.T) {
	p := newTestPool(t, 1)
	defer p.Close()

	w := p.Workers()[0]
	base := w.Thread.CurrentDepth

	w.Fork()
	child := w.Thread.CurrentDepth

	// Force the allocator onto a fresh chunk actually owned by the child
	// depth (ensureCurrentDepth), so DiscardLevel has a non-empty list to
	// fold into the parent.
	assert.NoError(t, w.Alloc.GCIfNeeded(32, false, true))
	_, err := w.Alloc.Allocate(32)
	assert.NoError(t, err)

	childChunk := w.Thread.HH.Level(child).Tail()
	assert.NotNil(t, childChunk)

	w.Join()
	assert.Equal(t, base, w.Thread.CurrentDepth)
	assert.Nil(t, w.Thread.HH.Level(child), "child's level slot must be discarded on join")

	found := false
	for c := w.Thread.HH.Level(base).Head(); c != nil; c = c.Next {
		if c == childChunk {
			found = true
			break
		}
	}
	assert.True(t, found, "the child depth's chunk must be folded into the parent's list on join")
}

func TestWorkerAllocateUsesBoundAllocator(t *testing.T) {
	p := newTestPool(t, 1)
	defer p.Close()

	w := p.Workers()[0]
	before := w.Alloc.Frontier()
	ref, err := w.Allocate(16)
	assert.NoError(t, err)
	assert.False(t, ref.IsNil())
	assert.Equal(t, before+16, w.Alloc.Frontier())
}

func TestWorkerDequeForwardingMethods(t *testing.T) {
	p := newTestPool(t, 1)
	defer p.Close()

	w := p.Workers()[0]
	assert.True(t, w.DequePushBot(taskAt(7)))

	task, ok := w.DequeTryPopTop()
	assert.True(t, ok)
	assert.Equal(t, taskAt(7), task)

	assert.NoError(t, w.DequeSetDepth(3))
	assert.True(t, w.DequePushBot(taskAt(3)))
	popped, ok := w.DequeTryPopBot()
	assert.True(t, ok)
	assert.Equal(t, taskAt(3), popped)
}

func TestWorkerGCIfNeededForwardsToAllocator(t *testing.T) {
	p := newTestPool(t, 1)
	defer p.Close()

	w := p.Workers()[0]
	assert.NoError(t, w.GCIfNeeded(16, false, false))
}

func TestWorkerEnterExitLocalHeapForwardsToAllocator(t *testing.T) {
	p := newTestPool(t, 1)
	defer p.Close()

	w := p.Workers()[0]
	before := w.Alloc.Frontier()
	w.ExitLocalHeap()
	w.EnterLocalHeap()
	assert.Equal(t, before, w.Alloc.Frontier(), "a bracketed enter/exit round trip must not move the frontier")
}

func TestWorkerSwitchToThreadRepointsAllocatorAndDriver(t *testing.T) {
	p := newTestPool(t, 1)
	defer p.Close()

	w := p.Workers()[0]
	other, err := world.NewThreadWithHeap(p.Arena(), 1<<20, 256, 4)
	assert.NoError(t, err)

	w.SwitchToThread(other)
	assert.Same(t, other, w.Thread)
	assert.Same(t, other.HH, w.Alloc.HH)
	assert.Equal(t, other.CurrentDepth, w.Alloc.CurrentDepth)
	assert.Same(t, other, w.driver.Thread)

	ref, err := w.Allocate(8)
	assert.NoError(t, err)
	assert.Same(t, other.HH.Level(other.CurrentDepth), ref.Chunk.Owner, "an allocation after SwitchToThread must land in the new thread's own heap")
}

func TestPoolStealReturnsFalseWithOneWorker(t *testing.T) {
	p := newTestPool(t, 1)
	defer p.Close()

	_, _, ok := p.Steal(0)
	assert.False(t, ok)
}

func TestPoolStealFindsTaskOnAnotherWorker(t *testing.T) {
	p := newTestPool(t, 2)
	defer p.Close()

	victim := p.Workers()[1]
	assert.True(t, victim.Deque.PushBot(taskAt(1)))

	task, victimID, ok := p.Steal(0)
	assert.True(t, ok)
	assert.Equal(t, 1, victimID)
	assert.Equal(t, taskAt(1), task)
}

func TestPoolStealSkipsThiefsOwnDeque(t *testing.T) {
	p := newTestPool(t, 2)
	defer p.Close()

	thief := p.Workers()[0]
	assert.True(t, thief.Deque.PushBot(taskAt(5)))

	_, _, ok := p.Steal(0)
	assert.False(t, ok, "a thief must never steal from its own deque")
}
