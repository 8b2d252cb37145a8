package heap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllocateChunkTracksStats(t *testing.T) {
	a := NewArena(4096, 0)
	list := NewChunkList(0, nil)

	c, err := a.AllocateChunk(list, 100)
	assert.NoError(t, err)
	assert.True(t, c.MightContainMultipleObjects)
	assert.Equal(t, int64(4096), a.Stats().AllocatedBytes)
	assert.Equal(t, list, c.Owner)
}

func TestAllocateChunkLargeObjectSpansBlocks(t *testing.T) {
	a := NewArena(4096, 0)
	list := NewChunkList(0, nil)

	c, err := a.AllocateChunk(list, 10000)
	assert.NoError(t, err)
	assert.False(t, c.MightContainMultipleObjects)
	assert.True(t, c.Bytes() >= 10000)
}

func TestArenaOutOfHeap(t *testing.T) {
	a := NewArena(4096, 4096)
	list := NewChunkList(0, nil)

	_, err := a.AllocateChunk(list, 100)
	assert.NoError(t, err)

	_, err = a.AllocateChunk(list, 100)
	assert.Error(t, err)
}

func TestReleaseReturnsBlocksToFreeList(t *testing.T) {
	a := NewArena(4096, 4096)
	list := NewChunkList(0, nil)

	c1, err := a.AllocateChunk(list, 100)
	assert.NoError(t, err)
	UnlinkChunk(c1)
	a.Release(c1)

	stats := a.Stats()
	assert.Equal(t, 1, stats.FreeBlocks)

	// A second allocation should recycle the freed block rather than
	// fail, even though maxBytes only covers one block's worth.
	_, err = a.AllocateChunk(list, 100)
	assert.NoError(t, err)
}
