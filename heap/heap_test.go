package heap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnsureLevelCreatesOnFirstUse(t *testing.T) {
	h := NewHeapHandle(1024)
	assert.Nil(t, h.Level(3))

	l := h.EnsureLevel(3)
	assert.NotNil(t, l)
	assert.Equal(t, 3, l.Depth)
	assert.Equal(t, h, l.HH)
	assert.Equal(t, l, h.Level(3))

	// A second call returns the same list rather than replacing it.
	assert.Equal(t, l, h.EnsureLevel(3))
}

func TestDiscardLevelClearsSlot(t *testing.T) {
	h := NewHeapHandle(1024)
	l := h.EnsureLevel(2)

	discarded := h.DiscardLevel(2)
	assert.Equal(t, l, discarded)
	assert.Nil(t, h.Level(2))
}

func TestHighestOccupiedLevel(t *testing.T) {
	h := NewHeapHandle(1024)
	assert.Equal(t, -1, h.HighestOccupiedLevel())

	h.EnsureLevel(0)
	assert.Equal(t, -1, h.HighestOccupiedLevel(), "an empty level list does not count as occupied")

	l2 := h.EnsureLevel(2)
	l2.Link(newTestChunk(8))
	assert.Equal(t, 2, h.HighestOccupiedLevel())

	l5 := h.EnsureLevel(5)
	l5.Link(newTestChunk(8))
	assert.Equal(t, 5, h.HighestOccupiedLevel())
}

func TestSetLevelReplacesSlot(t *testing.T) {
	h := NewHeapHandle(1024)
	fresh := NewChunkList(1, h)
	h.SetLevel(1, fresh)
	assert.Equal(t, fresh, h.Level(1))
}
