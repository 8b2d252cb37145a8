package world

import (
	"testing"

	"github.com/nebulous-runtime/hhgc/heap"
	"github.com/nebulous-runtime/hhgc/modules"
	"github.com/stretchr/testify/assert"
)

func TestInitWorldBuildsRootGlobals(t *testing.T) {
	arena := heap.NewArena(4096, 0)
	cfg := modules.DefaultConfig()

	globals, err := InitWorld(arena, cfg, 4096, 8)
	assert.NoError(t, err)

	assert.NotNil(t, globals.RootThread)
	assert.Equal(t, 0, globals.RootThread.CurrentDepth)
	assert.False(t, globals.RootThread.Self.IsNil())
	assert.False(t, globals.RootThread.ExnStack.IsNil())
	assert.Equal(t, globals.RootThread.ExnStack, globals.ExnStackPrototype)
	assert.False(t, globals.InitialEnv.IsNil())
	assert.Equal(t, globals.RootThread.StackTop.Chunk, globals.RootThread.HH.LastAllocatedChunk)
}

func TestDuplicateWorldBuildsDepthOneThread(t *testing.T) {
	arena := heap.NewArena(4096, 0)
	cfg := modules.DefaultConfig()
	globals, err := InitWorld(arena, cfg, 4096, 8)
	assert.NoError(t, err)

	dst, err := DuplicateWorld(arena, cfg, globals.RootThread)
	assert.NoError(t, err)

	assert.Equal(t, 1, dst.CurrentDepth)
	assert.Equal(t, globals.RootThread.ExnStack, dst.ExnStack)
	assert.NotEqual(t, globals.RootThread.HH, dst.HH, "each worker thread gets its own hierarchical heap")
}

func TestCollectionThresholdOfUsesConfigBlockSizeWhenSet(t *testing.T) {
	cfg := modules.Config{BlockSize: 1024}
	assert.Equal(t, int64(4096), collectionThresholdOf(cfg))

	cfg = modules.Config{}
	assert.Equal(t, modules.BlockSize*4, collectionThresholdOf(cfg))
}
