package world

import (
	"github.com/nebulous-runtime/hhgc/build"
	"github.com/nebulous-runtime/hhgc/heap"
	"github.com/nebulous-runtime/hhgc/modules"
)

// Globals holds the process-wide state InitWorld builds inside the
// depth-0 heap: the root thread/stack objects plus the exception-stack
// prototype and initial closure environment every new thread is seeded
// from (see SPEC_FULL.md section 4.J).
type Globals struct {
	// RootThread is the first thread object, built inside depth-0.
	RootThread *Thread

	// ExnStackPrototype is the exception-stack value every new thread's
	// ExnStack is initialized from.
	ExnStackPrototype heap.ObjectRef

	// InitialEnv is the initial closure-environment vector installed at
	// process start, the root-heap equivalent of "argv" for the
	// compiled program.
	InitialEnv heap.ObjectRef
}

// InitWorld performs the one-time per-process setup: allocate globals,
// install the initial vectors, inside the depth-0 heap.
func InitWorld(arena *heap.Arena, cfg modules.Config, rootStackReserved, envSize int) (*Globals, error) {
	root, err := NewThreadWithHeap(arena, collectionThresholdOf(cfg), rootStackReserved, 0)
	if err != nil {
		return nil, modules.ExtendErr(modules.ErrOutOfHeap, err)
	}

	exnList := root.HH.EnsureLevel(0)
	exnChunk, err := arena.AllocateChunk(exnList, wordsToBytes(4))
	if err != nil {
		return nil, modules.ExtendErr(modules.ErrOutOfHeap, err)
	}
	root.ExnStack = heap.ObjectRef{Chunk: exnChunk, Offset: exnChunk.Frontier}
	exnChunk.Frontier += wordsToBytes(4)

	envList := root.HH.EnsureLevel(0)
	envChunk, err := arena.AllocateChunk(envList, wordsToBytes(envSize))
	if err != nil {
		return nil, modules.ExtendErr(modules.ErrOutOfHeap, err)
	}
	env := heap.ObjectRef{Chunk: envChunk, Offset: envChunk.Frontier}
	envChunk.Frontier += wordsToBytes(envSize)

	selfList := root.HH.EnsureLevel(0)
	selfChunk, err := arena.AllocateChunk(selfList, wordsToBytes(1))
	if err != nil {
		return nil, modules.ExtendErr(modules.ErrOutOfHeap, err)
	}
	root.Self = heap.ObjectRef{Chunk: selfChunk, Offset: selfChunk.Frontier}
	selfChunk.Frontier += wordsToBytes(1)

	root.HH.LastAllocatedChunk = root.StackTop.Chunk

	return &Globals{
		RootThread:        root,
		ExnStackPrototype: root.ExnStack,
		InitialEnv:        env,
	}, nil
}

// DuplicateWorld is the per-worker fork hook: copy stats from src into
// dst and build a fresh depth-1 HH for dst. It is called once per worker
// at process startup (each OS-thread worker gets its own Thread derived
// from the same Globals) rather than on every language-level fork.
func DuplicateWorld(arena *heap.Arena, cfg modules.Config, src *Thread) (*Thread, error) {
	dst, err := NewThreadWithHeap(arena, collectionThresholdOf(cfg), defaultStackReserve, 1)
	if err != nil {
		return nil, err
	}
	dst.ExnStack = src.ExnStack
	dst.BytesSurvivedLastCollection = src.BytesSurvivedLastCollection
	return dst, nil
}

// defaultStackReserve is the initial reservation for a newly duplicated
// worker's stack object. The testing release reserves far less than
// standard/dev so that a handful of deep recursive calls in a test is
// enough to exercise Allocator.GrowStack, the same way Sia's own gateway
// package shrinks its retry/backoff constants under
// build.Select(build.Var{...}) for the "testing" release.
var defaultStackReserve = build.Select(build.Var{
	Standard: 4096,
	Dev:      4096,
	Testing:  256,
}).(int)

func wordsToBytes(words int) int {
	return words * 8
}

func collectionThresholdOf(cfg modules.Config) int64 {
	if cfg.BlockSize > 0 {
		return cfg.BlockSize * 4
	}
	return modules.BlockSize * 4
}
