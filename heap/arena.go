package heap

import (
	"github.com/NebulousLabs/demotemutex"

	"github.com/nebulous-runtime/hhgc/modules"
)

// Arena carves fixed-size blocks from a mapped region and groups them
// into variable-length chunks. There is no real OS mmap here: the arena
// is represented as on-demand-allocated Block values, capped at MaxBytes
// so that running out of heap is still a real, reachable failure rather
// than something only an actual address-space limit could trigger.
//
// The free list is guarded by a demotemutex.DemoteMutex rather than a
// plain sync.Mutex: growing the arena (mapping in fresh blocks) is the
// rare, relatively expensive operation and is done under the exclusive
// half of the lock, after which the lock is demoted so that concurrent
// Stats() readers (used by detailedGCTime / cmd/hhgcbench reporting) are
// not blocked behind the next growth. Ordinary block allocation also
// mutates the free list and therefore still takes the exclusive half, but
// only ever briefly.
type Arena struct {
	mu demotemutex.DemoteMutex

	blockSize int64
	maxBytes  int64

	// totalBlocks is the number of blocks ever minted by this arena; it
	// only grows, since a released block is kept mapped on the free list
	// rather than actually returned to the OS. maxBytes is checked
	// against totalBlocks*blockSize, not against what is currently live,
	// matching a real mmap'd region that does not shrink on munmap of a
	// sub-range.
	totalBlocks int64
	free        []*Block
}

// NewArena returns an Arena that carves blockSize-byte blocks and fails
// with modules.ErrOutOfHeap once maxBytes worth of blocks have been
// handed out. maxBytes <= 0 means unbounded (useful for tests).
func NewArena(blockSize, maxBytes int64) *Arena {
	if blockSize <= 0 {
		blockSize = modules.BlockSize
	}
	return &Arena{blockSize: blockSize, maxBytes: maxBytes}
}

// BlockSize returns the fixed block size this arena carves.
func (a *Arena) BlockSize() int64 {
	return a.blockSize
}

// getBlocks returns n fresh or recycled blocks, growing the arena's
// backing storage as needed. Callers must hold a.mu exclusively.
func (a *Arena) getBlocks(n int) ([]*Block, error) {
	blocks := make([]*Block, 0, n)
	for len(blocks) < n {
		if len(a.free) > 0 {
			last := len(a.free) - 1
			blocks = append(blocks, a.free[last])
			a.free = a.free[:last]
			continue
		}
		if a.maxBytes > 0 && (a.totalBlocks+1)*a.blockSize > a.maxBytes {
			// Return partially acquired blocks to the free list before
			// failing so a caller's retry (e.g. after a collection frees
			// some chunks) does not lose capacity.
			a.free = append(a.free, blocks...)
			return nil, modules.ErrOutOfHeap
		}
		blocks = append(blocks, newBlock(a.blockSize))
		a.totalBlocks++
	}
	return blocks, nil
}

// AllocateChunk returns a chunk sized to cover minBytes plus metadata,
// aligned to the arena's block size, appended to list.
// MightContainMultipleObjects is false only when minBytes plus
// SequenceMetadataSize exceeds a single block, since a multi-block chunk
// in this design is always carved for one large object.
func (a *Arena) AllocateChunk(list *ChunkList, minBytes int) (*Chunk, error) {
	need := int64(minBytes) + int64(modules.SequenceMetadataSize)
	numBlocks := int((need + a.blockSize - 1) / a.blockSize)
	if numBlocks < 1 {
		numBlocks = 1
	}

	a.mu.Lock()
	blocks, err := a.getBlocks(numBlocks)
	if err != nil {
		a.mu.Unlock()
		return nil, err
	}
	a.mu.Demote()
	defer a.mu.DemotedUnlock()

	size := a.blockSize * int64(numBlocks)
	data := make([]byte, size)
	c := &Chunk{
		blocks:                      blocks,
		data:                        data,
		Start:                       0,
		Limit:                       int(size) - modules.SequenceMetadataSize,
		Frontier:                    0,
		Magic:                       modules.ChunkMagic,
		MightContainMultipleObjects: numBlocks == 1,
	}
	list.link(c)
	return c, nil
}

// Release returns every block in c to the free list. It is called when a
// chunk's owning level list is discarded after collection.
func (a *Arena) Release(c *Chunk) {
	a.mu.Lock()
	a.free = append(a.free, c.blocks...)
	a.mu.Unlock()
	c.blocks = nil
	c.data = nil
}

// Stats is a point-in-time snapshot of the arena's usage, used by
// detailedGCTime reporting and cmd/hhgcbench.
type Stats struct {
	// AllocatedBytes is the total size of every block this arena has
	// ever mapped in, live or free.
	AllocatedBytes int64
	// FreeBlocks is the number of mapped blocks currently sitting on the
	// free list, available for reuse without growing the arena.
	FreeBlocks int
	// LiveBlocks is the number of mapped blocks currently owned by a
	// live chunk.
	LiveBlocks int64
}

// Stats returns a snapshot of the arena's current usage.
func (a *Arena) Stats() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return Stats{
		AllocatedBytes: a.totalBlocks * a.blockSize,
		FreeBlocks:     len(a.free),
		LiveBlocks:     a.totalBlocks - int64(len(a.free)),
	}
}
