package heap

import "github.com/nebulous-runtime/hhgc/modules"

// Block is a fixed-size region carved from an Arena's mapped storage. A
// chunk is built from one or more contiguous blocks; the arena's free list
// is a single flat list of blocks, not keyed by size class, and a request
// for N blocks pops N of them one at a time.
//
// Block carries its own backing storage rather than pointing into one
// shared slice so that a block released back to the free list can be
// handed to an unrelated chunk without the original chunk's slice headers
// staying reachable — the Go GC can reclaim truly-dead blocks, and a
// still-live block is never aliased by two chunks at once.
type Block struct {
	data  []byte
	magic uint32
}

func newBlock(size int64) *Block {
	return &Block{
		data:  make([]byte, size),
		magic: modules.ChunkMagic,
	}
}
