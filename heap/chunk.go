package heap

import "github.com/nebulous-runtime/hhgc/modules"

// Chunk is one or more contiguous blocks managed as a single allocation
// unit. Start/Limit/Frontier delimit the writable region, Next/Prev link
// it into whatever ChunkList currently owns it, and
// MightContainMultipleObjects is false only for chunks dedicated to a
// single large object (the single-object-chunk move optimization during
// forwarding depends on this flag).
type Chunk struct {
	blocks []*Block
	data   []byte

	// Start is always 0 in this representation (data begins at the start
	// of the chunk's own storage); it is kept as an explicit field so that
	// Bytes can state the chunk's capacity as Limit - Start in terms of a
	// named field rather than a literal zero.
	Start int
	// Limit is the last byte offset available for object data; it sits
	// modules.SequenceMetadataSize bytes before the end of data to leave
	// room for chunk bookkeeping, matching the mutator-frontier invariant.
	Limit int
	// Frontier is the next free byte offset within data.
	Frontier int

	Next *Chunk
	Prev *Chunk

	// MightContainMultipleObjects is false for chunks carved to hold
	// exactly one large (sequence or stack) object. Such chunks, except
	// those holding a STACK object, are eligible for the
	// single-object-chunk move optimization instead of a byte copy during
	// forwarding; a stack is always copied.
	MightContainMultipleObjects bool

	// Magic is stamped by Arena.AllocateChunk and checked by the
	// collector on every forwarding hop (CheckMagic). Arena.Release does
	// not clear it, so a chunk already returned to the free list still
	// passes the check.
	Magic uint32

	// Owner is the level-head ChunkList this chunk is currently linked
	// into, or nil once it has been unlinked. It is a plain Go pointer,
	// so a chunk and its owning list reference each other; Go's own
	// garbage collector reclaims that cycle once neither is reachable.
	Owner *ChunkList

	// headers holds one Header per live object offset within this
	// chunk. This is the Go-native realization of in-place header
	// mutation for forwarding: rather than bit-pack a header word into
	// the raw byte slice, each object's tagged-variant Header lives here
	// and is mutated in place (Fresh -> Forwarded) by the forwarding
	// engine. No concurrent forwarding ever occurs (collection is
	// single-threaded per worker), so a plain map is sufficient; nothing
	// here claims the stronger guarantees a shared/concurrent map would
	// need.
	headers map[int]*Header

	// pointers holds the ObjectRef a pointer-typed field currently
	// contains, keyed by the field's byte offset within this chunk. A raw
	// []byte cannot hold a (*Chunk, int) pair, so every slot a Header's
	// layout marks as a pointer field (heap.Header.PointerOffsets) is
	// tracked here instead of being reinterpreted from data.
	pointers map[int]ObjectRef
}

// Bytes returns the total addressable capacity of the chunk, i.e. Limit -
// Start.
func (c *Chunk) Bytes() int {
	return c.Limit - c.Start
}

// Available returns the number of bytes left between Frontier and Limit.
func (c *Chunk) Available() int {
	return c.Limit - c.Frontier
}

// Data returns the chunk's backing storage. Callers in the collector use
// this to memcpy object bytes during forwarding.
func (c *Chunk) Data() []byte {
	return c.data
}

// CheckMagic reports whether c still carries the magic value
// Arena.AllocateChunk stamps on every chunk it mints. A chunk that fails
// this check was never minted by the arena at all -- most likely a
// corrupted or hand-built ObjectRef reaching the collector -- and the
// collector treats that as an invariant violation rather than chasing a
// forwarding pointer through it.
func (c *Chunk) CheckMagic() bool {
	return c.Magic == modules.ChunkMagic
}

// SetHeader installs h as the header for the object at offset, creating
// the chunk's header table on first use.
func (c *Chunk) SetHeader(offset int, h *Header) {
	if c.headers == nil {
		c.headers = make(map[int]*Header)
	}
	c.headers[offset] = h
}

// HeaderAt returns the header for the object at offset, or nil if none has
// been installed (e.g. the offset lies outside any live object).
func (c *Chunk) HeaderAt(offset int) *Header {
	if c.headers == nil {
		return nil
	}
	return c.headers[offset]
}

// Headers returns every (offset, header) pair currently installed on this
// chunk. The collector's to-space scan does not use it; that scan is
// driven by the Forwarder's worklist.
func (c *Chunk) Headers() map[int]*Header {
	return c.headers
}

// SetPointer records that the pointer field at offset currently refers to
// target, creating the chunk's pointer table on first use.
func (c *Chunk) SetPointer(offset int, target ObjectRef) {
	if c.pointers == nil {
		c.pointers = make(map[int]ObjectRef)
	}
	c.pointers[offset] = target
}

// PointerAt returns the ObjectRef stored at offset, or the zero ObjectRef
// if the field has never been set (equivalent to a nil pointer).
func (c *Chunk) PointerAt(offset int) ObjectRef {
	if c.pointers == nil {
		return ObjectRef{}
	}
	return c.pointers[offset]
}

// Poison overwrites a discarded chunk's data with modules.PoisonByte so
// that any stale read through an old reference is loud rather than
// silent. It is exported for the collector driver, which calls it on
// from-space chunks (debug builds only) immediately before releasing
// them back to the arena.
func (c *Chunk) Poison() {
	for i := range c.data {
		c.data[i] = modules.PoisonByte
	}
}
