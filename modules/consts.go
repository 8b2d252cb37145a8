// Package modules holds the vocabulary shared by every other package in
// this module: size constants, the fatal error sentinels, and the
// configuration and task types that the heap, mutator, deque and collector
// packages are all built against. Nothing here has behavior of its own.
package modules

const (
	// BlockSize is the size, in bytes, of a single block carved from an
	// Arena. It must be a power of two so that a pointer's containing block
	// can be found by masking.
	BlockSize = 4096

	// MaxDepth bounds the number of fork-join nesting levels a single
	// worker's hierarchical heap can represent. It matches the Chase-Lev
	// deque's capacity, since every depth the deque can hold a task for
	// needs a heap slot.
	MaxDepth = 64

	// DequeCapacity is the fixed ring-buffer size of the Chase-Lev deque.
	DequeCapacity = 64

	// SequenceMetadataSize is the number of bytes reserved at the tail of
	// every chunk for chunk bookkeeping (next/prev links, magic, owning
	// level head). A chunk's frontier may never advance into this region.
	SequenceMetadataSize = 64

	// ChunkMagic tags every chunk the arena mints so that a corrupted or
	// hand-built chunk reference can be detected defensively; the
	// collector checks it on every forwarding hop, in every build.
	ChunkMagic = 0x5341484c // "SAHL" in hex, arbitrary but stable

	// PoisonByte is written over discarded from-space chunks in debug
	// builds so that stale reads are loud rather than silent.
	PoisonByte = 0xBF
)

// HHCollectionLevel selects how aggressively collect_local is allowed to
// choose its collection window.
type HHCollectionLevel int

const (
	// CollectionNone disables local collection entirely.
	CollectionNone HHCollectionLevel = iota
	// CollectionSuperlocal forces min_level := current_depth, collecting
	// only the leaf heap.
	CollectionSuperlocal
	// CollectionAll allows the scope claim to walk as far up the stack of
	// depths as it can legally claim.
	CollectionAll
)

func (l HHCollectionLevel) String() string {
	switch l {
	case CollectionNone:
		return "none"
	case CollectionSuperlocal:
		return "superlocal"
	case CollectionAll:
		return "all"
	default:
		return "unknown"
	}
}

// Config carries every tunable this runtime exposes, plus the concrete
// defaults a production boot would supply.
type Config struct {
	// HHCollectionLevel governs whether/how aggressively collect_local may
	// run.
	HHCollectionLevel HHCollectionLevel

	// MinLocalLevel is a hard lower bound on scope claiming; no collection
	// window may extend below this depth regardless of what the deque
	// would otherwise allow.
	MinLocalLevel int

	// DeferredPromotion is always true in this runtime; retained as an
	// explicit field so that a future major collector can toggle it
	// without an API break.
	DeferredPromotion bool

	// DetailedGCTime turns on per-phase timing in the collector driver.
	DetailedGCTime bool

	// BlockSize overrides modules.BlockSize for a single Config, mostly
	// useful for tests that want small blocks to exercise chunk-growth
	// paths cheaply.
	BlockSize int64

	// MaxDepth records the depth bound for this configuration. Nothing in
	// this module reads it: heap slots and to-space arrays are always
	// sized by the modules.MaxDepth constant.
	MaxDepth int
}

// DefaultConfig returns a reasonable production configuration:
// collection enabled at every level, no artificial floor on scope
// claiming, deferred promotion on, detailed timing off.
func DefaultConfig() Config {
	return Config{
		HHCollectionLevel: CollectionAll,
		MinLocalLevel:     0,
		DeferredPromotion: true,
		DetailedGCTime:    false,
		BlockSize:         BlockSize,
		MaxDepth:          MaxDepth,
	}
}
