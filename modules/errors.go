package modules

import (
	nlerrors "github.com/NebulousLabs/errors"
)

// The fatal error kinds this runtime can raise. None of these are
// ever recovered from by the core; every caller that can produce one
// either extends it with operation context via nlerrors.Extend and
// returns it, or is itself the top-level caller that logs it and calls
// build.Critical.
var (
	// ErrOutOfHeap is returned when the underlying arena has no more
	// blocks to carve and the OS-level region backing it is exhausted.
	ErrOutOfHeap = nlerrors.New("out of heap: underlying region exhausted")

	// ErrForkDepthExceeded names the full-deque condition (a push beyond
	// DequeCapacity outstanding tasks). PushBot reports that condition by
	// returning false; no function in this module returns this value.
	ErrForkDepthExceeded = nlerrors.New("fork depth exceeded: deque is full")

	// ErrEntanglement is returned when forwarding discovers an object
	// whose depth lies above the collection window's max level, meaning
	// the mutator violated the hierarchical heap invariant.
	ErrEntanglement = nlerrors.New("entanglement: object depth exceeds collection window")

	// ErrWeakDuringLocal is returned when forwarding encounters a WEAK
	// object. Weak references are only supported through major
	// collection, which is out of scope for this runtime; see
	// DESIGN.md's Open Question resolution.
	ErrWeakDuringLocal = nlerrors.New("weak object encountered during local collection")

	// ErrInvariantViolated is raised by assertion checks compiled into
	// every build (mutator-frontier invariant, chunk magic, remembered
	// set accounting). It is only ever fatal when build.DEBUG is set.
	ErrInvariantViolated = nlerrors.New("internal invariant violated")

	// ErrDequeNotEmpty is returned by SetDepth when called on a
	// non-empty deque.
	ErrDequeNotEmpty = nlerrors.New("set_depth called on a non-empty deque")
)

// ExtendErr is a thin re-export of NebulousLabs/errors.Extend, kept at
// package scope so callers throughout this module use one consistent
// spelling for "attach context to a fatal sentinel".
func ExtendErr(err error, context error) error {
	return nlerrors.Extend(err, context)
}

// Compose re-exports NebulousLabs/errors.Compose for callers that need to
// carry more than one concurrently-observed error (e.g. Pool.Close's
// threadgroup-stop error alongside its logger-close error).
func Compose(errs ...error) error {
	return nlerrors.Compose(errs...)
}
