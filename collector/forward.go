// Package collector implements the forwarding engine, deferred
// promotion, and the local collector driver that orchestrates them.
package collector

import (
	"fmt"

	"github.com/nebulous-runtime/hhgc/build"
	"github.com/nebulous-runtime/hhgc/heap"
	"github.com/nebulous-runtime/hhgc/modules"
)

// ForwardArgs bundles the collection window, the per-depth to-space
// array being built, and whether this Forward call is running as part
// of deferred promotion rather than the main root-forwarding pass.
type ForwardArgs struct {
	Min, Max    int
	ToSpace     *[modules.MaxDepth]*heap.ChunkList
	InPromotion bool
}

// Forwarder runs the forwarding engine (component G) for a single
// collection. It owns the arena to allocate fresh to-space chunks from,
// the byte counters the driver reports in its collection stats, and the
// currently-running thread's stack reference, needed to decide whether a
// STACK object being copied is the one actively in use: the stack-shrink
// policy only applies its generous "current stack" target to the live
// stack, not to suspended ones.
type Forwarder struct {
	Arena        *heap.Arena
	CurrentStack heap.ObjectRef
	BytesMoved   int64
	BytesCopied  int64

	// worklist holds every object just relocated into to-space, still
	// needing its own pointer fields scanned and forwarded in turn. The
	// collector driver drains this with PopWork to run the Cheney-style
	// copy-in-place scan without needing a second bump-pointer cursor per
	// chunk.
	worklist []heap.ObjectRef
}

// NewForwarder returns a Forwarder bound to arena, tracking current as
// the thread's live stack object for the stack-shrink policy.
func NewForwarder(arena *heap.Arena, current heap.ObjectRef) *Forwarder {
	return &Forwarder{Arena: arena, CurrentStack: current}
}

// EntanglementError carries the diagnostic for a fatal entanglement: the
// offending pointer, its depth, and the window that rejected it.
type EntanglementError struct {
	Pointer    heap.ObjectRef
	Depth      int
	Min, Max   int
}

func (e *EntanglementError) Error() string {
	return fmt.Sprintf("entanglement: pointer at depth %d exceeds window [%d,%d]", e.Depth, e.Min, e.Max)
}

// Forward resolves obj to the reference that should replace it in
// whatever field held it: following any existing forwarding pointer,
// validating it against the collection window, and relocating it into
// to-space exactly once if it hasn't moved yet.
func (f *Forwarder) Forward(obj heap.ObjectRef, args *ForwardArgs) (heap.ObjectRef, error) {
	// Not a heap pointer, or lies in the root (depth 0) heap: do nothing.
	// Tracing/collecting the root heap is out of scope for this local
	// collector.
	if obj.IsNil() {
		return obj, nil
	}
	if obj.Depth() == 0 {
		return obj, nil
	}

	// Chase any existing forwarding pointer to the already-moved copy
	// before doing anything else, so the depth and to-space checks below
	// examine the object that is actually live.
	cur, header, err := chase(obj)
	if err != nil {
		return heap.ObjectRef{}, err
	}

	// Depth checks against the window.
	l := cur.Depth()
	if l > args.Max {
		return heap.ObjectRef{}, modules.ExtendErr(modules.ErrEntanglement, &EntanglementError{Pointer: cur, Depth: l, Min: args.Min, Max: args.Max})
	}
	if l < args.Min {
		return cur, nil
	}

	// The resolved pointer's depth is below min, or its chunk is already
	// in to-space: retarget and stop.
	if cur.Chunk.Owner != nil && (cur.Chunk.Owner.Depth < args.Min || cur.Chunk.Owner.IsInToSpace) {
		return cur, nil
	}

	if header.Type == heap.TypeWeak {
		return heap.ObjectRef{}, modules.ErrWeakDuringLocal
	}

	// Single-object chunk optimization. A STACK object's chunk always
	// reports MightContainMultipleObjects == false, the same as a
	// dedicated SEQUENCE chunk, but a stack is still copied like any
	// other object during collection so that shrinkStackTarget's policy
	// can actually take effect -- pointer-moving it verbatim would make
	// the shrink policy unreachable. The move optimization therefore only
	// applies to the dedicated large-SEQUENCE chunks it was written for.
	if header.Type != heap.TypeStack && !cur.Chunk.MightContainMultipleObjects {
		return f.moveChunk(cur, header, args)
	}

	// Ordinary copy.
	return f.copyObject(cur, header, args)
}

// chase follows Forwarded headers to the live copy of obj.
func chase(obj heap.ObjectRef) (heap.ObjectRef, *heap.Header, error) {
	cur := obj
	for i := 0; i < modules.MaxDepth*4; i++ {
		if !cur.Chunk.CheckMagic() {
			build.Severe("forwarding a chunk that never passed through Arena.AllocateChunk:", cur)
			return heap.ObjectRef{}, nil, modules.ErrInvariantViolated
		}
		h := cur.Chunk.HeaderAt(cur.Offset)
		if h == nil {
			return heap.ObjectRef{}, nil, modules.ErrInvariantViolated
		}
		if !h.Forwarded {
			return cur, h, nil
		}
		cur = h.ForwardTo
	}
	return heap.ObjectRef{}, nil, modules.ErrInvariantViolated
}

// ensureToSpace returns (creating if necessary) the to-space level list
// for depth l.
func (f *Forwarder) ensureToSpace(args *ForwardArgs, l int) *heap.ChunkList {
	if args.ToSpace[l] == nil {
		args.ToSpace[l] = heap.NewChunkList(l, heap.CopyObjectHH)
		args.ToSpace[l].IsInToSpace = true
	}
	return args.ToSpace[l]
}

// moveChunk unlinks the single-object chunk from its source list and
// appends it, unchanged, to to-space; then allocates a fresh trailing
// chunk on the same to-space list so the "multi-object chunk at tail"
// invariant holds. No bytes are copied; the move is accounted as
// bytesMoved.
func (f *Forwarder) moveChunk(obj heap.ObjectRef, header *heap.Header, args *ForwardArgs) (heap.ObjectRef, error) {
	l := obj.Depth()
	toList := f.ensureToSpace(args, l)

	heap.UnlinkChunk(obj.Chunk)
	toList.Link(obj.Chunk)

	if _, err := f.Arena.AllocateChunk(toList, int(f.Arena.BlockSize())-modules.SequenceMetadataSize); err != nil {
		return heap.ObjectRef{}, modules.ExtendErr(modules.ErrOutOfHeap, err)
	}

	f.BytesMoved += int64(header.CopyBytes())
	f.installForwarding(obj, obj, header)
	f.worklist = append(f.worklist, obj)
	return obj, nil
}

// copyObject ensures to-space has room, memcpies the object's payload,
// installs a forwarding header on the source, and returns the new
// location.
func (f *Forwarder) copyObject(obj heap.ObjectRef, header *heap.Header, args *ForwardArgs) (heap.ObjectRef, error) {
	l := obj.Depth()
	toList := f.ensureToSpace(args, l)

	newHeader := *header
	isStack := header.Type == heap.TypeStack
	if isStack {
		newHeader.NonPointerBytes = f.shrinkStackTarget(obj, header)
	}
	copyBytes := newHeader.ObjectBytes()

	var tail *heap.Chunk
	if isStack {
		// A stack always gets its own dedicated chunk, matching the
		// allocator invariant world.NewThreadWithHeap and
		// mutator.Allocator.GrowStack both enforce: the stack object's
		// chunk has MightContainMultipleObjects == false. Sharing
		// to-space's tail chunk with other objects would silently
		// violate that invariant for the copy.
		var err error
		tail, err = f.Arena.AllocateChunk(toList, copyBytes)
		if err != nil {
			return heap.ObjectRef{}, modules.ExtendErr(modules.ErrOutOfHeap, err)
		}
		tail.MightContainMultipleObjects = false
	} else {
		tail = toList.Tail()
		if tail == nil || !tail.MightContainMultipleObjects || tail.Available() < copyBytes {
			var err error
			tail, err = f.Arena.AllocateChunk(toList, copyBytes)
			if err != nil {
				return heap.ObjectRef{}, modules.ExtendErr(modules.ErrOutOfHeap, err)
			}
		}
	}

	dstOffset := tail.Frontier
	srcBytes := header.ObjectBytes()
	n := srcBytes
	if n > copyBytes {
		n = copyBytes
	}
	copy(tail.Data()[dstOffset:dstOffset+n], obj.Chunk.Data()[obj.Offset:obj.Offset+n])
	tail.Frontier += copyBytes

	newRef := heap.ObjectRef{Chunk: tail, Offset: dstOffset}
	tail.SetHeader(dstOffset, &newHeader)

	// The pointer-field map is out-of-band (heap.Chunk.pointers), so a raw
	// byte copy above does not carry a field's current target along with
	// it; each pointer slot the old header's layout names must be
	// re-homed onto the new chunk at its shifted offset by hand.
	for _, oldOff := range header.PointerOffsets(obj.Offset) {
		if target := obj.Chunk.PointerAt(oldOff); !target.IsNil() {
			tail.SetPointer(dstOffset+(oldOff-obj.Offset), target)
		}
	}

	f.BytesCopied += int64(newHeader.CopyBytes())
	f.installForwarding(obj, newRef, header)
	f.worklist = append(f.worklist, newRef)
	return newRef, nil
}

// PopWork removes and returns one object awaiting a pointer-field scan,
// or (zero, false) once the worklist is empty.
func (f *Forwarder) PopWork() (heap.ObjectRef, bool) {
	if len(f.worklist) == 0 {
		return heap.ObjectRef{}, false
	}
	n := len(f.worklist) - 1
	ref := f.worklist[n]
	f.worklist = f.worklist[:n]
	return ref, true
}

// installForwarding overwrites src's header with the Forwarded encoding,
// the one-way step in the Fresh -> Forwarded state machine. Because
// collection is single-threaded per worker, a plain (non-atomic) store
// is sufficient.
func (f *Forwarder) installForwarding(src, dst heap.ObjectRef, original *heap.Header) {
	src.Chunk.SetHeader(src.Offset, &heap.Header{Forwarded: true, ForwardTo: dst})
}

// shrinkStackTarget computes the policy target for NonPointerBytes
// (reserved capacity beyond the header) of a STACK object being copied:
// the collector may shrink reserved as a function of used space and
// whether this is the currently active stack. A stack that is not the
// current one is shrunk hard, since
// nothing will grow it again before it is either resumed (and grows on
// demand, mutator/allocator.go's GrowStack) or discarded; the current
// stack keeps generous headroom to avoid an immediate re-grow.
func (f *Forwarder) shrinkStackTarget(obj heap.ObjectRef, header *heap.Header) int {
	used := obj.Chunk.Frontier - obj.Offset - header.MetadataBytes()
	if used < 0 {
		used = 0
	}
	if obj == f.CurrentStack {
		target := used * 2
		if target < used+modules.SequenceMetadataSize {
			target = used + modules.SequenceMetadataSize
		}
		return target
	}
	return used
}
