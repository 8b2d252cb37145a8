package heap

// ObjectType tags what kind of object a header describes: a plain fixed
// layout value, a variable-length sequence, a thread's own stack, or a
// weak reference.
type ObjectType int

const (
	// TypeNormal is a fixed-size object: a header plus a run of
	// non-pointer bytes followed by a run of pointer fields.
	TypeNormal ObjectType = iota
	// TypeSequence is a variable-length array: header + element_size *
	// length, aligned.
	TypeSequence
	// TypeStack is a thread's stack object: header + sizeof(stack) +
	// reserved, living inside the HH rather than a separate region.
	TypeStack
	// TypeWeak is a weak reference. Local collection never copies a WEAK
	// object; forwarding such an object is always a fatal
	// ErrWeakDuringLocal (see DESIGN.md's Open Question resolution).
	TypeWeak
)

func (t ObjectType) String() string {
	switch t {
	case TypeNormal:
		return "NORMAL"
	case TypeSequence:
		return "SEQUENCE"
	case TypeStack:
		return "STACK"
	case TypeWeak:
		return "WEAK"
	default:
		return "UNKNOWN"
	}
}

// ObjectRef is a stable reference to a heap object: the chunk it lives in
// plus its byte offset within that chunk. Using (chunk, offset) instead
// of a raw pointer keeps every cross-reference valid across a Go garbage
// collection of the *Chunk values themselves, which a raw
// unsafe.Pointer into a byte slice would not survive.
type ObjectRef struct {
	Chunk  *Chunk
	Offset int
}

// IsNil reports whether r refers to no object.
func (r ObjectRef) IsNil() bool {
	return r.Chunk == nil
}

// Depth returns the fork-join nesting level of the object r refers to,
// i.e. the depth of the level list that owns r's chunk.
func (r ObjectRef) Depth() int {
	if r.Chunk == nil || r.Chunk.Owner == nil {
		return -1
	}
	return r.Chunk.Owner.Depth
}

// Header is the tagged-variant representation of a single-word object
// header: rather than bit-pack a machine word, a Fresh header carries its
// type/size metadata directly and a Forwarded header carries only the
// forwarding target. The transition Fresh -> Forwarded is one-way and is
// the entire state machine driving the forwarding engine.
type Header struct {
	Forwarded bool
	// ForwardTo is only meaningful when Forwarded is true.
	ForwardTo ObjectRef

	// Fields below are only meaningful when Forwarded is false.
	Type ObjectType
	// NonPointerBytes is the size, in bytes, of the object's non-pointer
	// payload (immediately following the header).
	NonPointerBytes int
	// NumPointers is the number of pointer-sized fields following the
	// non-pointer payload.
	NumPointers int
	// Length is only meaningful for TypeSequence: the element count.
	Length int
	// ElemSize is only meaningful for TypeSequence: the size of one
	// element, in bytes.
	ElemSize int
	// Marks is a scratch bit used by assertion-build accounting; it plays
	// no role in forwarding correctness.
	Marks bool
}

// MetadataBytes returns the number of bytes occupied by the header word
// itself, preceding the object's data.
func (h Header) MetadataBytes() int {
	return headerSize
}

// ObjectBytes returns the size of the object's data, not including the
// header, using each type's own sizing rule.
func (h Header) ObjectBytes() int {
	switch h.Type {
	case TypeSequence:
		return align(h.ElemSize*h.Length, wordSize)
	case TypeStack:
		return stackHeaderSize + h.NonPointerBytes
	default:
		return align(h.NonPointerBytes+h.NumPointers*wordSize, wordSize)
	}
}

// CopyBytes is ObjectBytes plus the header itself: the number of bytes a
// forwarding copy must memcpy.
func (h Header) CopyBytes() int {
	return h.MetadataBytes() + h.ObjectBytes()
}

// PointerOffsets returns the field offsets, relative to objOffset (the
// object's own offset, not its header), that hold a pointer field, for a
// NORMAL or SEQUENCE-of-pointers object. There is no compiler front end
// here to emit a per-object pointer bitmap, so layout instead follows a
// fixed convention: non-pointer bytes first, then a run of word-sized
// pointer fields (NORMAL), or a contiguous array of pointer elements
// (SEQUENCE with ElemSize == wordSize). STACK and WEAK objects report no
// pointer offsets; the stack's live values are scanned through its own
// explicit StackTop root rather than a generic header walk, and a WEAK
// object is never scanned in local collection at all.
func (h Header) PointerOffsets(objOffset int) []int {
	switch h.Type {
	case TypeNormal:
		base := objOffset + h.NonPointerBytes
		offsets := make([]int, h.NumPointers)
		for i := 0; i < h.NumPointers; i++ {
			offsets[i] = base + i*wordSize
		}
		return offsets
	case TypeSequence:
		if h.ElemSize != wordSize {
			return nil
		}
		offsets := make([]int, h.Length)
		for i := 0; i < h.Length; i++ {
			offsets[i] = objOffset + i*wordSize
		}
		return offsets
	default:
		return nil
	}
}

const (
	wordSize        = 8
	headerSize      = wordSize
	stackHeaderSize = wordSize
)

func align(n, to int) int {
	if to <= 0 {
		return n
	}
	rem := n % to
	if rem == 0 {
		return n
	}
	return n + (to - rem)
}
