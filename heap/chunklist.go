package heap

// CopyObjectHH is the sentinel HeapHandle assigned to a to-space level
// list while it exists only to receive objects being forwarded during an
// in-flight collection, before it has been installed as a real worker's
// HH slot. A list still carrying this sentinel can be told apart from
// one that has already been adopted by a HeapHandle.
var CopyObjectHH = &HeapHandle{}

// ChunkList is an ordered, doubly-linked sequence of chunks sharing a
// depth. A level-head chunk list additionally carries a depth number,
// the HH that contains it (or the CopyObjectHH sentinel), an
// IsInToSpace flag, and an optional remembered set.
type ChunkList struct {
	head *Chunk
	tail *Chunk

	// Depth is the fork-join nesting level this list's chunks all belong
	// to.
	Depth int

	// HH is the hierarchical heap this list is a slot of, or CopyObjectHH
	// if this list exists only to host objects forwarded during an
	// in-flight collection.
	HH *HeapHandle

	// IsInToSpace is true for level lists created as collection targets;
	// the forwarding engine checks it to leave a reference that already
	// resolves into to-space alone instead of forwarding it again.
	IsInToSpace bool

	// RememberedSet holds down-pointer triples targeting objects at this
	// list's depth, consulted by deferred promotion before any root is
	// forwarded.
	RememberedSet *ChunkList

	// Bytes is the aggregate size, in bytes, of every chunk currently
	// linked into this list.
	Bytes int64

	// downPointers holds the (source, field offset, target) triples when
	// this list is being used as a remembered set rather than an object
	// chunk list. It is nil for ordinary object-holding lists.
	downPointers []DownPointer
}

// DownPointer is a remembered reference from a deeper depth into a
// shallower one: (src, &field, dst), where level(src) > level(dst).
type DownPointer struct {
	Source      ObjectRef
	FieldOffset int
	Target      ObjectRef
}

// NewChunkList returns an empty chunk list at the given depth, owned by hh.
func NewChunkList(depth int, hh *HeapHandle) *ChunkList {
	return &ChunkList{Depth: depth, HH: hh}
}

// NewRememberedSet returns an empty remembered-set chunk list for the
// given depth.
func NewRememberedSet(depth int) *ChunkList {
	return &ChunkList{Depth: depth}
}

// Empty reports whether the list has no chunks linked into it.
func (l *ChunkList) Empty() bool {
	return l.head == nil
}

// Head returns the first chunk in the list, or nil.
func (l *ChunkList) Head() *Chunk { return l.head }

// Tail returns the last chunk in the list, or nil.
func (l *ChunkList) Tail() *Chunk { return l.tail }

// Link appends c to the tail of l. c must not already belong to a list.
// It is exported for use by the collector package's single-object-chunk
// move optimization, which relocates an existing chunk into a to-space
// list without copying any bytes.
func (l *ChunkList) Link(c *Chunk) {
	l.link(c)
}

// link appends c to the tail of l. c must not already belong to a list.
func (l *ChunkList) link(c *Chunk) {
	c.Owner = l
	c.Next = nil
	c.Prev = l.tail
	if l.tail != nil {
		l.tail.Next = c
	} else {
		l.head = c
	}
	l.tail = c
	l.Bytes += int64(c.Bytes())
}

// UnlinkChunk removes c from whatever list currently owns it without
// touching its interior. It is a no-op if c is not linked into any list.
func UnlinkChunk(c *Chunk) {
	l := c.Owner
	if l == nil {
		return
	}
	if c.Prev != nil {
		c.Prev.Next = c.Next
	} else {
		l.head = c.Next
	}
	if c.Next != nil {
		c.Next.Prev = c.Prev
	} else {
		l.tail = c.Prev
	}
	c.Next = nil
	c.Prev = nil
	c.Owner = nil
	l.Bytes -= int64(c.Bytes())
}

// AppendChunkList moves all chunks from src to dst in order. The list
// splice itself is constant-time, but every chunk of src is visited once
// to repoint its Owner, so the cost is O(len(src)), not O(1). src is
// left empty.
func AppendChunkList(dst, src *ChunkList) {
	if src.head == nil {
		return
	}
	for c := src.head; c != nil; c = c.Next {
		c.Owner = dst
	}
	if dst.tail != nil {
		dst.tail.Next = src.head
		src.head.Prev = dst.tail
	} else {
		dst.head = src.head
	}
	dst.tail = src.tail
	dst.Bytes += src.Bytes

	src.head = nil
	src.tail = nil
	src.Bytes = 0
}

// RememberDownPointer appends a down-pointer triple to l, which must
// itself be a remembered-set list (see NewRememberedSet); it does not
// create a remembered set on a level list that lacks one.
func (l *ChunkList) RememberDownPointer(dp DownPointer) {
	l.downPointers = append(l.downPointers, dp)
}

// DownPointers returns the triples recorded in this list's remembered
// set.
func (l *ChunkList) DownPointers() []DownPointer {
	return l.downPointers
}

// ClearDownPointers empties the remembered set, used once deferred
// promotion (component H) has fully processed it.
func (l *ChunkList) ClearDownPointers() {
	l.downPointers = nil
}
