package collector

import (
	"github.com/nebulous-runtime/hhgc/heap"
	"github.com/nebulous-runtime/hhgc/modules"
)

// PromoteDownPointers runs deferred promotion: before any root is
// forwarded, walk the remembered set recorded at every level inside
// [min,max] and make sure a container living outside the window
// (shallower than min, or deeper than max and therefore not itself being
// collected this round) never ends up holding a stale reference to an
// object that collection is about to relocate.
//
// A remembered-set entry is the triple (Source, &field, Target) where
// Source is the deeper container holding the pointer and Target is the
// shallower object it references; entries
// are filed under Target's own depth, so walking level d's remembered set
// finds every down-pointer whose target currently lives at depth d.
//
// Two cases arise once such an entry is found:
//
//   - Source lies at a depth > max: Source's own level is not part of
//     this collection, so nothing will visit its field through the
//     ordinary root-forwarding walk. Target must still be forwarded now
//     (it lies inside the window and is about to move), and Source's
//     field patched directly through the chunk's pointer table, since
//     this runtime has no generic way to re-scan a container outside the
//     collected window.
//   - Source lies at a depth inside [min,max] (the ordinary case): both
//     ends of the edge are being collected. Source will also be reached
//     by the regular forwarding walk, but forwarding is idempotent (an
//     already-Forwarded header just returns its ForwardTo), so forwarding
//     it here too, to patch the field immediately, is safe and cheap.
//
// After an edge is processed, if Source still lies deeper than Target in
// the new (to-space) layout, the edge is re-filed into Target's new
// depth's remembered set; otherwise the down-pointer invariant it used to
// represent no longer holds (both ends now live in the same or an
// inverted arrangement) and the entry is simply dropped.
func PromoteDownPointers(hh *heap.HeapHandle, fwd *Forwarder, args *ForwardArgs) error {
	type rehome struct {
		depth int
		dp    heap.DownPointer
	}
	var rehomes []rehome

	for d := args.Min; d <= args.Max; d++ {
		list := hh.Level(d)
		if list == nil || list.RememberedSet == nil {
			continue
		}
		rs := list.RememberedSet
		entries := rs.DownPointers()
		if len(entries) == 0 {
			continue
		}

		for _, dp := range entries {
			newTarget, err := fwd.Forward(dp.Target, args)
			if err != nil {
				return modules.ExtendErr(err, modules.ErrInvariantViolated)
			}

			newSource := dp.Source
			if dp.Source.Depth() <= args.Max {
				newSource, err = fwd.Forward(dp.Source, args)
				if err != nil {
					return modules.ExtendErr(err, modules.ErrInvariantViolated)
				}
			}

			newSource.Chunk.SetPointer(newSource.Offset+dp.FieldOffset, newTarget)

			if newSource.Depth() > newTarget.Depth() {
				rehomes = append(rehomes, rehome{
					depth: newTarget.Depth(),
					dp:    heap.DownPointer{Source: newSource, FieldOffset: dp.FieldOffset, Target: newTarget},
				})
			}
		}

		rs.ClearDownPointers()
	}

	for _, r := range rehomes {
		RememberAt(hh, r.depth, r.dp)
	}
	return nil
}

// RememberAt records dp in the remembered set belonging to depth d,
// creating both the level's chunk list and its remembered-set list if
// neither exists yet. PromoteDownPointers' re-homing pass uses it; the
// mutator package has no write barrier that calls it.
func RememberAt(hh *heap.HeapHandle, d int, dp heap.DownPointer) {
	list := hh.EnsureLevel(d)
	if list.RememberedSet == nil {
		list.RememberedSet = heap.NewRememberedSet(d)
	}
	list.RememberedSet.RememberDownPointer(dp)
}
