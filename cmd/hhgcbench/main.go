// Command hhgcbench drives a synthetic fork-join allocation workload
// against the hierarchical-heap runtime and reports collection
// statistics. It exists to exercise runtime.Pool end to end the way a
// real compiled program's scheduler would, without needing an actual
// compiler front end.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nebulous-runtime/hhgc/heap"
	"github.com/nebulous-runtime/hhgc/modules"
	"github.com/nebulous-runtime/hhgc/runtime"
)

var (
	numWorkers int
	forkDepth  int
	allocWords int
	iterations int
	logPath    string
	collectAll bool
)

func die(args ...interface{}) {
	fmt.Fprintln(os.Stderr, args...)
	os.Exit(1)
}

func runBench(cmd *cobra.Command, args []string) {
	cfg := modules.DefaultConfig()
	if !collectAll {
		cfg.HHCollectionLevel = modules.CollectionSuperlocal
	}

	pool, err := runtime.NewPool(cfg, numWorkers, logPath)
	if err != nil {
		die("failed to start pool:", err)
	}
	defer pool.Close()

	for _, w := range pool.Workers() {
		runForkJoinWorkload(w, forkDepth, allocWords, iterations)
	}

	stats := pool.Arena().Stats()
	fmt.Printf("workers=%d forkDepth=%d iterations=%d\n", numWorkers, forkDepth, iterations)
	fmt.Printf("arena: allocated=%d bytes, live blocks=%d, free blocks=%d\n",
		stats.AllocatedBytes, stats.LiveBlocks, stats.FreeBlocks)
	for _, w := range pool.Workers() {
		fmt.Printf("worker %d: bytesSurvivedLastCollection=%d\n", w.ID, w.Thread.HH.BytesSurvivedLastCollection)
	}
	if l := pool.Log(); l != nil {
		l.Printf("bench complete: workers=%d forkDepth=%d iterations=%d allocatedBytes=%d\n",
			numWorkers, forkDepth, iterations, stats.AllocatedBytes)
	}
}

// runForkJoinWorkload descends depth nested fork levels on w, allocating
// iterations normal objects (allocWords*8 non-pointer bytes plus one
// pointer field each) at each level, then joins back up level by level
// -- a minimal stand-in for the recursive divide-and-conquer
// workloads a real fork-join program would drive the collector with.
// A handful of objects are chained together with a pointer field so that
// the collector's pointer-field scan (and, every few levels, a
// deliberately created down-pointer into a shallower level) actually has
// something to forward.
func runForkJoinWorkload(w *runtime.Worker, depth, allocWords, iterations int) {
	objSize := allocWords*8 + 8
	var prevAtRoot heap.ObjectRef

	for lvl := 1; lvl <= depth; lvl++ {
		w.Fork()

		var last heap.ObjectRef
		for i := 0; i < iterations; i++ {
			ref, err := w.Allocate(objSize)
			if err != nil {
				die("allocation failed at level", lvl, ":", err)
			}
			h := &heap.Header{Type: heap.TypeNormal, NonPointerBytes: allocWords * 8, NumPointers: 1}
			ref.Chunk.SetHeader(ref.Offset, h)
			if !last.IsNil() {
				ref.Chunk.SetPointer(ref.Offset+allocWords*8, last)
			}
			last = ref
		}

		if lvl == 1 {
			prevAtRoot = last
		} else if !prevAtRoot.IsNil() && !last.IsNil() {
			// Record a down-pointer from this deeper level back to the
			// first level's chain, exercising deferred promotion
			// (collector.PromoteDownPointers) on the next collection.
			last.Chunk.SetPointer(last.Offset, prevAtRoot)
			rs := w.Thread.HH.EnsureLevel(prevAtRoot.Depth())
			if rs.RememberedSet == nil {
				rs.RememberedSet = heap.NewRememberedSet(prevAtRoot.Depth())
			}
			rs.RememberedSet.RememberDownPointer(heap.DownPointer{
				Source: last, FieldOffset: 0, Target: prevAtRoot,
			})
		}
	}

	for lvl := 1; lvl <= depth; lvl++ {
		w.Join()
	}
}

func main() {
	root := &cobra.Command{
		Use:   "hhgcbench",
		Short: "Benchmark the hierarchical-heap collector against a synthetic fork-join workload",
		Run:   runBench,
	}
	root.Flags().IntVarP(&numWorkers, "workers", "w", 4, "number of simulated worker threads")
	root.Flags().IntVarP(&forkDepth, "depth", "d", 8, "fork-join nesting depth to simulate")
	root.Flags().IntVarP(&allocWords, "words", "n", 4, "words allocated per object")
	root.Flags().IntVarP(&iterations, "iterations", "i", 1000, "allocations per level per iteration")
	root.Flags().StringVarP(&logPath, "log", "l", "", "path to a log file; empty disables logging")
	root.Flags().BoolVarP(&collectAll, "collect-all", "a", true, "allow collection to climb above the leaf level")

	if err := root.Execute(); err != nil {
		os.Exit(64)
	}
}
