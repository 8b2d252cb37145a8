package runtime

import (
	"github.com/NebulousLabs/fastrand"
	"github.com/NebulousLabs/threadgroup"

	"github.com/nebulous-runtime/hhgc/deque"
	"github.com/nebulous-runtime/hhgc/heap"
	"github.com/nebulous-runtime/hhgc/modules"
	"github.com/nebulous-runtime/hhgc/persist"
	"github.com/nebulous-runtime/hhgc/world"
)

// Pool is a fixed-size set of Workers sharing one Arena, plus the
// threadgroup.ThreadGroup that gives every goroutine spawned onto a
// worker a clean, ordered shutdown path -- the same vendored library
// Sia's own long-running services (gateway, consensus) build their
// shutdown sequencing on.
type Pool struct {
	tg      threadgroup.ThreadGroup
	arena   *heap.Arena
	cfg     modules.Config
	globals *world.Globals
	workers []*Worker
	log     *persist.Logger
}

// NewPool builds an Arena, runs world.InitWorld once to establish the
// process-wide globals, then derives numWorkers Threads from them via
// world.DuplicateWorld, one per Worker. logPath may be empty, in which
// case no log file is opened and Pool.Log returns nil.
func NewPool(cfg modules.Config, numWorkers int, logPath string) (*Pool, error) {
	blockSize := cfg.BlockSize
	if blockSize <= 0 {
		blockSize = modules.BlockSize
	}
	arena := heap.NewArena(blockSize, 0)

	globals, err := world.InitWorld(arena, cfg, 4096, 16)
	if err != nil {
		return nil, err
	}

	var logger *persist.Logger
	if logPath != "" {
		logger, err = persist.NewLogger(logPath)
		if err != nil {
			return nil, err
		}
	}

	p := &Pool{arena: arena, cfg: cfg, globals: globals, log: logger}

	p.workers = make([]*Worker, numWorkers)
	for i := 0; i < numWorkers; i++ {
		t, err := world.DuplicateWorld(arena, cfg, globals.RootThread)
		if err != nil {
			return nil, err
		}
		p.workers[i] = newWorker(i, arena, cfg, t, logger)
	}
	return p, nil
}

// Workers returns the pool's fixed worker slice. Index i is stable for
// the pool's lifetime, which is what makes it safe to use as the "victim
// id" in a steal.
func (p *Pool) Workers() []*Worker { return p.workers }

// Arena returns the shared arena every worker's heap allocates from.
func (p *Pool) Arena() *heap.Arena { return p.arena }

// Log returns the pool's logger, or nil if NewPool was given an empty
// logPath.
func (p *Pool) Log() *persist.Logger { return p.log }

// Go runs fn on a new goroutine registered with the pool's threadgroup,
// so that Close waits for it (or, if fn observes StopChan, gives it a
// chance to exit early). Use this instead of a bare `go` statement for
// any goroutine driving a Worker so that Close cannot return while a
// worker is mid-collection.
func (p *Pool) Go(fn func()) error {
	if err := p.tg.Add(); err != nil {
		return err
	}
	go func() {
		defer p.tg.Done()
		fn()
	}()
	return nil
}

// StopChan reports when the pool is shutting down, for a long-running
// worker loop to check between tasks.
func (p *Pool) StopChan() <-chan struct{} {
	return p.tg.StopChan()
}

// Close stops the threadgroup (blocking until every Go'd goroutine
// returns) and closes the log file, if one is open.
func (p *Pool) Close() error {
	err := stopThreadGroup(&p.tg)
	var logErr error
	if p.log != nil {
		logErr = p.log.Close()
	}
	return modules.Compose(err, logErr)
}

// Steal tries every worker other than thiefID, in a random start order,
// for a task at the top of its deque. It returns the stolen task, the
// victim's worker id, and true on success. Randomizing the start order
// (via fastrand rather than math/rand, matching the rest of this pack's
// preference for a CSPRNG-backed shuffle even in non-cryptographic
// contexts) avoids every idle worker converging on the same victim.
func (p *Pool) Steal(thiefID int) (task deque.Task, victim int, ok bool) {
	n := len(p.workers)
	if n <= 1 {
		return nil, -1, false
	}
	start := fastrand.Intn(n)
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		if idx == thiefID {
			continue
		}
		t, stolen := p.workers[idx].Deque.TryPopTop()
		if stolen {
			return t, idx, true
		}
	}
	return nil, -1, false
}
