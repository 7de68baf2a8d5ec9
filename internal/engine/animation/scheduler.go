package animation

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Scheduler fans a range of work out and returns once every part has run.
// Parts never overlap.
type Scheduler interface {
	ParallelFor(n int, fn func(start, end int))
}

// DefaultBatchSize is how many instances one scheduled task evaluates.
const DefaultBatchSize = 64

// GroupScheduler runs batches on an errgroup bounded to a fixed worker count.
type GroupScheduler struct {
	workers   int
	batchSize int
}

// NewGroupScheduler returns a scheduler using up to workers goroutines.
// workers <= 0 uses GOMAXPROCS.
func NewGroupScheduler(workers int) *GroupScheduler {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &GroupScheduler{workers: workers, batchSize: DefaultBatchSize}
}

// WithBatchSize sets how many items each task processes.
func (g *GroupScheduler) WithBatchSize(n int) *GroupScheduler {
	if n > 0 {
		g.batchSize = n
	}
	return g
}

// Workers returns the concurrency limit.
func (g *GroupScheduler) Workers() int {
	return g.workers
}

// ParallelFor splits [0, n) into batches and blocks until all have run.
func (g *GroupScheduler) ParallelFor(n int, fn func(start, end int)) {
	if n <= 0 {
		return
	}
	if n <= g.batchSize || g.workers == 1 {
		fn(0, n)
		return
	}

	var group errgroup.Group
	group.SetLimit(g.workers)
	for start := 0; start < n; start += g.batchSize {
		end := min(start+g.batchSize, n)
		group.Go(func() error {
			fn(start, end)
			return nil
		})
	}
	_ = group.Wait()
}
