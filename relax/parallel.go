package relax

import (
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/pthm-cable/icgen/neighbors"
)

// workerScratch holds per-worker reusable buffers.
type workerScratch struct {
	Neighbors []neighbors.Neighbor
}

// parallelState holds resources for chunked per-particle phases.
type parallelState struct {
	scratches  []workerScratch
	numWorkers int
	threshold  int
	errs       []error
}

func newParallelState(workers, threshold int) *parallelState {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	scratches := make([]workerScratch, workers)
	for i := range scratches {
		scratches[i].Neighbors = make([]neighbors.Neighbor, 0, 64)
	}
	return &parallelState{
		numWorkers: workers,
		threshold:  threshold,
		scratches:  scratches,
		errs:       make([]error, workers),
	}
}

// chunkFunc processes particles [start, end). Implementations write only to
// per-particle slots in that range.
type chunkFunc func(start, end int, scratch *workerScratch) error

// forEach splits [0, n) into contiguous chunks, one per worker. Below the
// threshold everything runs on the calling goroutine. When several chunks
// fail, the error from the lowest chunk is returned so failures are reported
// the same way on every run.
func (p *parallelState) forEach(n int, fn chunkFunc) error {
	if n < p.threshold || p.numWorkers == 1 {
		return fn(0, n, &p.scratches[0])
	}

	chunkSize := (n + p.numWorkers - 1) / p.numWorkers
	var g errgroup.Group
	for w := 0; w < p.numWorkers; w++ {
		start := w * chunkSize
		end := min(start+chunkSize, n)
		p.errs[w] = nil
		if start >= end {
			continue
		}
		g.Go(func() error {
			p.errs[w] = fn(start, end, &p.scratches[w])
			return p.errs[w]
		})
	}
	if g.Wait() == nil {
		return nil
	}
	for _, err := range p.errs {
		if err != nil {
			return err
		}
	}
	return nil
}
