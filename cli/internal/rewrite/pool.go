// Package rewrite runs per-commit reprocessing jobs across a bounded worker
// pool. Each job analyzes one historical commit independently; the pool
// collects results in input order regardless of completion order.
package rewrite

import (
	"context"
	"sync"
)

// Result holds the outcome of one job. Value is whatever the job produced;
// Err is the job's error, if any.
type Result struct {
	Index int
	Value any
	Err   error
}

// Pool limits concurrent jobs to Workers. Zero or negative means 1.
type Pool struct {
	Workers int
}

// Run executes fn for indices 0..n-1 with at most p.Workers running at once.
// Results land in a pre-sized slice at the job's own index, so output order
// matches input order no matter which job finishes first. The first job error
// cancels the remaining work; jobs already running drain before Run returns.
func (p Pool) Run(ctx context.Context, n int, fn func(ctx context.Context, i int) (any, error)) ([]Result, error) {
	workers := p.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > n {
		workers = n
	}
	results := make([]Result, n)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		firstErr error
	)
	setErr := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					results[i] = Result{Index: i, Err: ctx.Err()}
					continue
				}
				v, err := fn(ctx, i)
				results[i] = Result{Index: i, Value: v, Err: err}
				if err != nil {
					setErr(err)
				}
			}
		}()
	}

	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if firstErr != nil {
		return results, firstErr
	}
	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}
