// Package batch runs independent per-document jobs on a bounded worker pool.
package batch

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Result pairs a job's value with its error. Exactly one of them is set
// unless the job was never started because ctx ended.
type Result[R any] struct {
	Value R
	Err   error
}

// Run calls fn for each job with at most workers calls in flight. Results
// are returned in job order. A failing job does not stop the others; only
// cancellation of ctx does, in which case unstarted jobs carry ctx.Err().
func Run[J, R any](ctx context.Context, jobs []J, workers int, fn func(ctx context.Context, job J) (R, error)) []Result[R] {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
		if workers <= 0 {
			workers = 1
		}
	}
	results := make([]Result[R], len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, job := range jobs {
		if err := gctx.Err(); err != nil {
			results[i].Err = err
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			v, err := fn(gctx, job)
			results[i] = Result[R]{Value: v, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
