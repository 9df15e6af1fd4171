package engine

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// BatchResult is the outcome of one input of a batch.
type BatchResult struct {
	Input  Input
	Result *Result
	// Err is a fatal error of this input; the others still run.
	Err error
}

// ProcessBatch processes independent templates concurrently, at most
// parallel at a time (GOMAXPROCS when parallel <= 0). Results are in input
// order. The error is non-nil only when ctx ends before every input ran.
func (e *Engine) ProcessBatch(ctx context.Context, inputs []Input, parallel int) ([]*BatchResult, error) {
	if parallel <= 0 {
		parallel = runtime.GOMAXPROCS(0)
	}
	results := make([]*BatchResult, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, in := range inputs {
		if gctx.Err() != nil {
			break
		}
		i, in := i, in
		g.Go(func() error {
			res, err := e.ProcessTemplate(gctx, in)
			results[i] = &BatchResult{Input: in, Result: res, Err: err}
			if err != nil {
				e.logger.Warn(gctx, err, "template failed", "file", in.File)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, ctx.Err()
}
