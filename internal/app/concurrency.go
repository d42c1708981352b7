package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Parallel2 runs a and b at once. The first failure cancels the other and
// is returned alone; both results are zero in that case.
func Parallel2[A, B any](ctx context.Context, a func(context.Context) (A, error), b func(context.Context) (B, error)) (A, B, error) {
	var (
		ra A
		rb B
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { ra, err = a(gctx); return err })
	g.Go(func() (err error) { rb, err = b(gctx); return err })

	if err := g.Wait(); err != nil {
		var (
			za A
			zb B
		)

		return za, zb, fmt.Errorf("parallel execution failed: %w", err)
	}

	return ra, rb, nil
}

// PartialResult is the outcome of one function run by ParallelPartialLimit.
type PartialResult[T any] struct {
	Value T
	Err   error
}

// ParallelPartialLimit runs fns with at most limit in flight and keeps every
// outcome in input order. Failures do not cancel siblings; a function still
// queued when ctx ends is skipped and recorded with ctx.Err().
func ParallelPartialLimit[T any](ctx context.Context, limit int, fns ...func(context.Context) (T, error)) []PartialResult[T] {
	out := make([]PartialResult[T], len(fns))

	var g errgroup.Group
	g.SetLimit(max(limit, 1))

	for i, fn := range fns {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				out[i].Err = err
				return nil
			}

			out[i].Value, out[i].Err = fn(ctx)

			return nil
		})
	}

	_ = g.Wait()

	return out
}
