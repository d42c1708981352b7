package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParallel2(t *testing.T) {
	t.Run("returns both results", func(t *testing.T) {
		a, b, err := Parallel2(context.Background(),
			func(context.Context) (string, error) { return "quotes", nil },
			func(context.Context) (int, error) { return 3, nil },
		)

		require.NoError(t, err)
		assert.Equal(t, "quotes", a)
		assert.Equal(t, 3, b)
	})

	t.Run("first error cancels the other", func(t *testing.T) {
		boom := errors.New("boom")

		a, b, err := Parallel2(context.Background(),
			func(context.Context) (string, error) { return "", boom },
			func(ctx context.Context) (int, error) {
				<-ctx.Done()
				return 0, ctx.Err()
			},
		)

		require.ErrorIs(t, err, boom)
		assert.Empty(t, a)
		assert.Zero(t, b)
	})
}

func TestParallelPartialLimit(t *testing.T) {
	t.Run("collects successes and failures", func(t *testing.T) {
		fail := errors.New("push failed")

		results := ParallelPartialLimit(context.Background(), 2,
			func(context.Context) (int, error) { return 1, nil },
			func(context.Context) (int, error) { return 0, fail },
			func(context.Context) (int, error) { return 3, nil },
		)

		require.Len(t, results, 3)
		assert.Equal(t, 1, results[0].Value)
		require.ErrorIs(t, results[1].Err, fail)
		assert.Equal(t, 3, results[2].Value)
	})

	t.Run("respects the limit", func(t *testing.T) {
		var inFlight, peak atomic.Int32

		fn := func(context.Context) (struct{}, error) {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}

			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)

			return struct{}{}, nil
		}

		fns := make([]func(context.Context) (struct{}, error), 10)
		for i := range fns {
			fns[i] = fn
		}

		ParallelPartialLimit(context.Background(), 3, fns...)

		assert.LessOrEqual(t, peak.Load(), int32(3))
	})

	t.Run("canceled context skips work", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		var calls atomic.Int32

		results := ParallelPartialLimit(ctx, 1,
			func(context.Context) (int, error) { calls.Add(1); return 1, nil },
		)

		require.ErrorIs(t, results[0].Err, context.Canceled)
		assert.Zero(t, calls.Load())
	})
}
