package clients

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"net"
	"net/http"
	"time"
)

// attempts returns how many times req may be sent. A body without GetBody
// cannot be replayed and POST is sent once unless RetryNonIdempotent is set.
func (c *Client) attempts(req *http.Request) int {
	replayable := req.Body == nil || req.Body == http.NoBody || req.GetBody != nil

	switch {
	case !replayable:
		return 1
	case req.Method == http.MethodPost || req.Method == http.MethodPatch:
		if !c.cfg.RetryNonIdempotent {
			return 1
		}
	}

	return c.cfg.Retry.MaxAttempts
}

// withRetry sends req until it gets a final answer or runs out of attempts.
func (c *Client) withRetry(ctx context.Context, req *http.Request, logger *slog.Logger) (*http.Response, error) {
	limit := c.attempts(req)

	var lastErr error

	for attempt := range limit {
		if attempt > 0 {
			if err := c.pause(ctx, attempt, logger); err != nil {
				return nil, err
			}

			if err := replay(req); err != nil {
				return nil, err
			}
		}

		resp, err := c.http.Do(req.WithContext(ctx))

		lastErr = c.retryReason(resp, err)
		if lastErr == nil {
			return resp, nil
		}

		if err != nil && !isRetryableError(err) {
			return nil, err
		}

		logger.DebugContext(ctx, "attempt failed", slog.Int("attempt", attempt+1), slog.Any("error", lastErr))
	}

	return nil, lastErr
}

// retryReason returns nil when resp is a final answer, or the error that
// makes the attempt worth repeating. The body of a retryable response is
// closed here.
func (c *Client) retryReason(resp *http.Response, err error) error {
	if err != nil {
		return err
	}

	if resp.StatusCode < http.StatusInternalServerError && resp.StatusCode != http.StatusTooManyRequests {
		return nil
	}

	if cerr := resp.Body.Close(); cerr != nil {
		c.logger.Debug("closing retryable response body", slog.Any("error", cerr))
	}

	return &StatusError{StatusCode: resp.StatusCode}
}

func (c *Client) pause(ctx context.Context, attempt int, logger *slog.Logger) error {
	wait := c.calculateBackoff(attempt)
	logger.DebugContext(ctx, "backing off", slog.Int("next_attempt", attempt+1), slog.Duration("wait", wait))

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func replay(req *http.Request) error {
	if req.GetBody == nil {
		return nil
	}

	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("rewinding request body: %w", err)
	}

	req.Body = body

	return nil
}

// calculateBackoff is InitialInterval * Multiplier^attempt, capped at
// MaxInterval, then moved by up to JitterFactor in either direction.
func (c *Client) calculateBackoff(attempt int) time.Duration {
	r := c.cfg.Retry

	d := min(float64(r.InitialInterval)*math.Pow(r.Multiplier, float64(attempt)), float64(r.MaxInterval))

	jitter := r.JitterFactor
	if jitter <= 0 {
		jitter = defaultJitterFactor
	}

	d *= 1 + jitter*(2*rand.Float64()-1) //nolint:gosec // jitter only

	return time.Duration(d)
}

// isRetryableError reports whether a transport error may clear up on its
// own. Cancellation by the caller never does.
func isRetryableError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}

	var oe *net.OpError

	return errors.As(err, &oe)
}
