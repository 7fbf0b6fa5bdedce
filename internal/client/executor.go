package client

import (
	"context"
	"time"

	"github.com/flanksource/commons/logger"
	"github.com/sethvargo/go-retry"
)

const (
	// DefaultMaxAttempts bounds how many times a single remote call runs,
	// the first attempt included.
	DefaultMaxAttempts = 3

	// DefaultRetryDelay is the sleep between attempts when the server did
	// not direct a specific backoff.
	DefaultRetryDelay = 5 * time.Second
)

// Executor runs remote calls under the shared retry policy: rate-limited and
// transient network failures are retried up to the attempt cap, honoring a
// server-directed delay when one was given; everything else fails fast.
type Executor struct {
	MaxAttempts int
	RetryDelay  time.Duration
}

func NewExecutor() *Executor {
	return &Executor{
		MaxAttempts: DefaultMaxAttempts,
		RetryDelay:  DefaultRetryDelay,
	}
}

// Execute invokes call until it succeeds, fails terminally, or the attempt
// cap is reached. op names the call in retry logs.
func (e *Executor) Execute(ctx context.Context, op string, call func(ctx context.Context) error) error {
	attempts := e.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := e.retryDelay()

	// The backoff yields whatever delay the most recent failure asked for.
	backoff := retry.WithMaxRetries(uint64(attempts-1), retry.BackoffFunc(func() (time.Duration, bool) {
		return delay, false
	}))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := call(ctx)
		if err == nil {
			return nil
		}
		if rl, ok := AsRateLimited(err); ok {
			delay = rl.RetryAfter
			if delay <= 0 {
				delay = e.retryDelay()
			}
			logger.Warnf("%s: rate limited, retrying in %s", op, delay)
			return retry.RetryableError(err)
		}
		if IsTransient(err) {
			delay = e.retryDelay()
			logger.Warnf("%s: %v, retrying in %s", op, err, delay)
			return retry.RetryableError(err)
		}
		return err
	})
}

func (e *Executor) retryDelay() time.Duration {
	if e.RetryDelay > 0 {
		return e.RetryDelay
	}
	return DefaultRetryDelay
}
