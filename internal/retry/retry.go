// Package retry retries rate-limited operations with exponential backoff.
package retry

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog"
)

// RateLimited is implemented by errors that may carry a rate-limit signal.
// Only errors reporting true are retried.
type RateLimited interface {
	RateLimited() bool
}

// IsRateLimited reports whether err, or any error in its chain, carries a
// rate-limit signal.
func IsRateLimited(err error) bool {
	var rl RateLimited
	return errors.As(err, &rl) && rl.RateLimited()
}

// Policy controls how an operation is retried.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// BaseDelay is the wait before the first retry; each further retry
	// doubles it.
	BaseDelay time.Duration

	// MaxDelay caps a single wait. Zero means no cap.
	MaxDelay time.Duration

	// Wait suspends for d. Nil uses a timer that honours ctx.
	Wait func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy returns 3 retries starting at one second, uncapped.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
	}
}

// Delay returns the wait before retry number retryCount (zero based).
func (p Policy) Delay(retryCount int) time.Duration {
	d := p.BaseDelay << uint(retryCount)
	if retryCount >= 63 || d>>uint(retryCount) != p.BaseDelay {
		d = time.Duration(math.MaxInt64)
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

func (p Policy) wait(ctx context.Context, d time.Duration) error {
	if p.Wait != nil {
		return p.Wait(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do invokes op, retrying while it fails with a rate-limit signal and
// retries remain. Any other error, or the last rate-limit error once
// retries are exhausted, is returned unchanged.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	log := zerolog.Ctx(ctx)
	for retryCount := 0; ; retryCount++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if !IsRateLimited(err) || retryCount >= p.MaxRetries {
			return v, err
		}

		delay := p.Delay(retryCount)
		log.Warn().
			Err(err).
			Int("attempt", retryCount+1).
			Dur("delay", delay).
			Msg("rate limited; retrying")
		if werr := p.wait(ctx, delay); werr != nil {
			return v, werr
		}
	}
}

// Run is Do for operations without a result.
func Run(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	_, err := Do(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}
