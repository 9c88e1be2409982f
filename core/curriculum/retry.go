package curriculum

import (
	"context"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/tallman/core"
)

// Backoff configures how rate limited calls are retried.
type Backoff struct {
	MaxAttempts int
	Initial     time.Duration
	Max         time.Duration
}

func BackoffFromConfig(conf core.AIConfig) Backoff {
	return Backoff{MaxAttempts: conf.MaxAttempts, Initial: conf.InitialBackoff, Max: conf.MaxBackoff}
}

func (b Backoff) attempts() int {
	if b.MaxAttempts < 1 {
		return 1
	}
	return b.MaxAttempts
}

// policy doubles the wait from Initial up to Max, without jitter.
func (b Backoff) policy() *backoff.ExponentialBackOff {
	p := backoff.NewExponentialBackOff()
	p.InitialInterval = b.Initial
	p.RandomizationFactor = 0
	p.Multiplier = 2
	p.MaxInterval = b.Max
	if p.MaxInterval <= 0 {
		p.MaxInterval = time.Duration(math.MaxInt64)
	}
	p.MaxElapsedTime = 0
	p.Reset()
	return p
}

// delay returns the wait before retry number `n` (starting at 0).
func (b Backoff) delay(n int) time.Duration {
	p := b.policy()
	d := p.NextBackOff()
	for i := 0; i < n; i++ {
		d = p.NextBackOff()
	}
	return d
}

// retry calls fn until it succeeds, fails with something other than ErrRateLimited,
// runs out of attempts or ctx is done.
func retry(ctx context.Context, b Backoff, fn func(ctx context.Context) error) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(b.policy(), uint64(b.attempts()-1)), ctx)
	err := backoff.Retry(func() error {
		err := fn(ctx)
		if err != nil && !errors.Is(err, ErrRateLimited) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
	if err == nil || !errors.Is(err, ErrRateLimited) {
		return err
	}
	return errors.Wrapf(err, "giving up after %d attempts", b.attempts())
}

// sleep waits for `d` unless ctx is done first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
