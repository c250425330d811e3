package core

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/avast/retry-go"
	"go.uber.org/zap"
)

const (
	defaultMaxRetries = 2
	defaultBaseDelay  = time.Second
	defaultMaxDelay   = 10 * time.Second
	defaultJitter     = 200 * time.Millisecond
)

// Decision is the outcome of the Retry Policy for one failed attempt.
type Decision struct {
	ShouldRetry bool
	Delay       time.Duration
}

// RetryPolicy decides whether a failed fetch is retried and after what
// delay. Decide is a pure function of (kind, attempt) apart from jitter,
// which is drawn from Rand.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Jitter     time.Duration

	// Rand returns a number in [0,1). Defaults to math/rand.
	Rand func() float64
}

// DefaultRetryPolicy retries transient failures twice with exponential
// backoff: min(1s*2^attempt + jitter(0,200ms), 10s).
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: defaultMaxRetries,
		BaseDelay:  defaultBaseDelay,
		MaxDelay:   defaultMaxDelay,
		Jitter:     defaultJitter,
	}
}

// NoRetry never retries.
func NoRetry() RetryPolicy {
	return RetryPolicy{}
}

// Retryable reports whether failures of this kind may be retried at all.
func Retryable(kind Kind) bool {
	switch kind {
	case KindNotFound, KindUnauthorized, KindForbidden, KindCancelled, KindRateLimited:
		return false
	}
	return true
}

// Decide returns the decision for a failure of the given kind after
// attempt retries have already been made (attempt is zero-based).
func (p RetryPolicy) Decide(kind Kind, attempt int) Decision {
	if attempt < 0 {
		attempt = 0
	}
	if !Retryable(kind) || attempt >= p.MaxRetries {
		return Decision{}
	}
	return Decision{ShouldRetry: true, Delay: p.Backoff(attempt)}
}

// Backoff computes the delay before retry number attempt (zero-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	if p.Jitter > 0 {
		r := rand.Float64
		if p.Rand != nil {
			r = p.Rand
		}
		d += r() * float64(p.Jitter)
	}
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	return time.Duration(d)
}

// Retry runs fn until it succeeds, the policy gives up, or ctx is done.
// The returned error is always an *Error.
func Retry(
	ctx context.Context,
	p RetryPolicy,
	log *zap.Logger,
	fn func(ctx context.Context) error,
) *Error {
	if log == nil {
		log = zap.NewNop()
	}

	var last *Error
	err := retry.Do(
		func() error {
			last = AsError(fn(ctx))
			if last == nil {
				return nil
			}
			if ctx.Err() != nil {
				last = &Error{Kind: KindCancelled, Op: last.Op, Err: ctx.Err()}
			}
			return last
		},
		retry.Context(ctx),
		retry.Attempts(uint(p.MaxRetries)+1),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return Retryable(KindOf(err))
		}),
		retry.DelayType(func(n uint, err error, _ *retry.Config) time.Duration {
			return p.Decide(KindOf(err), int(n)).Delay
		}),
		retry.OnRetry(func(n uint, err error) {
			log.Debug("fetch attempt failed",
				zap.Uint("attempt", n),
				zap.String("kind", string(KindOf(err))),
				zap.Error(err))
		}),
	)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return &Error{Kind: KindCancelled, Err: ctx.Err()}
	}
	if last != nil {
		return last
	}
	return AsError(err)
}
