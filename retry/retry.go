// Package retry provides the one retry policy applied across all upstream
// fetches. Call sites never hand-roll loops; they construct a Policy with a
// classifier and pass their operation to Do.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Defaults matching the engine's configuration surface.
const (
	DefaultMaxRetries     = 3
	DefaultInitialDelay   = 1 * time.Second
	DefaultMultiplier     = 2.0
	DefaultJitterFraction = 0.25
)

// Classifier reports whether an error is worth retrying.
type Classifier func(error) bool

// Notify is invoked before each backoff sleep with the failed attempt's error
// and the upcoming delay. Used by tests to assert the delay schedule.
type Notify func(err error, delay time.Duration)

// Policy describes a retry schedule: MaxRetries additional attempts after the
// first, exponentially spaced from InitialDelay and perturbed by
// JitterFraction so concurrently-failing items do not retry in lockstep.
type Policy struct {
	// MaxRetries is the number of additional attempts after the first.
	MaxRetries int
	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration
	// Multiplier grows the delay between consecutive retries.
	Multiplier float64
	// JitterFraction perturbs each delay by ±fraction uniformly.
	JitterFraction float64
	// Retryable classifies errors; a nil classifier retries everything.
	Retryable Classifier
}

// DefaultPolicy returns the engine's standard schedule: 3 retries at
// 1s, 2s, 4s with ±25% jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:     DefaultMaxRetries,
		InitialDelay:   DefaultInitialDelay,
		Multiplier:     DefaultMultiplier,
		JitterFraction: DefaultJitterFraction,
	}
}

// WithClassifier returns a copy of the policy using the given classifier.
func (p Policy) WithClassifier(c Classifier) Policy {
	p.Retryable = c
	return p
}

// Do runs op, retrying per the policy. Errors the classifier rejects stop the
// schedule immediately and are returned as-is. Context cancellation during a
// backoff sleep returns the last attempt's error.
func (p Policy) Do(ctx context.Context, op func() error) error {
	return p.DoNotify(ctx, op, nil)
}

// DoNotify is Do with a pre-sleep callback.
func (p Policy) DoNotify(ctx context.Context, op func() error, notify Notify) error {
	wrapped := func() error {
		err := op()
		if err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	var bn backoff.Notify
	if notify != nil {
		bn = func(err error, delay time.Duration) { notify(err, delay) }
	}

	err := backoff.RetryNotify(wrapped, p.backoff(ctx), bn)
	// backoff.Permanent wraps the error; unwrap so callers see the original.
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Unwrap()
	}
	return err
}

func (p Policy) backoff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialDelay
	eb.Multiplier = p.Multiplier
	eb.RandomizationFactor = p.JitterFraction
	// The schedule is bounded by attempt count, not elapsed time.
	eb.MaxElapsedTime = 0
	eb.MaxInterval = p.InitialDelay * time.Duration(1) << uint(p.MaxRetries)
	eb.Reset()

	var b backoff.BackOff = eb
	b = backoff.WithMaxRetries(b, uint64(p.MaxRetries))
	return backoff.WithContext(b, ctx)
}
