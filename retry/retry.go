// Package retry runs flaky sensor reads a bounded number of times.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	DefaultMaxAttempts = 3
	DefaultWait        = 3 * time.Second
)

var ErrExhausted = pkgerrors.New("all attempts failed")

// Policy retries an operation with a fixed wait between attempts.
type Policy struct {
	MaxAttempts int
	Wait        time.Duration
	// Retryable decides whether an error is worth another attempt. Nil
	// retries every error.
	Retryable func(error) bool
}

func Default() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		Wait:        DefaultWait,
	}
}

// Do calls fn until it succeeds or the policy gives up. The error returned
// after the last attempt wraps both ErrExhausted and the last failure.
// A non-retryable error is returned as it is.
func (p Policy) Do(ctx context.Context, op string, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var (
		attempt   int
		last      error
		permanent bool
	)
	err := backoff.Retry(func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		last = err

		if p.Retryable != nil && !p.Retryable(err) {
			permanent = true
			return backoff.Permanent(err)
		}

		logrus.WithError(err).WithFields(logrus.Fields{
			"op":      op,
			"attempt": attempt,
			"of":      attempts,
		}).Warn("attempt failed")
		return err
	}, p.backOff(ctx, attempts))

	switch {
	case err == nil:
		return nil
	case permanent:
		return err
	case attempt < attempts && ctx.Err() != nil:
		return pkgerrors.Wrapf(ctx.Err(), "%s: gave up after %d attempts", op, attempt)
	}
	return &ExhaustedError{Op: op, Attempts: attempt, Err: last}
}

// backOff waits p.Wait between attempts and stops after the last one.
func (p Policy) backOff(ctx context.Context, attempts int) backoff.BackOff {
	var b backoff.BackOff = &backoff.StopBackOff{}
	if attempts > 1 {
		// zero retries means unlimited to WithMaxRetries
		b = backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Wait), uint64(attempts-1))
	}
	return backoff.WithContext(b, ctx)
}

// ExhaustedError carries the last failure of an operation that ran out of
// attempts.
type ExhaustedError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: %d attempts failed: %v", e.Op, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

func (e *ExhaustedError) Is(target error) bool { return target == ErrExhausted }
