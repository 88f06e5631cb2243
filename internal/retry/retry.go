// Package retry repeats OpenAI calls that failed transiently.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/haasonsaas/filesearch/internal/backoff"
)

type Config struct {
	// MaxAttempts counts the first call. Values below 1 mean one attempt.
	MaxAttempts int                   `yaml:"max_attempts"`
	Policy      backoff.BackoffPolicy `yaml:"backoff"`
}

func DefaultConfig() Config {
	return Config{MaxAttempts: 3, Policy: backoff.DefaultPolicy()}
}

// NoRetry is used for calls that must not be repeated, such as creating a
// store.
func NoRetry() Config {
	return Config{MaxAttempts: 1, Policy: backoff.DefaultPolicy()}
}

// Result describes a finished Do. Err is the final error with any
// Permanent wrapper removed.
type Result struct {
	Attempts int
	Err      error
	Duration time.Duration
}

// Do calls op until it returns nil or a Permanent error, the attempts run
// out, or ctx ends. Between attempts it sleeps per cfg.Policy, or for the
// delay the error asks for via RetryAfter when that is longer.
func Do(ctx context.Context, cfg Config, op func(attempt int) error) Result {
	start := time.Now()
	attempts := max(cfg.MaxAttempts, 1)
	policy := cfg.Policy.Normalize()

	var res Result
	for res.Attempts < attempts {
		if err := ctx.Err(); err != nil {
			res.Err = err
			break
		}
		res.Attempts++
		res.Err = op(res.Attempts)
		if res.Err == nil || IsPermanent(res.Err) || res.Attempts == attempts {
			break
		}
		if err := backoff.Sleep(ctx, backoff.DelayFor(policy, res.Attempts, RetryAfter(res.Err))); err != nil {
			res.Err = err
			break
		}
	}

	var perm *PermanentError
	if errors.As(res.Err, &perm) {
		res.Err = perm.Err
	}
	res.Duration = time.Since(start)
	return res
}

// PermanentError marks an error that retrying cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so Do stops. Permanent(nil) is nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

func IsPermanent(err error) bool {
	var perm *PermanentError
	return errors.As(err, &perm)
}

// RetryAfter returns the delay requested by an error in err's chain that
// has a RetryAfter() time.Duration method, or 0.
func RetryAfter(err error) time.Duration {
	var ra interface{ RetryAfter() time.Duration }
	if errors.As(err, &ra) {
		return ra.RetryAfter()
	}
	return 0
}
