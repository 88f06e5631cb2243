// Package backoff computes exponential retry delays with jitter for API calls.
package backoff

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// BackoffPolicy defines the parameters for exponential backoff calculation.
type BackoffPolicy struct {
	// InitialMs is the delay before the second attempt in milliseconds.
	InitialMs float64 `yaml:"initial_ms"`
	// MaxMs caps any single delay in milliseconds.
	MaxMs float64 `yaml:"max_ms"`
	// Factor is the exponential factor applied to each attempt.
	Factor float64 `yaml:"factor"`
	// Jitter is the randomization factor (0.0 to 1.0) applied to the delay.
	Jitter float64 `yaml:"jitter"`
}

// ComputeBackoff calculates the delay after the given failed attempt (1-indexed).
// base = initialMs * factor^(attempt-1), result = min(maxMs, base + base*jitter*random()).
func ComputeBackoff(policy BackoffPolicy, attempt int) time.Duration {
	return ComputeBackoffWithRand(policy, attempt, rand.Float64()) // #nosec G404 -- jitter does not require cryptographic randomness
}

// ComputeBackoffWithRand is ComputeBackoff with a caller supplied random value in [0, 1).
func ComputeBackoffWithRand(policy BackoffPolicy, attempt int, randomValue float64) time.Duration {
	exp := math.Max(float64(attempt-1), 0)
	base := policy.InitialMs * math.Pow(policy.Factor, exp)
	total := math.Min(policy.MaxMs, base+base*policy.Jitter*randomValue)
	return time.Duration(math.Round(total)) * time.Millisecond
}

// DelayFor returns the delay to wait after attempt. A positive server hint
// (Retry-After) wins over the computed value but is still capped by MaxMs.
func DelayFor(policy BackoffPolicy, attempt int, serverHint time.Duration) time.Duration {
	if serverHint > 0 {
		limit := time.Duration(policy.MaxMs) * time.Millisecond
		if limit > 0 && serverHint > limit {
			return limit
		}
		return serverHint
	}
	return ComputeBackoff(policy, attempt)
}

// DefaultPolicy is used for OpenAI API calls.
// Initial: 500ms, Max: 20s, Factor: 2, Jitter: 20%
func DefaultPolicy() BackoffPolicy {
	return BackoffPolicy{
		InitialMs: 500,
		MaxMs:     20000,
		Factor:    2,
		Jitter:    0.2,
	}
}

// Normalize fills zero fields from DefaultPolicy.
func (p BackoffPolicy) Normalize() BackoffPolicy {
	def := DefaultPolicy()
	if p.InitialMs <= 0 {
		p.InitialMs = def.InitialMs
	}
	if p.MaxMs <= 0 {
		p.MaxMs = def.MaxMs
	}
	if p.Factor < 1 {
		p.Factor = def.Factor
	}
	if p.Jitter < 0 || p.Jitter > 1 {
		p.Jitter = def.Jitter
	}
	return p
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
