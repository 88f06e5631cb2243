// Package ratelimit paces outbound API requests with per-endpoint token buckets.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/haasonsaas/filesearch/internal/backoff"
)

// Config configures rate limiting behavior.
type Config struct {
	// RequestsPerSecond is the sustained request rate per endpoint.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	// BurstSize is how many requests may be sent back to back.
	BurstSize int `yaml:"burst_size"`
	// Enabled turns pacing on.
	Enabled bool `yaml:"enabled"`
}

// DefaultConfig returns the default rate limit configuration.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 10.0,
		BurstSize:         20,
		Enabled:           true,
	}
}

// Bucket is a token bucket. Reservations may drive the balance negative;
// the deficit is the time a caller has to wait.
type Bucket struct {
	mu      sync.Mutex
	balance float64
	burst   float64
	rate    float64
	updated time.Time
	now     func() time.Time
}

// NewBucket creates a full bucket.
func NewBucket(config Config) *Bucket {
	rate := config.RequestsPerSecond
	if rate <= 0 {
		rate = 10
	}
	burst := config.BurstSize
	if burst <= 0 {
		burst = max(int(rate*2), 1)
	}
	b := &Bucket{burst: float64(burst), rate: rate, now: time.Now}
	b.balance = b.burst
	b.updated = b.now()
	return b
}

func (b *Bucket) advance() {
	now := b.now()
	b.balance = min(b.burst, b.balance+now.Sub(b.updated).Seconds()*b.rate)
	b.updated = now
}

// Allow takes a token only if one is available right now.
func (b *Bucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance()
	if b.balance < 1 {
		return false
	}
	b.balance--
	return true
}

// Reserve takes a token unconditionally and returns how long the caller
// must wait before using it.
func (b *Bucket) Reserve() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance()
	b.balance--
	if b.balance >= 0 {
		return 0
	}
	return time.Duration(-b.balance / b.rate * float64(time.Second))
}

// cancel returns a reserved token that was never used.
func (b *Bucket) cancel() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balance = min(b.burst, b.balance+1)
}

// Wait blocks until the caller may send one request or ctx is done.
func (b *Bucket) Wait(ctx context.Context) error {
	if err := backoff.Sleep(ctx, b.Reserve()); err != nil {
		b.cancel()
		return err
	}
	return nil
}

// Limiter keeps one bucket per API endpoint ("files.upload", "vector_stores.search", ...).
type Limiter struct {
	config  Config
	mu      sync.Mutex
	buckets map[string]*Bucket
}

// NewLimiter creates a limiter. A disabled config lets every request through.
func NewLimiter(config Config) *Limiter {
	return &Limiter{config: config, buckets: map[string]*Bucket{}}
}

// Allow reports whether a request for endpoint may be sent now.
func (l *Limiter) Allow(endpoint string) bool {
	if l == nil || !l.config.Enabled {
		return true
	}
	return l.bucket(endpoint).Allow()
}

// Wait blocks until a request for endpoint may be sent or ctx is done.
func (l *Limiter) Wait(ctx context.Context, endpoint string) error {
	if l == nil || !l.config.Enabled {
		return ctx.Err()
	}
	return l.bucket(endpoint).Wait(ctx)
}

func (l *Limiter) bucket(endpoint string) *Bucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[endpoint]; ok {
		return b
	}
	b := NewBucket(l.config)
	l.buckets[endpoint] = b
	return b
}
