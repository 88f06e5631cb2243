package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/haasonsaas/filesearch/internal/backoff"
)

var errTemporary = errors.New("temporary error")

func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts: attempts,
		Policy:      backoff.BackoffPolicy{InitialMs: 1, MaxMs: 5, Factor: 2},
	}
}

type throttled struct{ delay time.Duration }

func (e throttled) Error() string             { return "throttled" }
func (e throttled) RetryAfter() time.Duration { return e.delay }

func TestDo(t *testing.T) {
	tests := []struct {
		name         string
		attempts     int
		failures     int
		err          error
		wantAttempts int
		wantErr      bool
	}{
		{name: "succeeds first attempt", attempts: 3, failures: 0, wantAttempts: 1},
		{name: "succeeds after retries", attempts: 5, failures: 2, err: errTemporary, wantAttempts: 3},
		{name: "exhausts attempts", attempts: 3, failures: 10, err: errTemporary, wantAttempts: 3, wantErr: true},
		{name: "permanent error stops", attempts: 5, failures: 10, err: Permanent(errTemporary), wantAttempts: 1, wantErr: true},
		{name: "zero attempts runs once", attempts: 0, failures: 10, err: errTemporary, wantAttempts: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			result := Do(context.Background(), fastConfig(tt.attempts), func(attempt int) error {
				calls++
				if attempt != calls {
					t.Fatalf("attempt = %d, want %d", attempt, calls)
				}
				if calls <= tt.failures {
					return tt.err
				}
				return nil
			})
			if result.Attempts != tt.wantAttempts {
				t.Errorf("Attempts = %d, want %d", result.Attempts, tt.wantAttempts)
			}
			if (result.Err != nil) != tt.wantErr {
				t.Errorf("Err = %v, wantErr %v", result.Err, tt.wantErr)
			}
		})
	}
}

func TestDoHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := Do(ctx, fastConfig(3), func(int) error { return nil })
	if !errors.Is(result.Err, context.Canceled) {
		t.Fatalf("Err = %v, want context.Canceled", result.Err)
	}
	if result.Attempts != 0 {
		t.Errorf("Attempts = %d, want 0", result.Attempts)
	}
}

func TestDoUnwrapsPermanent(t *testing.T) {
	result := Do(context.Background(), fastConfig(3), func(int) error {
		return Permanent(errTemporary)
	})
	if result.Err != errTemporary {
		t.Fatalf("Err = %#v, want the unwrapped error", result.Err)
	}
}

func TestDoSleepsForRetryAfter(t *testing.T) {
	cfg := Config{MaxAttempts: 2, Policy: backoff.BackoffPolicy{InitialMs: 1, MaxMs: 100, Factor: 2}}
	result := Do(context.Background(), cfg, func(attempt int) error {
		if attempt == 1 {
			return throttled{delay: 30 * time.Millisecond}
		}
		return nil
	})
	if result.Err != nil || result.Attempts != 2 {
		t.Fatalf("result = %+v", result)
	}
	if result.Duration < 30*time.Millisecond {
		t.Errorf("Duration = %v, want at least the requested delay", result.Duration)
	}
}

func TestRetryAfter(t *testing.T) {
	wrapped := errors.Join(errors.New("outer"), throttled{delay: 3 * time.Second})
	if got := RetryAfter(wrapped); got != 3*time.Second {
		t.Fatalf("RetryAfter() = %v", got)
	}
	if got := RetryAfter(errTemporary); got != 0 {
		t.Fatalf("RetryAfter() = %v, want 0", got)
	}
}

func TestPermanent(t *testing.T) {
	if Permanent(nil) != nil {
		t.Fatal("Permanent(nil) should be nil")
	}
	err := Permanent(errTemporary)
	if !IsPermanent(err) || !errors.Is(err, errTemporary) {
		t.Fatalf("Permanent wrapping broken: %v", err)
	}
	if IsPermanent(errTemporary) {
		t.Fatal("plain error reported permanent")
	}
}
