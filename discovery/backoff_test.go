package discovery

import (
	"testing"
	"time"
)

func TestReadRetryBackoffUnknownBeforeAnyFailure(t *testing.T) {
	b := NewReadRetryBackoff(BackoffConfig{}, func() time.Time { return time.Unix(0, 0) })
	if got := b.Evaluate(); got != ReadUnknown {
		t.Fatalf("want ReadUnknown before any activity, got %v", got)
	}
}

func TestReadRetryBackoffTooSoonThenRetry(t *testing.T) {
	now := time.Unix(1000, 0)
	clock := func() time.Time { return now }
	b := NewReadRetryBackoff(BackoffConfig{Base: time.Second, Multiplier: 2, Max: 5 * time.Minute}, clock)

	b.RecordFailure()
	if got := b.Evaluate(); got != ReadTooSoon {
		t.Fatalf("want ReadTooSoon immediately after a failure, got %v", got)
	}

	now = now.Add(999 * time.Millisecond)
	if got := b.Evaluate(); got != ReadTooSoon {
		t.Fatalf("want ReadTooSoon just before backoff elapses, got %v", got)
	}

	now = now.Add(2 * time.Millisecond)
	if got := b.Evaluate(); got != ReadRetry {
		t.Fatalf("want ReadRetry once base backoff has elapsed, got %v", got)
	}
}

func TestReadRetryBackoffExponentialGrowthCapped(t *testing.T) {
	now := time.Unix(0, 0)
	clock := func() time.Time { return now }
	b := NewReadRetryBackoff(BackoffConfig{Base: time.Second, Multiplier: 2, Max: 3 * time.Second}, clock)

	b.RecordFailure() // backoff = 1s
	b.RecordFailure() // backoff = 2s
	b.RecordFailure() // backoff = 4s -> capped to 3s

	now = now.Add(2*time.Second + 500*time.Millisecond)
	if got := b.Evaluate(); got != ReadTooSoon {
		t.Fatalf("want ReadTooSoon before capped backoff elapses, got %v", got)
	}
	now = now.Add(600 * time.Millisecond)
	if got := b.Evaluate(); got != ReadRetry {
		t.Fatalf("want ReadRetry once capped backoff elapses, got %v", got)
	}
}

func TestReadRetryBackoffSuccessResets(t *testing.T) {
	now := time.Unix(0, 0)
	clock := func() time.Time { return now }
	b := NewReadRetryBackoff(BackoffConfig{}, clock)

	b.RecordFailure()
	b.RecordSuccess()
	if got := b.Evaluate(); got != ReadPreviouslySucceeded {
		t.Fatalf("want ReadPreviouslySucceeded after a reset success, got %v", got)
	}
}
