package httputil

import (
	"context"
	"errors"
	"testing"
	"time"
)

var fastPolicy = Policy{Attempts: 3, Delay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

func TestRetry(t *testing.T) {
	permanent := errors.New("permanent")
	transient := errors.New("transient")

	tests := []struct {
		name      string
		failures  []error
		wantCalls int
		wantErr   error
	}{
		{"success first try", nil, 1, nil},
		{"recovers after transient", []error{Retryable(transient)}, 2, nil},
		{"permanent stops immediately", []error{permanent, permanent}, 1, permanent},
		{"exhausts attempts", []error{Retryable(transient), Retryable(transient), Retryable(transient)}, 3, transient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Retry(context.Background(), fastPolicy, func() error {
				calls++
				if calls <= len(tt.failures) {
					return tt.failures[calls-1]
				}
				return nil
			})
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if tt.wantErr == nil && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Retry(ctx, Policy{Attempts: 5, Delay: time.Hour}, func() error {
		calls++
		return Retryable(errors.New("down"))
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryAfterIsCapped(t *testing.T) {
	start := time.Now()
	calls := 0
	_ = Retry(context.Background(), Policy{Attempts: 2, Delay: time.Millisecond, MaxDelay: 10 * time.Millisecond}, func() error {
		calls++
		return &RetryableError{Err: errors.New("slow down"), After: time.Hour}
	})
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Retry-After hint was not capped, waited %s", elapsed)
	}
}

func TestRetryableNil(t *testing.T) {
	if Retryable(nil) != nil {
		t.Error("Retryable(nil) should be nil")
	}
	if IsRetryable(errors.New("x")) {
		t.Error("plain error should not be retryable")
	}
	if !IsRetryable(Retryable(errors.New("x"))) {
		t.Error("wrapped error should be retryable")
	}
}
