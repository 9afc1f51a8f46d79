package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	apperrors "rag-server/errors"

	"go.uber.org/zap"
)

func TestWithRetrySucceedsAfterTransientFailures(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, ExpBase: 2.0}

	calls := 0
	err := WithRetry(context.Background(), cfg, zap.NewNop(), "test", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return &HTTPStatusError{StatusCode: 503, Message: "loading"}
		}
		return nil
	})

	if err != nil {
		t.Fatalf("WithRetry() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestWithRetryExhaustsAttempts(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, ExpBase: 2.0}

	calls := 0
	err := WithRetry(context.Background(), cfg, zap.NewNop(), "test", func(ctx context.Context) error {
		calls++
		return &HTTPStatusError{StatusCode: 500, Message: "boom"}
	})

	if !errors.Is(err, apperrors.ErrRetryExhausted) {
		t.Errorf("error = %v, want ErrRetryExhausted", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestWithRetryStopsOnPermanentError(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 5, BaseDelay: time.Millisecond, ExpBase: 2.0}

	calls := 0
	permanent := fmt.Errorf("schema violation")
	err := WithRetry(context.Background(), cfg, zap.NewNop(), "test", func(ctx context.Context) error {
		calls++
		return permanent
	})

	if !errors.Is(err, permanent) {
		t.Errorf("error = %v, want the permanent error unchanged", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retries on permanent errors)", calls)
	}
}

func TestWithRetryHonorsCancellation(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 10, BaseDelay: 50 * time.Millisecond, ExpBase: 2.0}

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := WithRetry(ctx, cfg, zap.NewNop(), "test", func(ctx context.Context) error {
		calls++
		return &HTTPStatusError{StatusCode: 503, Message: "unavailable"}
	})

	if err == nil {
		t.Fatal("expected error after cancellation")
	}
	if calls >= 10 {
		t.Errorf("calls = %d, retries continued past cancellation", calls)
	}
}

func TestIsRetriable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "http_500", err: &HTTPStatusError{StatusCode: 500}, want: true},
		{name: "http_503", err: &HTTPStatusError{StatusCode: 503}, want: true},
		{name: "http_429", err: &HTTPStatusError{StatusCode: 429}, want: true},
		{name: "http_400", err: &HTTPStatusError{StatusCode: 400}, want: false},
		{name: "http_404", err: &HTTPStatusError{StatusCode: 404}, want: false},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "connection_refused", err: fmt.Errorf("dial tcp: connection refused"), want: true},
		{name: "validation", err: fmt.Errorf("invalid chunk size"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetriable(tt.err); got != tt.want {
				t.Errorf("IsRetriable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestBackoffDelayBounds(t *testing.T) {
	cfg := RetryConfig{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, ExpBase: 2.0}

	for attempt := 0; attempt < 8; attempt++ {
		delay := backoffDelay(cfg, attempt)
		// Jitter factor is in [0.5, 1.5), capped base is <= MaxDelay.
		if delay < cfg.BaseDelay/2 {
			t.Errorf("attempt %d: delay %v below jitter floor", attempt, delay)
		}
		if delay >= time.Duration(float64(cfg.MaxDelay)*1.5) {
			t.Errorf("attempt %d: delay %v above jitter ceiling", attempt, delay)
		}
	}
}
