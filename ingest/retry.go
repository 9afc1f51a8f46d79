package ingest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"strings"
	"time"

	apperrors "rag-server/errors"

	"go.uber.org/zap"
)

// RetryConfig controls the backoff schedule for transient failures.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	ExpBase     float64
}

// DefaultRetryConfig matches the service-wide defaults: three attempts,
// one second base, capped at thirty seconds.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		ExpBase:     2.0,
	}
}

// HTTPStatusError carries a status code through the retriability check.
type HTTPStatusError struct {
	StatusCode int
	Message    string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.StatusCode, e.Message)
}

// WithRetry runs fn with full-jitter exponential backoff, retrying only
// errors IsRetriable accepts. The returned error wraps ErrRetryExhausted
// around the last cause once attempts run out.
func WithRetry(ctx context.Context, cfg RetryConfig, logger *zap.Logger, op string, fn func(ctx context.Context) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.ExpBase <= 1 {
		cfg.ExpBase = 2.0
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(cfg, attempt-1)
			if logger != nil {
				logger.Warn("Retrying after transient failure",
					zap.String("operation", op),
					zap.Int("attempt", attempt+1),
					zap.Duration("delay", delay),
					zap.Error(lastErr))
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return lastErr
		}
		if !IsRetriable(lastErr) {
			return lastErr
		}
	}

	return apperrors.WrapErrorf(apperrors.ErrRetryExhausted, "%s failed after %d attempts: %v",
		op, cfg.MaxAttempts, lastErr)
}

// backoffDelay computes min(base * expBase^attempt, max) scaled by a
// full-jitter factor in [0.5, 1.5).
func backoffDelay(cfg RetryConfig, attempt int) time.Duration {
	delay := float64(cfg.BaseDelay) * math.Pow(cfg.ExpBase, float64(attempt))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	jittered := delay * (0.5 + rand.Float64())
	return time.Duration(jittered)
}

// IsRetriable reports whether an error is worth another attempt:
// connection and timeout failures, and HTTP 5xx or 429 responses.
func IsRetriable(err error) bool {
	if err == nil {
		return false
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == 429 ||
			(statusErr.StatusCode >= 500 && statusErr.StatusCode < 600)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"connection refused", "connection reset", "timeout", "temporarily unavailable", "eof"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
