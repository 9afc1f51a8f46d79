package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RateLimiterConfig holds configuration for rate limiting
type RateLimiterConfig struct {
	MessagesPerMinute int           // Max chat messages per user per minute
	BurstSize         int           // Allow burst of N requests
	CleanupInterval   time.Duration // How often to clean up old entries
}

// TokenBucket implements a token bucket rate limiter
type TokenBucket struct {
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	mu         sync.Mutex
}

// NewTokenBucket creates a new token bucket
func NewTokenBucket(maxTokens float64, refillRate float64) *TokenBucket {
	return &TokenBucket{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Allow checks if a request can proceed and consumes a token if so
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()

	// Refill tokens based on elapsed time
	tb.tokens = min(tb.maxTokens, tb.tokens+(elapsed*tb.refillRate))
	tb.lastRefill = now

	if tb.tokens >= 1.0 {
		tb.tokens -= 1.0
		return true
	}
	return false
}

// Remaining returns the number of tokens remaining
func (tb *TokenBucket) Remaining() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	tokens := min(tb.maxTokens, tb.tokens+(elapsed*tb.refillRate))
	return int(tokens)
}

// UserRateLimiter manages rate limits per user
type UserRateLimiter struct {
	config      RateLimiterConfig
	limits      map[string]*TokenBucket
	mu          sync.RWMutex
	logger      *zap.Logger
	stopCleanup chan struct{}
}

// NewUserRateLimiter creates a new per-user rate limiter
func NewUserRateLimiter(config RateLimiterConfig, logger *zap.Logger) *UserRateLimiter {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 10 * time.Minute
	}
	limiter := &UserRateLimiter{
		config:      config,
		limits:      make(map[string]*TokenBucket),
		logger:      logger,
		stopCleanup: make(chan struct{}),
	}

	go limiter.cleanupRoutine()

	return limiter
}

func (l *UserRateLimiter) cleanupRoutine() {
	ticker := time.NewTicker(l.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stopCleanup:
			return
		}
	}
}

// cleanup drops all buckets once the map grows large. Buckets rebuild
// full, which briefly over-admits but keeps memory bounded.
func (l *UserRateLimiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.limits) > 1000 {
		l.logger.Info("Cleaning up rate limiter cache", zap.Int("buckets", len(l.limits)))
		l.limits = make(map[string]*TokenBucket)
	}
}

// Stop stops the cleanup routine
func (l *UserRateLimiter) Stop() {
	close(l.stopCleanup)
}

// Allow checks if a request can proceed for the given user
func (l *UserRateLimiter) Allow(userID string) bool {
	l.mu.Lock()
	bucket, exists := l.limits[userID]
	if !exists {
		// MessagesPerMinute tokens refill at rate/60 per second
		refillRate := float64(l.config.MessagesPerMinute) / 60.0
		bucket = NewTokenBucket(float64(l.config.BurstSize), refillRate)
		l.limits[userID] = bucket
	}
	l.mu.Unlock()

	return bucket.Allow()
}

// RateLimitMiddleware creates a Gin middleware limiting chat traffic per
// user. The user id comes from the X-User-ID header, falling back to the
// client address for unidentified callers.
func RateLimitMiddleware(limiter *UserRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader("X-User-ID")
		if userID == "" {
			userID = c.ClientIP()
		}

		if !limiter.Allow(userID) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
				"code":  "RESOURCE_EXHAUSTED",
			})
			return
		}
		c.Next()
	}
}
