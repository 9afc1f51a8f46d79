package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"rag-server/llmclient"
)

// Error codes surfaced to chat clients in place of raw backend errors.
const (
	CodeInternalError    = "INTERNAL_ERROR"
	CodeTimeout          = "TIMEOUT"
	CodeRateLimited      = "RATE_LIMITED"
	CodeContextTooLong   = "CONTEXT_TOO_LONG"
	CodeModelUnavailable = "MODEL_UNAVAILABLE"
	CodeInvalidRequest   = "INVALID_REQUEST"
)

// ClassifyLLMError maps a generation failure to a stable client-facing
// code by keyword, formatted as "CODE: message".
func ClassifyLLMError(err error) string {
	return fmt.Sprintf("%s: %s", classifyCode(err), err.Error())
}

func classifyCode(err error) string {
	if errors.Is(err, llmclient.ErrContextWindowExceeded) {
		return CodeContextTooLong
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "timeout", "timed out", "deadline exceeded"):
		return CodeTimeout
	case containsAny(msg, "rate limit", "too many requests", "429"):
		return CodeRateLimited
	case containsAny(msg, "context length", "context window", "too long", "maximum context"):
		return CodeContextTooLong
	case containsAny(msg, "model not found", "no such model", "unavailable", "connection refused", "503"):
		return CodeModelUnavailable
	case containsAny(msg, "invalid", "bad request", "400"):
		return CodeInvalidRequest
	default:
		return CodeInternalError
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
