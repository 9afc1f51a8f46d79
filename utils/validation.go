package utils

import (
	"net/url"
	"regexp"
	"strings"

	apperrors "rag-server/errors"
)

const (
	MaxContentLength  = 10_000_000
	MaxTitleLength    = 500
	MaxMetadataValue  = 1000
	MaxUserIDLength   = 255
	MinChunkSize      = 50
	MaxChunkSize      = 10_000
)

var userIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateURL normalizes and validates a URL. Scheme-less input gets
// https:// prepended; only http and https are accepted.
func ValidateURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", apperrors.WrapError(apperrors.ErrInvalidInput, "url is empty")
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", apperrors.WrapErrorf(apperrors.ErrInvalidInput, "malformed url %q", raw)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", apperrors.WrapErrorf(apperrors.ErrInvalidInput, "unsupported url scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", apperrors.WrapErrorf(apperrors.ErrInvalidInput, "url %q has no host", raw)
	}
	return parsed.String(), nil
}

// ValidateContentLength bounds document content size.
func ValidateContentLength(content string, max int) error {
	if max <= 0 {
		max = MaxContentLength
	}
	if len(content) > max {
		return apperrors.WrapErrorf(apperrors.ErrInvalidInput,
			"content length %d exceeds maximum %d", len(content), max)
	}
	return nil
}

// ValidateChunkParams checks chunk size and overlap bounds.
func ValidateChunkParams(size, overlap int) error {
	if size < MinChunkSize || size > MaxChunkSize {
		return apperrors.WrapErrorf(apperrors.ErrInvalidInput,
			"chunk size %d out of range [%d, %d]", size, MinChunkSize, MaxChunkSize)
	}
	if overlap < 0 || overlap >= size {
		return apperrors.WrapErrorf(apperrors.ErrInvalidInput,
			"chunk overlap %d must be in [0, %d)", overlap, size)
	}
	return nil
}

// ValidateDocumentTitle trims and bounds a title. Oversized titles are cut
// at the last whitespace before the limit with an ellipsis appended. An
// empty title is not an error; callers substitute their default.
func ValidateDocumentTitle(title string, max int) (string, error) {
	if max <= 0 {
		max = MaxTitleLength
	}
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return "", nil
	}
	if len(trimmed) <= max {
		return trimmed, nil
	}

	cut := trimmed[:max]
	if idx := strings.LastIndexAny(cut, " \t\n"); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimSpace(cut) + "...", nil
}

// SanitizeMetadata drops empty keys and bounds each value length.
func SanitizeMetadata(metadata map[string]string) map[string]string {
	sanitized := make(map[string]string, len(metadata))
	for key, value := range metadata {
		if strings.TrimSpace(key) == "" {
			continue
		}
		if len(value) > MaxMetadataValue {
			value = value[:MaxMetadataValue]
		}
		sanitized[key] = value
	}
	return sanitized
}

// ValidateUserID enforces the allowed identifier alphabet and length.
func ValidateUserID(userID string) error {
	if userID == "" {
		return apperrors.WrapError(apperrors.ErrInvalidInput, "user id is empty")
	}
	if len(userID) > MaxUserIDLength {
		return apperrors.WrapErrorf(apperrors.ErrInvalidInput,
			"user id length %d exceeds maximum %d", len(userID), MaxUserIDLength)
	}
	if !userIDPattern.MatchString(userID) {
		return apperrors.WrapErrorf(apperrors.ErrInvalidInput,
			"user id %q contains invalid characters", userID)
	}
	return nil
}
