package handlers

import (
	"net/http"

	apperrors "rag-server/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// statusForCategory maps the service error taxonomy onto HTTP codes.
var statusForCategory = map[string]int{
	apperrors.CategoryNotFound:          http.StatusNotFound,
	apperrors.CategoryPermissionDenied:  http.StatusForbidden,
	apperrors.CategoryInvalidArgument:   http.StatusBadRequest,
	apperrors.CategoryDeadlineExceeded:  http.StatusGatewayTimeout,
	apperrors.CategoryResourceExhausted: http.StatusTooManyRequests,
	apperrors.CategoryAlreadyExists:     http.StatusConflict,
	apperrors.CategoryUnavailable:       http.StatusServiceUnavailable,
	apperrors.CategoryDataLoss:          http.StatusBadRequest,
	apperrors.CategoryInternal:          http.StatusInternalServerError,
}

// respondError translates a service error into its HTTP shape. Internal
// errors are logged with detail but surfaced generically.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	category := apperrors.Category(err)
	status, ok := statusForCategory[category]
	if !ok {
		status = http.StatusInternalServerError
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		message = "internal error"
	}

	c.JSON(status, gin.H{
		"error": message,
		"code":  category,
	})
}
