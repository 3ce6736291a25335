package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"group-chat/internal/domain"
)

// statusFor traduce la taxonomía de dominio a códigos HTTP.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidationFailed), errors.Is(err, domain.ErrInvalidCursor):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyDeleted), errors.Is(err, domain.ErrMessageDeleted):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrBrokerUnavailable), errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError escribe {error, kind}. Los 5xx salen con un texto fijo por tipo
// y el detalle queda en el log.
func respondError(c *gin.Context, logger *zap.Logger, op string, err error) {
	status := statusFor(err)
	msg := domain.PublicMessage(err)
	if status >= http.StatusInternalServerError {
		logger.Error(op+" failed", zap.Error(err), zap.Int("status", status))
	} else {
		logger.Debug(op+" rejected", zap.Error(err), zap.Int("status", status))
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg, "kind": domain.ErrorKind(err)})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg, "kind": domain.ErrorKind(domain.ErrValidationFailed)})
}

func validationErr(msg string) error {
	return fmt.Errorf("%w: %s", domain.ErrValidationFailed, msg)
}
