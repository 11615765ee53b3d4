package rest

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/accountancy/internal/domain"
)

// ApiError описывает тело ответа при ошибке.
type ApiError struct {
	Code    int       `json:"code"`
	Status  string    `json:"status"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

func newAPIError(code int, message string) ApiError {
	return ApiError{
		Code:    code,
		Status:  http.StatusText(code),
		Message: message,
		Time:    time.Now().UTC(),
	}
}

// statusFor сопоставляет доменную ошибку HTTP-статусу.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidProducts):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvoiceNotFound),
		errors.Is(err, domain.ErrPriceItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInvoiceStatus),
		errors.Is(err, domain.ErrInvoiceNotPaid),
		errors.Is(err, domain.ErrOrderAlreadyConfirmed),
		errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrPriceItemExists),
		errors.Is(err, domain.ErrInvoiceVersionConflict):
		return http.StatusConflict
	case domain.IsTemporary(err):
		return http.StatusGatewayTimeout
	case domain.IsUpstream(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError выдаёт все ошибки API: 5xx логируются как error, остальное как debug.
// Текст внутренних ошибок клиенту не отдаётся.
func writeError(c *gin.Context, logger *log.Entry, err error) {
	code := statusFor(err)
	entry := logger.WithError(err).WithFields(log.Fields{
		"method": c.Request.Method,
		"path":   c.FullPath(),
		"status": code,
	})

	message := err.Error()
	if code == http.StatusInternalServerError {
		entry.Error("request failed")
		message = "internal server error"
	} else if code >= http.StatusInternalServerError {
		entry.Warn("upstream failure")
	} else {
		entry.Debug("request rejected")
	}

	c.AbortWithStatusJSON(code, newAPIError(code, message))
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, newAPIError(http.StatusBadRequest, message))
}
