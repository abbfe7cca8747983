package handlers

import (
	"errors"
	"net/http"

	"wellnest/services/booking"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// statusClientClosedRequest is written when the caller went away first.
const statusClientClosedRequest = 499

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch booking.KindOf(err) {
	case booking.KindValidation:
		return http.StatusBadRequest
	case booking.KindConcurrency:
		return http.StatusConflict
	case booking.KindPermission:
		return http.StatusForbidden
	case booking.KindNotFound:
		return http.StatusNotFound
	case booking.KindTransient:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// respondError writes err in the shared error shape. Conflicts are encoded
// without the other booking's id.
func respondError(c *gin.Context, err error) {
	if booking.IsAborted(err) {
		c.AbortWithStatus(statusClientClosedRequest)
		return
	}

	status := statusFor(err)
	logger := getLogger(c)
	if status >= http.StatusInternalServerError {
		logger.Error("Booking request failed", zap.Int("status", status), zap.Error(err))
	} else {
		logger.Debug("Booking request refused", zap.Int("status", status), zap.Error(err))
	}

	var be *booking.BookingError
	if !errors.As(err, &be) {
		c.JSON(status, gin.H{"error": "Internal server error"})
		return
	}

	body := gin.H{"error": be.Message, "code": be.Code}
	if len(be.Conflicts) > 0 {
		body["conflicts"] = be.Conflicts
	}
	if be.Current != nil {
		body["booking"] = be.Current
	}
	c.JSON(status, body)
}
