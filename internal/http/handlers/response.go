// Package handlers provides the HTTP handlers for the public API. Every error
// leaves through fail or failErr as an ErrorResponse, for example:
//
//	HTTP/1.1 410 Gone
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "ERR_FP_EXPIRED",
//	  "message": "fingerprint expired"
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/qriscuy/internal/emv"
	"github.com/tbourn/qriscuy/internal/http/middleware"
	"github.com/tbourn/qriscuy/internal/observability"
	"github.com/tbourn/qriscuy/internal/services"
)

// ErrorResponse is the error envelope of every endpoint. Code is one of the
// ErrCode constants.
type ErrorResponse struct {
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	Code      string `json:"code" example:"ERR_REPLAY"`
	Message   string `json:"message" example:"invoice already scanned"`
}

// fail aborts with the error envelope; 5xx responses are also logged.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: middleware.RequestIDFrom(c),
		Code:      code,
		Message:   msg,
	})
}

// Fail is the exported variant of fail() for the router's fallback handlers.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// failErr writes the envelope for err. Codec errors that escape a service
// untyped are reported as bad payloads, except a tag 62 overflow, which the
// server causes on its own. Anything else is a 500 whose detail stays in the
// log.
func failErr(c *gin.Context, err error) {
	kind := services.KindOf(err)
	if kind == 0 && isPayloadError(err) {
		kind = services.KindBadPayload
	}
	status, code := statusFor(kind)

	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	observability.ServiceErrors.WithLabelValues(code, route).Inc()

	msg := "internal server error"
	var se *services.Error
	switch {
	case errors.As(err, &se) && se.Message != "":
		msg = se.Message
	case kind != 0:
		msg = err.Error()
	}
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().Err(err).Msg("unhandled service error")
	}
	fail(c, status, code, msg)
}

func isPayloadError(err error) bool {
	if errors.Is(err, emv.ErrTag62Overflow) {
		return false
	}
	return errors.Is(err, emv.ErrDecoding) || errors.Is(err, emv.ErrEncoding) || errors.Is(err, emv.ErrChecksumMismatch)
}

// ok writes a success JSON response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}
