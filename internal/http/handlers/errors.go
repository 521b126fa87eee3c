package handlers

import (
	"net/http"

	"github.com/tbourn/qriscuy/internal/services"
)

// Wire error codes. The lower-case codes follow HTTP semantics; the ERR_*
// codes describe scan and payload outcomes, and wallets branch on them to
// tell a forged or stale QR from a retry-safe condition.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"

	ErrCodeBadPayload         = "ERR_BAD_PAYLOAD"
	ErrCodeSignatureInvalid   = "ERR_SIG_INVALID"
	ErrCodeFingerprintExpired = "ERR_FP_EXPIRED"
	ErrCodeReplay             = "ERR_REPLAY"
)

type wireError struct {
	status int
	code   string
}

var kindToWire = map[services.Kind]wireError{
	services.KindBadPayload:         {http.StatusBadRequest, ErrCodeBadPayload},
	services.KindInvalidSignature:   {http.StatusUnauthorized, ErrCodeSignatureInvalid},
	services.KindFingerprintExpired: {http.StatusGone, ErrCodeFingerprintExpired},
	services.KindReplay:             {http.StatusConflict, ErrCodeReplay},
	services.KindNotFound:           {http.StatusNotFound, ErrCodeNotFound},
	services.KindIllegalTransition:  {http.StatusConflict, ErrCodeConflict},
	services.KindValidation:         {http.StatusBadRequest, ErrCodeBadRequest},
}

// statusFor maps a service error kind to its HTTP status and wire code;
// unknown kinds are internal errors.
func statusFor(kind services.Kind) (int, string) {
	if w, ok := kindToWire[kind]; ok {
		return w.status, w.code
	}
	return http.StatusInternalServerError, ErrCodeInternal
}
