// Package services defines the business logic for invoice generation, scan
// verification and the invoice lifecycle. This file centralizes the typed
// service error so that every failure carries a Kind the transport can map
// to a status code without string matching.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import (
	"errors"
	"fmt"
)

// Kind classifies a service failure.
type Kind uint8

const (
	// KindBadPayload: unknown fingerprint, nonce or timestamp mismatch, or a
	// malformed merchant payload.
	KindBadPayload Kind = iota + 1
	// KindInvalidSignature: claimed or stored signature does not match the
	// recomputed one. Logged as a security event.
	KindInvalidSignature
	// KindFingerprintExpired: the fingerprint outlived its TTL.
	KindFingerprintExpired
	// KindReplay: the invoice already left CREATED.
	KindReplay
	// KindNotFound: the addressed invoice does not exist.
	KindNotFound
	// KindIllegalTransition: the requested status change is not a legal edge.
	KindIllegalTransition
	// KindValidation: request fields failed validation.
	KindValidation
)

// Code returns the stable error code used on the wire.
func (k Kind) Code() string {
	switch k {
	case KindBadPayload:
		return "ERR_BAD_PAYLOAD"
	case KindInvalidSignature:
		return "ERR_SIG_INVALID"
	case KindFingerprintExpired:
		return "ERR_FP_EXPIRED"
	case KindReplay:
		return "ERR_REPLAY"
	case KindNotFound:
		return "not_found"
	case KindIllegalTransition:
		return "conflict"
	case KindValidation:
		return "bad_request"
	}
	return "internal_error"
}

func (k Kind) String() string { return k.Code() }

// Error is the typed failure returned by service methods.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind.Code(), e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind.Code(), e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same Kind, which lets the sentinels below
// be used with errors.Is regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind && t.Message == ""
	}
	return false
}

func newError(kind Kind, msg string) *Error { return &Error{Kind: kind, Message: msg} }

func wrapError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// Sentinels for errors.Is; they carry no message so they match any error of
// their kind.
var (
	ErrBadPayload         = &Error{Kind: KindBadPayload}
	ErrInvalidSignature   = &Error{Kind: KindInvalidSignature}
	ErrFingerprintExpired = &Error{Kind: KindFingerprintExpired}
	ErrReplay             = &Error{Kind: KindReplay}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrIllegalTransition  = &Error{Kind: KindIllegalTransition}
	ErrValidation         = &Error{Kind: KindValidation}
)

// KindOf extracts the Kind from err, or 0 when err is not a service error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
