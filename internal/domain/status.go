package domain

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
)

// ErrIllegalTransition is returned when an invoice is asked to move along an
// edge the lifecycle does not allow.
var ErrIllegalTransition = errors.New("illegal status transition")

// Status is the lifecycle state of an invoice. The zero value is invalid.
type Status uint8

const (
	StatusCreated Status = iota + 1
	StatusScanned
	StatusSuccess
	StatusRejected
	StatusExpired
)

// String returns the wire and storage form, e.g. "CREATED".
func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "CREATED"
	case StatusScanned:
		return "SCANNED"
	case StatusSuccess:
		return "SUCCESS"
	case StatusRejected:
		return "REJECTED"
	case StatusExpired:
		return "EXPIRED"
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

// ParseStatus is the inverse of String. Matching is case-insensitive.
func ParseStatus(v string) (Status, error) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "CREATED":
		return StatusCreated, nil
	case "SCANNED":
		return StatusScanned, nil
	case "SUCCESS":
		return StatusSuccess, nil
	case "REJECTED":
		return StatusRejected, nil
	case "EXPIRED":
		return StatusExpired, nil
	}
	return 0, fmt.Errorf("unknown invoice status %q", v)
}

// Terminal reports whether no further transition can leave s.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusRejected, StatusExpired:
		return true
	case StatusCreated, StatusScanned:
		return false
	}
	return true
}

// CanTransition reports whether s -> to is a legal lifecycle edge:
//
//	CREATED -> SCANNED | EXPIRED
//	SCANNED -> SUCCESS | REJECTED | EXPIRED
func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusCreated:
		return to == StatusScanned || to == StatusExpired
	case StatusScanned:
		return to == StatusSuccess || to == StatusRejected || to == StatusExpired
	case StatusSuccess, StatusRejected, StatusExpired:
		return false
	}
	return false
}

// Transition returns to when the edge is legal and ErrIllegalTransition
// otherwise.
func (s Status) Transition(to Status) (Status, error) {
	if !s.CanTransition(to) {
		return s, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, s, to)
	}
	return to, nil
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Value implements driver.Valuer; statuses are stored as text.
func (s Status) Value() (driver.Value, error) {
	if _, err := ParseStatus(s.String()); err != nil {
		return nil, err
	}
	return s.String(), nil
}

// Scan implements sql.Scanner.
func (s *Status) Scan(src any) error {
	return scanText(src, s.UnmarshalText)
}

// Policy selects what happens after a successful scan.
type Policy uint8

const (
	// PolicySafe leaves the invoice SCANNED until an external confirmation.
	PolicySafe Policy = iota + 1
	// PolicyFast promotes SCANNED to SUCCESS in the same unit of work.
	PolicyFast
)

func (p Policy) String() string {
	switch p {
	case PolicySafe:
		return "SAFE"
	case PolicyFast:
		return "FAST"
	}
	return fmt.Sprintf("Policy(%d)", uint8(p))
}

// ParsePolicy accepts "SAFE" or "FAST" in any case.
func ParsePolicy(v string) (Policy, error) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "SAFE":
		return PolicySafe, nil
	case "FAST":
		return PolicyFast, nil
	}
	return 0, fmt.Errorf("unknown policy %q", v)
}

func (p Policy) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Policy) UnmarshalText(b []byte) error {
	v, err := ParsePolicy(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

func (p Policy) Value() (driver.Value, error) {
	if _, err := ParsePolicy(p.String()); err != nil {
		return nil, err
	}
	return p.String(), nil
}

func (p *Policy) Scan(src any) error {
	return scanText(src, p.UnmarshalText)
}

func scanText(src any, set func([]byte) error) error {
	switch v := src.(type) {
	case string:
		return set([]byte(v))
	case []byte:
		return set(v)
	case nil:
		return errors.New("cannot scan NULL into enum")
	}
	return fmt.Errorf("cannot scan %T into enum", src)
}
