package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

var allStatuses = []Status{StatusCreated, StatusScanned, StatusSuccess, StatusRejected, StatusExpired}

func TestStatus_CanTransition(t *testing.T) {
	legal := map[[2]Status]bool{
		{StatusCreated, StatusScanned}:  true,
		{StatusCreated, StatusExpired}:  true,
		{StatusScanned, StatusSuccess}:  true,
		{StatusScanned, StatusRejected}: true,
		{StatusScanned, StatusExpired}:  true,
	}
	for _, from := range allStatuses {
		for _, to := range allStatuses {
			want := legal[[2]Status{from, to}]
			if got := from.CanTransition(to); got != want {
				t.Fatalf("%s -> %s: CanTransition = %v; want %v", from, to, got, want)
			}
		}
	}
	if Status(0).CanTransition(StatusScanned) {
		t.Fatalf("zero status must not transition")
	}
}

func TestStatus_Transition(t *testing.T) {
	got, err := StatusCreated.Transition(StatusScanned)
	if err != nil || got != StatusScanned {
		t.Fatalf("CREATED->SCANNED = %s, %v", got, err)
	}
	got, err = StatusSuccess.Transition(StatusScanned)
	if !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition, got %v", err)
	}
	if got != StatusSuccess {
		t.Fatalf("failed transition should keep current status, got %s", got)
	}
}

func TestStatus_ParseRoundTrip(t *testing.T) {
	for _, s := range allStatuses {
		back, err := ParseStatus(s.String())
		if err != nil || back != s {
			t.Fatalf("ParseStatus(%q) = %v, %v", s.String(), back, err)
		}
	}
	if got, err := ParseStatus(" scanned "); err != nil || got != StatusScanned {
		t.Fatalf("case/space-insensitive parse failed: %v, %v", got, err)
	}
	if _, err := ParseStatus("PAID"); err == nil {
		t.Fatalf("expected error for unknown status")
	}
}

func TestStatus_Terminal(t *testing.T) {
	for _, s := range allStatuses {
		want := s == StatusSuccess || s == StatusRejected || s == StatusExpired
		if s.Terminal() != want {
			t.Fatalf("%s.Terminal() = %v", s, s.Terminal())
		}
	}
}

func TestStatus_JSON(t *testing.T) {
	b, err := json.Marshal(struct {
		S Status `json:"s"`
	}{StatusExpired})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"s":"EXPIRED"}` {
		t.Fatalf("json = %s", b)
	}
	var v struct {
		S Status `json:"s"`
	}
	if err := json.Unmarshal([]byte(`{"s":"success"}`), &v); err != nil || v.S != StatusSuccess {
		t.Fatalf("unmarshal = %v, %v", v.S, err)
	}
}

func TestStatus_ValueScan(t *testing.T) {
	v, err := StatusScanned.Value()
	if err != nil || v != "SCANNED" {
		t.Fatalf("Value = %v, %v", v, err)
	}
	if _, err := Status(0).Value(); err == nil {
		t.Fatalf("zero status must not be stored")
	}

	var s Status
	if err := s.Scan([]byte("REJECTED")); err != nil || s != StatusRejected {
		t.Fatalf("Scan([]byte) = %v, %v", s, err)
	}
	if err := s.Scan(nil); err == nil {
		t.Fatalf("expected error scanning NULL")
	}
	if err := s.Scan(42); err == nil {
		t.Fatalf("expected error scanning int")
	}
}

func TestPolicy(t *testing.T) {
	for _, in := range []string{"SAFE", "safe", " Safe "} {
		if p, err := ParsePolicy(in); err != nil || p != PolicySafe {
			t.Fatalf("ParsePolicy(%q) = %v, %v", in, p, err)
		}
	}
	if p, err := ParsePolicy("FAST"); err != nil || p != PolicyFast {
		t.Fatalf("ParsePolicy(FAST) = %v, %v", p, err)
	}
	if _, err := ParsePolicy("SLOW"); err == nil {
		t.Fatalf("expected error for unknown policy")
	}

	var p Policy
	if err := p.Scan("FAST"); err != nil || p != PolicyFast {
		t.Fatalf("Scan = %v, %v", p, err)
	}
	v, err := PolicySafe.Value()
	if err != nil || v != "SAFE" {
		t.Fatalf("Value = %v, %v", v, err)
	}
	if Policy(9).String() != "Policy(9)" {
		t.Fatalf("unexpected String for unknown policy: %s", Policy(9))
	}
}
