package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/qriscuy/internal/fingerprint"
)

type shortSigner struct{}

func (shortSigner) Sign(_, _ string, _ int64) (fingerprint.Signed, error) {
	return fingerprint.Signed{FingerprintB64: "fp1", SignatureHex: "sig-fp1", Timestamp: 1_700_000_000, Nonce: "nA"}, nil
}

func TestReportTag62Capacity(t *testing.T) {
	signer, err := fingerprint.NewSigner("test-secret")
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	signer.Now = func() time.Time { return time.Unix(1_700_000_000, 0) }

	var buf bytes.Buffer
	if reportTag62Capacity(zerolog.New(&buf), signer) {
		t.Fatalf("HMAC-SHA256 fingerprint reported as fitting tag 62")
	}
	if out := buf.String(); !strings.Contains(out, `"level":"error"`) || !strings.Contains(out, "tag 62") {
		t.Fatalf("expected an error log naming tag 62, got %q", out)
	}

	buf.Reset()
	if !reportTag62Capacity(zerolog.New(&buf), shortSigner{}) {
		t.Fatalf("short fingerprint reported as overflowing")
	}
	if buf.Len() != 0 {
		t.Fatalf("nothing should be logged when the fingerprint fits, got %q", buf.String())
	}
}
