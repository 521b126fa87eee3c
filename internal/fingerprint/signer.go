// Package fingerprint derives and signs the per-invoice fingerprint that is
// embedded in tag 62 of a QR payload and later presented by scan callbacks.
//
// A fingerprint is base64url(invoice|merchant|amount|timestamp|nonce) without
// padding; its signature is the lowercase hex HMAC-SHA256 of that text keyed
// by a process-wide secret.
package fingerprint

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"
)

// Algorithm identifies the signing scheme in tag 62 sub-tag 05.
const Algorithm = "HMAC-SHA256"

// NonceBytes is the amount of entropy drawn per nonce.
const NonceBytes = 8

const delimiter = "|"

// ErrEmptySecret is returned by NewSigner when no key is supplied.
var ErrEmptySecret = errors.New("fingerprint: hmac secret must not be empty")

// Signed holds the values persisted as a fingerprint record and embedded in
// the payload.
type Signed struct {
	FingerprintB64 string
	SignatureHex   string
	Timestamp      int64
	Nonce          string
}

// Signer signs fingerprints with a fixed secret. It is safe for concurrent
// use; Now and Rand exist as test seams.
type Signer struct {
	secret []byte
	Now    func() time.Time
	Rand   io.Reader
}

// NewSigner returns a Signer keyed by secret.
func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &Signer{
		secret: []byte(secret),
		Now:    time.Now,
		Rand:   rand.Reader,
	}, nil
}

// Sign builds a fresh fingerprint for the invoice and signs it.
func (s *Signer) Sign(invoiceID, merchantID string, amount int64) (Signed, error) {
	ts := s.Now().Unix()
	nonce, err := s.nonce()
	if err != nil {
		return Signed{}, err
	}
	raw := strings.Join([]string{
		invoiceID,
		merchantID,
		strconv.FormatInt(amount, 10),
		strconv.FormatInt(ts, 10),
		nonce,
	}, delimiter)
	fp := base64.RawURLEncoding.EncodeToString([]byte(raw))

	return Signed{
		FingerprintB64: fp,
		SignatureHex:   s.Signature(fp),
		Timestamp:      ts,
		Nonce:          nonce,
	}, nil
}

// Signature returns the hex HMAC-SHA256 of fingerprintB64.
func (s *Signer) Signature(fingerprintB64 string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(fingerprintB64))
	return hex.EncodeToString(mac.Sum(nil))
}

// Equal compares two signatures in constant time.
func Equal(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}

func (s *Signer) nonce() (string, error) {
	buf := make([]byte, NonceBytes)
	if _, err := io.ReadFull(s.Rand, buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
