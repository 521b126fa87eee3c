package emv

import (
	"errors"
	"fmt"
	"strconv"
)

const (
	// TagAdditionalData carries the fingerprint sub-record.
	TagAdditionalData = "62"
	// TagCRC carries the payload checksum and is always the last item.
	TagCRC = "63"

	// crcHeader is the tag 63 header with its fixed length; the checksum
	// covers these four characters but not its own value.
	crcHeader = TagCRC + "04"
)

// Sub-tags inside tag 62.
const (
	subTagFingerprint = "01"
	subTagSignature   = "02"
	subTagTimestamp   = "03"
	subTagNonce       = "04"
	subTagAlgorithm   = "05"
)

// ErrChecksumMismatch is returned by VerifyChecksum when tag 63 does not
// match the recomputed checksum.
var ErrChecksumMismatch = errors.New("payload checksum mismatch")

// ErrTag62Overflow is returned by InjectFingerprint when the fingerprint
// sub-record does not fit the two-digit length of tag 62 or of one of its
// sub-tags. The merchant payload is not at fault.
var ErrTag62Overflow = errors.New("fingerprint does not fit in tag 62")

// Tag62 is the signed fingerprint embedded in the additional data field.
type Tag62 struct {
	FingerprintB64 string `json:"fingerprint_b64"`
	SignatureHex   string `json:"signature_hex"`
	Timestamp      int64  `json:"timestamp"`
	Nonce          string `json:"nonce"`
	Algorithm      string `json:"algorithm,omitempty"`
}

func (t Tag62) items() []Item {
	items := []Item{
		{Tag: subTagFingerprint, Value: t.FingerprintB64},
		{Tag: subTagSignature, Value: t.SignatureHex},
		{Tag: subTagTimestamp, Value: strconv.FormatInt(t.Timestamp, 10)},
		{Tag: subTagNonce, Value: t.Nonce},
	}
	if t.Algorithm != "" {
		items = append(items, Item{Tag: subTagAlgorithm, Value: t.Algorithm})
	}
	return items
}

// Encoded is a finalized payload and the checksum stored in its tag 63.
type Encoded struct {
	Payload string `json:"payload"`
	CRC     string `json:"crc"`
}

// StripChecksum removes every tag 63 item from payload. It is idempotent.
func StripChecksum(payload string) (string, error) {
	items, err := Parse(payload)
	if err != nil {
		return "", err
	}
	return Build(without(items, TagCRC))
}

// InjectFingerprint replaces any existing tag 62 of base with fp, appends it
// after the remaining items and seals the result with a fresh tag 63.
func InjectFingerprint(base string, fp Tag62) (Encoded, error) {
	stripped, err := StripChecksum(base)
	if err != nil {
		return Encoded{}, err
	}
	items, err := Parse(stripped)
	if err != nil {
		return Encoded{}, err
	}
	items = without(items, TagAdditionalData)

	sub, err := Build(fp.items())
	if err != nil {
		return Encoded{}, fmt.Errorf("%w: %w", ErrTag62Overflow, err)
	}
	if n := len(sub); n > MaxValueLen {
		return Encoded{}, fmt.Errorf("%w: %w: tag 62 value length %d exceeds %d", ErrTag62Overflow, ErrEncoding, n, MaxValueLen)
	}
	items = append(items, Item{Tag: TagAdditionalData, Value: sub})

	body, err := Build(items)
	if err != nil {
		return Encoded{}, err
	}
	crc := Checksum(body + crcHeader)
	return Encoded{Payload: body + crcHeader + crc, CRC: crc}, nil
}

// VerifyChecksum checks that payload ends with a tag 63 item whose value is
// the checksum of everything before it.
func VerifyChecksum(payload string) error {
	items, err := Parse(payload)
	if err != nil {
		return err
	}
	if len(items) == 0 || items[len(items)-1].Tag != TagCRC {
		return fmt.Errorf("%w: tag 63 missing or not last", ErrChecksumMismatch)
	}
	got := items[len(items)-1].Value
	if len(got) != 4 {
		return fmt.Errorf("%w: tag 63 must hold 4 hex digits", ErrChecksumMismatch)
	}
	want := Checksum(payload[:len(payload)-len(got)])
	if got != want {
		return fmt.Errorf("%w: got %s, want %s", ErrChecksumMismatch, got, want)
	}
	return nil
}

// ExtractFingerprint reads the tag 62 sub-record back out of payload.
func ExtractFingerprint(payload string) (Tag62, error) {
	items, err := Parse(payload)
	if err != nil {
		return Tag62{}, err
	}
	add, ok := Find(items, TagAdditionalData)
	if !ok {
		return Tag62{}, fmt.Errorf("%w: tag 62 not present", ErrDecoding)
	}
	subs, err := Parse(add.Value)
	if err != nil {
		return Tag62{}, fmt.Errorf("tag 62: %w", err)
	}

	var fp Tag62
	for _, it := range subs {
		switch it.Tag {
		case subTagFingerprint:
			fp.FingerprintB64 = it.Value
		case subTagSignature:
			fp.SignatureHex = it.Value
		case subTagTimestamp:
			ts, err := strconv.ParseInt(it.Value, 10, 64)
			if err != nil {
				return Tag62{}, fmt.Errorf("%w: tag 62 timestamp %q", ErrDecoding, it.Value)
			}
			fp.Timestamp = ts
		case subTagNonce:
			fp.Nonce = it.Value
		case subTagAlgorithm:
			fp.Algorithm = it.Value
		}
	}
	if fp.FingerprintB64 == "" || fp.SignatureHex == "" {
		return Tag62{}, fmt.Errorf("%w: tag 62 lacks fingerprint or signature", ErrDecoding)
	}
	return fp, nil
}
