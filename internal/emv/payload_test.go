package emv

import (
	"errors"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

const basePayload = "000201" + "010211" + "26140010ID.CO.QRIS" + "5303360" + "5802ID" + "5904Toko" + "6007Jakarta"

func sampleTag62() Tag62 {
	return Tag62{
		FingerprintB64: "ZnAtc2FtcGxl",
		SignatureHex:   "deadbeef",
		Timestamp:      1700000000,
		Nonce:          "bm9uY2U",
		Algorithm:      "HMAC-SHA256",
	}
}

func TestStripChecksum(t *testing.T) {
	withCRC := basePayload + "6304ABCD"
	got, err := StripChecksum(withCRC)
	if err != nil {
		t.Fatalf("StripChecksum: %v", err)
	}
	if got != basePayload {
		t.Fatalf("StripChecksum = %q; want %q", got, basePayload)
	}

	again, err := StripChecksum(got)
	if err != nil || again != got {
		t.Fatalf("second strip = %q, %v", again, err)
	}
}

func TestStripChecksum_Malformed(t *testing.T) {
	if _, err := StripChecksum("0002010"); !errors.Is(err, ErrDecoding) {
		t.Fatalf("expected ErrDecoding, got %v", err)
	}
}

func TestStripChecksum_Idempotent_Property(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("strip(strip(p)) == strip(p)", prop.ForAll(
		func(values []string, crc string) bool {
			items := itemsFrom(values)
			if len(crc) > MaxValueLen {
				crc = crc[:MaxValueLen]
			}
			items = append(items, Item{Tag: TagCRC, Value: crc})
			p, err := Build(items)
			if err != nil {
				return false
			}
			once, err := StripChecksum(p)
			if err != nil {
				return false
			}
			twice, err := StripChecksum(once)
			if err != nil {
				return false
			}
			return once == twice
		},
		gen.SliceOf(gen.NumString()),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func TestInjectFingerprint(t *testing.T) {
	fp := sampleTag62()
	enc, err := InjectFingerprint(basePayload, fp)
	if err != nil {
		t.Fatalf("InjectFingerprint: %v", err)
	}

	if !strings.HasSuffix(enc.Payload, crcHeader+enc.CRC) {
		t.Fatalf("payload %q does not end with 6304%s", enc.Payload, enc.CRC)
	}
	body := strings.TrimSuffix(enc.Payload, crcHeader+enc.CRC)
	if want := Checksum(body + crcHeader); enc.CRC != want {
		t.Fatalf("CRC = %s; want %s", enc.CRC, want)
	}
	if !strings.HasPrefix(enc.Payload, basePayload) {
		t.Fatalf("base items should precede tag 62: %q", enc.Payload)
	}
	if err := VerifyChecksum(enc.Payload); err != nil {
		t.Fatalf("VerifyChecksum: %v", err)
	}

	got, err := ExtractFingerprint(enc.Payload)
	if err != nil {
		t.Fatalf("ExtractFingerprint: %v", err)
	}
	if got != fp {
		t.Fatalf("ExtractFingerprint = %+v; want %+v", got, fp)
	}
}

func TestInjectFingerprint_ReplacesExistingTags(t *testing.T) {
	first, err := InjectFingerprint(basePayload, sampleTag62())
	if err != nil {
		t.Fatalf("first inject: %v", err)
	}

	fp := sampleTag62()
	fp.Nonce = "b3RoZXI"
	fp.Algorithm = ""
	second, err := InjectFingerprint(first.Payload, fp)
	if err != nil {
		t.Fatalf("second inject: %v", err)
	}

	items, err := Parse(second.Payload)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	var n62, n63 int
	for _, it := range items {
		switch it.Tag {
		case TagAdditionalData:
			n62++
		case TagCRC:
			n63++
		}
	}
	if n62 != 1 || n63 != 1 {
		t.Fatalf("tag 62 count=%d tag 63 count=%d; want 1 and 1", n62, n63)
	}
	if items[len(items)-1].Tag != TagCRC || items[len(items)-2].Tag != TagAdditionalData {
		t.Fatalf("expected ... 62, 63 ordering, got %+v", items)
	}

	got, err := ExtractFingerprint(second.Payload)
	if err != nil {
		t.Fatalf("ExtractFingerprint: %v", err)
	}
	if got.Nonce != "b3RoZXI" || got.Algorithm != "" {
		t.Fatalf("unexpected fingerprint %+v", got)
	}
}

func TestInjectFingerprint_Oversized(t *testing.T) {
	cases := []struct {
		name string
		edit func(*Tag62)
	}{
		// 4+40 + 4+64 already exceeds the tag 62 capacity.
		{"tag 62", func(fp *Tag62) {
			fp.SignatureHex = strings.Repeat("a", 64)
			fp.FingerprintB64 = strings.Repeat("b", 40)
		}},
		{"sub-tag 01", func(fp *Tag62) { fp.FingerprintB64 = strings.Repeat("b", 100) }},
	}
	for _, tc := range cases {
		fp := sampleTag62()
		tc.edit(&fp)
		_, err := InjectFingerprint(basePayload, fp)
		if !errors.Is(err, ErrTag62Overflow) || !errors.Is(err, ErrEncoding) {
			t.Fatalf("%s: expected ErrTag62Overflow wrapping ErrEncoding, got %v", tc.name, err)
		}
		if errors.Is(err, ErrDecoding) {
			t.Fatalf("%s: overflow must not read as a malformed payload: %v", tc.name, err)
		}
	}
}

func TestInjectFingerprint_MalformedBase(t *testing.T) {
	_, err := InjectFingerprint("00020", sampleTag62())
	if !errors.Is(err, ErrDecoding) || errors.Is(err, ErrTag62Overflow) {
		t.Fatalf("expected ErrDecoding only, got %v", err)
	}
}

func TestVerifyChecksum_Failures(t *testing.T) {
	enc, err := InjectFingerprint(basePayload, sampleTag62())
	if err != nil {
		t.Fatalf("InjectFingerprint: %v", err)
	}

	tampered := strings.Replace(enc.Payload, "Toko", "Tok0", 1)
	if err := VerifyChecksum(tampered); !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("tampered: expected ErrChecksumMismatch, got %v", err)
	}
	if err := VerifyChecksum(basePayload); !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("missing 63: expected ErrChecksumMismatch, got %v", err)
	}
	if err := VerifyChecksum(basePayload + "6302AB"); !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("short 63: expected ErrChecksumMismatch, got %v", err)
	}
	if err := VerifyChecksum("6304"); !errors.Is(err, ErrDecoding) {
		t.Fatalf("truncated: expected ErrDecoding, got %v", err)
	}
}

func TestExtractFingerprint_Missing(t *testing.T) {
	if _, err := ExtractFingerprint(basePayload); !errors.Is(err, ErrDecoding) {
		t.Fatalf("expected ErrDecoding, got %v", err)
	}
	bad := basePayload + "6206" + "0302xy"
	if _, err := ExtractFingerprint(bad); !errors.Is(err, ErrDecoding) {
		t.Fatalf("expected ErrDecoding for bad timestamp, got %v", err)
	}
}
