package render

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image/png"
	"testing"
)

func TestPNG_DecodesWithRequestedSize(t *testing.T) {
	b, err := PNG("00020101021153033605802ID6304ABCD", 256)
	if err != nil {
		t.Fatalf("PNG: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("png.Decode: %v", err)
	}
	if w := img.Bounds().Dx(); w != 256 {
		t.Fatalf("width = %d; want 256", w)
	}
}

func TestPNGBase64(t *testing.T) {
	s, err := PNGBase64("hello", 128)
	if err != nil {
		t.Fatalf("PNGBase64: %v", err)
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		t.Fatalf("not base64: %v", err)
	}
	if !bytes.HasPrefix(raw, []byte("\x89PNG")) {
		t.Fatalf("missing PNG signature")
	}
}

func TestPNG_Empty(t *testing.T) {
	if _, err := PNG("", 128); !errors.Is(err, ErrEmptyPayload) {
		t.Fatalf("expected ErrEmptyPayload, got %v", err)
	}
}
