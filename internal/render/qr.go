// Package render turns a finalized payload into a PNG QR code.
package render

import (
	"encoding/base64"
	"errors"

	qrcode "github.com/skip2/go-qrcode"
)

// ErrEmptyPayload is returned when there is nothing to encode.
var ErrEmptyPayload = errors.New("render: empty payload")

// PNG encodes payload as a size×size PNG with medium error correction.
func PNG(payload string, size int) ([]byte, error) {
	if payload == "" {
		return nil, ErrEmptyPayload
	}
	return qrcode.Encode(payload, qrcode.Medium, size)
}

// PNGBase64 is PNG with the bytes base64-encoded (standard alphabet, padded),
// as embedded in JSON responses.
func PNGBase64(payload string, size int) (string, error) {
	png, err := PNG(payload, size)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(png), nil
}
