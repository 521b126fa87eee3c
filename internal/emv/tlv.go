// Package emv implements the EMV/QRIS merchant-presented payload primitives:
// a tag-length-value codec, the CRC16-CCITT checksum carried in tag 63, and
// the encoder that embeds a signed fingerprint in tag 62.
//
// All functions are pure and safe for concurrent use.
package emv

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MaxValueLen is the largest value a two-digit length field can describe.
const MaxValueLen = 99

var (
	// ErrEncoding is returned when an item cannot be serialized (bad tag or a
	// value longer than MaxValueLen).
	ErrEncoding = errors.New("tlv encoding error")

	// ErrDecoding is returned when a payload is not a well-formed TLV sequence.
	ErrDecoding = errors.New("tlv decoding error")
)

// Item is a single tag-length-value record. Lengths are measured in bytes of
// the UTF-8 encoded value.
type Item struct {
	Tag   string `json:"tag"`
	Value string `json:"value"`
}

// Serialize renders the item as tag ++ two-digit length ++ value.
func (it Item) Serialize() (string, error) {
	if len(it.Tag) != 2 {
		return "", fmt.Errorf("%w: tag %q must be 2 characters", ErrEncoding, it.Tag)
	}
	if len(it.Value) > MaxValueLen {
		return "", fmt.Errorf("%w: tag %s value length %d exceeds %d", ErrEncoding, it.Tag, len(it.Value), MaxValueLen)
	}
	var b strings.Builder
	b.Grow(4 + len(it.Value))
	b.WriteString(it.Tag)
	if len(it.Value) < 10 {
		b.WriteByte('0')
	}
	b.WriteString(strconv.Itoa(len(it.Value)))
	b.WriteString(it.Value)
	return b.String(), nil
}

// Build concatenates the serialized items in order. An empty sequence
// yields "". Tag uniqueness is not enforced here.
func Build(items []Item) (string, error) {
	var b strings.Builder
	for _, it := range items {
		s, err := it.Serialize()
		if err != nil {
			return "", err
		}
		b.WriteString(s)
	}
	return b.String(), nil
}

// Parse splits payload into its top-level items. It fails on a truncated
// header, a non-numeric length, a length running past the end of input, and
// on dangling bytes after the last complete item.
func Parse(payload string) ([]Item, error) {
	items := make([]Item, 0, 8)
	idx, total := 0, len(payload)
	for idx < total {
		if idx+4 > total {
			return nil, fmt.Errorf("%w: dangling data at offset %d", ErrDecoding, idx)
		}
		tag := payload[idx : idx+2]
		n, ok := parseLen(payload[idx+2 : idx+4])
		if !ok {
			return nil, fmt.Errorf("%w: invalid length %q for tag %s at offset %d", ErrDecoding, payload[idx+2:idx+4], tag, idx)
		}
		start := idx + 4
		end := start + n
		if end > total {
			return nil, fmt.Errorf("%w: tag %s length %d exceeds payload", ErrDecoding, tag, n)
		}
		items = append(items, Item{Tag: tag, Value: payload[start:end]})
		idx = end
	}
	return items, nil
}

// Find returns the first item carrying tag.
func Find(items []Item, tag string) (Item, bool) {
	for _, it := range items {
		if it.Tag == tag {
			return it, true
		}
	}
	return Item{}, false
}

// without returns items minus every entry tagged tag, preserving order.
func without(items []Item, tag string) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if it.Tag != tag {
			out = append(out, it)
		}
	}
	return out
}

// parseLen accepts exactly two ASCII digits.
func parseLen(s string) (int, bool) {
	if len(s) != 2 || s[0] < '0' || s[0] > '9' || s[1] < '0' || s[1] > '9' {
		return 0, false
	}
	return int(s[0]-'0')*10 + int(s[1]-'0'), true
}
