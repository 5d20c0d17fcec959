package stringsfile

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Encoding names a text encoding for .strings files.
type Encoding string

const (
	// UTF16 is little-endian UTF-16 with a byte order mark, the format
	// genstrings and ibtool produce.
	UTF16 Encoding = "utf-16"
	// UTF8 is plain UTF-8 without a byte order mark.
	UTF8 Encoding = "utf-8"
	// UTF8BOM is UTF-8 starting with a byte order mark. It is only ever
	// detected on input, so that such files are written back unchanged.
	UTF8BOM Encoding = "utf-8-bom"
)

// ParseEncoding maps a user-supplied name to an Encoding. Accepts
// "utf-16", "utf16", "utf-8" and "utf8" in any case.
func ParseEncoding(name string) (Encoding, error) {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), "-", "")) {
	case "utf16":
		return UTF16, nil
	case "utf8":
		return UTF8, nil
	}
	return "", fmt.Errorf("unknown encoding %q (valid: utf-16, utf-8)", name)
}

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// Decode converts raw file content to a string and reports which encoding
// it was stored in. A byte order mark decides; without one, NUL bytes in
// the first code unit indicate BOM-less UTF-16 and anything else is read
// as UTF-8. UTF-8 content that is not valid UTF-8 is a *ParseError
// naming the offending line.
func Decode(data []byte) (string, Encoding, error) {
	switch {
	case bytes.HasPrefix(data, bomUTF16LE), bytes.HasPrefix(data, bomUTF16BE):
		out, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), data)
		if err != nil {
			return "", "", fmt.Errorf("decoding utf-16: %w", err)
		}
		return string(out), UTF16, nil

	case bytes.HasPrefix(data, bomUTF8):
		data = data[len(bomUTF8):]
		if err := validUTF8(data); err != nil {
			return "", "", err
		}
		return string(data), UTF8BOM, nil

	case len(data) >= 2 && (data[0] == 0 || data[1] == 0):
		endian := unicode.LittleEndian
		if data[0] == 0 {
			endian = unicode.BigEndian
		}
		out, err := unicode.UTF16(endian, unicode.IgnoreBOM).NewDecoder().Bytes(data)
		if err != nil {
			return "", "", fmt.Errorf("decoding utf-16: %w", err)
		}
		return string(out), UTF16, nil
	}

	if err := validUTF8(data); err != nil {
		return "", "", err
	}
	return string(data), UTF8, nil
}

// validUTF8 locates the first invalid byte sequence in data, if any.
func validUTF8(data []byte) error {
	if utf8.Valid(data) {
		return nil
	}
	off := 0
	for off < len(data) {
		r, size := utf8.DecodeRune(data[off:])
		if r == utf8.RuneError && size <= 1 {
			break
		}
		off += size
	}
	start := bytes.LastIndexByte(data[:off], '\n') + 1
	end := len(data)
	if i := bytes.IndexByte(data[off:], '\n'); i >= 0 {
		end = off + i
	}
	return &ParseError{
		Line:   bytes.Count(data[:off], []byte{'\n'}) + 1,
		Text:   string(bytes.TrimSuffix(data[start:end], []byte{'\r'})),
		Reason: fmt.Sprintf("invalid UTF-8 at byte %d", off),
	}
}

// Encode converts text to bytes in the given encoding. UTF-16 output is
// little-endian and starts with a byte order mark. An empty encoding means
// UTF-16.
func Encode(text string, enc Encoding) ([]byte, error) {
	switch enc {
	case UTF16, "":
		out, err := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder().Bytes([]byte(text))
		if err != nil {
			return nil, fmt.Errorf("encoding utf-16: %w", err)
		}
		return out, nil
	case UTF8:
		return []byte(text), nil
	case UTF8BOM:
		return append(append([]byte(nil), bomUTF8...), text...), nil
	}
	return nil, fmt.Errorf("unknown encoding %q", enc)
}
