// Package payload turns transport-level input into the text the engine
// consumes: base64 request fields for the HTTP service, raw files and stdin
// for the CLI.
package payload

import (
	"encoding/base64"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"gitlab.com/tozd/go/errors"
	xunicode "golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	// ErrInvalidBase64 is returned when a csv_b64 field is not standard
	// base64 or does not decode to UTF-8 text.
	ErrInvalidBase64 = errors.New("invalid base64 payload")

	// ErrInvalidUTF8 is returned when raw input is not valid UTF-8.
	ErrInvalidUTF8 = errors.New("input is not valid UTF-8")
)

// DecodeBase64Text decodes a standard-alphabet, padded base64 string into
// UTF-8 text. Whitespace anywhere in s is ignored, so wrapped encodings are
// accepted. A leading byte-order mark is removed.
func DecodeBase64Text(s string) (string, error) {
	compact := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)

	raw, err := base64.StdEncoding.Strict().DecodeString(compact)
	if err != nil {
		return "", errors.Errorf("%w: %v", ErrInvalidBase64, err)
	}

	text, err := decodeText(raw)
	if err != nil {
		return "", errors.Errorf("%w: %v", ErrInvalidBase64, err)
	}
	return text, nil
}

// ReadText reads all of r as UTF-8 text, removing a leading byte-order mark.
func ReadText(r io.Reader) (string, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return "", errors.Errorf("read input: %w", err)
	}
	return decodeText(raw)
}

// EncodeBase64Text is the inverse of DecodeBase64Text for callers that
// build requests, such as tests and the CLI's request dump.
func EncodeBase64Text(text string) string {
	return base64.StdEncoding.EncodeToString([]byte(text))
}

func decodeText(raw []byte) (string, error) {
	if !utf8.Valid(raw) {
		return "", errors.WithStack(ErrInvalidUTF8)
	}
	out, _, err := transform.Bytes(xunicode.UTF8BOM.NewDecoder(), raw)
	if err != nil {
		return "", errors.Errorf("decode utf-8: %w", err)
	}
	return string(out), nil
}
