// Package csvingest turns a raw bank/card statement file into reviewable
// rows and persists them in month-sized batches. The actual column
// inference is done by the extraction backend; this package owns decoding,
// row editing state and the batch save schedule.
package csvingest

import (
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

// DecodeStatement decodes statement file bytes as strict UTF-8, falling
// back to Shift-JIS when the bytes are not valid UTF-8. Japanese bank
// exports are commonly Shift-JIS encoded.
func DecodeStatement(data []byte) (string, error) {
	if utf8.Valid(data) {
		return string(data), nil
	}

	decoded, _, err := transform.Bytes(japanese.ShiftJIS.NewDecoder(), data)
	if err != nil {
		return "", fmt.Errorf("csvingest: decoding as shift-jis: %w", err)
	}
	return string(decoded), nil
}
