package khqr

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	ErrMalformedPayload = errors.New("khqr: malformed payload")
	ErrChecksumMismatch = errors.New("khqr: checksum mismatch")
)

// Field is one decoded tag/length/value triple, in payload order.
type Field struct {
	Tag   string
	Value string
}

// Parse scans raw back into its ordered field list. Re-encoding the result
// reproduces raw byte for byte.
func Parse(raw string) ([]Field, error) {
	var fields []Field
	for i := 0; i < len(raw); {
		if i+4 > len(raw) {
			return nil, fmt.Errorf("%w: truncated header at offset %d", ErrMalformedPayload, i)
		}
		tag := raw[i : i+2]
		// Both length bytes must be ASCII digits. Atoi alone would let a
		// sign character through and produce a negative slice bound.
		if !isDigits(raw[i+2 : i+4]) {
			return nil, fmt.Errorf("%w: bad length for tag %s", ErrMalformedPayload, tag)
		}
		length, err := strconv.Atoi(raw[i+2 : i+4])
		if err != nil {
			return nil, fmt.Errorf("%w: bad length for tag %s", ErrMalformedPayload, tag)
		}
		i += 4
		if i+length > len(raw) {
			return nil, fmt.Errorf("%w: tag %s claims %d bytes past end", ErrMalformedPayload, tag, length)
		}
		fields = append(fields, Field{Tag: tag, Value: raw[i : i+length]})
		i += length
	}
	return fields, nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Encode is the inverse of Parse.
func Encode(fields []Field) (string, error) {
	var out string
	for _, f := range fields {
		encoded, err := encodeField(f.Tag, f.Value)
		if err != nil {
			return "", err
		}
		out += encoded
	}
	return out, nil
}

// VerifyChecksum recomputes the CRC of raw (with the trailing 4 hex digits
// stripped and the "6304" header kept in place) and compares it against the
// stored value.
func VerifyChecksum(raw string) error {
	if len(raw) < 8 || raw[len(raw)-8:len(raw)-4] != tagCRC+"04" {
		return fmt.Errorf("%w: missing CRC field", ErrMalformedPayload)
	}
	stored := raw[len(raw)-4:]
	computed := Checksum([]byte(raw[:len(raw)-4]))
	if stored != computed {
		return fmt.Errorf("%w: stored %s, computed %s", ErrChecksumMismatch, stored, computed)
	}
	return nil
}
