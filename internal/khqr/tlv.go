package khqr

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// maxValueLen is the largest value a 2-digit TLV length slot can describe.
const maxValueLen = 99

var ErrFieldTooLong = errors.New("khqr: field value exceeds 99 bytes")

// encodeField emits tag + zero-padded byte length + value. Scanner apps parse
// the payload byte for byte, so the length must count bytes, not runes.
func encodeField(tag, value string) (string, error) {
	n := len(value)
	if n > maxValueLen {
		return "", fmt.Errorf("%w: tag %s value is %d bytes", ErrFieldTooLong, tag, n)
	}
	return fmt.Sprintf("%s%02d%s", tag, n, value), nil
}

// truncateValue cuts s down to at most maxValueLen bytes without splitting a
// UTF-8 sequence. Only the merchant name field is allowed to pass through
// here; every other field must fail loudly instead of truncating.
func truncateValue(s string) string {
	if len(s) <= maxValueLen {
		return s
	}
	cut := maxValueLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
