package khqr

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeField_LengthPrefix(t *testing.T) {
	tests := []struct {
		name  string
		tag   string
		value string
		want  string
	}{
		{"short value", "59", "GenZStore", "5909GenZStore"},
		{"single char", "58", "K", "5801K"},
		{"empty value", "05", "", "0500"},
		{"two digit length", "60", "Phnom Penh", "6010Phnom Penh"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := encodeField(tt.tag, tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Len(t, got, 4+len(tt.value))
			assert.True(t, strings.HasPrefix(got, tt.tag))
		})
	}
}

func TestEncodeField_CountsBytesNotRunes(t *testing.T) {
	// Khmer merchant names are multi-byte in UTF-8; scanners count bytes.
	value := "ភ្នំពេញ"
	got, err := encodeField("60", value)
	require.NoError(t, err)
	assert.Equal(t, "6021"+value, got)
}

func TestEncodeField_MaxLength(t *testing.T) {
	value := strings.Repeat("x", 99)
	got, err := encodeField("62", value)
	require.NoError(t, err)
	assert.Equal(t, "6299"+value, got)
}

func TestEncodeField_TooLong(t *testing.T) {
	_, err := encodeField("62", strings.Repeat("x", 100))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFieldTooLong)
}

func TestTruncateValue_RuneBoundary(t *testing.T) {
	// 33 three-byte runes = 99 bytes, plus one more that must be dropped
	// whole rather than leaving a split UTF-8 sequence behind.
	s := strings.Repeat("ញ", 34)
	got := truncateValue(s)
	assert.Equal(t, 99, len(got))
	assert.Equal(t, strings.Repeat("ញ", 33), got)

	assert.Equal(t, "short", truncateValue("short"))
}
