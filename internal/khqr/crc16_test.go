package khqr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChecksum_GoldenVectors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		// Empty input leaves the seed untouched.
		{"empty", "", "FFFF"},
		// Standard CRC-16/CCITT-FALSE check value.
		{"check value", "123456789", "29B1"},
		{"plain text", "hello KHQR", "03EB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Checksum([]byte(tt.data)))
		})
	}
}

func TestChecksum_AlwaysFourUppercaseHex(t *testing.T) {
	for _, data := range []string{"", "a", "ab", "abc", "0", "zz", "6304"} {
		got := Checksum([]byte(data))
		assert.Regexp(t, `^[0-9A-F]{4}$`, got, "input %q", data)
	}
}
