package khqr

import (
	"fmt"

	"github.com/howeyc/crc16"
)

// Checksum computes CRC-16/CCITT-FALSE (polynomial 0x1021, seed 0xFFFF) over
// data and renders it as 4 uppercase hex digits. Bank scanner apps recompute
// this to validate the payload, so the variant is a wire requirement.
func Checksum(data []byte) string {
	return fmt.Sprintf("%04X", crc16.ChecksumCCITTFalse(data))
}
