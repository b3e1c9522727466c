// Package checksum implements the RFC 1071 internet checksum used in
// transport headers exchanged between protocol modules.
//
// The checksum is computed but never validated automatically by the harness;
// a receiving protocol decides whether and how to act on a mismatch.
package checksum

// Sum computes the 16-bit one's-complement internet checksum of data.
//
// The buffer is treated as a sequence of big-endian 16-bit words. An odd
// trailing byte is the high byte of a virtual final word with a zero low
// byte. A zero-length buffer yields 0xFFFF.
func Sum(data []byte) uint16 {
	var sum uint32

	i := 0
	for ; i+1 < len(data); i += 2 {
		sum += uint32(data[i])<<8 | uint32(data[i+1])
	}
	if i < len(data) {
		sum += uint32(data[i]) << 8
	}

	// Fold carries back into the low 16 bits until none remain.
	for sum>>16 != 0 {
		sum = (sum & 0xFFFF) + (sum >> 16)
	}

	return ^uint16(sum)
}

// Verify reports whether want matches the checksum of data.
//
// This is an explicit helper for protocol modules; the harness itself never
// rejects a packet on checksum grounds.
func Verify(data []byte, want uint16) bool {
	return Sum(data) == want
}
