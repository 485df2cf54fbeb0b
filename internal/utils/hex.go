// Package utils holds small hex formatting and JSON response helpers.
package utils

const hexd = "0123456789ABCDEF"

// Hex4 formats a uint16 as four uppercase hex digits, e.g. "0499".
func Hex4(v uint16) string {
	return string([]byte{
		hexd[(v>>12)&0xF],
		hexd[(v>>8)&0xF],
		hexd[(v>>4)&0xF],
		hexd[v&0xF],
	})
}

// BytesToHex converts a byte slice to an uppercase hex string.
func BytesToHex(b []byte) string {
	out := make([]byte, 0, len(b)*2)
	for _, x := range b {
		out = append(out, hexd[x>>4], hexd[x&0x0F])
	}
	return string(out)
}

// GroupedHex is BytesToHex with a space after every group bytes, for
// payload dumps where field boundaries matter.
func GroupedHex(b []byte, group int) string {
	if group <= 0 {
		return BytesToHex(b)
	}
	out := make([]byte, 0, len(b)*2+len(b)/group)
	for i, x := range b {
		if i > 0 && i%group == 0 {
			out = append(out, ' ')
		}
		out = append(out, hexd[x>>4], hexd[x&0x0F])
	}
	return string(out)
}
