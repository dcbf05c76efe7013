package core

import "golang.org/x/exp/constraints"

// Itoa converts an integer to a string without using fmt.
// This is a lightweight alternative for embedded systems.
func Itoa[T constraints.Integer](n T) string {
	var buf [21]byte
	pos := len(buf)

	negative := n < 0
	u := uint64(n)
	if negative {
		u = uint64(-int64(n))
	}

	for {
		pos--
		buf[pos] = byte('0' + u%10)
		u /= 10
		if u == 0 {
			break
		}
	}

	if negative {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

// Hex formats b as two upper-case hex digits per byte
func Hex(b []byte) string {
	const digits = "0123456789ABCDEF"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = digits[v>>4]
		out[i*2+1] = digits[v&0x0F]
	}
	return string(out)
}
