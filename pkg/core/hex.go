package core

import "fmt"

// FormatHex renders id as a zero-padded hex string of the given digit
// width, the textual form Pastry's routing table indexes into.
func FormatHex(id ID, digits int) string {
	return fmt.Sprintf("%0*x", digits, uint64(id))
}

// HexDigit returns the l-th hex digit (0-indexed from the most
// significant digit) of id, rendered at the given digit width.
func HexDigit(id ID, l int, digits int) int {
	s := FormatHex(id, digits)
	if l < 0 || l >= len(s) {
		return 0
	}
	var v int
	fmt.Sscanf(string(s[l]), "%x", &v)
	return v
}

// CommonPrefix counts the leading hex digits a and b share, rendered at
// the given digit width.
func CommonPrefix(a, b ID, digits int) int {
	sa := FormatHex(a, digits)
	sb := FormatHex(b, digits)
	n := 0
	for n < len(sa) && n < len(sb) && sa[n] == sb[n] {
		n++
	}
	return n
}
