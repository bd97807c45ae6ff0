// Package core holds the ring arithmetic and identifier hashing shared by
// the Chord and Pastry node protocols. Neither protocol keeps its ring
// size in a package-level constant; every helper here takes the ring size
// as an explicit argument so a node's configuration lives entirely in its
// own struct.
package core

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
)

// ID is a position on a circular identifier space. Both Chord (a 2^M ring)
// and Pastry (a 16^L ring) fit comfortably in a uint64 for any parameters
// the shipped experiments use.
type ID uint64

// RingSize returns 2^bits, the size of a Chord-style binary ring.
func RingSize(bits int) ID {
	return ID(1) << uint(bits)
}

// HexRingSize returns 16^digits, the size of a Pastry-style hex ring.
func HexRingSize(digits int) ID {
	return ID(1) << uint(4*digits)
}

// HashToRing hashes s with SHA-1, keeps the leading hex characters of the
// digest (as many as needed to span ringSize), and parses them as an
// unsigned integer reduced modulo ringSize.
func HashToRing(s string, ringSize ID) ID {
	sum := sha1.Sum([]byte(s))
	full := hex.EncodeToString(sum[:])

	digits := hexDigitsFor(ringSize)
	if digits > len(full) {
		digits = len(full)
	}
	trimmed := full[:digits]

	var v ID
	fmt.Sscanf(trimmed, "%x", &v)
	return v % ringSize
}

// hexDigitsFor returns the number of hex characters needed to represent
// any value below ringSize.
func hexDigitsFor(ringSize ID) int {
	digits := 0
	for r := ringSize - 1; r > 0; r >>= 4 {
		digits++
	}
	if digits == 0 {
		digits = 1
	}
	return digits
}

// BetweenOpen reports whether x lies on the clockwise arc strictly between
// a and b (both endpoints excluded) on a ring of the given size. When
// a == b the arc is empty and this is always false, the correct
// degenerate case for a single-node ring.
func BetweenOpen(a, x, b, ringSize ID) bool {
	if a == b {
		return false
	}
	if a < b {
		return a < x && x < b
	}
	// Wraps around zero.
	return x > a || x < b
}

// BetweenOpenClosed reports whether x lies on the clockwise arc from a
// (exclusive) to b (inclusive).
func BetweenOpenClosed(a, x, b, ringSize ID) bool {
	return x == b || BetweenOpen(a, x, b, ringSize)
}

// CircularDistance returns the shorter of the two arc lengths between a
// and b on a ring of the given size.
func CircularDistance(a, b, ringSize ID) ID {
	var diff ID
	if a >= b {
		diff = a - b
	} else {
		diff = b - a
	}
	if other := ringSize - diff; other < diff {
		return other
	}
	return diff
}

// Add performs modular addition on the ring.
func Add(a, b, ringSize ID) ID {
	return (a + b) % ringSize
}

// Sub performs modular subtraction on the ring, always returning a value
// in [0, ringSize).
func Sub(a, b, ringSize ID) ID {
	return (a%ringSize + ringSize - b%ringSize) % ringSize
}
