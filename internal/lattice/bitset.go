package lattice

import (
	"fmt"
	"math/bits"
)

const wordBits = 64

// Mask is a fixed-width occupancy bitset, one bit per container index,
// backed by machine words. All solver mask operations (OR, AND-NOT, test,
// popcount) are word-array operations; no arbitrary-precision arithmetic.
type Mask []uint64

// NewMask returns an all-zero mask wide enough for n bits.
func NewMask(n int) Mask {
	return make(Mask, (n+wordBits-1)/wordBits)
}

// Set sets bit i.
func (m Mask) Set(i int) {
	m[i/wordBits] |= 1 << uint(i%wordBits)
}

// Clear clears bit i.
func (m Mask) Clear(i int) {
	m[i/wordBits] &^= 1 << uint(i%wordBits)
}

// Test reports whether bit i is set.
func (m Mask) Test(i int) bool {
	return m[i/wordBits]&(1<<uint(i%wordBits)) != 0
}

// Or sets m |= other.
func (m Mask) Or(other Mask) {
	for i := range other {
		m[i] |= other[i]
	}
}

// AndNot clears every bit of other from m.
func (m Mask) AndNot(other Mask) {
	for i := range other {
		m[i] &^= other[i]
	}
}

// Overlaps reports whether m and other share a set bit.
func (m Mask) Overlaps(other Mask) bool {
	for i := range other {
		if m[i]&other[i] != 0 {
			return true
		}
	}
	return false
}

// Equals reports exact bit equality.
func (m Mask) Equals(other Mask) bool {
	if len(m) != len(other) {
		return false
	}
	for i := range m {
		if m[i] != other[i] {
			return false
		}
	}
	return true
}

// OnesCount returns the number of set bits.
func (m Mask) OnesCount() int {
	total := 0
	for _, w := range m {
		total += bits.OnesCount64(w)
	}
	return total
}

// Clone returns a deep copy safe to mutate independently.
func (m Mask) Clone() Mask {
	out := make(Mask, len(m))
	copy(out, m)
	return out
}

// Hex encodes the mask words little-endian-first as a hex string for
// snapshots. The width is preserved by MaskFromHex given the same n.
func (m Mask) Hex() string {
	out := ""
	for _, w := range m {
		out += fmt.Sprintf("%016x", w)
	}
	return out
}

// MaskFromHex decodes the Hex form back into a mask of width n bits.
func MaskFromHex(s string, n int) (Mask, error) {
	m := NewMask(n)
	if len(s) != len(m)*16 {
		return nil, fmt.Errorf("mask hex length %d does not match width %d bits", len(s), n)
	}
	for i := range m {
		var w uint64
		if _, err := fmt.Sscanf(s[i*16:(i+1)*16], "%016x", &w); err != nil {
			return nil, fmt.Errorf("invalid mask hex: %v", err)
		}
		m[i] = w
	}
	return m, nil
}
