package lattice

import (
	"testing"
)

func TestMaskBasicOps(t *testing.T) {
	// A 70-bit mask spans two words; exercise bits on both sides of the
	// word boundary.
	m := NewMask(70)
	if len(m) != 2 {
		t.Fatalf("Expected 70 bits to need 2 words, got %d", len(m))
	}

	m.Set(0)
	m.Set(63)
	m.Set(64)
	m.Set(69)
	if !m.Test(0) || !m.Test(63) || !m.Test(64) || !m.Test(69) {
		t.Error("Set bits should test true")
	}
	if m.Test(1) || m.Test(65) {
		t.Error("Unset bits should test false")
	}
	if got := m.OnesCount(); got != 4 {
		t.Errorf("Expected popcount 4, got %d", got)
	}

	m.Clear(63)
	if m.Test(63) {
		t.Error("Cleared bit should test false")
	}
	if got := m.OnesCount(); got != 3 {
		t.Errorf("Expected popcount 3 after clear, got %d", got)
	}
}

func TestMaskSetOps(t *testing.T) {
	a := NewMask(128)
	b := NewMask(128)
	a.Set(3)
	a.Set(100)
	b.Set(100)
	b.Set(127)

	if !a.Overlaps(b) {
		t.Error("Masks sharing bit 100 should overlap")
	}

	union := a.Clone()
	union.Or(b)
	if got := union.OnesCount(); got != 3 {
		t.Errorf("Union should have 3 bits, got %d", got)
	}

	diff := a.Clone()
	diff.AndNot(b)
	if diff.Test(100) || !diff.Test(3) {
		t.Error("AndNot should remove bit 100 and keep bit 3")
	}

	if !a.Equals(a.Clone()) {
		t.Error("A mask should equal its clone")
	}
	if a.Equals(b) {
		t.Error("Distinct masks should not be equal")
	}
}

func TestMaskCloneIsIndependent(t *testing.T) {
	a := NewMask(10)
	a.Set(5)
	b := a.Clone()
	b.Set(6)
	if a.Test(6) {
		t.Error("Mutating a clone must not touch the original")
	}
}

func TestMaskHexRoundTrip(t *testing.T) {
	m := NewMask(70)
	m.Set(0)
	m.Set(17)
	m.Set(64)
	m.Set(69)

	hex := m.Hex()
	if len(hex) != 32 {
		t.Fatalf("Expected 2 words x 16 hex digits, got length %d", len(hex))
	}

	back, err := MaskFromHex(hex, 70)
	if err != nil {
		t.Fatalf("Round trip failed: %v", err)
	}
	if !m.Equals(back) {
		t.Errorf("Decoded mask differs: %s vs %s", hex, back.Hex())
	}
}

func TestMaskFromHexRejectsWrongWidth(t *testing.T) {
	m := NewMask(70)
	if _, err := MaskFromHex(m.Hex(), 200); err == nil {
		t.Error("Decoding a 2-word hex string at 200-bit width should fail")
	}
	if _, err := MaskFromHex("zz", 8); err == nil {
		t.Error("Non-hex input should fail")
	}
}
