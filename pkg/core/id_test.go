package core

import "testing"

func TestRingSizes(t *testing.T) {
	if got := RingSize(4); got != 16 {
		t.Fatalf("RingSize(4) = %d, want 16", got)
	}
	if got := HexRingSize(2); got != 256 {
		t.Fatalf("HexRingSize(2) = %d, want 256", got)
	}
}

func TestHashToRingDeterministic(t *testing.T) {
	ringSize := HexRingSize(6)
	a := HashToRing("node-7", ringSize)
	b := HashToRing("node-7", ringSize)
	if a != b {
		t.Fatalf("HashToRing not deterministic: %d != %d", a, b)
	}
	if a >= ringSize {
		t.Fatalf("HashToRing(%d) out of range [0, %d)", a, ringSize)
	}
	if c := HashToRing("node-8", ringSize); c == a {
		t.Fatalf("distinct inputs hashed to the same id: %d", a)
	}
}

func TestBetweenOpen(t *testing.T) {
	ringSize := ID(16)

	cases := []struct {
		a, x, b ID
		want    bool
	}{
		{2, 5, 10, true},
		{2, 1, 10, false},
		{2, 10, 10, false}, // b excluded
		{2, 2, 10, false},  // a excluded
		{10, 14, 2, true},  // wraps
		{10, 5, 2, false},  // wraps, outside arc
		{5, 5, 5, false},   // degenerate a==b
	}
	for _, c := range cases {
		if got := BetweenOpen(c.a, c.x, c.b, ringSize); got != c.want {
			t.Errorf("BetweenOpen(%d, %d, %d) = %v, want %v", c.a, c.x, c.b, got, c.want)
		}
	}
}

func TestBetweenOpenClosed(t *testing.T) {
	ringSize := ID(16)
	if !BetweenOpenClosed(2, 10, 10, ringSize) {
		t.Fatal("expected b included in BetweenOpenClosed")
	}
	if BetweenOpenClosed(2, 2, 10, ringSize) {
		t.Fatal("expected a excluded in BetweenOpenClosed")
	}
}

func TestCircularDistance(t *testing.T) {
	ringSize := ID(16)
	if d := CircularDistance(1, 15, ringSize); d != 2 {
		t.Fatalf("CircularDistance(1, 15) = %d, want 2", d)
	}
	if d := CircularDistance(0, 8, ringSize); d != 8 {
		t.Fatalf("CircularDistance(0, 8) = %d, want 8", d)
	}
}

func TestAddSub(t *testing.T) {
	ringSize := ID(16)
	if got := Add(14, 4, ringSize); got != 2 {
		t.Fatalf("Add(14, 4) = %d, want 2", got)
	}
	if got := Sub(2, 4, ringSize); got != 14 {
		t.Fatalf("Sub(2, 4) = %d, want 14", got)
	}
}
