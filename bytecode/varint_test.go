package bytecode

import "testing"

func TestVarintRoundTrip(t *testing.T) {
	values := []uint32{
		0, 1, 63, 64, 127, 128, 255,
		256, 1000, 16383, 16384, 65535,
		65536, 100000, 1 << 20, 1 << 24, 1<<30 - 1, 1 << 30, 1<<32 - 1,
	}
	for _, v := range values {
		enc := AppendVarint(nil, v)
		if got := VarintLen(v); got != len(enc) {
			t.Errorf("VarintLen(%d) = %d, want %d", v, got, len(enc))
		}
		dec, n, err := Varint(enc)
		if err != nil {
			t.Fatalf("Varint(%d): %v", v, err)
		}
		if dec != v {
			t.Errorf("decode(encode(%d)) = %d", v, dec)
		}
		if n != len(enc) {
			t.Errorf("decoded length %d, encoded length %d for %d", n, len(enc), v)
		}
	}
}

func TestVarintCanonicalWidths(t *testing.T) {
	tests := []struct {
		v    uint32
		want int
	}{
		{0, 2},
		{0xFF, 2},
		{0x100, 3},
		{0xFFFF, 3},
		{0x10000, 5},
		{0xFFFFFFFF, 5},
	}
	for _, tt := range tests {
		if got := len(AppendVarint(nil, tt.v)); got != tt.want {
			t.Errorf("len(encode(%#x)) = %d, want %d", tt.v, got, tt.want)
		}
	}
}

func TestVarintErrors(t *testing.T) {
	if _, _, err := Varint(nil); err != ErrVarintTruncated {
		t.Errorf("empty: got %v, want ErrVarintTruncated", err)
	}
	if _, _, err := Varint([]byte{3, 1, 2, 3}); err != ErrVarintWidth {
		t.Errorf("width 3: got %v, want ErrVarintWidth", err)
	}
	if _, _, err := Varint([]byte{4, 1, 2}); err != ErrVarintTruncated {
		t.Errorf("short payload: got %v, want ErrVarintTruncated", err)
	}
	if _, err := SkipVarint([]byte{2, 1}); err != ErrVarintTruncated {
		t.Errorf("SkipVarint short: got %v, want ErrVarintTruncated", err)
	}
}

func TestSkipVarintLength(t *testing.T) {
	for _, v := range []uint32{0, 200, 40000, 5000000} {
		enc := AppendVarint(nil, v)
		n, err := SkipVarint(enc)
		if err != nil {
			t.Fatalf("SkipVarint(%d): %v", v, err)
		}
		if n != len(enc) {
			t.Errorf("SkipVarint(%d) = %d, want %d", v, n, len(enc))
		}
	}
}
