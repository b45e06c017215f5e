package pixel

import (
	"bytes"
	"math/rand"
	"testing"
)

func words(vals ...uint16) []byte {
	out := make([]byte, len(vals)*2)
	for i, v := range vals {
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

func TestPack10KnownVector(t *testing.T) {
	src := words(0x000, 0x3FF, 0x2AA, 0x155)
	dst := make([]byte, 5)

	Pack10(src, dst)

	want := []byte{0x00, 0xFC, 0xAF, 0x6A, 0x55}
	if !bytes.Equal(dst, want) {
		t.Errorf("Pack10 = %#v, want %#v", dst, want)
	}
}

func TestUnpack10KnownVector(t *testing.T) {
	src := []byte{0x00, 0xFC, 0xAF, 0x6A, 0x55}
	dst := make([]byte, 8)

	Unpack10(src, dst)

	want := words(0x000, 0x3FF, 0x2AA, 0x155)
	if !bytes.Equal(dst, want) {
		t.Errorf("Unpack10 = %#v, want %#v", dst, want)
	}
}

func TestPack10RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for _, w := range []int{4, 8, 64, 1920, 3840} {
		src := make([]byte, w*2)
		for i := 0; i < w; i++ {
			v := uint16(rng.Intn(1024))
			src[i*2] = byte(v)
			src[i*2+1] = byte(v >> 8)
		}

		packed := make([]byte, PackedRowBytes(w))
		unpacked := make([]byte, w*2)

		Pack10(src, packed)
		Unpack10(packed, unpacked)

		if !bytes.Equal(src, unpacked) {
			t.Errorf("width %d: round trip mismatch", w)
		}
	}
}

func TestPack10RowPadding(t *testing.T) {
	// Width 6: second group is [p4, p5, p5, p5] with the edge replicated.
	src := words(1, 2, 3, 4, 5, 6)
	packed := make([]byte, PackedRowBytes(6))
	Pack10Row(src, packed, 6)

	wantTail := make([]byte, 5)
	Pack10(words(5, 6, 6, 6), wantTail)
	if !bytes.Equal(packed[5:], wantTail) {
		t.Errorf("padded group = %#v, want %#v", packed[5:], wantTail)
	}

	// The inverse must drop the padding and restore the original row.
	unpacked := make([]byte, 6*2)
	Unpack10Row(packed, unpacked, 6)
	if !bytes.Equal(unpacked, src) {
		t.Errorf("Unpack10Row = %#v, want %#v", unpacked, src)
	}
}

func TestPackedRowBytes(t *testing.T) {
	tests := []struct {
		w        int
		expected int
	}{
		{4, 5},
		{8, 10},
		{6, 10},  // padded to 8
		{1920, 2400},
		{1918, 2400}, // padded to 1920
	}

	for _, tt := range tests {
		if got := PackedRowBytes(tt.w); got != tt.expected {
			t.Errorf("PackedRowBytes(%d) = %d, want %d", tt.w, got, tt.expected)
		}
	}
}

func TestPromote8(t *testing.T) {
	src := []byte{0, 1, 128, 255}
	dst := make([]byte, 8)
	Promote8(src, dst)

	want := words(0, 4, 512, 1020)
	if !bytes.Equal(dst, want) {
		t.Errorf("Promote8 = %#v, want %#v", dst, want)
	}
}

func TestFormat(t *testing.T) {
	if Format420P8.BytesPerSample() != 1 || Format420P10.BytesPerSample() != 2 {
		t.Error("unexpected sample widths")
	}
	if Format420P10.String() != "yuv420p10le" {
		t.Errorf("Format420P10 = %q", Format420P10.String())
	}
}
