// Package pixel implements the compact pixel representations used by chunk
// buffers: the lossless 10-bit 4-pixels-to-5-bytes pack and its inverse,
// and the 8-bit to 10-bit promotion applied before encoder handoff.
package pixel

// Format is the pixel format of a source.
type Format int

const (
	// Format420P8 is 8-bit 4:2:0 planar.
	Format420P8 Format = iota
	// Format420P10 is 10-bit 4:2:0 planar, stored as 16-bit LE words.
	Format420P10
)

// String returns the format name.
func (f Format) String() string {
	if f == Format420P10 {
		return "yuv420p10le"
	}
	return "yuv420p"
}

// BytesPerSample returns the unpacked sample width in bytes.
func (f Format) BytesPerSample() int {
	if f == Format420P10 {
		return 2
	}
	return 1
}

// PackedGroupBytes is the packed size of one 4-pixel group of 10-bit samples.
const PackedGroupBytes = 5

// PadWidth rounds a row width up to the next multiple of 4 pixels.
func PadWidth(w int) int {
	return (w + 3) &^ 3
}

// PackedRowBytes returns the packed byte length of a 10-bit row of w pixels,
// after padding to a multiple of 4.
func PackedRowBytes(w int) int {
	return PadWidth(w) / 4 * PackedGroupBytes
}

// Pack10 packs 10-bit samples (16-bit LE words, upper 6 bits zero) into the
// 4:5 byte layout. len(src) must be a multiple of 8 bytes (4 samples) and
// len(dst) at least len(src)/8*5. Each 4-sample group packs independently:
//
//	b0 = p0[7:0]
//	b1 = p1[5:0]<<2 | p0[9:8]
//	b2 = p2[3:0]<<4 | p1[9:6]
//	b3 = p3[1:0]<<6 | p2[9:4]
//	b4 = p3[9:2]
func Pack10(src, dst []byte) {
	groups := len(src) / 8
	for g := 0; g < groups; g++ {
		s := src[g*8 : g*8+8 : g*8+8]
		d := dst[g*5 : g*5+5 : g*5+5]

		p0 := uint32(s[0]) | uint32(s[1])<<8
		p1 := uint32(s[2]) | uint32(s[3])<<8
		p2 := uint32(s[4]) | uint32(s[5])<<8
		p3 := uint32(s[6]) | uint32(s[7])<<8

		// One 40-bit little-endian word: p0 at bit 0, p1 at 10, p2 at 20, p3 at 30.
		packed := uint64(p0) | uint64(p1)<<10 | uint64(p2)<<20 | uint64(p3)<<30

		d[0] = byte(packed)
		d[1] = byte(packed >> 8)
		d[2] = byte(packed >> 16)
		d[3] = byte(packed >> 24)
		d[4] = byte(packed >> 32)
	}
}

// Unpack10 is the inverse of Pack10: 5 packed bytes per group back into
// 4 16-bit LE words with the upper 6 bits zero. len(src) must be a multiple
// of 5 and len(dst) at least len(src)/5*8.
func Unpack10(src, dst []byte) {
	groups := len(src) / 5
	for g := 0; g < groups; g++ {
		s := src[g*5 : g*5+5 : g*5+5]
		d := dst[g*8 : g*8+8 : g*8+8]

		packed := uint64(s[0]) | uint64(s[1])<<8 | uint64(s[2])<<16 |
			uint64(s[3])<<24 | uint64(s[4])<<32

		p0 := uint16(packed) & 0x3FF
		p1 := uint16(packed>>10) & 0x3FF
		p2 := uint16(packed>>20) & 0x3FF
		p3 := uint16(packed>>30) & 0x3FF

		d[0] = byte(p0)
		d[1] = byte(p0 >> 8)
		d[2] = byte(p1)
		d[3] = byte(p1 >> 8)
		d[4] = byte(p2)
		d[5] = byte(p2 >> 8)
		d[6] = byte(p3)
		d[7] = byte(p3 >> 8)
	}
}

// Pack10Row packs one row of w 10-bit pixels from src (16-bit LE, w*2 bytes)
// into dst (PackedRowBytes(w) bytes). When w is not a multiple of 4 the row
// is right-padded by replicating the last sample.
func Pack10Row(src, dst []byte, w int) {
	full := w &^ 3
	Pack10(src[:full*2], dst[:full/4*PackedGroupBytes])

	if full == w {
		return
	}

	// Replicate the edge sample into a stack group and pack it.
	var group [8]byte
	last := src[(w-1)*2 : w*2]
	for i := 0; i < 4; i++ {
		group[i*2] = last[0]
		group[i*2+1] = last[1]
	}
	copy(group[:(w-full)*2], src[full*2:w*2])
	Pack10(group[:], dst[full/4*PackedGroupBytes:])
}

// Unpack10Row unpacks one packed row into w pixels of 16-bit LE samples.
// Padding samples beyond w are discarded.
func Unpack10Row(src, dst []byte, w int) {
	full := w &^ 3
	Unpack10(src[:full/4*PackedGroupBytes], dst[:full*2])

	if full == w {
		return
	}

	var group [8]byte
	Unpack10(src[full/4*PackedGroupBytes:full/4*PackedGroupBytes+PackedGroupBytes], group[:])
	copy(dst[full*2:w*2], group[:(w-full)*2])
}

// Promote8 widens 8-bit samples to 10-bit 16-bit LE words by a left shift
// of 2, the conversion applied to 8-bit sources before encoder handoff.
func Promote8(src, dst []byte) {
	for i, v := range src {
		s := uint16(v) << 2
		dst[i*2] = byte(s)
		dst[i*2+1] = byte(s >> 8)
	}
}
