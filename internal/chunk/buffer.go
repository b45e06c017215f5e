package chunk

import (
	"io"
	"sync/atomic"

	"github.com/cleaveav/cleave/internal/pixel"
)

// strideAlign is the byte alignment of stored plane rows.
const strideAlign = 16

func alignStride(rowBytes int) int {
	return (rowBytes + strideAlign - 1) &^ (strideAlign - 1)
}

// Geometry describes the stored layout of one frame inside a Buffer.
type Geometry struct {
	Width    int
	Height   int
	Format   pixel.Format
	YRow     int // payload bytes per stored luma row
	UVRow    int // payload bytes per stored chroma row
	YStride  int // luma row stride (YRow rounded up to 16)
	UVStride int // chroma row stride
}

// NewGeometry computes the stored frame layout for the given dimensions and
// format. For 10-bit content rows hold the packed 4:5 representation.
func NewGeometry(width, height int, format pixel.Format) Geometry {
	g := Geometry{Width: width, Height: height, Format: format}
	if format == pixel.Format420P10 {
		g.YRow = pixel.PackedRowBytes(width)
		g.UVRow = pixel.PackedRowBytes(width / 2)
	} else {
		g.YRow = width
		g.UVRow = width / 2
	}
	g.YStride = alignStride(g.YRow)
	g.UVStride = alignStride(g.UVRow)
	return g
}

// FrameBytes returns the stored size of one frame: luma rows then the two
// chroma planes.
func (g Geometry) FrameBytes() int {
	return g.YStride*g.Height + 2*g.UVStride*(g.Height/2)
}

// OutputFrameBytes returns the size of one frame as streamed to the encoder:
// planar 10-bit, 2 bytes per sample.
func (g Geometry) OutputFrameBytes() int {
	return g.Width*g.Height*2 + 2*(g.Width/2)*(g.Height/2)*2
}

// Buffer owns one chunk's pixel data in the compact representation. It is
// filled by the decode thread, immutable after hand-off, and shared by
// reference count between the scheduler and workers. The final Release
// frees the backing region.
type Buffer struct {
	Chunk Chunk
	Geom  Geometry

	data []byte
	refs atomic.Int32
}

// NewBuffer allocates a buffer sized for the chunk, with one reference held
// by the creator.
func NewBuffer(c Chunk, g Geometry) *Buffer {
	b := &Buffer{
		Chunk: c,
		Geom:  g,
		data:  make([]byte, g.FrameBytes()*c.Frames()),
	}
	b.refs.Store(1)
	return b
}

// Retain adds a reference.
func (b *Buffer) Retain() {
	b.refs.Add(1)
}

// Release drops a reference; the last release frees the pixel data.
func (b *Buffer) Release() {
	if b.refs.Add(-1) == 0 {
		b.data = nil
	}
}

// Refs returns the current reference count.
func (b *Buffer) Refs() int {
	return int(b.refs.Load())
}

// Bytes returns the total stored byte size of the buffer.
func (b *Buffer) Bytes() int {
	return len(b.data)
}

func (b *Buffer) frame(i int) []byte {
	fb := b.Geom.FrameBytes()
	return b.data[i*fb : (i+1)*fb]
}

func (b *Buffer) planes(i int) (y, u, v []byte) {
	f := b.frame(i)
	ySize := b.Geom.YStride * b.Geom.Height
	uvSize := b.Geom.UVStride * (b.Geom.Height / 2)
	return f[:ySize], f[ySize : ySize+uvSize], f[ySize+uvSize:]
}

// FillFrame stores one decoded frame into slot i, packing 10-bit rows on the
// way in. The source planes are tightly packed samples at the source's
// native width (16-bit LE for 10-bit, bytes for 8-bit). Only the decode
// thread calls this, before the buffer is handed off.
func (b *Buffer) FillFrame(i int, srcY, srcU, srcV []byte) {
	y, u, v := b.planes(i)
	g := b.Geom

	if g.Format == pixel.Format420P10 {
		fillPacked(y, srcY, g.Width, g.Height, g.YStride)
		fillPacked(u, srcU, g.Width/2, g.Height/2, g.UVStride)
		fillPacked(v, srcV, g.Width/2, g.Height/2, g.UVStride)
		return
	}
	fillRaw(y, srcY, g.Width, g.Height, g.YStride)
	fillRaw(u, srcU, g.Width/2, g.Height/2, g.UVStride)
	fillRaw(v, srcV, g.Width/2, g.Height/2, g.UVStride)
}

func fillPacked(dst, src []byte, w, h, stride int) {
	for row := 0; row < h; row++ {
		pixel.Pack10Row(src[row*w*2:(row+1)*w*2], dst[row*stride:], w)
	}
}

func fillRaw(dst, src []byte, w, h, stride int) {
	for row := 0; row < h; row++ {
		copy(dst[row*stride:row*stride+w], src[row*w:(row+1)*w])
	}
}

// WriteFrameTo streams frame i to w in encoder stdin order: planar Y, U, V,
// 16-bit LE samples. 10-bit rows are unpacked and 8-bit rows promoted
// through scratch, which must hold at least ScratchBytes bytes; the scratch
// never exceeds two unpacked luma rows.
func (b *Buffer) WriteFrameTo(w io.Writer, i int, scratch []byte) error {
	y, u, v := b.planes(i)
	g := b.Geom

	if err := streamPlane(w, y, g.Width, g.Height, g.YStride, g.Format, scratch); err != nil {
		return err
	}
	if err := streamPlane(w, u, g.Width/2, g.Height/2, g.UVStride, g.Format, scratch); err != nil {
		return err
	}
	return streamPlane(w, v, g.Width/2, g.Height/2, g.UVStride, g.Format, scratch)
}

// ScratchBytes returns the scratch size WriteFrameTo and UnpackFrame need:
// two unpacked luma rows.
func (g Geometry) ScratchBytes() int {
	return 2 * g.Width * 2
}

func streamPlane(w io.Writer, plane []byte, width, height, stride int, f pixel.Format, scratch []byte) error {
	rowOut := width * 2
	for row := 0; row < height; row += 2 {
		rows := min(2, height-row)
		for r := 0; r < rows; r++ {
			src := plane[(row+r)*stride:]
			dst := scratch[r*rowOut : (r+1)*rowOut]
			if f == pixel.Format420P10 {
				pixel.Unpack10Row(src, dst, width)
			} else {
				pixel.Promote8(src[:width], dst)
			}
		}
		if _, err := w.Write(scratch[:rows*rowOut]); err != nil {
			return err
		}
	}
	return nil
}

// UnpackFrame materializes frame i as tightly packed planar 16-bit LE
// samples in dst, which must hold OutputFrameBytes. This is the on-demand
// derivation used as the metric reference; it is never persisted.
func (b *Buffer) UnpackFrame(i int, dst []byte) {
	y, u, v := b.planes(i)
	g := b.Geom

	ySize := g.Width * g.Height * 2
	uvSize := (g.Width / 2) * (g.Height / 2) * 2

	unpackPlane(dst[:ySize], y, g.Width, g.Height, g.YStride, g.Format)
	unpackPlane(dst[ySize:ySize+uvSize], u, g.Width/2, g.Height/2, g.UVStride, g.Format)
	unpackPlane(dst[ySize+uvSize:ySize+2*uvSize], v, g.Width/2, g.Height/2, g.UVStride, g.Format)
}

func unpackPlane(dst, src []byte, width, height, stride int, f pixel.Format) {
	rowOut := width * 2
	for row := 0; row < height; row++ {
		out := dst[row*rowOut : (row+1)*rowOut]
		if f == pixel.Format420P10 {
			pixel.Unpack10Row(src[row*stride:], out, width)
		} else {
			pixel.Promote8(src[row*stride:row*stride+width], out)
		}
	}
}
