// Package source wraps FFMS2 (via cgo) as the pipeline's frame source:
// open-by-path with lazy index construction, stream properties, color
// metadata, and indexed planar frame access.
package source

/*
#cgo pkg-config: ffms2
#include <ffms.h>
#include <stdlib.h>

#define ERR_BUF_SIZE 1024

static FFMS_ErrorInfo* create_error_info() {
	FFMS_ErrorInfo* err = (FFMS_ErrorInfo*)malloc(sizeof(FFMS_ErrorInfo));
	err->Buffer = (char*)malloc(ERR_BUF_SIZE);
	err->BufferSize = ERR_BUF_SIZE;
	err->Buffer[0] = '\0';
	return err;
}

static void free_error_info(FFMS_ErrorInfo* err) {
	if (err) {
		free(err->Buffer);
		free(err);
	}
}

static const char* get_error_message(FFMS_ErrorInfo* err) {
	return err->Buffer;
}
*/
import "C"

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/cleaveav/cleave/internal/errors"
	"github.com/cleaveav/cleave/internal/pixel"
)

var initOnce sync.Once

// Init initializes the FFMS2 library. Safe to call multiple times.
func Init() {
	initOnce.Do(func() {
		C.FFMS_Init(0, 0)
	})
}

// Color holds the probed colorimetry of the input. Fields are nil when the
// stream does not declare them.
type Color struct {
	Primaries            *int32
	Transfer             *int32
	Matrix               *int32
	Range                *int32
	ChromaSamplePosition *int32
	MasteringDisplay     *string
	ContentLight         *string
}

// Info contains the probed stream properties.
type Info struct {
	Width  uint32
	Height uint32
	FPSNum uint32
	FPSDen uint32
	Frames int
	Format pixel.Format
	Color  Color
	HasRPU bool
}

// Handle is an open input: index plus decoding source. Decode is
// single-writer; only the decode thread may call it. Construction and the
// read-only accessors may be shared.
type Handle struct {
	idx  *C.FFMS_Index
	src  *C.FFMS_VideoSource
	path string
	info Info

	// plane scratches reused across Decode calls.
	luma, chromaU, chromaV []byte
}

// FrameView exposes one decoded frame's planes as tightly packed samples
// (bytes for 8-bit, 16-bit LE words for 10-bit). The slices are valid until
// the next Decode call on the same handle.
type FrameView struct {
	Y, U, V []byte
}

// Pixel format constants from FFmpeg's AVPixelFormat that FFMS2 reports.
const (
	avPixFmtYUV420P     = 0
	avPixFmtYUV420P10LE = 62
)

// Open opens the input, builds the frame index, and probes stream
// properties. threads sets FFMS2's decoder thread count.
func Open(path string, threads int) (*Handle, error) {
	Init()

	errInfo := C.create_error_info()
	defer C.free_error_info(errInfo)

	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	indexer := C.FFMS_CreateIndexer(cPath, errInfo)
	if indexer == nil {
		return nil, errors.NewIOError(path, fmt.Errorf("%s", C.GoString(C.get_error_message(errInfo))))
	}

	C.FFMS_TrackIndexSettings(indexer, -1, 1, 0)

	idx := C.FFMS_DoIndexing2(indexer, C.int(0), errInfo)
	if idx == nil {
		return nil, errors.NewIndexBuildError(path, fmt.Errorf("%s", C.GoString(C.get_error_message(errInfo))))
	}

	h := &Handle{idx: idx, path: path}
	if err := h.open(threads, errInfo); err != nil {
		h.Close()
		return nil, err
	}
	return h, nil
}

func (h *Handle) open(threads int, errInfo *C.FFMS_ErrorInfo) error {
	trackNum := C.FFMS_GetFirstTrackOfType(h.idx, C.FFMS_TYPE_VIDEO, errInfo)
	if trackNum < 0 {
		return errors.NewUnsupportedFormatError("no video track found")
	}

	cPath := C.CString(h.path)
	defer C.free(unsafe.Pointer(cPath))

	src := C.FFMS_CreateVideoSource(cPath, C.int(trackNum), h.idx, C.int(threads), C.FFMS_SEEK_NORMAL, errInfo)
	if src == nil {
		return errors.NewIOError(h.path, fmt.Errorf("%s", C.GoString(C.get_error_message(errInfo))))
	}
	h.src = src

	props := C.FFMS_GetVideoProperties(src)
	if props == nil {
		return errors.NewUnsupportedFormatError("no video properties")
	}

	frame := C.FFMS_GetFrame(src, 0, errInfo)
	if frame == nil {
		return errors.NewDecodeError("probing first frame", fmt.Errorf("%s", C.GoString(C.get_error_message(errInfo))))
	}

	h.info = Info{
		Width:  uint32(frame.EncodedWidth),
		Height: uint32(frame.EncodedHeight),
		FPSNum: uint32(props.FPSNumerator),
		FPSDen: uint32(props.FPSDenominator),
		Frames: int(props.NumFrames),
	}

	switch int(frame.ConvertedPixelFormat) {
	case avPixFmtYUV420P:
		h.info.Format = pixel.Format420P8
	case avPixFmtYUV420P10LE:
		h.info.Format = pixel.Format420P10
	default:
		return errors.NewUnsupportedFormatError(fmt.Sprintf(
			"pixel format %d: only 8-bit and 10-bit 4:2:0 inputs are supported", int(frame.ConvertedPixelFormat)))
	}

	if frame.ColorPrimaries > 0 {
		cp := int32(frame.ColorPrimaries)
		h.info.Color.Primaries = &cp
	}
	// Note: the FFMS2 header spells it "TransferCharateristics".
	if frame.TransferCharateristics > 0 {
		tc := int32(frame.TransferCharateristics)
		h.info.Color.Transfer = &tc
	}
	if frame.ColorSpace > 0 {
		mc := int32(frame.ColorSpace)
		h.info.Color.Matrix = &mc
	}
	if frame.ColorRange > 0 {
		cr := int32(frame.ColorRange)
		h.info.Color.Range = &cr
	}
	if frame.ChromaLocation > 0 {
		csp := int32(frame.ChromaLocation)
		h.info.Color.ChromaSamplePosition = &csp
	}

	return nil
}

// Close releases the index and decoding source.
func (h *Handle) Close() {
	if h.src != nil {
		C.FFMS_DestroyVideoSource(h.src)
		h.src = nil
	}
	if h.idx != nil {
		C.FFMS_DestroyIndex(h.idx)
		h.idx = nil
	}
}

// Info returns the probed stream properties.
func (h *Handle) Info() Info { return h.info }

// Frames returns the total frame count.
func (h *Handle) Frames() int { return h.info.Frames }

// Rate returns the frame rate as a rational.
func (h *Handle) Rate() (num, den uint32) { return h.info.FPSNum, h.info.FPSDen }

// Size returns the frame dimensions.
func (h *Handle) Size() (w, hgt uint32) { return h.info.Width, h.info.Height }

// Format returns the pixel format.
func (h *Handle) Format() pixel.Format { return h.info.Format }

// RPURange returns the Dolby Vision RPU frame range for a chunk. RPU slicing
// is not implemented; the contiguous range is passed through as-is. No
// caller attaches RPU data to the encoder invocation.
func (h *Handle) RPURange(start, end int) (int, int) {
	return start, end
}

// Decode returns a view of frame i's planes. Successive calls with
// increasing i decode without seeking; the view is invalidated by the next
// Decode call. Only the decode thread may call this.
func (h *Handle) Decode(i int) (FrameView, error) {
	errInfo := C.create_error_info()
	defer C.free_error_info(errInfo)

	frame := C.FFMS_GetFrame(h.src, C.int(i), errInfo)
	if frame == nil {
		return FrameView{}, errors.NewDecodeError(
			fmt.Sprintf("frame %d", i), fmt.Errorf("%s", C.GoString(C.get_error_message(errInfo))))
	}

	w := int(h.info.Width)
	ht := int(h.info.Height)
	bps := h.info.Format.BytesPerSample()

	yRow := w * bps
	uvRow := w / 2 * bps

	y := tighten(unsafe.Pointer(frame.Data[0]), int(frame.Linesize[0]), yRow, ht, &h.luma)
	u := tighten(unsafe.Pointer(frame.Data[1]), int(frame.Linesize[1]), uvRow, ht/2, &h.chromaU)
	v := tighten(unsafe.Pointer(frame.Data[2]), int(frame.Linesize[2]), uvRow, ht/2, &h.chromaV)

	return FrameView{Y: y, U: u, V: v}, nil
}

// DecodeLuma returns frame i's luma plane only, for scene detection.
func (h *Handle) DecodeLuma(i int) ([]byte, error) {
	v, err := h.Decode(i)
	if err != nil {
		return nil, err
	}
	return v.Y, nil
}

// tighten copies a strided plane into the given reusable scratch buffer.
func tighten(data unsafe.Pointer, srcStride, rowBytes, rows int, scratch *[]byte) []byte {
	need := rowBytes * rows
	if cap(*scratch) < need {
		*scratch = make([]byte, need)
	}
	buf := (*scratch)[:need]
	copyRows(buf, data, srcStride, rowBytes, rows)
	return buf
}

func copyRows(dst []byte, data unsafe.Pointer, srcStride, rowBytes, rows int) {
	src := unsafe.Slice((*byte)(data), srcStride*rows)
	for r := 0; r < rows; r++ {
		copy(dst[r*rowBytes:(r+1)*rowBytes], src[r*srcStride:r*srcStride+rowBytes])
	}
}
