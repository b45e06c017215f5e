// Package metric scores a chunk's probe encode against the in-memory
// reference buffer using the GPU SSIMULACRA2 implementation.
package metric

import (
	"math"
	"sort"
	"unsafe"

	"github.com/cleaveav/cleave/internal/chunk"
	"github.com/cleaveav/cleave/internal/errors"
	"github.com/cleaveav/cleave/internal/source"
)

// Scorer computes a perceptual score for a distorted encode of a chunk,
// higher is better.
type Scorer interface {
	Score(buf *chunk.Buffer, distortedPath string) (float64, error)
	Close()
}

// processor is the slice of vship.Processor the scorer needs; tests
// substitute a fake.
type processor interface {
	Compute(srcPlanes, disPlanes [3]unsafe.Pointer, srcStrides, disStrides [3]int64) (float64, error)
	Close() error
}

// VshipScorer scores probes with libvship, decoding the probe through its
// own FFMS2 handle. One scorer per worker; Score is not concurrency-safe.
type VshipScorer struct {
	color source.Color

	// WorstPercent, when non-zero, aggregates as the mean of the worst N
	// percent of frame scores instead of the global mean.
	WorstPercent int

	proc    processor
	newProc func(w, h uint32, color source.Color) (processor, error)
	width   uint32
	height  uint32

	ref []byte // reusable reference frame scratch
}

// NewVshipScorer creates a scorer for probes of one input.
func NewVshipScorer(color source.Color, worstPercent int) *VshipScorer {
	return &VshipScorer{
		color:        color,
		WorstPercent: worstPercent,
		newProc:      newVshipProcessor,
	}
}

// Close releases the GPU handler.
func (s *VshipScorer) Close() {
	if s.proc != nil {
		_ = s.proc.Close()
		s.proc = nil
	}
}

// Score decodes the probe at distortedPath and returns the aggregate
// SSIMULACRA2 score against the chunk buffer's frames.
func (s *VshipScorer) Score(buf *chunk.Buffer, distortedPath string) (float64, error) {
	g := buf.Geom
	w, h := uint32(g.Width), uint32(g.Height)

	if s.proc == nil || s.width != w || s.height != h {
		s.Close()
		proc, err := s.newProc(w, h, s.color)
		if err != nil {
			return 0, errors.NewMetricFailedError("initializing SSIMULACRA2", err)
		}
		s.proc = proc
		s.width, s.height = w, h
	}

	probe, err := source.Open(distortedPath, 1)
	if err != nil {
		return 0, errors.NewMetricFailedError("indexing probe encode", err)
	}
	defer probe.Close()

	frames := buf.Chunk.Frames()
	if probe.Frames() < frames {
		return 0, errors.NewMetricFailedError("probe encode is short", nil)
	}

	if cap(s.ref) < g.OutputFrameBytes() {
		s.ref = make([]byte, g.OutputFrameBytes())
	}
	ref := s.ref[:g.OutputFrameBytes()]

	ySize := g.Width * g.Height * 2
	uvSize := (g.Width / 2) * (g.Height / 2) * 2
	refStrides := [3]int64{int64(g.Width) * 2, int64(g.Width), int64(g.Width)}

	scores := make([]float64, frames)
	for i := 0; i < frames; i++ {
		buf.UnpackFrame(i, ref)
		refPlanes := [3]unsafe.Pointer{
			unsafe.Pointer(&ref[0]),
			unsafe.Pointer(&ref[ySize]),
			unsafe.Pointer(&ref[ySize+uvSize]),
		}

		view, err := probe.Decode(i)
		if err != nil {
			return 0, errors.NewMetricFailedError("decoding probe frame", err)
		}
		bps := probe.Format().BytesPerSample()
		disPlanes := [3]unsafe.Pointer{
			unsafe.Pointer(&view.Y[0]),
			unsafe.Pointer(&view.U[0]),
			unsafe.Pointer(&view.V[0]),
		}
		disStrides := [3]int64{
			int64(g.Width * bps),
			int64(g.Width / 2 * bps),
			int64(g.Width / 2 * bps),
		}

		score, err := s.proc.Compute(refPlanes, disPlanes, refStrides, disStrides)
		if err != nil {
			return 0, errors.NewMetricFailedError("computing frame score", err)
		}
		scores[i] = score
	}

	return Aggregate(scores, s.WorstPercent), nil
}

// Aggregate reduces per-frame scores to the chunk score: the mean, or for
// worstPercent > 0 the mean of the worst N percent of frames.
func Aggregate(scores []float64, worstPercent int) float64 {
	if len(scores) == 0 {
		return math.Inf(-1)
	}

	if worstPercent > 0 {
		sorted := make([]float64, len(scores))
		copy(sorted, scores)
		sort.Float64s(sorted)

		n := int(math.Ceil(float64(len(sorted)) * float64(worstPercent) / 100.0))
		n = min(max(n, 1), len(sorted))
		sorted = sorted[:n]
		scores = sorted
	}

	var total float64
	for _, s := range scores {
		total += s
	}
	return total / float64(len(scores))
}

// Summary holds the distribution statistics reported after a target
// quality run.
type Summary struct {
	Mean   float64
	Stddev float64
	// WorstMeans maps percentiles (25, 10, 5, 1) to the mean of that
	// worst slice of chunk scores.
	WorstMeans map[int]float64
}

// Summarize computes the score distribution across all completed chunks.
func Summarize(scores []float64) Summary {
	s := Summary{WorstMeans: make(map[int]float64)}
	if len(scores) == 0 {
		return s
	}

	sorted := make([]float64, len(scores))
	copy(sorted, scores)
	sort.Float64s(sorted)

	var total float64
	for _, v := range sorted {
		total += v
	}
	s.Mean = total / float64(len(sorted))

	var sq float64
	for _, v := range sorted {
		d := v - s.Mean
		sq += d * d
	}
	s.Stddev = math.Sqrt(sq / float64(len(sorted)))

	for _, p := range []int{25, 10, 5, 1} {
		n := int(math.Ceil(float64(len(sorted)) * float64(p) / 100.0))
		n = min(max(n, 1), len(sorted))
		var t float64
		for _, v := range sorted[:n] {
			t += v
		}
		s.WorstMeans[p] = t / float64(n)
	}

	return s
}
