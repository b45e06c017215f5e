// Package chunk provides the chunk plan data model: scene-aligned frame
// ranges, the packed per-chunk pixel buffer, and the plan/resume files
// persisted in the work directory.
package chunk

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/cleaveav/cleave/internal/errors"
)

// MaxChunkSeconds caps chunk length at ten seconds of video.
const MaxChunkSeconds = 10

// MaxChunkFramesCap is the absolute upper bound on chunk length in frames.
const MaxChunkFramesCap = 300

// Chunk is one scene-aligned frame range [Start, End) in the plan.
type Chunk struct {
	ID    int
	Start int
	End   int
	// Key marks a hard boundary: the cut came from the scene detector, so
	// the encoder is expected to open the chunk with a key frame.
	Key bool
}

// Frames returns the number of frames in the chunk.
func (c Chunk) Frames() int {
	return c.End - c.Start
}

// MinFrames returns the minimum chunk length in frames: one second of
// video, rounded half-up.
func MinFrames(fpsNum, fpsDen uint32) int {
	return int((fpsNum + fpsDen/2) / fpsDen)
}

// MaxFrames returns the maximum chunk length in frames: ten seconds of
// video rounded half-up, capped at 300.
func MaxFrames(fpsNum, fpsDen uint32) int {
	m := (fpsNum*MaxChunkSeconds + fpsDen/2) / fpsDen
	if m > MaxChunkFramesCap {
		m = MaxChunkFramesCap
	}
	return int(m)
}

// Plan is the complete ordered chunk list for one input, together with the
// probe results that bind the cached plan to that input.
type Plan struct {
	Chunks []Chunk
	Frames int
	FPSNum uint32
	FPSDen uint32
	Width  uint32
	Height uint32
}

// TotalFrames sums the frame counts of all chunks.
func (p *Plan) TotalFrames() int {
	total := 0
	for _, c := range p.Chunks {
		total += c.Frames()
	}
	return total
}

// Validate checks that the chunks are a contiguous non-overlapping cover of
// [0, Frames) and that every chunk except possibly the last has a length in
// [MinFrames, MaxFrames].
func (p *Plan) Validate() error {
	if len(p.Chunks) == 0 {
		return errors.NewPlanMismatchError("plan has no chunks")
	}

	minLen := MinFrames(p.FPSNum, p.FPSDen)
	maxLen := MaxFrames(p.FPSNum, p.FPSDen)

	next := 0
	for i, c := range p.Chunks {
		if c.ID != i {
			return errors.NewPlanMismatchError(fmt.Sprintf("chunk %d has id %d", i, c.ID))
		}
		if c.Start != next {
			return errors.NewPlanMismatchError(fmt.Sprintf("chunk %d starts at %d, expected %d", i, c.Start, next))
		}
		if c.End <= c.Start {
			return errors.NewPlanMismatchError(fmt.Sprintf("chunk %d is empty (%d-%d)", i, c.Start, c.End))
		}

		length := c.Frames()
		isLast := i == len(p.Chunks)-1
		if (!isLast && length < minLen) || length > maxLen {
			return errors.NewPlanMismatchError(fmt.Sprintf(
				"chunk %d (frames %d-%d) has invalid length %d: must be between %d and %d frames",
				i, c.Start, c.End, length, minLen, maxLen))
		}

		next = c.End
	}

	if next != p.Frames {
		return errors.NewPlanMismatchError(fmt.Sprintf("plan covers [0, %d), input has %d frames", next, p.Frames))
	}

	return nil
}

// SavePlan writes the plan to path. The first line binds the plan to the
// probed input; each following line is one "start end" pair, with hard
// boundaries marked by a trailing "k".
func SavePlan(p *Plan, path string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%d %d %d %d %d\n", p.Frames, p.FPSNum, p.FPSDen, p.Width, p.Height)
	for _, c := range p.Chunks {
		if c.Key {
			fmt.Fprintf(&b, "%d %d k\n", c.Start, c.End)
		} else {
			fmt.Fprintf(&b, "%d %d\n", c.Start, c.End)
		}
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return errors.NewIOError("writing scene plan", err)
	}
	return nil
}

// LoadPlan reads a cached plan from path and verifies its header against the
// probed input properties. A header mismatch is a PlanMismatch: the cache
// belongs to a different input and must not be reused.
func LoadPlan(path string, frames int, fpsNum, fpsDen, width, height uint32) (*Plan, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewIOError("opening scene plan", err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return nil, errors.NewPlanMismatchError("scene plan is empty")
	}

	var hFrames int
	var hNum, hDen, hW, hH uint32
	if _, err := fmt.Sscanf(scanner.Text(), "%d %d %d %d %d", &hFrames, &hNum, &hDen, &hW, &hH); err != nil {
		return nil, errors.NewPlanMismatchError("scene plan header is malformed")
	}
	if hFrames != frames || hNum != fpsNum || hDen != fpsDen || hW != width || hH != height {
		return nil, errors.NewPlanMismatchError(fmt.Sprintf(
			"cached plan is for %d frames %d/%d fps %dx%d, input is %d frames %d/%d fps %dx%d",
			hFrames, hNum, hDen, hW, hH, frames, fpsNum, fpsDen, width, height))
	}

	p := &Plan{Frames: frames, FPSNum: fpsNum, FPSDen: fpsDen, Width: width, Height: height}
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, errors.NewPlanMismatchError(fmt.Sprintf("malformed plan line %q", line))
		}
		var start, end int
		if _, err := fmt.Sscanf(fields[0]+" "+fields[1], "%d %d", &start, &end); err != nil {
			return nil, errors.NewPlanMismatchError(fmt.Sprintf("malformed plan line %q", line))
		}
		key := len(fields) > 2 && fields[2] == "k"
		p.Chunks = append(p.Chunks, Chunk{ID: len(p.Chunks), Start: start, End: end, Key: key})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.NewIOError("reading scene plan", err)
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
