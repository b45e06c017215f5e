// Package scd builds the chunk plan: a single forward pass over the input
// assigning scene-aligned boundaries constrained by the frame-rate-derived
// minimum and maximum chunk lengths.
package scd

import (
	"github.com/cleaveav/cleave/internal/chunk"
	"github.com/cleaveav/cleave/internal/errors"
	"github.com/cleaveav/cleave/internal/logging"
	"github.com/cleaveav/cleave/internal/pixel"
	"github.com/cleaveav/cleave/internal/util"
)

// LumaReader supplies luma planes by frame index. Successive calls with
// increasing indices must be cheap; the planner never seeks backwards.
type LumaReader interface {
	// DecodeLuma returns the luma plane of frame i as tightly packed
	// samples (bytes for 8-bit, 16-bit LE words for 10-bit). The returned
	// slice is only valid until the next call.
	DecodeLuma(i int) ([]byte, error)
}

// Planner runs scene change detection over one input.
type Planner struct {
	Frames int
	FPSNum uint32
	FPSDen uint32
	Width  uint32
	Height uint32
	Format pixel.Format

	// Progress, when set, is called with the current frame index.
	Progress func(frame, total int)
}

// signalGrid bounds the number of luma samples the detector reads per
// frame; full-plane comparison buys nothing at this threshold.
const signalGrid = 4096

// cutThreshold is the normalized mean absolute luma delta above which a
// frame starts a new scene.
const cutThreshold = 0.12

// signature is the decimated luma sample vector the detector compares
// between consecutive frames.
type signature []uint16

func (p *Planner) sampleStep() int {
	total := int(p.Width) * int(p.Height)
	step := total / signalGrid
	if step < 1 {
		step = 1
	}
	return step
}

func (p *Planner) signatureOf(luma []byte, sig signature) signature {
	step := p.sampleStep()
	sig = sig[:0]

	if p.Format == pixel.Format420P10 {
		samples := len(luma) / 2
		for i := 0; i < samples; i += step {
			sig = append(sig, uint16(luma[i*2])|uint16(luma[i*2+1])<<8)
		}
		return sig
	}
	for i := 0; i < len(luma); i += step {
		sig = append(sig, uint16(luma[i]))
	}
	return sig
}

// cut reports whether the delta between two signatures crosses the scene
// threshold. Both signatures have equal length by construction.
func (p *Planner) cut(prev, cur signature) bool {
	if len(prev) == 0 || len(prev) != len(cur) {
		return false
	}

	var total uint64
	for i := range cur {
		d := int32(cur[i]) - int32(prev[i])
		if d < 0 {
			d = -d
		}
		total += uint64(d)
	}

	maxSample := 255.0
	if p.Format == pixel.Format420P10 {
		maxSample = 1023.0
	}
	mean := float64(total) / float64(len(cur))
	return mean/maxSample > cutThreshold
}

// BuildPlan runs the single-pass detection and returns the chunk plan.
// A cut is emitted at frame i when the scene signal fires and the running
// chunk has reached the minimum length, or unconditionally when it has
// reached the maximum; the final chunk may be arbitrarily short.
func (p *Planner) BuildPlan(r LumaReader) (*chunk.Plan, error) {
	minLen := chunk.MinFrames(p.FPSNum, p.FPSDen)
	maxLen := chunk.MaxFrames(p.FPSNum, p.FPSDen)

	plan := &chunk.Plan{
		Frames: p.Frames,
		FPSNum: p.FPSNum,
		FPSDen: p.FPSDen,
		Width:  p.Width,
		Height: p.Height,
	}

	luma, err := r.DecodeLuma(0)
	if err != nil {
		return nil, errors.NewDecodeError("decoding frame 0", err)
	}

	prev := p.signatureOf(luma, nil)
	cur := make(signature, 0, len(prev))

	runStart := 0
	runKey := true // frame 0 opens the stream; the encoder keys it regardless

	emit := func(end int, key bool) {
		plan.Chunks = append(plan.Chunks, chunk.Chunk{
			ID:    len(plan.Chunks),
			Start: runStart,
			End:   end,
			Key:   runKey,
		})
		runStart = end
		runKey = key
	}

	for i := 1; i < p.Frames; i++ {
		if luma, err = r.DecodeLuma(i); err != nil {
			return nil, errors.NewDecodeError("decoding frame during scene detection", err)
		}
		cur = p.signatureOf(luma, cur)

		length := i - runStart
		switch {
		case p.cut(prev, cur) && length >= minLen:
			emit(i, true)
		case length == maxLen:
			emit(i, false)
		}

		prev, cur = cur, prev

		if p.Progress != nil {
			p.Progress(i, p.Frames)
		}
	}

	emit(p.Frames, false)
	return plan, nil
}

// LoadOrBuild returns the cached plan when a valid one exists for this
// input, otherwise runs detection and persists the result. The cache header
// binds the plan to (frames, rate, dimensions); a stale cache rebuilds.
func (p *Planner) LoadOrBuild(r LumaReader, planPath string) (*chunk.Plan, error) {
	if util.FileExists(planPath) {
		plan, err := chunk.LoadPlan(planPath, p.Frames, p.FPSNum, p.FPSDen, p.Width, p.Height)
		if err == nil {
			logging.Debug("using cached scene plan", "path", planPath, "chunks", len(plan.Chunks))
			return plan, nil
		}
		logging.Warn("ignoring stale scene plan", "path", planPath, "err", err)
	}

	plan, err := p.BuildPlan(r)
	if err != nil {
		return nil, err
	}
	if err := chunk.SavePlan(plan, planPath); err != nil {
		return nil, err
	}
	return plan, nil
}
