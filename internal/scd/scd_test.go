package scd

import (
	"path/filepath"
	"testing"

	"github.com/cleaveav/cleave/internal/chunk"
	"github.com/cleaveav/cleave/internal/pixel"
)

// flatReader serves synthetic 8-bit frames with a constant luma level per
// frame, taken from levels[i].
type flatReader struct {
	w, h   int
	levels []byte
	buf    []byte
}

func (r *flatReader) DecodeLuma(i int) ([]byte, error) {
	if r.buf == nil {
		r.buf = make([]byte, r.w*r.h)
	}
	level := r.levels[i]
	for j := range r.buf {
		r.buf[j] = level
	}
	return r.buf, nil
}

func levelsWithCuts(frames int, cuts map[int]bool) []byte {
	levels := make([]byte, frames)
	level := byte(40)
	for i := 0; i < frames; i++ {
		if cuts[i] {
			// Jump far past the detector threshold.
			level += 120
		}
		levels[i] = level
	}
	return levels
}

func planner(frames, w, h int, num, den uint32) *Planner {
	return &Planner{
		Frames: frames,
		FPSNum: num,
		FPSDen: den,
		Width:  uint32(w),
		Height: uint32(h),
		Format: pixel.Format420P8,
	}
}

func TestBuildPlanSingleHardCut(t *testing.T) {
	// 1000 frames at 24000/1001 with one hard cut at frame 400. The first
	// run splits at 240 (max length), the cut lands at 400, and the
	// remainder splits at the maximum again.
	const frames = 1000
	r := &flatReader{w: 64, h: 36, levels: levelsWithCuts(frames, map[int]bool{400: true})}

	plan, err := planner(frames, 64, 36, 24000, 1001).BuildPlan(r)
	if err != nil {
		t.Fatal(err)
	}
	if err := plan.Validate(); err != nil {
		t.Fatalf("plan invalid: %v", err)
	}

	// A boundary must land exactly on the cut, flagged hard.
	foundCut := false
	for _, c := range plan.Chunks {
		if c.Start == 400 {
			foundCut = true
			if !c.Key {
				t.Error("chunk at cut frame 400 not marked as hard boundary")
			}
		}
	}
	if !foundCut {
		t.Error("no chunk boundary at the scene cut")
	}

	maxLen := chunk.MaxFrames(24000, 1001)
	for i, c := range plan.Chunks {
		if c.Frames() > maxLen {
			t.Errorf("chunk %d length %d exceeds max %d", i, c.Frames(), maxLen)
		}
	}
}

func TestBuildPlanShortSceneCut(t *testing.T) {
	// A cut at frame 100 (>= fps_min of 24) must produce chunks
	// [0,100) and onward from 100.
	const frames = 200
	r := &flatReader{w: 64, h: 36, levels: levelsWithCuts(frames, map[int]bool{100: true})}

	plan, err := planner(frames, 64, 36, 24000, 1001).BuildPlan(r)
	if err != nil {
		t.Fatal(err)
	}

	want := []chunk.Chunk{
		{ID: 0, Start: 0, End: 100, Key: true},
		{ID: 1, Start: 100, End: 200, Key: true},
	}
	if len(plan.Chunks) != len(want) {
		t.Fatalf("got %d chunks %v, want %d", len(plan.Chunks), plan.Chunks, len(want))
	}
	for i, c := range plan.Chunks {
		if c != want[i] {
			t.Errorf("chunk %d = %+v, want %+v", i, c, want[i])
		}
	}
}

func TestBuildPlanCutBelowMinIsDeferred(t *testing.T) {
	// A scene change 10 frames in must not cut: minimum spacing is 24.
	const frames = 60
	r := &flatReader{w: 64, h: 36, levels: levelsWithCuts(frames, map[int]bool{10: true})}

	plan, err := planner(frames, 64, 36, 24000, 1001).BuildPlan(r)
	if err != nil {
		t.Fatal(err)
	}

	if len(plan.Chunks) != 1 {
		t.Fatalf("got %d chunks, want 1 (cut below min spacing)", len(plan.Chunks))
	}
}

func TestBuildPlanNoCutsMaxLength(t *testing.T) {
	// 18100 frames at 60000/1001 with no cuts: all chunks of length 300
	// (fps_max) except a final chunk of 100.
	const frames = 18100
	r := &flatReader{w: 16, h: 16, levels: levelsWithCuts(frames, nil)}

	plan, err := planner(frames, 16, 16, 60000, 1001).BuildPlan(r)
	if err != nil {
		t.Fatal(err)
	}
	if err := plan.Validate(); err != nil {
		t.Fatalf("plan invalid: %v", err)
	}

	if len(plan.Chunks) != 61 {
		t.Fatalf("got %d chunks, want 61", len(plan.Chunks))
	}
	for i, c := range plan.Chunks[:60] {
		if c.Frames() != 300 {
			t.Errorf("chunk %d length %d, want 300", i, c.Frames())
		}
		if i > 0 && c.Key {
			t.Errorf("chunk %d from max-length split marked hard", i)
		}
	}
	if last := plan.Chunks[60]; last.Frames() != 100 {
		t.Errorf("final chunk length %d, want 100", last.Frames())
	}
}

func TestPlanDeterministic(t *testing.T) {
	const frames = 700
	cuts := map[int]bool{120: true, 333: true, 500: true}

	build := func() *chunk.Plan {
		r := &flatReader{w: 64, h: 36, levels: levelsWithCuts(frames, cuts)}
		plan, err := planner(frames, 64, 36, 25, 1).BuildPlan(r)
		if err != nil {
			t.Fatal(err)
		}
		return plan
	}

	a, b := build(), build()
	if len(a.Chunks) != len(b.Chunks) {
		t.Fatal("plans differ in length between runs")
	}
	for i := range a.Chunks {
		if a.Chunks[i] != b.Chunks[i] {
			t.Errorf("chunk %d differs: %+v vs %+v", i, a.Chunks[i], b.Chunks[i])
		}
	}
}

func TestLoadOrBuildUsesCache(t *testing.T) {
	const frames = 200
	dir := t.TempDir()
	planPath := filepath.Join(dir, "scd_input.txt")

	p := planner(frames, 64, 36, 25, 1)
	r := &flatReader{w: 64, h: 36, levels: levelsWithCuts(frames, map[int]bool{100: true})}

	first, err := p.LoadOrBuild(r, planPath)
	if err != nil {
		t.Fatal(err)
	}

	// Second load must hit the cache and reproduce the plan exactly;
	// the reader would now yield different frames, proving it is unused.
	r2 := &flatReader{w: 64, h: 36, levels: levelsWithCuts(frames, nil)}
	second, err := p.LoadOrBuild(r2, planPath)
	if err != nil {
		t.Fatal(err)
	}

	if len(first.Chunks) != len(second.Chunks) {
		t.Fatal("cached plan differs")
	}
	for i := range first.Chunks {
		if first.Chunks[i] != second.Chunks[i] {
			t.Errorf("chunk %d differs after cache reload", i)
		}
	}
}
