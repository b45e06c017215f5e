package encoder

import (
	"fmt"
	"strings"
	"testing"
)

func i32(v int32) *int32 { return &v }

func baseParams() *Params {
	return &Params{
		Width:  1920,
		Height: 1080,
		FPSNum: 24000,
		FPSDen: 1001,
		CRF:    27.25,
		Output: "/w/encode/chunk_0.ivf.tmp",
	}
}

func TestBuildArgsFixedPortion(t *testing.T) {
	args := BuildArgs(baseParams())
	joined := strings.Join(args, " ")

	for _, want := range []string{
		"-i stdin",
		"--input-depth 10",
		"--width 1920",
		"--height 1080",
		"--fps-num 24000",
		"--fps-denom 1001",
		"--crf 27.25",
		"--keyint -1",
		"--rc 0",
		"--progress 3",
		"-b /w/encode/chunk_0.ivf.tmp",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("argv missing %q: %s", want, joined)
		}
	}
}

func TestBuildArgsColorPassthrough(t *testing.T) {
	p := baseParams()
	md := "G(0.265,0.690)B(0.150,0.060)R(0.680,0.320)WP(0.3127,0.3290)L(1000,0.0050)"
	p.Color = Colorimetry{
		Primaries:        i32(9),
		Transfer:         i32(16),
		Matrix:           i32(9),
		Range:            i32(1),
		MasteringDisplay: &md,
	}

	joined := strings.Join(BuildArgs(p), " ")
	for _, want := range []string{
		"--color-primaries 9",
		"--transfer-characteristics 16",
		"--matrix-coefficients 9",
		"--color-range 1",
		"--mastering-display " + md,
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("argv missing %q", want)
		}
	}
}

func TestBuildArgsOmitsUnsetColor(t *testing.T) {
	joined := strings.Join(BuildArgs(baseParams()), " ")
	for _, flag := range []string{"--color-primaries", "--matrix-coefficients", "--mastering-display"} {
		if strings.Contains(joined, flag) {
			t.Errorf("argv carries %q for undeclared colorimetry", flag)
		}
	}
}

func TestBuildArgsPassthroughVerbatim(t *testing.T) {
	p := baseParams()
	p.Passthrough = "--preset 4 --tune 0 --lp 3"

	args := BuildArgs(p)
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "--preset 4 --tune 0 --lp 3") {
		t.Errorf("user params not passed through: %s", joined)
	}

	// User params come after the fixed portion, before the output flag.
	if args[len(args)-2] != "-b" {
		t.Errorf("output flag not last: %v", args[len(args)-4:])
	}
}

func TestBuildArgsQuiet(t *testing.T) {
	p := baseParams()
	p.Quiet = true

	joined := strings.Join(BuildArgs(p), " ")
	if !strings.Contains(joined, "--progress 0") || !strings.Contains(joined, "--no-progress 1") {
		t.Errorf("quiet argv = %s", joined)
	}
}

func TestBuildArgsRPU(t *testing.T) {
	p := baseParams()
	p.RPUPath = "/w/rpu.bin"

	joined := strings.Join(BuildArgs(p), " ")
	if !strings.Contains(joined, "--dolby-vision-rpu /w/rpu.bin") {
		t.Errorf("RPU not attached: %s", joined)
	}
}

func TestParseProgress(t *testing.T) {
	tests := []struct {
		line string
		want Progress
		ok   bool
	}{
		{"frame 120/240 fps 43.2 avg 39.8", Progress{120, 240, 43.2, 39.8}, true},
		{"  frame 1/100 fps 0.5 avg 0.5  ", Progress{1, 100, 0.5, 0.5}, true},
		{"Svt[info]: SVT [version]: v2.3.0", Progress{}, false},
		{"frame x/y fps a avg b", Progress{}, false},
		{"", Progress{}, false},
	}

	for _, tt := range tests {
		got, ok := ParseProgress(tt.line)
		if ok != tt.ok {
			t.Errorf("ParseProgress(%q) ok = %v, want %v", tt.line, ok, tt.ok)
			continue
		}
		if ok && got != tt.want {
			t.Errorf("ParseProgress(%q) = %+v, want %+v", tt.line, got, tt.want)
		}
	}
}

func TestLineRingKeepsTail(t *testing.T) {
	r := newLineRing(4)
	for i := 0; i < 10; i++ {
		r.push(fmt.Sprintf("line %d", i))
	}

	tail := r.tail()
	for i := 6; i < 10; i++ {
		if !strings.Contains(tail, fmt.Sprintf("line %d", i)) {
			t.Errorf("tail missing line %d: %q", i, tail)
		}
	}
	if strings.Contains(tail, "line 5") {
		t.Errorf("tail retains evicted line: %q", tail)
	}

	// Oldest first.
	if !strings.HasPrefix(tail, "line 6") {
		t.Errorf("tail not oldest-first: %q", tail)
	}
}

func TestLineRingPartial(t *testing.T) {
	r := newLineRing(4)
	r.push("a")
	r.push("b")

	if got := r.tail(); got != "a\nb" {
		t.Errorf("tail = %q, want %q", got, "a\nb")
	}
}

func TestStderrSinkSplitsLines(t *testing.T) {
	var got []Progress
	ring := newLineRing(4)
	sink := newStderrSink(ring, func(p Progress) { got = append(got, p) })

	// Progress arrives \r-terminated and split across writes.
	_, _ = sink.Write([]byte("Svt[info]: startup\nframe 10/240 fps"))
	_, _ = sink.Write([]byte(" 40.0 avg 38.0\rframe 20/240 fps 41.0 avg 39.0\r"))

	if len(got) != 2 {
		t.Fatalf("parsed %d progress reports, want 2", len(got))
	}
	if got[0].Frame != 10 || got[1].Frame != 20 {
		t.Errorf("frames = %d, %d", got[0].Frame, got[1].Frame)
	}
	if !strings.Contains(ring.tail(), "startup") {
		t.Errorf("non-progress line not retained: %q", ring.tail())
	}
	if strings.Contains(ring.tail(), "frame 10/240") {
		t.Errorf("progress line leaked into the ring: %q", ring.tail())
	}
}
