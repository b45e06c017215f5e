package metric

import (
	"math"
	"testing"
)

func TestAggregateMean(t *testing.T) {
	got := Aggregate([]float64{70, 80, 90}, 0)
	if got != 80 {
		t.Errorf("mean = %v, want 80", got)
	}
}

func TestAggregateWorstPercent(t *testing.T) {
	scores := []float64{90, 50, 80, 70, 60, 85, 75, 65, 95, 55}

	// Worst 20% of 10 frames = 2 frames: 50 and 55.
	got := Aggregate(scores, 20)
	if got != 52.5 {
		t.Errorf("p20 = %v, want 52.5", got)
	}

	// Worst 1% still takes at least one frame.
	got = Aggregate(scores, 1)
	if got != 50 {
		t.Errorf("p1 = %v, want 50", got)
	}
}

func TestAggregateEmpty(t *testing.T) {
	if got := Aggregate(nil, 0); !math.IsInf(got, -1) {
		t.Errorf("empty aggregate = %v, want -Inf", got)
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize([]float64{70, 80, 90, 100})

	if s.Mean != 85 {
		t.Errorf("mean = %v, want 85", s.Mean)
	}
	// Population stddev of {70,80,90,100} is sqrt(125).
	if math.Abs(s.Stddev-math.Sqrt(125)) > 1e-9 {
		t.Errorf("stddev = %v, want %v", s.Stddev, math.Sqrt(125))
	}
	if s.WorstMeans[25] != 70 {
		t.Errorf("worst 25%% = %v, want 70", s.WorstMeans[25])
	}
	if s.WorstMeans[1] != 70 {
		t.Errorf("worst 1%% = %v, want 70", s.WorstMeans[1])
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	if s.Mean != 0 || s.Stddev != 0 {
		t.Errorf("empty summary = %+v", s)
	}
}
