package tq

import (
	"math"
	"testing"
)

// runSearch drives a search to completion against a metric function,
// returning the outcome, the accepted candidate, and the probe count.
func runSearch(t *testing.T, s *State, metric func(crf float64) float64) (Outcome, Candidate, int) {
	t.Helper()

	rounds := 0
	for {
		crf, ok := s.NextCRF()
		if !ok {
			best, _ := s.Best()
			return OutcomeImpossible, best, rounds
		}
		rounds++

		score := metric(crf)
		outcome, done := s.Observe(crf, score, 0)
		if done {
			if outcome == OutcomeHit {
				return outcome, Candidate{CRF: crf, Score: score}, rounds
			}
			best, _ := s.Best()
			return outcome, best, rounds
		}
	}
}

func TestSearchConvergesByExtrapolation(t *testing.T) {
	// Metric score(c) = 10 - c/10 over [0, 70] targeting [9.49, 9.51]:
	// round 1 probes 35.0 (6.5, low), round 2 probes 17.5 (8.25, low),
	// round 3 linear-extrapolates to 5.0 which scores 9.5, a hit.
	s := NewState(9.49, 9.51, 0, 70)
	metric := func(crf float64) float64 { return 10 - crf/10 }

	var probed []float64
	outcome, best, rounds := runSearch(t, s, func(crf float64) float64 {
		probed = append(probed, crf)
		return metric(crf)
	})

	if outcome != OutcomeHit {
		t.Fatalf("outcome = %v, want hit", outcome)
	}
	if rounds != 3 {
		t.Fatalf("converged in %d rounds, want 3 (probes: %v)", rounds, probed)
	}

	want := []float64{35.0, 17.5, 5.0}
	for i, crf := range probed {
		if crf != want[i] {
			t.Errorf("round %d probed %.2f, want %.2f", i+1, crf, want[i])
		}
	}
	if best.CRF != 5.0 || best.Score != 9.5 {
		t.Errorf("accepted (%.2f, %.2f), want (5.00, 9.50)", best.CRF, best.Score)
	}
}

func TestSearchImpossibleBand(t *testing.T) {
	// Over [60, 70] the same metric tops out at 4.0; the band is
	// unreachable and the search must return (60.0, 4.0) as impossible.
	s := NewState(9.49, 9.51, 60, 70)

	outcome, best, _ := runSearch(t, s, func(crf float64) float64 { return 10 - crf/10 })

	if outcome != OutcomeImpossible {
		t.Fatalf("outcome = %v, want impossible", outcome)
	}
	if best.CRF != 60.0 || best.Score != 4.0 {
		t.Errorf("best = (%.2f, %.2f), want (60.00, 4.00)", best.CRF, best.Score)
	}
}

func TestSearchMonotoneHitWithinSixRounds(t *testing.T) {
	// For monotone-decreasing metrics with a reachable band, the
	// search hits in at most 6 rounds.
	metrics := []struct {
		name string
		f    func(float64) float64
	}{
		{"linear", func(c float64) float64 { return 95 - c }},
		{"steep", func(c float64) float64 { return 100 - 2.1*c }},
		{"convex", func(c float64) float64 { return 100 - c*c/40 }},
		{"gentle", func(c float64) float64 { return 90 - c/3 }},
	}

	for _, m := range metrics {
		s := NewState(69.5, 70.5, 0, 70)
		outcome, _, rounds := runSearch(t, s, m.f)
		if outcome != OutcomeHit {
			t.Errorf("%s: outcome = %v, want hit", m.name, outcome)
			continue
		}
		if rounds > 6 {
			t.Errorf("%s: hit took %d rounds, want <= 6", m.name, rounds)
		}
	}
}

func TestSearchGridAndBounds(t *testing.T) {
	// Every probed CRF lies on the quarter-unit grid inside [lo, hi],
	// and the interval only ever shrinks.
	s := NewState(79.9, 80.1, 11.3, 47.8) // bounds snap inward to [11.5, 47.75]

	if s.Lo != 11.5 || s.Hi != 47.75 {
		t.Fatalf("snapped bounds = [%.2f, %.2f]", s.Lo, s.Hi)
	}

	prevLo, prevHi := s.Lo, s.Hi
	metric := func(crf float64) float64 { return 100 - crf } // never in band
	for {
		crf, ok := s.NextCRF()
		if !ok {
			break
		}

		if crf < 11.5 || crf > 47.75 {
			t.Errorf("probe %.2f outside original interval", crf)
		}
		if math.Mod(crf*4, 1) != 0 {
			t.Errorf("probe %.2f off the 0.25 grid", crf)
		}

		_, done := s.Observe(crf, metric(crf), 0)

		if s.Lo < prevLo || s.Hi > prevHi {
			t.Errorf("interval grew: [%.2f, %.2f] -> [%.2f, %.2f]", prevLo, prevHi, s.Lo, s.Hi)
		}
		prevLo, prevHi = s.Lo, s.Hi

		if done {
			break
		}
	}
}

func TestSearchExhaustsAfterMaxRounds(t *testing.T) {
	// A flat metric never enters the band and never empties the interval
	// quickly; the search must stop at MaxRounds.
	s := NewState(50, 51, 0, 70)

	rounds := 0
	for {
		crf, ok := s.NextCRF()
		if !ok {
			t.Fatal("interval emptied unexpectedly")
		}
		rounds++
		// Alternate around the band so neither bound collapses fast.
		score := 49.0
		if int(crf*4)%2 == 0 {
			score = 52.0
		}
		outcome, done := s.Observe(crf, score, 0)
		if done {
			if rounds < MaxRounds && outcome == OutcomeExhausted {
				t.Errorf("exhausted after %d rounds", rounds)
			}
			if rounds > MaxRounds {
				t.Errorf("ran %d rounds, max is %d", rounds, MaxRounds)
			}
			return
		}
	}
}

func TestNudgeAvoidsDuplicates(t *testing.T) {
	s := NewState(50, 51, 10, 11)

	// Occupy the whole grid except one point.
	for _, crf := range []float64{10, 10.25, 10.5, 11} {
		s.addCandidate(Candidate{CRF: crf})
	}

	got, ok := s.nudge(10.5)
	if !ok || got != 10.75 {
		t.Fatalf("nudge(10.5) = %.2f, %v; want 10.75", got, ok)
	}

	s.addCandidate(Candidate{CRF: 10.75})
	if _, ok := s.nudge(10.5); ok {
		t.Fatal("nudge succeeded with no free grid point")
	}
}

func TestBestTieBreakPrefersHigherCRF(t *testing.T) {
	s := NewState(49, 51, 0, 70)
	s.addCandidate(Candidate{CRF: 20, Score: 52})
	s.addCandidate(Candidate{CRF: 30, Score: 48}) // same |diff| from 50

	best, ok := s.Best()
	if !ok {
		t.Fatal("expected a best candidate")
	}
	if best.CRF != 30 {
		t.Errorf("best CRF = %.2f, want 30 (higher CRF wins ties)", best.CRF)
	}
}

func TestObserveFailureRaisesFloor(t *testing.T) {
	s := NewState(50, 51, 10, 20)

	crf, ok := s.NextCRF()
	if !ok {
		t.Fatal("no first probe")
	}
	if crf != 15 {
		t.Fatalf("first probe %.2f, want 15", crf)
	}

	outcome, done := s.ObserveFailure(crf)
	if done {
		t.Fatalf("search ended early: %v", outcome)
	}
	if s.Lo != 15.25 {
		t.Errorf("Lo = %.2f, want 15.25", s.Lo)
	}
	if len(s.Candidates) != 0 {
		t.Error("crashed probe must not become a candidate")
	}
}
