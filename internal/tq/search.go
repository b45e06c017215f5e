package tq

import (
	"math"
	"sort"
)

// NextCRF advances to the next round and picks the CRF to probe. The round
// schedule is binary, binary, linear, natural cubic, PCHIP, Akima, binary;
// a method without enough candidates (or with degenerate abscissae) falls
// back to the binary midpoint. The pick is snapped to the grid, clamped to
// the interval, and nudged off already-probed points. Returns false when
// the interval holds no untried grid point, which ends the search as
// impossible.
func (s *State) NextCRF() (float64, bool) {
	s.Round++

	if s.Lo > s.Hi {
		return 0, false
	}

	var crf float64
	switch s.Round {
	case 1, 2, 7:
		crf = s.binary()
	case 3:
		crf = s.interpolated(s.linear)
	case 4:
		crf = s.interpolated(s.naturalCubic)
	case 5:
		crf = s.interpolated(s.pchip)
	case 6:
		crf = s.interpolated(s.akima)
	default:
		crf = s.binary()
	}

	crf = snapGrid(math.Min(math.Max(crf, s.Lo), s.Hi))
	return s.nudge(crf)
}

func (s *State) binary() float64 {
	return (s.Lo + s.Hi) / 2
}

// interpolated runs one interpolation method and falls back to binary.
func (s *State) interpolated(method func() *float64) float64 {
	if v := method(); v != nil {
		return *v
	}
	return s.binary()
}

// sortedByScore returns the probe points reordered as (score, crf) pairs
// with strictly increasing scores, the shape the interpolators consume.
// Returns nil when scores collide.
func (s *State) sortedByScore() (scores, crfs []float64) {
	n := len(s.Candidates)
	scores = make([]float64, n)
	crfs = make([]float64, n)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return s.Candidates[order[a]].Score < s.Candidates[order[b]].Score
	})
	for i, idx := range order {
		scores[i] = s.Candidates[idx].Score
		crfs[i] = s.Candidates[idx].CRF
	}
	for i := 0; i < n-1; i++ {
		if scores[i+1] <= scores[i] {
			return nil, nil
		}
	}
	return scores, crfs
}

func (s *State) linear() *float64 {
	scores, crfs := s.sortedByScore()
	if len(scores) < 2 {
		return nil
	}
	return Lerp([2]float64{scores[0], scores[1]}, [2]float64{crfs[0], crfs[1]}, s.Target())
}

func (s *State) naturalCubic() *float64 {
	scores, crfs := s.sortedByScore()
	if len(scores) < 3 {
		return nil
	}
	return NaturalCubic(scores, crfs, s.Target())
}

func (s *State) pchip() *float64 {
	scores, crfs := s.sortedByScore()
	if len(scores) < 3 {
		return nil
	}
	return PCHIP(scores, crfs, s.Target())
}

func (s *State) akima() *float64 {
	scores, crfs := s.sortedByScore()
	if len(scores) < 5 {
		return nil
	}
	return Akima(scores, crfs, s.Target())
}

// Observe records a completed probe and decides whether the search is done.
// A score inside the band is a hit. Otherwise the interval shrinks past the
// probe: scores above the band raise Lo, scores below lower Hi. A crossed
// interval is impossible; a full round budget is exhausted.
func (s *State) Observe(crf, score float64, size uint64) (Outcome, bool) {
	s.addCandidate(Candidate{CRF: crf, Score: score, Size: size})

	if score >= s.TargetLo && score <= s.TargetHi {
		return OutcomeHit, true
	}

	if score > s.TargetHi {
		s.Lo = crf + Step
	} else {
		s.Hi = crf - Step
	}

	if s.Lo > s.Hi {
		return OutcomeImpossible, true
	}
	if s.Round >= MaxRounds {
		return OutcomeExhausted, true
	}
	return 0, false
}

// ObserveFailure records an encoder crash during a probe round: the probe
// yields no candidate, and the interval floor is raised past the crashing
// CRF so the retry lands elsewhere. Returns true when the search cannot
// continue.
func (s *State) ObserveFailure(crf float64) (Outcome, bool) {
	s.Lo = crf + Step

	if s.Lo > s.Hi {
		return OutcomeImpossible, true
	}
	if s.Round >= MaxRounds {
		return OutcomeExhausted, true
	}
	return 0, false
}
