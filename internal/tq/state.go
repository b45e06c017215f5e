// Package tq implements the per-chunk target quality search: an iterative
// CRF probe loop that converges on a perceptual score band using binary
// seeding, then increasingly rich interpolation over the collected probes.
package tq

import (
	"math"
	"sort"
)

// Step is the CRF grid granularity; every probe lands on a multiple of it.
const Step = 0.25

// MaxRounds is the number of probe rounds before the search gives up.
const MaxRounds = 7

// CRFFloor and CRFCeil bound the CRF scale.
const (
	CRFFloor = 0.0
	CRFCeil  = 70.0
)

// Outcome is the terminal state of a chunk's search.
type Outcome int

const (
	// OutcomeHit means a probe landed inside the target band.
	OutcomeHit Outcome = iota
	// OutcomeImpossible means the interval emptied before a hit.
	OutcomeImpossible
	// OutcomeExhausted means MaxRounds passed without a hit.
	OutcomeExhausted
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeHit:
		return "hit"
	case OutcomeImpossible:
		return "impossible"
	default:
		return "exhausted"
	}
}

// Candidate is one completed probe.
type Candidate struct {
	CRF   float64
	Score float64
	Size  uint64
}

// State tracks the search for a single chunk. Rounds are strictly
// sequential within one worker; State needs no locking.
type State struct {
	// Lo and Hi are the current search interval, shrunk monotonically.
	Lo, Hi float64

	// TargetLo and TargetHi are the acceptance band on the metric.
	TargetLo, TargetHi float64

	// Candidates holds completed probes ordered by CRF.
	Candidates []Candidate

	// Round counts issued probes, 1-indexed after the first NextCRF.
	Round int
}

// snapGrid rounds a CRF to the quarter-unit grid.
func snapGrid(crf float64) float64 {
	return math.Round(crf*4) / 4
}

// NewState creates a search over the user-allowed CRF range [lo, hi],
// snapped inward onto the grid, targeting the band [targetLo, targetHi].
func NewState(targetLo, targetHi, lo, hi float64) *State {
	lo = math.Max(lo, CRFFloor)
	hi = math.Min(hi, CRFCeil)
	return &State{
		Lo:       snapGrid(math.Ceil(lo/Step) * Step),
		Hi:       snapGrid(math.Floor(hi/Step) * Step),
		TargetLo: targetLo,
		TargetHi: targetHi,
	}
}

// Target is the midpoint of the acceptance band, the value interpolators
// aim for.
func (s *State) Target() float64 {
	return (s.TargetLo + s.TargetHi) / 2
}

// tried reports whether crf already has a candidate.
func (s *State) tried(crf float64) bool {
	for _, c := range s.Candidates {
		if c.CRF == crf {
			return true
		}
	}
	return false
}

// nudge resolves a duplicate pick to the nearest unused grid point inside
// [Lo, Hi], preferring the higher CRF on ties. Returns false when the
// interval holds no unused point.
func (s *State) nudge(crf float64) (float64, bool) {
	if crf >= s.Lo && crf <= s.Hi && !s.tried(crf) {
		return crf, true
	}

	steps := int(math.Round((s.Hi - s.Lo) / Step))
	for d := 1; d <= steps; d++ {
		up := crf + float64(d)*Step
		if up <= s.Hi && up >= s.Lo && !s.tried(up) {
			return up, true
		}
		down := crf - float64(d)*Step
		if down >= s.Lo && down <= s.Hi && !s.tried(down) {
			return down, true
		}
	}
	return 0, false
}

// addCandidate inserts a probe keeping Candidates ordered by CRF.
func (s *State) addCandidate(c Candidate) {
	i := sort.Search(len(s.Candidates), func(i int) bool {
		return s.Candidates[i].CRF >= c.CRF
	})
	s.Candidates = append(s.Candidates, Candidate{})
	copy(s.Candidates[i+1:], s.Candidates[i:])
	s.Candidates[i] = c
}

// Best returns the candidate whose score is closest to the band midpoint,
// preferring the higher CRF (smaller file) on ties. Returns false when no
// probe completed.
func (s *State) Best() (Candidate, bool) {
	if len(s.Candidates) == 0 {
		return Candidate{}, false
	}

	target := s.Target()
	best := s.Candidates[0]
	bestDiff := math.Abs(best.Score - target)
	for _, c := range s.Candidates[1:] {
		diff := math.Abs(c.Score - target)
		if diff < bestDiff || (diff == bestDiff && c.CRF > best.CRF) {
			best = c
			bestDiff = diff
		}
	}
	return best, true
}
