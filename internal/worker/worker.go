// Package worker provides the shared types passed between the pipeline's
// decode thread, encoder workers, and the completion registry.
package worker

import (
	"github.com/cleaveav/cleave/internal/chunk"
	"github.com/cleaveav/cleave/internal/tq"
)

// Item is one unit of work: a filled chunk buffer, plus the search state
// when target quality is active.
type Item struct {
	Buf *chunk.Buffer
	TQ  *tq.State
}

// Result is the terminal report for one chunk.
type Result struct {
	ChunkID int
	Frames  int
	Size    uint64
	Path    string

	// FinalCRF, FinalScore, Outcome and Rounds are set by TQ runs.
	FinalCRF   float64
	FinalScore float64
	Outcome    tq.Outcome
	Rounds     int

	Err error
}

// Progress is the aggregate pipeline progress surfaced to reporters.
type Progress struct {
	ChunksComplete int
	ChunksTotal    int
	FramesComplete int
	FramesTotal    int
	BytesComplete  uint64
}

// Percent returns the completion percentage by frames.
func (p Progress) Percent() float64 {
	if p.FramesTotal == 0 {
		return 0
	}
	return float64(p.FramesComplete) / float64(p.FramesTotal) * 100
}

// Semaphore is a counting semaphore bounding the number of chunk buffers
// alive at once.
type Semaphore struct {
	permits chan struct{}
}

// NewSemaphore creates a semaphore with the given number of permits.
func NewSemaphore(count int) *Semaphore {
	if count <= 0 {
		count = 1
	}
	s := &Semaphore{
		permits: make(chan struct{}, count),
	}
	for i := 0; i < count; i++ {
		s.permits <- struct{}{}
	}
	return s
}

// Release returns a permit to the semaphore.
func (s *Semaphore) Release() {
	select {
	case s.permits <- struct{}{}:
	default:
	}
}

// Chan returns the permit channel for context-aware acquisition.
func (s *Semaphore) Chan() <-chan struct{} {
	return s.permits
}
