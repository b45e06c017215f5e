package encoder

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
)

// ringLines bounds the unrecognized stderr lines retained per subprocess.
const ringLines = 32

// Progress is one parsed encoder progress report.
type Progress struct {
	Frame int
	Total int
	FPS   float64
	Avg   float64
}

// ParseProgress parses a progress-3 stderr line of the form
// "frame <i>/<N> fps <inst> avg <avg>". Returns false for any other line.
func ParseProgress(line string) (Progress, bool) {
	var p Progress
	n, err := fmt.Sscanf(strings.TrimSpace(line), "frame %d/%d fps %f avg %f", &p.Frame, &p.Total, &p.FPS, &p.Avg)
	if err != nil || n != 4 {
		return Progress{}, false
	}
	return p, true
}

// lineRing keeps the most recent stderr lines for error reporting.
type lineRing struct {
	mu    sync.Mutex
	lines []string
	next  int
	full  bool
}

func newLineRing(n int) *lineRing {
	return &lineRing{lines: make([]string, n)}
}

func (r *lineRing) push(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines[r.next] = line
	r.next = (r.next + 1) % len(r.lines)
	if r.next == 0 {
		r.full = true
	}
}

// tail returns the retained lines, oldest first.
func (r *lineRing) tail() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []string
	if r.full {
		out = append(out, r.lines[r.next:]...)
	}
	out = append(out, r.lines[:r.next]...)
	return strings.Join(out, "\n")
}

// stderrSink splits the encoder's stderr into lines as they arrive,
// routing progress reports to the sink and retaining the rest.
type stderrSink struct {
	ring     *lineRing
	progress func(Progress)
	pending  []byte
}

func newStderrSink(ring *lineRing, progress func(Progress)) *stderrSink {
	return &stderrSink{ring: ring, progress: progress}
}

func (s *stderrSink) Write(p []byte) (int, error) {
	s.pending = append(s.pending, p...)

	for {
		i := bytes.IndexAny(s.pending, "\r\n")
		if i < 0 {
			break
		}
		s.consume(string(s.pending[:i]))
		s.pending = s.pending[i+1:]
	}
	return len(p), nil
}

func (s *stderrSink) consume(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	if prog, ok := ParseProgress(line); ok {
		if s.progress != nil {
			s.progress(prog)
		}
		return
	}
	s.ring.push(line)
}
