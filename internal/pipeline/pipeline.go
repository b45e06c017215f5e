// Package pipeline owns the decode-to-encode data path: one decode thread
// filling packed chunk buffers, a bounded queue providing backpressure, a
// pool of encoder workers, and the completion registry assembly reads from.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/cleaveav/cleave/internal/chunk"
	"github.com/cleaveav/cleave/internal/encoder"
	"github.com/cleaveav/cleave/internal/errors"
	"github.com/cleaveav/cleave/internal/logging"
	"github.com/cleaveav/cleave/internal/pixel"
	"github.com/cleaveav/cleave/internal/tq"
	"github.com/cleaveav/cleave/internal/worker"
)

// Frame is one decoded frame's planes as tightly packed samples.
type Frame struct {
	Y, U, V []byte
}

// Source supplies frames to the decode thread. Only the decode thread
// calls Decode; the view is valid until the next call.
type Source interface {
	Decode(i int) (Frame, error)
}

// Scorer computes the perceptual score of a probe encode against the
// reference buffer, higher is better.
type Scorer interface {
	Score(buf *chunk.Buffer, distortedPath string) (float64, error)
	Close()
}

// EncodeFunc runs one encoder subprocess; it exists so tests can substitute
// the real encoder.
type EncodeFunc func(ctx context.Context, buf *chunk.Buffer, p *encoder.Params, progress func(encoder.Progress)) error

// Config configures one pipeline run.
type Config struct {
	// Workers is the encoder worker count and the bound W on in-flight
	// chunk buffers.
	Workers int

	// WorkDir is the per-input working directory.
	WorkDir string

	// Params is the encoder parameter template; CRF and Output are filled
	// per invocation.
	Params encoder.Params

	// CRF is the fixed quality used when TQ is nil.
	CRF float64

	// TQ enables the per-chunk target quality search.
	TQ *tq.Config

	// NewScorer builds one metric scorer per worker; required with TQ.
	NewScorer func() Scorer

	// Encode runs the encoder; defaults to encoder.Encode.
	Encode EncodeFunc

	// Resume skips chunks recorded in the work directory's done file.
	Resume bool

	// Format is the source pixel format.
	Format pixel.Format

	// OnProgress, when set, receives aggregate progress after each chunk.
	OnProgress func(worker.Progress)

	// OnEncodeProgress, when set, receives per-chunk encoder progress.
	OnEncodeProgress func(chunkID int, p encoder.Progress)
}

// Scheduler runs the pipeline for one input.
type Scheduler struct {
	cfg Config

	cancelled atomic.Bool
	cancel    context.CancelFunc

	progressMu sync.Mutex
	progress   worker.Progress
}

// New creates a scheduler. Worker count is clamped to at least 1.
func New(cfg Config) *Scheduler {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Encode == nil {
		cfg.Encode = encoder.Encode
	}
	return &Scheduler{cfg: cfg}
}

// abort flips the shared cancel flag; workers finish their current
// subprocess and exit, the decode thread drops its in-progress buffer.
func (s *Scheduler) abort() {
	if s.cancelled.CompareAndSwap(false, true) {
		s.cancel()
	}
}

// Run executes the plan and returns per-chunk results in id order. The plan
// is fully computed before this point; no encoder spawns earlier.
// An error is returned when the run was cancelled or any chunk failed.
func (s *Scheduler) Run(ctx context.Context, plan *chunk.Plan, src Source) ([]worker.Result, error) {
	if err := chunk.CreateWorkDir(s.cfg.WorkDir); err != nil {
		return nil, errors.NewIOError("creating work directory", err)
	}

	resume := &chunk.Resume{}
	if s.cfg.Resume {
		var err error
		if resume, err = chunk.GetResume(s.cfg.WorkDir); err != nil {
			return nil, errors.NewIOError("loading resume state", err)
		}
	}
	doneSet := resume.DoneSet()

	pending := make([]chunk.Chunk, 0, len(plan.Chunks))
	for _, c := range plan.Chunks {
		if !doneSet[c.ID] {
			pending = append(pending, c)
		}
	}

	s.progress = worker.Progress{
		ChunksTotal:    len(plan.Chunks),
		ChunksComplete: len(plan.Chunks) - len(pending),
		FramesTotal:    plan.TotalFrames(),
		FramesComplete: resume.TotalFrames(),
		BytesComplete:  resume.TotalSize(),
	}

	reg := newRegistry()
	for _, c := range plan.Chunks {
		if doneSet[c.ID] {
			reg.record(worker.Result{ChunkID: c.ID, Frames: c.Frames(), Path: chunk.IVFPath(s.cfg.WorkDir, c.ID)})
		}
	}

	if len(pending) == 0 {
		return reg.inOrder(len(plan.Chunks)), nil
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	defer cancel()

	geom := chunk.NewGeometry(int(plan.Width), int(plan.Height), s.cfg.Format)

	// Queue capacity and the buffer semaphore are both W: at most W chunk
	// buffers are alive at any moment. The decode thread blocks
	// on the semaphore, the sole backpressure mechanism.
	queue := make(chan *worker.Item, s.cfg.Workers)
	sem := worker.NewSemaphore(s.cfg.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runWorker(ctx, queue, sem, reg)
		}()
	}

	go s.runDecoder(ctx, pending, geom, src, queue, sem, reg)

	wg.Wait()

	results := reg.inOrder(len(plan.Chunks))
	return results, s.runError(results)
}

// runError derives the run's error from the collected results: a
// propagated worker error wins, then cancellation, then isolated encoder
// crashes.
func (s *Scheduler) runError(results []worker.Result) error {
	var firstFatal error
	var crashed []int
	cancelled := s.cancelled.Load()

	for _, r := range results {
		switch {
		case r.Err == nil:
		case errors.IsCancelled(r.Err):
			cancelled = true
		case errors.IsEncoderCrashed(r.Err):
			crashed = append(crashed, r.ChunkID)
		case firstFatal == nil:
			firstFatal = r.Err
		}
	}

	if firstFatal != nil {
		return firstFatal
	}
	if cancelled {
		return errors.NewCancelledError()
	}
	if len(crashed) > 0 {
		return errors.NewEncoderCrashedError(crashed[0], 0, fmt.Sprintf("%d chunk(s) failed: %v", len(crashed), crashed))
	}
	return nil
}

// runDecoder is the single producer: it decodes each pending chunk into a
// fresh packed buffer, in plan order, and hands it to the queue.
func (s *Scheduler) runDecoder(
	ctx context.Context,
	pending []chunk.Chunk,
	geom chunk.Geometry,
	src Source,
	queue chan<- *worker.Item,
	sem *worker.Semaphore,
	reg *registry,
) {
	defer close(queue)

	for _, c := range pending {
		select {
		case <-sem.Chan():
		case <-ctx.Done():
			return
		}

		buf := chunk.NewBuffer(c, geom)
		ok := true
		for i := 0; i < c.Frames(); i++ {
			// Cancellation is observed at every frame; the in-progress
			// buffer is dropped, not queued.
			if ctx.Err() != nil {
				buf.Release()
				sem.Release()
				return
			}

			frame, err := src.Decode(c.Start + i)
			if err != nil {
				buf.Release()
				sem.Release()
				reg.record(worker.Result{ChunkID: c.ID, Err: errors.NewDecodeError(
					fmt.Sprintf("chunk %d frame %d", c.ID, c.Start+i), err)})
				s.abort()
				ok = false
				break
			}
			buf.FillFrame(i, frame.Y, frame.U, frame.V)
		}
		if !ok {
			return
		}

		item := &worker.Item{Buf: buf}
		if s.cfg.TQ != nil {
			item.TQ = s.cfg.TQ.NewState()
		}

		select {
		case queue <- item:
		case <-ctx.Done():
			buf.Release()
			sem.Release()
			return
		}
	}
}

// runWorker consumes queued chunk buffers until the queue closes. Errors
// other than an encoder crash propagate by flipping the cancel flag; a
// crash fails only the owning chunk.
func (s *Scheduler) runWorker(ctx context.Context, queue <-chan *worker.Item, sem *worker.Semaphore, reg *registry) {
	var scorer Scorer
	if s.cfg.NewScorer != nil {
		scorer = s.cfg.NewScorer()
		defer scorer.Close()
	}

	for item := range queue {
		item.Buf.Retain()

		var res worker.Result
		if ctx.Err() != nil {
			res = worker.Result{ChunkID: item.Buf.Chunk.ID, Err: errors.NewCancelledError()}
		} else if item.TQ != nil {
			res = s.processTQ(ctx, item, scorer)
		} else {
			res = s.processFixed(ctx, item.Buf)
		}

		// Worker's reference first, then the creator's once the output is
		// committed; the last release frees the pixel data.
		item.Buf.Release()
		reg.record(res)
		item.Buf.Release()
		sem.Release()

		if res.Err != nil {
			s.preserveStderr(res)
			if !errors.IsEncoderCrashed(res.Err) && !errors.IsCancelled(res.Err) {
				s.abort()
			}
			continue
		}

		s.noteCompletion(res)
	}
}

// preserveStderr writes a failed chunk's captured stderr tail into the work
// directory for the post-run summary.
func (s *Scheduler) preserveStderr(res worker.Result) {
	detail, ok := errors.AsEncoderError(res.Err)
	if !ok || detail.StderrTail == "" {
		return
	}
	path := chunk.StderrTailPath(s.cfg.WorkDir, res.ChunkID)
	if err := os.WriteFile(path, []byte(detail.StderrTail+"\n"), 0o644); err != nil {
		logging.Warn("preserving encoder stderr failed", "chunk", res.ChunkID, "err", err)
	}
}

func (s *Scheduler) noteCompletion(res worker.Result) {
	_ = chunk.AppendDone(chunk.Completion{ID: res.ChunkID, Frames: res.Frames, Size: res.Size}, s.cfg.WorkDir)

	s.progressMu.Lock()
	s.progress.ChunksComplete++
	s.progress.FramesComplete += res.Frames
	s.progress.BytesComplete += res.Size
	p := s.progress
	s.progressMu.Unlock()

	if s.cfg.OnProgress != nil {
		s.cfg.OnProgress(p)
	}
}

// encodeParams builds the per-invocation encoder parameters.
func (s *Scheduler) encodeParams(crf float64, output string) *encoder.Params {
	p := s.cfg.Params
	p.CRF = crf
	p.Output = output
	return &p
}

// processFixed encodes one chunk at the configured CRF and commits the
// output under its final name.
func (s *Scheduler) processFixed(ctx context.Context, buf *chunk.Buffer) worker.Result {
	id := buf.Chunk.ID
	tmp := chunk.TempIVFPath(s.cfg.WorkDir, id)
	final := chunk.IVFPath(s.cfg.WorkDir, id)

	err := s.cfg.Encode(ctx, buf, s.encodeParams(s.cfg.CRF, tmp), s.progressSink(id))
	if err != nil {
		_ = os.Remove(tmp)
		return worker.Result{ChunkID: id, Err: err}
	}

	size, err := commit(tmp, final)
	if err != nil {
		return worker.Result{ChunkID: id, Err: err}
	}

	return worker.Result{
		ChunkID:  id,
		Frames:   buf.Chunk.Frames(),
		Size:     size,
		Path:     final,
		FinalCRF: s.cfg.CRF,
	}
}

func (s *Scheduler) progressSink(id int) func(encoder.Progress) {
	if s.cfg.OnEncodeProgress == nil {
		return nil
	}
	return func(p encoder.Progress) { s.cfg.OnEncodeProgress(id, p) }
}

// commit renames a finished temp file to its final name and returns
// its size.
func commit(tmp, final string) (uint64, error) {
	info, err := os.Stat(tmp)
	if err != nil {
		return 0, errors.NewIOError("statting encoded chunk", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return 0, errors.NewIOError("committing encoded chunk", err)
	}
	return uint64(info.Size()), nil
}
