package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cleaveav/cleave/internal/chunk"
	"github.com/cleaveav/cleave/internal/errors"
	"github.com/cleaveav/cleave/internal/logging"
	"github.com/cleaveav/cleave/internal/tq"
	"github.com/cleaveav/cleave/internal/worker"
)

// processTQ runs the target quality search for one chunk: repeated probe
// encodes of the same buffer at CRFs chosen by the search, scored against
// the in-memory reference, until the search terminates. Rounds are strictly
// sequential; cancellation is observed at every round boundary.
func (s *Scheduler) processTQ(ctx context.Context, item *worker.Item, scorer Scorer) worker.Result {
	buf := item.Buf
	state := item.TQ
	id := buf.Chunk.ID

	for {
		if ctx.Err() != nil {
			s.cleanProbes(id)
			return worker.Result{ChunkID: id, Err: errors.NewCancelledError()}
		}

		crf, ok := state.NextCRF()
		if !ok {
			return s.finalizeTQ(state, buf, tq.OutcomeImpossible)
		}

		probePath := chunk.ProbePath(s.cfg.WorkDir, id, crf)
		err := s.cfg.Encode(ctx, buf, s.encodeParams(crf, probePath), s.progressSink(id))
		if err != nil {
			// A crashed probe in a non-final round is a failed experiment,
			// not a failed chunk: the floor moves past the crashing CRF
			// and the search continues.
			if errors.IsEncoderCrashed(err) && state.Round < tq.MaxRounds {
				logging.Warn("probe crashed, raising CRF floor", "chunk", id, "crf", crf)
				if outcome, done := state.ObserveFailure(crf); done {
					return s.finalizeTQ(state, buf, outcome)
				}
				continue
			}
			s.cleanProbes(id)
			return worker.Result{ChunkID: id, Err: err}
		}

		score, err := scorer.Score(buf, probePath)
		if err != nil {
			s.cleanProbes(id)
			return worker.Result{ChunkID: id, Err: err}
		}

		size, _ := fileSize(probePath)

		logging.Debug("probe scored", "chunk", id, "round", state.Round, "crf", crf, "score", score)

		if outcome, done := state.Observe(crf, score, size); done {
			return s.finalizeTQ(state, buf, outcome)
		}
	}
}

// finalizeTQ commits the accepted probe as the chunk's output and removes
// the remaining probe files.
func (s *Scheduler) finalizeTQ(state *tq.State, buf *chunk.Buffer, outcome tq.Outcome) worker.Result {
	id := buf.Chunk.ID

	best, ok := state.Best()
	if !ok {
		s.cleanProbes(id)
		return worker.Result{ChunkID: id, Err: errors.NewEncoderCrashedError(id, 0, "every probe crashed")}
	}

	tmp := chunk.TempIVFPath(s.cfg.WorkDir, id)
	final := chunk.IVFPath(s.cfg.WorkDir, id)

	if err := os.Rename(chunk.ProbePath(s.cfg.WorkDir, id, best.CRF), tmp); err != nil {
		s.cleanProbes(id)
		return worker.Result{ChunkID: id, Err: errors.NewIOError("staging accepted probe", err)}
	}
	s.cleanProbes(id)

	size, err := commit(tmp, final)
	if err != nil {
		return worker.Result{ChunkID: id, Err: err}
	}

	logging.Debug("chunk converged",
		"chunk", id, "crf", best.CRF, "score", best.Score, "outcome", outcome.String(), "rounds", state.Round)

	return worker.Result{
		ChunkID:    id,
		Frames:     buf.Chunk.Frames(),
		Size:       size,
		Path:       final,
		FinalCRF:   best.CRF,
		FinalScore: best.Score,
		Outcome:    outcome,
		Rounds:     state.Round,
	}
}

// cleanProbes removes a chunk's leftover probe encodes.
func (s *Scheduler) cleanProbes(id int) {
	pattern := filepath.Join(chunk.SplitDir(s.cfg.WorkDir), fmt.Sprintf("%04d_*.ivf", id))
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return
	}
	for _, m := range matches {
		_ = os.Remove(m)
	}
}

func fileSize(path string) (uint64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return uint64(info.Size()), nil
}
