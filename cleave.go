// Package cleave encodes a video into AV1 by splitting it at scene changes
// and feeding the chunks to parallel SVT-AV1 encoder processes over pipes.
// The input is decoded exactly once; chunk pixel data is held in compact
// packed buffers whose lifetime bounds peak memory. An optional per-chunk
// target quality search converges each chunk's CRF onto a SSIMULACRA2
// score band.
//
// Basic usage:
//
//	cfg := cleave.NewConfig("input.mkv", "output.mkv")
//	cfg.TargetQuality = "74-76"
//	err := cleave.Run(context.Background(), cfg, nil)
package cleave

import (
	"context"
	"fmt"
	"time"

	"github.com/cleaveav/cleave/internal/chunk"
	"github.com/cleaveav/cleave/internal/config"
	"github.com/cleaveav/cleave/internal/encoder"
	"github.com/cleaveav/cleave/internal/errors"
	"github.com/cleaveav/cleave/internal/logging"
	"github.com/cleaveav/cleave/internal/metric"
	"github.com/cleaveav/cleave/internal/mux"
	"github.com/cleaveav/cleave/internal/pipeline"
	"github.com/cleaveav/cleave/internal/reporter"
	"github.com/cleaveav/cleave/internal/scd"
	"github.com/cleaveav/cleave/internal/source"
	"github.com/cleaveav/cleave/internal/tq"
	"github.com/cleaveav/cleave/internal/util"
	"github.com/cleaveav/cleave/internal/worker"
)

// Config is re-exported for callers.
type Config = config.Config

// NewConfig creates a Config with defaults applied.
func NewConfig(input, output string) *Config {
	return config.NewConfig(input, output)
}

// sourceAdapter bridges the FFMS2 handle into the pipeline's Source.
type sourceAdapter struct {
	h *source.Handle
}

func (a sourceAdapter) Decode(i int) (pipeline.Frame, error) {
	view, err := a.h.Decode(i)
	if err != nil {
		return pipeline.Frame{}, err
	}
	return pipeline.Frame{Y: view.Y, U: view.U, V: view.V}, nil
}

// Run executes one encode end to end: probe, plan, parallel chunk encode,
// assembly. A nil reporter discards progress.
func Run(ctx context.Context, cfg *Config, rep reporter.Reporter) error {
	if rep == nil {
		rep = reporter.NullReporter{}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	rep.StageProgress(reporter.StageProgress{Stage: "Indexing", Message: cfg.Input})
	src, err := source.Open(cfg.Input, util.LogicalCores())
	if err != nil {
		return err
	}
	defer src.Close()

	info := src.Info()
	logging.Info("input probed",
		"frames", info.Frames, "fps", fmt.Sprintf("%d/%d", info.FPSNum, info.FPSDen),
		"size", fmt.Sprintf("%dx%d", info.Width, info.Height), "format", info.Format.String())

	plan, err := buildPlan(cfg, src, rep)
	if err != nil {
		return err
	}

	workDir := chunk.WorkDirPath(cfg.Input, cfg.TempDir)
	if !cfg.Resume {
		if err := chunk.CleanupWorkDir(workDir); err != nil {
			return errors.NewIOError("clearing stale work directory", err)
		}
	}
	if err := chunk.CreateWorkDir(workDir); err != nil {
		return errors.NewIOError("creating work directory", err)
	}

	pcfg, tqCfg, err := pipelineConfig(cfg, src, plan, workDir, rep)
	if err != nil {
		return err
	}

	rep.StageProgress(reporter.StageProgress{
		Stage:   "Encoding",
		Message: fmt.Sprintf("%d chunks, %d workers", len(plan.Chunks), pcfg.Workers),
	})
	rep.EncodingStarted(uint64(plan.TotalFrames()))

	start := time.Now()
	results, runErr := pipeline.New(*pcfg).Run(ctx, plan, sourceAdapter{src})
	if runErr != nil {
		reportFailure(rep, results, runErr, workDir)
		return runErr
	}

	rep.StageProgress(reporter.StageProgress{Stage: "Merging", Message: cfg.Output})
	if err := mux.Assemble(results, &mux.Config{
		Output: cfg.Output,
		FPSNum: info.FPSNum,
		FPSDen: info.FPSDen,
	}); err != nil {
		return err
	}

	if tqCfg != nil {
		reportQuality(rep, results)
	}

	elapsed := time.Since(start)
	inSize, _ := util.GetFileSize(cfg.Input)
	outSize, _ := util.GetFileSize(cfg.Output)
	rep.EncodingComplete(reporter.EncodingOutcome{
		OutputFile:   cfg.Output,
		OriginalSize: inSize,
		EncodedSize:  outSize,
		Duration:     elapsed,
		Speed:        float64(plan.TotalFrames()) / elapsed.Seconds(),
	})

	return chunk.CleanupWorkDir(workDir)
}

// buildPlan loads the cached scene plan or runs detection.
func buildPlan(cfg *Config, src *source.Handle, rep reporter.Reporter) (*chunk.Plan, error) {
	info := src.Info()

	planPath := cfg.SceneFile
	if planPath == "" {
		planPath = chunk.ScenePlanPath(cfg.Input)
	}

	rep.StageProgress(reporter.StageProgress{Stage: "Scene Detection", Message: planPath})
	planner := &scd.Planner{
		Frames: info.Frames,
		FPSNum: info.FPSNum,
		FPSDen: info.FPSDen,
		Width:  info.Width,
		Height: info.Height,
		Format: info.Format,
	}

	plan, err := planner.LoadOrBuild(src, planPath)
	if err != nil {
		return nil, err
	}
	rep.Verbose(fmt.Sprintf("plan: %d chunks over %d frames", len(plan.Chunks), plan.Frames))
	return plan, nil
}

// pipelineConfig assembles the scheduler configuration, including the
// target quality wiring when requested.
func pipelineConfig(cfg *Config, src *source.Handle, plan *chunk.Plan, workDir string, rep reporter.Reporter) (*pipeline.Config, *tq.Config, error) {
	info := src.Info()
	geom := chunk.NewGeometry(int(info.Width), int(info.Height), info.Format)
	chunkBytes := uint64(geom.FrameBytes()) * uint64(chunk.MaxFrames(info.FPSNum, info.FPSDen))

	workers := cfg.Workers
	if workers == 0 {
		workers = config.AutoWorkers(chunkBytes)
		rep.Verbose(fmt.Sprintf("auto workers: %d (chunk footprint %s)", workers, util.FormatSize(chunkBytes)))
	}

	params := encoder.Params{
		Width:  info.Width,
		Height: info.Height,
		FPSNum: info.FPSNum,
		FPSDen: info.FPSDen,
		Color: encoder.Colorimetry{
			Primaries:            info.Color.Primaries,
			Transfer:             info.Color.Transfer,
			Matrix:               info.Color.Matrix,
			Range:                info.Color.Range,
			ChromaSamplePosition: info.Color.ChromaSamplePosition,
			MasteringDisplay:     info.Color.MasteringDisplay,
			ContentLight:         info.Color.ContentLight,
		},
		Passthrough: cfg.Params,
		Quiet:       cfg.Quiet,
		LowPriority: cfg.LowPriority,
	}

	pcfg := &pipeline.Config{
		Workers: workers,
		WorkDir: workDir,
		Params:  params,
		CRF:     cfg.CRF,
		Resume:  cfg.Resume,
		Format:  info.Format,
		OnProgress: func(p worker.Progress) {
			rep.EncodingProgress(reporter.ProgressSnapshot{
				CurrentFrame:   uint64(p.FramesComplete),
				TotalFrames:    uint64(p.FramesTotal),
				Percent:        float32(p.Percent()),
				ChunksComplete: p.ChunksComplete,
				ChunksTotal:    p.ChunksTotal,
			})
		},
	}

	if cfg.TargetQuality == "" {
		return pcfg, nil, nil
	}

	tqCfg, err := tq.ParseTargetRange(cfg.TargetQuality)
	if err != nil {
		return nil, nil, errors.NewConfigError(err.Error())
	}
	if cfg.QPRange != "" {
		if err := tqCfg.ParseCRFRange(cfg.QPRange); err != nil {
			return nil, nil, errors.NewConfigError(err.Error())
		}
	}
	if cfg.MetricMode != "" {
		if err := tqCfg.ParseMetricMode(cfg.MetricMode); err != nil {
			return nil, nil, errors.NewConfigError(err.Error())
		}
	}

	if err := metric.InitDevice(); err != nil {
		return nil, nil, errors.NewMetricFailedError("initializing GPU metric", err)
	}

	pcfg.TQ = tqCfg
	pcfg.NewScorer = func() pipeline.Scorer {
		return metric.NewVshipScorer(info.Color, tqCfg.WorstPercent())
	}
	return pcfg, tqCfg, nil
}

// reportQuality prints the score distribution of a TQ run.
func reportQuality(rep reporter.Reporter, results []worker.Result) {
	scores := make([]float64, 0, len(results))
	for _, r := range results {
		if r.Err == nil {
			scores = append(scores, r.FinalScore)
		}
	}
	s := metric.Summarize(scores)
	rep.QualitySummary(reporter.QualitySummary{
		Mean:       s.Mean,
		Stddev:     s.Stddev,
		WorstMeans: s.WorstMeans,
	})
}

// reportFailure lists failed chunk ids and where their stderr tails are
// preserved. The work directory is kept for resume.
func reportFailure(rep reporter.Reporter, results []worker.Result, runErr error, workDir string) {
	var failed []int
	for _, r := range results {
		if r.Err != nil && !errors.IsCancelled(r.Err) {
			failed = append(failed, r.ChunkID)
		}
	}

	msg := runErr.Error()
	if len(failed) > 0 {
		msg = fmt.Sprintf("failed chunks: %v (stderr tails preserved in %s)", failed, workDir)
	}
	rep.Error(reporter.ReporterError{
		Title:      "Encoding failed",
		Message:    msg,
		Suggestion: "rerun with --resume to retry the remaining chunks",
	})
}
