// Package main provides the CLI entry point for cleave.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cleaveav/cleave"
	"github.com/cleaveav/cleave/internal/errors"
	"github.com/cleaveav/cleave/internal/logging"
	"github.com/cleaveav/cleave/internal/reporter"
	"github.com/cleaveav/cleave/internal/util"
)

var version = "0.3.1"

type encodeFlags struct {
	workers       int
	params        string
	crf           float64
	targetQuality string
	qpRange       string
	metricMode    string
	sceneFile     string
	tempDir       string
	resume        bool
	quiet         bool
	verbose       bool
	noLog         bool
	lowPriority   bool
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cleave",
		Short:         "Chunked AV1 encoder with per-chunk target quality",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(encodeCmd())
	return root
}

func encodeCmd() *cobra.Command {
	var f encodeFlags

	cmd := &cobra.Command{
		Use:   "encode <input> [output]",
		Short: "Encode a video to AV1 in scene-aligned chunks",
		Long: `Encode a video to AV1 by splitting it at scene changes and running
parallel SvtAv1EncApp instances over pipes. With --target, each chunk's CRF
is searched until its SSIMULACRA2 score lands in the requested band.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(_ *cobra.Command, args []string) error {
			return runEncode(&f, args)
		},
	}

	fl := cmd.Flags()
	fl.IntVarP(&f.workers, "workers", "w", 0, "parallel encoder workers (0 = auto)")
	fl.StringVarP(&f.params, "params", "p", "", "SVT-AV1 parameters passed through verbatim")
	fl.Float64Var(&f.crf, "crf", 27, "fixed CRF when no target quality is set")
	fl.StringVarP(&f.targetQuality, "target", "t", "", `target SSIMULACRA2 band, e.g. "74-76"`)
	fl.StringVar(&f.qpRange, "qp", "8-48", "CRF search range for target quality")
	fl.StringVarP(&f.metricMode, "mode", "m", "mean", `metric aggregation: "mean" or "pN" (mean of worst N%)`)
	fl.StringVarP(&f.sceneFile, "sc", "s", "", "scene plan file (detected and cached when omitted)")
	fl.StringVar(&f.tempDir, "temp-dir", "", "directory for the per-input work directory")
	fl.BoolVarP(&f.resume, "resume", "r", false, "resume a previous run of the same input")
	fl.BoolVarP(&f.quiet, "quiet", "q", false, "suppress progress output")
	fl.BoolVarP(&f.verbose, "verbose", "v", false, "verbose output")
	fl.BoolVar(&f.noLog, "no-log", false, "disable the run log file")
	fl.BoolVar(&f.lowPriority, "responsive", false, "run encoders at low priority")

	return cmd
}

func runEncode(f *encodeFlags, args []string) error {
	input, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("invalid input path: %w", err)
	}
	if !util.FileExists(input) {
		return fmt.Errorf("input does not exist: %s", input)
	}

	output := defaultOutput(input)
	if len(args) == 2 {
		if output, err = filepath.Abs(args[1]); err != nil {
			return fmt.Errorf("invalid output path: %w", err)
		}
	}

	cfg := cleave.NewConfig(input, output)
	cfg.Workers = f.workers
	if f.params != "" {
		cfg.Params = f.params
	}
	cfg.CRF = f.crf
	cfg.TargetQuality = f.targetQuality
	cfg.QPRange = f.qpRange
	cfg.MetricMode = f.metricMode
	cfg.SceneFile = f.sceneFile
	cfg.TempDir = f.tempDir
	cfg.Resume = f.resume
	cfg.Quiet = f.quiet
	cfg.Verbose = f.verbose
	cfg.NoLog = f.noLog
	cfg.LowPriority = f.lowPriority

	if err := cfg.Validate(); err != nil {
		return err
	}

	level := logging.LevelInfo
	if f.verbose {
		level = logging.LevelDebug
	}
	logging.Init(level, os.Stderr)

	fileLog, err := logging.SetupFile(filepath.Dir(output), f.verbose, f.noLog)
	if err != nil {
		return err
	}
	if fileLog != nil {
		defer func() { _ = fileLog.Close() }()
		logging.Init(level, fileLog.Writer())
	}

	var rep reporter.Reporter = reporter.NullReporter{}
	if !f.quiet {
		rep = reporter.NewTerminalReporter(f.verbose)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := cleave.Run(ctx, cfg, rep); err != nil {
		if errors.IsCancelled(err) {
			return fmt.Errorf("cancelled")
		}
		return err
	}
	return nil
}

// defaultOutput derives the output path when none is given: the input name
// with an _av1 suffix, as an mkv.
func defaultOutput(input string) string {
	stem := util.GetFileStem(input)
	stem = strings.TrimSuffix(stem, "_av1")
	return filepath.Join(filepath.Dir(input), stem+"_av1.mkv")
}
