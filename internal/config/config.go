// Package config provides configuration types and defaults for cleave.
package config

import (
	"github.com/cleaveav/cleave/internal/errors"
	"github.com/cleaveav/cleave/internal/util"
)

// Default constants.
const (
	// DefaultCRF is the fixed quality used when target quality is off.
	DefaultCRF float64 = 27

	// MaxCRF is the top of the CRF scale.
	MaxCRF float64 = 70

	// DefaultQPRange is the CRF search range for target quality runs.
	DefaultQPRange = "8-48"

	// DefaultMetricMode aggregates frame scores as the mean.
	DefaultMetricMode = "mean"

	// DefaultParams are the encoder parameters applied when the user
	// passes none.
	DefaultParams = "--preset 4 --tune 0"

	// encoderOverheadBytes is the approximate resident size of one
	// SvtAv1EncApp process, used by the worker heuristic.
	encoderOverheadBytes = 1 << 30

	// workerMemFraction is the share of available memory the pipeline
	// may plan around.
	workerMemFraction = 0.5
)

// Config holds all settings for one encode run.
type Config struct {
	Input  string
	Output string

	// Workers is the encoder worker count; 0 selects the heuristic.
	Workers int

	// Params is the user's encoder parameter string, passed through.
	Params string

	// CRF is the fixed quality; ignored when TargetQuality is set.
	CRF float64

	// TargetQuality is the metric band, e.g. "74-76"; empty disables TQ.
	TargetQuality string

	// QPRange is the CRF search range for TQ, e.g. "8-48".
	QPRange string

	// MetricMode is "mean" or "pN".
	MetricMode string

	// SceneFile overrides the scene plan cache path.
	SceneFile string

	// TempDir overrides where the work directory is created.
	TempDir string

	Resume      bool
	Quiet       bool
	Verbose     bool
	NoLog       bool
	LowPriority bool
}

// NewConfig creates a Config with defaults applied.
func NewConfig(input, output string) *Config {
	return &Config{
		Input:      input,
		Output:     output,
		CRF:        DefaultCRF,
		QPRange:    DefaultQPRange,
		MetricMode: DefaultMetricMode,
		Params:     DefaultParams,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Input == "" {
		return errors.NewConfigError("input path is required")
	}
	if c.Output == "" {
		return errors.NewConfigError("output path is required")
	}
	if c.CRF < 0 || c.CRF > MaxCRF {
		return errors.NewConfigError("crf must be within 0-70")
	}
	if c.Workers < 0 {
		return errors.NewConfigError("workers must be positive")
	}
	return nil
}

// AutoWorkers picks a worker count from the CPU count, capped by available
// memory for the given per-chunk footprint.
func AutoWorkers(chunkBytes uint64) int {
	workers := workersForCores(util.LogicalCores())

	memCap := util.MaxWorkersForMemory(chunkBytes+encoderOverheadBytes, workerMemFraction)
	if memCap < workers {
		workers = memCap
	}
	return max(workers, 1)
}

// workersForCores maps logical core counts onto encoder instance counts;
// each SVT-AV1 instance scales well to a handful of threads and poorly
// beyond.
func workersForCores(cores int) int {
	switch {
	case cores >= 32:
		return 8
	case cores >= 24:
		return 6
	case cores >= 16:
		return 4
	case cores >= 12:
		return 3
	case cores >= 8:
		return 2
	default:
		return 1
	}
}
