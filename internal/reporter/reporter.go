// Package reporter renders pipeline progress and summaries for humans.
package reporter

import "time"

// Reporter defines the interface for progress reporting.
type Reporter interface {
	StageProgress(update StageProgress)
	EncodingStarted(totalFrames uint64)
	EncodingProgress(progress ProgressSnapshot)
	EncodingComplete(summary EncodingOutcome)
	QualitySummary(summary QualitySummary)
	Warning(message string)
	Error(err ReporterError)
	Verbose(message string)
}

// StageProgress announces a pipeline stage transition.
type StageProgress struct {
	Stage   string
	Message string
}

// ProgressSnapshot is one aggregate progress update.
type ProgressSnapshot struct {
	CurrentFrame   uint64
	TotalFrames    uint64
	Percent        float32
	Speed          float32
	ETA            time.Duration
	ChunksComplete int
	ChunksTotal    int
}

// EncodingOutcome summarizes a finished encode.
type EncodingOutcome struct {
	OutputFile   string
	OriginalSize uint64
	EncodedSize  uint64
	Duration     time.Duration
	Speed        float64 // encoded frames per second
}

// QualitySummary reports the final score distribution of a target quality
// run.
type QualitySummary struct {
	Mean       float64
	Stddev     float64
	WorstMeans map[int]float64 // percentile -> mean of that worst slice
}

// ReporterError is a user-facing error report.
type ReporterError struct {
	Title      string
	Message    string
	Suggestion string
}

// NullReporter is a no-op reporter that discards all updates.
type NullReporter struct{}

func (NullReporter) StageProgress(StageProgress)     {}
func (NullReporter) EncodingStarted(uint64)          {}
func (NullReporter) EncodingProgress(ProgressSnapshot) {}
func (NullReporter) EncodingComplete(EncodingOutcome)  {}
func (NullReporter) QualitySummary(QualitySummary)     {}
func (NullReporter) Warning(string)                  {}
func (NullReporter) Error(ReporterError)             {}
func (NullReporter) Verbose(string)                  {}
