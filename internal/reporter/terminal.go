package reporter

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/cleaveav/cleave/internal/util"
)

// TerminalReporter outputs human-friendly text to the terminal.
type TerminalReporter struct {
	mu         sync.Mutex
	progress   *progressbar.ProgressBar
	maxPercent float32
	verbose    bool

	cyan    *color.Color
	green   *color.Color
	yellow  *color.Color
	red     *color.Color
	bold    *color.Color
}

// NewTerminalReporter creates a new terminal reporter.
func NewTerminalReporter(verbose bool) *TerminalReporter {
	return &TerminalReporter{
		verbose: verbose,
		cyan:    color.New(color.FgCyan, color.Bold),
		green:   color.New(color.FgGreen),
		yellow:  color.New(color.FgYellow, color.Bold),
		red:     color.New(color.FgRed, color.Bold),
		bold:    color.New(color.Bold),
	}
}

func (r *TerminalReporter) finishProgress() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.progress != nil {
		_ = r.progress.Finish()
		r.progress = nil
	}
	r.maxPercent = 0
}

// StageProgress prints a stage transition line.
func (r *TerminalReporter) StageProgress(update StageProgress) {
	r.finishProgress()
	fmt.Println()
	_, _ = r.cyan.Printf("%s", update.Stage)
	if update.Message != "" {
		fmt.Printf("  %s", update.Message)
	}
	fmt.Println()
}

// EncodingStarted opens the frame progress bar.
func (r *TerminalReporter) EncodingStarted(totalFrames uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = progressbar.NewOptions64(int64(totalFrames),
		progressbar.OptionSetDescription("Encoding"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer: "=", SaucerHead: ">", SaucerPadding: " ",
			BarStart: "[", BarEnd: "]",
		}),
	)
}

// EncodingProgress advances the bar; regressions from out-of-order chunk
// completion are ignored.
func (r *TerminalReporter) EncodingProgress(p ProgressSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.progress == nil || p.Percent < r.maxPercent {
		return
	}
	r.maxPercent = p.Percent
	_ = r.progress.Set64(int64(p.CurrentFrame))
}

// EncodingComplete prints the final size and speed summary.
func (r *TerminalReporter) EncodingComplete(s EncodingOutcome) {
	r.finishProgress()

	fmt.Println()
	_, _ = r.green.Println("DONE")
	r.printLabel("Output:", s.OutputFile)
	r.printLabel("Size:", fmt.Sprintf("%s -> %s (%.1f%% reduction)",
		util.FormatSize(s.OriginalSize), util.FormatSize(s.EncodedSize),
		util.CalculateSizeReduction(s.OriginalSize, s.EncodedSize)))
	r.printLabel("Time:", fmt.Sprintf("%s @ %.2f fps", formatDuration(s.Duration), s.Speed))
}

// QualitySummary prints the final score distribution of a TQ run.
func (r *TerminalReporter) QualitySummary(s QualitySummary) {
	fmt.Println()
	_, _ = r.cyan.Println("TARGET QUALITY")
	r.printLabel("Mean:", fmt.Sprintf("%.4f", s.Mean))

	percentiles := make([]int, 0, len(s.WorstMeans))
	for p := range s.WorstMeans {
		percentiles = append(percentiles, p)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(percentiles)))
	for _, p := range percentiles {
		r.printLabel(fmt.Sprintf("Worst %d%%:", p), fmt.Sprintf("%.4f", s.WorstMeans[p]))
	}
	r.printLabel("Stddev:", fmt.Sprintf("%.4f", s.Stddev))
}

// Warning prints a warning line.
func (r *TerminalReporter) Warning(message string) {
	r.finishProgress()
	_, _ = r.yellow.Printf("Warning: ")
	fmt.Println(message)
}

// Error prints an error report.
func (r *TerminalReporter) Error(e ReporterError) {
	r.finishProgress()
	_, _ = r.red.Printf("%s: ", e.Title)
	fmt.Println(e.Message)
	if e.Suggestion != "" {
		fmt.Printf("  %s\n", e.Suggestion)
	}
}

// Verbose prints a detail line when verbose mode is on.
func (r *TerminalReporter) Verbose(message string) {
	if !r.verbose {
		return
	}
	fmt.Printf("  %s\n", message)
}

// printLabel prints a bold label with fixed width padding followed by a value.
func (r *TerminalReporter) printLabel(label, value string) {
	paddedLabel := fmt.Sprintf("%-10s", label)
	fmt.Printf("  %s %s\n", r.bold.Sprint(paddedLabel), value)
}

func formatDuration(d time.Duration) string {
	secs := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
}
