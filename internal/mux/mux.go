// Package mux assembles the per-chunk bitstream files into the final
// container by shelling out to mkvmerge. Assembly is the only place that
// observes global chunk ordering.
package mux

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/cleaveav/cleave/internal/errors"
	"github.com/cleaveav/cleave/internal/worker"
)

// BinaryName is the concatenator executable looked up in PATH.
const BinaryName = "mkvmerge"

// mergeBatchSize bounds the files per mkvmerge invocation; larger chunk
// counts merge in batches through a temp directory first.
const mergeBatchSize = 1024

// Config describes one assembly.
type Config struct {
	Output string
	FPSNum uint32
	FPSDen uint32

	// run executes a built command; tests substitute it.
	run func(args []string) error
}

// Assemble checks that every chunk committed, orders the per-chunk files by
// id, and merges them into cfg.Output. Chunk failures abort with the failed
// ids.
func Assemble(results []worker.Result, cfg *Config) error {
	sorted := append([]worker.Result(nil), results...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ChunkID < sorted[j].ChunkID })

	var failed []int
	files := make([]string, 0, len(sorted))
	for _, r := range sorted {
		if r.Err != nil {
			failed = append(failed, r.ChunkID)
			continue
		}
		files = append(files, r.Path)
	}
	if len(failed) > 0 {
		return errors.NewIOError(fmt.Sprintf("cannot assemble output, failed chunks: %v", failed), nil)
	}
	if len(files) == 0 {
		return errors.NewIOError("no chunks to assemble", nil)
	}

	return mergeAll(files, cfg)
}

func mergeAll(files []string, cfg *Config) error {
	if len(files) <= mergeBatchSize {
		return runMerge(files, cfg.Output, cfg)
	}

	tempDir := filepath.Join(filepath.Dir(cfg.Output), ".merge_batches")
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return errors.NewIOError("creating merge batch directory", err)
	}
	defer func() { _ = os.RemoveAll(tempDir) }()

	var batches []string
	for i := 0; i < len(files); i += mergeBatchSize {
		end := min(i+mergeBatchSize, len(files))
		batchPath := filepath.Join(tempDir, fmt.Sprintf("batch_%d.mkv", i/mergeBatchSize))
		if err := runMerge(files[i:end], batchPath, cfg); err != nil {
			return err
		}
		batches = append(batches, batchPath)
	}

	return runMerge(batches, cfg.Output, cfg)
}

// MergeArgs builds the mkvmerge argv for one merge invocation.
func MergeArgs(files []string, output string, fpsNum, fpsDen uint32) []string {
	args := []string{
		"-q",
		"-o", output,
		"-A", "-S", "-B", "-M", "-T",
		"--no-global-tags",
		"--no-chapters",
		"--no-date",
		"--disable-language-ietf",
		"--disable-track-statistics-tags",
	}

	for i, f := range files {
		if i == 0 {
			args = append(args, f)
		} else {
			args = append(args, "+", f)
		}
	}

	return append(args, "--default-duration", fmt.Sprintf("0:%d/%dfps", fpsNum, fpsDen))
}

func runMerge(files []string, output string, cfg *Config) error {
	args := MergeArgs(files, output, cfg.FPSNum, cfg.FPSDen)
	if cfg.run != nil {
		return cfg.run(args)
	}

	cmd := exec.Command(BinaryName, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.Stdout = &stderr

	if err := cmd.Run(); err != nil {
		return errors.WrapExecError(BinaryName, err, stderr.String())
	}
	return nil
}
