package chunk

import (
	"bufio"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
)

// WorkDirPath returns the hidden per-input work directory, derived from a
// hash of the input path so reruns of the same input find their state.
func WorkDirPath(inputPath, tempDir string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(inputPath))
	name := fmt.Sprintf(".%016x", h.Sum64())[:8]
	if tempDir != "" {
		return filepath.Join(tempDir, name)
	}
	return filepath.Join(filepath.Dir(inputPath), name)
}

// CreateWorkDir creates the work directory and its encode/ and split/
// subdirectories.
func CreateWorkDir(workDir string) error {
	if err := os.MkdirAll(filepath.Join(workDir, "encode"), 0o755); err != nil {
		return err
	}
	return os.MkdirAll(filepath.Join(workDir, "split"), 0o755)
}

// CleanupWorkDir removes the work directory and everything under it.
func CleanupWorkDir(workDir string) error {
	return os.RemoveAll(workDir)
}

// EncodeDir returns the directory holding committed chunk outputs.
func EncodeDir(workDir string) string {
	return filepath.Join(workDir, "encode")
}

// SplitDir returns the directory holding TQ probe encodes.
func SplitDir(workDir string) string {
	return filepath.Join(workDir, "split")
}

// IVFPath returns the committed output path for a chunk.
func IVFPath(workDir string, id int) string {
	return filepath.Join(EncodeDir(workDir), fmt.Sprintf("chunk_%d.ivf", id))
}

// TempIVFPath returns the in-progress output path for a chunk; it is
// renamed to IVFPath on success.
func TempIVFPath(workDir string, id int) string {
	return IVFPath(workDir, id) + ".tmp"
}

// ProbePath returns the output path for one TQ probe encode.
func ProbePath(workDir string, id int, crf float64) string {
	return filepath.Join(SplitDir(workDir), fmt.Sprintf("%04d_%05.2f.ivf", id, crf))
}

// ScenePlanPath returns the cached scene plan path for an input, next to
// the input file.
func ScenePlanPath(inputPath string) string {
	stem := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	return filepath.Join(filepath.Dir(inputPath), fmt.Sprintf("scd_%s.txt", stem))
}

// StderrTailPath returns where a failed chunk's encoder stderr is preserved.
func StderrTailPath(workDir string, id int) string {
	return filepath.Join(workDir, fmt.Sprintf("chunk_%d.stderr.txt", id))
}

// Completion records one finished chunk for the resume file.
type Completion struct {
	ID     int
	Frames int
	Size   uint64
}

// Resume holds the set of chunks already committed by a previous run.
type Resume struct {
	Done []Completion
}

// DoneSet returns the completed chunk ids as a set.
func (r *Resume) DoneSet() map[int]bool {
	set := make(map[int]bool, len(r.Done))
	for _, c := range r.Done {
		set[c.ID] = true
	}
	return set
}

// TotalFrames sums the frames of completed chunks.
func (r *Resume) TotalFrames() int {
	total := 0
	for _, c := range r.Done {
		total += c.Frames
	}
	return total
}

// TotalSize sums the output bytes of completed chunks.
func (r *Resume) TotalSize() uint64 {
	var total uint64
	for _, c := range r.Done {
		total += c.Size
	}
	return total
}

func doneFilePath(workDir string) string {
	return filepath.Join(workDir, "done.txt")
}

// GetResume loads the resume file, returning an empty Resume when absent.
func GetResume(workDir string) (*Resume, error) {
	f, err := os.Open(doneFilePath(workDir))
	if err != nil {
		if os.IsNotExist(err) {
			return &Resume{}, nil
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()

	r := &Resume{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var c Completion
		if _, err := fmt.Sscanf(scanner.Text(), "%d %d %d", &c.ID, &c.Frames, &c.Size); err == nil {
			r.Done = append(r.Done, c)
		}
	}
	return r, scanner.Err()
}

// AppendDone appends one completion record to the resume file.
func AppendDone(c Completion, workDir string) error {
	f, err := os.OpenFile(doneFilePath(workDir), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	_, err = fmt.Fprintf(f, "%d %d %d\n", c.ID, c.Frames, c.Size)
	return err
}
