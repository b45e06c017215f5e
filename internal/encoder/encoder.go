// Package encoder drives one SvtAv1EncApp subprocess per chunk encode:
// argv construction, raw pixel streaming to stdin, stderr progress capture,
// and crash reporting. The bitstream is written to the output path it is
// given; committing that file under its final name happens in the caller.
package encoder

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/cleaveav/cleave/internal/chunk"
	"github.com/cleaveav/cleave/internal/errors"
	"github.com/cleaveav/cleave/internal/logging"
)

// BinaryName is the encoder executable looked up in PATH.
const BinaryName = "SvtAv1EncApp"

// KillGrace is how long a terminated encoder gets before escalation to kill.
const KillGrace = 5 * time.Second

// stdinBufBytes buffers pixel writes to the encoder pipe.
const stdinBufBytes = 256 * 1024

// Colorimetry carries the probed color description passed through to the
// encoder. Nil fields are omitted from the argv.
type Colorimetry struct {
	Primaries            *int32
	Transfer             *int32
	Matrix               *int32
	Range                *int32
	ChromaSamplePosition *int32
	MasteringDisplay     *string
	ContentLight         *string
}

// Params configures one encoder invocation.
type Params struct {
	Width  uint32
	Height uint32
	FPSNum uint32
	FPSDen uint32
	Color  Colorimetry

	CRF float64
	// Passthrough is the user's encoder parameter string, split on
	// whitespace and appended verbatim.
	Passthrough string
	// RPUPath, when set, attaches a Dolby Vision RPU file.
	RPUPath string
	// Output is the bitstream path the encoder writes.
	Output string
	// Quiet suppresses encoder progress output.
	Quiet bool
	// LowPriority drops the subprocess niceness so interactive work
	// stays responsive.
	LowPriority bool
}

// BuildArgs assembles the encoder argv. Input is always streamed as 10-bit
// over stdin; 8-bit sources are promoted before streaming.
func BuildArgs(p *Params) []string {
	args := []string{
		"-i", "stdin",
		"--input-depth", "10",
		"--width", fmt.Sprintf("%d", p.Width),
		"--forced-max-frame-width", fmt.Sprintf("%d", p.Width),
		"--height", fmt.Sprintf("%d", p.Height),
		"--forced-max-frame-height", fmt.Sprintf("%d", p.Height),
		"--fps-num", fmt.Sprintf("%d", p.FPSNum),
		"--fps-denom", fmt.Sprintf("%d", p.FPSDen),
		"--crf", fmt.Sprintf("%.2f", p.CRF),
		"--keyint", "-1",
		"--rc", "0",
		"--scd", "0",
		"--scm", "0",
	}

	if p.Quiet {
		args = append(args, "--progress", "0", "--no-progress", "1")
	} else {
		args = append(args, "--progress", "3")
	}

	args = appendColor(args, p.Color)

	if p.RPUPath != "" {
		args = append(args, "--dolby-vision-rpu", p.RPUPath)
	}

	if p.Passthrough != "" {
		args = append(args, strings.Fields(p.Passthrough)...)
	}

	return append(args, "-b", p.Output)
}

func appendColor(args []string, c Colorimetry) []string {
	if c.Primaries != nil {
		args = append(args, "--color-primaries", fmt.Sprintf("%d", *c.Primaries))
	}
	if c.Transfer != nil {
		args = append(args, "--transfer-characteristics", fmt.Sprintf("%d", *c.Transfer))
	}
	if c.Matrix != nil {
		args = append(args, "--matrix-coefficients", fmt.Sprintf("%d", *c.Matrix))
	}
	if c.Range != nil {
		args = append(args, "--color-range", fmt.Sprintf("%d", *c.Range))
	}
	if c.ChromaSamplePosition != nil {
		args = append(args, "--chroma-sample-position", fmt.Sprintf("%d", *c.ChromaSamplePosition))
	}
	if c.MasteringDisplay != nil {
		args = append(args, "--mastering-display", *c.MasteringDisplay)
	}
	if c.ContentLight != nil {
		args = append(args, "--content-light", *c.ContentLight)
	}
	return args
}

// Encode runs one encoder subprocess over the chunk buffer, writing the
// bitstream to p.Output. Pixel data streams frame by frame through a
// two-row scratch; cancellation is observed between frames and the process
// receives terminate, then kill after the grace period. A non-zero exit or
// an empty output file reports EncoderCrashed with the stderr tail.
func Encode(ctx context.Context, buf *chunk.Buffer, p *Params, progress func(Progress)) error {
	cmd := exec.Command(BinaryName, BuildArgs(p)...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return errors.NewIOError("creating encoder stdin pipe", err)
	}

	// Progress lines go to the sink, everything else to a bounded ring
	// kept for crash reports. Wait drains the writer before returning.
	ring := newLineRing(ringLines)
	cmd.Stderr = newStderrSink(ring, progress)

	if err := cmd.Start(); err != nil {
		return errors.NewCommandError(BinaryName, err)
	}

	if p.LowPriority {
		if err := unix.Setpriority(unix.PRIO_PROCESS, cmd.Process.Pid, 10); err != nil {
			logging.Debug("setpriority failed", "pid", cmd.Process.Pid, "err", err)
		}
	}

	// Reaper: waits for the process so cancellation can escalate
	// terminate to kill without blocking the streaming path.
	waitDone := make(chan error, 1)
	go func() { waitDone <- cmd.Wait() }()

	streamErr := streamFrames(ctx, buf, stdin)
	_ = stdin.Close()

	var waitErr error
	select {
	case waitErr = <-waitDone:
	case <-ctx.Done():
		terminate(cmd)
		select {
		case waitErr = <-waitDone:
		case <-time.After(KillGrace):
			_ = cmd.Process.Kill()
			waitErr = <-waitDone
		}
	}

	if ctx.Err() != nil {
		_ = os.Remove(p.Output)
		return errors.NewCancelledError()
	}
	if waitErr != nil {
		_ = os.Remove(p.Output)
		return errors.NewEncoderCrashedError(buf.Chunk.ID, exitCode(waitErr), ring.tail())
	}
	if streamErr != nil {
		_ = os.Remove(p.Output)
		return errors.NewIOError("streaming pixels to encoder", streamErr)
	}

	if size, err := fileSize(p.Output); err != nil || size == 0 {
		return errors.NewEncoderCrashedError(buf.Chunk.ID, 0, ring.tail())
	}
	return nil
}

func streamFrames(ctx context.Context, buf *chunk.Buffer, stdin interface {
	Write([]byte) (int, error)
}) error {
	w := bufio.NewWriterSize(stdin, stdinBufBytes)
	scratch := make([]byte, buf.Geom.ScratchBytes())

	for i := 0; i < buf.Chunk.Frames(); i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := buf.WriteFrameTo(w, i, scratch); err != nil {
			return err
		}
	}
	return w.Flush()
}

func terminate(cmd *exec.Cmd) {
	if cmd.Process != nil {
		_ = cmd.Process.Signal(syscall.SIGTERM)
	}
}

func exitCode(err error) int {
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}

func fileSize(path string) (uint64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return uint64(info.Size()), nil
}
