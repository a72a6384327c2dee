// Package recorder runs a child program with its standard output captured
// through a pipe, writing each burst of output as one ttyrec frame and
// mirroring the same bytes to the live terminal.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/stlalpha/rgl/internal/logging"
	"github.com/stlalpha/rgl/internal/terminalio"
	"github.com/stlalpha/rgl/internal/ttyrec"
)

// ChunkSize is the size of the blocking read that starts each frame.
const ChunkSize = 1024

// DefaultMaxFrame caps how much a single drain may coalesce.
const DefaultMaxFrame = 64 * 1024

// Options describes one recorded child process.
type Options struct {
	Command   string
	Args      []string
	Dir       string
	Env       []string // full environment; nil inherits the gateway's
	Recording io.Writer
	Live      io.Writer
	Stdin     *os.File // nil means /dev/null
	Stderr    *os.File // nil means /dev/null
	MaxFrame  int
	Now       func() time.Time
}

// Result summarises a finished recording.
type Result struct {
	Frames   int
	Bytes    int64
	ExitCode int
	Duration time.Duration
}

// Run starts the child and captures its output until end-of-stream, then
// reaps it. Any I/O failure is returned as an error; the child's own exit
// status is reported in Result and is not an error.
func Run(ctx context.Context, opts Options) (Result, error) {
	var res Result
	if opts.Recording == nil || opts.Live == nil {
		return res, errors.New("recorder: recording and live writers are required")
	}
	maxFrame := opts.MaxFrame
	if maxFrame <= 0 {
		maxFrame = DefaultMaxFrame
	}
	chunk := ChunkSize
	if maxFrame < chunk {
		chunk = maxFrame
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		return res, fmt.Errorf("recorder: create pipe: %w", err)
	}
	defer pr.Close()

	cmd := exec.CommandContext(ctx, opts.Command, opts.Args...)
	cmd.Dir = opts.Dir
	cmd.Env = opts.Env
	cmd.Stdout = pw
	if opts.Stdin != nil {
		cmd.Stdin = opts.Stdin
	}
	if opts.Stderr != nil {
		cmd.Stderr = opts.Stderr
	}

	// Keyboard signals go to the whole foreground process group; the child
	// handles them, the gateway must not die from them. Caught signals are
	// reset to default in the child on exec, ignored ones would not be.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGQUIT, syscall.SIGTSTP)
	defer signal.Stop(sigs)

	started := now()
	if err := cmd.Start(); err != nil {
		pw.Close()
		return res, fmt.Errorf("recorder: start %s: %w", opts.Command, err)
	}
	// The child holds the only write end now, so its exit produces EOF.
	pw.Close()
	logging.Debug("recorder: started %s (pid %d)", opts.Command, cmd.Process.Pid)

	rec := ttyrec.NewWriter(opts.Recording)
	fd := int(pr.Fd())
	capErr := capture(fd, chunk, maxFrame, now, rec, opts.Live, &res)
	if capErr != nil {
		// Unblock the child if it is still writing, then reap it.
		pr.Close()
		cmd.Wait()
		return res, capErr
	}

	waitErr := cmd.Wait()
	res.Duration = now().Sub(started)
	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
	case errors.As(waitErr, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		logging.Info("recorder: %s exited with status %d", opts.Command, res.ExitCode)
	default:
		return res, fmt.Errorf("recorder: wait for %s: %w", opts.Command, waitErr)
	}
	return res, nil
}

// capture is the frame loop: one blocking read, a non-blocking drain of
// whatever else is already in the pipe, then one frame written, synced and
// mirrored, with the descriptor back in blocking mode for the next read.
func capture(fd, chunk, maxFrame int, now func() time.Time, rec *ttyrec.Writer, live io.Writer, res *Result) error {
	readBuf := make([]byte, chunk)
	frame := make([]byte, 0, maxFrame)

	for {
		n, err := readRetry(fd, readBuf)
		if err != nil {
			return fmt.Errorf("recorder: read: %w", err)
		}
		if n == 0 {
			return nil
		}
		frame = append(frame[:0], readBuf[:n]...)

		if err := unix.SetNonblock(fd, true); err != nil {
			return fmt.Errorf("recorder: set non-blocking: %w", err)
		}
		var eof bool
		frame, eof, err = drain(fd, readBuf, frame, maxFrame)
		if err != nil {
			return err
		}

		if err := rec.WriteFrame(ttyrec.FrameAt(now(), frame)); err != nil {
			return err
		}
		if err := rec.Sync(); err != nil {
			return err
		}
		if err := terminalio.WriteProcessedBytes(live, frame); err != nil {
			return fmt.Errorf("recorder: mirror: %w", err)
		}
		res.Frames++
		res.Bytes += int64(len(frame))

		if err := unix.SetNonblock(fd, false); err != nil {
			return fmt.Errorf("recorder: set blocking: %w", err)
		}
		if eof {
			return nil
		}
	}
}

// drain appends every byte that can be read without waiting, stopping at
// EAGAIN, end-of-stream or maxFrame bytes.
func drain(fd int, readBuf, frame []byte, maxFrame int) ([]byte, bool, error) {
	for len(frame) < maxFrame {
		want := len(readBuf)
		if room := maxFrame - len(frame); room < want {
			want = room
		}
		n, err := unix.Read(fd, readBuf[:want])
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
			return frame, false, nil
		case err != nil:
			return frame, false, fmt.Errorf("recorder: drain: %w", err)
		case n == 0:
			return frame, true, nil
		}
		frame = append(frame, readBuf[:n]...)
	}
	return frame, false, nil
}

func readRetry(fd int, buf []byte) (int, error) {
	for {
		n, err := unix.Read(fd, buf)
		if err == unix.EINTR {
			continue
		}
		return n, err
	}
}
