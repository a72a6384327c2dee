// Package watch lets a user follow someone else's game as it is being
// recorded, by tailing the live ttyrec file.
package watch

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/stlalpha/rgl/internal/logging"
	"github.com/stlalpha/rgl/internal/session"
	"github.com/stlalpha/rgl/internal/terminalio"
	"github.com/stlalpha/rgl/internal/ttyrec"
)

// QuitKey stops watching.
const QuitKey = 'q'

// DefaultPoll bounds how long a finished game can go unnoticed when no
// write events arrive.
const DefaultPoll = 500 * time.Millisecond

var clearScreen = []byte("\x1b[2J")

// Viewer lists live sessions and replays one to Out.
type Viewer struct {
	Registry *session.Registry
	In       *os.File // keyboard; nil disables the quit key
	Out      io.Writer
	Poll     time.Duration
}

// List returns the games in progress, oldest first.
func (v *Viewer) List() ([]session.Live, error) {
	return v.Registry.ListActive()
}

// Tail replays live's recording from its last full-screen clear, then
// follows it as frames are appended. It returns when the viewer presses
// QuitKey, or once the game has ended and every frame has been shown.
func (v *Viewer) Tail(ctx context.Context, live session.Live) error {
	f, err := os.Open(live.Recording)
	if err != nil {
		return fmt.Errorf("failed to open recording %s: %w", live.Recording, err)
	}
	defer f.Close()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(live.Recording); err != nil {
		return fmt.Errorf("failed to watch %s: %w", live.Recording, err)
	}

	offset, err := lastClearScreen(f)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()

	quit := make(chan struct{})
	if v.In != nil {
		fd := int(v.In.Fd())
		if term.IsTerminal(fd) {
			state, err := term.MakeRaw(fd)
			if err != nil {
				return fmt.Errorf("failed to set raw mode: %w", err)
			}
			defer term.Restore(fd, state)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			waitForQuit(ctx, fd, quit)
		}()
	}

	poll := v.Poll
	if poll <= 0 {
		poll = DefaultPoll
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	logging.Debug("Watching session %s (%s playing %s) from offset %d", live.ID, live.User, live.Game, offset)
	if err := terminalio.WriteProcessedBytes(v.Out, []byte(terminalio.ResetScreen)); err != nil {
		return err
	}
	for {
		// checked before catching up so a finished game's last frames
		// are always shown
		ended := !v.Registry.Exists(live.ID) || !session.ProcessAlive(live.PID)
		if offset, err = emit(f, offset, v.Out); err != nil {
			return err
		}
		if ended {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-quit:
			return nil
		case _, ok := <-watcher.Events:
			if !ok {
				return errors.New("recording watcher closed")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("recording watcher closed")
			}
			return fmt.Errorf("recording watcher: %w", err)
		case <-ticker.C:
		}
	}
}

// lastClearScreen returns the offset of the last complete frame that
// clears the screen, or 0. Replaying from there redraws the current
// screen without the whole history.
func lastClearScreen(f *os.File) (int64, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("failed to seek recording: %w", err)
	}
	r := ttyrec.NewReader(bufio.NewReader(f))
	var last int64
	for {
		start := r.Offset()
		fr, err := r.Next()
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return last, nil
		}
		if err != nil {
			return 0, err
		}
		if bytes.Contains(fr.Payload, clearScreen) {
			last = start
		}
	}
}

// emit writes every complete frame from offset on and returns the offset
// after the last one. A partially written frame is left for the next call.
func emit(f *os.File, offset int64, out io.Writer) (int64, error) {
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("failed to seek recording: %w", err)
	}
	r := ttyrec.NewReader(bufio.NewReader(f))
	for {
		fr, err := r.Next()
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return offset + r.Offset(), nil
		}
		if err != nil {
			return offset + r.Offset(), err
		}
		if err := terminalio.WriteProcessedBytes(out, fr.Payload); err != nil {
			return offset + r.Offset(), err
		}
	}
}

// waitForQuit polls the keyboard until QuitKey is read or ctx ends.
func waitForQuit(ctx context.Context, fd int, quit chan<- struct{}) {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	buf := make([]byte, 16)
	for ctx.Err() == nil {
		n, err := unix.Poll(fds, 100)
		if err == unix.EINTR || n == 0 {
			continue
		}
		if err != nil {
			logging.Warn("watch: poll keyboard: %v", err)
			return
		}
		if fds[0].Revents&(unix.POLLHUP|unix.POLLERR) != 0 && fds[0].Revents&unix.POLLIN == 0 {
			return
		}
		n, err = unix.Read(fd, buf)
		if err == unix.EINTR || err == unix.EAGAIN {
			continue
		}
		if err != nil || n == 0 {
			return
		}
		if bytes.IndexByte(buf[:n], QuitKey) >= 0 {
			close(quit)
			return
		}
	}
}
