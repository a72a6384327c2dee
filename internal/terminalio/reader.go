package terminalio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/stlalpha/rgl/internal/logging"
)

// ErrInputClosed is returned when the controlling terminal reaches
// end-of-input. There is no remote client to recover for, so callers
// treat it as fatal.
var ErrInputClosed = errors.New("terminal input closed")

const (
	keyEOT = 0x04 // Ctrl-D
	keyESC = 0x1b
)

// Prompter is the set of blocking read primitives the menu layer uses.
type Prompter interface {
	Line(prompt string) (string, error)
	Password(prompt string) (string, error)
	Key(prompt string) (rune, error)
}

// Terminal reads from the controlling terminal and writes prompts to out.
// All reads share one buffered reader so type-ahead is never lost between
// line, password and single-key reads.
type Terminal struct {
	in    *os.File
	out   io.Writer
	buf   *bufio.Reader
	isTTY bool
}

// NewTerminal wraps in/out. When in is not a terminal (pipes, tests) the
// raw and no-echo modes are skipped and input is read as plain text.
func NewTerminal(in *os.File, out io.Writer) *Terminal {
	return &Terminal{
		in:    in,
		out:   out,
		buf:   bufio.NewReader(in),
		isTTY: term.IsTerminal(int(in.Fd())),
	}
}

// Out returns the writer prompts go to.
func (t *Terminal) Out() io.Writer { return t.out }

// IsTerminal reports whether input is attached to a tty.
func (t *Terminal) IsTerminal() bool { return t.isTTY }

func (t *Terminal) prompt(p string) error {
	if _, err := io.WriteString(t.out, p); err != nil {
		return fmt.Errorf("failed to write prompt: %w", err)
	}
	return Flush(t.out)
}

func (t *Terminal) readLine() (string, error) {
	line, err := t.buf.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			if line == "" {
				return "", ErrInputClosed
			}
			return line, nil
		}
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return line, nil
}

// Line prompts and returns one line of input with surrounding whitespace
// removed.
func (t *Terminal) Line(prompt string) (string, error) {
	if err := t.prompt(prompt); err != nil {
		return "", err
	}
	line, err := t.readLine()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Password prompts and reads a line with echo suppressed. Only the line
// terminator is stripped; leading and trailing spaces are part of the
// password.
func (t *Terminal) Password(prompt string) (string, error) {
	if err := t.prompt(prompt); err != nil {
		return "", err
	}
	if t.isTTY {
		restore, err := disableEcho(int(t.in.Fd()))
		if err != nil {
			return "", fmt.Errorf("failed to disable echo: %w", err)
		}
		defer func() {
			if err := restore(); err != nil {
				logging.Warn("failed to restore terminal echo: %v", err)
			}
		}()
	}
	line, err := t.readLine()
	if err != nil {
		return "", err
	}
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return line, nil
}

// Key prompts and returns a single printable keystroke. Escape sequences
// (arrow and function keys) and other control characters are skipped.
// Ctrl-D ends input.
func (t *Terminal) Key(prompt string) (rune, error) {
	if err := t.prompt(prompt); err != nil {
		return 0, err
	}
	if t.isTTY {
		state, err := term.MakeRaw(int(t.in.Fd()))
		if err != nil {
			return 0, fmt.Errorf("failed to set raw mode: %w", err)
		}
		defer term.Restore(int(t.in.Fd()), state)
	}

	for {
		r, _, err := t.buf.ReadRune()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return 0, ErrInputClosed
			}
			return 0, fmt.Errorf("failed to read key: %w", err)
		}
		switch {
		case r == keyEOT:
			return 0, ErrInputClosed
		case r == keyESC:
			t.skipEscape()
		case r < 0x20 || r == 0x7f:
			// control characters, including the newline after scripted keys
		default:
			t.dropNewline()
			return r, nil
		}
	}
}

// Discard drops type-ahead already read into the shared buffer and
// returns how many bytes it dropped. Call it before handing the raw tty to
// anything that reads the descriptor directly (a game, an editor, a
// spectator's quit-key reader): bytes left in the buffer would never reach
// it and would instead be replayed into the next menu prompt.
func (t *Terminal) Discard() int {
	n, _ := t.buf.Discard(t.buf.Buffered())
	return n
}

// dropNewline consumes a line terminator that is already buffered right
// after a key. Scripted input sends one key per line, and a tty switched
// out of canonical mode can still hand over the rest of a typed line.
func (t *Terminal) dropNewline() {
	if t.buf.Buffered() == 0 {
		return
	}
	if b, err := t.buf.Peek(1); err == nil && b[0] == '\r' {
		t.buf.ReadByte()
	}
	if t.buf.Buffered() == 0 {
		return
	}
	if b, err := t.buf.Peek(1); err == nil && b[0] == '\n' {
		t.buf.ReadByte()
	}
}

// skipEscape discards the remainder of a CSI or SS3 sequence, if one is
// already buffered.
func (t *Terminal) skipEscape() {
	if t.buf.Buffered() == 0 {
		return
	}
	next, err := t.buf.Peek(1)
	if err != nil || (next[0] != '[' && next[0] != 'O') {
		return
	}
	t.buf.ReadByte()
	for t.buf.Buffered() > 0 {
		b, err := t.buf.ReadByte()
		if err != nil || (b >= 0x40 && b <= 0x7e) {
			return
		}
	}
}
