package terminalio

import (
	"fmt"
	"io"
)

// Terminal control sequences written by the gateway.
const (
	ResetScreen = "\x1bc" // RIS: full reset, clears screen and scrollback
	Bell        = "\a"
)

type flusher interface{ Flush() error }

// Flush pushes buffered output to the terminal. Writers with a Flush
// method (bufio.Writer) are flushed; *os.File writes go straight to the
// kernel and need nothing more.
func Flush(w io.Writer) error {
	if f, ok := w.(flusher); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("failed to flush output: %w", err)
		}
	}
	return nil
}

// WriteProcessedBytes writes raw bytes verbatim and flushes.
func WriteProcessedBytes(w io.Writer, raw []byte) error {
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return Flush(w)
}

// Printf formats to w. It exists so menu code reads like the original
// terminal helpers and gets wrapped errors.
func Printf(w io.Writer, format string, args ...any) error {
	if _, err := fmt.Fprintf(w, format, args...); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
