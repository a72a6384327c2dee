// Package logging configures the process-wide zerolog logger for rgl.
//
// The gateway owns the user's terminal, so log output goes to a file
// rather than stdout. The small printf-style helpers keep call sites short
// in code paths that do not need structured fields.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DebugEnabled controls whether Debug() produces output.
// Set via --debug or RGL_DEBUG=1.
var DebugEnabled bool

// Options selects where and how verbosely the logger writes.
type Options struct {
	Path    string // log file; empty means stderr
	Level   string // zerolog level name, defaults to info
	Console bool   // human readable output instead of JSON lines
	Extra   io.Writer
}

// Init installs the global logger. The returned closer releases the log
// file and is safe to call when no file was opened.
func Init(opts Options) (io.Closer, error) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	var out io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}
	if opts.Path != "" {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0750); err != nil {
			return nil, fmt.Errorf("failed to create log directory for %s: %w", opts.Path, err)
		}
		f, err := os.OpenFile(opts.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", opts.Path, err)
		}
		out = f
		closer = f
	}
	if opts.Extra != nil {
		out = io.MultiWriter(out, opts.Extra)
	}
	if opts.Console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: true}
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()

	level := zerolog.InfoLevel
	if lvl, err := zerolog.ParseLevel(opts.Level); err == nil && opts.Level != "" {
		level = lvl
	}
	if DebugEnabled {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	return closer, nil
}

// Debug logs a message only when DebugEnabled is true.
func Debug(format string, args ...any) {
	if DebugEnabled {
		log.Debug().Msgf(format, args...)
	}
}

// Info logs at info level.
func Info(format string, args ...any) { log.Info().Msgf(format, args...) }

// Warn logs at warn level.
func Warn(format string, args ...any) { log.Warn().Msgf(format, args...) }

// Error logs at error level.
func Error(format string, args ...any) { log.Error().Msgf(format, args...) }

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
