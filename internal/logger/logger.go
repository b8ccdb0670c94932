// Package logger is the process-wide zerolog logger of cityseed. Warnings
// and errors always print; Debug, Info and Section print only in verbose
// mode. Loggers from With keep their fields and log at info and above.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// Format selects how lines are rendered.
type Format string

const (
	// FormatAuto renders for humans on a terminal and as JSON otherwise.
	FormatAuto    Format = "auto"
	FormatJSON    Format = "json"
	FormatConsole Format = "console"
)

// ParseFormat accepts "", auto, json and console.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case "", FormatAuto:
		return FormatAuto, nil
	case FormatJSON, FormatConsole:
		return f, nil
	default:
		return "", fmt.Errorf("unknown log format %q (want auto, json or console)", s)
	}
}

// Options configures the logger.
type Options struct {
	Output  io.Writer
	Verbose bool
	Format  Format
}

type state struct {
	opts Options
	log  zerolog.Logger
}

var current atomic.Pointer[state]

func init() {
	Configure(Options{})
}

// Configure replaces the logger. A nil Output means stderr.
func Configure(opts Options) {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	if opts.Format == "" {
		opts.Format = FormatAuto
	}

	w := opts.Output
	f, isFile := w.(*os.File)
	console := opts.Format == FormatConsole ||
		(opts.Format == FormatAuto && isFile && term.IsTerminal(int(f.Fd())))
	if console {
		w = zerolog.ConsoleWriter{Out: opts.Output, TimeFormat: time.Kitchen}
	}

	level := zerolog.InfoLevel
	if opts.Verbose {
		level = zerolog.DebugLevel
	}
	current.Store(&state{opts: opts, log: zerolog.New(w).Level(level).With().Timestamp().Logger()})
}

// SetVerbose keeps the output and format and toggles verbose mode.
func SetVerbose(v bool) {
	opts := current.Load().opts
	opts.Verbose = v
	Configure(opts)
}

// IsVerbose reports whether debug output is enabled.
func IsVerbose() bool { return current.Load().opts.Verbose }

// Logger returns the underlying logger.
func Logger() zerolog.Logger { return current.Load().log }

// With returns a child logger carrying fields.
func With(fields map[string]any) zerolog.Logger {
	return current.Load().log.With().Fields(fields).Logger()
}

func verboseEvent(level zerolog.Level) *zerolog.Event {
	s := current.Load()
	if !s.opts.Verbose {
		return nil
	}
	return s.log.WithLevel(level)
}

func Debug(format string, args ...any) {
	verboseEvent(zerolog.DebugLevel).Msgf(format, args...)
}

func Info(format string, args ...any) {
	verboseEvent(zerolog.InfoLevel).Msgf(format, args...)
}

// Section marks the start of a pipeline step in verbose output.
func Section(name string) {
	verboseEvent(zerolog.DebugLevel).Str("section", name).Msg("=== " + name + " ===")
}

func Warn(format string, args ...any) {
	l := current.Load().log
	l.Warn().Msgf(format, args...)
}

// Error logs err under the "error" field.
func Error(err error, format string, args ...any) {
	l := current.Load().log
	l.Error().Err(err).Msgf(format, args...)
}
