// Package logging provides the fabric's structured logging surface: every
// component takes a Logger instead of writing to the global logger. Backed
// by zerolog, with optional lumberjack file rotation, per SPEC_FULL.md §2.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger wraps zerolog.Logger with a With(key, value) helper that returns a
// namespaced child, matching the teacher's "pass a named logger through
// constructors" convention (seen across engine/internal/resources and
// engine/internal/pipeline).
type Logger struct {
	zl zerolog.Logger
}

// Options configures the root logger.
type Options struct {
	Level      string // debug, info, warn, error
	Pretty     bool   // human-readable console output, for local runs
	FilePath   string // if set, logs rotate through lumberjack at this path
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

func DefaultOptions() Options {
	return Options{Level: "info", Pretty: false, MaxSizeMB: 100, MaxBackups: 5, MaxAgeDays: 28}
}

func New(opts Options) Logger {
	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var w io.Writer = os.Stderr
	if opts.Pretty {
		w = zerolog.ConsoleWriter{Out: os.Stderr}
	}
	if opts.FilePath != "" {
		w = &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
		}
	}

	zl := zerolog.New(w).Level(level).With().Timestamp().Logger()
	return Logger{zl: zl}
}

// Noop returns a Logger that discards everything, used in tests and
// wherever the caller does not care about output.
func Noop() Logger {
	return Logger{zl: zerolog.New(io.Discard)}
}

func (l Logger) With(key, value string) Logger {
	return Logger{zl: l.zl.With().Str(key, value).Logger()}
}

func (l Logger) Debug() *zerolog.Event { return l.zl.Debug() }
func (l Logger) Info() *zerolog.Event  { return l.zl.Info() }
func (l Logger) Warn() *zerolog.Event  { return l.zl.Warn() }
func (l Logger) Error() *zerolog.Event { return l.zl.Error() }

// Raw exposes the underlying zerolog.Logger for call sites that want the
// full event builder API (e.g. attaching an error then multiple fields).
func (l Logger) Raw() zerolog.Logger { return l.zl }
