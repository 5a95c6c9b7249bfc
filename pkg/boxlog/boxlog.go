// Package boxlog builds boxd's zerolog.Logger and supports redirecting its
// console target at runtime, for the admin channel's set-log-target command,
// and reopening its file target, for SIGHUP-triggered log file reopening.
//
// The swappable-writer shape is grounded in the teacher's
// pkg/atlas.zerologWriterLevel/SwapWriter: a level-gated io.Writer whose
// underlying target can be replaced under a mutex without recreating the
// zerolog.Logger built on top of it.
package boxlog

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Target is one swappable output of the logger (console or file): the admin
// channel's "set-log-target" command acts on the console Target, and
// SIGHUP-driven reopen acts on the file Target.
type Target struct {
	mu   sync.Mutex
	w    io.Writer
	path string // "" for stdout/stderr targets
}

var _ zerolog.LevelWriter = (*Target)(nil)

func newTarget(w io.Writer) *Target {
	return &Target{w: w}
}

func (t *Target) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.w == nil {
		return len(p), nil
	}
	return t.w.Write(p)
}

func (t *Target) WriteLevel(l zerolog.Level, p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.w == nil {
		return len(p), nil
	}
	if lw, ok := t.w.(zerolog.LevelWriter); ok {
		return lw.WriteLevel(l, p)
	}
	return t.w.Write(p)
}

// Set replaces the target's output. spec is one of "stderr", "stdout", or
// "file:<path>" (spec.md §6). Any previously opened log file is closed.
func (t *Target) Set(spec string) error {
	var next io.Writer
	var path string

	switch {
	case spec == "stderr":
		next = os.Stderr
	case spec == "stdout":
		next = os.Stdout
	case strings.HasPrefix(spec, "file:"):
		path = strings.TrimPrefix(spec, "file:")
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
		if err != nil {
			return fmt.Errorf("boxlog: open log file: %w", err)
		}
		next = f
	default:
		return fmt.Errorf("boxlog: unrecognized log target %q", spec)
	}

	t.mu.Lock()
	old := t.w
	t.w, t.path = next, path
	t.mu.Unlock()

	if c, ok := old.(io.Closer); ok {
		c.Close()
	}
	return nil
}

// Reopen closes and reopens the current file target, for SIGHUP-driven log
// rotation (a no-op if the current target isn't a file).
func (t *Target) Reopen() error {
	t.mu.Lock()
	path := t.path
	t.mu.Unlock()
	if path == "" {
		return nil
	}
	return t.Set("file:" + path)
}

// Logger is boxd's process-wide logging handle: a zerolog.Logger writing to
// a stdout/stderr Target and, optionally, a second file Target, matching
// the teacher's LogStdout+LogFile dual-output config shape.
type Logger struct {
	Console *Target
	File    *Target // nil if no file target is configured

	log zerolog.Logger
}

// New builds a Logger. consoleSpec is "stdout", "stderr", or "" (silent);
// fileSpec is a path, or "" for no file target.
func New(level zerolog.Level, consoleSpec, fileSpec string, pretty bool) (*Logger, error) {
	l := &Logger{}

	var outputs []io.Writer
	if consoleSpec != "" {
		l.Console = newTarget(nil)
		if err := l.Console.Set(consoleSpec); err != nil {
			return nil, err
		}
		if pretty {
			outputs = append(outputs, zerolog.ConsoleWriter{Out: l.Console})
		} else {
			outputs = append(outputs, l.Console)
		}
	}
	if fileSpec != "" {
		l.File = newTarget(nil)
		if err := l.File.Set("file:" + fileSpec); err != nil {
			return nil, err
		}
		outputs = append(outputs, l.File)
	}

	l.log = zerolog.New(zerolog.MultiLevelWriter(outputs...)).
		Level(level).
		With().
		Timestamp().
		Logger()
	return l, nil
}

// Logger returns the built zerolog.Logger.
func (l *Logger) Logger() zerolog.Logger { return l.log }

// SetTarget implements the admin channel's "set-log-target" command by
// redirecting the console target; it has no effect on the file target,
// which is reopened via Reopen (SIGHUP) instead.
func (l *Logger) SetTarget(spec string) error {
	if l.Console == nil {
		l.Console = newTarget(nil)
	}
	return l.Console.Set(spec)
}

// Reopen reopens the file target, for SIGHUP-driven rotation.
func (l *Logger) Reopen() error {
	if l.File == nil {
		return nil
	}
	return l.File.Reopen()
}
