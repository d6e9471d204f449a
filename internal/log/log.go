// Package log provides the ambient structured logger used by every stage in
// the node, in the key-value style of go-ethereum's log package: a package
// level default Logger, swappable at startup, with Trace/Debug/Info/Warn/
// Error/Crit levels and alternating key/value arguments.
package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the interface every stage logs through. It is satisfied by the
// slog-backed implementation below, and can be swapped via SetDefault for
// tests that want to capture output.
type Logger interface {
	Trace(msg string, ctx ...any)
	Debug(msg string, ctx ...any)
	Info(msg string, ctx ...any)
	Warn(msg string, ctx ...any)
	Error(msg string, ctx ...any)
	Crit(msg string, ctx ...any)
	With(ctx ...any) Logger
}

type slogLogger struct {
	inner *slog.Logger
}

const levelTrace = slog.Level(-8)
const levelCrit = slog.Level(12)

func (l *slogLogger) Trace(msg string, ctx ...any) { l.inner.Log(nil, levelTrace, msg, ctx...) }
func (l *slogLogger) Debug(msg string, ctx ...any) { l.inner.Debug(msg, ctx...) }
func (l *slogLogger) Info(msg string, ctx ...any)  { l.inner.Info(msg, ctx...) }
func (l *slogLogger) Warn(msg string, ctx ...any)  { l.inner.Warn(msg, ctx...) }
func (l *slogLogger) Error(msg string, ctx ...any) { l.inner.Error(msg, ctx...) }
func (l *slogLogger) Crit(msg string, ctx ...any) {
	l.inner.Log(nil, levelCrit, msg, ctx...)
}
func (l *slogLogger) With(ctx ...any) Logger {
	return &slogLogger{inner: l.inner.With(ctx...)}
}

// New builds a Logger writing to w at the given minimum slog level.
func New(w io.Writer, level slog.Level) Logger {
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return &slogLogger{inner: slog.New(h)}
}

// NewRotatingFile builds a Logger that writes to path through a
// lumberjack.Logger, so a long-running fullnode's log does not grow
// unbounded. maxSizeMB is the size at which the current file rotates;
// maxBackups bounds how many rotated files are kept.
func NewRotatingFile(path string, maxSizeMB, maxBackups int, level slog.Level) Logger {
	w := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		Compress:   true,
	}
	return New(w, level)
}

var (
	mu  sync.Mutex
	def Logger = New(os.Stderr, slog.LevelInfo)
)

// SetDefault replaces the package-level logger every top-level function
// below writes through.
func SetDefault(l Logger) {
	mu.Lock()
	defer mu.Unlock()
	def = l
}

// Root returns the current default Logger.
func Root() Logger {
	mu.Lock()
	defer mu.Unlock()
	return def
}

func Trace(msg string, ctx ...any) { Root().Trace(msg, ctx...) }
func Debug(msg string, ctx ...any) { Root().Debug(msg, ctx...) }
func Info(msg string, ctx ...any)  { Root().Info(msg, ctx...) }
func Warn(msg string, ctx ...any)  { Root().Warn(msg, ctx...) }
func Error(msg string, ctx ...any) { Root().Error(msg, ctx...) }

// Crit logs at the highest level and terminates the process. Stages never
// call this directly for per-request errors; it is reserved for the
// supervisor's fatal startup paths (spec §7, FatalIO).
func Crit(msg string, ctx ...any) {
	Root().Crit(msg, ctx...)
	fmt.Fprintln(os.Stderr, "fatal error, exiting")
	os.Exit(1)
}
