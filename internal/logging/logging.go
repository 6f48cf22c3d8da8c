// Package logging builds the server's structured logger.
//
// Standard output carries the protocol stream, so log entries go to standard
// error or to a file. The zap logger feeds go.lsp.dev's client dispatcher;
// request handlers take a logr.Logger from their context.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	VersionKey   = "version"
	CommitKey    = "commit"
	TimeStampKey = "timestamp"
	MessageKey   = "message"
)

// TraceLevel enables logr's V(2) output, one step below zap's debug level.
const TraceLevel = zapcore.DebugLevel - 1

type loggerContextKey struct{}

type Options struct {
	// Level is a zap level name (debug, info, warn, error) or "trace".
	Level string
	// File receives the log when set; standard error otherwise.
	File    string
	Version string
	Commit  string
}

// New builds a JSON logger. The returned close function flushes the logger
// and releases the log file, if any.
func New(opts Options) (*zap.Logger, func(), error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}

	var sink zapcore.WriteSyncer = zapcore.Lock(os.Stderr)
	closeSink := func() {}
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		sink = zapcore.Lock(f)
		closeSink = func() { _ = f.Close() }
	}

	logger := newLogger(sink, level).With(
		zap.String(VersionKey, opts.Version),
		zap.String(CommitKey, opts.Commit),
	)
	return logger, func() {
		Sync(logger)
		closeSink()
	}, nil
}

// NewWriter builds a logger writing JSON entries to w.
func NewWriter(w io.Writer, level zapcore.Level) *zap.Logger {
	return newLogger(zapcore.AddSync(w), level)
}

func newLogger(sink zapcore.WriteSyncer, level zapcore.Level) *zap.Logger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.TimeKey = TimeStampKey
	encoderCfg.MessageKey = MessageKey

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		sink,
		zap.NewAtomicLevelAt(level),
	)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel))
}

func ParseLevel(name string) (zapcore.Level, error) {
	if name == "" {
		return zapcore.InfoLevel, nil
	}
	if strings.EqualFold(name, "trace") {
		return TraceLevel, nil
	}
	level, err := zapcore.ParseLevel(strings.ToLower(name))
	if err != nil {
		return level, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	return level, nil
}

// Logr wraps a zap logger for code that logs through logr.
func Logr(logger *zap.Logger) logr.Logger {
	return zapr.NewLogger(logger)
}

func WithLogger(ctx context.Context, log logr.Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, log)
}

// FromContext returns the logger stored in ctx, or a logger that discards
// everything.
func FromContext(ctx context.Context) logr.Logger {
	if log, ok := ctx.Value(loggerContextKey{}).(logr.Logger); ok {
		return log
	}
	return logr.Discard()
}

// Sync flushes buffered entries. Errors from syncing terminals and pipes are
// expected and dropped.
func Sync(logger *zap.Logger) {
	if logger == nil {
		return
	}
	if err := logger.Sync(); err != nil && !isIgnorableSyncError(err) {
		fmt.Fprintf(os.Stderr, "WARNING: failed to sync zap logger: %v\n", err)
	}
}

func isIgnorableSyncError(err error) bool {
	if errors.Is(err, syscall.ENOTTY) || errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.EIO) || errors.Is(err, syscall.EBADF) {
		return true
	}
	return strings.Contains(err.Error(), "The handle is invalid")
}
