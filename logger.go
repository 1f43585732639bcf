package quarry

import (
	"log/slog"
	"os"

	"github.com/quarrydb/quarry/model"
)

// Logger wraps slog.Logger with load-path field helpers so log lines
// across components use consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a Logger with the given handler. If handler is
// nil, uses a text handler to stderr at info level.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewJSONLogger creates a Logger that writes JSON lines to stderr.
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewTextLogger creates a Logger that writes human-readable text to
// stderr.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger creates a Logger that discards all output.
func NoopLogger() *Logger {
	return &Logger{Logger: slog.New(slog.DiscardHandler)}
}

// WithLoad tags the logger with one load's identity.
func (l *Logger) WithLoad(loadID model.LoadID, txnID model.TxnID) *Logger {
	return &Logger{Logger: l.Logger.With(
		"load_id", string(loadID),
		"txn_id", int64(txnID),
	)}
}

// WithTablet tags the logger with a tablet revision.
func (l *Logger) WithTablet(info model.TabletInfo) *Logger {
	return &Logger{Logger: l.Logger.With("tablet", info.String())}
}
