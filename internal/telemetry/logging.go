// Package telemetry wires structured logging for the daemon.
package telemetry

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
)

// Logging holds the root logger plus the pieces needed for hot reload and
// shutdown.
type Logging struct {
	Logger *slog.Logger
	level  *slog.LevelVar
	file   *os.File
}

// ParseLevel maps a config log_level string to a slog level. Unknown values
// fall back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup builds the root logger. Logs go to stderr and, when the home
// directory is writable, to $TASKD_HOME/logs/system.jsonl as JSON lines.
// When stderr is a terminal a text handler is used instead of JSON.
func Setup(homeDir, level string) (*Logging, error) {
	lv := new(slog.LevelVar)
	lv.Set(ParseLevel(level))

	var file *os.File
	writers := []io.Writer{os.Stderr}
	if homeDir != "" {
		logDir := filepath.Join(homeDir, "logs")
		if err := os.MkdirAll(logDir, 0o755); err == nil {
			f, err := os.OpenFile(filepath.Join(logDir, "system.jsonl"),
				os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
			if err == nil {
				file = f
				writers = append(writers, f)
			}
		}
	}

	opts := &slog.HandlerOptions{Level: lv}
	var handler slog.Handler
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		handler = slog.NewTextHandler(os.Stderr, opts)
		if file != nil {
			handler = tee{handler, slog.NewJSONHandler(file, opts)}
		}
	} else {
		handler = slog.NewJSONHandler(io.MultiWriter(writers...), opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return &Logging{Logger: logger, level: lv, file: file}, nil
}

// SetLevel changes the active level without rebuilding handlers, used by
// config hot reload.
func (l *Logging) SetLevel(level string) {
	l.level.Set(ParseLevel(level))
}

// Close flushes and closes the log file, if any.
func (l *Logging) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
