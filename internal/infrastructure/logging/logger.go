package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/eqiva-core/internal/infrastructure/config"
)

// ServiceName is attached to every log entry.
const ServiceName = "eqiva"

// Logger is a slog.Logger carrying the service and version fields.
// Safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New builds the daemon logger from the logging section of config.yaml.
//
// Output "stdout" (the default) and "stderr" name the standard streams; any
// other value is a file path opened for appending. A file that cannot be
// opened falls back to stderr and the failure is logged as the first entry.
//
// Parameters:
//   - cfg: Logging configuration
//   - version: Build version, attached to every entry
//
// Returns:
//   - *Logger: Ready-to-use logger
func New(cfg config.LoggingConfig, version string) *Logger {
	out, openErr := openOutput(cfg.Output)
	l := NewWriter(cfg, version, out)
	if openErr != nil {
		l.Warn("log file unavailable, using stderr", "path", cfg.Output, "error", openErr)
	}
	return l
}

// NewWriter is New with an explicit destination; cfg.Output is ignored.
// The CLI uses it to keep stdout free for command output.
func NewWriter(cfg config.LoggingConfig, version string, out io.Writer) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var h slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(out, opts)
	} else {
		h = slog.NewJSONHandler(out, opts)
	}
	return &Logger{slog.New(h).With("service", ServiceName, "version", version)}
}

func openOutput(name string) (io.Writer, error) {
	switch strings.ToLower(name) {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640) //nolint:gosec // path comes from the operator's config
	if err != nil {
		return os.Stderr, err
	}
	return f, nil
}

// parseLevel maps debug, info, warn(ing) and error; anything else is info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// With returns a child logger with extra attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{l.Logger.With(args...)}
}

// Component returns a child logger tagged component=name. The daemon gives
// each subsystem (ble, runner, bridge, api) its own.
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Default is the logger used before config.yaml has been read: JSON at
// info level on stdout.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}
