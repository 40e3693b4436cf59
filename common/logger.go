package common

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// LogConfig controls SetupLogger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
	File   string `yaml:"file"`
	// AlsoStderr duplicates file output to stderr.
	AlsoStderr bool `yaml:"also_stderr"`
}

// SetupLogger creates a configured slog logger. With no file configured it
// writes to stderr.
func SetupLogger(cfg LogConfig) (*slog.Logger, error) {
	var writers []io.Writer

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, err
		}
		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		writers = append(writers, file)
	}
	if cfg.File == "" || cfg.AlsoStderr {
		writers = append(writers, os.Stderr)
	}

	return newLogger(io.MultiWriter(writers...), cfg), nil
}

func newLogger(w io.Writer, cfg LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// ParseLevel converts a string to slog.Level. Unknown values map to warn.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// LoggerOrDefault returns l, or slog.Default() when l is nil.
func LoggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

// TokenPreview shortens a token for debug logs.
func TokenPreview(token string) string {
	if len(token) > 30 {
		return token[:30] + "..."
	}
	return token
}
