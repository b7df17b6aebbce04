package telemetry

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"text"`
	File   string `env:"LOG_FILE"`
}

// NewLogger builds the slog logger described by cfg. When cfg.File is set the
// output is mirrored into a size-rotated file. The returned closer releases the
// file and is never nil.
func NewLogger(cfg LogConfig, stdout io.Writer) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	var out io.Writer = stdout
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		rotating := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    10, // MB
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		}
		out = io.MultiWriter(stdout, rotating)
		closer = rotating
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	case "", "text":
		handler = slog.NewTextHandler(out, opts)
	default:
		return nil, nil, fmt.Errorf("invalid LOG_FORMAT value: %q", cfg.Format)
	}

	return slog.New(handler), closer, nil
}

// ParseLevel converts a textual level to slog.Level.
func ParseLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL value: %q", raw)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
