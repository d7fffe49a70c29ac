// Package logging configures the process-wide slog logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/kamusis/curricula/internal/domain"
)

// ParseLevel maps a level name to a slog.Level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("%w: unknown log level %q", domain.ErrConfiguration, s)
}

// New builds a logger writing to w in the given format ("text" or "json").
func New(w io.Writer, format, level, env string) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var h slog.Handler
	switch strings.ToLower(format) {
	case "", "text":
		h = slog.NewTextHandler(w, opts)
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("%w: unknown log format %q", domain.ErrConfiguration, format)
	}

	l := slog.New(h).With("service", "curricula")
	if env != "" {
		l = l.With("env", env)
	}
	return l, nil
}

// Init installs the logger built by New as the slog default.
func Init(w io.Writer, format, level, env string) error {
	l, err := New(w, format, level, env)
	if err != nil {
		return err
	}
	slog.SetDefault(l)
	return nil
}
