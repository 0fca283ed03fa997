package cli

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/vietddude/stylelog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/vietddude/txgate/internal/core/config"
)

func parseLevel(level string, debug bool) slog.Level {
	if debug {
		return slog.LevelDebug
	}
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// setupLogging installs the default slog handler. Console output goes through
// stylelog; a configured file is rotated by lumberjack.
func setupLogging(cfg config.LoggingConfig, debug bool) (func(), error) {
	level := parseLevel(cfg.Level, debug)

	var out io.Writer = os.Stderr
	closer := func() {}
	if cfg.File != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
		out = lj
		closer = func() { _ = lj.Close() }
	}

	switch {
	case strings.EqualFold(cfg.Format, "json"):
		slog.SetDefault(slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})))
	case cfg.File != "":
		slog.SetDefault(slog.New(tint.NewHandler(out, &tint.Options{
			Level:      level,
			TimeFormat: time.RFC3339,
			NoColor:    true,
		})))
	default:
		stylelog.InitDefault(&tint.Options{
			Level:      level,
			TimeFormat: time.RFC3339,
		})
	}

	slog.Debug("Logger initialized", "level", level.String(), "format", cfg.Format)
	return closer, nil
}
