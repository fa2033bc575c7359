package internal

import (
	"io"
	"log/slog"

	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger builds the JSON logger. Records go to a rotating file when
// cfg.LogFile.Path is set and to fallback otherwise. The returned close
// function flushes the file.
func NewLogger(cfg ApplicationConfig, fallback io.Writer) (*slog.Logger, func() error) {
	out := fallback
	closeFn := func() error { return nil }
	if cfg.LogFile.Path != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.LogFile.Path,
			MaxSize:    cfg.LogFile.MaxSizeMB,
			MaxBackups: cfg.LogFile.MaxBackups,
			MaxAge:     cfg.LogFile.MaxAgeDays,
			Compress:   cfg.LogFile.Compress,
		}
		out = lj
		closeFn = lj.Close
	}
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	return logger, closeFn
}
