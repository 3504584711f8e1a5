package internal

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mama165/sdk-go/logs"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger returns the process logger. When file is set, JSON records are
// also written to a size-rotated log file; the returned closer releases it.
func NewLogger(level, file string) (*slog.Logger, io.Closer) {
	if file == "" {
		return logs.GetLoggerFromString(level), io.NopCloser(nil)
	}

	rotating := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    50, // megabytes
		MaxBackups: 5,
		MaxAge:     28, // days
		Compress:   true,
	}
	handler := slog.NewJSONHandler(io.MultiWriter(os.Stdout, rotating), &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	return slog.New(handler), rotating
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return slog.LevelInfo
	}
	return l
}
