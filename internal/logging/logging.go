// Package logging wires zerolog for the scraper: console output for
// interactive runs, optional rotated file output for long batches.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds logging configuration.
type Config struct {
	Level    string
	Console  bool
	File     bool
	FilePath string
	MaxSize  int // megabytes
	MaxAge   int // days
}

// DefaultConfig logs to the console only; batch jobs opt into the file.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		Level:    "info",
		Console:  true,
		FilePath: filepath.Join(home, ".config", "scripscrapo", "logs", "scripscrapo.log"),
		MaxSize:  50,
		MaxAge:   14,
	}
}

// New builds a logger from the configuration.
func New(cfg Config) zerolog.Logger {
	var writers []io.Writer
	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		})
	}
	if cfg.File {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err == nil {
			writers = append(writers, &lumberjack.Logger{
				Filename: cfg.FilePath,
				MaxSize:  cfg.MaxSize,
				MaxAge:   cfg.MaxAge,
				Compress: true,
			})
		}
	}

	var w io.Writer
	switch len(writers) {
	case 0:
		w = os.Stderr
	case 1:
		w = writers[0]
	default:
		w = zerolog.MultiLevelWriter(writers...)
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	return zerolog.New(w).With().Timestamp().Logger()
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
