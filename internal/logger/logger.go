// Package logger sets up the process-wide zerolog logger with file rotation
// and points log/slog at the same output, so library logs share its format.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Options defines logger initialization parameters.
type Options struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool

	// Stdout replaces os.Stdout as the console destination.
	Stdout io.Writer
}

var (
	global zerolog.Logger
	rotate *lumberjack.Logger
)

// Init sets up the global logger: optional rotating file plus console.
func Init(opts Options) error {
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return fmt.Errorf("create logs dir: %w", err)
		}
	}

	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	var writers []io.Writer
	rotate = nil
	if opts.File != "" {
		rotate = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		}
		writers = append(writers, rotate)
	}
	if opts.Pretty {
		writers = append(writers, zerolog.ConsoleWriter{Out: stdout, TimeFormat: time.RFC3339})
	} else {
		writers = append(writers, stdout)
	}
	out := io.MultiWriter(writers...)

	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(opts.Level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	global = zerolog.New(out).Level(lvl).With().Timestamp().Logger()
	log.Logger = global
	slog.SetDefault(slog.New(newSlogHandler(out, lvl)))
	return nil
}

// Close flushes and closes the rotating file, if any.
func Close() {
	if rotate != nil {
		_ = rotate.Close()
	}
}

// Get returns the global logger.
func Get() *zerolog.Logger { return &global }

// newSlogHandler writes slog records as zerolog-shaped JSON lines so both
// loggers can share one writer, ConsoleWriter included.
func newSlogHandler(w io.Writer, lvl zerolog.Level) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slogLevel(lvl),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return a
			}
			switch a.Key {
			case slog.MessageKey:
				a.Key = zerolog.MessageFieldName
			case slog.LevelKey:
				a.Key = zerolog.LevelFieldName
				if l, ok := a.Value.Any().(slog.Level); ok {
					a.Value = slog.StringValue(zerologLevelName(l))
				}
			case slog.TimeKey:
				a.Key = zerolog.TimestampFieldName
				a.Value = slog.StringValue(a.Value.Time().Format(time.RFC3339))
			}
			return a
		},
	})
}

func slogLevel(l zerolog.Level) slog.Level {
	switch {
	case l <= zerolog.DebugLevel:
		return slog.LevelDebug
	case l == zerolog.InfoLevel:
		return slog.LevelInfo
	case l == zerolog.WarnLevel:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

func zerologLevelName(l slog.Level) string {
	switch {
	case l < slog.LevelInfo:
		return zerolog.DebugLevel.String()
	case l < slog.LevelWarn:
		return zerolog.InfoLevel.String()
	case l < slog.LevelError:
		return zerolog.WarnLevel.String()
	default:
		return zerolog.ErrorLevel.String()
	}
}
