// Package logging builds the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls where and how verbosely the logger writes.
type Options struct {
	Env        string
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New returns a logger writing to stdout (console format in development,
// JSON otherwise) and, when File is set, to a size-rotated JSON file.
func New(opts Options) zerolog.Logger {
	return newWithStdout(opts, os.Stdout)
}

func newWithStdout(opts Options, stdout io.Writer) zerolog.Logger {
	var out io.Writer = stdout
	if opts.Env == "development" {
		out = zerolog.ConsoleWriter{Out: stdout}
	}
	if opts.File != "" {
		out = zerolog.MultiLevelWriter(out, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		})
	}
	return zerolog.New(out).Level(ParseLevel(opts.Level)).With().Timestamp().Str("service", "caseload").Logger()
}

// ParseLevel maps a config string to a zerolog level, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
