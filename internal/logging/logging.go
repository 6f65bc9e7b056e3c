package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the global logger.
type Options struct {
	Level   string // zerolog level name; unknown names fall back to warn
	Env     string // "development" gets a human-readable console writer
	Service string
	File    string // optional path of a rotated JSON log file
	Stdout  io.Writer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Setup configures the zerolog global logger. The returned Closer flushes and
// closes the log file, if any.
func Setup(opts Options) io.Closer {
	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		level = zerolog.WarnLevel
	}
	zerolog.SetGlobalLevel(level)

	out := opts.Stdout
	if out == nil {
		out = os.Stdout
	}
	if opts.Env == "development" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		file := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
		out = zerolog.MultiLevelWriter(out, file)
		closer = file
	}

	ctx := zerolog.New(out).With().Timestamp()
	if opts.Service != "" && opts.Env != "development" {
		ctx = ctx.Str("service", opts.Service)
	}
	log.Logger = ctx.Logger()

	return closer
}
