// Package logging configures zerolog loggers for the matrixlink binaries and
// tests.
package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Environment overrides
const (
	EnvLevel     = "MATRIXLINK_LOG_LEVEL"
	EnvTimestamp = "MATRIXLINK_LOG_TIMESTAMP"
	EnvNoColor   = "MATRIXLINK_LOG_NOCOLOR"
)

// Options controls logger output
type Options struct {
	Level     string // zerolog level name, "info" when empty
	Timestamp bool
	NoColor   bool
	Out       io.Writer // os.Stderr when nil
}

// DefaultOptions returns the runtime profile: info level, timestamps, colour
// when stderr is a terminal
func DefaultOptions() Options {
	fd := os.Stderr.Fd()
	return Options{
		Level:     "info",
		Timestamp: true,
		NoColor:   !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd),
	}
}

var configureOnce sync.Once

// ConfigureRuntime builds the process logger for app, applies environment
// overrides and installs it as the zerolog global. Later calls return a new
// logger without touching the global
func ConfigureRuntime(app string, opts Options) zerolog.Logger {
	logger := New(app, ApplyEnv(opts))
	configureOnce.Do(func() {
		zerolog.TimeFieldFormat = time.RFC3339
		log.Logger = logger
	})
	return logger
}

// ConfigureTests returns a logger for tests. Output is discarded unless
// MATRIXLINK_LOG_LEVEL is set
func ConfigureTests() zerolog.Logger {
	if os.Getenv(EnvLevel) == "" {
		return zerolog.Nop()
	}
	return New("test", ApplyEnv(Options{NoColor: true, Out: os.Stderr}))
}

// ApplyEnv overlays MATRIXLINK_LOG_* variables on opts
func ApplyEnv(opts Options) Options {
	if v := strings.TrimSpace(os.Getenv(EnvLevel)); v != "" {
		opts.Level = v
	}
	if v, err := strconv.ParseBool(os.Getenv(EnvTimestamp)); err == nil {
		opts.Timestamp = v
	}
	if v, err := strconv.ParseBool(os.Getenv(EnvNoColor)); err == nil {
		opts.NoColor = v
	}
	return opts
}

// New creates a console logger tagged with app
func New(app string, opts Options) zerolog.Logger {
	out := opts.Out
	if out == nil {
		out = colorable.NewColorableStderr()
	}

	level, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}

	writer := zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    opts.NoColor,
		TimeFormat: time.RFC3339,
	}
	if !opts.Timestamp {
		writer.PartsExclude = []string{zerolog.TimestampFieldName}
	}

	ctx := zerolog.New(writer).Level(level).With()
	if opts.Timestamp {
		ctx = ctx.Timestamp()
	}
	return ctx.Str("app", app).Logger()
}
