package telemetry

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger builds the process logger described by cfg. Components derive
// their own loggers from it with a "component" field.
func NewLogger(cfg LoggingConfig) (zerolog.Logger, error) {
	var w io.Writer
	switch cfg.Output {
	case "", "stdout":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), err
		}
		w = f
	}
	return newLogger(w, cfg), nil
}

func newLogger(w io.Writer, cfg LoggingConfig) zerolog.Logger {
	zerolog.TimeFieldFormat = timeFieldFormat(cfg.TimeFormat)
	if cfg.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	ctx := zerolog.New(w).With().Timestamp()
	if cfg.EnableCaller {
		ctx = ctx.Caller()
	}
	logger := ctx.Logger().Level(ParseLevel(cfg.Level))

	if cfg.EnableSampling {
		logger = logger.Sample(&zerolog.BurstSampler{
			Burst:       uint32(cfg.SamplingInitial),
			Period:      time.Second,
			NextSampler: &zerolog.BasicSampler{N: uint32(cfg.SamplingThereafter)},
		})
	}
	return logger
}

func timeFieldFormat(name string) string {
	switch name {
	case "unix":
		return zerolog.TimeFormatUnix
	case "unixms":
		return zerolog.TimeFormatUnixMs
	case "unixmicro":
		return zerolog.TimeFormatUnixMicro
	default:
		return time.RFC3339
	}
}

// ParseLevel converts a level name to a zerolog level. Unknown names map to
// info.
func ParseLevel(level string) zerolog.Level {
	l, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return l
}
