package log

import (
	"os"
	"strings"

	"github.com/go-logr/logr"
	"github.com/rs/zerolog"
	"github.com/screenleap/zerologr"
)

// New returns a logger writing JSON to stderr. The FORGE_LOG environment
// variable selects the level ("debug", "info", "warn", "error").
func New() logr.Logger {
	zl := zerolog.New(os.Stderr).Level(level()).With().Timestamp().Logger()
	return zerologr.New(&zl)
}

// NewConsole returns a logger with human-friendly console output, for
// interactive commands.
func NewConsole() logr.Logger {
	zl := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level()).With().Timestamp().Logger()
	return zerologr.New(&zl)
}

func level() zerolog.Level {
	switch strings.ToLower(os.Getenv("FORGE_LOG")) {
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
