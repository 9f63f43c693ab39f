package internal

import (
	"log/slog"
	"strconv"
	"sync/atomic"
)

var (
	level   slog.LevelVar // Log level shared by every handler.
	verbose atomic.Bool   // Whether log records carry source locations.
)

// Seeds the log level and verbosity from the linker flags.
//
// rawQuiet, rawDebug, and rawVerbose should be set via ldflags during the
// build process. Unparseable values count as false.
func init() {
	Configure(parseFlag(rawQuiet), parseFlag(rawDebug), parseFlag(rawVerbose))
}

// Sets the log level and verbosity.
//
// Debug takes precedence over quiet. With neither, the level is info.
func Configure(quiet, debug, verboseOutput bool) {
	switch {
	case debug:
		level.Set(slog.LevelDebug)
	case quiet:
		level.Set(slog.LevelWarn)
	default:
		level.Set(slog.LevelInfo)
	}
	verbose.Store(verboseOutput)
}

// Returns the level variable consulted by log handlers.
func LogLevel() *slog.LevelVar {
	return &level
}

// Returns true if quiet mode is enabled.
func IsQuiet() bool {
	return level.Level() >= slog.LevelWarn
}

// Returns true if debug mode is enabled.
func IsDebug() bool {
	return level.Level() <= slog.LevelDebug
}

// Returns true if verbose logging is enabled.
func IsVerbose() bool {
	return verbose.Load()
}

func parseFlag(raw string) bool {
	v, err := strconv.ParseBool(raw)
	return err == nil && v
}
