// Package logging builds the slog handlers used by buildplan.
//
// Terminals get a compact text handler without timestamps; everything else
// (files, pipes, journald) gets one JSON object per record. The level is read
// from a shared [slog.LevelVar] so flags parsed after the logger is installed
// still take effect.
package logging
