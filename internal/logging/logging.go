package logging

import (
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
)

// Configures [New].
type Options struct {
	Level   slog.Leveler // Minimum level. Nil means info.
	Verbose bool         // Include source locations.
	Name    string       // Group wrapping every record's attributes. Empty for none.
}

// Creates a handler writing to w.
func New(w io.Writer, opts Options) slog.Handler {
	ho := &slog.HandlerOptions{
		Level:     opts.Level,
		AddSource: opts.Verbose,
	}

	var h slog.Handler
	if IsTerminal(w) {
		ho.ReplaceAttr = dropTime
		h = slog.NewTextHandler(w, ho)
	} else {
		h = slog.NewJSONHandler(w, ho)
	}

	if opts.Name != "" {
		h = h.WithGroup(opts.Name)
	}
	return h
}

// Returns true if w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Removes the top-level time attribute.
func dropTime(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.TimeKey {
		return slog.Attr{}
	}
	return a
}
