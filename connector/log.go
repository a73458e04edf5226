package connector

import (
	"io"

	"github.com/gookit/slog"
)

// Logger receives connect progress and failures. Errors are logged in
// addition to being returned.
type Logger interface {
	Debugf(format string, args ...any)
	Errorf(format string, args ...any)
}

// NewLogger returns a text logger writing to w. Debug output is emitted only
// when verbose is set.
func NewLogger(w io.Writer, verbose bool) Logger {
	level := slog.ErrorLevel
	if verbose {
		level = slog.DebugLevel
	}
	logger := slog.NewSugaredLogger(w, level)

	f := slog.AsTextFormatter(logger.Formatter)
	f.SetTemplate("[{{datetime}}] {{level}} {{message}}\n")

	return logger
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any) {}
func (nopLogger) Errorf(string, ...any) {}
