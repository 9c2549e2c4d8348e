package logging

import (
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
)

// Init configures the default logger. If w is nil, os.Stderr is used.
// Format is "text", "json" or "logfmt"; anything else falls back to text.
func Init(level, format string, w ...io.Writer) {
	var writer io.Writer = os.Stderr
	if len(w) > 0 && w[0] != nil {
		writer = w[0]
	}

	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}

	opts := log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Level:           lvl,
	}
	switch format {
	case "json":
		opts.Formatter = log.JSONFormatter
	case "logfmt":
		opts.Formatter = log.LogfmtFormatter
	default:
		opts.Formatter = log.TextFormatter
	}

	log.SetDefault(log.NewWithOptions(writer, opts))
}

// New returns a logger tagged with a component attribute.
func New(component string) *log.Logger {
	return log.Default().With("component", component)
}
