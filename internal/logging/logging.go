// Package logging builds the zerolog logger shared by the commands.
package logging

import (
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

var ErrUnknownFormat = errors.New("unknown log format")

const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// New returns a logger writing to w at level. Format is "console" for
// human-readable lines or "json"; empty means console.
func New(w io.Writer, level, format string) (zerolog.Logger, error) {
	lvl := zerolog.InfoLevel
	if level != "" {
		var err error
		lvl, err = zerolog.ParseLevel(strings.ToLower(level))
		if err != nil {
			return zerolog.Nop(), errors.Wrapf(err, "log level %q", level)
		}
	}

	switch format {
	case "", FormatConsole:
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	case FormatJSON:
	default:
		return zerolog.Nop(), errors.Wrap(ErrUnknownFormat, format)
	}

	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}
