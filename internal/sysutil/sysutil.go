// Package sysutil holds process-level helpers shared by the CLI commands.
package sysutil

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogOptions configures the process logger.
type LogOptions struct {
	Level   string // debug|info|warn|error|fatal|panic; anything else means info
	Pretty  bool   // console format instead of JSON
	Version string // stamped on every line when set
}

// ParseLevel maps a level name to a zerolog level. Names are case-insensitive,
// "warning" is accepted for warn, and unknown or empty names give info.
func ParseLevel(name string) zerolog.Level {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "warning" {
		name = "warn"
	}
	lvl, err := zerolog.ParseLevel(name)
	if err != nil || name == "" || lvl > zerolog.PanicLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// ConfigureLogger replaces the global logger and level. Pretty output honors
// NO_COLOR: any non-empty value disables colors.
func ConfigureLogger(w io.Writer, opts LogOptions) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if opts.Pretty {
		w = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
			NoColor:    os.Getenv("NO_COLOR") != "",
		}
	}
	ctx := zerolog.New(w).With().Timestamp()
	if opts.Version != "" {
		ctx = ctx.Str("version", opts.Version)
	}
	log.Logger = ctx.Logger()
	zerolog.SetGlobalLevel(ParseLevel(opts.Level))
}

// FirstNonEmpty returns the first non-blank value, unchanged, or "".
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
