package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// EnvLogLevel is the environment variable consulted when no level is given explicitly.
//
//	NODELOG=debug node serve ...
const EnvLogLevel = "NODELOG"

// ParseLevel maps a level name to a zerolog level. An empty name falls back to
// NODELOG, then to def.
func ParseLevel(name string, def zerolog.Level) (zerolog.Level, error) {
	if name == "" {
		name = os.Getenv(EnvLogLevel)
	}
	switch strings.ToLower(name) {
	case "":
		return def, nil
	case "off", "disabled":
		return zerolog.Disabled, nil
	default:
		lvl, err := zerolog.ParseLevel(strings.ToLower(name))
		if err != nil {
			return def, fmt.Errorf("unknown log level %q", name)
		}
		return lvl, nil
	}
}

// New builds the root logger. json selects machine-readable output instead of the console writer.
func New(out io.Writer, level zerolog.Level, json bool) zerolog.Logger {
	if !json {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
