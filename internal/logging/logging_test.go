package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	t.Setenv(EnvLogLevel, "")

	lvl, err := ParseLevel("", zerolog.InfoLevel)
	if err != nil || lvl != zerolog.InfoLevel {
		t.Fatalf("expected default info, got %v %v", lvl, err)
	}
	lvl, err = ParseLevel("DEBUG", zerolog.InfoLevel)
	if err != nil || lvl != zerolog.DebugLevel {
		t.Fatalf("expected debug, got %v %v", lvl, err)
	}
	lvl, err = ParseLevel("off", zerolog.InfoLevel)
	if err != nil || lvl != zerolog.Disabled {
		t.Fatalf("expected disabled, got %v %v", lvl, err)
	}
	if _, err := ParseLevel("loud", zerolog.InfoLevel); err == nil {
		t.Fatal("expected error for unknown level")
	}

	t.Setenv(EnvLogLevel, "warn")
	lvl, _ = ParseLevel("", zerolog.InfoLevel)
	if lvl != zerolog.WarnLevel {
		t.Fatalf("expected level from %s, got %v", EnvLogLevel, lvl)
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, zerolog.InfoLevel, true)
	logger.Debug().Msg("hidden")
	logger.Info().Str("peer", "10.0.0.1:8001").Msg("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatal("debug line should be filtered at info level")
	}
	if !strings.Contains(out, `"peer":"10.0.0.1:8001"`) {
		t.Fatalf("missing structured field in %q", out)
	}
}
