package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug": zerolog.DebugLevel,
		"info":  zerolog.InfoLevel,
		"WARN":  zerolog.WarnLevel,
		"error": zerolog.ErrorLevel,
	}
	for in, want := range cases {
		got, err := parseLevel(in)
		if err != nil {
			t.Errorf("parseLevel(%q) error: %v", in, err)
		}
		if got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := parseLevel("loud"); err == nil {
		t.Error("parseLevel accepted an invalid level")
	}
}

// Component loggers must be directly chainable and carry the component
// field through to the sink.
func TestComponentChainWritesToFile(t *testing.T) {
	dir := t.TempDir()
	if err := Init(Config{Level: "debug", Path: dir, Format: "json"}); err != nil {
		t.Fatal(err)
	}
	defer Close()

	Component("testcomp").Info().Str("k", "v").Msg("hello from test")

	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) == 0 {
		t.Fatalf("no log file written: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	if !strings.Contains(out, "hello from test") {
		t.Errorf("log output missing message: %s", out)
	}
	if !strings.Contains(out, `"component":"testcomp"`) {
		t.Errorf("log output missing component field: %s", out)
	}
}
