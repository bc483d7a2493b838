package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	t.Run("console only", func(t *testing.T) {
		var buf bytes.Buffer
		logger, closer, err := New(Options{Level: "warn"}, &buf)
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		defer closer.Close()

		logger.Info("hidden")
		logger.Warn("shown", "page", 3)
		out := buf.String()
		if strings.Contains(out, "hidden") {
			t.Error("info record written at warn level")
		}
		if !strings.Contains(out, "page=3") {
			t.Errorf("output = %q, want text key/value", out)
		}
	})

	t.Run("json console", func(t *testing.T) {
		var buf bytes.Buffer
		logger, _, err := New(Options{Format: "json"}, &buf)
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		logger.Info("hello")
		if !strings.HasPrefix(buf.String(), "{") {
			t.Errorf("output = %q, want JSON", buf.String())
		}
	})

	t.Run("rotating file", func(t *testing.T) {
		var buf bytes.Buffer
		path := filepath.Join(t.TempDir(), "logs", "leaflet.log")
		logger, closer, err := New(Options{File: path}, &buf)
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		logger.With("component", "test").Info("flipped", "sheet", 2)
		if err := closer.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("ReadFile() error = %v", err)
		}
		if !strings.Contains(string(data), `"component":"test"`) || !strings.Contains(string(data), `"sheet":2`) {
			t.Errorf("file = %s", data)
		}
		if !strings.Contains(buf.String(), "flipped") {
			t.Error("console did not receive the record")
		}
	})

	t.Run("bad format", func(t *testing.T) {
		if _, _, err := New(Options{Format: "xml"}, nil); err == nil {
			t.Error("expected error for unknown format")
		}
	})
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
