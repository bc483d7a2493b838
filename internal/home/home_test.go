package home

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNew(t *testing.T) {
	t.Run("with explicit path", func(t *testing.T) {
		dir, err := New("/tmp/test-leaflet")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if dir.Path() != "/tmp/test-leaflet" {
			t.Errorf("expected path /tmp/test-leaflet, got %s", dir.Path())
		}
	})

	t.Run("with empty path uses default", func(t *testing.T) {
		dir, err := New("")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		home, _ := os.UserHomeDir()
		expected := filepath.Join(home, DefaultDirName)
		if dir.Path() != expected {
			t.Errorf("expected path %s, got %s", expected, dir.Path())
		}
	})
}

func TestDir_Paths(t *testing.T) {
	dir, _ := New("/tmp/test-leaflet")

	tests := map[string]struct{ got, want string }{
		"PagesPath":  {dir.PagesPath(), "/tmp/test-leaflet/pages"},
		"LogPath":    {dir.LogPath(), "/tmp/test-leaflet/logs/leaflet.log"},
		"ConfigPath": {dir.ConfigPath(), "/tmp/test-leaflet/config.yaml"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, tt.got)
			}
		})
	}
}

func TestDir_EnsureExists(t *testing.T) {
	dir, err := New(filepath.Join(t.TempDir(), "leaflet-test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if dir.Exists() {
		t.Error("directory should not exist before EnsureExists")
	}
	if err := dir.EnsureExists(); err != nil {
		t.Fatalf("EnsureExists failed: %v", err)
	}
	if !dir.Exists() {
		t.Error("directory should exist after EnsureExists")
	}
	if _, err := os.Stat(dir.PagesPath()); os.IsNotExist(err) {
		t.Error("pages directory should exist after EnsureExists")
	}
}

func TestDir_ConfigExists(t *testing.T) {
	dir, _ := New(t.TempDir())

	if dir.ConfigExists() {
		t.Error("config should not exist initially")
	}
	if err := os.WriteFile(dir.ConfigPath(), []byte("log:\n  level: debug\n"), 0o644); err != nil {
		t.Fatalf("failed to create test config: %v", err)
	}
	if !dir.ConfigExists() {
		t.Error("config should exist after creation")
	}
}

func TestDir_HasPages(t *testing.T) {
	dir, _ := New(t.TempDir())
	if dir.HasPages() {
		t.Error("HasPages() = true before the directory exists")
	}
	dir.EnsureExists()
	if dir.HasPages() {
		t.Error("HasPages() = true for empty directory")
	}
	os.WriteFile(filepath.Join(dir.PagesPath(), "page-1.png"), []byte("x"), 0o644)
	if !dir.HasPages() {
		t.Error("HasPages() = false with a file present")
	}
}
