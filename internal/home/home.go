// Package home resolves the leaflet home directory and the files kept in it:
//
//	~/.leaflet/
//	  config.yaml
//	  pages/          page images loaded when serve has no --pages
//	  logs/leaflet.log
package home

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultDirName is created under the user's home when no --home is given.
const DefaultDirName = ".leaflet"

const (
	configFile = "config.yaml"
	pagesDir   = "pages"
	logFile    = "logs/leaflet.log"
)

// Dir is a leaflet home rooted at a fixed path.
type Dir struct {
	root string
}

// New returns the home at path, or ~/.leaflet when path is empty.
func New(path string) (*Dir, error) {
	if path != "" {
		return &Dir{root: path}, nil
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve user home: %w", err)
	}
	return &Dir{root: filepath.Join(userHome, DefaultDirName)}, nil
}

func (d *Dir) Path() string       { return d.root }
func (d *Dir) ConfigPath() string { return d.join(configFile) }
func (d *Dir) PagesPath() string  { return d.join(pagesDir) }
func (d *Dir) LogPath() string    { return d.join(logFile) }

func (d *Dir) join(rel string) string {
	return filepath.Join(d.root, filepath.FromSlash(rel))
}

// EnsureExists creates the root and the pages directory beneath it.
func (d *Dir) EnsureExists() error {
	if err := os.MkdirAll(d.PagesPath(), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", d.PagesPath(), err)
	}
	return nil
}

func (d *Dir) Exists() bool       { return exists(d.root) }
func (d *Dir) ConfigExists() bool { return exists(d.ConfigPath()) }

// HasPages reports whether the pages directory holds at least one file.
func (d *Dir) HasPages() bool {
	entries, err := os.ReadDir(d.PagesPath())
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e.Type().IsRegular() {
			return true
		}
	}
	return false
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
