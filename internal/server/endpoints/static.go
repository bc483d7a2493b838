package endpoints

import (
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/leaflet/internal/api"
	"github.com/jackzampolin/leaflet/web"
)

// StaticEndpoint serves the embedded flipbook and sidebar. Paths that are
// not assets, such as a shared /page/3 link, get the viewer shell so the
// front-end can route them.
type StaticEndpoint struct{}

var _ api.Endpoint = (*StaticEndpoint)(nil)

func (e *StaticEndpoint) Route() (string, string, http.HandlerFunc) {
	assets, err := web.DistFS()
	if err != nil {
		return "GET", "/{path...}", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "viewer assets not available", http.StatusInternalServerError)
		}
	}
	files := http.FileServer(http.FS(assets))

	return "GET", "/{path...}", func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
		switch {
		case strings.HasPrefix(name, "api/"):
			writeError(w, http.StatusNotFound, "no such endpoint")
		case name == "" || name == "." || name == "index.html":
			serveShell(w, assets)
		case isAsset(assets, name):
			files.ServeHTTP(w, r)
		default:
			serveShell(w, assets)
		}
	}
}

func (e *StaticEndpoint) RequiresInit() bool { return false }

func (e *StaticEndpoint) Command(func() string) *cobra.Command { return nil }

func isAsset(assets fs.FS, name string) bool {
	info, err := fs.Stat(assets, name)
	return err == nil && !info.IsDir()
}

// serveShell writes index.html uncached so a rebuilt binary is picked up on
// reload.
func serveShell(w http.ResponseWriter, assets fs.FS) {
	shell, err := fs.ReadFile(assets, "index.html")
	if err != nil {
		http.Error(w, "viewer assets not available", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(shell)
}
