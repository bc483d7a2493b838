package api

import (
	"net/http"

	"github.com/spf13/cobra"
)

// Endpoint is one HTTP route together with the CLI command that calls it.
type Endpoint interface {
	Route() (method, path string, handler http.HandlerFunc)

	// RequiresInit reports whether the handler needs the mounted viewer
	// session; such routes answer 503 until the server has started.
	RequiresInit() bool

	// Command may return nil for routes with no CLI form, such as the
	// front-end and Swagger UI.
	Command(serverURL func() string) *cobra.Command
}
