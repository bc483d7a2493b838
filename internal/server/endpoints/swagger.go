package endpoints

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/swaggo/swag"

	_ "github.com/jackzampolin/leaflet/docs"
	"github.com/jackzampolin/leaflet/internal/api"
)

// SwaggerEndpoint serves the OpenAPI document. A swagger.json regenerated by
// `swag init` takes precedence over the one compiled into the binary.
type SwaggerEndpoint struct {
	SpecPath string
}

var _ api.Endpoint = (*SwaggerEndpoint)(nil)

func (e *SwaggerEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/swagger.json", e.handler
}

func (e *SwaggerEndpoint) RequiresInit() bool { return false }

func (e *SwaggerEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	doc, err := e.document()
	if err != nil {
		writeError(w, http.StatusNotFound, "swagger.json not found")
		return
	}

	// Point "try it out" at the server that answered.
	var spec map[string]any
	if err := json.Unmarshal(doc, &spec); err == nil && r.Host != "" {
		spec["host"] = r.Host
		if patched, err := json.Marshal(spec); err == nil {
			doc = patched
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Write(doc)
}

func (e *SwaggerEndpoint) document() ([]byte, error) {
	if e.SpecPath != "" {
		if data, err := os.ReadFile(e.SpecPath); err == nil {
			return data, nil
		}
	}
	doc, err := swag.ReadDoc()
	if err != nil {
		return nil, err
	}
	return []byte(doc), nil
}

func (e *SwaggerEndpoint) Command(getServerURL func() string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "swagger",
		Short: "Fetch the OpenAPI document from the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			var spec map[string]any
			if err := api.NewClient(getServerURL()).Get(cmd.Context(), "/swagger.json", &spec); err != nil {
				return err
			}
			if file != "" {
				return api.OutputToFile(spec, file)
			}
			return api.Output(spec)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Write the document to this file")
	return cmd
}

// SwaggerUIEndpoint serves a Swagger UI page backed by /swagger.json.
type SwaggerUIEndpoint struct{}

var _ api.Endpoint = (*SwaggerUIEndpoint)(nil)

const swaggerUIPage = `<!DOCTYPE html>
<html>
<head>
  <title>Leaflet API</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>SwaggerUIBundle({url: '/swagger.json', dom_id: '#swagger-ui'});</script>
</body>
</html>`

func (e *SwaggerUIEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/swagger", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(swaggerUIPage))
	}
}

func (e *SwaggerUIEndpoint) RequiresInit() bool { return false }

func (e *SwaggerUIEndpoint) Command(func() string) *cobra.Command { return nil }

// GetSwaggerSpecPath returns docs/swagger.json next to the executable, or ""
// when the binary ships without one.
func GetSwaggerSpecPath() string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	path := filepath.Join(filepath.Dir(exe), "docs", "swagger.json")
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}
