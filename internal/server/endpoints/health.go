package endpoints

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/leaflet/internal/api"
	"github.com/jackzampolin/leaflet/internal/svcctx"
)

// HealthResponse is the response for health check endpoints.
type HealthResponse struct {
	Status string `json:"status"`
	Viewer string `json:"viewer,omitempty"`
}

// HealthEndpoint handles GET /health.
type HealthEndpoint struct{}

func (e *HealthEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/health", e.handler
}

func (e *HealthEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary		Liveness check
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Router			/health [get]
func (e *HealthEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (e *HealthEndpoint) Command(getServerURL func() string) *cobra.Command {
	return probeCommand("health", "Check that the server is up", "/health", getServerURL)
}

// ReadyEndpoint handles GET /ready.
type ReadyEndpoint struct{}

func (e *ReadyEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/ready", e.handler
}

func (e *ReadyEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary		Readiness check
//	@Description	Reports ok once the viewer session is mounted
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Failure		503	{object}	HealthResponse
//	@Router			/ready [get]
func (e *ReadyEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	if svcctx.ViewerFrom(r.Context()) == nil {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "degraded", Viewer: "not_initialized"})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Viewer: "mounted"})
}

func (e *ReadyEndpoint) Command(getServerURL func() string) *cobra.Command {
	return probeCommand("ready", "Check that the viewer session is mounted", "/ready", getServerURL)
}

// probeCommand prints the status (and viewer state, when reported) of a
// health probe route.
func probeCommand(use, short, path string, getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp HealthResponse
			if err := api.NewClient(getServerURL()).Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			if api.IsStructuredOutput() {
				return api.Output(resp)
			}
			fmt.Println(resp.Status)
			if resp.Viewer != "" {
				fmt.Printf("viewer %s\n", resp.Viewer)
			}
			return nil
		},
	}
}

// StatusResponse is the detailed status response.
type StatusResponse struct {
	Server    string          `json:"server"`
	Home      string          `json:"home,omitempty"`
	Providers []string        `json:"providers"`
	Companion CompanionStatus `json:"companion"`
	Book      BookStatus      `json:"book"`
}

// CompanionStatus reports whether the companion has a model client.
type CompanionStatus struct {
	Enabled  bool   `json:"enabled"`
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
}

// BookStatus summarizes the flipbook cursor.
type BookStatus struct {
	Title        string `json:"title"`
	PageCount    int    `json:"page_count"`
	CurrentSheet int    `json:"current_sheet"`
	TotalSheets  int    `json:"total_sheets"`
}

// StatusEndpoint handles GET /status.
type StatusEndpoint struct{}

func (e *StatusEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/status", e.handler
}

func (e *StatusEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary		Server status
//	@Description	Registered providers, companion model and book cursor
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	StatusResponse
//	@Router			/status [get]
func (e *StatusEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := StatusResponse{Server: "running", Providers: []string{}}

	if registry := svcctx.RegistryFrom(ctx); registry != nil {
		resp.Providers = registry.ListLLM()
	}
	if h := svcctx.HomeFrom(ctx); h != nil {
		resp.Home = h.Path()
	}
	if cfg := svcctx.ConfigFrom(ctx); cfg != nil {
		c := cfg.Get()
		resp.Companion.Provider = c.Companion.Provider
		resp.Companion.Model = c.CompanionModel()
	}
	if v := svcctx.ViewerFrom(ctx); v != nil {
		resp.Companion.Enabled = v.Companion().Enabled()
		resp.Book = BookStatus{
			Title:        v.Library().Title(),
			PageCount:    v.Book().PageCount(),
			CurrentSheet: v.Book().CurrentSheet(),
			TotalSheets:  v.Book().TotalSheets(),
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (e *StatusEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Get detailed server status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp StatusResponse
			if err := client.Get(cmd.Context(), "/status", &resp); err != nil {
				return err
			}
			if api.IsStructuredOutput() {
				return api.Output(resp)
			}
			fmt.Printf("Server: %s\n", resp.Server)
			fmt.Printf("Book:   %q, %d pages, sheet %d/%d\n",
				resp.Book.Title, resp.Book.PageCount, resp.Book.CurrentSheet, resp.Book.TotalSheets)
			fmt.Printf("Companion:\n")
			fmt.Printf("  Enabled:  %v\n", resp.Companion.Enabled)
			fmt.Printf("  Provider: %s\n", resp.Companion.Provider)
			fmt.Printf("  Model:    %s\n", resp.Companion.Model)
			fmt.Printf("Providers: %v\n", resp.Providers)
			return nil
		},
	}
}
