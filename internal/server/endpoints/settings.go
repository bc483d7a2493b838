package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/leaflet/internal/api"
	"github.com/jackzampolin/leaflet/internal/config"
	"github.com/jackzampolin/leaflet/internal/svcctx"
)

// SettingsResponse is the active configuration with API keys masked.
type SettingsResponse struct {
	ConfigFile string         `json:"config_file,omitempty"`
	Settings   *config.Config `json:"settings"`
}

// GetSettingsEndpoint handles GET /api/settings.
type GetSettingsEndpoint struct{}

func (e *GetSettingsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/settings", e.handler
}

func (e *GetSettingsEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary		Get settings
//	@Description	The active configuration. Literal API keys are masked; ${VAR} references are shown as written.
//	@Tags			settings
//	@Produce		json
//	@Success		200	{object}	SettingsResponse
//	@Failure		500	{object}	ErrorResponse
//	@Router			/api/settings [get]
func (e *GetSettingsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	mgr := svcctx.ConfigFrom(r.Context())
	if mgr == nil {
		writeError(w, http.StatusInternalServerError, "config not available")
		return
	}
	writeJSON(w, http.StatusOK, SettingsResponse{
		ConfigFile: mgr.ConfigFile(),
		Settings:   mgr.Get().Redacted(),
	})
}

func (e *GetSettingsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "settings",
		Short: "Show the server's active configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp SettingsResponse
			if err := api.NewClient(getServerURL()).Get(cmd.Context(), "/api/settings", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
