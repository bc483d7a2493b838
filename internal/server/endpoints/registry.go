package endpoints

import (
	"github.com/jackzampolin/leaflet/internal/api"
)

// Config holds dependencies needed by some endpoints.
type Config struct {
	SwaggerSpecPath string
}

// All returns all endpoint instances.
func All(cfg Config) []api.Endpoint {
	return []api.Endpoint{
		// Health endpoints
		&HealthEndpoint{},
		&ReadyEndpoint{},
		&StatusEndpoint{},

		// Page endpoints
		&ListPagesEndpoint{},
		&UploadPagesEndpoint{},
		&PageImageEndpoint{},

		// Viewer endpoints
		&ViewerStateEndpoint{},
		NextEndpoint(),
		PrevEndpoint(),
		&FlipSheetEndpoint{},
		&KeyEndpoint{},
		&LayoutEndpoint{},

		// Companion endpoints
		&CompanionStateEndpoint{},
		&AnalyzeEndpoint{},
		&SummarizeEndpoint{},
		&ChatEndpoint{},
		&ClearTranscriptEndpoint{},

		// Model call history
		&ListLLMCallsEndpoint{},
		&GetLLMCallEndpoint{},
		&UsageEndpoint{},

		// Settings and prompts
		&GetSettingsEndpoint{},
		&ListPromptsEndpoint{},
		&GetPromptEndpoint{},

		&MetricsEndpoint{},

		// Swagger/OpenAPI endpoints
		&SwaggerEndpoint{SpecPath: cfg.SwaggerSpecPath},
		&SwaggerUIEndpoint{},

		// Static files (catch-all, must be last)
		&StaticEndpoint{},
	}
}
