package endpoints

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/leaflet/internal/api"
	"github.com/jackzampolin/leaflet/internal/prompts"
	"github.com/jackzampolin/leaflet/internal/svcctx"
)

// PromptResponse is a resolved prompt plus its embedded default's metadata.
// DefaultHash differs from Hash while an override is active.
type PromptResponse struct {
	prompts.ResolvedPrompt
	Description string `json:"description,omitempty"`
	DefaultHash string `json:"default_hash,omitempty"`
}

type PromptsListResponse struct {
	Prompts []PromptResponse `json:"prompts"`
}

func describePrompt(resolver *prompts.Resolver, p prompts.ResolvedPrompt) PromptResponse {
	out := PromptResponse{ResolvedPrompt: p}
	if def, ok := resolver.GetEmbedded(p.Key); ok {
		out.Description, out.DefaultHash = def.Description, def.Hash
	}
	return out
}

// promptResolver writes a 500 and returns nil when no resolver is mounted.
func promptResolver(w http.ResponseWriter, r *http.Request) *prompts.Resolver {
	resolver := svcctx.PromptsFrom(r.Context())
	if resolver == nil {
		writeError(w, http.StatusInternalServerError, "prompt resolver not available")
	}
	return resolver
}

// printPrompt renders a prompt for humans: key line, then the text.
func printPrompt(p PromptResponse) {
	origin := "default"
	if p.IsOverride {
		origin = "override"
	}
	fmt.Printf("%s (%s, %.12s)\n", p.Key, origin, p.Hash)
	if p.Description != "" {
		fmt.Printf("  %s\n", p.Description)
	}
}

// ListPromptsEndpoint handles GET /api/prompts.
type ListPromptsEndpoint struct{}

func (e *ListPromptsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/prompts", e.handler
}

func (e *ListPromptsEndpoint) RequiresInit() bool { return false }
func (e *ListPromptsEndpoint) Group() string      { return "prompts" }

// handler godoc
//
//	@Summary		List prompts
//	@Description	Companion prompts as they will be sent, with override status
//	@Tags			prompts
//	@Produce		json
//	@Success		200	{object}	PromptsListResponse
//	@Failure		500	{object}	ErrorResponse
//	@Router			/api/prompts [get]
func (e *ListPromptsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	resolver := promptResolver(w, r)
	if resolver == nil {
		return
	}
	var resp PromptsListResponse
	for _, p := range resolver.All() {
		resp.Prompts = append(resp.Prompts, describePrompt(resolver, p))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (e *ListPromptsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List companion prompts",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp PromptsListResponse
			if err := api.NewClient(getServerURL()).Get(cmd.Context(), "/api/prompts", &resp); err != nil {
				return err
			}
			if api.IsStructuredOutput() {
				return api.Output(resp)
			}
			for _, p := range resp.Prompts {
				printPrompt(p)
			}
			return nil
		},
	}
}

// GetPromptEndpoint handles GET /api/prompts/{key...}.
type GetPromptEndpoint struct{}

func (e *GetPromptEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/prompts/{key...}", e.handler
}

func (e *GetPromptEndpoint) RequiresInit() bool { return false }
func (e *GetPromptEndpoint) Group() string      { return "prompts" }

// handler godoc
//
//	@Summary	Get a prompt
//	@Tags		prompts
//	@Produce	json
//	@Param		key	path		string	true	"Prompt key (e.g. companion.analyze)"
//	@Success	200	{object}	PromptResponse
//	@Failure	404	{object}	ErrorResponse
//	@Failure	500	{object}	ErrorResponse
//	@Router		/api/prompts/{key} [get]
func (e *GetPromptEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	resolver := promptResolver(w, r)
	if resolver == nil {
		return
	}
	p, err := resolver.Resolve(r.PathValue("key"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, describePrompt(resolver, *p))
}

func (e *GetPromptEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Show one prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp PromptResponse
			if err := api.NewClient(getServerURL()).Get(cmd.Context(), "/api/prompts/"+url.PathEscape(args[0]), &resp); err != nil {
				return err
			}
			if api.IsStructuredOutput() {
				return api.Output(resp)
			}
			printPrompt(resp)
			fmt.Printf("\n%s\n", resp.Text)
			return nil
		},
	}
}
