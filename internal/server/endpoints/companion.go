package endpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/leaflet/internal/api"
	"github.com/jackzampolin/leaflet/internal/companion"
	"github.com/jackzampolin/leaflet/internal/svcctx"
)

// writeSessionError maps session errors to HTTP statuses.
func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, companion.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, companion.ErrNoPages), errors.Is(err, companion.ErrStale):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, companion.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// CompanionStateEndpoint handles GET /api/companion.
type CompanionStateEndpoint struct{}

var _ api.Endpoint = (*CompanionStateEndpoint)(nil)

func (e *CompanionStateEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/companion", e.handler
}

func (e *CompanionStateEndpoint) RequiresInit() bool { return true }
func (e *CompanionStateEndpoint) Group() string      { return "companion" }

// handler godoc
//
//	@Summary		Get sidebar state
//	@Description	Observed page, chat transcript and latest analysis
//	@Tags			companion
//	@Produce		json
//	@Success		200	{object}	companion.SessionState
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/companion [get]
func (e *CompanionStateEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, svcctx.ViewerFrom(r.Context()).Session().State())
}

func (e *CompanionStateEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Show the transcript and latest analysis",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp companion.SessionState
			if err := api.NewClient(getServerURL()).Get(cmd.Context(), "/api/companion", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// AnalyzeEndpoint handles POST /api/companion/analyze.
type AnalyzeEndpoint struct{}

var _ api.Endpoint = (*AnalyzeEndpoint)(nil)

func (e *AnalyzeEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/companion/analyze", e.handler
}

func (e *AnalyzeEndpoint) RequiresInit() bool { return true }
func (e *AnalyzeEndpoint) Group() string      { return "companion" }

// handler godoc
//
//	@Summary		Analyze current page
//	@Description	Ask the model for a concise summary of the page the flipbook last reported.
//	@Description	Model failures are reported as fallback text, not as errors.
//	@Tags			companion
//	@Produce		json
//	@Success		200	{object}	companion.Analysis
//	@Failure		409	{object}	ErrorResponse	"No pages, or the page changed before the reply arrived"
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/companion/analyze [post]
func (e *AnalyzeEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	a, err := svcctx.ViewerFrom(r.Context()).Session().Analyze(r.Context())
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (e *AnalyzeEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze",
		Short: "Analyze the current page",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp companion.Analysis
			if err := api.NewClient(getServerURL()).Post(cmd.Context(), "/api/companion/analyze", nil, &resp); err != nil {
				return err
			}
			if api.IsStructuredOutput() {
				return api.Output(resp)
			}
			fmt.Printf("Page %d:\n%s\n", resp.PageIndex+1, resp.Text)
			return nil
		},
	}
}

// SummaryResponse is a structured page summary.
type SummaryResponse struct {
	PageIndex int `json:"page_index"`
	companion.AnalysisResult
}

// SummarizeEndpoint handles POST /api/companion/summarize.
type SummarizeEndpoint struct{}

var _ api.Endpoint = (*SummarizeEndpoint)(nil)

func (e *SummarizeEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/companion/summarize", e.handler
}

func (e *SummarizeEndpoint) RequiresInit() bool { return true }
func (e *SummarizeEndpoint) Group() string      { return "companion" }

// handler godoc
//
//	@Summary		Summarize current page
//	@Description	Schema-validated summary with key points
//	@Tags			companion
//	@Produce		json
//	@Success		200	{object}	SummaryResponse
//	@Failure		409	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/companion/summarize [post]
func (e *SummarizeEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	idx, result, err := svcctx.ViewerFrom(r.Context()).Session().Summarize(r.Context())
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SummaryResponse{PageIndex: idx, AnalysisResult: result})
}

func (e *SummarizeEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "summarize",
		Short: "Summarize the current page with key points",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp SummaryResponse
			if err := api.NewClient(getServerURL()).Post(cmd.Context(), "/api/companion/summarize", nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// ChatRequest is a user chat message.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatEndpoint handles POST /api/companion/chat.
type ChatEndpoint struct{}

var _ api.Endpoint = (*ChatEndpoint)(nil)

func (e *ChatEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/companion/chat", e.handler
}

func (e *ChatEndpoint) RequiresInit() bool { return true }
func (e *ChatEndpoint) Group() string      { return "companion" }

// handler godoc
//
//	@Summary		Chat about current page
//	@Description	Send a message with the current page attached. Returns the model reply.
//	@Tags			companion
//	@Accept			json
//	@Produce		json
//	@Param			request	body		ChatRequest	true	"Message"
//	@Success		200		{object}	companion.ChatMessage
//	@Failure		400		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/companion/chat [post]
func (e *ChatEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	msg, err := svcctx.ViewerFrom(r.Context()).Session().Chat(r.Context(), req.Message)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (e *ChatEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "chat <message>...",
		Short: "Ask about the current page",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp companion.ChatMessage
			req := ChatRequest{Message: strings.Join(args, " ")}
			if err := api.NewClient(getServerURL()).Post(cmd.Context(), "/api/companion/chat", req, &resp); err != nil {
				return err
			}
			if api.IsStructuredOutput() {
				return api.Output(resp)
			}
			fmt.Println(resp.Text)
			return nil
		},
	}
}

// ClearTranscriptEndpoint handles DELETE /api/companion/transcript.
type ClearTranscriptEndpoint struct{}

var _ api.Endpoint = (*ClearTranscriptEndpoint)(nil)

func (e *ClearTranscriptEndpoint) Route() (string, string, http.HandlerFunc) {
	return "DELETE", "/api/companion/transcript", e.handler
}

func (e *ClearTranscriptEndpoint) RequiresInit() bool { return true }
func (e *ClearTranscriptEndpoint) Group() string      { return "companion" }

// handler godoc
//
//	@Summary		Clear transcript
//	@Tags			companion
//	@Success		204
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/companion/transcript [delete]
func (e *ClearTranscriptEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	svcctx.ViewerFrom(r.Context()).Session().ClearTranscript()
	w.WriteHeader(http.StatusNoContent)
}

func (e *ClearTranscriptEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Clear the chat transcript",
		RunE: func(cmd *cobra.Command, args []string) error {
			return api.NewClient(getServerURL()).Delete(cmd.Context(), "/api/companion/transcript")
		},
	}
}
