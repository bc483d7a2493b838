package endpoints

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/leaflet/internal/api"
	"github.com/jackzampolin/leaflet/internal/llmcall"
	"github.com/jackzampolin/leaflet/internal/svcctx"
)

// LLMCallsResponse contains a list of model calls.
type LLMCallsResponse struct {
	Calls []llmcall.Call `json:"calls"`
	Total int            `json:"total"`
}

// LLMCallResponse contains a single model call.
type LLMCallResponse struct {
	Call *llmcall.Call `json:"call,omitempty"`
}

// UsageResponse holds call statistics overall and per operation.
type UsageResponse struct {
	Overall     llmcall.Stats            `json:"overall"`
	ByOperation map[string]llmcall.Stats `json:"by_operation"`
}

// ListLLMCallsEndpoint handles GET /api/companion/calls.
type ListLLMCallsEndpoint struct{}

func (e *ListLLMCallsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/companion/calls", e.handler
}

func (e *ListLLMCallsEndpoint) RequiresInit() bool { return false }
func (e *ListLLMCallsEndpoint) Group() string      { return "calls" }

// handler godoc
//
//	@Summary		List model calls
//	@Description	Recent companion model calls, newest first, with optional filters
//	@Tags			calls
//	@Produce		json
//	@Param			operation	query		string	false	"analyze, chat or summarize"
//	@Param			prompt_key	query		string	false	"Filter by prompt key"
//	@Param			page		query		int		false	"Filter by page index"
//	@Param			success		query		bool	false	"Filter by success status (true or false)"
//	@Param			after		query		string	false	"Only calls after this RFC3339 timestamp"
//	@Param			limit		query		int		false	"Max results (default 100)"
//	@Param			offset		query		int		false	"Result offset"
//	@Success		200			{object}	LLMCallsResponse
//	@Failure		400			{object}	ErrorResponse
//	@Failure		500			{object}	ErrorResponse
//	@Router			/api/companion/calls [get]
func (e *ListLLMCallsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	calls := svcctx.CallsFrom(r.Context())
	if calls == nil {
		writeError(w, http.StatusInternalServerError, "call recorder not available")
		return
	}

	filter, err := parseCallFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if filter.Limit <= 0 {
		filter.Limit = 100
	}

	list := calls.List(filter)
	if list == nil {
		list = []llmcall.Call{}
	}
	writeJSON(w, http.StatusOK, LLMCallsResponse{Calls: list, Total: len(list)})
}

// parseCallFilter reads the list filters from the query string. Absent
// parameters leave the filter field unset.
func parseCallFilter(q url.Values) (llmcall.QueryFilter, error) {
	f := llmcall.QueryFilter{Operation: q.Get("operation"), PromptKey: q.Get("prompt_key")}

	var err error
	if f.Limit, err = queryInt(q, "limit"); err != nil {
		return f, err
	}
	if f.Offset, err = queryInt(q, "offset"); err != nil {
		return f, err
	}
	if q.Has("page") {
		page, err := queryInt(q, "page")
		if err != nil {
			return f, err
		}
		f.PageIndex = &page
	}
	if v := q.Get("success"); v != "" {
		ok, err := strconv.ParseBool(v)
		if err != nil {
			return f, fmt.Errorf("invalid success: %q must be true or false", v)
		}
		f.Success = &ok
	}
	if v := q.Get("after"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, fmt.Errorf("invalid after: %q is not an RFC3339 time", v)
		}
		f.After = &t
	}
	return f, nil
}

func queryInt(q url.Values, key string) (int, error) {
	v := q.Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q must be an integer", key, v)
	}
	return n, nil
}

func (e *ListLLMCallsEndpoint) Command(getServerURL func() string) *cobra.Command {
	var operation, promptKey string
	var page, limit, offset int
	var successOnly, failedOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent model calls",
		RunE: func(cmd *cobra.Command, args []string) error {
			params := url.Values{}
			if operation != "" {
				params.Set("operation", operation)
			}
			if promptKey != "" {
				params.Set("prompt_key", promptKey)
			}
			if page >= 0 {
				params.Set("page", strconv.Itoa(page))
			}
			if successOnly {
				params.Set("success", "true")
			}
			if failedOnly {
				params.Set("success", "false")
			}
			if limit > 0 {
				params.Set("limit", strconv.Itoa(limit))
			}
			if offset > 0 {
				params.Set("offset", strconv.Itoa(offset))
			}

			path := "/api/companion/calls"
			if len(params) > 0 {
				path += "?" + params.Encode()
			}

			var resp LLMCallsResponse
			if err := api.NewClient(getServerURL()).Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&operation, "operation", "", "Filter by operation (analyze, chat, summarize)")
	cmd.Flags().StringVar(&promptKey, "prompt-key", "", "Filter by prompt key")
	cmd.Flags().IntVar(&page, "page", -1, "Filter by page index")
	cmd.Flags().BoolVar(&successOnly, "success", false, "Only show successful calls")
	cmd.Flags().BoolVar(&failedOnly, "failed", false, "Only show failed calls")
	cmd.Flags().IntVar(&limit, "limit", 100, "Max results")
	cmd.Flags().IntVar(&offset, "offset", 0, "Result offset")
	return cmd
}

// GetLLMCallEndpoint handles GET /api/companion/calls/{id}.
type GetLLMCallEndpoint struct{}

func (e *GetLLMCallEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/companion/calls/{id}", e.handler
}

func (e *GetLLMCallEndpoint) RequiresInit() bool { return false }
func (e *GetLLMCallEndpoint) Group() string      { return "calls" }

// handler godoc
//
//	@Summary		Get a model call
//	@Tags			calls
//	@Produce		json
//	@Param			id	path		string	true	"Call ID"
//	@Success		200	{object}	LLMCallResponse
//	@Failure		404	{object}	ErrorResponse
//	@Failure		500	{object}	ErrorResponse
//	@Router			/api/companion/calls/{id} [get]
func (e *GetLLMCallEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	calls := svcctx.CallsFrom(r.Context())
	if calls == nil {
		writeError(w, http.StatusInternalServerError, "call recorder not available")
		return
	}

	call, ok := calls.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "call not found")
		return
	}
	writeJSON(w, http.StatusOK, LLMCallResponse{Call: call})
}

func (e *GetLLMCallEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get a model call by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp LLMCallResponse
			if err := api.NewClient(getServerURL()).Get(cmd.Context(), "/api/companion/calls/"+url.PathEscape(args[0]), &resp); err != nil {
				return err
			}
			return api.Output(resp.Call)
		},
	}
}

// UsageEndpoint handles GET /api/companion/usage.
type UsageEndpoint struct{}

func (e *UsageEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/companion/usage", e.handler
}

func (e *UsageEndpoint) RequiresInit() bool { return false }
func (e *UsageEndpoint) Group() string      { return "calls" }

// handler godoc
//
//	@Summary		Model usage statistics
//	@Description	Latency percentiles and token totals over the recorded calls
//	@Tags			calls
//	@Produce		json
//	@Success		200	{object}	UsageResponse
//	@Failure		500	{object}	ErrorResponse
//	@Router			/api/companion/usage [get]
func (e *UsageEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	calls := svcctx.CallsFrom(r.Context())
	if calls == nil {
		writeError(w, http.StatusInternalServerError, "call recorder not available")
		return
	}
	writeJSON(w, http.StatusOK, UsageResponse{
		Overall:     calls.Stats(llmcall.QueryFilter{}),
		ByOperation: calls.StatsByOperation(),
	})
}

func (e *UsageEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: "Show model latency and token usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp UsageResponse
			if err := api.NewClient(getServerURL()).Get(cmd.Context(), "/api/companion/usage", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
