package endpoints

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/leaflet/internal/api"
	"github.com/jackzampolin/leaflet/internal/flipbook"
	"github.com/jackzampolin/leaflet/internal/svcctx"
)

// StepResponse reports one navigation input and the resulting state.
type StepResponse struct {
	Moved bool           `json:"moved"`
	State flipbook.State `json:"state"`
}

// ViewerStateEndpoint handles GET /api/viewer.
type ViewerStateEndpoint struct{}

var _ api.Endpoint = (*ViewerStateEndpoint)(nil)

func (e *ViewerStateEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/viewer", e.handler
}

func (e *ViewerStateEndpoint) RequiresInit() bool { return true }
func (e *ViewerStateEndpoint) Group() string      { return "viewer" }

// handler godoc
//
//	@Summary		Get flipbook state
//	@Description	Cursor, visible pages, control states and every sheet's derived flip state
//	@Tags			viewer
//	@Produce		json
//	@Success		200	{object}	flipbook.State
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/viewer [get]
func (e *ViewerStateEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, svcctx.ViewerFrom(r.Context()).Book().State())
}

func (e *ViewerStateEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Show the flipbook state",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp flipbook.State
			if err := api.NewClient(getServerURL()).Get(cmd.Context(), "/api/viewer", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// stepEndpoint is a POST endpoint driving one navigator input.
type stepEndpoint struct {
	path  string
	use   string
	short string
	step  func(nav *flipbook.Navigator) bool
}

func (e *stepEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", e.path, e.handler
}

func (e *stepEndpoint) RequiresInit() bool { return true }
func (e *stepEndpoint) Group() string      { return "viewer" }

func (e *stepEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	v := svcctx.ViewerFrom(r.Context())
	moved := e.step(v.Navigator())
	writeJSON(w, http.StatusOK, StepResponse{Moved: moved, State: v.Book().State()})
}

func (e *stepEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   e.use,
		Short: e.short,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp StepResponse
			if err := api.NewClient(getServerURL()).Post(cmd.Context(), e.path, nil, &resp); err != nil {
				return err
			}
			if !resp.Moved {
				fmt.Println("no sheet to turn")
			}
			return api.Output(resp.State)
		},
	}
}

// NextEndpoint handles POST /api/viewer/next.
//
//	@Summary		Next sheet
//	@Description	Flip the next sheet, as the next button does. A no-op at the back cover.
//	@Tags			viewer
//	@Produce		json
//	@Success		200	{object}	StepResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/viewer/next [post]
func NextEndpoint() api.Endpoint {
	return &stepEndpoint{
		path:  "/api/viewer/next",
		use:   "next",
		short: "Turn to the next sheet",
		step:  (*flipbook.Navigator).PressNext,
	}
}

// PrevEndpoint handles POST /api/viewer/prev.
//
//	@Summary		Previous sheet
//	@Description	Unflip the previous sheet, as the prev button does. A no-op at the front cover.
//	@Tags			viewer
//	@Produce		json
//	@Success		200	{object}	StepResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/viewer/prev [post]
func PrevEndpoint() api.Endpoint {
	return &stepEndpoint{
		path:  "/api/viewer/prev",
		use:   "prev",
		short: "Turn back one sheet",
		step:  (*flipbook.Navigator).PressPrev,
	}
}

// FlipSheetEndpoint handles POST /api/viewer/sheets/{index}/flip.
type FlipSheetEndpoint struct{}

var _ api.Endpoint = (*FlipSheetEndpoint)(nil)

func (e *FlipSheetEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/viewer/sheets/{index}/flip", e.handler
}

func (e *FlipSheetEndpoint) RequiresInit() bool { return true }
func (e *FlipSheetEndpoint) Group() string      { return "viewer" }

// handler godoc
//
//	@Summary		Click a sheet
//	@Description	Flip an unflipped sheet forward or a flipped one back, one step at a time
//	@Tags			viewer
//	@Produce		json
//	@Param			index	path		int	true	"Sheet index"
//	@Success		200		{object}	StepResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/viewer/sheets/{index}/flip [post]
func (e *FlipSheetEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	index, err := pathIndex(r, "index")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	v := svcctx.ViewerFrom(r.Context())
	moved := v.Navigator().ClickSheet(index)
	writeJSON(w, http.StatusOK, StepResponse{Moved: moved, State: v.Book().State()})
}

func (e *FlipSheetEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "flip <sheet>",
		Short: "Click a sheet to flip it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp StepResponse
			path := "/api/viewer/sheets/" + url.PathEscape(args[0]) + "/flip"
			if err := api.NewClient(getServerURL()).Post(cmd.Context(), path, nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// KeyRequest is a keyboard event.
type KeyRequest struct {
	Key string `json:"key"`
}

// KeyResponse reports how many listeners received the key.
type KeyResponse struct {
	Key       string         `json:"key"`
	Listeners int            `json:"listeners"`
	State     flipbook.State `json:"state"`
}

// KeyEndpoint handles POST /api/viewer/keys.
type KeyEndpoint struct{}

var _ api.Endpoint = (*KeyEndpoint)(nil)

func (e *KeyEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/viewer/keys", e.handler
}

func (e *KeyEndpoint) RequiresInit() bool { return true }
func (e *KeyEndpoint) Group() string      { return "viewer" }

// handler godoc
//
//	@Summary		Dispatch a key
//	@Description	Deliver a keyboard event to every mounted listener. ArrowRight and PageDown advance; ArrowLeft and PageUp go back.
//	@Tags			viewer
//	@Accept			json
//	@Produce		json
//	@Param			request	body		KeyRequest	true	"Key event"
//	@Success		200		{object}	KeyResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/viewer/keys [post]
func (e *KeyEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req KeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Key == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}
	v := svcctx.ViewerFrom(r.Context())
	n := v.Keys().Dispatch(req.Key)
	writeJSON(w, http.StatusOK, KeyResponse{Key: req.Key, Listeners: n, State: v.Book().State()})
}

func (e *KeyEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "key <name>",
		Short: "Send a key (ArrowRight, ArrowLeft, PageDown, PageUp)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp KeyResponse
			if err := api.NewClient(getServerURL()).Post(cmd.Context(), "/api/viewer/keys", KeyRequest{Key: args[0]}, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// LayoutResponse is a fitted page size.
type LayoutResponse struct {
	flipbook.PageSize
	SpreadWidth int `json:"spread_width"`
}

// LayoutEndpoint handles GET /api/viewer/layout.
type LayoutEndpoint struct{}

var _ api.Endpoint = (*LayoutEndpoint)(nil)

func (e *LayoutEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/viewer/layout", e.handler
}

func (e *LayoutEndpoint) RequiresInit() bool { return true }
func (e *LayoutEndpoint) Group() string      { return "viewer" }

// handler godoc
//
//	@Summary		Fit page size
//	@Description	Page dimensions for a viewport. Mode defaults from the viewport width.
//	@Tags			viewer
//	@Produce		json
//	@Param			width	query		number	true	"Viewport width"
//	@Param			height	query		number	true	"Viewport height"
//	@Param			mode	query		string	false	"single or double"
//	@Success		200		{object}	LayoutResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/viewer/layout [get]
func (e *LayoutEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	width, err := viewportDim(q.Get("width"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid width: %q", q.Get("width")))
		return
	}
	height, err := viewportDim(q.Get("height"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid height: %q", q.Get("height")))
		return
	}

	var mode *flipbook.Mode
	if s := q.Get("mode"); s != "" {
		m, err := flipbook.ParseMode(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		mode = &m
	}

	size := svcctx.ViewerFrom(r.Context()).Layout(flipbook.Viewport{Width: width, Height: height}, mode)
	writeJSON(w, http.StatusOK, LayoutResponse{PageSize: size, SpreadWidth: size.SpreadWidth()})
}

// viewportDim parses a finite, non-negative viewport dimension.
func viewportDim(v string) (float64, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0, fmt.Errorf("%q is not a finite non-negative number", v)
	}
	return f, nil
}

func (e *LayoutEndpoint) Command(getServerURL func() string) *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "layout <width> <height>",
		Short: "Compute the page size for a viewport",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := url.Values{}
			params.Set("width", args[0])
			params.Set("height", args[1])
			if mode != "" {
				params.Set("mode", mode)
			}
			var resp LayoutResponse
			if err := api.NewClient(getServerURL()).Get(cmd.Context(), "/api/viewer/layout?"+params.Encode(), &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "Force single or double mode")
	return cmd
}
