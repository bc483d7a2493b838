package server

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jackzampolin/leaflet/internal/companion"
	"github.com/jackzampolin/leaflet/internal/config"
	"github.com/jackzampolin/leaflet/internal/flipbook"
	"github.com/jackzampolin/leaflet/internal/metrics"
	"github.com/jackzampolin/leaflet/internal/providers"
	"github.com/jackzampolin/leaflet/internal/server/endpoints"
	"github.com/jackzampolin/leaflet/internal/testutil"
)

type testEnv struct {
	srv  *Server
	http *httptest.Server
	mock *providers.MockClient
}

// newTestEnv builds a server over pageCount fixture pages with a mock model
// registered as the companion's provider.
func newTestEnv(t *testing.T, pageCount int, mount bool) *testEnv {
	t.Helper()

	mock := providers.NewMockClient()
	mock.ResponseText = "A spring sale leaflet."
	registry := providers.NewRegistry()
	registry.RegisterLLM("gemini", mock)

	cfg := testutil.NewServerConfig(t, pageCount)
	srv, err := New(Config{
		PagesDir: cfg.PagesDir,
		Registry: registry,
		Metrics:  metrics.New(false),
		Logger:   cfg.Logger,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if mount {
		if err := srv.Mount(); err != nil {
			t.Fatalf("Mount() error = %v", err)
		}
	}

	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		hs.Close()
		srv.viewer.Close()
	})
	return &testEnv{srv: srv, http: hs, mock: mock}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		r = bytes.NewReader(data)
	}
	req, _ := http.NewRequest(method, e.http.URL+path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s decode error = %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func TestServer_RequiresMount(t *testing.T) {
	env := newTestEnv(t, 2, false)

	if code := env.do(t, "GET", "/health", nil, nil); code != http.StatusOK {
		t.Errorf("GET /health = %d, want 200", code)
	}

	var ready endpoints.HealthResponse
	if code := env.do(t, "GET", "/ready", nil, &ready); code != http.StatusServiceUnavailable {
		t.Errorf("GET /ready = %d, want 503", code)
	}
	if ready.Viewer != "not_initialized" {
		t.Errorf("ready.Viewer = %q", ready.Viewer)
	}

	var errResp endpoints.ErrorResponse
	if code := env.do(t, "POST", "/api/viewer/next", nil, &errResp); code != http.StatusServiceUnavailable {
		t.Errorf("POST /api/viewer/next = %d, want 503", code)
	}
	if errResp.Error == "" {
		t.Error("expected JSON error body")
	}
}

func TestServer_Pages(t *testing.T) {
	env := newTestEnv(t, 3, true)

	var pages endpoints.PagesResponse
	if code := env.do(t, "GET", "/api/pages", nil, &pages); code != http.StatusOK {
		t.Fatalf("GET /api/pages = %d", code)
	}
	if pages.Total != 3 || pages.TotalSheets != 2 {
		t.Errorf("pages total=%d sheets=%d, want 3 and 2", pages.Total, pages.TotalSheets)
	}
	if pages.Pages[1].Source != "/api/pages/1/image" {
		t.Errorf("Source = %q", pages.Pages[1].Source)
	}

	t.Run("image", func(t *testing.T) {
		resp, err := http.Get(env.http.URL + "/api/pages/0/image")
		if err != nil {
			t.Fatalf("GET image error = %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
			t.Errorf("GET image = %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
		}

		if code := env.do(t, "GET", "/api/pages/9/image", nil, nil); code != http.StatusNotFound {
			t.Errorf("GET missing image = %d, want 404", code)
		}
		if code := env.do(t, "GET", "/api/pages/x/image", nil, nil); code != http.StatusBadRequest {
			t.Errorf("GET bad index = %d, want 400", code)
		}
	})

	t.Run("unknown api path is JSON 404", func(t *testing.T) {
		var errResp endpoints.ErrorResponse
		if code := env.do(t, "GET", "/api/nope", nil, &errResp); code != http.StatusNotFound {
			t.Errorf("GET /api/nope = %d, want 404", code)
		}
	})
}

func upload(t *testing.T, url string, files map[string][]byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, data := range files {
		part, _ := mw.CreateFormFile("files", name)
		part.Write(data)
	}
	mw.WriteField("title", "Spring Leaflet")
	mw.Close()

	resp, err := http.Post(url+"/api/pages", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("upload error = %v", err)
	}
	return resp
}

func TestServer_Upload(t *testing.T) {
	env := newTestEnv(t, 1, true)

	t.Run("appends images", func(t *testing.T) {
		resp := upload(t, env.http.URL, map[string][]byte{"page-2.png": testutil.PNG(t, 10)})
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("upload = %d", resp.StatusCode)
		}
		var pages endpoints.PagesResponse
		json.NewDecoder(resp.Body).Decode(&pages)
		if pages.Total != 2 || len(pages.Pages) != 1 || pages.Pages[0].Index != 1 {
			t.Errorf("upload response = %+v", pages)
		}
		if pages.Title != "Spring Leaflet" {
			t.Errorf("Title = %q", pages.Title)
		}
	})

	t.Run("rejects batch with a non-image", func(t *testing.T) {
		resp := upload(t, env.http.URL, map[string][]byte{
			"page-3.png": testutil.PNG(t, 30),
			"notes.txt":  []byte("just text"),
		})
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnsupportedMediaType {
			t.Errorf("upload = %d, want 415", resp.StatusCode)
		}
		if n := env.srv.Viewer().Library().Len(); n != 2 {
			t.Errorf("Len() = %d after rejected upload, want 2", n)
		}
	})

	t.Run("no files", func(t *testing.T) {
		resp := upload(t, env.http.URL, nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("upload = %d, want 400", resp.StatusCode)
		}
	})
}

func TestServer_UploadTooLarge(t *testing.T) {
	env := newTestEnv(t, 0, false)
	env.srv.maxUpload = 512
	if err := env.srv.Mount(); err != nil {
		t.Fatalf("Mount() error = %v", err)
	}

	resp := upload(t, env.http.URL, map[string][]byte{"big.png": bytes.Repeat([]byte{0x89}, 4096)})
	resp.Body.Close()
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("upload = %d, want 413", resp.StatusCode)
	}
}

func TestServer_Navigation(t *testing.T) {
	env := newTestEnv(t, 3, true)

	var step endpoints.StepResponse
	env.do(t, "POST", "/api/viewer/next", nil, &step)
	if !step.Moved || step.State.CurrentSheet != 1 {
		t.Fatalf("next = %+v", step)
	}
	env.do(t, "POST", "/api/viewer/next", nil, &step)
	if step.State.CurrentSheet != 2 || step.State.Controls.Next.Enabled {
		t.Fatalf("second next = %+v", step.State)
	}
	env.do(t, "POST", "/api/viewer/next", nil, &step)
	if step.Moved {
		t.Error("next moved past the back cover")
	}

	var key endpoints.KeyResponse
	if code := env.do(t, "POST", "/api/viewer/keys", endpoints.KeyRequest{Key: flipbook.KeyArrowLeft}, &key); code != http.StatusOK {
		t.Fatalf("POST keys = %d", code)
	}
	if key.Listeners != 1 || key.State.CurrentSheet != 1 {
		t.Errorf("key response = %+v", key)
	}
	if code := env.do(t, "POST", "/api/viewer/keys", endpoints.KeyRequest{}, nil); code != http.StatusBadRequest {
		t.Errorf("empty key = %d, want 400", code)
	}

	// Sheet 0 is flipped, so clicking it turns back.
	env.do(t, "POST", "/api/viewer/sheets/0/flip", nil, &step)
	if !step.Moved || step.State.CurrentSheet != 0 {
		t.Errorf("flip sheet 0 = %+v", step)
	}
	env.do(t, "POST", "/api/viewer/prev", nil, &step)
	if step.Moved {
		t.Error("prev moved before the front cover")
	}

	var state flipbook.State
	env.do(t, "GET", "/api/viewer", nil, &state)
	if state.TotalSheets != 2 || len(state.Sheets) != 2 || state.Sheets[1].BackPage != -1 {
		t.Errorf("state = %+v", state)
	}

	t.Run("companion follows the reported page", func(t *testing.T) {
		env.do(t, "POST", "/api/viewer/next", nil, &step)
		var sidebar companion.SessionState
		env.do(t, "GET", "/api/companion", nil, &sidebar)
		if sidebar.PageIndex != step.State.ReportedIndex {
			t.Errorf("companion page = %d, reported = %d", sidebar.PageIndex, step.State.ReportedIndex)
		}
	})
}

func TestServer_Layout(t *testing.T) {
	env := newTestEnv(t, 1, true)

	tests := []struct {
		query string
		code  int
		mode  flipbook.Mode
	}{
		{"width=1400&height=900", http.StatusOK, flipbook.ModeDouble},
		{"width=500&height=900", http.StatusOK, flipbook.ModeSingle},
		{"width=1400&height=900&mode=single", http.StatusOK, flipbook.ModeSingle},
		{"width=abc&height=900", http.StatusBadRequest, ""},
		{"width=NaN&height=768", http.StatusBadRequest, ""},
		{"width=1024&height=Inf", http.StatusBadRequest, ""},
		{"width=-1&height=768", http.StatusBadRequest, ""},
		{"width=1400&height=900&mode=triple", http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			var resp endpoints.LayoutResponse
			code := env.do(t, "GET", "/api/viewer/layout?"+tt.query, nil, &resp)
			if code != tt.code {
				t.Fatalf("code = %d, want %d", code, tt.code)
			}
			if tt.code == http.StatusOK && resp.Mode != tt.mode {
				t.Errorf("mode = %s, want %s", resp.Mode, tt.mode)
			}
			if tt.code == http.StatusOK && resp.Width < 200 {
				t.Errorf("width = %d below the minimum", resp.Width)
			}
		})
	}
}

func TestServer_Companion(t *testing.T) {
	env := newTestEnv(t, 2, true)

	var analysis companion.Analysis
	if code := env.do(t, "POST", "/api/companion/analyze", nil, &analysis); code != http.StatusOK {
		t.Fatalf("analyze = %d", code)
	}
	if analysis.Text != "A spring sale leaflet." || analysis.PageIndex != 0 {
		t.Errorf("analysis = %+v", analysis)
	}

	var reply companion.ChatMessage
	if code := env.do(t, "POST", "/api/companion/chat", endpoints.ChatRequest{Message: "What is on sale?"}, &reply); code != http.StatusOK {
		t.Fatalf("chat = %d", code)
	}
	if reply.Role != companion.RoleModel || reply.Loading || reply.Text == "" {
		t.Errorf("reply = %+v", reply)
	}

	if code := env.do(t, "POST", "/api/companion/chat", endpoints.ChatRequest{Message: "   "}, nil); code != http.StatusBadRequest {
		t.Errorf("blank chat = %d, want 400", code)
	}

	var sidebar companion.SessionState
	env.do(t, "GET", "/api/companion", nil, &sidebar)
	if len(sidebar.Transcript) != 2 || !sidebar.Enabled || sidebar.Analysis == nil {
		t.Errorf("sidebar = %+v", sidebar)
	}

	env.mock.ResponseJSON = json.RawMessage(`{"summary":"Spring sale","keyPoints":["20% off"]}`)
	var summary endpoints.SummaryResponse
	if code := env.do(t, "POST", "/api/companion/summarize", nil, &summary); code != http.StatusOK {
		t.Fatalf("summarize = %d", code)
	}
	if summary.Summary != "Spring sale" || len(summary.KeyPoints) != 1 {
		t.Errorf("summary = %+v", summary)
	}

	t.Run("calls are recorded", func(t *testing.T) {
		var calls endpoints.LLMCallsResponse
		env.do(t, "GET", "/api/companion/calls", nil, &calls)
		if calls.Total != 3 {
			t.Fatalf("calls total = %d, want 3", calls.Total)
		}
		if calls.Calls[0].Operation != metrics.OpSummarize {
			t.Errorf("newest call = %s, want summarize", calls.Calls[0].Operation)
		}

		env.do(t, "GET", "/api/companion/calls?operation=chat", nil, &calls)
		if calls.Total != 1 {
			t.Errorf("chat calls = %d, want 1", calls.Total)
		}

		var one endpoints.LLMCallResponse
		if code := env.do(t, "GET", "/api/companion/calls/"+calls.Calls[0].ID, nil, &one); code != http.StatusOK {
			t.Errorf("get call = %d", code)
		}
		if code := env.do(t, "GET", "/api/companion/calls/missing", nil, nil); code != http.StatusNotFound {
			t.Errorf("get missing call = %d, want 404", code)
		}
		if code := env.do(t, "GET", "/api/companion/calls?success=maybe", nil, nil); code != http.StatusBadRequest {
			t.Errorf("bad filter = %d, want 400", code)
		}

		var usage endpoints.UsageResponse
		env.do(t, "GET", "/api/companion/usage", nil, &usage)
		if usage.Overall.Count != 3 || usage.ByOperation[metrics.OpAnalyze].Count != 1 {
			t.Errorf("usage = %+v", usage)
		}
	})

	t.Run("clear transcript", func(t *testing.T) {
		if code := env.do(t, "DELETE", "/api/companion/transcript", nil, nil); code != http.StatusNoContent {
			t.Errorf("clear = %d, want 204", code)
		}
		env.do(t, "GET", "/api/companion", nil, &sidebar)
		if len(sidebar.Transcript) != 0 {
			t.Errorf("transcript has %d messages after clear", len(sidebar.Transcript))
		}
	})
}

func TestServer_CompanionWithoutPages(t *testing.T) {
	env := newTestEnv(t, 0, true)

	if code := env.do(t, "POST", "/api/companion/analyze", nil, nil); code != http.StatusConflict {
		t.Errorf("analyze with no pages = %d, want 409", code)
	}
}

func TestServer_PlaceholderAfterClose(t *testing.T) {
	env := newTestEnv(t, 1, true)
	env.srv.Viewer().Close()

	resp, err := http.Get(env.http.URL + "/api/pages/0/image")
	if err != nil {
		t.Fatalf("GET image error = %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "image/svg+xml" {
		t.Errorf("Content-Type = %q, want placeholder svg", ct)
	}
}

func TestServer_SettingsPromptsMetrics(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := config.WriteDefault(cfgPath); err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}
	mgr, err := config.NewManager(cfgPath, dir)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	registry := providers.NewRegistry()
	registry.RegisterLLM("gemini", providers.NewMockClient())
	srv, err := New(Config{ConfigManager: mgr, Registry: registry, Metrics: metrics.New(false)})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	srv.Mount()
	hs := httptest.NewServer(srv.Handler())
	defer hs.Close()
	env := &testEnv{srv: srv, http: hs}

	var settings endpoints.SettingsResponse
	if code := env.do(t, "GET", "/api/settings", nil, &settings); code != http.StatusOK {
		t.Fatalf("settings = %d", code)
	}
	if settings.Settings.Companion.Provider != "gemini" {
		t.Errorf("companion provider = %q", settings.Settings.Companion.Provider)
	}
	if key := settings.Settings.LLMProviders["gemini"].APIKey; key != "${GEMINI_API_KEY}" {
		t.Errorf("api key = %q, want the env reference", key)
	}

	var list endpoints.PromptsListResponse
	env.do(t, "GET", "/api/prompts", nil, &list)
	if len(list.Prompts) != 3 {
		t.Errorf("prompts = %d, want 3", len(list.Prompts))
	}
	var one endpoints.PromptResponse
	if code := env.do(t, "GET", "/api/prompts/"+companion.AnalyzePromptKey, nil, &one); code != http.StatusOK || one.IsOverride {
		t.Errorf("get prompt = %d %+v", code, one)
	}
	if code := env.do(t, "GET", "/api/prompts/no.such.key", nil, nil); code != http.StatusNotFound {
		t.Errorf("missing prompt = %d, want 404", code)
	}

	env.do(t, "POST", "/api/viewer/next", nil, nil)
	resp, err := http.Get(hs.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "leaflet_viewer_total_sheets") {
		t.Errorf("metrics body missing viewer gauge:\n%s", body)
	}

	var status endpoints.StatusResponse
	env.do(t, "GET", "/status", nil, &status)
	if !status.Companion.Enabled || status.Companion.Model != "gemini-2.5-flash" {
		t.Errorf("status = %+v", status)
	}

	resp, err = http.Get(hs.URL + "/swagger.json")
	if err != nil {
		t.Fatalf("GET /swagger.json error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("swagger.json = %d", resp.StatusCode)
	}
}

func TestServer_ConfigReloadSwapsCompanionClient(t *testing.T) {
	registry := providers.NewRegistry()
	registry.RegisterLLM("gemini", providers.NewMockClient())
	srv, err := New(Config{Registry: registry})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	c := config.DefaultConfig()
	c.Companion.Provider = "missing"
	srv.applyConfig(c)
	if srv.companion.Enabled() {
		t.Error("companion still enabled after switching to an unknown provider")
	}

	c.Companion.Provider = "gemini"
	c.Layout.AspectRatio = 0.5
	srv.applyConfig(c)
	if !srv.companion.Enabled() {
		t.Error("companion not re-enabled")
	}
	if got := srv.Viewer().LayoutConfig().AspectRatio; got != 0.5 {
		t.Errorf("AspectRatio = %v after reload, want 0.5", got)
	}
}

func TestServer_StaticViewer(t *testing.T) {
	env := newTestEnv(t, 0, false)

	tests := []struct {
		path        string
		wantStatus  int
		wantType    string
		wantContent string
	}{
		{"/", http.StatusOK, "text/html", `id="book"`},
		{"/page/3", http.StatusOK, "text/html", `id="book"`},
		{"/app.js", http.StatusOK, "javascript", "/api/viewer"},
		{"/api/nope", http.StatusNotFound, "application/json", "no such endpoint"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(env.http.URL + tt.path)
			if err != nil {
				t.Fatalf("GET %s error = %v", tt.path, err)
			}
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, tt.wantType) {
				t.Errorf("Content-Type = %q, want %q", ct, tt.wantType)
			}
			if !strings.Contains(string(body), tt.wantContent) {
				t.Errorf("body missing %q", tt.wantContent)
			}
		})
	}
}
