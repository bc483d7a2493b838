package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveCompanion(t *testing.T) {
	m := New(false)
	m.ObserveCompanion(OpAnalyze, OutcomeOK, 200*time.Millisecond)
	m.ObserveCompanion(OpAnalyze, OutcomeOK, time.Second)
	m.ObserveCompanion(OpChat, OutcomeError, time.Second)

	if got := testutil.ToFloat64(m.companionRequests.WithLabelValues(OpAnalyze, OutcomeOK)); got != 2 {
		t.Errorf("analyze ok = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.companionRequests.WithLabelValues(OpChat, OutcomeError)); got != 1 {
		t.Errorf("chat error = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.companionLatency); got != 2 {
		t.Errorf("latency series = %d, want 2", got)
	}
}

func TestNavigated(t *testing.T) {
	m := New(false)
	m.Navigated("keyboard", "forward", 1, 4)
	m.Navigated("click", "forward", 2, 4)
	m.Navigated("keyboard", "backward", 1, 4)

	if got := testutil.ToFloat64(m.navigationSteps.WithLabelValues("keyboard", "forward")); got != 1 {
		t.Errorf("keyboard forward = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.currentSheet); got != 1 {
		t.Errorf("current sheet = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.totalSheets); got != 4 {
		t.Errorf("total sheets = %v, want 4", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveCompanion(OpChat, OutcomeOK, time.Second)
	m.StaleDiscarded(OpAnalyze)
	m.Navigated("button", "forward", 1, 1)
	m.PagesAppended(2, 1)
}

func TestHandler(t *testing.T) {
	m := New(false)
	m.StaleDiscarded(OpAnalyze)
	m.PagesAppended(3, 2)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{
		`leaflet_companion_stale_responses_total{op="analyze"} 1`,
		`leaflet_library_pages_appended_total 3`,
		`leaflet_viewer_total_sheets 2`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
