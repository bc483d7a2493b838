package companion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/jackzampolin/leaflet/internal/metrics"
	"github.com/jackzampolin/leaflet/internal/providers"
)

type fakePages struct {
	n       int
	missing map[int]bool
}

func (f fakePages) Len() int      { return f.n }
func (f fakePages) Title() string { return "" }
func (f fakePages) Image(i int) ([]byte, string, error) {
	if i < 0 || i >= f.n || f.missing[i] {
		return nil, "", errors.New("unavailable")
	}
	return []byte(fmt.Sprintf("page-%d", i)), "image/png", nil
}

func TestSession_AnalyzeUsesObservedPage(t *testing.T) {
	mock := providers.NewMockClient()
	s := NewSession(newTestCompanion(mock), fakePages{n: 4}, nil)
	defer s.Close()

	s.SetPage(2)
	got, err := s.Analyze(context.Background())
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if got.PageIndex != 2 || got.Text != "mock response" {
		t.Errorf("Analyze() = %+v", got)
	}
	if img := string(mock.LastRequest().Messages[0].Images[0]); img != "page-2" {
		t.Errorf("sent image %q, want page-2", img)
	}

	// Out-of-range page falls back to page 0.
	s.SetPage(9)
	got, _ = s.Analyze(context.Background())
	if got.PageIndex != 0 {
		t.Errorf("PageIndex = %d, want fallback 0", got.PageIndex)
	}
}

func TestSession_AnalyzeWithoutPages(t *testing.T) {
	mock := providers.NewMockClient()
	s := NewSession(newTestCompanion(mock), fakePages{}, nil)
	defer s.Close()

	if _, err := s.Analyze(context.Background()); !errors.Is(err, ErrNoPages) {
		t.Errorf("Analyze() error = %v, want ErrNoPages", err)
	}
	if mock.RequestCount() != 0 {
		t.Error("model called without pages")
	}
}

func TestSession_SetPageClearsAnalysis(t *testing.T) {
	s := NewSession(newTestCompanion(providers.NewMockClient()), fakePages{n: 2}, nil)
	defer s.Close()

	if _, err := s.Analyze(context.Background()); err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if s.State().Analysis == nil {
		t.Fatal("analysis not stored")
	}
	s.SetPage(1)
	if s.State().Analysis != nil {
		t.Error("analysis survived a page change")
	}
}

// A slow analysis for an earlier page must never overwrite a newer one.
func TestSession_StaleAnalysisDiscarded(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32

	mock := providers.NewMockClient()
	mock.Respond = func(req *providers.ChatRequest) (string, error) {
		img := string(req.Messages[0].Images[0])
		if calls.Add(1) == 1 {
			close(started)
			<-release
		}
		return "analysis of " + img, nil
	}
	m := metrics.New(false)
	c := newTestCompanion(mock, func(cfg *Config) { cfg.Metrics = m })
	s := NewSession(c, fakePages{n: 4}, nil)
	defer s.Close()

	slowErr := make(chan error, 1)
	go func() {
		_, err := s.Analyze(context.Background())
		slowErr <- err
	}()
	<-started

	s.SetPage(3)
	fresh, err := s.Analyze(context.Background())
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if fresh.Text != "analysis of page-3" {
		t.Errorf("fresh analysis = %q", fresh.Text)
	}

	close(release)
	if err := <-slowErr; !errors.Is(err, ErrStale) {
		t.Errorf("slow Analyze() error = %v, want ErrStale", err)
	}

	st := s.State()
	if st.Analysis == nil || st.Analysis.Text != "analysis of page-3" {
		t.Errorf("stored analysis = %+v, want page-3 result", st.Analysis)
	}
	count, err := testutil.GatherAndCount(m.Registry(), "leaflet_companion_stale_responses_total")
	if err != nil || count != 1 {
		t.Errorf("stale series = %d, %v; want 1", count, err)
	}
}

// Replies are matched to their own placeholder even when they complete out
// of order.
func TestSession_ChatRepliesFillOwnPlaceholder(t *testing.T) {
	firstStarted := make(chan struct{})
	releaseFirst := make(chan struct{})

	mock := providers.NewMockClient()
	mock.Respond = func(req *providers.ChatRequest) (string, error) {
		text := req.Messages[len(req.Messages)-1].Content
		if text == "first" {
			close(firstStarted)
			<-releaseFirst
		}
		return "reply to " + text, nil
	}
	s := NewSession(newTestCompanion(mock), fakePages{n: 2}, nil)
	defer s.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := s.Chat(context.Background(), "first"); err != nil {
			t.Errorf("Chat(first) error = %v", err)
		}
	}()
	<-firstStarted

	second, err := s.Chat(context.Background(), "second")
	if err != nil {
		t.Fatalf("Chat(second) error = %v", err)
	}
	if second.Text != "reply to second" {
		t.Errorf("second reply = %q", second.Text)
	}

	// First placeholder is still loading while the second is settled.
	mid := s.State().Transcript
	if !mid[1].Loading || mid[3].Loading {
		t.Errorf("transcript mid-flight = %+v", mid)
	}

	close(releaseFirst)
	wg.Wait()

	got := s.State().Transcript
	want := []struct {
		role Role
		text string
	}{
		{RoleUser, "first"},
		{RoleModel, "reply to first"},
		{RoleUser, "second"},
		{RoleModel, "reply to second"},
	}
	if len(got) != len(want) {
		t.Fatalf("transcript has %d messages, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].Role != w.role || got[i].Text != w.text || got[i].Loading {
			t.Errorf("transcript[%d] = %+v, want %s %q", i, got[i], w.role, w.text)
		}
	}
}

func TestSession_ChatThreadsSettledHistory(t *testing.T) {
	mock := providers.NewMockClient()
	s := NewSession(newTestCompanion(mock), fakePages{n: 1}, nil)
	defer s.Close()

	s.Chat(context.Background(), "one")
	s.Chat(context.Background(), "two")

	msgs := mock.LastRequest().Messages
	// system, "one", "mock response", "two"
	if len(msgs) != 4 {
		t.Fatalf("sent %d messages, want 4", len(msgs))
	}
	if msgs[1].Content != "one" || msgs[2].Role != providers.RoleAssistant {
		t.Errorf("history = %+v", msgs[1:3])
	}
}

func TestSession_ChatRejectsBlank(t *testing.T) {
	mock := providers.NewMockClient()
	s := NewSession(newTestCompanion(mock), fakePages{n: 1}, nil)
	defer s.Close()

	for _, text := range []string{"", "   ", "\n\t"} {
		if _, err := s.Chat(context.Background(), text); !errors.Is(err, ErrEmptyMessage) {
			t.Errorf("Chat(%q) error = %v, want ErrEmptyMessage", text, err)
		}
	}
	if len(s.State().Transcript) != 0 || mock.RequestCount() != 0 {
		t.Error("blank message reached the transcript or the model")
	}
}

func TestSession_ChatWithoutPagesSendsNoImage(t *testing.T) {
	mock := providers.NewMockClient()
	s := NewSession(newTestCompanion(mock), fakePages{}, nil)
	defer s.Close()

	if _, err := s.Chat(context.Background(), "hello"); err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	last := mock.LastRequest().Messages
	if len(last[len(last)-1].Images) != 0 {
		t.Error("image attached without pages")
	}
}

func TestSession_CloseDropsInFlight(t *testing.T) {
	mock := providers.NewMockClient()
	mock.Latency = time.Hour
	s := NewSession(newTestCompanion(mock), fakePages{n: 1}, nil)

	done := make(chan error, 1)
	go func() {
		_, err := s.Chat(context.Background(), "hello")
		done <- err
	}()

	// Wait for the request to reach the model.
	deadline := time.Now().Add(2 * time.Second)
	for mock.RequestCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	s.Close()

	select {
	case err := <-done:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("Chat() error = %v, want ErrClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Chat did not return after Close")
	}

	st := s.State()
	if len(st.Transcript) != 2 || !st.Transcript[1].Loading {
		t.Errorf("placeholder was filled after Close: %+v", st.Transcript)
	}
	if _, err := s.Analyze(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Analyze() after Close error = %v, want ErrClosed", err)
	}
	if strings.TrimSpace(st.Transcript[0].Text) != "hello" {
		t.Errorf("user message = %q", st.Transcript[0].Text)
	}
}

func TestSession_CancelledCallLeavesNoResult(t *testing.T) {
	mock := providers.NewMockClient()
	mock.Latency = time.Hour
	s := NewSession(newTestCompanion(mock), fakePages{n: 2}, nil)
	defer s.Close()

	cancelWhenSent := func(cancel context.CancelFunc, want int) {
		deadline := time.Now().Add(2 * time.Second)
		for mock.RequestCount() < want && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}

	t.Run("analyze", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		go cancelWhenSent(cancel, 1)
		if _, err := s.Analyze(ctx); !errors.Is(err, context.Canceled) {
			t.Fatalf("Analyze() error = %v, want context.Canceled", err)
		}
		if st := s.State(); st.Analysis != nil {
			t.Errorf("analysis = %+v, want none", st.Analysis)
		}
	})

	t.Run("chat", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		go cancelWhenSent(cancel, 2)
		if _, err := s.Chat(ctx, "hello"); !errors.Is(err, context.Canceled) {
			t.Fatalf("Chat() error = %v, want context.Canceled", err)
		}
		if st := s.State(); len(st.Transcript) != 0 {
			t.Errorf("transcript = %+v, want empty", st.Transcript)
		}
	})
}
