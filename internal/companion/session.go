package companion

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/leaflet/internal/metrics"
)

var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrNoPages      = errors.New("no pages to analyze")
	ErrStale        = errors.New("response superseded by a newer request")
	ErrClosed       = errors.New("session closed")
)

// PageImages is the host page list as seen by the companion.
type PageImages interface {
	Len() int
	Image(i int) ([]byte, string, error)
	Title() string
}

// ChatMessage is one transcript entry. A model message with Loading set is
// the placeholder for a reply still in flight.
type ChatMessage struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Loading   bool      `json:"loading,omitempty"`
	PageIndex int       `json:"page_index"`
	CreatedAt time.Time `json:"created_at"`
}

// Analysis is the latest page analysis shown in the sidebar.
type Analysis struct {
	RequestID string `json:"request_id"`
	PageIndex int    `json:"page_index"`
	Text      string `json:"text"`
	Loading   bool   `json:"loading,omitempty"`
}

// SessionState is a snapshot of the sidebar.
type SessionState struct {
	PageIndex  int           `json:"page_index"`
	Enabled    bool          `json:"enabled"`
	Transcript []ChatMessage `json:"transcript"`
	Analysis   *Analysis     `json:"analysis,omitempty"`
}

// Session holds the sidebar state of one mounted viewer: the observed page,
// the chat transcript and the latest analysis.
//
// Model calls run without the lock held. Each call is tagged with an ID when
// it starts and its result is applied only to the entry carrying that ID, so
// a slow response never overwrites newer state.
type Session struct {
	companion *Companion
	pages     PageImages
	logger    *slog.Logger
	metrics   *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	page       int
	transcript []ChatMessage
	analysis   *Analysis
	closed     bool
}

// NewSession creates a session over pages.
func NewSession(c *Companion, pages PageImages, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		companion: c,
		pages:     pages,
		logger:    logger.With("component", "session"),
		metrics:   c.metrics,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// SetPage records the page reported by the flipbook. Any analysis, finished
// or in flight, belongs to the previous page and is cleared.
func (s *Session) SetPage(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.page = i
	s.analysis = nil
}

// Page returns the last reported page index.
func (s *Session) Page() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

// activePage returns the observed page, falling back to page 0 when it is out
// of range. Caller holds the lock.
func (s *Session) activePage() int {
	if s.page >= 0 && s.page < s.pages.Len() {
		return s.page
	}
	return 0
}

// loadPage reads page i. A missing image yields a page without data so the
// model still receives the text.
func (s *Session) loadPage(i int) PageImage {
	page := PageImage{Index: i, Count: s.pages.Len(), Title: s.pages.Title()}
	data, mime, err := s.pages.Image(i)
	if err != nil {
		s.logger.Warn("page image unavailable", "page", i, "error", err)
		return page
	}
	page.Data = data
	page.MimeType = mime
	return page
}

// Analyze analyzes the active page. If the page changes or another analysis
// starts before this one returns, the result is discarded and ErrStale is
// returned.
func (s *Session) Analyze(ctx context.Context) (Analysis, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Analysis{}, ErrClosed
	}
	if s.pages.Len() == 0 {
		s.mu.Unlock()
		return Analysis{}, ErrNoPages
	}
	pending := Analysis{
		RequestID: uuid.New().String(),
		PageIndex: s.activePage(),
		Loading:   true,
	}
	s.analysis = &pending
	s.mu.Unlock()

	ctx, cancel := s.bind(ctx)
	defer cancel()

	text := s.companion.Analyze(ctx, s.loadPage(pending.PageIndex))

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Analysis{}, ErrClosed
	}
	if s.analysis == nil || s.analysis.RequestID != pending.RequestID {
		s.metrics.StaleDiscarded(metrics.OpAnalyze)
		s.logger.Debug("discarding stale analysis", "request_id", pending.RequestID, "page", pending.PageIndex)
		return Analysis{}, ErrStale
	}
	if err := ctx.Err(); err != nil {
		// A cancelled call leaves no analysis behind.
		s.analysis = nil
		return Analysis{}, err
	}
	done := Analysis{RequestID: pending.RequestID, PageIndex: pending.PageIndex, Text: text}
	s.analysis = &done
	return done, nil
}

// Summarize returns a structured summary of the active page. The result is
// not stored in the session.
func (s *Session) Summarize(ctx context.Context) (int, AnalysisResult, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, AnalysisResult{}, ErrClosed
	}
	if s.pages.Len() == 0 {
		s.mu.Unlock()
		return 0, AnalysisResult{}, ErrNoPages
	}
	idx := s.activePage()
	s.mu.Unlock()

	ctx, cancel := s.bind(ctx)
	defer cancel()
	return idx, s.companion.Summarize(ctx, s.loadPage(idx)), nil
}

// Chat appends the user's message and a loading placeholder, asks the model,
// and fills exactly that placeholder with the reply.
func (s *Session) Chat(ctx context.Context, text string) (ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return ChatMessage{}, ErrEmptyMessage
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ChatMessage{}, ErrClosed
	}
	history := s.historyLocked()
	hasPages := s.pages.Len() > 0
	idx := s.activePage()
	now := time.Now()
	question := ChatMessage{ID: uuid.New().String(), Role: RoleUser, Text: text, PageIndex: idx, CreatedAt: now}
	s.transcript = append(s.transcript, question)
	placeholder := ChatMessage{ID: uuid.New().String(), Role: RoleModel, Loading: true, PageIndex: idx, CreatedAt: now}
	s.transcript = append(s.transcript, placeholder)
	s.mu.Unlock()

	var page *PageImage
	if hasPages {
		p := s.loadPage(idx)
		page = &p
	}

	ctx, cancel := s.bind(ctx)
	defer cancel()
	reply := s.companion.Chat(ctx, history, text, page)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ChatMessage{}, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		s.transcript = slices.DeleteFunc(s.transcript, func(m ChatMessage) bool {
			return m.ID == placeholder.ID || m.ID == question.ID
		})
		return ChatMessage{}, err
	}
	for i := range s.transcript {
		if s.transcript[i].ID == placeholder.ID {
			s.transcript[i].Text = reply
			s.transcript[i].Loading = false
			return s.transcript[i], nil
		}
	}
	// Only reachable if the transcript was cleared while the call ran.
	s.metrics.StaleDiscarded(metrics.OpChat)
	return ChatMessage{}, ErrStale
}

// historyLocked returns the settled turns of the transcript.
func (s *Session) historyLocked() []Turn {
	turns := make([]Turn, 0, len(s.transcript))
	for _, m := range s.transcript {
		if m.Loading || m.Text == "" {
			continue
		}
		turns = append(turns, Turn{Role: m.Role, Text: m.Text})
	}
	return turns
}

// ClearTranscript empties the chat. Replies still in flight are dropped.
func (s *Session) ClearTranscript() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = nil
}

// State returns a snapshot of the session.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := SessionState{
		PageIndex:  s.page,
		Enabled:    s.companion.Enabled(),
		Transcript: append([]ChatMessage{}, s.transcript...),
	}
	if s.analysis != nil {
		a := *s.analysis
		st.Analysis = &a
	}
	return st
}

// Close cancels in-flight calls. Results arriving afterwards are ignored.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
}

// bind derives a context that is cancelled by either ctx or Close.
func (s *Session) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
