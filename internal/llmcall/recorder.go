package llmcall

import (
	"sync"

	"github.com/jackzampolin/leaflet/internal/providers"
)

// DefaultCapacity is the number of calls kept when none is configured.
const DefaultCapacity = 500

// Recorder keeps the most recent calls in memory. Older calls are evicted
// once capacity is reached. A nil Recorder discards everything.
type Recorder struct {
	mu       sync.RWMutex
	calls    []*Call
	next     int
	full     bool
	capacity int
}

// NewRecorder creates a recorder holding up to capacity calls.
func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Recorder{
		calls:    make([]*Call, capacity),
		capacity: capacity,
	}
}

// Record captures a call built from result.
func (r *Recorder) Record(result *providers.ChatResult, opts RecordOptions) {
	if r == nil {
		return
	}
	r.RecordCall(FromChatResult(result, opts))
}

// RecordCall captures an already-constructed Call.
func (r *Recorder) RecordCall(call *Call) {
	if r == nil || call == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls[r.next] = call
	r.next = (r.next + 1) % r.capacity
	if r.next == 0 {
		r.full = true
	}
}

// Len returns the number of retained calls.
func (r *Recorder) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.full {
		return r.capacity
	}
	return r.next
}

// newestFirst returns retained calls from newest to oldest. Caller holds the
// read lock.
func (r *Recorder) newestFirst() []*Call {
	n := r.next
	if r.full {
		n = r.capacity
	}
	out := make([]*Call, 0, n)
	for i := 1; i <= n; i++ {
		idx := (r.next - i + r.capacity) % r.capacity
		out = append(out, r.calls[idx])
	}
	return out
}
