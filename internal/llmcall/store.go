package llmcall

import "time"

// QueryFilter specifies filters for listing calls.
type QueryFilter struct {
	Operation string
	PromptKey string
	PageIndex *int
	Success   *bool
	After     *time.Time
	Limit     int
	Offset    int
}

func (f QueryFilter) matches(c *Call) bool {
	if f.Operation != "" && c.Operation != f.Operation {
		return false
	}
	if f.PromptKey != "" && c.PromptKey != f.PromptKey {
		return false
	}
	if f.PageIndex != nil && c.PageIndex != *f.PageIndex {
		return false
	}
	if f.Success != nil && c.Success != *f.Success {
		return false
	}
	if f.After != nil && !c.Timestamp.After(*f.After) {
		return false
	}
	return true
}

// Get retrieves a single call by ID.
func (r *Recorder) Get(id string) (*Call, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.newestFirst() {
		if c.ID == id {
			cp := *c
			return &cp, true
		}
	}
	return nil, false
}

// List returns calls matching filter, newest first.
func (r *Recorder) List(filter QueryFilter) []Call {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Call
	skipped := 0
	for _, c := range r.newestFirst() {
		if !filter.matches(c) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		out = append(out, *c)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out
}
