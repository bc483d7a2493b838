package flipbook

import (
	"sync"
)

// Keys understood by the navigator.
const (
	KeyArrowRight = "ArrowRight"
	KeyArrowLeft  = "ArrowLeft"
	KeyPageDown   = "PageDown"
	KeyPageUp     = "PageUp"
)

// Input sources, used for logging and metrics.
const (
	SourceKeyboard = "keyboard"
	SourceButton   = "button"
	SourceClick    = "click"
)

// ButtonState describes one navigation button.
type ButtonState struct {
	Enabled bool `json:"enabled"`
}

// Controls holds the prior/next button states.
type Controls struct {
	Prev ButtonState `json:"prev"`
	Next ButtonState `json:"next"`
}

func controlsFor(currentSheet, totalSheets int) Controls {
	return Controls{
		Prev: ButtonState{Enabled: currentSheet > 0},
		Next: ButtonState{Enabled: currentSheet < totalSheets},
	}
}

// Step describes the outcome of one input event.
type Step struct {
	Source    string    `json:"source"`
	Direction Direction `json:"direction,omitempty"`
	Moved     bool      `json:"moved"`
	Index     int       `json:"index"`
}

// StepFunc observes every input event routed by a Navigator.
type StepFunc func(Step)

// Navigator normalizes keyboard, button and click input into the single
// Advance/Retreat pair of a Flipbook.
type Navigator struct {
	book   *Flipbook
	onStep StepFunc
}

// NewNavigator creates a navigator for book. onStep may be nil.
func NewNavigator(book *Flipbook, onStep StepFunc) *Navigator {
	return &Navigator{book: book, onStep: onStep}
}

// HandleKey routes a key press. Unknown keys are ignored and return false.
func (n *Navigator) HandleKey(key string) bool {
	switch key {
	case KeyArrowRight, KeyPageDown:
		return n.step(SourceKeyboard, DirectionForward)
	case KeyArrowLeft, KeyPageUp:
		return n.step(SourceKeyboard, DirectionBackward)
	default:
		return false
	}
}

// PressNext handles the next button. A disabled button does nothing.
func (n *Navigator) PressNext() bool {
	if !n.book.Controls().Next.Enabled {
		n.emit(Step{Source: SourceButton, Direction: DirectionForward})
		return false
	}
	return n.step(SourceButton, DirectionForward)
}

// PressPrev handles the prior button. A disabled button does nothing.
func (n *Navigator) PressPrev() bool {
	if !n.book.Controls().Prev.Enabled {
		n.emit(Step{Source: SourceButton, Direction: DirectionBackward})
		return false
	}
	return n.step(SourceButton, DirectionBackward)
}

// ClickSheet handles a click on sheet i.
func (n *Navigator) ClickSheet(i int) bool {
	index, dir, moved := n.book.flipSheetAt(i)
	n.emit(Step{Source: SourceClick, Direction: dir, Moved: moved, Index: index})
	return moved
}

func (n *Navigator) step(source string, dir Direction) bool {
	var (
		index int
		moved bool
	)
	if dir == DirectionForward {
		index, moved = n.book.Advance()
	} else {
		index, moved = n.book.Retreat()
	}
	n.emit(Step{Source: source, Direction: dir, Moved: moved, Index: index})
	return moved
}

func (n *Navigator) emit(s Step) {
	if n.onStep != nil {
		n.onStep(s)
	}
}

// Mount attaches the navigator to a keyboard hub for the lifetime of a
// mounted viewer. The returned function detaches it and is safe to call more
// than once.
func (n *Navigator) Mount(hub *KeyHub) (unmount func()) {
	return hub.Subscribe(func(key string) {
		n.HandleKey(key)
	})
}

// KeyHub fans keyboard events out to subscribed listeners.
type KeyHub struct {
	mu        sync.RWMutex
	nextID    int
	listeners map[int]func(string)
}

// NewKeyHub creates an empty hub.
func NewKeyHub() *KeyHub {
	return &KeyHub{listeners: make(map[int]func(string))}
}

// Subscribe registers fn and returns its unsubscribe function.
func (h *KeyHub) Subscribe(fn func(key string)) (unsubscribe func()) {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.listeners[id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.listeners, id)
			h.mu.Unlock()
		})
	}
}

// Dispatch delivers key to every listener and returns how many received it.
func (h *KeyHub) Dispatch(key string) int {
	h.mu.RLock()
	fns := make([]func(string), 0, len(h.listeners))
	for _, fn := range h.listeners {
		fns = append(fns, fn)
	}
	h.mu.RUnlock()

	for _, fn := range fns {
		fn(key)
	}
	return len(fns)
}

// Listeners returns the number of attached listeners.
func (h *KeyHub) Listeners() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}
