package flipbook

import (
	"sync"
)

// PageChangeFunc receives the page index reported after a successful
// navigation step.
type PageChangeFunc func(index int)

// Direction of a navigation step.
type Direction string

const (
	DirectionForward  Direction = "forward"
	DirectionBackward Direction = "backward"
)

// Flipbook owns the flip cursor: the number of sheets turned to the left
// stack. It is the only mutable state of the book.
//
// Transitions are serialized by an internal mutex and the observer is called
// while it is held, so observers see steps in order. Observers must not call
// back into the Flipbook.
type Flipbook struct {
	mu           sync.Mutex
	pages        PageSource
	currentSheet int
	lastReported int
	onChange     PageChangeFunc
}

// New creates a flipbook over the host's page list, opened at sheet 0.
func New(pages PageSource) *Flipbook {
	return &Flipbook{pages: pages}
}

// OnPageChange sets the sink that receives reported page indices.
func (f *Flipbook) OnPageChange(fn PageChangeFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onChange = fn
}

// Advance turns one sheet to the left stack.
// Returns the reported page index and false if the book is fully turned.
func (f *Flipbook) Advance() (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.advanceLocked()
}

// Retreat turns one sheet back to the right stack.
// Returns the reported page index and false at sheet 0.
func (f *Flipbook) Retreat() (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.retreatLocked()
}

// FlipSheetAt handles a click on sheet i. Clicking an unflipped sheet always
// advances exactly one step and clicking a flipped sheet retreats one step;
// it never jumps to i. Indices outside the book are ignored.
func (f *Flipbook) FlipSheetAt(i int) (int, bool) {
	index, _, moved := f.flipSheetAt(i)
	return index, moved
}

func (f *Flipbook) flipSheetAt(i int) (int, Direction, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if i < 0 || i >= TotalSheets(f.pages.Len()) {
		return f.lastReported, "", false
	}
	if IsFlipped(i, f.currentSheet) {
		index, moved := f.retreatLocked()
		return index, DirectionBackward, moved
	}
	index, moved := f.advanceLocked()
	return index, DirectionForward, moved
}

func (f *Flipbook) advanceLocked() (int, bool) {
	pageCount := f.pages.Len()
	if f.currentSheet >= TotalSheets(pageCount) {
		return f.lastReported, false
	}
	f.currentSheet++
	f.report(AdvanceIndex(f.currentSheet, pageCount))
	return f.lastReported, true
}

func (f *Flipbook) retreatLocked() (int, bool) {
	if f.currentSheet <= 0 {
		return f.lastReported, false
	}
	f.currentSheet--
	f.report(RetreatIndex(f.currentSheet))
	return f.lastReported, true
}

func (f *Flipbook) report(index int) {
	f.lastReported = index
	if f.onChange != nil {
		f.onChange(index)
	}
}

// CurrentSheet returns the flip cursor.
func (f *Flipbook) CurrentSheet() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.currentSheet
}

// TotalSheets returns the number of sheets for the current page count.
func (f *Flipbook) TotalSheets() int {
	return TotalSheets(f.pages.Len())
}

// PageCount returns the number of pages in the host list.
func (f *Flipbook) PageCount() int {
	return f.pages.Len()
}

// Controls returns the enabled state of the prior/next buttons.
func (f *Flipbook) Controls() Controls {
	f.mu.Lock()
	defer f.mu.Unlock()
	return controlsFor(f.currentSheet, TotalSheets(f.pages.Len()))
}

// SheetState is the derived presentation state of one sheet.
type SheetState struct {
	Index     int  `json:"index"`
	FrontPage int  `json:"front_page"`
	BackPage  int  `json:"back_page"` // -1 renders the blank end face
	Flipped   bool `json:"flipped"`
	ZIndex    int  `json:"z_index"`
}

// State is a consistent snapshot of the book for renderers and observers.
type State struct {
	CurrentSheet  int          `json:"current_sheet"`
	TotalSheets   int          `json:"total_sheets"`
	PageCount     int          `json:"page_count"`
	ReportedIndex int          `json:"reported_index"`
	LeftPage      int          `json:"left_page"`
	RightPage     int          `json:"right_page"`
	Progress      float64      `json:"progress"`
	Controls      Controls     `json:"controls"`
	Sheets        []SheetState `json:"sheets"`
}

// State returns a snapshot of the cursor and every derived sheet property.
func (f *Flipbook) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()

	pageCount := f.pages.Len()
	total := TotalSheets(pageCount)
	// Pages are append-only, so the cursor can only fall behind the total.
	current := min(f.currentSheet, total)

	st := State{
		CurrentSheet:  current,
		TotalSheets:   total,
		PageCount:     pageCount,
		ReportedIndex: f.lastReported,
		Controls:      controlsFor(current, total),
		Sheets:        make([]SheetState, 0, total),
	}
	st.LeftPage, st.RightPage = VisiblePages(current, pageCount)
	if pageCount > 0 {
		st.Progress = float64(f.lastReported+1) / float64(pageCount)
	}

	for i := 0; i < total; i++ {
		back := i*2 + 1
		if back >= pageCount {
			back = -1
		}
		st.Sheets = append(st.Sheets, SheetState{
			Index:     i,
			FrontPage: i * 2,
			BackPage:  back,
			Flipped:   IsFlipped(i, current),
			ZIndex:    ZIndex(i, current, total),
		})
	}
	return st
}
