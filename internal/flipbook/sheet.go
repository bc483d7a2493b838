// Package flipbook models a page-turning book as a stack of double-sided
// sheets driven by a single integer cursor.
//
// Every per-sheet property (flipped or not, stacking order) is derived from
// the cursor on demand. Nothing per-sheet is ever stored.
package flipbook

// Page is one displayable page image supplied by the host.
type Page struct {
	ID       string `json:"id"`
	Index    int    `json:"index"`
	Source   string `json:"source"` // URI the front-end loads the image from
	MimeType string `json:"mime_type,omitempty"`
	FileName string `json:"file_name,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// PageSource is a read-only view of the host's ordered page list.
// Implementations must be append-only: indices never move.
type PageSource interface {
	Len() int
	Page(i int) (Page, bool)
}

// Sheet pairs pages 2k and 2k+1. Back is nil when the book has an odd page
// count and this is the last sheet; the front-end shows a blank end face.
type Sheet struct {
	Index int   `json:"index"`
	Front Page  `json:"front"`
	Back  *Page `json:"back,omitempty"`
}

// TotalSheets returns ceil(pageCount/2).
func TotalSheets(pageCount int) int {
	if pageCount <= 0 {
		return 0
	}
	return (pageCount + 1) / 2
}

// IsFlipped reports whether sheet i rests on the left stack.
func IsFlipped(i, currentSheet int) bool {
	return i < currentSheet
}

// ZIndex returns the stacking order of sheet i.
// Flipped sheets stack upward by index so the most recently flipped one is on
// top of the left pile. Unflipped sheets stack downward by index so the next
// sheet to flip is on top of the right pile.
func ZIndex(i, currentSheet, totalSheets int) int {
	if IsFlipped(i, currentSheet) {
		return i
	}
	return totalSheets - i
}

// AdvanceIndex is the page index reported after advancing to sheet s.
func AdvanceIndex(s, pageCount int) int {
	return min(s*2-1, pageCount-1)
}

// RetreatIndex is the page index reported after retreating to sheet s.
func RetreatIndex(s int) int {
	return max(s*2-2, 0)
}

// VisiblePages returns the page indices shown on the left and right of the
// fold when currentSheet sheets have been turned. Absent faces are -1.
func VisiblePages(currentSheet, pageCount int) (left, right int) {
	left, right = -1, -1
	if currentSheet > 0 {
		if idx := currentSheet*2 - 1; idx < pageCount {
			left = idx
		}
	}
	if idx := currentSheet * 2; idx < pageCount {
		right = idx
	}
	return left, right
}

// SheetAt builds sheet k from the page source.
func SheetAt(src PageSource, k int) (Sheet, bool) {
	front, ok := src.Page(k * 2)
	if !ok {
		return Sheet{}, false
	}
	sheet := Sheet{Index: k, Front: front}
	if back, ok := src.Page(k*2 + 1); ok {
		sheet.Back = &back
	}
	return sheet, true
}

// Sheets returns every sheet of the book in order.
func Sheets(src PageSource) []Sheet {
	total := TotalSheets(src.Len())
	sheets := make([]Sheet, 0, total)
	for k := 0; k < total; k++ {
		if s, ok := SheetAt(src, k); ok {
			sheets = append(sheets, s)
		}
	}
	return sheets
}
