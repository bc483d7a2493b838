// Package library holds the host's ordered, append-only list of page images.
package library

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/jackzampolin/leaflet/internal/flipbook"
)

var (
	ErrUnsupportedImage = errors.New("unsupported image type")
	ErrImageUnavailable = errors.New("page image unavailable")
	ErrNoPages          = errors.New("no pages")
)

// Accepted image types, matched against sniffed content rather than file
// extensions.
var acceptedTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/webp": true,
	"image/gif":  true,
}

// Upload is one file handed to Append.
type Upload struct {
	FileName string
	Data     []byte
}

// Library stores pages in upload order. Indices never move once assigned.
type Library struct {
	mu    sync.RWMutex
	title string
	pages []flipbook.Page
	blobs [][]byte
}

var _ flipbook.PageSource = (*Library)(nil)

// New creates an empty library.
func New() *Library {
	return &Library{}
}

// Append validates every upload and then appends them all. If any upload is
// rejected nothing is appended. PDF uploads contribute one page per PDF page.
func (l *Library) Append(uploads ...Upload) ([]flipbook.Page, error) {
	uploads, err := expandPDFs(uploads)
	if err != nil {
		return nil, err
	}

	types := make([]string, len(uploads))
	for i, u := range uploads {
		mime, err := DetectImageType(u.Data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", u.FileName, err)
		}
		types[i] = mime
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	added := make([]flipbook.Page, 0, len(uploads))
	for i, u := range uploads {
		index := len(l.pages)
		p := flipbook.Page{
			ID:       uuid.New().String(),
			Index:    index,
			Source:   ImageURL(index),
			MimeType: types[i],
			FileName: u.FileName,
			Size:     int64(len(u.Data)),
		}
		l.pages = append(l.pages, p)
		l.blobs = append(l.blobs, u.Data)
		added = append(added, p)
	}
	return added, nil
}

// DetectImageType sniffs data and returns its MIME type if it is an
// accepted image format.
func DetectImageType(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty file", ErrUnsupportedImage)
	}
	mime := http.DetectContentType(data)
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	if !acceptedTypes[mime] {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedImage, mime)
	}
	return mime, nil
}

// ImageURL is the path the front-end loads page i from.
func ImageURL(i int) string {
	return fmt.Sprintf("/api/pages/%d/image", i)
}

// Len returns the number of pages.
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.pages)
}

// Page returns page i.
func (l *Library) Page(i int) (flipbook.Page, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i < 0 || i >= len(l.pages) {
		return flipbook.Page{}, false
	}
	return l.pages[i], true
}

// Pages returns a copy of the page list.
func (l *Library) Pages() []flipbook.Page {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]flipbook.Page, len(l.pages))
	copy(out, l.pages)
	return out
}

// Image returns the bytes and MIME type of page i.
func (l *Library) Image(i int) ([]byte, string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.pages) == 0 {
		return nil, "", ErrNoPages
	}
	if i < 0 || i >= len(l.pages) || l.blobs[i] == nil {
		return nil, "", fmt.Errorf("page %d: %w", i, ErrImageUnavailable)
	}
	return l.blobs[i], l.pages[i].MimeType, nil
}

// Release drops every image blob. Page metadata stays so indices remain
// valid; Image reports ErrImageUnavailable afterwards.
func (l *Library) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.blobs {
		l.blobs[i] = nil
	}
}

// Title returns the book title, if one was set.
func (l *Library) Title() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.title
}

// SetTitle sets the book title.
func (l *Library) SetTitle(title string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.title = title
}
