package library

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/jackzampolin/leaflet/internal/testutil"
)

var (
	pngData  = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	jpegData = []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00")
	gifData  = []byte("GIF89a\x01\x00\x01\x00")
	webpData = []byte("RIFF\x24\x00\x00\x00WEBPVP8 ")
)

func TestDetectImageType(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		want    string
		wantErr bool
	}{
		{"png", pngData, "image/png", false},
		{"jpeg", jpegData, "image/jpeg", false},
		{"gif", gifData, "image/gif", false},
		{"webp", webpData, "image/webp", false},
		{"pdf", []byte("%PDF-1.7"), "", true},
		{"text", []byte("hello"), "", true},
		{"empty", nil, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectImageType(tt.data)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DetectImageType() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrUnsupportedImage) {
				t.Errorf("error = %v, want ErrUnsupportedImage", err)
			}
			if got != tt.want {
				t.Errorf("DetectImageType() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLibrary_Append(t *testing.T) {
	l := New()
	added, err := l.Append(
		Upload{FileName: "a.png", Data: pngData},
		Upload{FileName: "b.jpg", Data: jpegData},
	)
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if len(added) != 2 || l.Len() != 2 {
		t.Fatalf("added %d, Len() = %d, want 2", len(added), l.Len())
	}
	if added[1].Index != 1 || added[1].MimeType != "image/jpeg" || added[1].Source != "/api/pages/1/image" {
		t.Errorf("page = %+v", added[1])
	}
	if added[0].ID == "" || added[0].ID == added[1].ID {
		t.Error("pages need distinct IDs")
	}

	more, err := l.Append(Upload{FileName: "c.gif", Data: gifData})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if more[0].Index != 2 {
		t.Errorf("appended index = %d, want 2", more[0].Index)
	}
	if p, _ := l.Page(0); p.FileName != "a.png" {
		t.Error("earlier page moved after append")
	}
}

func TestLibrary_AppendIsAllOrNothing(t *testing.T) {
	l := New()
	_, err := l.Append(
		Upload{FileName: "ok.png", Data: pngData},
		Upload{FileName: "notes.txt", Data: []byte("plain text")},
	)
	if !errors.Is(err, ErrUnsupportedImage) {
		t.Fatalf("Append() error = %v, want ErrUnsupportedImage", err)
	}
	if l.Len() != 0 {
		t.Errorf("Len() = %d after rejected batch, want 0", l.Len())
	}
}

func TestLibrary_Image(t *testing.T) {
	l := New()
	if _, _, err := l.Image(0); !errors.Is(err, ErrNoPages) {
		t.Errorf("Image() on empty library error = %v, want ErrNoPages", err)
	}

	l.Append(Upload{FileName: "a.png", Data: pngData})
	data, mime, err := l.Image(0)
	if err != nil {
		t.Fatalf("Image() error = %v", err)
	}
	if mime != "image/png" || len(data) != len(pngData) {
		t.Errorf("Image() = %d bytes %s", len(data), mime)
	}
	if _, _, err := l.Image(5); !errors.Is(err, ErrImageUnavailable) {
		t.Errorf("Image(5) error = %v, want ErrImageUnavailable", err)
	}

	l.Release()
	if _, _, err := l.Image(0); !errors.Is(err, ErrImageUnavailable) {
		t.Errorf("Image() after Release error = %v, want ErrImageUnavailable", err)
	}
	if l.Len() != 1 {
		t.Error("Release must keep page metadata")
	}
}

func TestLibrary_LoadDir(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"sale-10.png", "sale-2.png", "sale-1.png", "readme.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), pngData, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	l := New()
	added, err := l.LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	want := []string{"sale-1.png", "sale-2.png", "sale-10.png"}
	if len(added) != len(want) {
		t.Fatalf("loaded %d pages, want %d", len(added), len(want))
	}
	for i, p := range added {
		if p.FileName != want[i] {
			t.Errorf("page %d = %s, want %s", i, p.FileName, want[i])
		}
	}
	if l.Title() != "sale" {
		t.Errorf("Title() = %q, want sale", l.Title())
	}

	if _, err := New().LoadDir(t.TempDir()); !errors.Is(err, ErrNoPages) {
		t.Errorf("LoadDir(empty) error = %v, want ErrNoPages", err)
	}
}

func TestSortByNumber(t *testing.T) {
	got := sortByNumber([]string{"p-10.png", "cover.png", "p-2.png", "p-1.png"})
	want := []string{"cover.png", "p-1.png", "p-2.png", "p-10.png"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sortByNumber() = %v, want %v", got, want)
		}
	}
}

func TestLibrary_AppendRejectsBrokenPDF(t *testing.T) {
	l := New()
	_, err := l.Append(
		Upload{FileName: "ok.png", Data: pngData},
		Upload{FileName: "brochure.pdf", Data: []byte("%PDF-1.7\nnot really a pdf")},
	)
	if !errors.Is(err, ErrUnsupportedImage) {
		t.Fatalf("Append() error = %v, want ErrUnsupportedImage", err)
	}
	if l.Len() != 0 {
		t.Errorf("Len() = %d after rejected batch, want 0", l.Len())
	}
}

func TestIsPDF(t *testing.T) {
	if !IsPDF([]byte("%PDF-1.4\n")) {
		t.Error("IsPDF(pdf header) = false")
	}
	if IsPDF(pngData) {
		t.Error("IsPDF(png) = true")
	}
}

// writePDF builds a PDF with one page per image.
func writePDF(t *testing.T, dir, name string, images ...[]byte) string {
	t.Helper()
	var files []string
	for i, img := range images {
		p := filepath.Join(dir, fmt.Sprintf("scan-%d.png", i+1))
		if err := os.WriteFile(p, img, 0o644); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
		files = append(files, p)
	}
	out := filepath.Join(dir, name)
	if err := pdfapi.ImportImagesFile(files, out, nil, nil); err != nil {
		t.Fatalf("ImportImagesFile() error = %v", err)
	}
	return out
}

func TestLibrary_AppendSplitsPDF(t *testing.T) {
	dir := t.TempDir()
	pdf := writePDF(t, dir, "doc.pdf", testutil.PNG(t, 40), testutil.PNG(t, 200))
	data, err := os.ReadFile(pdf)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}

	l := New()
	pages, err := l.Append(Upload{FileName: "doc.pdf", Data: data})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("Append() added %d pages, want 2", len(pages))
	}
	for i, p := range pages {
		if want := fmt.Sprintf("doc-%d", i+1); p.FileName != want {
			t.Errorf("page %d FileName = %q, want %q", i, p.FileName, want)
		}
		if p.Index != i {
			t.Errorf("page %d Index = %d", i, p.Index)
		}
		if p.MimeType != "image/png" {
			t.Errorf("page %d MimeType = %q, want image/png", i, p.MimeType)
		}
		img, mime, err := l.Image(i)
		if err != nil || mime != "image/png" || len(img) == 0 {
			t.Errorf("Image(%d) = %d bytes, %q, %v", i, len(img), mime, err)
		}
	}
}

func TestLibrary_LoadDirReadsPDF(t *testing.T) {
	pdf := writePDF(t, t.TempDir(), "flyer.pdf", testutil.PNG(t, 10), testutil.PNG(t, 90))

	pagesDir := t.TempDir()
	if err := os.Rename(pdf, filepath.Join(pagesDir, "flyer.pdf")); err != nil {
		t.Fatalf("Rename() error = %v", err)
	}

	l := New()
	pages, err := l.LoadDir(pagesDir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if len(pages) != 2 || pages[0].FileName != "flyer-1" || pages[1].FileName != "flyer-2" {
		t.Fatalf("LoadDir() pages = %+v, want flyer-1 and flyer-2", pages)
	}
	if l.Title() != "flyer" {
		t.Errorf("Title() = %q, want flyer", l.Title())
	}
}
