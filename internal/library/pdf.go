package library

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

const pdfMimeType = "application/pdf"

// IsPDF reports whether data sniffs as a PDF document.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF-"))
}

// SplitPDF turns a scanned PDF into one upload per page. Each page uses the
// largest embedded image on that page, so page order follows the document
// rather than the image object numbering.
func SplitPDF(u Upload) ([]Upload, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	pageCount, err := api.PageCount(bytes.NewReader(u.Data), conf)
	if err != nil {
		return nil, fmt.Errorf("%w: unreadable pdf: %v", ErrUnsupportedImage, err)
	}
	if pageCount == 0 {
		return nil, fmt.Errorf("%w: pdf has no pages", ErrUnsupportedImage)
	}

	base := strings.TrimSuffix(u.FileName, ".pdf")
	base = strings.TrimSuffix(base, ".PDF")

	out := make([]Upload, 0, pageCount)
	for pageNr := 1; pageNr <= pageCount; pageNr++ {
		var best []byte
		bestArea := -1
		digest := func(img model.Image, singleImgPerPage bool, maxPageDigits int) error {
			data, err := io.ReadAll(img)
			if err != nil {
				return err
			}
			if _, err := DetectImageType(data); err != nil {
				return nil
			}
			if area := img.Width * img.Height; area > bestArea {
				best, bestArea = data, area
			}
			return nil
		}

		selected := []string{strconv.Itoa(pageNr)}
		if err := api.ExtractImages(bytes.NewReader(u.Data), selected, digest, conf); err != nil {
			return nil, fmt.Errorf("%w: page %d: %v", ErrUnsupportedImage, pageNr, err)
		}
		if best == nil {
			return nil, fmt.Errorf("%w: pdf page %d has no embedded page image", ErrUnsupportedImage, pageNr)
		}
		out = append(out, Upload{
			FileName: fmt.Sprintf("%s-%d", base, pageNr),
			Data:     best,
		})
	}
	return out, nil
}

// expandPDFs replaces each PDF upload with its pages.
func expandPDFs(uploads []Upload) ([]Upload, error) {
	out := make([]Upload, 0, len(uploads))
	for _, u := range uploads {
		if !IsPDF(u.Data) {
			out = append(out, u)
			continue
		}
		pages, err := SplitPDF(u)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", u.FileName, err)
		}
		out = append(out, pages...)
	}
	return out, nil
}
