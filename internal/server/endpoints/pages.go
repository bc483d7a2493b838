package endpoints

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/leaflet/internal/api"
	"github.com/jackzampolin/leaflet/internal/flipbook"
	"github.com/jackzampolin/leaflet/internal/library"
	"github.com/jackzampolin/leaflet/internal/svcctx"
)

// DefaultMaxUploadBytes bounds an upload request when the server sets no limit.
const DefaultMaxUploadBytes = 32 << 20

// placeholderFace is served in place of a page whose image is gone.
const placeholderFace = `<svg xmlns="http://www.w3.org/2000/svg" width="1689" height="3000" viewBox="0 0 1689 3000">` +
	`<rect width="100%" height="100%" fill="#f4f1ea"/>` +
	`<text x="50%" y="50%" font-family="sans-serif" font-size="64" fill="#9a9388" text-anchor="middle">Page unavailable</text>` +
	`</svg>`

// PagesResponse lists pages in book order.
type PagesResponse struct {
	Title       string          `json:"title,omitempty"`
	Pages       []flipbook.Page `json:"pages"`
	Total       int             `json:"total"`
	TotalSheets int             `json:"total_sheets"`
}

// ListPagesEndpoint handles GET /api/pages.
type ListPagesEndpoint struct{}

var _ api.Endpoint = (*ListPagesEndpoint)(nil)

func (e *ListPagesEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/pages", e.handler
}

func (e *ListPagesEndpoint) RequiresInit() bool { return true }
func (e *ListPagesEndpoint) Group() string      { return "pages" }

// handler godoc
//
//	@Summary		List pages
//	@Description	List every page in book order
//	@Tags			pages
//	@Produce		json
//	@Success		200	{object}	PagesResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/pages [get]
func (e *ListPagesEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	v := svcctx.ViewerFrom(r.Context())
	pages := v.Library().Pages()
	writeJSON(w, http.StatusOK, PagesResponse{
		Title:       v.Library().Title(),
		Pages:       pages,
		Total:       len(pages),
		TotalSheets: flipbook.TotalSheets(len(pages)),
	})
}

func (e *ListPagesEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pages",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp PagesResponse
			if err := client.Get(cmd.Context(), "/api/pages", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// UploadPagesEndpoint handles POST /api/pages with multipart file upload.
type UploadPagesEndpoint struct{}

var _ api.Endpoint = (*UploadPagesEndpoint)(nil)

func (e *UploadPagesEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/pages", e.handler
}

func (e *UploadPagesEndpoint) RequiresInit() bool { return true }
func (e *UploadPagesEndpoint) Group() string      { return "pages" }

// handler godoc
//
//	@Summary		Upload pages
//	@Description	Append page images to the end of the book. Either every file is accepted or none is.
//	@Tags			pages
//	@Accept			mpfd
//	@Produce		json
//	@Param			files	formData	file	true	"Page images (png, jpeg, webp, gif)"
//	@Param			title	formData	string	false	"Book title"
//	@Success		200		{object}	PagesResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		413		{object}	ErrorResponse
//	@Failure		415		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/pages [post]
func (e *UploadPagesEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	v := svcctx.ViewerFrom(ctx)

	maxBytes := svcctx.MaxUploadBytesFrom(ctx, DefaultMaxUploadBytes)
	if r.ContentLength > maxBytes {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", maxBytes))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to parse form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "no files uploaded")
		return
	}

	uploads := make([]library.Upload, 0, len(files))
	for _, fh := range files {
		src, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to open uploaded file: %v", err))
			return
		}
		data, err := io.ReadAll(src)
		src.Close()
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to read %s: %v", fh.Filename, err))
			return
		}
		uploads = append(uploads, library.Upload{FileName: fh.Filename, Data: data})
	}

	added, err := v.Append(uploads...)
	if err != nil {
		if errors.Is(err, library.ErrUnsupportedImage) {
			writeError(w, http.StatusUnsupportedMediaType, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if title := r.FormValue("title"); title != "" {
		v.Library().SetTitle(title)
	}
	svcctx.LoggerFrom(ctx).Info("pages uploaded",
		"added", len(added),
		"total", v.Library().Len(),
		"sheets", v.Book().TotalSheets())

	writeJSON(w, http.StatusOK, PagesResponse{
		Title:       v.Library().Title(),
		Pages:       added,
		Total:       v.Library().Len(),
		TotalSheets: v.Book().TotalSheets(),
	})
}

func (e *UploadPagesEndpoint) Command(getServerURL func() string) *cobra.Command {
	var title string
	cmd := &cobra.Command{
		Use:   "upload <image>...",
		Short: "Append page images to the book",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields := map[string]string{}
			if title != "" {
				fields["title"] = title
			}
			client := api.NewClient(getServerURL())
			var resp PagesResponse
			if err := client.Upload(cmd.Context(), "/api/pages", args, fields, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Book title")
	return cmd
}

// PageImageEndpoint handles GET /api/pages/{index}/image.
type PageImageEndpoint struct{}

var _ api.Endpoint = (*PageImageEndpoint)(nil)

func (e *PageImageEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/pages/{index}/image", e.handler
}

func (e *PageImageEndpoint) RequiresInit() bool { return true }
func (e *PageImageEndpoint) Group() string      { return "pages" }

// handler godoc
//
//	@Summary		Get page image
//	@Description	Get the image for a page. A page whose image was released is served as a placeholder face.
//	@Tags			pages
//	@Produce		image/png
//	@Produce		image/jpeg
//	@Produce		image/svg+xml
//	@Param			index	path		int	true	"Page index (0-based)"
//	@Success		200		{file}		binary
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/pages/{index}/image [get]
func (e *PageImageEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	index, err := pathIndex(r, "index")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	lib := svcctx.ViewerFrom(r.Context()).Library()
	page, ok := lib.Page(index)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("page %d not found", index))
		return
	}

	data, mime, err := lib.Image(index)
	if err != nil {
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "no-store")
		w.Write([]byte(placeholderFace))
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	http.ServeContent(w, r, page.FileName, time.Time{}, bytes.NewReader(data))
}

func (e *PageImageEndpoint) Command(getServerURL func() string) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "image <index>",
		Short: "Download a page image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet,
				getServerURL()+"/api/pages/"+args[0]+"/image", nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return fmt.Errorf("request failed: %w", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("server error (%d)", resp.StatusCode)
			}
			if out == "" {
				out = filepath.Base("page-" + args[0] + extensionFor(resp.Header.Get("Content-Type")))
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			defer f.Close()
			if _, err := io.Copy(f, resp.Body); err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "file", "f", "", "Destination file")
	return cmd
}

func extensionFor(mime string) string {
	switch mime {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	case "image/svg+xml":
		return ".svg"
	}
	return ""
}
