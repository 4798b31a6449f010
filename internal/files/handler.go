// Package files serves the proxied file endpoints backed by the storage adapter.
package files

import (
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/radif/filestore/internal/metrics"
	"github.com/radif/filestore/internal/middleware"
	"github.com/radif/filestore/internal/response"
	"github.com/radif/filestore/internal/storage"
)

// Handler holds HTTP handlers for file endpoints.
type Handler struct {
	store     *storage.Adapter
	appID     string
	mountPath string
	maxUpload int64
}

// NewHandler creates a new files Handler serving files of appID.
// mountPath is the public base URL the routes are mounted under, minus "/files".
func NewHandler(store *storage.Adapter, appID, mountPath string, maxUpload int64) *Handler {
	return &Handler{
		store:     store,
		appID:     appID,
		mountPath: mountPath,
		maxUpload: maxUpload,
	}
}

// Routes returns the file router. Writes are wrapped with requireAuth.
// The parent router must route on the escaped path (see middleware.EscapedPath)
// so that keys containing "/" arrive as a single segment.
func (h *Handler) Routes(requireAuth func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/{appId}/{filename}", h.Get)
	r.Head("/{appId}/{filename}", h.Get)
	r.Get("/{appId}/{filename}/location", h.Location)
	r.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Post("/{appId}/{filename}", h.Upload)
		r.Delete("/{appId}/{filename}", h.Delete)
	})
	return r
}

type uploadData struct {
	Name string `json:"name" example:"report.pdf"`
	URL  string `json:"url"  example:"http://localhost:8080/api/v1/files/myapp/report.pdf"`
}

type locationData struct {
	URL string `json:"url" example:"http://localhost:8080/api/v1/files/myapp/report.pdf"`
}

// Upload godoc
//
//	@Summary		Upload file
//	@Description	Store the raw request body under filename, overwriting any existing file. The Content-Type header is kept.
//	@Tags			files
//	@Accept			application/octet-stream
//	@Produce		json
//	@Security		BearerAuth
//	@Param			appId		path		string	true	"Application ID"
//	@Param			filename	path		string	true	"File name (URL-encoded)"
//	@Success		201			{object}	response.Envelope{data=uploadData}
//	@Failure		401			{object}	response.Envelope
//	@Failure		403			{object}	response.Envelope
//	@Failure		413			{object}	response.Envelope
//	@Failure		502			{object}	response.Envelope
//	@Router			/files/{appId}/{filename} [post]
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	name, ok := h.target(w, r)
	if !ok {
		return
	}
	if tokenApp, _ := middleware.AppID(r.Context()); tokenApp != h.appID {
		response.Forbidden(w, "token is not valid for this application")
		return
	}
	if r.ContentLength > h.maxUpload {
		response.TooLarge(w, h.maxUpload)
		return
	}

	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = mime.TypeByExtension(path.Ext(name))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	body := http.MaxBytesReader(w, r.Body, h.maxUpload)
	start := time.Now()
	_, err := h.store.CreateFile(r.Context(), name, body, r.ContentLength, contentType)
	observe("create", start, err)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.TooLarge(w, h.maxUpload)
			return
		}
		log.Printf("files: upload %q: %v", name, err)
		response.BadGateway(w)
		return
	}
	if r.ContentLength > 0 {
		metrics.StorageBytesTotal.WithLabelValues("in").Add(float64(r.ContentLength))
	}

	response.Created(w, uploadData{Name: name, URL: h.location(name)})
}

// Get godoc
//
//	@Summary		Download file
//	@Description	Stream a stored file. A single "Range: bytes=..." header is honored with 206 Partial Content.
//	@Tags			files
//	@Produce		octet-stream
//	@Param			appId		path		string	true	"Application ID"
//	@Param			filename	path		string	true	"File name (URL-encoded)"
//	@Param			Range		header		string	false	"Byte range, e.g. bytes=0-1023"
//	@Success		200			{file}		binary
//	@Success		206			{file}		binary
//	@Failure		404			{object}	response.Envelope
//	@Failure		416			{object}	response.Envelope
//	@Failure		502			{object}	response.Envelope
//	@Router			/files/{appId}/{filename} [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	name, ok := h.target(w, r)
	if !ok {
		return
	}

	start := time.Now()
	props, err := h.store.GetFileProperties(r.Context(), name)
	observe("properties", start, err)
	if err != nil {
		h.storageError(w, "properties", name, err)
		return
	}

	rng, err := parseRange(r.Header.Get("Range"), props.Length)
	switch {
	case errors.Is(err, errRangeUnsatisfiable):
		response.RangeNotSatisfiable(w, props.Length)
		return
	case err != nil:
		rng = nil
	}

	header := w.Header()
	header.Set("Accept-Ranges", "bytes")

	if r.Method == http.MethodHead {
		setObjectHeaders(header, props)
		header.Set("Content-Length", strconv.FormatInt(props.Length, 10))
		w.WriteHeader(http.StatusOK)
		return
	}

	start = time.Now()
	stream, err := h.store.GetFileStream(r.Context(), name, rng)
	if err == nil {
		// Open before writing headers so failures still map to a status code.
		err = stream.Open()
	}
	observe("stream", start, err)
	if err != nil {
		if errors.Is(err, storage.ErrRange) {
			response.RangeNotSatisfiable(w, props.Length)
			return
		}
		h.storageError(w, "stream", name, err)
		return
	}
	defer stream.Close()

	// The file may have been overwritten since the properties call; describe
	// the version actually being streamed.
	if opened := stream.Properties(); opened != nil && opened.Length >= 0 {
		props = opened
	}
	setObjectHeaders(header, props)

	status := http.StatusOK
	length := props.Length
	if rng != nil {
		end := min(rng.End, props.Length-1)
		status = http.StatusPartialContent
		length = end - rng.Start + 1
		header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", rng.Start, end, props.Length))
	}
	header.Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(status)

	n, err := io.Copy(w, stream)
	metrics.StorageBytesTotal.WithLabelValues("out").Add(float64(n))
	if err != nil {
		// Headers are already sent; the client sees a truncated body.
		log.Printf("files: stream %q aborted after %d bytes: %v", name, n, err)
	}
}

// Delete godoc
//
//	@Summary		Delete file
//	@Tags			files
//	@Produce		json
//	@Security		BearerAuth
//	@Param			appId		path		string	true	"Application ID"
//	@Param			filename	path		string	true	"File name (URL-encoded)"
//	@Success		200			{object}	response.Envelope
//	@Failure		401			{object}	response.Envelope
//	@Failure		403			{object}	response.Envelope
//	@Failure		404			{object}	response.Envelope
//	@Failure		502			{object}	response.Envelope
//	@Router			/files/{appId}/{filename} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	name, ok := h.target(w, r)
	if !ok {
		return
	}
	if tokenApp, _ := middleware.AppID(r.Context()); tokenApp != h.appID {
		response.Forbidden(w, "token is not valid for this application")
		return
	}

	start := time.Now()
	err := h.store.DeleteFile(r.Context(), name)
	observe("delete", start, err)
	if err != nil {
		h.storageError(w, "delete", name, err)
		return
	}

	response.OK(w, map[string]string{"deleted": name})
}

// Location godoc
//
//	@Summary		File location
//	@Description	Return the URL clients should use to fetch the file: the backend's public URL when direct access is enabled, otherwise this API.
//	@Tags			files
//	@Produce		json
//	@Param			appId		path		string	true	"Application ID"
//	@Param			filename	path		string	true	"File name (URL-encoded)"
//	@Success		200			{object}	response.Envelope{data=locationData}
//	@Failure		404			{object}	response.Envelope
//	@Router			/files/{appId}/{filename}/location [get]
func (h *Handler) Location(w http.ResponseWriter, r *http.Request) {
	name, ok := h.target(w, r)
	if !ok {
		return
	}
	response.OK(w, locationData{URL: h.location(name)})
}

func (h *Handler) location(name string) string {
	return h.store.GetFileLocation(storage.Location{MountPath: h.mountPath, ApplicationID: h.appID}, name)
}

// target validates the application and decodes the filename path parameter.
func (h *Handler) target(w http.ResponseWriter, r *http.Request) (string, bool) {
	if chi.URLParam(r, "appId") != h.appID {
		response.NotFound(w, "unknown application")
		return "", false
	}
	name, err := url.PathUnescape(chi.URLParam(r, "filename"))
	if err != nil || name == "" {
		response.BadRequest(w, "invalid filename")
		return "", false
	}
	return name, true
}

func setObjectHeaders(header http.Header, props *storage.Properties) {
	if props.ContentType != "" {
		header.Set("Content-Type", props.ContentType)
	}
	if props.ETag != "" {
		header.Set("ETag", props.ETag)
	}
	if !props.LastModified.IsZero() {
		header.Set("Last-Modified", props.LastModified.UTC().Format(http.TimeFormat))
	}
}

func (h *Handler) storageError(w http.ResponseWriter, op, name string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		response.NotFound(w, "file not found")
		return
	}
	log.Printf("files: %s %q: %v", op, name, err)
	response.BadGateway(w)
}

func observe(op string, start time.Time, err error) {
	result := "success"
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrNotFound):
		result = "not_found"
	case errors.Is(err, storage.ErrRange):
		result = "bad_range"
	default:
		result = "error"
	}
	metrics.ObserveStorage(op, result, start)
}
