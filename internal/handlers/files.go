package handlers

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cloudcrate/cloudcrate/internal/apperr"
	"github.com/cloudcrate/cloudcrate/internal/models"
	"github.com/cloudcrate/cloudcrate/internal/service"
)

// FileHandler exposes the file lifecycle over HTTP.
type FileHandler struct {
	files          *service.FileService
	maxUploadBytes int64
}

func NewFileHandler(files *service.FileService, maxUploadBytes int64) *FileHandler {
	return &FileHandler{files: files, maxUploadBytes: maxUploadBytes}
}

type uploadResponse struct {
	Files []models.FileSummary `json:"files"`
	Count int                  `json:"count"`
	Msg   string               `json:"message"`
}

// Upload handles POST /api/files: multipart form with one or more
// "files" parts and an optional "folder_id" field.
func (fh *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "http.upload_files",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, fh.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, apperr.Validation("malformed multipart request"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	var folderID *string
	if v := r.FormValue("folder_id"); v != "" {
		folderID = &v
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		headers = r.MultipartForm.File["file"]
	}
	if len(headers) == 0 {
		writeError(w, apperr.Validation("no files in request"))
		return
	}
	span.SetAttributes(attribute.Int("file_count", len(headers)))

	parts := make([]service.UploadPart, 0, len(headers))
	opened := make([]io.Closer, 0, len(headers))
	defer func() {
		for _, c := range opened {
			c.Close()
		}
	}()
	for _, hdr := range headers {
		f, err := hdr.Open()
		if err != nil {
			writeError(w, apperr.Validation("unreadable file part"))
			return
		}
		opened = append(opened, f)
		parts = append(parts, service.UploadPart{
			Filename:    hdr.Filename,
			ContentType: hdr.Header.Get("Content-Type"),
			Reader:      f,
		})
	}

	results, err := fh.files.Upload(ctx, userID, folderID, parts)
	if err != nil {
		span.RecordError(err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, uploadResponse{
		Files: results,
		Count: len(results),
		Msg:   "upload complete",
	})
}

// Download handles GET /api/files/{id}/download, streaming the object
// with a content-disposition attachment hint.
func (fh *FileHandler) Download(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "http.download_file",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	fileID := mux.Vars(r)["id"]

	dl, err := fh.files.Download(ctx, userID, fileID)
	if err != nil {
		span.RecordError(err)
		writeError(w, err)
		return
	}
	defer dl.Reader.Close()

	w.Header().Set("Content-Type", dl.MimeType)
	w.Header().Set("Content-Length", strconv.FormatInt(dl.Size, 10))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": dl.Filename}))
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, dl.Reader); err != nil {
		// Headers are gone; all we can do is note the broken stream.
		log.Debug().Err(err).Str("file_id", fileID).Msg("download stream interrupted")
	}
}

// Delete handles DELETE /api/files/{id}.
func (fh *FileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "http.delete_file",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	fileID := mux.Vars(r)["id"]

	if err := fh.files.Delete(ctx, userID, fileID); err != nil {
		span.RecordError(err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("file %s deleted", fileID)})
}

// Quota handles GET /api/quota.
func (fh *FileHandler) Quota(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "http.get_quota",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	info, err := fh.files.Quota(ctx, userID)
	if err != nil {
		span.RecordError(err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}
