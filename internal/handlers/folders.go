package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cloudcrate/cloudcrate/internal/apperr"
	"github.com/cloudcrate/cloudcrate/internal/pagination"
	"github.com/cloudcrate/cloudcrate/internal/service"
)

// FolderHandler exposes the folder hierarchy over HTTP.
type FolderHandler struct {
	folders *service.FolderService
}

func NewFolderHandler(folders *service.FolderService) *FolderHandler {
	return &FolderHandler{folders: folders}
}

type createFolderRequest struct {
	Name     string  `json:"name"`
	ParentID *string `json:"parent_id,omitempty"`
}

type renameFolderRequest struct {
	Name string `json:"name"`
}

// Create handles POST /api/folders.
func (fh *FolderHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "http.create_folder",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var req createFolderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("malformed JSON body"))
		return
	}
	span.SetAttributes(attribute.String("name", req.Name))

	folder, err := fh.folders.Create(ctx, userID, req.Name, req.ParentID)
	if err != nil {
		span.RecordError(err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, folder)
}

// List handles GET /api/folders?parent_id=&page=&limit=.
func (fh *FolderHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "http.list_folders",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	params, err := pagination.ParseParams(r.URL.Query())
	if err != nil {
		writeError(w, err)
		return
	}

	var parentID *string
	if v := r.URL.Query().Get("parent_id"); v != "" {
		parentID = &v
	}

	envelope, err := fh.folders.List(ctx, userID, parentID, params)
	if err != nil {
		span.RecordError(err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope)
}

// Contents handles GET /api/folders/{id}.
func (fh *FolderHandler) Contents(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "http.folder_contents",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	params, err := pagination.ParseParams(r.URL.Query())
	if err != nil {
		writeError(w, err)
		return
	}

	contents, err := fh.folders.Contents(ctx, userID, mux.Vars(r)["id"], params)
	if err != nil {
		span.RecordError(err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contents)
}

// Rename handles PATCH /api/folders/{id}.
func (fh *FolderHandler) Rename(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "http.rename_folder",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var req renameFolderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("malformed JSON body"))
		return
	}

	folder, err := fh.folders.Rename(ctx, userID, mux.Vars(r)["id"], req.Name)
	if err != nil {
		span.RecordError(err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, folder)
}

// Delete handles DELETE /api/folders/{id}.
func (fh *FolderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "http.delete_folder",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	if err := fh.folders.Delete(ctx, userID, mux.Vars(r)["id"]); err != nil {
		span.RecordError(err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "folder deleted"})
}
