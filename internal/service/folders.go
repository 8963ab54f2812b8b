package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cloudcrate/cloudcrate/internal/apperr"
	"github.com/cloudcrate/cloudcrate/internal/models"
	"github.com/cloudcrate/cloudcrate/internal/pagination"
)

// FolderContents is one logical snapshot of a folder: its own identity
// plus paginated listings of its direct children.
type FolderContents struct {
	Folder  models.FolderSummary `json:"folder"`
	Folders pagination.Envelope  `json:"folders"`
	Files   pagination.Envelope  `json:"files"`
}

// FolderService maintains the per-user materialized-path tree. It
// reads the file repository only for listing counts; file mutations
// stay with FileService.
type FolderService struct {
	folders FolderStore
	files   FileStore
}

func NewFolderService(folders FolderStore, files FileStore) *FolderService {
	return &FolderService{folders: folders, files: files}
}

// validateName accepts a single path segment.
func validateName(name string) error {
	switch {
	case name == "":
		return apperr.Validation("folder name is required")
	case len(name) > 255:
		return apperr.Validation("folder name exceeds 255 characters")
	case strings.ContainsAny(name, "/\x00"):
		return apperr.Validation("folder name must not contain '/'")
	case name == "." || name == "..":
		return apperr.Validation("folder name is reserved")
	}
	return nil
}

// childPath derives a folder path from its parent's path and own name.
// parentPath is "" for root-level folders.
func childPath(parentPath, name string) string {
	return parentPath + "/" + name
}

// Create adds a folder under parentID (nil for root level). The
// computed path must be free among the caller's live folders.
func (fsv *FolderService) Create(ctx context.Context, userID, name string, parentID *string) (*models.Folder, error) {
	ctx, span := tracer.Start(ctx, "folders.create",
		trace.WithAttributes(attribute.String("name", name)),
	)
	defer span.End()

	if err := validateName(name); err != nil {
		return nil, err
	}

	parentPath := ""
	if parentID != nil {
		parent, err := fsv.folders.GetFolder(ctx, *parentID, userID)
		if err != nil {
			return nil, err
		}
		parentPath = parent.Path
	}
	path := childPath(parentPath, name)
	span.SetAttributes(attribute.String("path", path))

	exists, err := fsv.folders.FolderPathExists(ctx, userID, path)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperr.Conflict("a folder already exists at " + path)
	}

	now := time.Now()
	folder := &models.Folder{
		ID:        uuid.New().String(),
		UserID:    userID,
		ParentID:  parentID,
		Name:      name,
		Path:      path,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := fsv.folders.CreateFolder(ctx, folder); err != nil {
		return nil, err
	}

	log.Info().Str("user_id", userID).Str("path", path).Msg("folder created")
	return folder, nil
}

// List returns one page of the caller's live folders under parentID
// (nil for root level), ordered by name, with direct file counts.
func (fsv *FolderService) List(ctx context.Context, userID string, parentID *string, p pagination.Params) (pagination.Envelope, error) {
	ctx, span := tracer.Start(ctx, "folders.list",
		trace.WithAttributes(attribute.Int("page", p.Page)),
	)
	defer span.End()

	total, err := fsv.folders.CountFolders(ctx, userID, parentID)
	if err != nil {
		return pagination.Envelope{}, err
	}

	items, err := fsv.folders.ListFolders(ctx, userID, parentID, p.Limit, p.Offset())
	if err != nil {
		return pagination.Envelope{}, err
	}
	if items == nil {
		items = []models.FolderSummary{}
	}

	return pagination.NewEnvelope(items, p, total), nil
}

// Contents returns the folder's identity plus paginated listings of its
// direct child folders and files, taken in one logical view.
func (fsv *FolderService) Contents(ctx context.Context, userID, folderID string, p pagination.Params) (*FolderContents, error) {
	ctx, span := tracer.Start(ctx, "folders.contents",
		trace.WithAttributes(attribute.String("folder_id", folderID)),
	)
	defer span.End()

	folder, err := fsv.folders.GetFolder(ctx, folderID, userID)
	if err != nil {
		return nil, err
	}

	childFolders, err := fsv.List(ctx, userID, &folder.ID, p)
	if err != nil {
		return nil, err
	}

	fileTotal, err := fsv.files.CountFiles(ctx, userID, &folder.ID)
	if err != nil {
		return nil, err
	}
	fileItems, err := fsv.files.ListFiles(ctx, userID, &folder.ID, p.Limit, p.Offset())
	if err != nil {
		return nil, err
	}
	if fileItems == nil {
		fileItems = []models.FileSummary{}
	}

	return &FolderContents{
		Folder: models.FolderSummary{
			ID:        folder.ID,
			Name:      folder.Name,
			Path:      folder.Path,
			FileCount: fileTotal,
			CreatedAt: folder.CreatedAt,
		},
		Folders: childFolders,
		Files:   pagination.NewEnvelope(fileItems, p, fileTotal),
	}, nil
}

// Rename changes the final path segment and rewrites every descendant
// path in the same transaction, so the subtree is never observable
// half-renamed.
func (fsv *FolderService) Rename(ctx context.Context, userID, folderID, newName string) (*models.Folder, error) {
	ctx, span := tracer.Start(ctx, "folders.rename",
		trace.WithAttributes(
			attribute.String("folder_id", folderID),
			attribute.String("new_name", newName),
		),
	)
	defer span.End()

	if err := validateName(newName); err != nil {
		return nil, err
	}

	folder, err := fsv.folders.GetFolder(ctx, folderID, userID)
	if err != nil {
		return nil, err
	}

	oldPath := folder.Path
	newPath := oldPath[:strings.LastIndex(oldPath, "/")+1] + newName
	if newPath == oldPath {
		return folder, nil
	}

	exists, err := fsv.folders.FolderPathExists(ctx, userID, newPath)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperr.Conflict("a folder already exists at " + newPath)
	}

	if err := fsv.folders.RenameFolderTree(ctx, folderID, userID, newName, oldPath, newPath); err != nil {
		return nil, err
	}

	log.Info().
		Str("user_id", userID).
		Str("old_path", oldPath).
		Str("new_path", newPath).
		Msg("folder renamed")

	folder.Name = newName
	folder.Path = newPath
	return folder, nil
}

// Delete soft-deletes an empty folder. Deletion never cascades; any
// live child folder or file blocks it.
func (fsv *FolderService) Delete(ctx context.Context, userID, folderID string) error {
	ctx, span := tracer.Start(ctx, "folders.delete",
		trace.WithAttributes(attribute.String("folder_id", folderID)),
	)
	defer span.End()

	folder, err := fsv.folders.GetFolder(ctx, folderID, userID)
	if err != nil {
		return err
	}

	childFolders, childFiles, err := fsv.folders.CountChildren(ctx, folderID, userID)
	if err != nil {
		return err
	}
	if childFolders > 0 || childFiles > 0 {
		return apperr.NotEmpty("folder is not empty")
	}

	if err := fsv.folders.SoftDeleteFolder(ctx, folderID, userID, time.Now()); err != nil {
		return err
	}

	log.Info().Str("user_id", userID).Str("path", folder.Path).Msg("folder deleted")
	return nil
}
