package service

import (
	"context"
	"io"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/cloudcrate/cloudcrate/internal/models"
	"github.com/cloudcrate/cloudcrate/internal/storage"
)

var tracer = otel.Tracer("cloudcrate-service")

// ObjectStore is the object-side collaborator. Implemented by
// storage.MinioStore; tests substitute an in-memory fake.
type ObjectStore interface {
	Bucket() string
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string, attrs storage.ObjectAttributes) error
	Get(ctx context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

// QuotaLedger tracks per-user consumed space against the ceiling.
type QuotaLedger interface {
	GetQuota(ctx context.Context, userID string) (models.QuotaInfo, error)
	ReserveSpace(ctx context.Context, userID string, n int64) error
	ReleaseSpace(ctx context.Context, userID string, n int64) error
}

// FolderStore is the metadata-side folder repository.
type FolderStore interface {
	CreateFolder(ctx context.Context, folder *models.Folder) error
	GetFolder(ctx context.Context, folderID, userID string) (*models.Folder, error)
	FolderPathExists(ctx context.Context, userID, path string) (bool, error)
	ListFolders(ctx context.Context, userID string, parentID *string, limit, offset int) ([]models.FolderSummary, error)
	CountFolders(ctx context.Context, userID string, parentID *string) (int64, error)
	CountChildren(ctx context.Context, folderID, userID string) (folders, files int64, err error)
	RenameFolderTree(ctx context.Context, folderID, userID, newName, oldPath, newPath string) error
	SoftDeleteFolder(ctx context.Context, folderID, userID string, at time.Time) error
}

// FileStore is the metadata-side file repository.
type FileStore interface {
	CreateFile(ctx context.Context, file *models.File) error
	GetFile(ctx context.Context, fileID, userID string) (*models.File, error)
	ListFiles(ctx context.Context, userID string, folderID *string, limit, offset int) ([]models.FileSummary, error)
	CountFiles(ctx context.Context, userID string, folderID *string) (int64, error)
	SoftDeleteFile(ctx context.Context, fileID, userID string, at time.Time) error
}

// FileCache keeps file rows warm on the download path. Cache failures
// are never fatal to a request.
type FileCache interface {
	GetFile(ctx context.Context, userID, fileID string) (*models.File, error)
	SetFile(ctx context.Context, file *models.File) error
	InvalidateFile(ctx context.Context, userID, fileID string) error
}
