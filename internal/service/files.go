package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cloudcrate/cloudcrate/internal/apperr"
	"github.com/cloudcrate/cloudcrate/internal/mimetypes"
	"github.com/cloudcrate/cloudcrate/internal/models"
	"github.com/cloudcrate/cloudcrate/internal/storage"
)

// UploadPart is one file in an upload request. The reader is consumed
// fully before any side effect for that part.
type UploadPart struct {
	Filename    string
	ContentType string
	Reader      io.Reader
}

// Download carries a file's byte stream plus the headers a transport
// needs to serve it.
type Download struct {
	Reader   io.ReadCloser
	Size     int64
	MimeType string
	Filename string
}

// FileService orchestrates the file lifecycle across the object store
// and the metadata store. The two are never coordinated by a shared
// transaction; the operation ordering here is the sole consistency
// mechanism, biased toward orphaned objects over dangling rows.
type FileService struct {
	objects ObjectStore
	files   FileStore
	folders FolderStore
	quota   QuotaLedger
	cache   FileCache
	allow   *mimetypes.Allowlist
}

// NewFileService wires the file manager. cache may be nil.
func NewFileService(objects ObjectStore, files FileStore, folders FolderStore, quota QuotaLedger, cache FileCache, allow *mimetypes.Allowlist) *FileService {
	return &FileService{
		objects: objects,
		files:   files,
		folders: folders,
		quota:   quota,
		cache:   cache,
		allow:   allow,
	}
}

// Upload stores each part in sequence: buffer, quota pre-check against
// the snapshot loaded up front, MIME gate, object write, space
// reservation, metadata row. The first failing part aborts the request;
// parts that already completed stay committed.
func (fs *FileService) Upload(ctx context.Context, userID string, folderID *string, parts []UploadPart) ([]models.FileSummary, error) {
	ctx, span := tracer.Start(ctx, "files.upload",
		trace.WithAttributes(
			attribute.String("user_id", userID),
			attribute.Int("part_count", len(parts)),
		),
	)
	defer span.End()

	if len(parts) == 0 {
		return nil, apperr.Validation("no files in request")
	}

	if folderID != nil {
		if _, err := fs.folders.GetFolder(ctx, *folderID, userID); err != nil {
			return nil, err
		}
	}

	// Snapshot of the counters; every part is pre-checked against this
	// value. The reservation below is the authoritative, conditional
	// commit, so a stale snapshot can produce a late rejection but
	// never an overshoot.
	snapshot, err := fs.quota.GetQuota(ctx, userID)
	if err != nil {
		return nil, err
	}

	results := make([]models.FileSummary, 0, len(parts))
	for _, part := range parts {
		summary, err := fs.uploadOne(ctx, userID, folderID, snapshot, part)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		results = append(results, *summary)
	}

	return results, nil
}

func (fs *FileService) uploadOne(ctx context.Context, userID string, folderID *string, snapshot models.QuotaInfo, part UploadPart) (*models.FileSummary, error) {
	ctx, span := tracer.Start(ctx, "files.upload_part",
		trace.WithAttributes(attribute.String("filename", part.Filename)),
	)
	defer span.End()

	if part.Filename == "" {
		return nil, apperr.Validation("filename is required")
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(part.Reader); err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	size := int64(buf.Len())
	span.SetAttributes(attribute.Int64("size_bytes", size))

	if snapshot.Used+size > snapshot.Quota {
		return nil, apperr.QuotaExceeded(snapshot.Quota, snapshot.Used)
	}

	mimeType := mimetypes.Resolve(part.ContentType, part.Filename)
	if !fs.allow.IsAllowed(mimeType) {
		return nil, apperr.UnsupportedType(mimeType, fs.allow.Describe())
	}
	span.SetAttributes(attribute.String("mime_type", mimeType))

	now := time.Now()
	key := storage.ObjectKey(userID, part.Filename, now)

	// Object first. No metadata row exists until the store has
	// acknowledged the full write.
	err := fs.objects.Put(ctx, key, &buf, size, mimeType, storage.ObjectAttributes{
		OwnerID:      userID,
		OriginalName: part.Filename,
		UploadedAt:   now,
	})
	if err != nil {
		return nil, err
	}

	// Reserve before inserting the row so an accepted row is always
	// accounted for. On rejection the fresh object is deleted
	// best-effort; a leftover orphan is reclaimable, a dangling row is
	// not.
	if err := fs.quota.ReserveSpace(ctx, userID, size); err != nil {
		fs.discardObject(ctx, key)
		return nil, err
	}

	file := &models.File{
		ID:           uuid.New().String(),
		UserID:       userID,
		FolderID:     folderID,
		Filename:     part.Filename,
		OriginalName: part.Filename,
		MimeType:     mimeType,
		Size:         size,
		S3Key:        key,
		S3Bucket:     fs.objects.Bucket(),
		CreatedAt:    now,
	}
	if err := fs.files.CreateFile(ctx, file); err != nil {
		if rerr := fs.quota.ReleaseSpace(ctx, userID, size); rerr != nil {
			log.Warn().Err(rerr).Str("user_id", userID).Msg("failed to release space after insert failure")
		}
		fs.discardObject(ctx, key)
		return nil, err
	}

	log.Info().
		Str("user_id", userID).
		Str("file_id", file.ID).
		Int64("size", size).
		Msg("file uploaded")

	return &models.FileSummary{
		ID:       file.ID,
		Filename: file.Filename,
		Size:     file.Size,
		MimeType: file.MimeType,
	}, nil
}

// discardObject removes an object written by an upload that did not
// commit. Failure only leaves an orphan, so it is logged and dropped.
func (fs *FileService) discardObject(ctx context.Context, key string) {
	if err := fs.objects.Delete(ctx, key); err != nil {
		log.Warn().Err(err).Str("object_key", key).Msg("failed to discard orphaned object")
	}
}

// Download opens the byte stream for a live file owned by userID.
func (fs *FileService) Download(ctx context.Context, userID, fileID string) (*Download, error) {
	ctx, span := tracer.Start(ctx, "files.download",
		trace.WithAttributes(attribute.String("file_id", fileID)),
	)
	defer span.End()

	file, err := fs.getFile(ctx, userID, fileID)
	if err != nil {
		return nil, err
	}

	reader, info, err := fs.objects.Get(ctx, file.S3Key)
	if err != nil {
		// A missing object behind a live row is store-side breakage,
		// not a metadata miss.
		span.RecordError(err)
		return nil, apperr.StorageUnavailable("read", err)
	}

	size := info.Size
	if size == 0 {
		size = file.Size
	}

	return &Download{
		Reader:   reader,
		Size:     size,
		MimeType: file.MimeType,
		Filename: file.OriginalName,
	}, nil
}

// Delete removes the object from the store first; only once that
// succeeds is the row soft-deleted and the space released. A failed
// store delete leaves the row intact so the caller can retry.
func (fs *FileService) Delete(ctx context.Context, userID, fileID string) error {
	ctx, span := tracer.Start(ctx, "files.delete",
		trace.WithAttributes(attribute.String("file_id", fileID)),
	)
	defer span.End()

	file, err := fs.files.GetFile(ctx, fileID, userID)
	if err != nil {
		return err
	}

	if err := fs.objects.Delete(ctx, file.S3Key); err != nil {
		span.RecordError(err)
		return err
	}

	if err := fs.files.SoftDeleteFile(ctx, fileID, userID, time.Now()); err != nil {
		return err
	}

	// The deletion itself is already committed and correct; a failed
	// release only overcounts until the next quota audit.
	if err := fs.quota.ReleaseSpace(ctx, userID, file.Size); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Str("file_id", fileID).
			Msg("failed to release space after delete; counter drifting")
	}

	fs.invalidate(ctx, userID, fileID)

	log.Info().Str("user_id", userID).Str("file_id", fileID).Msg("file deleted")
	return nil
}

// Quota reports the caller's current counters.
func (fs *FileService) Quota(ctx context.Context, userID string) (models.QuotaInfo, error) {
	ctx, span := tracer.Start(ctx, "files.quota")
	defer span.End()

	return fs.quota.GetQuota(ctx, userID)
}

func (fs *FileService) getFile(ctx context.Context, userID, fileID string) (*models.File, error) {
	if fs.cache != nil {
		file, err := fs.cache.GetFile(ctx, userID, fileID)
		if err != nil {
			log.Warn().Err(err).Str("file_id", fileID).Msg("file cache read failed")
		} else if file != nil && !file.IsDeleted {
			return file, nil
		}
	}

	file, err := fs.files.GetFile(ctx, fileID, userID)
	if err != nil {
		return nil, err
	}

	if fs.cache != nil {
		if err := fs.cache.SetFile(ctx, file); err != nil {
			log.Warn().Err(err).Str("file_id", fileID).Msg("file cache write failed")
		}
	}
	return file, nil
}

func (fs *FileService) invalidate(ctx context.Context, userID, fileID string) {
	if fs.cache == nil {
		return
	}
	if err := fs.cache.InvalidateFile(ctx, userID, fileID); err != nil {
		log.Warn().Err(err).Str("file_id", fileID).Msg("file cache invalidation failed")
	}
}
