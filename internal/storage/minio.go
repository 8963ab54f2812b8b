package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cloudcrate/cloudcrate/internal/apperr"
)

var tracer = otel.Tracer("cloudcrate-storage")

// ObjectAttributes are stored as user metadata on every uploaded object.
type ObjectAttributes struct {
	OwnerID      string
	OriginalName string
	UploadedAt   time.Time
}

// ObjectInfo is the subset of object metadata exposed by Head.
type ObjectInfo struct {
	Size         int64
	ContentType  string
	LastModified time.Time
}

// MinioStore adapts an S3-compatible backend to the gateway's object
// operations. All operations are single-shot; retry policy belongs to
// the caller.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore initializes the client. Call EnsureBucket before first use.
func NewMinioStore(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &MinioStore{client: client, bucket: bucket}, nil
}

// Bucket returns the backing bucket name recorded on File rows.
func (ms *MinioStore) Bucket() string {
	return ms.bucket
}

// EnsureBucket provisions the backing bucket, treating "already exists"
// as success.
func (ms *MinioStore) EnsureBucket(ctx context.Context) error {
	exists, err := ms.client.BucketExists(ctx, ms.bucket)
	if err != nil {
		return apperr.StorageUnavailable("bucket check", err)
	}
	if exists {
		return nil
	}

	log.Info().Str("bucket", ms.bucket).Msg("creating bucket")
	if err := ms.client.MakeBucket(ctx, ms.bucket, minio.MakeBucketOptions{}); err != nil {
		var resp minio.ErrorResponse
		if errors.As(err, &resp) && (resp.Code == "BucketAlreadyOwnedByYou" || resp.Code == "BucketAlreadyExists") {
			return nil
		}
		return apperr.StorageUnavailable("bucket create", err)
	}
	return nil
}

// Put writes one object with tracing
func (ms *MinioStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string, attrs ObjectAttributes) error {
	ctx, span := tracer.Start(ctx, "minio.put",
		trace.WithAttributes(
			attribute.String("object_key", key),
			attribute.Int64("size_bytes", size),
		),
	)
	defer span.End()

	_, err := ms.client.PutObject(ctx, ms.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
		UserMetadata: map[string]string{
			"owner-id":      attrs.OwnerID,
			"original-name": attrs.OriginalName,
			"uploaded-at":   attrs.UploadedAt.UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		span.RecordError(err)
		return apperr.StorageUnavailable("write", err)
	}

	return nil
}

// Get opens a byte stream for the object at key. The caller owns the
// returned reader.
func (ms *MinioStore) Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	ctx, span := tracer.Start(ctx, "minio.get",
		trace.WithAttributes(attribute.String("object_key", key)),
	)
	defer span.End()

	obj, err := ms.client.GetObject(ctx, ms.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		span.RecordError(err)
		return nil, ObjectInfo{}, apperr.StorageUnavailable("read", err)
	}

	// GetObject is lazy; Stat forces the request so a missing key is
	// reported here instead of on the first Read.
	stat, err := obj.Stat()
	if err != nil {
		obj.Close()
		if isNoSuchKey(err) {
			span.SetAttributes(attribute.Bool("found", false))
			return nil, ObjectInfo{}, apperr.NotFound("object")
		}
		span.RecordError(err)
		return nil, ObjectInfo{}, apperr.StorageUnavailable("read", err)
	}

	span.SetAttributes(attribute.Int64("size_bytes", stat.Size))
	return obj, ObjectInfo{Size: stat.Size, ContentType: stat.ContentType, LastModified: stat.LastModified}, nil
}

// Delete removes the object at key. Deleting a missing key succeeds.
func (ms *MinioStore) Delete(ctx context.Context, key string) error {
	ctx, span := tracer.Start(ctx, "minio.delete",
		trace.WithAttributes(attribute.String("object_key", key)),
	)
	defer span.End()

	if err := ms.client.RemoveObject(ctx, ms.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		span.RecordError(err)
		return apperr.StorageUnavailable("delete", err)
	}
	return nil
}

// Head fetches object metadata without the body.
func (ms *MinioStore) Head(ctx context.Context, key string) (ObjectInfo, error) {
	ctx, span := tracer.Start(ctx, "minio.head",
		trace.WithAttributes(attribute.String("object_key", key)),
	)
	defer span.End()

	stat, err := ms.client.StatObject(ctx, ms.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			span.SetAttributes(attribute.Bool("found", false))
			return ObjectInfo{}, apperr.NotFound("object")
		}
		span.RecordError(err)
		return ObjectInfo{}, apperr.StorageUnavailable("head", err)
	}

	return ObjectInfo{Size: stat.Size, ContentType: stat.ContentType, LastModified: stat.LastModified}, nil
}

func isNoSuchKey(err error) bool {
	var resp minio.ErrorResponse
	return errors.As(err, &resp) && resp.Code == "NoSuchKey"
}

// ObjectKey builds a collision-resistant object key scoped under the
// owner's namespace: users/<userID>/<nanos>-<sanitized filename>.
func ObjectKey(userID, filename string, now time.Time) string {
	return fmt.Sprintf("users/%s/%d-%s", userID, now.UnixNano(), sanitizeFilename(filename))
}

// sanitizeFilename strips everything outside [A-Za-z0-9.-] so the key
// stays path-safe regardless of the client-supplied name.
func sanitizeFilename(name string) string {
	const maxLen = 100

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	s := b.String()
	if s == "" || strings.Trim(s, "._") == "" {
		s = "file"
	}
	if len(s) > maxLen {
		s = s[len(s)-maxLen:]
	}
	return s
}
