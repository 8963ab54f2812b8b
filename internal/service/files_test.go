package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudcrate/cloudcrate/internal/apperr"
	"github.com/cloudcrate/cloudcrate/internal/mimetypes"
)

func newFileFixture(t *testing.T) (*FileService, *fakeObjectStore, *fakeMetadataStore) {
	t.Helper()
	objects := newFakeObjectStore()
	meta := newFakeMetadataStore()
	svc := NewFileService(objects, meta, meta, meta, nil, mimetypes.New(nil))
	return svc, objects, meta
}

func uploadText(t *testing.T, svc *FileService, userID string, folderID *string, name, content string) error {
	t.Helper()
	_, err := svc.Upload(context.Background(), userID, folderID, []UploadPart{{
		Filename:    name,
		ContentType: "text/plain",
		Reader:      strings.NewReader(content),
	}})
	return err
}

func TestUploadStoresObjectAndRow(t *testing.T) {
	svc, objects, meta := newFileFixture(t)
	meta.addUser("alice", 1000, 0)

	results, err := svc.Upload(context.Background(), "alice", nil, []UploadPart{{
		Filename:    "notes.txt",
		ContentType: "text/plain",
		Reader:      strings.NewReader(strings.Repeat("x", 600)),
	}})
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, "notes.txt", results[0].Filename)
	assert.Equal(t, int64(600), results[0].Size)
	assert.Equal(t, "text/plain", results[0].MimeType)

	file, err := meta.GetFile(context.Background(), results[0].ID, "alice")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(file.S3Key, "users/alice/"))
	assert.Equal(t, "test-bucket", file.S3Bucket)
	assert.Contains(t, objects.objects, file.S3Key)

	quota, err := meta.GetQuota(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(600), quota.Used)
}

func TestUploadQuotaBoundary(t *testing.T) {
	svc, objects, meta := newFileFixture(t)

	// Exactly filling the ceiling succeeds.
	meta.addUser("exact", 1000, 400)
	require.NoError(t, uploadText(t, svc, "exact", nil, "fits.txt", strings.Repeat("a", 600)))
	quota, _ := meta.GetQuota(context.Background(), "exact")
	assert.Equal(t, int64(1000), quota.Used)

	// One byte over fails with the detailed payload and no side effects.
	meta.addUser("over", 1000, 400)
	err := uploadText(t, svc, "over", nil, "toobig.txt", strings.Repeat("a", 601))
	require.ErrorIs(t, err, apperr.ErrQuotaExceeded)

	var ae *apperr.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, int64(1000), ae.Quota)
	assert.Equal(t, int64(400), ae.Used)
	assert.Equal(t, int64(600), ae.Available)

	quota, _ = meta.GetQuota(context.Background(), "over")
	assert.Equal(t, int64(400), quota.Used)
	for key := range objects.objects {
		assert.False(t, strings.Contains(key, "toobig"), "rejected upload left object %s", key)
	}
}

func TestUploadQuotaExampleScenario(t *testing.T) {
	svc, _, meta := newFileFixture(t)
	meta.addUser("u", 1000, 0)

	require.NoError(t, uploadText(t, svc, "u", nil, "first.txt", strings.Repeat("a", 600)))
	quota, _ := meta.GetQuota(context.Background(), "u")
	require.Equal(t, int64(600), quota.Used)

	err := uploadText(t, svc, "u", nil, "second.txt", strings.Repeat("b", 500))
	require.ErrorIs(t, err, apperr.ErrQuotaExceeded)

	quota, _ = meta.GetQuota(context.Background(), "u")
	assert.Equal(t, int64(600), quota.Used)
}

func TestUploadQuotaMonotonicity(t *testing.T) {
	svc, _, meta := newFileFixture(t)
	meta.addUser("u", 10000, 0)

	sizes := []int{100, 250, 1, 649}
	var sum int64
	for i, n := range sizes {
		require.NoError(t, uploadText(t, svc, "u", nil, string(rune('a'+i))+".txt", strings.Repeat("x", n)))
		sum += int64(n)
	}

	quota, _ := meta.GetQuota(context.Background(), "u")
	assert.Equal(t, sum, quota.Used)
}

func TestUploadUnsupportedType(t *testing.T) {
	svc, objects, meta := newFileFixture(t)
	meta.addUser("u", 1000, 0)

	_, err := svc.Upload(context.Background(), "u", nil, []UploadPart{{
		Filename:    "payload.bin",
		ContentType: "application/x-executable",
		Reader:      strings.NewReader("MZ"),
	}})
	require.ErrorIs(t, err, apperr.ErrUnsupportedType)

	assert.Empty(t, objects.objects)
	quota, _ := meta.GetQuota(context.Background(), "u")
	assert.Zero(t, quota.Used)
}

func TestUploadMimeFallbackToExtension(t *testing.T) {
	svc, _, meta := newFileFixture(t)
	meta.addUser("u", 1000, 0)

	results, err := svc.Upload(context.Background(), "u", nil, []UploadPart{{
		Filename: "photo.png",
		Reader:   strings.NewReader("not really a png"),
	}})
	require.NoError(t, err)
	assert.Equal(t, "image/png", results[0].MimeType)
}

func TestUploadIntoMissingFolder(t *testing.T) {
	svc, _, meta := newFileFixture(t)
	meta.addUser("u", 1000, 0)

	ghost := "no-such-folder"
	err := uploadText(t, svc, "u", &ghost, "a.txt", "hi")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUploadPrefixCommitSemantics(t *testing.T) {
	svc, _, meta := newFileFixture(t)
	meta.addUser("u", 1000, 0)

	// First part fits, second exceeds the snapshot ceiling; the request
	// fails but the first part stays committed.
	results, err := svc.Upload(context.Background(), "u", nil, []UploadPart{
		{Filename: "ok.txt", ContentType: "text/plain", Reader: strings.NewReader(strings.Repeat("a", 600))},
		{Filename: "big.txt", ContentType: "text/plain", Reader: strings.NewReader(strings.Repeat("b", 500))},
	})
	require.ErrorIs(t, err, apperr.ErrQuotaExceeded)
	assert.Nil(t, results)

	quota, _ := meta.GetQuota(context.Background(), "u")
	assert.Equal(t, int64(600), quota.Used)
	n, _ := meta.CountFiles(context.Background(), "u", nil)
	assert.Equal(t, int64(1), n)
}

func TestUploadStorePutFailure(t *testing.T) {
	svc, objects, meta := newFileFixture(t)
	meta.addUser("u", 1000, 0)
	objects.putErr = apperr.StorageUnavailable("write", errors.New("connection refused"))

	err := uploadText(t, svc, "u", nil, "a.txt", "hello")
	require.ErrorIs(t, err, apperr.ErrStorageUnavailable)

	// No row and no accounting without an acknowledged object write.
	n, _ := meta.CountFiles(context.Background(), "u", nil)
	assert.Zero(t, n)
	quota, _ := meta.GetQuota(context.Background(), "u")
	assert.Zero(t, quota.Used)
}

func TestUploadReserveFailureDiscardsObject(t *testing.T) {
	svc, objects, meta := newFileFixture(t)
	meta.addUser("u", 1000, 0)
	meta.reserveErr = errors.New("deadlock")

	err := uploadText(t, svc, "u", nil, "a.txt", "hello")
	require.Error(t, err)

	// The reservation never committed, so neither the object nor a row
	// may survive.
	assert.Empty(t, objects.objects)
	n, _ := meta.CountFiles(context.Background(), "u", nil)
	assert.Zero(t, n)
}

func TestUploadRowInsertFailureReleasesSpace(t *testing.T) {
	svc, objects, meta := newFileFixture(t)
	meta.addUser("u", 1000, 0)
	meta.createFileErr = errors.New("deadlock")

	err := uploadText(t, svc, "u", nil, "a.txt", "hello")
	require.Error(t, err)

	quota, _ := meta.GetQuota(context.Background(), "u")
	assert.Zero(t, quota.Used)
	assert.Empty(t, objects.objects)
}

func TestDownloadRoundTrip(t *testing.T) {
	svc, _, meta := newFileFixture(t)
	meta.addUser("u", 1000, 0)

	results, err := svc.Upload(context.Background(), "u", nil, []UploadPart{{
		Filename:    "report.pdf",
		ContentType: "application/pdf",
		Reader:      strings.NewReader("%PDF-1.4 content"),
	}})
	require.NoError(t, err)

	dl, err := svc.Download(context.Background(), "u", results[0].ID)
	require.NoError(t, err)
	defer dl.Reader.Close()

	body, err := io.ReadAll(dl.Reader)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 content", string(body))
	assert.Equal(t, "application/pdf", dl.MimeType)
	assert.Equal(t, "report.pdf", dl.Filename)
	assert.Equal(t, int64(len(body)), dl.Size)
}

func TestDownloadStoreReadFailure(t *testing.T) {
	svc, objects, meta := newFileFixture(t)
	meta.addUser("u", 1000, 0)

	results, err := svc.Upload(context.Background(), "u", nil, []UploadPart{{
		Filename: "a.txt", ContentType: "text/plain", Reader: strings.NewReader("x"),
	}})
	require.NoError(t, err)

	objects.getErr = errors.New("connection reset")
	_, err = svc.Download(context.Background(), "u", results[0].ID)
	require.ErrorIs(t, err, apperr.ErrStorageUnavailable)
}

func TestDownloadMissingObjectIsStorageError(t *testing.T) {
	svc, objects, meta := newFileFixture(t)
	meta.addUser("u", 1000, 0)

	results, err := svc.Upload(context.Background(), "u", nil, []UploadPart{{
		Filename: "a.txt", ContentType: "text/plain", Reader: strings.NewReader("x"),
	}})
	require.NoError(t, err)

	// A live row pointing at a vanished object is store-side breakage,
	// distinct from a metadata miss.
	file, _ := meta.GetFile(context.Background(), results[0].ID, "u")
	delete(objects.objects, file.S3Key)

	_, err = svc.Download(context.Background(), "u", results[0].ID)
	require.ErrorIs(t, err, apperr.ErrStorageUnavailable)
}

func TestDeleteThenReupload(t *testing.T) {
	svc, objects, meta := newFileFixture(t)
	meta.addUser("u", 1000, 0)

	first, err := svc.Upload(context.Background(), "u", nil, []UploadPart{{
		Filename: "same.txt", ContentType: "text/plain", Reader: strings.NewReader("identical payload"),
	}})
	require.NoError(t, err)
	firstRow, _ := meta.GetFile(context.Background(), first[0].ID, "u")

	require.NoError(t, svc.Delete(context.Background(), "u", first[0].ID))

	quota, _ := meta.GetQuota(context.Background(), "u")
	assert.Zero(t, quota.Used)
	assert.NotContains(t, objects.objects, firstRow.S3Key)

	_, err = svc.Download(context.Background(), "u", first[0].ID)
	require.ErrorIs(t, err, apperr.ErrNotFound)

	second, err := svc.Upload(context.Background(), "u", nil, []UploadPart{{
		Filename: "same.txt", ContentType: "text/plain", Reader: strings.NewReader("identical payload"),
	}})
	require.NoError(t, err)
	secondRow, _ := meta.GetFile(context.Background(), second[0].ID, "u")

	assert.NotEqual(t, first[0].ID, second[0].ID)
	assert.NotEqual(t, firstRow.S3Key, secondRow.S3Key)
}

func TestDeleteStoreFailureKeepsRow(t *testing.T) {
	svc, objects, meta := newFileFixture(t)
	meta.addUser("u", 1000, 0)

	results, err := svc.Upload(context.Background(), "u", nil, []UploadPart{{
		Filename: "a.txt", ContentType: "text/plain", Reader: strings.NewReader("hello"),
	}})
	require.NoError(t, err)

	objects.deleteErr = apperr.StorageUnavailable("delete", errors.New("timeout"))
	err = svc.Delete(context.Background(), "u", results[0].ID)
	require.ErrorIs(t, err, apperr.ErrStorageUnavailable)

	// Row intact and still accounted, so the delete can be retried.
	_, err = meta.GetFile(context.Background(), results[0].ID, "u")
	require.NoError(t, err)
	quota, _ := meta.GetQuota(context.Background(), "u")
	assert.Equal(t, int64(5), quota.Used)

	objects.deleteErr = nil
	require.NoError(t, svc.Delete(context.Background(), "u", results[0].ID))
	quota, _ = meta.GetQuota(context.Background(), "u")
	assert.Zero(t, quota.Used)
}

func TestDeleteReleaseFailureIsNonFatal(t *testing.T) {
	svc, _, meta := newFileFixture(t)
	meta.addUser("u", 1000, 0)

	results, err := svc.Upload(context.Background(), "u", nil, []UploadPart{{
		Filename: "a.txt", ContentType: "text/plain", Reader: strings.NewReader("hello"),
	}})
	require.NoError(t, err)

	// The soft-delete is already committed; a failed release only
	// leaves the counter drifting high.
	meta.releaseErr = errors.New("connection reset")
	require.NoError(t, svc.Delete(context.Background(), "u", results[0].ID))

	_, err = meta.GetFile(context.Background(), results[0].ID, "u")
	require.ErrorIs(t, err, apperr.ErrNotFound)
	quota, _ := meta.GetQuota(context.Background(), "u")
	assert.Equal(t, int64(5), quota.Used)
}

func TestFileOwnershipIsolation(t *testing.T) {
	svc, _, meta := newFileFixture(t)
	meta.addUser("alice", 1000, 0)
	meta.addUser("mallory", 1000, 0)

	results, err := svc.Upload(context.Background(), "alice", nil, []UploadPart{{
		Filename: "secret.txt", ContentType: "text/plain", Reader: strings.NewReader("top secret"),
	}})
	require.NoError(t, err)

	_, err = svc.Download(context.Background(), "mallory", results[0].ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	err = svc.Delete(context.Background(), "mallory", results[0].ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	// Alice is unaffected.
	_, err = svc.Download(context.Background(), "alice", results[0].ID)
	assert.NoError(t, err)
}

func TestUploadEmptyRequest(t *testing.T) {
	svc, _, meta := newFileFixture(t)
	meta.addUser("u", 1000, 0)

	_, err := svc.Upload(context.Background(), "u", nil, nil)
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestQuotaReport(t *testing.T) {
	svc, _, meta := newFileFixture(t)
	meta.addUser("u", 1000, 250)

	info, err := svc.Quota(context.Background(), "u")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), info.Quota)
	assert.Equal(t, int64(250), info.Used)
	assert.Equal(t, int64(750), info.Available)
}
