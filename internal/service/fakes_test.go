package service

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/cloudcrate/cloudcrate/internal/apperr"
	"github.com/cloudcrate/cloudcrate/internal/models"
	"github.com/cloudcrate/cloudcrate/internal/storage"
)

// fakeObjectStore keeps objects in a map and supports fault injection.
type fakeObjectStore struct {
	objects      map[string][]byte
	contentTypes map[string]string
	putErr       error
	getErr       error
	deleteErr    error
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{
		objects:      make(map[string][]byte),
		contentTypes: make(map[string]string),
	}
}

func (f *fakeObjectStore) Bucket() string { return "test-bucket" }

func (f *fakeObjectStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string, attrs storage.ObjectAttributes) error {
	if f.putErr != nil {
		return f.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.objects[key] = data
	f.contentTypes[key] = contentType
	return nil
}

func (f *fakeObjectStore) Get(ctx context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error) {
	if f.getErr != nil {
		return nil, storage.ObjectInfo{}, f.getErr
	}
	data, ok := f.objects[key]
	if !ok {
		return nil, storage.ObjectInfo{}, apperr.NotFound("object")
	}
	info := storage.ObjectInfo{Size: int64(len(data)), ContentType: f.contentTypes[key]}
	return io.NopCloser(bytes.NewReader(data)), info, nil
}

func (f *fakeObjectStore) Delete(ctx context.Context, key string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.objects, key)
	delete(f.contentTypes, key)
	return nil
}

// fakeMetadataStore implements QuotaLedger, FolderStore and FileStore
// over plain maps, mirroring the SQL repositories' scoping rules.
type fakeMetadataStore struct {
	users   map[string]*models.User
	folders map[string]*models.Folder
	files   map[string]*models.File

	reserveErr    error
	releaseErr    error
	createFileErr error
	renameErr     error
}

func newFakeMetadataStore() *fakeMetadataStore {
	return &fakeMetadataStore{
		users:   make(map[string]*models.User),
		folders: make(map[string]*models.Folder),
		files:   make(map[string]*models.File),
	}
}

func (f *fakeMetadataStore) addUser(id string, quota, used int64) {
	f.users[id] = &models.User{ID: id, Username: id, Quota: quota, UsedSpace: used, IsActive: true}
}

func (f *fakeMetadataStore) GetQuota(ctx context.Context, userID string) (models.QuotaInfo, error) {
	u, ok := f.users[userID]
	if !ok {
		return models.QuotaInfo{}, apperr.NotFound("user")
	}
	avail := u.Quota - u.UsedSpace
	if avail < 0 {
		avail = 0
	}
	return models.QuotaInfo{Quota: u.Quota, Used: u.UsedSpace, Available: avail}, nil
}

func (f *fakeMetadataStore) ReserveSpace(ctx context.Context, userID string, n int64) error {
	if f.reserveErr != nil {
		return f.reserveErr
	}
	u, ok := f.users[userID]
	if !ok {
		return apperr.NotFound("user")
	}
	if u.UsedSpace+n > u.Quota {
		return apperr.QuotaExceeded(u.Quota, u.UsedSpace)
	}
	u.UsedSpace += n
	return nil
}

func (f *fakeMetadataStore) ReleaseSpace(ctx context.Context, userID string, n int64) error {
	if f.releaseErr != nil {
		return f.releaseErr
	}
	u, ok := f.users[userID]
	if !ok {
		return apperr.NotFound("user")
	}
	u.UsedSpace -= n
	if u.UsedSpace < 0 {
		u.UsedSpace = 0
	}
	return nil
}

func (f *fakeMetadataStore) CreateFolder(ctx context.Context, folder *models.Folder) error {
	cp := *folder
	f.folders[folder.ID] = &cp
	return nil
}

func (f *fakeMetadataStore) GetFolder(ctx context.Context, folderID, userID string) (*models.Folder, error) {
	fo, ok := f.folders[folderID]
	if !ok || fo.UserID != userID || fo.IsDeleted {
		return nil, apperr.NotFound("folder")
	}
	cp := *fo
	return &cp, nil
}

func (f *fakeMetadataStore) FolderPathExists(ctx context.Context, userID, path string) (bool, error) {
	for _, fo := range f.folders {
		if fo.UserID == userID && fo.Path == path && !fo.IsDeleted {
			return true, nil
		}
	}
	return false, nil
}

func sameParent(a *string, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (f *fakeMetadataStore) liveChildFolders(userID string, parentID *string) []*models.Folder {
	var out []*models.Folder
	for _, fo := range f.folders {
		if fo.UserID == userID && !fo.IsDeleted && sameParent(fo.ParentID, parentID) {
			out = append(out, fo)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (f *fakeMetadataStore) ListFolders(ctx context.Context, userID string, parentID *string, limit, offset int) ([]models.FolderSummary, error) {
	children := f.liveChildFolders(userID, parentID)
	var out []models.FolderSummary
	for i := offset; i < len(children) && len(out) < limit; i++ {
		fo := children[i]
		count, _ := f.CountFiles(ctx, userID, &fo.ID)
		out = append(out, models.FolderSummary{
			ID:        fo.ID,
			Name:      fo.Name,
			Path:      fo.Path,
			FileCount: count,
			CreatedAt: fo.CreatedAt,
		})
	}
	return out, nil
}

func (f *fakeMetadataStore) CountFolders(ctx context.Context, userID string, parentID *string) (int64, error) {
	return int64(len(f.liveChildFolders(userID, parentID))), nil
}

func (f *fakeMetadataStore) CountChildren(ctx context.Context, folderID, userID string) (int64, int64, error) {
	folders, _ := f.CountFolders(ctx, userID, &folderID)
	files, _ := f.CountFiles(ctx, userID, &folderID)
	return folders, files, nil
}

func (f *fakeMetadataStore) RenameFolderTree(ctx context.Context, folderID, userID, newName, oldPath, newPath string) error {
	if f.renameErr != nil {
		return f.renameErr
	}
	fo, ok := f.folders[folderID]
	if !ok || fo.UserID != userID || fo.IsDeleted {
		return apperr.NotFound("folder")
	}
	fo.Name = newName
	fo.Path = newPath
	for _, d := range f.folders {
		if d.UserID == userID && strings.HasPrefix(d.Path, oldPath+"/") {
			d.Path = newPath + strings.TrimPrefix(d.Path, oldPath)
		}
	}
	return nil
}

func (f *fakeMetadataStore) SoftDeleteFolder(ctx context.Context, folderID, userID string, at time.Time) error {
	fo, ok := f.folders[folderID]
	if !ok || fo.UserID != userID || fo.IsDeleted {
		return apperr.NotFound("folder")
	}
	fo.IsDeleted = true
	fo.DeletedAt = &at
	return nil
}

func (f *fakeMetadataStore) CreateFile(ctx context.Context, file *models.File) error {
	if f.createFileErr != nil {
		return f.createFileErr
	}
	cp := *file
	f.files[file.ID] = &cp
	return nil
}

func (f *fakeMetadataStore) GetFile(ctx context.Context, fileID, userID string) (*models.File, error) {
	fi, ok := f.files[fileID]
	if !ok || fi.UserID != userID || fi.IsDeleted {
		return nil, apperr.NotFound("file")
	}
	cp := *fi
	return &cp, nil
}

func (f *fakeMetadataStore) ListFiles(ctx context.Context, userID string, folderID *string, limit, offset int) ([]models.FileSummary, error) {
	var live []*models.File
	for _, fi := range f.files {
		if fi.UserID == userID && !fi.IsDeleted && sameParent(fi.FolderID, folderID) {
			live = append(live, fi)
		}
	}
	sort.Slice(live, func(i, j int) bool { return live[i].Filename < live[j].Filename })

	var out []models.FileSummary
	for i := offset; i < len(live) && len(out) < limit; i++ {
		fi := live[i]
		out = append(out, models.FileSummary{
			ID:       fi.ID,
			Filename: fi.Filename,
			Size:     fi.Size,
			MimeType: fi.MimeType,
		})
	}
	return out, nil
}

func (f *fakeMetadataStore) CountFiles(ctx context.Context, userID string, folderID *string) (int64, error) {
	var n int64
	for _, fi := range f.files {
		if fi.UserID == userID && !fi.IsDeleted && sameParent(fi.FolderID, folderID) {
			n++
		}
	}
	return n, nil
}

func (f *fakeMetadataStore) SoftDeleteFile(ctx context.Context, fileID, userID string, at time.Time) error {
	fi, ok := f.files[fileID]
	if !ok || fi.UserID != userID || fi.IsDeleted {
		return apperr.NotFound("file")
	}
	fi.IsDeleted = true
	fi.DeletedAt = &at
	return nil
}
