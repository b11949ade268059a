package service

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"nexusdrive/internal/server/storage"
)

// SearchLimit caps the number of results a search returns.
const SearchLimit = 30

// UploadFile is one item of a multipart upload.
type UploadFile struct {
	Name string
	Open func() (io.ReadCloser, error)
}

// DeleteReport summarises a batch delete. Message joins the per-item errors.
type DeleteReport struct {
	Deleted int
	Skipped int
	Message string
}

// OK reports whether every requested item was handled.
func (r DeleteReport) OK() bool {
	return r.Message == ""
}

// FileService exposes the managed tree to the HTTP layer.
type FileService struct {
	store storage.Store
}

// NewFileService creates a new file service.
func NewFileService(store storage.Store) *FileService {
	return &FileService{store: store}
}

// Stat returns the entry at rel along with its absolute path.
func (s *FileService) Stat(rel string) (os.FileInfo, string, error) {
	info, full, err := s.store.Stat(rel)
	if err != nil {
		return nil, "", translateStorageError(err)
	}
	return info, full, nil
}

// Browse returns the listing of directory rel.
func (s *FileService) Browse(rel string) (*storage.Listing, error) {
	listing, err := s.store.List(rel)
	if err != nil {
		return nil, translateStorageError(err)
	}
	return listing, nil
}

// Search returns entries anywhere in the tree whose name contains query.
func (s *FileService) Search(query string) ([]storage.Entry, error) {
	results, err := s.store.Search(query, SearchLimit)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	return results, nil
}

// WriteZip streams directory rel as a ZIP archive.
func (s *FileService) WriteZip(rel string, w io.Writer) error {
	return translateStorageError(s.store.WriteZip(rel, w))
}

// CreateFolder creates rel/name.
func (s *FileService) CreateFolder(rel, name string) error {
	if err := s.store.CreateFolder(rel, name); err != nil {
		return translateStorageError(err)
	}
	slog.Info("folder created", "path", rel, "name", name)
	return nil
}

// Upload saves every file into directory rel and returns how many were saved.
// The directory must exist before anything is written.
func (s *FileService) Upload(rel string, files []UploadFile) (int, error) {
	info, _, err := s.store.Stat(rel)
	if err != nil {
		return 0, translateStorageError(err)
	}
	if !info.IsDir() {
		return 0, ErrNotFound
	}

	saved := 0
	for _, f := range files {
		if f.Name == "" {
			continue
		}
		name, err := s.saveOne(rel, f)
		if err != nil {
			return saved, err
		}
		saved++
		slog.Info("file uploaded", "path", rel, "name", name)
	}
	return saved, nil
}

func (s *FileService) saveOne(rel string, f UploadFile) (string, error) {
	src, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("failed to read upload %s: %w", f.Name, err)
	}
	defer src.Close()

	name, err := s.store.Save(rel, f.Name, src)
	if err != nil {
		return "", translateStorageError(err)
	}
	return name, nil
}

// Rename renames rel/oldName to rel/newName.
func (s *FileService) Rename(rel, oldName, newName string) error {
	if err := s.store.Rename(rel, oldName, newName); err != nil {
		return translateStorageError(err)
	}
	slog.Info("item renamed", "path", rel, "from", oldName, "to", newName)
	return nil
}

// Delete removes names from rel. Items that fail do not stop the batch and
// items already removed are not restored.
func (s *FileService) Delete(rel string, names []string) (DeleteReport, error) {
	res, err := s.store.Delete(rel, names)
	if err != nil {
		return DeleteReport{}, translateStorageError(err)
	}

	report := DeleteReport{Deleted: res.Deleted, Skipped: res.Skipped}
	if len(res.Errors) > 0 {
		report.Message = "partial delete failure: " + strings.Join(res.Errors, "; ")
		slog.Warn("batch delete incomplete", "path", rel, "errors", len(res.Errors))
	}
	slog.Info("items deleted", "path", rel, "deleted", res.Deleted, "skipped", res.Skipped)
	return report, nil
}
