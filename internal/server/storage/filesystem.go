package storage

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

var (
	ErrInvalidPath = errors.New("invalid path")
	ErrInvalidName = errors.New("invalid name")
	ErrNotExist    = errors.New("no such file or directory")
	ErrExist       = errors.New("file already exists")
	ErrNotDir      = errors.New("not a directory")
)

// Store defines the operations the service layer needs from the managed tree.
// All paths are slash-separated and relative to the root.
type Store interface {
	EnsureDir() error
	Resolve(rel string) (string, error)
	Stat(rel string) (os.FileInfo, string, error)
	CreateFolder(rel, name string) error
	Save(rel, name string, data io.Reader) (string, error)
	Rename(rel, oldName, newName string) error
	Delete(rel string, names []string) (DeleteResult, error)
	List(rel string) (*Listing, error)
	Search(query string, limit int) ([]Entry, error)
	WriteZip(rel string, w io.Writer) error
}

// FileSystemStore serves a directory tree on the local filesystem.
type FileSystemStore struct {
	basePath string
}

// NewFileSystemStore creates a store rooted at basePath.
func NewFileSystemStore(basePath string) *FileSystemStore {
	return &FileSystemStore{basePath: filepath.Clean(basePath)}
}

// EnsureDir creates the root directory if it doesn't exist.
func (s *FileSystemStore) EnsureDir() error {
	if err := os.MkdirAll(s.basePath, 0755); err != nil {
		return fmt.Errorf("failed to create storage directory %s: %w", s.basePath, err)
	}
	return nil
}

// SanitizePath validates a root-relative path and returns its clean form.
// Parent segments, absolute paths and NUL bytes are rejected; the empty
// string names the root.
func SanitizePath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	if strings.ContainsRune(p, 0) || strings.HasPrefix(p, "/") || strings.HasPrefix(p, `\`) || filepath.VolumeName(p) != "" {
		return "", ErrInvalidPath
	}
	for _, seg := range strings.FieldsFunc(p, isSeparator) {
		if seg == ".." {
			return "", ErrInvalidPath
		}
	}
	clean := path.Clean(strings.ReplaceAll(p, `\`, "/"))
	if clean == "." {
		return "", nil
	}
	return clean, nil
}

// ValidName reports whether name is a single usable path segment.
func ValidName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, "/\\\x00")
}

func isSeparator(r rune) bool {
	return r == '/' || r == '\\'
}

// Resolve sanitizes rel and returns the absolute path it names.
func (s *FileSystemStore) Resolve(rel string) (string, error) {
	clean, err := SanitizePath(rel)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.basePath, filepath.FromSlash(clean)), nil
}

// Stat resolves rel and stats it, following symlinks.
func (s *FileSystemStore) Stat(rel string) (os.FileInfo, string, error) {
	full, err := s.Resolve(rel)
	if err != nil {
		return nil, "", err
	}
	info, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, full, ErrNotExist
		}
		return nil, full, fmt.Errorf("failed to stat %s: %w", rel, err)
	}
	return info, full, nil
}

// CreateFolder creates rel/name. Missing parents are created; an existing
// target is an error.
func (s *FileSystemStore) CreateFolder(rel, name string) error {
	name = strings.TrimSpace(name)
	dir, err := s.Resolve(rel)
	if err != nil {
		return err
	}
	if !ValidName(name) {
		return ErrInvalidName
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}
	if err := os.Mkdir(filepath.Join(dir, name), 0755); err != nil {
		if errors.Is(err, os.ErrExist) {
			return ErrExist
		}
		return fmt.Errorf("failed to create folder %s: %w", name, err)
	}
	return nil
}

// Save writes data into the existing directory rel under a cleaned version
// of name. Taken names get a numeric suffix before the extension; an existing
// file is never overwritten. Returns the name actually used.
func (s *FileSystemStore) Save(rel, name string, data io.Reader) (string, error) {
	dir, err := s.Resolve(rel)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", ErrNotExist
	}

	name = cleanUploadName(name)
	base, ext := splitExt(name)

	var file *os.File
	for counter := 0; ; counter++ {
		candidate := name
		if counter > 0 {
			candidate = fmt.Sprintf("%s_%d%s", base, counter, ext)
		}
		file, err = os.OpenFile(filepath.Join(dir, candidate), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			name = candidate
			break
		}
		if !errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("failed to create file %s: %w", candidate, err)
		}
	}

	target := file.Name()
	if _, err := io.Copy(file, data); err != nil {
		file.Close()
		// Clean up partial file on error
		os.Remove(target)
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(target)
		return "", fmt.Errorf("failed to close file: %w", err)
	}
	return name, nil
}

// Rename renames rel/oldName to rel/newName.
func (s *FileSystemStore) Rename(rel, oldName, newName string) error {
	oldName, newName = strings.TrimSpace(oldName), strings.TrimSpace(newName)
	dir, err := s.Resolve(rel)
	if err != nil {
		return err
	}
	if !ValidName(oldName) || !ValidName(newName) {
		return ErrInvalidName
	}

	oldPath := filepath.Join(dir, oldName)
	newPath := filepath.Join(dir, newName)
	if _, err := os.Lstat(oldPath); err != nil {
		return ErrNotExist
	}
	if _, err := os.Lstat(newPath); err == nil {
		return ErrExist
	}
	if err := os.Rename(oldPath, newPath); err != nil {
		return fmt.Errorf("failed to rename %s: %w", oldName, err)
	}
	return nil
}

// DeleteResult reports the outcome of a batch delete.
type DeleteResult struct {
	Deleted int
	Skipped int
	Errors  []string
}

// Delete removes each of names from rel. Files and symlinks are unlinked and
// directories removed recursively. Invalid names are skipped, and a failure on
// one item does not stop or undo the others.
func (s *FileSystemStore) Delete(rel string, names []string) (DeleteResult, error) {
	var res DeleteResult
	dir, err := s.Resolve(rel)
	if err != nil {
		return res, err
	}

	for _, name := range names {
		if !ValidName(name) {
			res.Skipped++
			continue
		}
		full := filepath.Join(dir, name)
		info, err := os.Lstat(full)
		switch {
		case os.IsNotExist(err):
			err = nil
		case err != nil:
		case info.IsDir():
			err = os.RemoveAll(full)
		default:
			err = os.Remove(full)
		}
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		res.Deleted++
	}
	return res, nil
}

// cleanUploadName strips directory components and parent markers from a
// client-supplied file name, generating a placeholder when nothing is left.
func cleanUploadName(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	name = strings.ReplaceAll(name, "..", "")
	name = strings.ReplaceAll(name, "\x00", "")
	name = strings.TrimSpace(name)
	if name == "" || name == "." {
		var b [4]byte
		rand.Read(b[:])
		name = fmt.Sprintf("upload_%d_%s", time.Now().Unix(), hex.EncodeToString(b[:]))
	}
	return name
}

// splitExt splits name into base and extension. A leading dot alone does not
// start an extension, so ".env" has none.
func splitExt(name string) (string, string) {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	if base == "" || strings.Trim(base, ".") == "" {
		return name, ""
	}
	return base, ext
}
