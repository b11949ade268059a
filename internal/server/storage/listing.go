package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Entry types.
const (
	TypeFolder  = "folder"
	TypeImage   = "image"
	TypeVideo   = "video"
	TypeAudio   = "audio"
	TypeDoc     = "doc"
	TypeCode    = "code"
	TypeArchive = "archive"
	TypeFile    = "file"
)

var extensionTypes = map[string]string{
	".png": TypeImage, ".jpg": TypeImage, ".jpeg": TypeImage, ".gif": TypeImage, ".webp": TypeImage, ".svg": TypeImage,
	".mp4": TypeVideo, ".mkv": TypeVideo, ".avi": TypeVideo, ".mov": TypeVideo, ".webm": TypeVideo,
	".mp3": TypeAudio, ".wav": TypeAudio, ".flac": TypeAudio,
	".pdf": TypeDoc, ".doc": TypeDoc, ".docx": TypeDoc, ".xls": TypeDoc, ".xlsx": TypeDoc, ".ppt": TypeDoc, ".pptx": TypeDoc,
	".txt": TypeCode, ".md": TypeCode, ".json": TypeCode, ".xml": TypeCode, ".py": TypeCode, ".js": TypeCode, ".html": TypeCode, ".css": TypeCode,
	".zip": TypeArchive, ".rar": TypeArchive, ".7z": TypeArchive, ".tar": TypeArchive, ".gz": TypeArchive,
}

// maxReadmeSize bounds how much of a README is read for the preview.
const maxReadmeSize = 1 << 20

var markdown = goldmark.New(goldmark.WithExtensions(extension.Table))

// FileType classifies a file name by extension.
func FileType(name string) string {
	if t, ok := extensionTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return t
	}
	return TypeFile
}

// IsHidden reports whether an entry should be left out of listings.
func IsHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// Entry describes one child of a directory.
type Entry struct {
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	IsDir     bool      `json:"is_dir"`
	Size      int64     `json:"size"`
	SizeHuman string    `json:"size_human"`
	ModTime   time.Time `json:"mtime"`
	RelPath   string    `json:"rel_path"`
}

type Breadcrumb struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

type DirStats struct {
	Total int `json:"total"`
	Image int `json:"image"`
	Video int `json:"video"`
	Doc   int `json:"doc"`
}

// Listing is the view of a single directory level.
type Listing struct {
	Path        string       `json:"current_path"`
	Items       []Entry      `json:"items"`
	Breadcrumbs []Breadcrumb `json:"breadcrumbs"`
	Stats       DirStats     `json:"stats"`
	Readme      string       `json:"readme,omitempty"`
}

// List builds the view of directory rel. A directory the process may not
// read yields whatever entries were read before the failure.
func (s *FileSystemStore) List(rel string) (*Listing, error) {
	clean, err := SanitizePath(rel)
	if err != nil {
		return nil, err
	}
	info, full, err := s.Stat(clean)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, ErrNotDir
	}

	listing := &Listing{
		Path:        clean,
		Items:       []Entry{},
		Breadcrumbs: Breadcrumbs(clean),
	}

	dirEntries, err := os.ReadDir(full)
	if err != nil {
		if !errors.Is(err, os.ErrPermission) {
			return nil, fmt.Errorf("failed to read directory %s: %w", clean, err)
		}
		slog.Warn("directory listing incomplete", "path", clean, "error", err)
	}

	for _, de := range dirEntries {
		name := de.Name()
		if IsHidden(name) {
			continue
		}
		childPath := filepath.Join(full, name)
		childInfo, err := os.Stat(childPath)
		if err != nil {
			continue
		}

		entry := newEntry(path.Join(clean, name), childInfo)
		if !entry.IsDir && strings.EqualFold(name, "readme.md") {
			if html, ok := renderReadme(childPath); ok {
				listing.Readme = html
			}
		}

		listing.Stats.Total++
		switch entry.Type {
		case TypeImage:
			listing.Stats.Image++
		case TypeVideo:
			listing.Stats.Video++
		case TypeDoc:
			listing.Stats.Doc++
		}
		listing.Items = append(listing.Items, entry)
	}

	SortEntries(listing.Items)
	return listing, nil
}

func newEntry(rel string, info os.FileInfo) Entry {
	e := Entry{
		Name:    info.Name(),
		IsDir:   info.IsDir(),
		ModTime: info.ModTime(),
		RelPath: strings.Trim(rel, "/"),
	}
	if e.IsDir {
		e.Type = TypeFolder
		e.SizeHuman = "-"
	} else {
		e.Type = FileType(e.Name)
		e.Size = info.Size()
		e.SizeHuman = HumanizeBytes(e.Size)
	}
	return e
}

// SortEntries orders directories before files, then by case-insensitive name.
func SortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].IsDir != entries[j].IsDir {
			return entries[i].IsDir
		}
		li, lj := strings.ToLower(entries[i].Name), strings.ToLower(entries[j].Name)
		if li != lj {
			return li < lj
		}
		return entries[i].Name < entries[j].Name
	})
}

// Breadcrumbs splits rel on "/" and accumulates the prefixes.
func Breadcrumbs(rel string) []Breadcrumb {
	crumbs := []Breadcrumb{}
	curr := ""
	for _, part := range strings.Split(rel, "/") {
		if part == "" {
			continue
		}
		curr = strings.Trim(curr+"/"+part, "/")
		crumbs = append(crumbs, Breadcrumb{Name: part, Path: curr})
	}
	return crumbs
}

// renderReadme converts a README to HTML. Any failure means no preview.
func renderReadme(p string) (string, bool) {
	f, err := os.Open(p)
	if err != nil {
		return "", false
	}
	defer f.Close()

	src, err := io.ReadAll(io.LimitReader(f, maxReadmeSize))
	if err != nil {
		return "", false
	}

	var buf bytes.Buffer
	if err := markdown.Convert(src, &buf); err != nil {
		return "", false
	}
	return buf.String(), true
}

// HumanizeBytes formats a byte count into a human-readable string.
func HumanizeBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
