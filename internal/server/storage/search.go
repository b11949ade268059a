package storage

import (
	"io/fs"
	"path/filepath"
	"strings"
)

// Search walks the whole tree and returns up to limit entries whose name
// contains query, case-insensitively. Hidden directories are pruned with
// everything below them; hidden files still match.
func (s *FileSystemStore) Search(query string, limit int) ([]Entry, error) {
	results := []Entry{}
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" || limit <= 0 {
		return results, nil
	}

	err := filepath.WalkDir(s.basePath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are left out of the results.
			if d != nil && d.IsDir() && p != s.basePath {
				return fs.SkipDir
			}
			return nil
		}
		if p == s.basePath {
			return nil
		}
		if d.IsDir() && IsHidden(d.Name()) {
			return fs.SkipDir
		}
		if !strings.Contains(strings.ToLower(d.Name()), query) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(s.basePath, p)
		if err != nil {
			return nil
		}
		results = append(results, newEntry(filepath.ToSlash(rel), info))
		if len(results) >= limit {
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return results, err
	}
	return results, nil
}
