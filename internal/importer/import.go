package importer

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"

	"nexusdrive/internal/server/storage"
)

// Target is the part of the managed tree an import writes to.
type Target interface {
	Stat(rel string) (os.FileInfo, string, error)
	CreateFolder(rel, name string) error
	Save(rel, name string, data io.Reader) (string, error)
}

// Result summarises an import.
type Result struct {
	Files   int
	Folders int
	// Renamed maps source paths to the name they were stored under when the
	// original name was already taken.
	Renamed map[string]string
}

// Import copies nodes into directory dest of target, creating dest if
// needed. Directories merge into existing ones of the same name; files never
// overwrite and take a numeric suffix instead, as uploads do.
func Import(target Target, dest string, nodes []Node) (*Result, error) {
	dest, err := storage.SanitizePath(dest)
	if err != nil {
		return nil, err
	}
	if err := ensureDir(target, dest); err != nil {
		return nil, err
	}

	res := &Result{Renamed: map[string]string{}}
	for _, node := range nodes {
		if err := importNode(target, dest, node, res); err != nil {
			return res, err
		}
	}
	return res, nil
}

func importNode(target Target, dest string, node Node, res *Result) error {
	switch n := node.(type) {
	case *File:
		return importFile(target, dest, n, res)
	case *Dir:
		err := target.CreateFolder(dest, n.Name())
		switch {
		case err == nil:
			res.Folders++
		case !errors.Is(err, storage.ErrExist):
			return fmt.Errorf("failed to create folder %s: %w", path.Join(dest, n.Name()), err)
		}
		sub := path.Join(dest, n.Name())
		for _, child := range n.Children() {
			if err := importNode(target, sub, child, res); err != nil {
				return err
			}
		}
	}
	return nil
}

func importFile(target Target, dest string, f *File, res *Result) error {
	src, err := os.Open(f.Path())
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", f.Path(), err)
	}
	defer src.Close()

	saved, err := target.Save(dest, f.Name(), src)
	if err != nil {
		return fmt.Errorf("failed to import %s: %w", f.Path(), err)
	}
	res.Files++
	if saved != f.Name() {
		res.Renamed[f.Path()] = path.Join(dest, saved)
	}
	slog.Debug("file imported", "source", f.Path(), "dest", path.Join(dest, saved))
	return nil
}

func ensureDir(target Target, rel string) error {
	info, _, err := target.Stat(rel)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("%s: %w", rel, storage.ErrNotDir)
		}
		return nil
	}
	if rel == "" || !errors.Is(err, storage.ErrNotExist) {
		return err
	}
	parent, name := path.Split(rel)
	if err := target.CreateFolder(parent, name); err != nil && !errors.Is(err, storage.ErrExist) {
		return fmt.Errorf("failed to create destination %s: %w", rel, err)
	}
	return nil
}
