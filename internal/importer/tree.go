package importer

import (
	"errors"
	"os"
	"path/filepath"

	"nexusdrive/internal/server/storage"
)

type Node interface {
	Path() string
	Name() string
}

type File struct {
	path string
	name string
}

type Dir struct {
	path     string
	name     string
	children []Node
}

func (f *File) Path() string { return f.path }
func (f *File) Name() string { return f.name }

func (d *Dir) Path() string { return d.path }
func (d *Dir) Name() string { return d.name }
func (d *Dir) Children() []Node { return d.children }

// BuildTree expands sources into one node per source. Directories are read
// recursively; hidden entries and anything that is neither a regular file
// nor a directory are left out, matching what the listing would show.
func BuildTree(sources []Source) ([]Node, error) {
	if len(sources) == 0 {
		return nil, errors.New("no valid paths provided")
	}

	nodes := make([]Node, 0, len(sources))
	for _, src := range sources {
		if src.Kind == PathDir {
			dir, err := buildDir(src.FullPath)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, dir)
			continue
		}
		nodes = append(nodes, &File{path: src.FullPath, name: filepath.Base(src.FullPath)})
	}
	return nodes, nil
}

func buildDir(dirPath string) (*Dir, error) {
	dir := &Dir{
		path:     dirPath,
		name:     filepath.Base(dirPath),
		children: []Node{},
	}

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if storage.IsHidden(entry.Name()) {
			continue
		}
		childPath := filepath.Join(dirPath, entry.Name())

		switch {
		case entry.IsDir():
			child, err := buildDir(childPath)
			if err != nil {
				return nil, err
			}
			dir.children = append(dir.children, child)
		case entry.Type().IsRegular():
			dir.children = append(dir.children, &File{path: childPath, name: entry.Name()})
		}
	}

	return dir, nil
}

// CountFiles returns the number of files under nodes.
func CountFiles(nodes []Node) int {
	n := 0
	for _, node := range nodes {
		switch v := node.(type) {
		case *File:
			n++
		case *Dir:
			n += CountFiles(v.children)
		}
	}
	return n
}
