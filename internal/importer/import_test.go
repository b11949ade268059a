package importer

import (
	"os"
	"path/filepath"
	"testing"

	"nexusdrive/internal/server/storage"
)

func createStructure(t *testing.T, basePath string, structure map[string]interface{}) {
	t.Helper()
	for name, content := range structure {
		p := filepath.Join(basePath, name)

		switch v := content.(type) {
		case string:
			if err := os.WriteFile(p, []byte(v), 0644); err != nil {
				t.Fatalf("failed to create file %s: %v", p, err)
			}
		case map[string]interface{}:
			if err := os.Mkdir(p, 0755); err != nil {
				t.Fatalf("failed to create directory %s: %v", p, err)
			}
			createStructure(t, p, v)
		default:
			t.Fatalf("unsupported structure type for %s", name)
		}
	}
}

func readFile(t *testing.T, p string) string {
	t.Helper()
	data, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("failed to read %s: %v", p, err)
	}
	return string(data)
}

func TestBuildTree(t *testing.T) {
	t.Run("skips hidden entries", func(t *testing.T) {
		src := t.TempDir()
		createStructure(t, src, map[string]interface{}{
			"project": map[string]interface{}{
				".git":      map[string]interface{}{"HEAD": "ref"},
				".env":      "SECRET=1",
				"README.md": "# Project",
				"src": map[string]interface{}{
					"main.go": "package main",
				},
			},
		})

		nodes, err := BuildTree([]Source{{FullPath: filepath.Join(src, "project"), Kind: PathDir}})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(nodes) != 1 {
			t.Fatalf("expected 1 node, got %d", len(nodes))
		}
		project, ok := nodes[0].(*Dir)
		if !ok {
			t.Fatalf("expected dir, got %T", nodes[0])
		}
		if len(project.Children()) != 2 {
			t.Errorf("expected 2 children, got %d", len(project.Children()))
		}
		if got := CountFiles(nodes); got != 2 {
			t.Errorf("expected 2 files, got %d", got)
		}
	})

	t.Run("empty sources returns error", func(t *testing.T) {
		if _, err := BuildTree(nil); err == nil {
			t.Fatal("expected error for empty sources")
		}
	})
}

func TestImport(t *testing.T) {
	t.Run("copies tree into new destination", func(t *testing.T) {
		src := t.TempDir()
		createStructure(t, src, map[string]interface{}{
			"photos": map[string]interface{}{
				"a.jpg": "jpeg",
				"2024":  map[string]interface{}{"b.jpg": "jpeg2"},
			},
			"notes.txt": "hello",
		})
		root := t.TempDir()
		store := storage.NewFileSystemStore(root)

		nodes, err := BuildTree([]Source{
			{FullPath: filepath.Join(src, "photos"), Kind: PathDir},
			{FullPath: filepath.Join(src, "notes.txt"), Kind: PathFile},
		})
		if err != nil {
			t.Fatal(err)
		}

		res, err := Import(store, "archive/old", nodes)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Files != 3 || res.Folders != 2 {
			t.Errorf("expected 3 files and 2 folders, got %d and %d", res.Files, res.Folders)
		}
		if got := readFile(t, filepath.Join(root, "archive", "old", "photos", "2024", "b.jpg")); got != "jpeg2" {
			t.Errorf("unexpected content %q", got)
		}
		if got := readFile(t, filepath.Join(root, "archive", "old", "notes.txt")); got != "hello" {
			t.Errorf("unexpected content %q", got)
		}
	})

	t.Run("never overwrites existing files", func(t *testing.T) {
		src := t.TempDir()
		createStructure(t, src, map[string]interface{}{"a.txt": "new"})
		root := t.TempDir()
		if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("old"), 0644); err != nil {
			t.Fatal(err)
		}
		store := storage.NewFileSystemStore(root)

		nodes, err := BuildTree([]Source{{FullPath: filepath.Join(src, "a.txt"), Kind: PathFile}})
		if err != nil {
			t.Fatal(err)
		}
		res, err := Import(store, "", nodes)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if got := readFile(t, filepath.Join(root, "a.txt")); got != "old" {
			t.Errorf("existing file was overwritten: %q", got)
		}
		if got := readFile(t, filepath.Join(root, "a_1.txt")); got != "new" {
			t.Errorf("unexpected content %q", got)
		}
		if res.Renamed[filepath.Join(src, "a.txt")] != "a_1.txt" {
			t.Errorf("expected rename to be reported, got %v", res.Renamed)
		}
	})

	t.Run("merges into existing folders", func(t *testing.T) {
		src := t.TempDir()
		createStructure(t, src, map[string]interface{}{
			"docs": map[string]interface{}{"b.pdf": "b"},
		})
		root := t.TempDir()
		createStructure(t, root, map[string]interface{}{
			"docs": map[string]interface{}{"a.pdf": "a"},
		})
		store := storage.NewFileSystemStore(root)

		nodes, err := BuildTree([]Source{{FullPath: filepath.Join(src, "docs"), Kind: PathDir}})
		if err != nil {
			t.Fatal(err)
		}
		res, err := Import(store, "", nodes)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Folders != 0 || res.Files != 1 {
			t.Errorf("expected 0 folders and 1 file, got %d and %d", res.Folders, res.Files)
		}
		if got := readFile(t, filepath.Join(root, "docs", "a.pdf")); got != "a" {
			t.Errorf("unexpected content %q", got)
		}
	})

	t.Run("rejects traversal in destination", func(t *testing.T) {
		store := storage.NewFileSystemStore(t.TempDir())
		if _, err := Import(store, "../outside", nil); err != storage.ErrInvalidPath {
			t.Errorf("expected ErrInvalidPath, got %v", err)
		}
	})
}
