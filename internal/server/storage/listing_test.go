package storage

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

func TestFileSystemStore_List(t *testing.T) {
	t.Run("orders directories first then by name", func(t *testing.T) {
		store, dir := newTestStore(t)
		writeFile(t, filepath.Join(dir, "b.txt"), "b")
		writeFile(t, filepath.Join(dir, "a.txt"), "a")
		writeFile(t, filepath.Join(dir, "A", "inner.txt"), "x")

		listing, err := store.List("")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var names []string
		for _, e := range listing.Items {
			names = append(names, e.Name)
		}
		want := []string{"A", "a.txt", "b.txt"}
		if strings.Join(names, ",") != strings.Join(want, ",") {
			t.Errorf("expected %v, got %v", want, names)
		}
		if !listing.Items[0].IsDir || listing.Items[0].Type != TypeFolder || listing.Items[0].SizeHuman != "-" {
			t.Errorf("unexpected folder entry %+v", listing.Items[0])
		}
		if listing.Items[1].RelPath != "a.txt" {
			t.Errorf("expected rel path a.txt, got %s", listing.Items[1].RelPath)
		}
		if listing.Stats.Total != 3 {
			t.Errorf("expected 3 entries counted, got %d", listing.Stats.Total)
		}
	})

	t.Run("hides dot entries", func(t *testing.T) {
		store, dir := newTestStore(t)
		writeFile(t, filepath.Join(dir, ".secret"), "x")
		writeFile(t, filepath.Join(dir, ".git", "HEAD"), "x")
		writeFile(t, filepath.Join(dir, "visible.txt"), "x")

		listing, err := store.List("")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(listing.Items) != 1 || listing.Items[0].Name != "visible.txt" {
			t.Errorf("expected only visible.txt, got %+v", listing.Items)
		}
	})

	t.Run("counts types", func(t *testing.T) {
		store, dir := newTestStore(t)
		writeFile(t, filepath.Join(dir, "a.PNG"), "x")
		writeFile(t, filepath.Join(dir, "b.mp4"), "x")
		writeFile(t, filepath.Join(dir, "c.pdf"), "x")
		writeFile(t, filepath.Join(dir, "d.docx"), "x")

		listing, err := store.List("")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got := listing.Stats
		if got.Total != 4 || got.Image != 1 || got.Video != 1 || got.Doc != 2 {
			t.Errorf("unexpected stats %+v", got)
		}
	})

	t.Run("renders readme", func(t *testing.T) {
		store, dir := newTestStore(t)
		writeFile(t, filepath.Join(dir, "docs", "ReadMe.md"), "# Title\n\n| a | b |\n|---|---|\n| 1 | 2 |\n")

		listing, err := store.List("docs")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(listing.Readme, "<h1>Title</h1>") {
			t.Errorf("expected rendered heading, got %q", listing.Readme)
		}
		if !strings.Contains(listing.Readme, "<table>") {
			t.Errorf("expected rendered table, got %q", listing.Readme)
		}
	})

	t.Run("breadcrumbs and path", func(t *testing.T) {
		store, dir := newTestStore(t)
		writeFile(t, filepath.Join(dir, "a", "b", "c", "f.txt"), "x")

		listing, err := store.List("a/b/c/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if listing.Path != "a/b/c" {
			t.Errorf("expected a/b/c, got %s", listing.Path)
		}
		want := []Breadcrumb{{"a", "a"}, {"b", "a/b"}, {"c", "a/b/c"}}
		if len(listing.Breadcrumbs) != len(want) {
			t.Fatalf("expected %d crumbs, got %d", len(want), len(listing.Breadcrumbs))
		}
		for i := range want {
			if listing.Breadcrumbs[i] != want[i] {
				t.Errorf("crumb %d = %+v, want %+v", i, listing.Breadcrumbs[i], want[i])
			}
		}
		if listing.Items[0].RelPath != "a/b/c/f.txt" {
			t.Errorf("unexpected rel path %s", listing.Items[0].RelPath)
		}
	})

	t.Run("unreadable directory yields empty listing", func(t *testing.T) {
		if os.Geteuid() == 0 {
			t.Skip("permission bits are not enforced for root")
		}
		store, dir := newTestStore(t)
		writeFile(t, filepath.Join(dir, "locked", "f.txt"), "x")
		locked := filepath.Join(dir, "locked")
		if err := os.Chmod(locked, 0311); err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { os.Chmod(locked, 0755) })

		listing, err := store.List("locked")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(listing.Items) != 0 || listing.Stats.Total != 0 {
			t.Errorf("expected empty listing, got %+v", listing.Items)
		}
	})

	t.Run("missing and non-directory", func(t *testing.T) {
		store, dir := newTestStore(t)
		writeFile(t, filepath.Join(dir, "f.txt"), "x")

		if _, err := store.List("nope"); !errors.Is(err, ErrNotExist) {
			t.Errorf("expected ErrNotExist, got %v", err)
		}
		if _, err := store.List("f.txt"); !errors.Is(err, ErrNotDir) {
			t.Errorf("expected ErrNotDir, got %v", err)
		}
	})
}

func TestFileType(t *testing.T) {
	tests := []struct {
		name, want string
	}{
		{"photo.JPG", TypeImage},
		{"clip.webm", TypeVideo},
		{"song.flac", TypeAudio},
		{"report.pdf", TypeDoc},
		{"main.py", TypeCode},
		{"backup.7z", TypeArchive},
		{"binary", TypeFile},
		{"weird.xyz", TypeFile},
	}
	for _, tt := range tests {
		if got := FileType(tt.name); got != tt.want {
			t.Errorf("FileType(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestHumanizeBytes(t *testing.T) {
	tests := []struct {
		input int64
		want  string
	}{
		{0, "0 B"},
		{500, "500 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1048576, "1.0 MB"},
		{1073741824, "1.0 GB"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := HumanizeBytes(tt.input); got != tt.want {
				t.Errorf("HumanizeBytes(%d) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestFileSystemStore_Search(t *testing.T) {
	store, dir := newTestStore(t)
	writeFile(t, filepath.Join(dir, "Report-2024.pdf"), "x")
	writeFile(t, filepath.Join(dir, "docs", "old_report.txt"), "x")
	writeFile(t, filepath.Join(dir, "docs", "notes.txt"), "x")
	writeFile(t, filepath.Join(dir, ".hidden", "report.md"), "x")
	writeFile(t, filepath.Join(dir, ".reports-cache", "q2.txt"), "x")
	writeFile(t, filepath.Join(dir, "docs", ".report_draft"), "x")
	writeFile(t, filepath.Join(dir, "reports", "q1.txt"), "x")

	t.Run("case-insensitive across the tree", func(t *testing.T) {
		results, err := store.Search("REPORT", 100)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var paths []string
		for _, r := range results {
			paths = append(paths, r.RelPath)
		}
		sort.Strings(paths)
		want := []string{"Report-2024.pdf", "docs/.report_draft", "docs/old_report.txt", "reports"}
		if strings.Join(paths, ",") != strings.Join(want, ",") {
			t.Errorf("expected %v, got %v", want, paths)
		}
	})

	t.Run("limit stops the walk", func(t *testing.T) {
		results, err := store.Search("report", 1)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(results) != 1 {
			t.Errorf("expected 1 result, got %d", len(results))
		}
	})

	t.Run("empty query", func(t *testing.T) {
		results, err := store.Search("   ", 100)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(results) != 0 {
			t.Errorf("expected no results, got %d", len(results))
		}
	})
}

func TestFileSystemStore_WriteZip(t *testing.T) {
	store, dir := newTestStore(t)
	writeFile(t, filepath.Join(dir, "docs", "a.txt"), "alpha")
	writeFile(t, filepath.Join(dir, "docs", "sub", "b.txt"), "beta")
	writeFile(t, filepath.Join(dir, "docs", ".env"), "secret")
	writeFile(t, filepath.Join(dir, "top.txt"), "top")

	readZip := func(t *testing.T, data []byte) map[string]string {
		t.Helper()
		zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			t.Fatalf("failed to open zip: %v", err)
		}
		files := map[string]string{}
		for _, f := range zr.File {
			rc, err := f.Open()
			if err != nil {
				t.Fatalf("failed to open %s: %v", f.Name, err)
			}
			content, _ := io.ReadAll(rc)
			rc.Close()
			files[f.Name] = string(content)
		}
		return files
	}

	t.Run("directory under its own name", func(t *testing.T) {
		var buf bytes.Buffer
		if err := store.WriteZip("docs", &buf); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		files := readZip(t, buf.Bytes())
		if len(files) != 2 {
			t.Fatalf("expected 2 entries, got %v", files)
		}
		if files["docs/a.txt"] != "alpha" || files["docs/sub/b.txt"] != "beta" {
			t.Errorf("unexpected contents %v", files)
		}
	})

	t.Run("root uses fixed prefix", func(t *testing.T) {
		var buf bytes.Buffer
		if err := store.WriteZip("", &buf); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		files := readZip(t, buf.Bytes())
		if files["shares/top.txt"] != "top" {
			t.Errorf("expected shares/top.txt, got %v", files)
		}
	})

	t.Run("file is rejected", func(t *testing.T) {
		if err := store.WriteZip("top.txt", io.Discard); !errors.Is(err, ErrNotDir) {
			t.Errorf("expected ErrNotDir, got %v", err)
		}
	})
}
