package sandbox

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/bothive/bothive/internal/errs"
)

func buildZip(t *testing.T, files map[string]string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "upload.zip")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	zw := zip.NewWriter(f)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip Create(%s): %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("zip Write(%s): %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip Close: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return path
}

func TestExtractArchive(t *testing.T) {
	t.Parallel()

	archive := buildZip(t, map[string]string{
		"index.js":      "console.log('hi')",
		"lib/helper.js": "module.exports = 1",
	})

	root := filepath.Join(t.TempDir(), "bot")
	s := NewStore()

	digest, err := s.ExtractArchive(archive, root)
	if err != nil {
		t.Fatalf("ExtractArchive: %v", err)
	}
	if len(digest) != 64 {
		t.Fatalf("digest length = %d, want 64 hex chars", len(digest))
	}

	got, err := os.ReadFile(filepath.Join(root, "lib", "helper.js"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "module.exports = 1" {
		t.Fatalf("extracted content = %q", string(got))
	}
}

func TestExtractArchiveOverwrites(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), "bot")
	s := NewStore()
	if err := s.Write(root, "index.js", []byte("old")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	archive := buildZip(t, map[string]string{"index.js": "new"})
	if _, err := s.ExtractArchive(archive, root); err != nil {
		t.Fatalf("ExtractArchive: %v", err)
	}

	got, err := s.Read(root, "index.js")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "new" {
		t.Fatalf("content = %q, want overwrite", string(got))
	}
}

func TestExtractArchiveRejectsEscapingEntries(t *testing.T) {
	t.Parallel()

	parent := t.TempDir()
	root := filepath.Join(parent, "bot")
	archive := buildZip(t, map[string]string{"../evil.txt": "leak"})

	s := NewStore()
	if _, err := s.ExtractArchive(archive, root); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("ExtractArchive error = %v, want validation error", err)
	}
	if _, err := os.Stat(filepath.Join(parent, "evil.txt")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected no file outside root, stat err = %v", err)
	}
}

func TestExtractArchiveBadZip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "not-a.zip")
	if err := os.WriteFile(path, []byte("garbage"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	s := NewStore()
	if _, err := s.ExtractArchive(path, filepath.Join(t.TempDir(), "bot")); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("ExtractArchive error = %v, want validation error", err)
	}
}
