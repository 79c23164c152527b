// Package sandbox implements tenant-scoped file operations rooted at a bot's
// sandbox directory. Every relative path is resolved through a traversal
// guard; nothing in this package reads or writes outside a given root.
package sandbox

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bothive/bothive/internal/errs"
)

// Directories never exposed through List. Dependency caches are re-created by
// installs and are noise in a bot editor.
var excludedDirs = map[string]struct{}{
	"node_modules": {},
	"__pycache__":  {},
}

// hiddenPrefix marks entries excluded from listings.
const hiddenPrefix = "."

// Entry describes one immediate child of a sandbox root.
type Entry struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size"`
	Ext   string `json:"ext"`
}

// Store performs sandboxed filesystem operations. It is stateless; every call
// names its root explicitly.
type Store struct{}

func NewStore() *Store {
	return &Store{}
}

// Ensure idempotently creates the sandbox root.
func (s *Store) Ensure(root string) error {
	if strings.TrimSpace(root) == "" {
		return errs.Validationf("sandbox root is empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return errs.IOf("create sandbox root: %w", err)
	}
	return nil
}

// List enumerates the immediate children of root, directories before files,
// each group ascending by name. Hidden entries and dependency caches are
// skipped. A missing root is created and yields an empty listing.
func (s *Store) List(root string) ([]Entry, error) {
	if err := s.Ensure(root); err != nil {
		return nil, err
	}

	dirEntries, err := os.ReadDir(root)
	if err != nil {
		return nil, errs.IOf("read sandbox root: %w", err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		name := de.Name()
		if strings.HasPrefix(name, hiddenPrefix) {
			continue
		}
		if _, excluded := excludedDirs[name]; excluded && de.IsDir() {
			continue
		}

		e := Entry{
			Name:  name,
			Path:  name,
			IsDir: de.IsDir(),
			Ext:   strings.ToLower(strings.TrimPrefix(filepath.Ext(name), ".")),
		}
		if de.IsDir() {
			// Directories report size 0 and no extension.
			e.Ext = ""
		} else {
			info, err := de.Info()
			if err != nil {
				return nil, errs.IOf("stat %q: %w", name, err)
			}
			e.Size = info.Size()
		}
		entries = append(entries, e)
	}

	// Enumeration order is filesystem-dependent; the sort is part of the
	// contract.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir != entries[j].IsDir {
			return entries[i].IsDir
		}
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}

// Read returns the content of relPath resolved under root.
func (s *Store) Read(root, relPath string) ([]byte, error) {
	full, err := s.resolve(root, relPath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, errs.NotFoundf("file %q", relPath)
	}
	if err != nil {
		return nil, errs.IOf("read %q: %w", relPath, err)
	}
	return data, nil
}

// Write stores content at relPath resolved under root, creating parent
// directories as needed.
func (s *Store) Write(root, relPath string, content []byte) error {
	full, err := s.resolve(root, relPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return errs.IOf("create parent for %q: %w", relPath, err)
	}
	if err := os.WriteFile(full, content, 0o644); err != nil {
		return errs.IOf("write %q: %w", relPath, err)
	}
	return nil
}

// Delete removes the file or directory at relPath. Directories are removed
// recursively. A missing target is an error, not a silent success.
func (s *Store) Delete(root, relPath string) error {
	full, err := s.resolve(root, relPath)
	if err != nil {
		return err
	}
	if full == filepath.Clean(root) {
		return errs.Validationf("refusing to delete the sandbox root")
	}

	info, err := os.Stat(full)
	if errors.Is(err, os.ErrNotExist) {
		return errs.NotFoundf("path %q", relPath)
	}
	if err != nil {
		return errs.IOf("stat %q: %w", relPath, err)
	}

	if info.IsDir() {
		err = os.RemoveAll(full)
	} else {
		err = os.Remove(full)
	}
	if err != nil {
		return errs.IOf("delete %q: %w", relPath, err)
	}
	return nil
}

// resolve joins relPath onto root and rejects any result that escapes root.
func (s *Store) resolve(root, relPath string) (string, error) {
	if strings.TrimSpace(root) == "" {
		return "", errs.Validationf("sandbox root is empty")
	}
	if strings.TrimSpace(relPath) == "" {
		return "", errs.Validationf("path is empty")
	}
	if filepath.IsAbs(relPath) {
		return "", errs.Validationf("path %q must be relative", relPath)
	}

	cleanRoot := filepath.Clean(root)
	full := filepath.Join(cleanRoot, relPath)
	if full != cleanRoot && !strings.HasPrefix(full, cleanRoot+string(filepath.Separator)) {
		return "", errs.Validationf("path %q escapes the sandbox", relPath)
	}
	return full, nil
}
