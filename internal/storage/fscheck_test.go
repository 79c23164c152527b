package storage

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestValidateLocalPathAllowsLocalFS(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bothive.db")
	err := validateLocalPathWithDetector(path, func(string) (string, error) {
		return "ext4", nil
	})
	if err != nil {
		t.Fatalf("expected local filesystem to pass, got: %v", err)
	}
}

func TestValidateLocalPathRejectsNetworkFS(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bothive.db")
	err := validateLocalPathWithDetector(path, func(string) (string, error) {
		return "nfs", nil
	})
	if err == nil {
		t.Fatal("expected network filesystem validation error")
	}
	if !strings.Contains(err.Error(), "nfs") {
		t.Fatalf("expected error to name the filesystem, got %q", err.Error())
	}
}

func TestValidateLocalPathUsesNearestExistingParent(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	path := filepath.Join(root, "nested", "dir", "bothive.db")

	var inspected string
	err := validateLocalPathWithDetector(path, func(p string) (string, error) {
		inspected = p
		return "ext4", nil
	})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if inspected != root {
		t.Fatalf("inspected %q, want nearest existing parent %q", inspected, root)
	}
}
