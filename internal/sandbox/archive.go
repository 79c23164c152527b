package sandbox

import (
	"archive/zip"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"

	"github.com/bothive/bothive/internal/errs"
)

// ExtractArchive unpacks the zip at archivePath into destRoot, overwriting
// conflicting paths. Internal structure is trusted verbatim except that every
// entry path goes through the same traversal guard as Write. Returns the
// BLAKE3 digest of the archive for change tracking.
func (s *Store) ExtractArchive(archivePath, destRoot string) (string, error) {
	if err := s.Ensure(destRoot); err != nil {
		return "", err
	}

	digest, err := hashFile(archivePath)
	if err != nil {
		return "", err
	}

	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return "", errs.Validationf("open zip archive: %v", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if err := s.extractOne(f, destRoot); err != nil {
			return "", err
		}
	}
	return digest, nil
}

func (s *Store) extractOne(f *zip.File, destRoot string) error {
	full, err := s.resolve(destRoot, f.Name)
	if err != nil {
		return err
	}

	if f.FileInfo().IsDir() {
		if err := os.MkdirAll(full, 0o755); err != nil {
			return errs.IOf("create directory %q: %w", f.Name, err)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return errs.IOf("create parent for %q: %w", f.Name, err)
	}

	src, err := f.Open()
	if err != nil {
		return errs.IOf("open archive entry %q: %w", f.Name, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(full, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return errs.IOf("create %q: %w", f.Name, err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return errs.IOf("extract %q: %w", f.Name, err)
	}
	if err := dst.Close(); err != nil {
		return errs.IOf("close %q: %w", f.Name, err)
	}
	return nil
}

func hashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errs.IOf("read archive: %w", err)
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
