package sandbox

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bothive/bothive/internal/errs"
)

// Conventional entry filenames checked in order, per language.
var entryNames = map[string][]string{
	"javascript": {"index.js", "main.js", "bot.js", "app.js"},
	"python":     {"main.py", "bot.py", "app.py", "run.py"},
}

var entryExt = map[string]string{
	"javascript": "js",
	"python":     "py",
}

// ResolveEntry picks the file a bot process starts from. Conventional names
// win; otherwise the first file with the language's extension in a sorted
// enumeration of the root. The sort makes the fallback deterministic instead
// of depending on directory order.
func (s *Store) ResolveEntry(root, language string) (string, error) {
	names, ok := entryNames[language]
	if !ok {
		return "", errs.Validationf("unsupported language %q", language)
	}

	for _, name := range names {
		info, err := os.Stat(s.join(root, name))
		if err == nil && !info.IsDir() {
			return name, nil
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", errs.IOf("stat %q: %w", name, err)
		}
	}

	dirEntries, err := os.ReadDir(root)
	if err != nil {
		return "", errs.IOf("read sandbox root: %w", err)
	}

	ext := "." + entryExt[language]
	var candidates []string
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		name := de.Name()
		if strings.HasPrefix(name, hiddenPrefix) {
			continue
		}
		if strings.EqualFold(filepath.Ext(name), ext) {
			candidates = append(candidates, name)
		}
	}
	if len(candidates) == 0 {
		return "", errs.NotFoundf("no entry file for language %q", language)
	}

	sort.Strings(candidates)
	return candidates[0], nil
}

func (s *Store) join(root, name string) string {
	full, err := s.resolve(root, name)
	if err != nil {
		// Conventional names are fixed literals; resolve cannot fail on them.
		return root
	}
	return full
}
