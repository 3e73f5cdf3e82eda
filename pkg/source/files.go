package source

import (
	"fmt"
	"path/filepath"
	"sort"
)

// RelativePath returns path relative to dataDir in slash form, for use as a
// stable source-file identifier in metadata. If path is not inside dataDir
// it is returned unchanged.
func RelativePath(dataDir, path string) string {
	rel, err := filepath.Rel(dataDir, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// SortFiles returns a sorted copy of paths. Sources process their files in
// sorted-filename order so two runs over the same file set report pending
// entries in the same order.
func SortFiles(paths []string) []string {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)
	return sorted
}

// Glob expands a pattern relative to dataDir and returns the matches sorted.
func Glob(dataDir, pattern string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dataDir, pattern))
	if err != nil {
		return nil, fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
	}
	sort.Strings(matches)
	return matches, nil
}
