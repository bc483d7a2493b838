package library

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/jackzampolin/leaflet/internal/flipbook"
)

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
	".gif":  true,
	".pdf":  true,
}

var numericSuffix = regexp.MustCompile(`(\d+)\.[^.]+$`)

// LoadDir appends every image or PDF file in dir, ordered by numeric suffix. The
// library title is derived from the first file if none is set.
func (l *Library) LoadDir(dir string) ([]flipbook.Page, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read page directory: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%s: %w", dir, ErrNoPages)
	}
	paths = sortByNumber(paths)

	uploads := make([]Upload, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(p), err)
		}
		uploads = append(uploads, Upload{FileName: filepath.Base(p), Data: data})
	}

	added, err := l.Append(uploads...)
	if err != nil {
		return nil, err
	}
	if l.Title() == "" {
		l.SetTitle(deriveTitle(paths[0]))
	}
	return added, nil
}

// sortByNumber orders paths by their trailing number so page-2 comes before
// page-10. Files without a number sort first, alphabetically.
func sortByNumber(paths []string) []string {
	sorted := make([]string, len(paths))
	copy(sorted, paths)

	sort.SliceStable(sorted, func(i, j int) bool {
		mi := numericSuffix.FindStringSubmatch(filepath.Base(sorted[i]))
		mj := numericSuffix.FindStringSubmatch(filepath.Base(sorted[j]))

		if len(mi) > 1 && len(mj) > 1 {
			ni, _ := strconv.Atoi(mi[1])
			nj, _ := strconv.Atoi(mj[1])
			if ni != nj {
				return ni < nj
			}
			return sorted[i] < sorted[j]
		}
		if len(mi) > 1 {
			return false
		}
		if len(mj) > 1 {
			return true
		}
		return sorted[i] < sorted[j]
	})
	return sorted
}

// deriveTitle turns "spring-sale-1.png" into "spring-sale".
func deriveTitle(path string) string {
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	name = regexp.MustCompile(`[-_ ]?\d+$`).ReplaceAllString(name, "")
	if name == "" {
		return filepath.Base(filepath.Dir(path))
	}
	return name
}
