package engine

import (
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/saiset-co/sai-assets/types"
)

// resolveSources expands the patterns of one bundle into file paths. Files
// appear in pattern order and lexically within a pattern; a file matched by
// several patterns is kept at its first position.
func resolveSources(fsys fs.FS, kind types.BundleKind, patterns []string) ([]string, error) {
	var all []string
	err := fs.WalkDir(fsys, ".", func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.Type().IsRegular() {
			all = append(all, p)
		}
		return nil
	})
	if err != nil {
		return nil, types.Errorf(types.ErrSourceTreeMissing, "walk: %v", err)
	}
	sort.Strings(all)

	seen := make(map[string]struct{}, len(all))
	var files []string

	for _, raw := range patterns {
		pattern := strings.TrimPrefix(path.Clean("/"+strings.TrimSpace(raw)), "/")
		dirPattern := strings.HasSuffix(raw, "/") || strings.HasSuffix(raw, "/**") || pattern == "**"
		pattern = strings.TrimSuffix(strings.TrimSuffix(pattern, "**"), "/")

		if _, err := path.Match(pattern, ""); err != nil {
			return nil, types.Errorf(types.ErrConfigurationInvalid, "pattern %q: %v", raw, err)
		}

		matched := 0
		for _, file := range all {
			if !matchSource(pattern, dirPattern, kind, file) {
				continue
			}
			matched++
			if _, dup := seen[file]; dup {
				continue
			}
			seen[file] = struct{}{}
			files = append(files, file)
		}

		if matched == 0 {
			return nil, types.Errorf(types.ErrSourceTreeMissing, "no files match %q", raw)
		}
	}

	return files, nil
}

func matchSource(pattern string, dirPattern bool, kind types.BundleKind, file string) bool {
	if dirPattern {
		if path.Ext(file) != kind.Extension() {
			return false
		}
		if pattern == "" || pattern == "." {
			return true
		}
		return strings.HasPrefix(file, pattern+"/")
	}

	ok, _ := path.Match(pattern, file)
	return ok
}
