// Package sourcetree exposes a directory of asset sources and detects when
// its contents change.
package sourcetree

import (
	"crypto/sha256"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/saiset-co/sai-assets/types"
)

type Directory struct {
	root string
	fsys fs.FS
}

func NewDirectory(root string) (*Directory, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, types.Errorf(types.ErrSourceTreeMissing, "%s: %v", root, err)
	}

	stat, err := os.Stat(abs)
	if err != nil {
		return nil, types.Errorf(types.ErrSourceTreeMissing, "%s: %v", abs, err)
	}
	if !stat.IsDir() {
		return nil, types.Errorf(types.ErrSourceTreeMissing, "%s is not a directory", abs)
	}

	return &Directory{root: abs, fsys: os.DirFS(abs)}, nil
}

// FromFS wraps an arbitrary file system, mostly for tests and embedded assets.
func FromFS(root string, fsys fs.FS) *Directory {
	return &Directory{root: root, fsys: fsys}
}

func (d *Directory) Root() string { return d.root }

func (d *Directory) FS() fs.FS { return d.fsys }

// Fingerprint hashes the path, size and modification time of every regular
// file under the root. Contents are not read.
func (d *Directory) Fingerprint() (string, error) {
	type fileStamp struct {
		path  string
		size  int64
		mtime int64
	}

	var stamps []fileStamp

	err := fs.WalkDir(d.fsys, ".", func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.Type().IsRegular() {
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			return err
		}

		stamps = append(stamps, fileStamp{path: p, size: info.Size(), mtime: info.ModTime().UnixNano()})
		return nil
	})
	if err != nil {
		return "", types.Errorf(types.ErrSourceTreeMissing, "walk %s: %v", d.root, err)
	}

	sort.Slice(stamps, func(i, j int) bool { return stamps[i].path < stamps[j].path })

	h := sha256.New()
	for _, s := range stamps {
		fmt.Fprintf(h, "%s\x00%d\x00%d\n", s.path, s.size, s.mtime)
	}

	return fmt.Sprintf("sha256:%x", h.Sum(nil)), nil
}

// Tracker remembers the last fingerprint seen and reports changes.
type Tracker struct {
	tree types.SourceTree
	last string
	mu   sync.Mutex
}

func NewTracker(tree types.SourceTree) *Tracker {
	return &Tracker{tree: tree}
}

// Changed reports whether the fingerprint differs from the previous call. The
// first call records a baseline and returns false.
func (t *Tracker) Changed() (bool, error) {
	fingerprint, err := t.tree.Fingerprint()
	if err != nil {
		return false, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.last == "" {
		t.last = fingerprint
		return false, nil
	}

	if fingerprint == t.last {
		return false, nil
	}

	t.last = fingerprint
	return true, nil
}

// Reset makes the next Changed call record a fresh baseline.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.last = ""
	t.mu.Unlock()
}
