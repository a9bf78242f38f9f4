package engine

import (
	"strings"
	"time"

	"github.com/saiset-co/sai-assets/types"
)

// application is immutable after newApplication returns.
type application struct {
	version   string
	optimized bool
	builtAt   time.Time
	rootPath  string
	urls      types.URLGenerator
	ordered   []*types.Bundle
	byName    map[string]*types.Bundle
	urlByName map[string]string
}

func newApplication(version string, optimized bool, rootPath string, urls types.URLGenerator, bundles []*types.Bundle, builtAt time.Time) *application {
	app := &application{
		version:   version,
		optimized: optimized,
		builtAt:   builtAt,
		rootPath:  strings.TrimRight(rootPath, "/"),
		urls:      urls,
		ordered:   bundles,
		byName:    make(map[string]*types.Bundle, len(bundles)),
		urlByName: make(map[string]string, len(bundles)),
	}

	for _, b := range bundles {
		app.byName[b.Name] = b
		app.urlByName[b.Name] = app.rootPath + urls.BundleURL(b)
	}

	return app
}

func (a *application) Version() string    { return a.version }
func (a *application) Optimized() bool    { return a.optimized }
func (a *application) BuiltAt() time.Time { return a.builtAt }

func (a *application) Bundle(name string) (*types.Bundle, bool) {
	b, ok := a.byName[name]
	return b, ok
}

func (a *application) Bundles() []*types.Bundle {
	out := make([]*types.Bundle, len(a.ordered))
	copy(out, a.ordered)
	return out
}

// BundleURL returns the public URL of a bundle, including the root path.
func (a *application) BundleURL(name string) (string, types.BundleKind, bool) {
	url, ok := a.urlByName[name]
	if !ok {
		return "", "", false
	}
	return url, a.byName[name].Kind, true
}

// HandleBundleRequest reports whether path is in the bundle URL scheme. A
// path in the scheme naming an unknown bundle, or a bundle of another kind,
// yields a lookup with a nil Bundle.
func (a *application) HandleBundleRequest(path string) (types.BundleLookup, bool) {
	if a.rootPath != "" {
		path = strings.TrimPrefix(path, a.rootPath)
	}

	ref, ok := a.urls.ParseBundleURL(path)
	if !ok {
		return types.BundleLookup{}, false
	}

	lookup := types.BundleLookup{RequestedHash: ref.Hash}
	if b, exists := a.byName[ref.Name]; exists && b.Kind == ref.Kind {
		lookup.Bundle = b
	}

	return lookup, true
}
