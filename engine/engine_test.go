package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-assets/cache"
	"github.com/saiset-co/sai-assets/logger"
	"github.com/saiset-co/sai-assets/sourcetree"
	"github.com/saiset-co/sai-assets/types"
)

func testTree() fstest.MapFS {
	return fstest.MapFS{
		"js/vendor/lib.js": &fstest.MapFile{Data: []byte("var lib = 1;\n")},
		"js/app.js":        &fstest.MapFile{Data: []byte("// entry\nconsole.log(lib);\n")},
		"js/b.js":          &fstest.MapFile{Data: []byte("var b = 2;")},
		"css/site.css":     &fstest.MapFile{Data: []byte("/* base */\nbody { margin: 0; }\n\n")},
		"css/print.css":    &fstest.MapFile{Data: []byte("@media print { body { color: #000; } }\n")},
		"readme.txt":       &fstest.MapFile{Data: []byte("not an asset")},
	}
}

func TestURLPolicy(t *testing.T) {
	u := NewURLPolicy("")
	assert.Equal(t, "/_assets", u.Prefix())

	bundle := &types.Bundle{Name: "site-main", Kind: types.BundleKindScript, Hash: "abc123"}
	url := u.BundleURL(bundle)
	assert.Equal(t, "/_assets/script/site-main-abc123.js", url)

	ref, ok := u.ParseBundleURL(url)
	require.True(t, ok)
	assert.Equal(t, types.BundleRef{Kind: types.BundleKindScript, Name: "site-main", Hash: "abc123"}, ref)

	tests := []string{
		"/",
		"/index.html",
		"/_assets",
		"/_assets/script/site.js",
		"/_assets/script/site-.js",
		"/_assets/image/site-abc.png",
		"/_assets/stylesheet/site-abc.js",
		"/_assets/script/nested/site-abc.js",
		"/other/script/site-abc.js",
	}
	for _, path := range tests {
		t.Run(path, func(t *testing.T) {
			_, ok := u.ParseBundleURL(path)
			assert.False(t, ok)
		})
	}

	assert.Equal(t, "/static", NewURLPolicy("static/").Prefix())
}

func TestResolveSources(t *testing.T) {
	fsys := testTree()

	tests := []struct {
		name     string
		kind     types.BundleKind
		patterns []string
		want     []string
		err      error
	}{
		{
			name:     "pattern order then lexical",
			kind:     types.BundleKindScript,
			patterns: []string{"js/vendor/*.js", "js/*.js"},
			want:     []string{"js/vendor/lib.js", "js/app.js", "js/b.js"},
		},
		{
			name:     "directory pattern filters by kind",
			kind:     types.BundleKindScript,
			patterns: []string{"js/**"},
			want:     []string{"js/app.js", "js/b.js", "js/vendor/lib.js"},
		},
		{
			name:     "duplicates keep first position",
			kind:     types.BundleKindStylesheet,
			patterns: []string{"css/site.css", "css/"},
			want:     []string{"css/site.css", "css/print.css"},
		},
		{
			name:     "unmatched pattern",
			kind:     types.BundleKindScript,
			patterns: []string{"js/missing.js"},
			err:      types.ErrSourceTreeMissing,
		},
		{
			name:     "malformed pattern",
			kind:     types.BundleKindScript,
			patterns: []string{"js/[.js"},
			err:      types.ErrConfigurationInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files, err := resolveSources(fsys, tt.kind, tt.patterns)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, files)
		})
	}
}

func TestMinifySource(t *testing.T) {
	script, err := minifySource(types.BundleKindScript, []byte("// header\nvar answer = 40 + 2;\n\nconsole.log( answer );\n"))
	require.NoError(t, err)
	assert.NotContains(t, string(script), "header")
	assert.Contains(t, string(script), "console.log(")

	style, err := minifySource(types.BundleKindStylesheet, []byte("/* base */\nbody {\n  margin: 0;\n}\n"))
	require.NoError(t, err)
	assert.Equal(t, "body{margin:0}", string(style))
}

func TestMinifySource_KeepsLiteralContent(t *testing.T) {
	src := "const banner = `\n  // keep me\n    indented\n`;\nconst note = \"  /* not a comment */  \";\nwindow.x = [banner, note];\n"

	out, err := minifySource(types.BundleKindScript, []byte(src))
	require.NoError(t, err)
	assert.Contains(t, string(out), "  // keep me")
	assert.Contains(t, string(out), "    indented")
	assert.Contains(t, string(out), "  /* not a comment */  ")
}

func TestEngine_BuildOptimizedKeepsTemplateLiterals(t *testing.T) {
	fsys := testTree()
	fsys["js/banner.js"] = &fstest.MapFile{Data: []byte("const banner = `\n  // keep me\n    indented\n`;\n")}

	app, err := New(logger.NewNop()).BuildApplication(context.Background(), buildParams(fsys, true, nil))
	require.NoError(t, err)

	site, ok := app.Bundle("site")
	require.True(t, ok)
	assert.Contains(t, string(site.Content), "  // keep me")
	assert.Contains(t, string(site.Content), "    indented")
}

func TestEngine_UnparsableSourceIsKeptVerbatim(t *testing.T) {
	fsys := testTree()
	fsys["js/broken.js"] = &fstest.MapFile{Data: []byte("var = ;\n")}

	app, err := New(logger.NewNop()).BuildApplication(context.Background(), buildParams(fsys, true, nil))
	require.NoError(t, err)

	site, _ := app.Bundle("site")
	assert.Contains(t, string(site.Content), "var = ;")
}

func buildParams(fsys fstest.MapFS, optimize bool, store types.CacheManager) types.BuildParams {
	return types.BuildParams{
		Configs: []types.BundleConfiguration{
			types.BundleConfig{Name: "site", Kind: "script", Sources: []string{"js/vendor/*.js", "js/*.js"}, Version: "1.0"},
			types.BundleConfig{Name: "styles", Kind: "stylesheet", Sources: []string{"css/"}, Version: "1.0"},
		},
		Source:   sourcetree.FromFS("mem", fsys),
		Cache:    store,
		URLs:     NewURLPolicy("/_assets"),
		Optimize: optimize,
		Version:  "1.0",
		Logger:   logger.NewNop(),
	}
}

func TestEngine_BuildDebug(t *testing.T) {
	app, err := New(logger.NewNop()).BuildApplication(context.Background(), buildParams(testTree(), false, nil))
	require.NoError(t, err)

	assert.Equal(t, "1.0", app.Version())
	assert.False(t, app.Optimized())
	require.Len(t, app.Bundles(), 2)

	site, ok := app.Bundle("site")
	require.True(t, ok)
	assert.Equal(t, types.BundleKindScript, site.Kind)
	assert.Equal(t, "application/javascript; charset=utf-8", site.ContentType)
	assert.Len(t, site.Hash, hashLength)
	assert.Equal(t, []string{"js/vendor/lib.js", "js/app.js", "js/b.js"}, site.Sources)
	assert.True(t, strings.HasPrefix(string(site.Content), "/* js/vendor/lib.js */\nvar lib = 1;\n"))
	assert.Contains(t, string(site.Content), "/* js/app.js */\n// entry\n")

	url, kind, ok := app.BundleURL("site")
	require.True(t, ok)
	assert.Equal(t, types.BundleKindScript, kind)
	assert.Equal(t, "/_assets/script/site-"+site.Hash+".js", url)

	lookup, ok := app.HandleBundleRequest(url)
	require.True(t, ok)
	assert.True(t, lookup.Fresh())
	assert.Same(t, site, lookup.Bundle)

	lookup, ok = app.HandleBundleRequest("/_assets/script/site-0000.js")
	require.True(t, ok)
	assert.False(t, lookup.Fresh())
	assert.Same(t, site, lookup.Bundle)

	lookup, ok = app.HandleBundleRequest("/_assets/stylesheet/site-0000.css")
	require.True(t, ok)
	assert.Nil(t, lookup.Bundle)

	_, ok = app.HandleBundleRequest("/about")
	assert.False(t, ok)
}

func TestEngine_RootPath(t *testing.T) {
	params := buildParams(testTree(), false, nil)
	params.RootPath = "/shop/"

	app, err := New(logger.NewNop()).BuildApplication(context.Background(), params)
	require.NoError(t, err)

	url, _, ok := app.BundleURL("styles")
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(url, "/shop/_assets/stylesheet/styles-"))

	lookup, ok := app.HandleBundleRequest(url)
	require.True(t, ok)
	assert.True(t, lookup.Fresh())
}

func TestEngine_BuildOptimizedUsesCache(t *testing.T) {
	store, err := cache.NewMemoryCache(context.Background(), logger.NewNop(), &types.CacheConfig{})
	require.NoError(t, err)

	fsys := testTree()
	eng := New(logger.NewNop())

	first, err := eng.BuildApplication(context.Background(), buildParams(fsys, true, store))
	require.NoError(t, err)
	assert.True(t, first.Optimized())

	styles, _ := first.Bundle("styles")
	assert.NotContains(t, string(styles.Content), "base")
	assert.Equal(t, 2, store.Len())

	raw, found, err := store.Get(store.BuildKey("1.0", "styles"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Contains(t, string(raw), styles.Hash)

	second, err := eng.BuildApplication(context.Background(), buildParams(fsys, true, store))
	require.NoError(t, err)
	cachedStyles, _ := second.Bundle("styles")
	assert.Equal(t, styles.Hash, cachedStyles.Hash)
	assert.Equal(t, styles.Content, cachedStyles.Content)

	fsys["css/site.css"] = &fstest.MapFile{Data: []byte("body { margin: 1px; }\n"), ModTime: time.Now()}
	third, err := eng.BuildApplication(context.Background(), buildParams(fsys, true, store))
	require.NoError(t, err)
	changed, _ := third.Bundle("styles")
	assert.NotEqual(t, styles.Hash, changed.Hash)
}

type failingCache struct {
	types.CacheManager
}

func (failingCache) Get(string) ([]byte, bool, error)        { return nil, false, errors.New("disk full") }
func (failingCache) Set(string, []byte, time.Duration) error { return errors.New("disk full") }
func (failingCache) BuildKey(version, bundle string) string  { return cache.BuildKey(version, bundle) }

func TestEngine_CacheErrorsAreNotFatal(t *testing.T) {
	app, err := New(logger.NewNop()).BuildApplication(context.Background(), buildParams(testTree(), true, failingCache{}))
	require.NoError(t, err)
	assert.Len(t, app.Bundles(), 2)
}

func TestEngine_MissingSource(t *testing.T) {
	params := buildParams(testTree(), false, nil)
	params.Configs = append(params.Configs, types.BundleConfig{Name: "ghost", Kind: "script", Sources: []string{"nope/*.js"}})

	app, err := New(logger.NewNop()).BuildApplication(context.Background(), params)
	assert.Nil(t, app)
	assert.ErrorIs(t, err, types.ErrSourceTreeMissing)
	assert.Contains(t, err.Error(), "ghost")
}

func TestEngine_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(logger.NewNop()).BuildApplication(ctx, buildParams(testTree(), false, nil))
	assert.ErrorIs(t, err, context.Canceled)
}
