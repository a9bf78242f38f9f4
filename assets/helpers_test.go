package assets

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/saiset-co/sai-assets/engine"
	"github.com/saiset-co/sai-assets/logger"
	"github.com/saiset-co/sai-assets/sourcetree"
	"github.com/saiset-co/sai-assets/types"
)

type stubConfig struct {
	name    string
	kind    types.BundleKind
	sources []string
	version string
}

func (s stubConfig) BundleName() string           { return s.name }
func (s stubConfig) BundleKind() types.BundleKind { return s.kind }
func (s stubConfig) SourcePatterns() []string     { return s.sources }
func (s stubConfig) ComponentVersion() string     { return s.version }

// stubApp is an Application identified by its id.
type stubApp struct {
	id int
}

func (a *stubApp) Version() string                                   { return strconv.Itoa(a.id) }
func (a *stubApp) Optimized() bool                                   { return false }
func (a *stubApp) BuiltAt() time.Time                                { return time.Time{} }
func (a *stubApp) Bundle(string) (*types.Bundle, bool)               { return nil, false }
func (a *stubApp) Bundles() []*types.Bundle                          { return nil }
func (a *stubApp) BundleURL(string) (string, types.BundleKind, bool) { return "", "", false }
func (a *stubApp) HandleBundleRequest(string) (types.BundleLookup, bool) {
	return types.BundleLookup{}, false
}

// countingBuild hands out a new stubApp per call. While gate is non-nil each
// build blocks until it is closed.
type countingBuild struct {
	mu    sync.Mutex
	calls int
	gate  chan struct{}
	fail  error
}

func (c *countingBuild) build(context.Context) (types.Application, error) {
	c.mu.Lock()
	c.calls++
	id := c.calls
	gate := c.gate
	fail := c.fail
	c.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if fail != nil {
		return nil, fail
	}
	return &stubApp{id: id}, nil
}

func (c *countingBuild) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *countingBuild) setFail(err error) {
	c.mu.Lock()
	c.fail = err
	c.mu.Unlock()
}

func siteTree() fstest.MapFS {
	return fstest.MapFS{
		"js/app.js":    &fstest.MapFile{Data: []byte("console.log('app');\n")},
		"js/util.js":   &fstest.MapFile{Data: []byte("function util() {}\n")},
		"css/site.css": &fstest.MapFile{Data: []byte("body { margin: 0; }\n")},
	}
}

func siteConfigs() []types.BundleConfiguration {
	return []types.BundleConfiguration{
		types.BundleConfig{Name: "site", Kind: "script", Sources: []string{"js/*.js"}, Version: "1.0.0.0"},
		types.BundleConfig{Name: "styles", Kind: "stylesheet", Sources: []string{"css/"}, Version: "1.0.0.0"},
	}
}

func buildSiteApp(t *testing.T) types.Application {
	t.Helper()

	app, err := engine.New(logger.NewNop()).BuildApplication(context.Background(), types.BuildParams{
		Configs: siteConfigs(),
		Source:  sourcetree.FromFS("mem", siteTree()),
		URLs:    engine.NewURLPolicy(""),
		Version: "1.0.0.0",
		Logger:  logger.NewNop(),
	})
	require.NoError(t, err)
	return app
}

func staticContainer(app types.Application) types.ApplicationContainer {
	return NewContainer(true, func(context.Context) (types.Application, error) { return app, nil })
}

func newRequestCtx(method, uri string) *types.RequestCtx {
	var req fasthttp.Request
	req.Header.SetMethod(method)
	req.SetRequestURI(uri)

	fctx := &fasthttp.RequestCtx{}
	fctx.Init(&req, nil, nil)
	return &types.RequestCtx{RequestCtx: fctx}
}
