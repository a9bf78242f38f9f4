package server

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/saiset-co/sai-assets/logger"
	"github.com/saiset-co/sai-assets/middleware"
	"github.com/saiset-co/sai-assets/types"
)

func newFastCtx(method, uri string) *fasthttp.RequestCtx {
	var req fasthttp.Request
	req.Header.SetMethod(method)
	req.SetRequestURI(uri)

	fctx := &fasthttp.RequestCtx{}
	fctx.Init(&req, nil, nil)
	return fctx
}

func textHandler(body string) types.FastHTTPHandler {
	return func(ctx *types.RequestCtx) {
		ctx.SetContentType("text/plain")
		ctx.SetBodyString(body)
	}
}

func newTestServer(t *testing.T, mw types.MiddlewareManager) *FastHTTPServer {
	t.Helper()

	s, err := NewHTTPServer(context.Background(), &types.HTTPConfig{Host: "127.0.0.1", Port: 0}, logger.NewNop(), nil, mw, NewRouter())
	require.NoError(t, err)
	return s
}

func TestRouter_Lookup(t *testing.T) {
	r := NewRouter()
	r.GET("/health", textHandler("ok"))
	r.GET("/items/{id}", textHandler("item"))
	r.GET("/items/:id/tags/{tag}", textHandler("tag"))

	tests := []struct {
		name   string
		method string
		path   string
		found  bool
		params map[string]string
	}{
		{name: "static", method: "GET", path: "/health", found: true},
		{name: "trailing slash", method: "GET", path: "/health/", found: true},
		{name: "head falls back to get", method: "HEAD", path: "/health", found: true},
		{name: "param", method: "GET", path: "/items/42", found: true, params: map[string]string{"id": "42"}},
		{name: "two params", method: "GET", path: "/items/42/tags/new", found: true, params: map[string]string{"id": "42", "tag": "new"}},
		{name: "wrong method", method: "POST", path: "/health"},
		{name: "unknown", method: "GET", path: "/missing"},
		{name: "too deep", method: "GET", path: "/items/42/extra"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, config, params := r.Lookup(tt.method, tt.path)
			if !tt.found {
				assert.Nil(t, handler)
				return
			}
			require.NotNil(t, handler)
			assert.NotNil(t, config)
			assert.Equal(t, tt.params, params)
		})
	}
}

func TestRouter_GroupAndBuilders(t *testing.T) {
	r := NewRouter()
	g := r.Group("/api").WithoutMiddlewares("compression")
	g.GET("/items", textHandler("items")).WithMiddlewares("logging")
	g.Group("/v2").POST("/items", textHandler("v2"))

	_, config, _ := r.Lookup("GET", "/api/items")
	require.NotNil(t, config)
	assert.Equal(t, []string{"logging"}, config.Middlewares)
	assert.Equal(t, []string{"compression"}, config.DisabledMiddlewares)

	_, config, _ = r.Lookup("POST", "/api/v2/items")
	require.NotNil(t, config)
	assert.Equal(t, []string{"compression"}, config.DisabledMiddlewares)

	assert.Equal(t, []string{"GET:/api/items", "POST:/api/v2/items"}, r.Keys())
}

func TestPipelines_Order(t *testing.T) {
	p := NewPipelines()
	noopBefore := func(*types.RequestCtx) (bool, error) { return false, nil }
	noopAfter := func(*types.RequestCtx) error { return nil }

	p.AddBeforeToEnd("b", noopBefore)
	p.AddBeforeToStart("a", noopBefore)
	p.AddBeforeToEnd("c", noopBefore)
	p.AddAfterToStart("y", noopAfter)
	p.AddAfterToEnd("z", noopAfter)
	p.AddAfterToStart("x", noopAfter)

	assert.Equal(t, []string{"a", "b", "c"}, p.BeforeNames())
	assert.Equal(t, []string{"x", "y", "z"}, p.AfterNames())
}

func TestServer_DispatchOrder(t *testing.T) {
	s := newTestServer(t, nil)

	var trace []string
	s.Router().GET("/page", func(ctx *types.RequestCtx) {
		trace = append(trace, "route")
		ctx.SetBodyString("page")
	})
	s.Pipelines().AddBeforeToEnd("auth", func(*types.RequestCtx) (bool, error) {
		trace = append(trace, "before")
		return false, nil
	})
	s.Pipelines().AddAfterToEnd("rewrite", func(*types.RequestCtx) error {
		trace = append(trace, "after")
		return nil
	})

	fctx := newFastCtx("GET", "/page")
	s.Handler()(fctx)

	assert.Equal(t, []string{"before", "route", "after"}, trace)
	assert.Equal(t, "page", string(fctx.Response.Body()))
}

func TestServer_BeforeHookHandles(t *testing.T) {
	s := newTestServer(t, nil)

	routeCalled := false
	afterCalled := false
	s.Pipelines().AddBeforeToStart("intercept", func(ctx *types.RequestCtx) (bool, error) {
		ctx.SetBodyString("intercepted")
		return true, nil
	})
	s.Pipelines().AddAfterToEnd("after", func(*types.RequestCtx) error {
		afterCalled = true
		return nil
	})
	s.Router().GET("/x", func(*types.RequestCtx) { routeCalled = true })

	fctx := newFastCtx("GET", "/x")
	s.Handler()(fctx)

	assert.False(t, routeCalled)
	assert.True(t, afterCalled)
	assert.Equal(t, "intercepted", string(fctx.Response.Body()))
}

func TestServer_NotFoundAndHookError(t *testing.T) {
	s := newTestServer(t, nil)

	fctx := newFastCtx("GET", "/missing")
	s.Handler()(fctx)
	assert.Equal(t, fasthttp.StatusNotFound, fctx.Response.StatusCode())

	s.Pipelines().AddBeforeToEnd("broken", func(*types.RequestCtx) (bool, error) {
		return false, errors.New("boom")
	})
	s.Router().GET("/x", textHandler("x"))

	fctx = newFastCtx("GET", "/x")
	s.Handler()(fctx)
	assert.Equal(t, fasthttp.StatusInternalServerError, fctx.Response.StatusCode())
}

func TestServer_MiddlewaresWrapHooks(t *testing.T) {
	mw, err := middleware.NewManager(context.Background(), &types.MiddlewaresConfig{
		Enabled:  true,
		Recovery: &types.MiddlewareItemConfig{Enabled: true, Weight: 10},
	}, logger.NewNop(), nil)
	require.NoError(t, err)
	require.NoError(t, mw.RegisterMiddlewares())

	s := newTestServer(t, mw)
	s.Pipelines().AddAfterToEnd("panicking", func(*types.RequestCtx) error {
		panic("after hook")
	})
	s.Router().GET("/x", textHandler("x"))

	fctx := newFastCtx("GET", "/x")
	assert.NotPanics(t, func() { s.Handler()(fctx) })
	assert.Equal(t, fasthttp.StatusInternalServerError, fctx.Response.StatusCode())
}

func TestServer_StartStop(t *testing.T) {
	s := newTestServer(t, nil)
	s.Router().GET("/ping", textHandler("pong"))

	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())
	assert.ErrorIs(t, s.Start(), types.ErrServerAlreadyRunning)

	status, body, err := fasthttp.Get(nil, fmt.Sprintf("http://%s/ping", s.Addr().String()))
	require.NoError(t, err)
	assert.Equal(t, fasthttp.StatusOK, status)
	assert.Equal(t, "pong", string(body))

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
	assert.ErrorIs(t, s.Stop(), types.ErrServerNotRunning)
}
