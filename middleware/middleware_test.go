package middleware

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/saiset-co/sai-assets/logger"
	"github.com/saiset-co/sai-assets/metrics"
	"github.com/saiset-co/sai-assets/types"
)

type traceMiddleware struct {
	name   string
	weight int
	trace  *[]string
}

func (m *traceMiddleware) Name() string { return m.name }
func (m *traceMiddleware) Weight() int  { return m.weight }
func (m *traceMiddleware) Handle(ctx *types.RequestCtx, next func(*types.RequestCtx), _ *types.RouteConfig) {
	*m.trace = append(*m.trace, m.name)
	next(ctx)
}

func newRequestCtx(method, uri string) *types.RequestCtx {
	var req fasthttp.Request
	req.Header.SetMethod(method)
	req.SetRequestURI(uri)

	fctx := &fasthttp.RequestCtx{}
	fctx.Init(&req, nil, nil)
	return &types.RequestCtx{RequestCtx: fctx}
}

func newTestManager(t *testing.T, trace *[]string, names ...string) *Manager {
	t.Helper()

	m, err := NewManager(context.Background(), nil, logger.NewNop(), nil)
	require.NoError(t, err)

	for i, name := range names {
		require.NoError(t, m.Register(&traceMiddleware{name: name, weight: (len(names) - i) * 10, trace: trace}))
	}
	require.NoError(t, m.Finalize())
	return m
}

func TestManager_ExecuteOrdersByWeight(t *testing.T) {
	var trace []string
	m := newTestManager(t, &trace, "c", "b", "a")

	ctx := newRequestCtx("GET", "/")
	m.Execute(ctx, func(*types.RequestCtx) { trace = append(trace, "handler") }, nil)

	assert.Equal(t, []string{"a", "b", "c", "handler"}, trace)
	assert.Equal(t, []string{"a", "b", "c"}, m.Names())
}

func TestManager_RouteDisablesMiddleware(t *testing.T) {
	var trace []string
	m := newTestManager(t, &trace, "c", "b", "a")

	config := &types.RouteConfig{DisabledMiddlewares: []string{"b"}}
	for i := 0; i < 2; i++ {
		trace = trace[:0]
		m.Execute(newRequestCtx("GET", "/"), func(*types.RequestCtx) { trace = append(trace, "handler") }, config)
		assert.Equal(t, []string{"a", "c", "handler"}, trace)
	}
}

func TestManager_RegisterAfterFinalize(t *testing.T) {
	var trace []string
	m := newTestManager(t, &trace, "a")

	err := m.Register(&traceMiddleware{name: "late", weight: 5, trace: &trace})
	assert.ErrorIs(t, err, types.ErrMiddlewareFinalized)

	m.Clear()
	assert.NoError(t, m.Register(&traceMiddleware{name: "late", weight: 5, trace: &trace}))
}

func TestManager_DuplicateWeight(t *testing.T) {
	var trace []string
	m, err := NewManager(context.Background(), nil, logger.NewNop(), nil)
	require.NoError(t, err)

	require.NoError(t, m.Register(&traceMiddleware{name: "a", weight: 10, trace: &trace}))
	require.NoError(t, m.Register(&traceMiddleware{name: "b", weight: 10, trace: &trace}))
	assert.Error(t, m.Finalize())
}

func TestManager_ExecuteBeforeFinalize(t *testing.T) {
	m, err := NewManager(context.Background(), nil, logger.NewNop(), nil)
	require.NoError(t, err)

	called := false
	m.Execute(newRequestCtx("GET", "/"), func(*types.RequestCtx) { called = true }, nil)
	assert.True(t, called)
}

func TestManager_RegisterMiddlewaresFromConfig(t *testing.T) {
	config := &types.MiddlewaresConfig{
		Enabled:     true,
		Recovery:    &types.MiddlewareItemConfig{Enabled: true, Weight: 10},
		Logging:     &types.MiddlewareItemConfig{Enabled: true, Weight: 20},
		Compression: &types.MiddlewareItemConfig{Enabled: false, Weight: 90},
	}

	m, err := NewManager(context.Background(), config, logger.NewNop(), nil)
	require.NoError(t, err)
	require.NoError(t, m.RegisterMiddlewares())

	assert.Equal(t, []string{"recovery", "logging"}, m.Names())
}

func TestRecoveryMiddleware_Panic(t *testing.T) {
	mm, err := metrics.NewMemoryMetrics(logger.NewNop(), nil)
	require.NoError(t, err)

	r := NewRecoveryMiddleware(&types.MiddlewareItemConfig{Enabled: true, Params: map[string]interface{}{"stack_trace": true}}, logger.NewNop(), mm)
	ctx := newRequestCtx("GET", "/boom")

	r.Handle(ctx, func(*types.RequestCtx) { panic("boom") }, nil)

	assert.Equal(t, fasthttp.StatusInternalServerError, ctx.Response.StatusCode())
	assert.Equal(t, float64(1), mm.Counter("http_panics_total", map[string]string{"middleware": "recovery"}).Get())
}

func TestLoggingMiddleware_RequestID(t *testing.T) {
	l := NewLoggingMiddleware(nil, logger.NewNop(), nil)

	ctx := newRequestCtx("GET", "/")
	l.Handle(ctx, func(ctx *types.RequestCtx) { ctx.SetStatusCode(fasthttp.StatusOK) }, nil)
	generated := string(ctx.Response.Header.Peek(RequestIDHeader))
	assert.Len(t, generated, 36)

	ctx = newRequestCtx("GET", "/")
	ctx.Request.Header.Set(RequestIDHeader, "abc")
	l.Handle(ctx, func(*types.RequestCtx) {}, nil)
	assert.Equal(t, "abc", string(ctx.Response.Header.Peek(RequestIDHeader)))
}

func TestSanitizeHeaders(t *testing.T) {
	ctx := newRequestCtx("GET", "/")
	ctx.Request.Header.Set("Authorization", "secret")
	ctx.Request.Header.Set("Accept", "text/html")

	headers := sanitizeHeaders(ctx)
	assert.Equal(t, "[REDACTED]", headers["Authorization"])
	assert.Equal(t, "text/html", headers["Accept"])
}

func compressibleHandler(contentType string) func(*types.RequestCtx) {
	return func(ctx *types.RequestCtx) {
		ctx.SetContentType(contentType)
		ctx.SetBodyString(strings.Repeat("body { color: red; }\n", 200))
	}
}

func TestCompressionMiddleware_Brotli(t *testing.T) {
	c := NewCompressionMiddleware(&types.MiddlewareItemConfig{
		Enabled: true,
		Params:  map[string]interface{}{"algorithm": "brotli", "level": 4, "min_size": 1024},
	}, logger.NewNop(), nil)
	require.Equal(t, AlgorithmBrotli, c.Encoding())

	ctx := newRequestCtx("GET", "/site.css")
	ctx.Request.Header.Set("Accept-Encoding", "gzip, br")
	c.Handle(ctx, compressibleHandler("text/css"), nil)

	assert.Equal(t, "br", string(ctx.Response.Header.Peek("Content-Encoding")))
	assert.Equal(t, "Accept-Encoding", string(ctx.Response.Header.Peek("Vary")))

	plain, err := io.ReadAll(brotli.NewReader(bytes.NewReader(ctx.Response.Body())))
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("body { color: red; }\n", 200), string(plain))
}

func TestCompressionMiddleware_Gzip(t *testing.T) {
	c := NewCompressionMiddleware(&types.MiddlewareItemConfig{
		Enabled: true,
		Params:  map[string]interface{}{"algorithm": "gzip", "level": 6, "min_size": 16},
	}, logger.NewNop(), nil)

	ctx := newRequestCtx("GET", "/app.js")
	ctx.Request.Header.Set("Accept-Encoding", "gzip")
	ctx.Response.Header.Set("Vary", "Origin")
	c.Handle(ctx, compressibleHandler("application/javascript"), nil)

	require.Equal(t, "gzip", string(ctx.Response.Header.Peek("Content-Encoding")))
	assert.Equal(t, "Origin, Accept-Encoding", string(ctx.Response.Header.Peek("Vary")))

	reader, err := gzip.NewReader(bytes.NewReader(ctx.Response.Body()))
	require.NoError(t, err)
	plain, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Contains(t, string(plain), "color: red")
}

func TestCompressionMiddleware_Skips(t *testing.T) {
	c := NewCompressionMiddleware(&types.MiddlewareItemConfig{Enabled: true}, logger.NewNop(), nil)

	tests := []struct {
		name           string
		acceptEncoding string
		contentType    string
		preEncoded     bool
	}{
		{name: "no accept-encoding", contentType: "text/css"},
		{name: "refused by q=0", acceptEncoding: "br;q=0", contentType: "text/css"},
		{name: "binary type", acceptEncoding: "br", contentType: "image/png"},
		{name: "already encoded", acceptEncoding: "br", contentType: "text/css", preEncoded: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := newRequestCtx("GET", "/x")
			if tt.acceptEncoding != "" {
				ctx.Request.Header.Set("Accept-Encoding", tt.acceptEncoding)
			}

			c.Handle(ctx, func(ctx *types.RequestCtx) {
				compressibleHandler(tt.contentType)(ctx)
				if tt.preEncoded {
					ctx.Response.Header.SetContentEncoding("identity")
				}
			}, nil)

			assert.NotEqual(t, "br", string(ctx.Response.Header.Peek("Content-Encoding")))
			assert.Contains(t, string(ctx.Response.Body()), "color: red")
		})
	}
}

func TestCompressionMiddleware_BelowMinSize(t *testing.T) {
	c := NewCompressionMiddleware(&types.MiddlewareItemConfig{Enabled: true}, logger.NewNop(), nil)

	ctx := newRequestCtx("GET", "/x")
	ctx.Request.Header.Set("Accept-Encoding", "br")
	c.Handle(ctx, func(ctx *types.RequestCtx) {
		ctx.SetContentType("text/css")
		ctx.SetBodyString("a{}")
	}, nil)

	assert.Empty(t, ctx.Response.Header.Peek("Content-Encoding"))
	assert.Equal(t, "a{}", string(ctx.Response.Body()))
}
