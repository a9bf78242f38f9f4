package types

import (
	"time"

	"github.com/valyala/fasthttp"
)

// RequestCtx is the per-request value handed to handlers, middlewares and
// pipeline hooks.
type RequestCtx struct {
	*fasthttp.RequestCtx
}

type FastHTTPHandler func(ctx *RequestCtx)

type HTTPServer interface {
	LifecycleManager
	Pipelines() Pipelines
	Handler() fasthttp.RequestHandler
}

type HTTPRouter interface {
	Add(method, path string, handler FastHTTPHandler, config *RouteConfig)
	Group(prefix string) GroupBuilder
	GET(path string, handler FastHTTPHandler) RouteBuilder
	HEAD(path string, handler FastHTTPHandler) RouteBuilder
	POST(path string, handler FastHTTPHandler) RouteBuilder
	PUT(path string, handler FastHTTPHandler) RouteBuilder
	DELETE(path string, handler FastHTTPHandler) RouteBuilder
	GetAllRoutes() map[string]*RouteInfo
}

type RouteBuilder interface {
	WithMiddlewares(names ...string) RouteBuilder
	WithoutMiddlewares(names ...string) RouteBuilder
	WithTimeout(duration time.Duration) RouteBuilder
}

type GroupBuilder interface {
	WithMiddlewares(names ...string) GroupBuilder
	WithoutMiddlewares(names ...string) GroupBuilder
	WithTimeout(duration time.Duration) GroupBuilder
	Route(method, path string, handler FastHTTPHandler) RouteBuilder
	GET(path string, handler FastHTTPHandler) RouteBuilder
	POST(path string, handler FastHTTPHandler) RouteBuilder
	PUT(path string, handler FastHTTPHandler) RouteBuilder
	DELETE(path string, handler FastHTTPHandler) RouteBuilder
	Group(prefix string) GroupBuilder
}

type RouteConfig struct {
	Middlewares         []string
	DisabledMiddlewares []string
	Timeout             time.Duration
}

type RouteInfo struct {
	Handler FastHTTPHandler
	Config  *RouteConfig
}

// BeforeHook runs ahead of routing. Returning true marks the request as
// handled and skips routing and the remaining before hooks.
type BeforeHook func(ctx *RequestCtx) (bool, error)

// AfterHook runs once a response has been produced.
type AfterHook func(ctx *RequestCtx) error

// Pipelines exposes the ordered hook lists that wrap route dispatch.
type Pipelines interface {
	AddBeforeToStart(name string, hook BeforeHook)
	AddBeforeToEnd(name string, hook BeforeHook)
	AddAfterToStart(name string, hook AfterHook)
	AddAfterToEnd(name string, hook AfterHook)
}
