package server

import (
	"time"

	"github.com/saiset-co/sai-assets/types"
)

// GroupBuilder registers routes under a shared prefix. Settings apply to
// routes added after they are set.
type GroupBuilder struct {
	router *Router
	prefix string
	config *types.RouteConfig
}

func (gb *GroupBuilder) WithMiddlewares(names ...string) types.GroupBuilder {
	gb.config.Middlewares = append(gb.config.Middlewares, names...)
	return gb
}

func (gb *GroupBuilder) WithoutMiddlewares(names ...string) types.GroupBuilder {
	gb.config.DisabledMiddlewares = append(gb.config.DisabledMiddlewares, names...)
	return gb
}

func (gb *GroupBuilder) WithTimeout(duration time.Duration) types.GroupBuilder {
	gb.config.Timeout = duration
	return gb
}

func (gb *GroupBuilder) Route(method, path string, handler types.FastHTTPHandler) types.RouteBuilder {
	return gb.router.route(method, gb.prefix+path, handler, gb)
}

func (gb *GroupBuilder) GET(path string, handler types.FastHTTPHandler) types.RouteBuilder {
	return gb.Route("GET", path, handler)
}

func (gb *GroupBuilder) POST(path string, handler types.FastHTTPHandler) types.RouteBuilder {
	return gb.Route("POST", path, handler)
}

func (gb *GroupBuilder) PUT(path string, handler types.FastHTTPHandler) types.RouteBuilder {
	return gb.Route("PUT", path, handler)
}

func (gb *GroupBuilder) DELETE(path string, handler types.FastHTTPHandler) types.RouteBuilder {
	return gb.Route("DELETE", path, handler)
}

func (gb *GroupBuilder) Group(prefix string) types.GroupBuilder {
	child := &GroupBuilder{
		router: gb.router,
		prefix: gb.prefix + prefix,
		config: &types.RouteConfig{
			Timeout:             gb.config.Timeout,
			Middlewares:         append([]string(nil), gb.config.Middlewares...),
			DisabledMiddlewares: append([]string(nil), gb.config.DisabledMiddlewares...),
		},
	}
	return child
}
