package types

type MiddlewareManager interface {
	RegisterMiddlewares() error
	Register(middleware Middleware) error
	Execute(ctx *RequestCtx, handler FastHTTPHandler, config *RouteConfig)
	Clear()
}

type Middleware interface {
	Handle(ctx *RequestCtx, next func(*RequestCtx), config *RouteConfig)
	Name() string
	Weight() int
}

type MiddlewareEntry struct {
	Name       string
	Middleware Middleware
	Weight     int
}
