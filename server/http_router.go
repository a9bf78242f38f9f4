package server

import (
	"sort"
	"strings"
	"sync"

	"github.com/saiset-co/sai-assets/types"
	"github.com/saiset-co/sai-assets/utils"
)

// RouteParamsKey is the user value key holding the path parameters of the
// matched route.
const RouteParamsKey = "route_params"

var supportedMethods = map[string]struct{}{
	"GET":     {},
	"HEAD":    {},
	"POST":    {},
	"PUT":     {},
	"DELETE":  {},
	"PATCH":   {},
	"OPTIONS": {},
}

type compiledRoute struct {
	method     string
	pattern    string
	segments   []string
	paramNames map[int]string
	info       *types.RouteInfo
}

// Router keeps exact routes in a map and parameterized routes in
// registration order. A route parameter is written as {name} or :name.
type Router struct {
	mu      sync.RWMutex
	static  map[string]*types.RouteInfo
	dynamic []*compiledRoute
}

func NewRouter() *Router {
	return &Router{
		static: make(map[string]*types.RouteInfo),
	}
}

func (r *Router) Add(method, path string, handler types.FastHTTPHandler, config *types.RouteConfig) {
	method = strings.ToUpper(method)
	if _, ok := supportedMethods[method]; !ok || handler == nil {
		return
	}

	if config == nil {
		config = &types.RouteConfig{}
	}

	path = utils.NormalizePath(path)
	info := &types.RouteInfo{Handler: handler, Config: config}

	r.mu.Lock()
	defer r.mu.Unlock()

	segments := splitPath(path)
	paramNames := make(map[int]string)
	for i, segment := range segments {
		if name, ok := paramName(segment); ok {
			paramNames[i] = name
		}
	}

	if len(paramNames) == 0 {
		r.static[method+":"+path] = info
		return
	}

	r.dynamic = append(r.dynamic, &compiledRoute{
		method:     method,
		pattern:    path,
		segments:   segments,
		paramNames: paramNames,
		info:       info,
	})
}

// Lookup finds the route for method and path. HEAD falls back to the GET
// route when no HEAD route is registered.
func (r *Router) Lookup(method, path string) (types.FastHTTPHandler, *types.RouteConfig, map[string]string) {
	path = utils.NormalizePath(path)

	r.mu.RLock()
	defer r.mu.RUnlock()

	handler, config, params := r.lookup(method, path)
	if handler == nil && method == "HEAD" {
		return r.lookup("GET", path)
	}

	return handler, config, params
}

func (r *Router) lookup(method, path string) (types.FastHTTPHandler, *types.RouteConfig, map[string]string) {
	if info, ok := r.static[method+":"+path]; ok {
		return info.Handler, info.Config, nil
	}

	segments := splitPath(path)
	for _, route := range r.dynamic {
		if route.method != method || len(route.segments) != len(segments) {
			continue
		}
		if params, ok := route.match(segments); ok {
			return route.info.Handler, route.info.Config, params
		}
	}

	return nil, nil, nil
}

func (cr *compiledRoute) match(segments []string) (map[string]string, bool) {
	params := make(map[string]string, len(cr.paramNames))

	for i, segment := range cr.segments {
		if name, ok := cr.paramNames[i]; ok {
			if segments[i] == "" {
				return nil, false
			}
			params[name] = segments[i]
			continue
		}
		if segment != segments[i] {
			return nil, false
		}
	}

	return params, true
}

func (r *Router) Group(prefix string) types.GroupBuilder {
	return &GroupBuilder{
		router: r,
		prefix: strings.TrimSuffix(prefix, "/"),
		config: &types.RouteConfig{},
	}
}

func (r *Router) Route(method, path string, handler types.FastHTTPHandler) types.RouteBuilder {
	return r.route(method, path, handler, nil)
}

func (r *Router) route(method, path string, handler types.FastHTTPHandler, group *GroupBuilder) *RouteBuilder {
	config := &types.RouteConfig{}
	if group != nil {
		config.Timeout = group.config.Timeout
		config.Middlewares = append(config.Middlewares, group.config.Middlewares...)
		config.DisabledMiddlewares = append(config.DisabledMiddlewares, group.config.DisabledMiddlewares...)
	}

	r.Add(method, path, handler, config)

	return &RouteBuilder{config: config}
}

func (r *Router) GET(path string, handler types.FastHTTPHandler) types.RouteBuilder {
	return r.Route("GET", path, handler)
}

func (r *Router) HEAD(path string, handler types.FastHTTPHandler) types.RouteBuilder {
	return r.Route("HEAD", path, handler)
}

func (r *Router) POST(path string, handler types.FastHTTPHandler) types.RouteBuilder {
	return r.Route("POST", path, handler)
}

func (r *Router) PUT(path string, handler types.FastHTTPHandler) types.RouteBuilder {
	return r.Route("PUT", path, handler)
}

func (r *Router) DELETE(path string, handler types.FastHTTPHandler) types.RouteBuilder {
	return r.Route("DELETE", path, handler)
}

func (r *Router) GetAllRoutes() map[string]*types.RouteInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	routes := make(map[string]*types.RouteInfo, len(r.static)+len(r.dynamic))
	for key, info := range r.static {
		routes[key] = info
	}
	for _, route := range r.dynamic {
		routes[route.method+":"+route.pattern] = route.info
	}

	return routes
}

// Keys returns the registered route keys, sorted.
func (r *Router) Keys() []string {
	routes := r.GetAllRoutes()
	keys := make([]string, 0, len(routes))
	for key := range routes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func paramName(segment string) (string, bool) {
	switch {
	case len(segment) > 2 && segment[0] == '{' && segment[len(segment)-1] == '}':
		return segment[1 : len(segment)-1], true
	case len(segment) > 1 && segment[0] == ':':
		return segment[1:], true
	}
	return "", false
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
