package server

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-assets/types"
	"github.com/saiset-co/sai-assets/utils"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

const defaultShutdownTimeout = 5 * time.Second

type FastHTTPServer struct {
	ctx         context.Context
	cancel      context.CancelFunc
	httpConfig  *types.HTTPConfig
	logger      types.Logger
	metrics     types.MetricsManager
	middlewares types.MiddlewareManager
	router      *Router
	pipelines   *Pipelines
	server      *fasthttp.Server
	listener    net.Listener
	state       atomic.Value
}

func NewHTTPServer(
	ctx context.Context,
	httpConfig *types.HTTPConfig,
	logger types.Logger,
	metrics types.MetricsManager,
	middlewares types.MiddlewareManager,
	router *Router) (*FastHTTPServer, error) {
	if httpConfig == nil {
		return nil, types.ErrConfigIsNil
	}

	if router == nil {
		router = NewRouter()
	}

	serverCtx, cancel := context.WithCancel(ctx)

	server := &FastHTTPServer{
		ctx:         serverCtx,
		cancel:      cancel,
		httpConfig:  httpConfig,
		logger:      logger,
		metrics:     metrics,
		middlewares: middlewares,
		router:      router,
		pipelines:   NewPipelines(),
	}

	server.state.Store(StateStopped)

	return server, nil
}

func (h *FastHTTPServer) Pipelines() types.Pipelines {
	return h.pipelines
}

func (h *FastHTTPServer) Router() *Router {
	return h.router
}

// Addr returns the bound listener address, or nil before Start.
func (h *FastHTTPServer) Addr() net.Addr {
	if h.listener == nil {
		return nil
	}
	return h.listener.Addr()
}

func (h *FastHTTPServer) Start() error {
	if !h.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	h.server = &fasthttp.Server{
		Handler:         h.Handler(),
		Name:            "sai-assets",
		ReadTimeout:     time.Duration(h.httpConfig.ReadTimeout) * time.Second,
		WriteTimeout:    time.Duration(h.httpConfig.WriteTimeout) * time.Second,
		IdleTimeout:     time.Duration(h.httpConfig.IdleTimeout) * time.Second,
		TCPKeepalive:    true,
		CloseOnShutdown: true,
	}

	addr := fmt.Sprintf("%s:%d", h.httpConfig.Host, h.httpConfig.Port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		h.setState(StateStopped)
		return fmt.Errorf("%w: %w", types.ErrServerStartFailed, err)
	}
	h.listener = listener

	go func() {
		if err := h.server.Serve(listener); err != nil {
			h.logger.Error("HTTP server failed", zap.Error(err))
			h.setState(StateStopped)
		}
	}()

	h.setState(StateRunning)

	h.logger.Info("HTTP server started successfully", zap.String("address", listener.Addr().String()))

	return nil
}

func (h *FastHTTPServer) Stop() error {
	if !h.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	defer func() {
		h.setState(StateStopped)
		h.cancel()
	}()

	timeout := defaultShutdownTimeout
	if h.httpConfig.ShutdownTimeout > 0 {
		timeout = time.Duration(h.httpConfig.ShutdownTimeout) * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := h.server.ShutdownWithContext(ctx); err != nil {
		h.logger.Warn("Server stop timeout, some connections may not have closed gracefully", zap.Error(err))
		return fmt.Errorf("%w: %w", types.ErrServerStopFailed, err)
	}

	h.logger.Info("HTTP server stopped gracefully")

	return nil
}

func (h *FastHTTPServer) IsRunning() bool {
	return h.getState() == StateRunning
}

func (h *FastHTTPServer) getState() State {
	return h.state.Load().(State)
}

func (h *FastHTTPServer) setState(newState State) bool {
	currentState := h.getState()
	return h.state.CompareAndSwap(currentState, newState)
}

func (h *FastHTTPServer) transitionState(from, to State) bool {
	return h.state.CompareAndSwap(from, to)
}

// Handler returns the request handler. Middlewares wrap the whole dispatch:
// before hooks, then the route, then after hooks.
func (h *FastHTTPServer) Handler() fasthttp.RequestHandler {
	return func(fctx *fasthttp.RequestCtx) {
		handler, config, params := h.router.Lookup(utils.BytesToString(fctx.Method()), string(fctx.Path()))
		if params != nil {
			fctx.SetUserValue(RouteParamsKey, params)
		}

		serve := func(fctx *fasthttp.RequestCtx) {
			ctx := &types.RequestCtx{RequestCtx: fctx}
			dispatch := h.dispatch(handler)

			if h.middlewares != nil {
				h.middlewares.Execute(ctx, dispatch, config)
				return
			}
			dispatch(ctx)
		}

		if config != nil && config.Timeout > 0 {
			fasthttp.TimeoutHandler(serve, config.Timeout, "Request timeout")(fctx)
			return
		}

		serve(fctx)
	}
}

func (h *FastHTTPServer) dispatch(handler types.FastHTTPHandler) types.FastHTTPHandler {
	return func(ctx *types.RequestCtx) {
		handled, name, err := h.pipelines.runBefore(ctx)
		if err != nil {
			h.hookFailed(ctx, "before", name, err)
		}

		if !handled {
			if handler != nil {
				handler(ctx)
			} else {
				utils.CreateNotFoundResponse(ctx.RequestCtx)
			}
		}

		if name, err := h.pipelines.runAfter(ctx); err != nil {
			h.hookFailed(ctx, "after", name, err)
		}
	}
}

func (h *FastHTTPServer) hookFailed(ctx *types.RequestCtx, stage, name string, err error) {
	h.logger.Error("Pipeline hook failed",
		zap.String("stage", stage),
		zap.String("hook", name),
		zap.ByteString("path", ctx.Path()),
		zap.Error(err))

	if h.metrics != nil {
		h.metrics.Counter("http_hook_errors_total", map[string]string{"stage": stage, "hook": name}).Inc()
	}

	utils.CreateErrorResponse(ctx.RequestCtx)
}
