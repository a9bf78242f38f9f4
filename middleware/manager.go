package middleware

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-assets/types"
)

const MaxMiddlewares = 64

type chainFunc func(*types.RequestCtx, types.FastHTTPHandler, *types.RouteConfig)

// Manager orders middlewares by weight and runs the subset enabled for a
// route. Registration closes on the first Finalize.
type Manager struct {
	ctx                context.Context
	config             *types.MiddlewaresConfig
	logger             types.Logger
	metrics            types.MetricsManager
	registered         map[string]types.Middleware
	orderedMiddlewares []types.MiddlewareEntry
	nameToIndex        map[string]int
	defaultEnabledMask uint64
	maskCache          sync.Map
	compiledChains     sync.Map
	mu                 sync.Mutex
	initialized        int32
}

func NewManager(ctx context.Context, config *types.MiddlewaresConfig, logger types.Logger, metrics types.MetricsManager) (*Manager, error) {
	return &Manager{
		ctx:         ctx,
		config:      config,
		logger:      logger,
		metrics:     metrics,
		registered:  make(map[string]types.Middleware),
		nameToIndex: make(map[string]int),
	}, nil
}

// RegisterMiddlewares registers the built-in middlewares enabled in config
// and finalizes the chain.
func (m *Manager) RegisterMiddlewares() error {
	if m.config == nil || !m.config.Enabled {
		return m.Finalize()
	}

	if item := m.config.Recovery; item != nil && item.Enabled {
		if err := m.Register(NewRecoveryMiddleware(item, m.logger, m.metrics)); err != nil {
			return err
		}
	}

	if item := m.config.Logging; item != nil && item.Enabled {
		if err := m.Register(NewLoggingMiddleware(item, m.logger, m.metrics)); err != nil {
			return err
		}
	}

	if item := m.config.Compression; item != nil && item.Enabled {
		if err := m.Register(NewCompressionMiddleware(item, m.logger, m.metrics)); err != nil {
			return err
		}
	}

	return m.Finalize()
}

func (m *Manager) Register(middleware types.Middleware) error {
	if middleware == nil {
		return types.ErrMiddlewareInvalidType
	}

	if atomic.LoadInt32(&m.initialized) == 1 {
		return types.ErrMiddlewareFinalized
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.registered) >= MaxMiddlewares {
		return types.NewErrorf("maximum middleware count exceeded: %d", MaxMiddlewares)
	}

	m.registered[middleware.Name()] = middleware
	m.logger.Debug("Middleware registered",
		zap.String("name", middleware.Name()),
		zap.Int("weight", middleware.Weight()))

	return nil
}

// Finalize fixes the middleware order. Two middlewares with the same weight
// are rejected.
func (m *Manager) Finalize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if atomic.LoadInt32(&m.initialized) == 1 {
		return types.ErrMiddlewareFinalized
	}

	weights := make(map[int]string, len(m.registered))
	ordered := make([]types.MiddlewareEntry, 0, len(m.registered))

	for name, mw := range m.registered {
		if existing, exists := weights[mw.Weight()]; exists {
			return types.NewErrorf("duplicate weight %d for middlewares '%s' and '%s'", mw.Weight(), existing, name)
		}
		weights[mw.Weight()] = name
		ordered = append(ordered, types.MiddlewareEntry{Name: name, Middleware: mw, Weight: mw.Weight()})
	}

	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Weight < ordered[j].Weight })

	m.orderedMiddlewares = ordered
	m.nameToIndex = make(map[string]int, len(ordered))
	m.defaultEnabledMask = 0
	for i, entry := range ordered {
		m.nameToIndex[entry.Name] = i
		m.defaultEnabledMask |= 1 << uint(i)
	}

	atomic.StoreInt32(&m.initialized, 1)

	names := make([]string, 0, len(ordered))
	for _, entry := range ordered {
		names = append(names, entry.Name)
	}
	m.logger.Info("Middleware chain finalized", zap.Strings("order", names))

	return nil
}

func (m *Manager) Execute(ctx *types.RequestCtx, handler types.FastHTTPHandler, config *types.RouteConfig) {
	if atomic.LoadInt32(&m.initialized) == 0 {
		handler(ctx)
		return
	}

	mask := m.routeMask(config)
	if mask == 0 {
		handler(ctx)
		return
	}

	m.chain(mask)(ctx, handler, config)
}

func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.registered = make(map[string]types.Middleware)
	m.orderedMiddlewares = nil
	m.nameToIndex = make(map[string]int)
	m.defaultEnabledMask = 0
	m.maskCache = sync.Map{}
	m.compiledChains = sync.Map{}

	atomic.StoreInt32(&m.initialized, 0)

	m.logger.Info("Middleware manager cleared")
}

// Names returns the finalized middleware names in execution order.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.orderedMiddlewares))
	for _, entry := range m.orderedMiddlewares {
		names = append(names, entry.Name)
	}
	return names
}

func (m *Manager) routeMask(config *types.RouteConfig) uint64 {
	if config == nil || (len(config.Middlewares) == 0 && len(config.DisabledMiddlewares) == 0) {
		return m.defaultEnabledMask
	}

	key := strings.Join(config.Middlewares, ",") + "|" + strings.Join(config.DisabledMiddlewares, ",")
	if cached, ok := m.maskCache.Load(key); ok {
		return cached.(uint64)
	}

	mask := m.defaultEnabledMask
	for _, name := range config.Middlewares {
		if index, exists := m.nameToIndex[name]; exists {
			mask |= 1 << uint(index)
		}
	}
	for _, name := range config.DisabledMiddlewares {
		if index, exists := m.nameToIndex[name]; exists {
			mask &^= 1 << uint(index)
		}
	}

	m.maskCache.Store(key, mask)
	return mask
}

func (m *Manager) chain(mask uint64) chainFunc {
	if compiled, ok := m.compiledChains.Load(mask); ok {
		return compiled.(chainFunc)
	}

	active := make([]types.Middleware, 0, len(m.orderedMiddlewares))
	for i, entry := range m.orderedMiddlewares {
		if mask&(1<<uint(i)) != 0 {
			active = append(active, entry.Middleware)
		}
	}

	compiled := compileChain(active)
	actual, _ := m.compiledChains.LoadOrStore(mask, compiled)
	return actual.(chainFunc)
}

func compileChain(middlewares []types.Middleware) chainFunc {
	return func(ctx *types.RequestCtx, handler types.FastHTTPHandler, config *types.RouteConfig) {
		var index int

		var next func(*types.RequestCtx)
		next = func(ctx *types.RequestCtx) {
			if index >= len(middlewares) {
				handler(ctx)
				return
			}

			mw := middlewares[index]
			index++
			mw.Handle(ctx, next, config)
		}

		next(ctx)
	}
}
