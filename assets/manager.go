package assets

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-assets/buildinfo"
	"github.com/saiset-co/sai-assets/cache"
	"github.com/saiset-co/sai-assets/engine"
	"github.com/saiset-co/sai-assets/sourcetree"
	"github.com/saiset-co/sai-assets/types"
)

const hookName = "assets"

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

type managerOptions struct {
	engine   types.BundleEngine
	cache    types.CacheManager
	info     *buildinfo.Info
	rootPath string
	optimize *bool
	cron     types.CronManager
}

type Option func(*managerOptions)

func WithEngine(e types.BundleEngine) Option {
	return func(o *managerOptions) { o.engine = e }
}

// WithCache supplies an already started cache store. The manager does not
// start or stop it.
func WithCache(c types.CacheManager) Option {
	return func(o *managerOptions) { o.cache = c }
}

func WithBuildInfo(info *buildinfo.Info) Option {
	return func(o *managerOptions) { o.info = info }
}

// WithRootPath overrides assets.root_path from config.
func WithRootPath(rootPath string) Option {
	return func(o *managerOptions) { o.rootPath = rootPath }
}

// WithOptimize forces the optimize flag regardless of config and build mode.
func WithOptimize(optimize bool) Option {
	return func(o *managerOptions) { o.optimize = &optimize }
}

// WithCron lets the manager watch sources from a background job instead of
// probing on the request path.
func WithCron(c types.CronManager) Option {
	return func(o *managerOptions) { o.cron = c }
}

// Manager wires the asset pipeline into a service: it owns the source tree,
// the cache store, the container and the two request hooks.
type Manager struct {
	ctx         context.Context
	cancel      context.CancelFunc
	config      *types.AssetsConfig
	logger      types.Logger
	metrics     types.MetricsManager
	cache       types.CacheManager
	ownsCache   bool
	configs     []types.BundleConfiguration
	version     string
	mode        string
	optimize    bool
	urls        *engine.URLPolicy
	builder     *Builder
	container   types.ApplicationContainer
	interceptor *Interceptor
	rewriter    *Rewriter
	watcher     *sourcetree.Watcher
	state       atomic.Value
}

func NewManager(ctx context.Context, config *types.AssetsConfig, logger types.Logger, metrics types.MetricsManager, opts ...Option) (*Manager, error) {
	if config == nil || !config.Enabled {
		return nil, types.ErrAssetsIsDisabled
	}

	options := &managerOptions{}
	for _, opt := range opts {
		opt(options)
	}

	if options.info == nil {
		options.info = buildinfo.Read()
	}
	if options.engine == nil {
		options.engine = engine.New(logger)
	}

	tree, err := sourcetree.NewDirectory(config.Root)
	if err != nil {
		return nil, err
	}

	configs := Configurations(config, options.info)

	rootPath := config.RootPath
	if options.rootPath != "" {
		rootPath = options.rootPath
	}

	mode := ResolveBuildMode(config, options.info)
	optimize := ResolveOptimize(config, options.info)
	if options.optimize != nil {
		optimize = *options.optimize
	}

	managerCtx, cancel := context.WithCancel(ctx)

	m := &Manager{
		ctx:      managerCtx,
		cancel:   cancel,
		config:   config,
		logger:   logger,
		metrics:  metrics,
		configs:  configs,
		version:  ComputeVersion(configs),
		mode:     mode,
		optimize: optimize,
		urls:     engine.NewURLPolicy(config.Prefix),
	}

	m.cache = options.cache
	if m.cache == nil && config.Cache != nil && config.Cache.Enabled {
		store, err := cache.NewCacheManager(managerCtx, config.Cache, logger, metrics)
		if err != nil {
			logger.Warn("Bundle cache unavailable, building from source only",
				zap.String("type", config.Cache.Type),
				zap.Error(err))
		} else {
			m.cache = store
			m.ownsCache = true
		}
	}

	m.builder = NewBuilder(options.engine, types.BuildParams{
		Configs:  configs,
		Source:   tree,
		Cache:    m.cache,
		URLs:     m.urls,
		Optimize: optimize,
		Version:  m.version,
		RootPath: rootPath,
		Logger:   logger,
	}, config.AllowEmpty, metrics)

	containerOpts := []ContainerOption{WithContainerLogger(logger)}
	if !optimize && options.cron == nil {
		tracker := sourcetree.NewTracker(tree)
		containerOpts = append(containerOpts,
			WithStalenessCheck(tracker.Changed),
			WithProbeInterval(config.WatchInterval))
	}

	m.container = NewContainer(optimize, m.builder.Build, containerOpts...)

	if !optimize && options.cron != nil {
		m.watcher = sourcetree.NewWatcher(tree, m.container, options.cron, logger, config.WatchInterval)
	}

	m.interceptor = NewInterceptor(m.container, m.urls, logger, metrics)
	m.rewriter = NewRewriter(m.container, logger)

	m.state.Store(StateStopped)

	return m, nil
}

// Configurations returns the bundle configurations declared in config, in
// declaration order. A bundle without a version takes the binary version
// from info.
func Configurations(config *types.AssetsConfig, info *buildinfo.Info) []types.BundleConfiguration {
	if config == nil {
		return nil
	}

	configs := make([]types.BundleConfiguration, 0, len(config.Bundles))
	for _, b := range config.Bundles {
		if b.Version == "" && info != nil {
			b.Version = info.Version
		}
		configs = append(configs, b)
	}
	return configs
}

func (m *Manager) Start() error {
	if !m.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	if m.ownsCache {
		if err := m.cache.Start(); err != nil {
			m.logger.Warn("Bundle cache failed to start, building from source only", zap.Error(err))
		}
	}

	if m.optimize {
		if _, err := m.container.Current(m.ctx); err != nil {
			m.stopCache()
			m.setState(StateStopped)
			return err
		}
	}

	if m.watcher != nil {
		if err := m.watcher.Start(); err != nil {
			m.logger.Warn("Source watcher unavailable", zap.Error(err))
		}
	}

	m.setState(StateRunning)

	m.logger.Info("Assets manager started",
		zap.String("version", m.version),
		zap.String("build_mode", m.mode),
		zap.Bool("optimize", m.optimize),
		zap.String("container", m.container.Mode()),
		zap.String("prefix", m.urls.Prefix()))

	return nil
}

func (m *Manager) Stop() error {
	if !m.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	defer m.setState(StateStopped)

	if m.watcher != nil {
		if err := m.watcher.Stop(); err != nil {
			m.logger.Debug("Source watcher already removed", zap.Error(err))
		}
	}

	m.stopCache()
	m.cancel()

	m.logger.Info("Assets manager stopped")
	return nil
}

func (m *Manager) IsRunning() bool {
	return m.getState() == StateRunning
}

// Install registers the interceptor ahead of every other before hook and the
// rewriter after every other after hook.
func (m *Manager) Install(pipelines types.Pipelines) {
	pipelines.AddBeforeToStart(hookName, m.interceptor.TryHandle)
	pipelines.AddAfterToEnd(hookName, m.rewriter.Rewrite)
}

func (m *Manager) Current(ctx context.Context) (types.Application, error) {
	return m.container.Current(ctx)
}

func (m *Manager) Container() types.ApplicationContainer { return m.container }

func (m *Manager) Version() string { return m.version }

func (m *Manager) Optimize() bool { return m.optimize }

func (m *Manager) BuildMode() string { return m.mode }

func (m *Manager) Configurations() []types.BundleConfiguration {
	out := make([]types.BundleConfiguration, len(m.configs))
	copy(out, m.configs)
	return out
}

// Check reports whether the current application can be obtained.
func (m *Manager) Check(ctx context.Context) types.HealthCheck {
	start := time.Now()
	check := types.HealthCheck{
		Name:      hookName,
		LastCheck: start,
		Details: map[string]interface{}{
			"version":   m.version,
			"optimize":  m.optimize,
			"container": m.container.Mode(),
		},
	}

	app, err := m.container.Current(ctx)
	check.Duration = time.Since(start)
	if err != nil {
		check.Status = types.StatusUnhealthy
		check.Message = err.Error()
		return check
	}

	check.Status = types.StatusHealthy
	check.Details["bundles"] = len(app.Bundles())
	check.Details["built_at"] = app.BuiltAt()
	return check
}

func (m *Manager) stopCache() {
	if !m.ownsCache || m.cache == nil || !m.cache.IsRunning() {
		return
	}
	if err := m.cache.Stop(); err != nil {
		m.logger.Warn("Bundle cache stop failed", zap.Error(err))
	}
}

func (m *Manager) getState() State {
	return m.state.Load().(State)
}

func (m *Manager) setState(newState State) bool {
	currentState := m.getState()
	return m.state.CompareAndSwap(currentState, newState)
}

func (m *Manager) transitionState(from, to State) bool {
	return m.state.CompareAndSwap(from, to)
}
