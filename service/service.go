package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saiset-co/sai-assets/assets"
	"github.com/saiset-co/sai-assets/buildinfo"
	"github.com/saiset-co/sai-assets/config"
	"github.com/saiset-co/sai-assets/cron"
	"github.com/saiset-co/sai-assets/health"
	"github.com/saiset-co/sai-assets/logger"
	"github.com/saiset-co/sai-assets/metrics"
	"github.com/saiset-co/sai-assets/middleware"
	"github.com/saiset-co/sai-assets/sai"
	"github.com/saiset-co/sai-assets/server"
	"github.com/saiset-co/sai-assets/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

type Service struct {
	ctx             context.Context
	cancel          context.CancelFunc
	configPath      string
	done            chan struct{}
	wg              sync.WaitGroup
	state           atomic.Value
	shutdownTimeout time.Duration
	startTimeout    time.Duration
	container       *sai.Container
	build           *buildinfo.Info
}

func NewService(ctx context.Context, configPath string) (*Service, error) {
	if configPath == "" {
		return nil, types.ErrConfigInvalidPath
	}

	if _, err := os.Stat(configPath); err != nil {
		return nil, types.WrapError(err, "file does not exist")
	}

	serviceCtx, cancel := context.WithCancel(ctx)
	container := sai.InitContainer()

	service := &Service{
		ctx:             serviceCtx,
		cancel:          cancel,
		configPath:      configPath,
		container:       container,
		done:            make(chan struct{}),
		shutdownTimeout: 30 * time.Second,
		startTimeout:    60 * time.Second,
		build:           buildinfo.Read(),
	}

	service.state.Store(StateStopped)

	if err := registerProviders(serviceCtx, container, configPath, service.build); err != nil {
		cancel()
		return nil, types.WrapError(err, "failed to register providers")
	}

	sai.SetContainer(container)
	return service, nil
}

// Start brings every component up and blocks until the service is stopped
// by Stop, a signal or the parent context.
func (s *Service) Start() error {
	if !s.transitionState(StateStopped, StateStarting) {
		return types.ErrServiceIsRunning
	}

	var runErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				buf := make([]byte, 4096)
				n := runtime.Stack(buf, false)
				runErr = fmt.Errorf("service panic: %v", r)
				sai.Logger().Error("Service run panic", zap.String("stack", string(buf[:n])))
				s.setState(StateStopped)
			}
		}()

		runErr = s.run()
	}()

	return runErr
}

func (s *Service) run() error {
	sai.Logger().Info("Starting service", zap.String("build", s.build.String()))

	ctx, cancel := context.WithTimeout(s.ctx, s.startTimeout)
	defer cancel()

	if err := s.startComponents(ctx); err != nil {
		if stopErr := s.stopComponents(); stopErr != nil {
			sai.Logger().Error("Error during startup rollback", zap.Error(stopErr))
		}
		s.setState(StateStopped)
		return types.WrapError(err, "failed to start components")
	}

	s.setState(StateRunning)
	s.setupSignalHandling()

	s.wg.Add(1)
	go s.contextMonitor()

	sai.Logger().Info("Service started successfully")

	<-s.done

	if err := s.stopComponents(); err != nil {
		sai.Logger().Error("Error during service shutdown", zap.Error(err))
	}

	s.wg.Wait()
	s.setState(StateStopped)

	sai.Logger().Info("Service stopped gracefully")
	return nil
}

func (s *Service) Stop() error {
	if !s.transitionState(StateRunning, StateStopping) {
		return types.ErrServiceIsNotRunning
	}

	sai.Logger().Info("Stopping service...")
	s.cancel()

	return nil
}

func (s *Service) Done() <-chan struct{} {
	return s.done
}

func (s *Service) Context() context.Context {
	return s.ctx
}

func (s *Service) IsRunning() bool {
	return s.getState() == StateRunning
}

func (s *Service) getState() State {
	return s.state.Load().(State)
}

func (s *Service) setState(newState State) bool {
	currentState := s.getState()
	return s.state.CompareAndSwap(currentState, newState)
}

func (s *Service) transitionState(from, to State) bool {
	return s.state.CompareAndSwap(from, to)
}

func startIfStopped(manager types.LifecycleManager) error {
	if manager == nil || manager.IsRunning() {
		return nil
	}
	return manager.Start()
}

// startComponents starts the infrastructure in parallel, then the asset
// pipeline, then the HTTP server. A failed release build aborts startup.
func (s *Service) startComponents(ctx context.Context) error {
	if ptr := s.container.Config.Load(); ptr != nil {
		if err := startIfStopped((*ptr).(types.LifecycleManager)); err != nil {
			return types.WrapError(err, "failed to start config manager")
		}
	}

	if ptr := s.container.Logger.Load(); ptr != nil {
		if err := startIfStopped(*ptr); err != nil {
			return types.WrapError(err, "failed to start logger")
		}
	}

	g, gCtx := errgroup.WithContext(ctx)

	if ptr := s.container.Metrics.Load(); ptr != nil {
		manager := *ptr
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			if err := startIfStopped(manager); err != nil {
				sai.Logger().Error("Failed to start metrics manager", zap.Error(err))
			}
			return nil
		})
	}

	if ptr := s.container.Health.Load(); ptr != nil {
		manager := *ptr
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			if err := startIfStopped(manager); err != nil {
				sai.Logger().Error("Failed to start health manager", zap.Error(err))
			}
			return nil
		})
	}

	if ptr := s.container.Cron.Load(); ptr != nil {
		manager := *ptr
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			if err := startIfStopped(manager); err != nil {
				return types.WrapError(err, "failed to start cron manager")
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return types.NewErrorf("component startup timeout: %v", err)
		}
		return err
	}

	if ptr := s.container.Assets.Load(); ptr != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := (*ptr).Start(); err != nil {
			return types.WrapError(err, "failed to start assets manager")
		}
	}

	if ptr := s.container.HTTPServer.Load(); ptr != nil {
		if err := (*ptr).Start(); err != nil {
			return types.WrapError(err, "failed to start HTTP server")
		}
	}

	sai.Logger().Info("All components started successfully")
	return nil
}

func stopIfRunning(manager types.LifecycleManager, name string, errs *[]error, mu *sync.Mutex) {
	if manager == nil || !manager.IsRunning() {
		return
	}
	if err := manager.Stop(); err != nil {
		sai.Logger().Error("Failed to stop "+name, zap.Error(err))
		mu.Lock()
		*errs = append(*errs, err)
		mu.Unlock()
	}
}

// stopComponents stops in reverse start order: the server first so no
// request observes a stopped pipeline.
func (s *Service) stopComponents() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	var (
		stopErrs []error
		mu       sync.Mutex
	)

	sai.Logger().Info("Stopping service components...")

	if ptr := s.container.HTTPServer.Load(); ptr != nil {
		stopIfRunning(*ptr, "HTTP server", &stopErrs, &mu)
	}

	if ptr := s.container.Assets.Load(); ptr != nil {
		stopIfRunning(*ptr, "assets manager", &stopErrs, &mu)
	}

	var g errgroup.Group

	if ptr := s.container.Cron.Load(); ptr != nil {
		manager := *ptr
		g.Go(func() error {
			stopIfRunning(manager, "cron manager", &stopErrs, &mu)
			return nil
		})
	}

	if ptr := s.container.Health.Load(); ptr != nil {
		manager := *ptr
		g.Go(func() error {
			stopIfRunning(manager, "health manager", &stopErrs, &mu)
			return nil
		})
	}

	if ptr := s.container.Metrics.Load(); ptr != nil {
		manager := *ptr
		g.Go(func() error {
			stopIfRunning(manager, "metrics manager", &stopErrs, &mu)
			return nil
		})
	}

	waitDone := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(waitDone)
	}()

	select {
	case <-waitDone:
	case <-ctx.Done():
		sai.Logger().Warn("Component shutdown timeout, some components may not have stopped gracefully")
	}

	if ptr := s.container.Config.Load(); ptr != nil {
		stopIfRunning((*ptr).(types.LifecycleManager), "config manager", &stopErrs, &mu)
	}

	if len(stopErrs) > 0 {
		return errors.Join(stopErrs...)
	}

	sai.Logger().Info("All components stopped successfully")
	return nil
}

func (s *Service) setupSignalHandling() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			sai.Logger().Info("Received shutdown signal", zap.String("signal", sig.String()))
			if s.transitionState(StateRunning, StateStopping) {
				s.cancel()
			}
		case <-s.ctx.Done():
			sai.Logger().Info("Service context cancelled")
		}
	}()
}

func (s *Service) contextMonitor() {
	defer s.wg.Done()
	defer close(s.done)

	<-s.ctx.Done()

	switch err := s.ctx.Err(); {
	case types.IsError(err, context.Canceled):
		sai.Logger().Info("Service shutdown: context cancelled")
	case types.IsError(err, context.DeadlineExceeded):
		sai.Logger().Warn("Service shutdown: context deadline exceeded")
	default:
		sai.Logger().Info("Service shutdown: context done")
	}
}

func registerProviders(ctx context.Context, container *sai.Container, configPath string, build *buildinfo.Info) error {
	var (
		metricsManager    types.MetricsManager = metrics.Nop{}
		middlewareManager types.MiddlewareManager
		healthManager     *health.Manager
		cronManager       *cron.Manager
	)

	configManager, err := config.NewConfigurationManager(ctx, configPath)
	if err != nil {
		return types.WrapError(err, "failed to register config manager")
	}
	container.SetConfig(configManager)

	_config := configManager.GetConfig()

	loggerManager, err := logger.NewManager(ctx, configManager)
	if err != nil {
		return types.WrapError(err, "failed to register logger")
	}
	container.SetLogger(loggerManager)

	router := server.NewRouter()
	container.SetRouter(router)

	if _config.Metrics != nil && _config.Metrics.Enabled {
		manager, err := metrics.NewManager(ctx, configManager, loggerManager)
		if err != nil {
			return types.WrapError(err, "failed to register metrics manager")
		}
		manager.RegisterRoutes(router)
		metricsManager = manager
	}
	container.SetMetrics(metricsManager)

	if _config.Health != nil && _config.Health.Enabled {
		serviceInfo := types.ServiceInfo{Name: _config.Name, Version: _config.Version}
		if _config.Server != nil && _config.Server.HTTP != nil {
			serviceInfo.Host = _config.Server.HTTP.Host
			serviceInfo.Port = _config.Server.HTTP.Port
		}

		healthManager, err = health.NewManager(ctx, serviceInfo, build, loggerManager, router)
		if err != nil {
			return types.WrapError(err, "failed to register health manager")
		}
		container.SetHealth(healthManager)
	}

	if _config.Cron != nil && _config.Cron.Enabled {
		cronManager, err = cron.NewManager(ctx, _config.Cron, loggerManager, metricsManager)
		if err != nil {
			return types.WrapError(err, "failed to register cron manager")
		}
		container.SetCron(cronManager)
	}

	if _config.Middlewares != nil && _config.Middlewares.Enabled {
		manager, err := middleware.NewManager(ctx, _config.Middlewares, loggerManager, metricsManager)
		if err != nil {
			return types.WrapError(err, "failed to register middleware manager")
		}
		if err := manager.RegisterMiddlewares(); err != nil {
			return types.WrapError(err, "failed to register middlewares")
		}
		middlewareManager = manager
		container.SetMiddlewares(middlewareManager)
	}

	if _config.Server == nil || _config.Server.HTTP == nil {
		return types.Errorf(types.ErrConfigIsNil, "server.http")
	}

	httpServer, err := server.NewHTTPServer(ctx, _config.Server.HTTP, loggerManager, metricsManager, middlewareManager, router)
	if err != nil {
		return types.WrapError(err, "failed to register HTTP server")
	}
	container.SetHTTPServer(httpServer)

	if _config.Assets != nil && _config.Assets.Enabled {
		opts := []assets.Option{assets.WithBuildInfo(build)}
		if cronManager != nil {
			opts = append(opts, assets.WithCron(cronManager))
		}

		assetsManager, err := assets.NewManager(ctx, _config.Assets, loggerManager, metricsManager, opts...)
		if err != nil {
			return types.WrapError(err, "failed to register assets manager")
		}
		assetsManager.Install(httpServer.Pipelines())
		container.SetAssets(assetsManager)

		if healthManager != nil {
			healthManager.RegisterChecker("assets", assetsManager.Check)
		}
	}

	return nil
}
