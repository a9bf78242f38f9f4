package health

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saiset-co/sai-assets/buildinfo"
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

const defaultCheckTimeout = 5 * time.Second

type versionResponse struct {
	Service string          `json:"service"`
	Version string          `json:"version"`
	Build   *buildinfo.Info `json:"build"`
}

type Manager struct {
	ctx          context.Context
	cancel       context.CancelFunc
	service      types.ServiceInfo
	build        *buildinfo.Info
	logger       types.Logger
	router       types.HTTPRouter
	checkers     map[string]types.HealthChecker
	startTime    time.Time
	mu           sync.RWMutex
	state        atomic.Value
	checkTimeout time.Duration
}

func NewManager(ctx context.Context, service types.ServiceInfo, build *buildinfo.Info, logger types.Logger, router types.HTTPRouter) (*Manager, error) {
	managerCtx, cancel := context.WithCancel(ctx)

	if build == nil {
		build = buildinfo.Read()
	}

	manager := &Manager{
		ctx:          managerCtx,
		cancel:       cancel,
		service:      service,
		build:        build,
		logger:       logger,
		router:       router,
		checkers:     make(map[string]types.HealthChecker),
		checkTimeout: defaultCheckTimeout,
	}

	manager.state.Store(StateStopped)

	return manager, nil
}

func (hm *Manager) RegisterChecker(name string, checker types.HealthChecker) {
	if checker == nil {
		return
	}

	hm.mu.Lock()
	defer hm.mu.Unlock()

	hm.checkers[name] = checker
}

// Check runs every registered checker concurrently. A checker that panics or
// outlives the check timeout is reported unhealthy.
func (hm *Manager) Check(ctx context.Context) types.HealthReport {
	hm.mu.RLock()
	checkers := make(map[string]types.HealthChecker, len(hm.checkers))
	for name, checker := range hm.checkers {
		checkers[name] = checker
	}
	hm.mu.RUnlock()

	var g errgroup.Group
	results := make(map[string]types.HealthCheck, len(checkers))
	var resultMu sync.Mutex

	for name, checker := range checkers {
		name, checker := name, checker
		g.Go(func() error {
			result := hm.executeCheck(ctx, name, checker)

			resultMu.Lock()
			results[name] = result
			resultMu.Unlock()
			return nil
		})
	}

	_ = g.Wait()

	return hm.buildReport(results)
}

func (hm *Manager) Start() error {
	if !hm.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	hm.startTime = time.Now()
	hm.registerRoutes()
	hm.setState(StateRunning)

	hm.logger.Info("Health manager started")
	return nil
}

func (hm *Manager) Stop() error {
	if !hm.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	hm.cancel()
	hm.setState(StateStopped)

	hm.logger.Info("Health manager stopped gracefully")
	return nil
}

func (hm *Manager) IsRunning() bool {
	return hm.getState() == StateRunning
}

func (hm *Manager) getState() State {
	return hm.state.Load().(State)
}

func (hm *Manager) setState(newState State) bool {
	currentState := hm.getState()
	return hm.state.CompareAndSwap(currentState, newState)
}

func (hm *Manager) transitionState(from, to State) bool {
	return hm.state.CompareAndSwap(from, to)
}

func (hm *Manager) registerRoutes() {
	if hm.router == nil {
		return
	}

	hm.router.GET("/version", hm.handleVersion).WithoutMiddlewares("compression")
	hm.router.GET("/health", hm.handleHealth).WithoutMiddlewares("compression").WithTimeout(hm.checkTimeout + time.Second)
}

func (hm *Manager) handleVersion(ctx *types.RequestCtx) {
	hm.writeJSON(ctx, fasthttp.StatusOK, versionResponse{
		Service: hm.service.Name,
		Version: hm.service.Version,
		Build:   hm.build,
	})
}

func (hm *Manager) handleHealth(ctx *types.RequestCtx) {
	if !hm.IsRunning() {
		utils.CreateStatusResponse(ctx.RequestCtx, fasthttp.StatusServiceUnavailable, "Health manager is not running")
		return
	}

	report := hm.Check(ctx)

	status := fasthttp.StatusOK
	if report.Status == types.StatusUnhealthy {
		status = fasthttp.StatusServiceUnavailable
	}

	hm.writeJSON(ctx, status, report)
}

func (hm *Manager) writeJSON(ctx *types.RequestCtx, status int, value interface{}) {
	data, err := utils.Marshal(value)
	if err != nil {
		hm.logger.Error("Failed to encode health response", zap.Error(err))
		utils.CreateErrorResponse(ctx.RequestCtx)
		return
	}

	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.Response.Header.Set("Cache-Control", "no-cache")
	ctx.SetBody(data)
}

func (hm *Manager) executeCheck(ctx context.Context, name string, checker types.HealthChecker) types.HealthCheck {
	start := time.Now()

	checkCtx, cancel := context.WithTimeout(ctx, hm.checkTimeout)
	defer cancel()

	resultChan := make(chan types.HealthCheck, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultChan <- unhealthy(name, fmt.Sprintf("Health check panicked: %v", r), start)
			}
		}()

		result := checker(checkCtx)
		result.Name = name
		result.LastCheck = time.Now()
		result.Duration = time.Since(start)
		resultChan <- result
	}()

	select {
	case result := <-resultChan:
		return result
	case <-hm.ctx.Done():
		return unhealthy(name, "Health manager shutting down", start)
	case <-checkCtx.Done():
		return unhealthy(name, "Health check timeout", start)
	}
}

func unhealthy(name, message string, start time.Time) types.HealthCheck {
	return types.HealthCheck{
		Name:      name,
		Status:    types.StatusUnhealthy,
		Message:   message,
		LastCheck: time.Now(),
		Duration:  time.Since(start),
	}
}

func (hm *Manager) buildReport(results map[string]types.HealthCheck) types.HealthReport {
	summary := types.HealthSummary{Total: len(results)}

	overallStatus := types.StatusHealthy
	for _, result := range results {
		switch result.Status {
		case types.StatusHealthy:
			summary.Healthy++
		case types.StatusUnhealthy:
			summary.Unhealthy++
			overallStatus = types.StatusUnhealthy
		default:
			summary.Unknown++
			if overallStatus == types.StatusHealthy {
				overallStatus = types.StatusUnknown
			}
		}
	}

	uptime := time.Duration(0)
	if !hm.startTime.IsZero() {
		uptime = time.Since(hm.startTime)
	}

	return types.HealthReport{
		Status:    overallStatus,
		Timestamp: time.Now(),
		Uptime:    uptime,
		Service:   hm.service,
		Build:     hm.build.String(),
		Checks:    results,
		Summary:   summary,
	}
}
