package metrics

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-assets/types"
)

type ManagerState int32

const (
	ManagerStateStopped ManagerState = iota
	ManagerStateStarting
	ManagerStateRunning
	ManagerStateStopping
)

type Manager struct {
	ctx     context.Context
	cancel  context.CancelFunc
	logger  types.Logger
	manager types.MetricsManager
	state   atomic.Value
}

var customMetricsCreators = sync.Map{}

func RegisterMetricsManager(metricsManagerName string, creator types.MetricsManagerCreator) {
	customMetricsCreators.Store(metricsManagerName, creator)
}

func NewManager(ctx context.Context, config types.ConfigManager, logger types.Logger) (*Manager, error) {
	metricsConfig := config.GetConfig().Metrics
	if metricsConfig == nil || !metricsConfig.Enabled {
		return nil, types.ErrMetricsIsDisabled
	}

	managerCtx, cancel := context.WithCancel(ctx)

	wrapper := &Manager{
		ctx:    managerCtx,
		cancel: cancel,
		logger: logger,
	}

	wrapper.state.Store(ManagerStateStopped)

	if err := wrapper.initializeManager(metricsConfig); err != nil {
		cancel()
		return nil, types.WrapError(err, "failed to initialize metrics manager")
	}

	return wrapper, nil
}

// NewFromBackend wraps an already constructed backend.
func NewFromBackend(ctx context.Context, logger types.Logger, backend types.MetricsManager) *Manager {
	managerCtx, cancel := context.WithCancel(ctx)

	wrapper := &Manager{
		ctx:     managerCtx,
		cancel:  cancel,
		logger:  logger,
		manager: backend,
	}
	wrapper.state.Store(ManagerStateStopped)
	return wrapper
}

func (w *Manager) initializeManager(metricsConfig *types.MetricsConfig) error {
	metricsManagerName := metricsConfig.Type

	var manager types.MetricsManager
	var err error

	switch metricsManagerName {
	case "memory":
		manager, err = NewMemoryMetrics(w.logger, metricsConfig)
	case "prometheus":
		manager, err = NewPrometheusMetrics(w.logger, metricsConfig)
	default:
		creator, exists := customMetricsCreators.Load(metricsManagerName)
		if !exists {
			return types.Errorf(types.ErrMetricsTypeUnknown, "type: %s", metricsManagerName)
		}
		manager, err = creator.(types.MetricsManagerCreator)(metricsConfig)
	}

	if err != nil {
		return err
	}

	w.manager = manager
	w.logger.Info("Metrics manager initialized", zap.String("type", metricsManagerName))
	return nil
}

func (w *Manager) Start() error {
	if !w.transitionState(ManagerStateStopped, ManagerStateStarting) {
		return types.ErrServerAlreadyRunning
	}

	if err := w.manager.Start(); err != nil {
		w.setState(ManagerStateStopped)
		return types.WrapError(err, "failed to start metrics manager")
	}

	w.setState(ManagerStateRunning)
	w.logger.Info("Metrics manager started successfully")
	return nil
}

func (w *Manager) Stop() error {
	if !w.transitionState(ManagerStateRunning, ManagerStateStopping) {
		return types.ErrServerNotRunning
	}

	defer func() {
		w.setState(ManagerStateStopped)
		w.cancel()
	}()

	done := make(chan error, 1)
	go func() { done <- w.manager.Stop() }()

	select {
	case err := <-done:
		if err != nil {
			w.logger.Error("Error during metrics manager shutdown", zap.Error(err))
		}
	case <-time.After(10 * time.Second):
		w.logger.Warn("Metrics manager stop timeout")
	}

	return nil
}

func (w *Manager) IsRunning() bool {
	return w.getState() == ManagerStateRunning
}

func (w *Manager) getState() ManagerState {
	return w.state.Load().(ManagerState)
}

func (w *Manager) setState(newState ManagerState) bool {
	currentState := w.getState()
	return w.state.CompareAndSwap(currentState, newState)
}

func (w *Manager) transitionState(from, to ManagerState) bool {
	return w.state.CompareAndSwap(from, to)
}

func (w *Manager) RegisterRoutes(router types.HTTPRouter) {
	w.manager.RegisterRoutes(router)
}

// Series are handed out even before Start so components can bind them at
// construction time.
func (w *Manager) Counter(name string, labels map[string]string) types.Counter {
	return w.manager.Counter(name, labels)
}

func (w *Manager) Gauge(name string, labels map[string]string) types.Gauge {
	return w.manager.Gauge(name, labels)
}

func (w *Manager) Histogram(name string, buckets []float64, labels map[string]string) types.Histogram {
	return w.manager.Histogram(name, buckets, labels)
}

func (w *Manager) GetStats() ([]byte, error) {
	return w.manager.GetStats()
}

// Nop discards every observation. It stands in when metrics are disabled.
type Nop struct{}

func (Nop) Start() error                                    { return nil }
func (Nop) Stop() error                                     { return nil }
func (Nop) IsRunning() bool                                 { return false }
func (Nop) RegisterRoutes(types.HTTPRouter)                 {}
func (Nop) Counter(string, map[string]string) types.Counter { return emptyCounter{} }
func (Nop) Gauge(string, map[string]string) types.Gauge     { return emptyGauge{} }
func (Nop) Histogram(string, []float64, map[string]string) types.Histogram {
	return emptyHistogram{}
}
func (Nop) GetStats() ([]byte, error) { return []byte("{}"), nil }

type emptyCounter struct{}

func (emptyCounter) Inc()          {}
func (emptyCounter) Add(_ float64) {}
func (emptyCounter) Get() float64  { return 0 }

type emptyGauge struct{}

func (emptyGauge) Set(_ float64) {}
func (emptyGauge) Inc()          {}
func (emptyGauge) Dec()          {}
func (emptyGauge) Add(_ float64) {}
func (emptyGauge) Sub(_ float64) {}
func (emptyGauge) Get() float64  { return 0 }

type emptyHistogram struct{}

func (emptyHistogram) Observe(_ float64)           {}
func (emptyHistogram) ObserveDuration(_ time.Time) {}
func (emptyHistogram) GetCount() uint64            { return 0 }
func (emptyHistogram) GetSum() float64             { return 0 }
