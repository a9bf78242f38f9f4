package cron

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-assets/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

// Manager runs named periodic jobs. Jobs added while the manager is stopped
// are scheduled once it starts.
type Manager struct {
	ctx             context.Context
	cancel          context.CancelFunc
	logger          types.Logger
	metrics         types.MetricsManager
	cron            *cron.Cron
	timezone        *time.Location
	jobs            map[string]*types.JobEntry
	state           atomic.Value
	mu              sync.RWMutex
	shutdownTimeout time.Duration
}

func NewManager(ctx context.Context, config *types.CronConfig, logger types.Logger, metrics types.MetricsManager) (*Manager, error) {
	timezone := time.UTC
	if config != nil && config.Timezone != "" {
		loc, err := time.LoadLocation(config.Timezone)
		if err != nil {
			logger.Warn("Unknown cron timezone, falling back to UTC",
				zap.String("timezone", config.Timezone),
				zap.Error(err))
		} else {
			timezone = loc
		}
	}

	cronL := cronLogger{logger: logger}

	managerCtx, cancel := context.WithCancel(ctx)

	manager := &Manager{
		ctx:     managerCtx,
		cancel:  cancel,
		logger:  logger,
		metrics: metrics,
		cron: cron.New(
			cron.WithLocation(timezone),
			cron.WithSeconds(),
			cron.WithChain(cron.Recover(cronL), cron.SkipIfStillRunning(cronL)),
		),
		jobs:            make(map[string]*types.JobEntry),
		timezone:        timezone,
		shutdownTimeout: 10 * time.Second,
	}

	manager.state.Store(StateStopped)

	return manager, nil
}

func (m *Manager) Add(jobName, spec string, job func()) error {
	if jobName == "" {
		return types.ErrCronJobNameIsEmpty
	}

	if spec == "" {
		return types.ErrCronExpressionInvalid
	}

	if job == nil {
		return types.ErrCronJobIsNil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[jobName]; exists {
		return types.Errorf(types.ErrCronJobExists, "job: %s", jobName)
	}

	entryID, err := m.cron.AddFunc(spec, m.wrapJob(jobName, job))
	if err != nil {
		return types.Errorf(types.ErrCronExpressionInvalid, "%s: %v", spec, err)
	}

	entry := &types.JobEntry{
		ID:      entryID,
		Name:    jobName,
		Spec:    spec,
		AddedAt: time.Now(),
	}

	if cronEntry := m.cron.Entry(entryID); cronEntry.ID != 0 {
		entry.NextRun = cronEntry.Next
	}

	m.jobs[jobName] = entry

	m.logger.Debug("Cron job added",
		zap.String("job_name", jobName),
		zap.String("spec", spec))

	return nil
}

func (m *Manager) Remove(jobName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.jobs[jobName]
	if !exists {
		return types.Errorf(types.ErrCronJobNotFound, "job: %s", jobName)
	}

	m.cron.Remove(entry.ID)
	delete(m.jobs, jobName)

	m.logger.Debug("Cron job removed", zap.String("job_name", jobName))
	return nil
}

// List returns copies of the registered jobs ordered by name.
func (m *Manager) List() []types.JobEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]types.JobEntry, 0, len(m.jobs))
	for _, entry := range m.jobs {
		snapshot := *entry
		if cronEntry := m.cron.Entry(entry.ID); cronEntry.ID != 0 {
			snapshot.NextRun = cronEntry.Next
		}
		list = append(list, snapshot)
	}

	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

func (m *Manager) Start() error {
	if !m.transitionState(StateStopped, StateStarting) {
		return types.ErrCronIsRunning
	}

	m.cron.Start()
	m.setState(StateRunning)
	m.setSchedulerStatus(1)

	m.logger.Info("Cron manager started",
		zap.String("timezone", m.timezone.String()),
		zap.Int("jobs", len(m.List())))
	return nil
}

func (m *Manager) Stop() error {
	if !m.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	defer m.setState(StateStopped)

	m.cancel()
	stopCtx := m.cron.Stop()

	timer := time.NewTimer(m.shutdownTimeout)
	defer timer.Stop()

	select {
	case <-stopCtx.Done():
		m.logger.Info("Cron scheduler stopped gracefully")
	case <-timer.C:
		m.logger.Warn("Cron manager stop timeout, running jobs were abandoned")
	}

	m.setSchedulerStatus(0)
	return nil
}

func (m *Manager) IsRunning() bool {
	return m.getState() == StateRunning
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

func (m *Manager) wrapJob(jobName string, job func()) func() {
	return func() {
		if m.ctx.Err() != nil {
			return
		}

		startTime := time.Now()
		m.markStarted(jobName, startTime)

		panicked := false
		func() {
			defer func() {
				if r := recover(); r != nil {
					panicked = true
					m.logger.Error("Cron job panicked",
						zap.String("job_name", jobName),
						zap.Any("panic", r))
				}
			}()
			job()
		}()

		duration := time.Since(startTime)

		result := "success"
		if panicked {
			result = "panic"
		}
		m.observeJob(jobName, result, duration)
		m.markFinished(jobName, duration, panicked)

		m.logger.Debug("Cron job completed",
			zap.String("job_name", jobName),
			zap.Duration("duration", duration),
			zap.String("result", result))
	}
}

func (m *Manager) markStarted(jobName string, startTime time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, exists := m.jobs[jobName]; exists {
		entry.LastRun = startTime
	}
}

func (m *Manager) markFinished(jobName string, duration time.Duration, panicked bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.jobs[jobName]
	if !exists {
		return
	}

	entry.LastDuration = duration
	entry.RunCount++
	if panicked {
		entry.Panics++
	}
}

func (m *Manager) observeJob(jobName, result string, duration time.Duration) {
	if m.metrics == nil {
		return
	}

	m.metrics.Counter("cron_job_executions_total", map[string]string{
		"job_name": jobName,
		"result":   result,
	}).Inc()

	m.metrics.Histogram("cron_job_duration_seconds",
		[]float64{0.001, 0.01, 0.1, 1.0, 10.0},
		map[string]string{"job_name": jobName},
	).Observe(duration.Seconds())
}

func (m *Manager) setSchedulerStatus(value float64) {
	if m.metrics == nil {
		return
	}
	m.metrics.Gauge("cron_scheduler_running", nil).Set(value)
}

type cronLogger struct {
	logger types.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, toFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := append(toFields(keysAndValues), zap.Error(err))
	l.logger.Error("cron: "+msg, fields...)
}

func toFields(keysAndValues []interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i < len(keysAndValues)-1; i += 2 {
		fields = append(fields, zap.Any(fmt.Sprintf("%v", keysAndValues[i]), keysAndValues[i+1]))
	}
	return fields
}
