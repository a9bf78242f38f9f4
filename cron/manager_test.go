package cron

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-assets/logger"
	"github.com/saiset-co/sai-assets/metrics"
	"github.com/saiset-co/sai-assets/types"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	m, err := NewManager(context.Background(), &types.CronConfig{Enabled: true, Timezone: "UTC"}, logger.NewNop(), nil)
	require.NoError(t, err)
	return m
}

func TestManager_AddValidation(t *testing.T) {
	m := newTestManager(t)

	assert.ErrorIs(t, m.Add("", "@every 1s", func() {}), types.ErrCronJobNameIsEmpty)
	assert.ErrorIs(t, m.Add("job", "", func() {}), types.ErrCronExpressionInvalid)
	assert.ErrorIs(t, m.Add("job", "@every 1s", nil), types.ErrCronJobIsNil)
	assert.ErrorIs(t, m.Add("job", "not a spec", func() {}), types.ErrCronExpressionInvalid)

	require.NoError(t, m.Add("job", "@every 1s", func() {}))
	assert.ErrorIs(t, m.Add("job", "@every 1s", func() {}), types.ErrCronJobExists)
}

func TestManager_ListAndRemove(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Add("b", "@every 1m", func() {}))
	require.NoError(t, m.Add("a", "@every 1m", func() {}))

	jobs := m.List()
	require.Len(t, jobs, 2)
	assert.Equal(t, "a", jobs[0].Name)
	assert.Equal(t, "b", jobs[1].Name)

	require.NoError(t, m.Remove("a"))
	assert.ErrorIs(t, m.Remove("a"), types.ErrCronJobNotFound)
	assert.Len(t, m.List(), 1)
}

func TestManager_RunsJobsAndRecoversPanics(t *testing.T) {
	mm, err := metrics.NewMemoryMetrics(logger.NewNop(), nil)
	require.NoError(t, err)

	m, err := NewManager(context.Background(), &types.CronConfig{Timezone: "UTC"}, logger.NewNop(), mm)
	require.NoError(t, err)

	var runs int32
	require.NoError(t, m.Add("tick", "@every 1s", func() { atomic.AddInt32(&runs, 1) }))
	require.NoError(t, m.Add("boom", "@every 1s", func() { panic("boom") }))

	require.NoError(t, m.Start())
	assert.True(t, m.IsRunning())

	require.Eventually(t, func() bool { return atomic.LoadInt32(&runs) > 0 }, 3*time.Second, 20*time.Millisecond)
	require.Eventually(t, func() bool {
		for _, job := range m.List() {
			if job.Name == "boom" && job.Panics > 0 {
				return true
			}
		}
		return false
	}, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, m.Stop())
	assert.False(t, m.IsRunning())
	assert.ErrorIs(t, m.Stop(), types.ErrServerNotRunning)

	assert.GreaterOrEqual(t, mm.Counter("cron_job_executions_total", map[string]string{
		"job_name": "boom",
		"result":   "panic",
	}).Get(), float64(1))
}

func TestManager_UnknownTimezoneFallsBack(t *testing.T) {
	m, err := NewManager(context.Background(), &types.CronConfig{Timezone: "Mars/Olympus"}, logger.NewNop(), nil)
	require.NoError(t, err)
	assert.Equal(t, time.UTC, m.timezone)
}
