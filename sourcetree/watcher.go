package sourcetree

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-assets/types"
)

const watchJobName = "assets-source-watch"

type Invalidator interface {
	Invalidate()
}

// Watcher probes the source tree on a cron schedule and invalidates the
// container when the tree changes.
type Watcher struct {
	tracker  *Tracker
	target   Invalidator
	cron     types.CronManager
	logger   types.Logger
	interval time.Duration
}

func NewWatcher(tree types.SourceTree, target Invalidator, cron types.CronManager, logger types.Logger, interval time.Duration) *Watcher {
	if interval < time.Second {
		interval = time.Second
	}

	return &Watcher{
		tracker:  NewTracker(tree),
		target:   target,
		cron:     cron,
		logger:   logger,
		interval: interval,
	}
}

func (w *Watcher) Start() error {
	if _, err := w.tracker.Changed(); err != nil {
		w.logger.Warn("Initial source fingerprint failed", zap.Error(err))
	}

	spec := fmt.Sprintf("@every %s", w.interval)
	if err := w.cron.Add(watchJobName, spec, w.Probe); err != nil {
		return types.WrapError(err, "failed to schedule source watcher")
	}

	w.logger.Info("Source watcher scheduled", zap.Duration("interval", w.interval))
	return nil
}

func (w *Watcher) Stop() error {
	return w.cron.Remove(watchJobName)
}

// Probe checks the tree once.
func (w *Watcher) Probe() {
	changed, err := w.tracker.Changed()
	if err != nil {
		w.logger.Warn("Source fingerprint failed", zap.Error(err))
		return
	}

	if changed {
		w.logger.Info("Asset sources changed, invalidating application")
		w.target.Invalidate()
	}
}
