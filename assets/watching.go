package assets

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/saiset-co/sai-assets/types"
)

const buildFlight = "build"

// watchingContainer builds lazily and rebuilds after Invalidate or when the
// staleness check reports a change. Each Invalidate bumps the generation; a
// snapshot is current only while its generation matches.
type watchingContainer struct {
	build         BuildFunc
	stale         StalenessCheck
	probeInterval time.Duration
	logger        types.Logger
	current       atomic.Pointer[snapshot]
	generation    atomic.Uint64
	lastProbe     atomic.Int64
	group         singleflight.Group
	builds        atomic.Int64
}

func newWatchingContainer(build BuildFunc, options *containerOptions) *watchingContainer {
	return &watchingContainer{
		build:         build,
		stale:         options.stale,
		probeInterval: options.probeInterval,
		logger:        options.logger,
	}
}

func (w *watchingContainer) Current(ctx context.Context) (types.Application, error) {
	w.probe()

	if snap := w.current.Load(); snap != nil && snap.generation == w.generation.Load() {
		return snap.app, nil
	}

	v, err, _ := w.group.Do(buildFlight, func() (interface{}, error) {
		gen := w.generation.Load()
		if snap := w.current.Load(); snap != nil && snap.generation == gen {
			return snap, nil
		}

		w.builds.Add(1)
		app, err := w.build(context.WithoutCancel(ctx))
		if err != nil {
			w.logger.Error("Asset application build failed, keeping previous instance",
				zap.Uint64("generation", gen),
				zap.Error(err))
			return nil, err
		}

		snap := &snapshot{app: app, generation: gen}
		w.current.Store(snap)
		return snap, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*snapshot).app, nil
}

func (w *watchingContainer) Invalidate() {
	w.generation.Add(1)
}

func (w *watchingContainer) Mode() string { return ModeWatching }

// probe runs the staleness check at most once per probe interval across all
// callers.
func (w *watchingContainer) probe() {
	if w.stale == nil {
		return
	}

	now := time.Now().UnixNano()
	last := w.lastProbe.Load()
	if last != 0 && now-last < int64(w.probeInterval) {
		return
	}
	if !w.lastProbe.CompareAndSwap(last, now) {
		return
	}

	changed, err := w.stale()
	if err != nil {
		w.logger.Warn("Source staleness check failed", zap.Error(err))
		return
	}

	if changed {
		w.logger.Info("Asset sources changed, scheduling rebuild")
		w.Invalidate()
	}
}
