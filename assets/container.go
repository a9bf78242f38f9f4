package assets

import (
	"context"
	"time"

	"github.com/saiset-co/sai-assets/logger"
	"github.com/saiset-co/sai-assets/types"
)

const (
	ModeFrozen   = "frozen"
	ModeWatching = "watching"
)

type BuildFunc func(ctx context.Context) (types.Application, error)

// StalenessCheck reports whether the sources changed since it was last called.
type StalenessCheck func() (bool, error)

type containerOptions struct {
	stale         StalenessCheck
	probeInterval time.Duration
	logger        types.Logger
}

type ContainerOption func(*containerOptions)

func WithStalenessCheck(check StalenessCheck) ContainerOption {
	return func(o *containerOptions) { o.stale = check }
}

// WithProbeInterval bounds how often the staleness check runs on the request
// path. Zero probes on every access.
func WithProbeInterval(interval time.Duration) ContainerOption {
	return func(o *containerOptions) { o.probeInterval = interval }
}

func WithContainerLogger(l types.Logger) ContainerOption {
	return func(o *containerOptions) { o.logger = l }
}

// NewContainer picks the container variant once: frozen when optimizing,
// watching otherwise.
func NewContainer(optimize bool, build BuildFunc, opts ...ContainerOption) types.ApplicationContainer {
	options := &containerOptions{logger: logger.NewNop()}
	for _, opt := range opts {
		opt(options)
	}

	if optimize {
		return newFrozenContainer(build)
	}
	return newWatchingContainer(build, options)
}

type snapshot struct {
	app        types.Application
	generation uint64
}
