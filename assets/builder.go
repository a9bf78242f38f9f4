package assets

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-assets/types"
)

// Builder produces Applications from a fixed set of build parameters. It is
// safe for concurrent use; callers serialize builds through a container.
type Builder struct {
	engine     types.BundleEngine
	params     types.BuildParams
	allowEmpty bool
	logger     types.Logger
	metrics    types.MetricsManager
}

func NewBuilder(engine types.BundleEngine, params types.BuildParams, allowEmpty bool, metrics types.MetricsManager) *Builder {
	return &Builder{
		engine:     engine,
		params:     params,
		allowEmpty: allowEmpty,
		logger:     params.Logger,
		metrics:    metrics,
	}
}

// Build validates the configurations and delegates to the engine. It either
// returns a complete Application or an error, never both.
func (b *Builder) Build(ctx context.Context) (types.Application, error) {
	start := time.Now()

	if err := ValidateConfigurations(b.params.Configs, b.allowEmpty); err != nil {
		b.record("invalid", start)
		return nil, err
	}

	b.logger.Debug("Building asset application",
		zap.String("version", b.params.Version),
		zap.Bool("optimize", b.params.Optimize),
		zap.Int("bundles", len(b.params.Configs)))

	app, err := b.engine.BuildApplication(ctx, b.params)
	if err == nil && app == nil {
		err = types.NewErrorf("engine returned no application")
	}
	if err != nil {
		b.record("failure", start)
		return nil, fmt.Errorf("%w: %w", types.ErrBuildFailed, err)
	}

	duration := b.record("success", start)
	b.logger.Info("Asset application built",
		zap.String("version", app.Version()),
		zap.Bool("optimize", app.Optimized()),
		zap.Int("bundles", len(app.Bundles())),
		zap.Duration("duration", duration))

	return app, nil
}

func (b *Builder) record(result string, start time.Time) time.Duration {
	duration := time.Since(start)
	if b.metrics == nil {
		return duration
	}

	b.metrics.Counter("assets_builds_total", map[string]string{"result": result}).Inc()
	b.metrics.Histogram("assets_build_duration_seconds",
		[]float64{0.005, 0.025, 0.1, 0.5, 2.5, 10},
		nil,
	).Observe(duration.Seconds())

	return duration
}

// ValidateConfigurations rejects a set of configurations no engine could
// build from.
func ValidateConfigurations(configs []types.BundleConfiguration, allowEmpty bool) error {
	if len(configs) == 0 {
		if allowEmpty {
			return nil
		}
		return types.ErrNoConfigurations
	}

	names := make(map[string]struct{}, len(configs))
	for i, cfg := range configs {
		if cfg == nil {
			return types.Errorf(types.ErrConfigurationInvalid, "configuration %d is nil", i)
		}

		name := cfg.BundleName()
		if name == "" {
			return types.Errorf(types.ErrConfigurationInvalid, "configuration %d has no name", i)
		}
		if _, dup := names[name]; dup {
			return types.Errorf(types.ErrConfigurationInvalid, "duplicate bundle %q", name)
		}
		names[name] = struct{}{}

		if !cfg.BundleKind().Valid() {
			return types.Errorf(types.ErrConfigurationInvalid, "bundle %q has unknown kind %q", name, cfg.BundleKind())
		}
		if len(cfg.SourcePatterns()) == 0 {
			return types.Errorf(types.ErrConfigurationInvalid, "bundle %q has no sources", name)
		}
	}

	return nil
}
