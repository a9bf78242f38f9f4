package service

import (
	"context"

	"github.com/saiset-co/sai-assets/assets"
	"github.com/saiset-co/sai-assets/buildinfo"
	"github.com/saiset-co/sai-assets/config"
	"github.com/saiset-co/sai-assets/logger"
	"github.com/saiset-co/sai-assets/metrics"
	"github.com/saiset-co/sai-assets/types"
)

type BundleReport struct {
	Name    string           `json:"name"`
	Kind    types.BundleKind `json:"kind"`
	Hash    string           `json:"hash"`
	URL     string           `json:"url"`
	Size    int              `json:"size"`
	Sources []string         `json:"sources"`
}

type BuildReport struct {
	Version string         `json:"version"`
	Bundles []BundleReport `json:"bundles"`
}

// Build produces the optimized application once, outside of a running
// service. With a persistent bundle cache configured the result is stored
// for the next release start.
func Build(ctx context.Context, configPath string) (*BuildReport, error) {
	configManager, err := config.NewConfigurationManager(ctx, configPath)
	if err != nil {
		return nil, types.WrapError(err, "failed to load configuration")
	}

	loggerManager, err := logger.NewManager(ctx, configManager)
	if err != nil {
		return nil, types.WrapError(err, "failed to create logger")
	}

	manager, err := assets.NewManager(ctx, configManager.GetConfig().Assets, loggerManager, metrics.Nop{},
		assets.WithOptimize(true),
		assets.WithBuildInfo(buildinfo.Read()))
	if err != nil {
		return nil, err
	}

	if err := manager.Start(); err != nil {
		return nil, err
	}
	defer func() { _ = manager.Stop() }()

	app, err := manager.Current(ctx)
	if err != nil {
		return nil, err
	}

	report := &BuildReport{Version: app.Version()}
	for _, bundle := range app.Bundles() {
		url, _, _ := app.BundleURL(bundle.Name)
		report.Bundles = append(report.Bundles, BundleReport{
			Name:    bundle.Name,
			Kind:    bundle.Kind,
			Hash:    bundle.Hash,
			URL:     url,
			Size:    len(bundle.Content),
			Sources: bundle.Sources,
		})
	}

	return report, nil
}

// Version returns the version token of the bundle configurations declared in
// the configuration file.
func Version(ctx context.Context, configPath string) (string, error) {
	configManager, err := config.NewConfigurationManager(ctx, configPath)
	if err != nil {
		return "", types.WrapError(err, "failed to load configuration")
	}

	cfg := configManager.GetConfig().Assets
	if cfg == nil || !cfg.Enabled {
		return "", types.ErrAssetsIsDisabled
	}

	return assets.ComputeVersion(assets.Configurations(cfg, buildinfo.Read())), nil
}
