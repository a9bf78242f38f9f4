// Package sai exposes the running service's components to application code.
package sai

import (
	"context"
	"sync/atomic"

	"github.com/saiset-co/sai-assets/cache"
	"github.com/saiset-co/sai-assets/logger"
	"github.com/saiset-co/sai-assets/metrics"
	"github.com/saiset-co/sai-assets/types"
)

type Container struct {
	Config      atomic.Pointer[types.ConfigManager]
	Logger      atomic.Pointer[types.LoggerManager]
	Router      atomic.Pointer[types.HTTPRouter]
	HTTPServer  atomic.Pointer[types.HTTPServer]
	Cron        atomic.Pointer[types.CronManager]
	Metrics     atomic.Pointer[types.MetricsManager]
	Middlewares atomic.Pointer[types.MiddlewareManager]
	Health      atomic.Pointer[types.HealthManager]
	Assets      atomic.Pointer[types.AssetsManager]
}

var globalContainer atomic.Pointer[Container]

func InitContainer() *Container {
	return &Container{}
}

func SetContainer(container *Container) {
	globalContainer.Store(container)
}

func current() *Container {
	if c := globalContainer.Load(); c != nil {
		return c
	}
	panic("sai container not initialized")
}

func Config() types.ConfigManager {
	if ptr := current().Config.Load(); ptr != nil {
		return *ptr
	}
	panic("ConfigManager not initialized")
}

func Logger() types.LoggerManager {
	if ptr := current().Logger.Load(); ptr != nil {
		return *ptr
	}
	panic("Logger not initialized")
}

func Router() types.HTTPRouter {
	if ptr := current().Router.Load(); ptr != nil {
		return *ptr
	}
	panic("Router not initialized")
}

func Cron() types.CronManager {
	if ptr := current().Cron.Load(); ptr != nil {
		return *ptr
	}
	panic("CronManager not initialized")
}

func Metrics() types.MetricsManager {
	if ptr := current().Metrics.Load(); ptr != nil {
		return *ptr
	}
	panic("MetricsManager not initialized")
}

func AssetsManager() types.AssetsManager {
	if ptr := current().Assets.Load(); ptr != nil {
		return *ptr
	}
	panic("AssetsManager not initialized")
}

// Assets returns the current application built from the bundle configurations.
func Assets(ctx context.Context) (types.Application, error) {
	return AssetsManager().Current(ctx)
}

// BundleURL returns the URL of the named bundle in the current application.
func BundleURL(ctx context.Context, name string) (string, bool) {
	app, err := Assets(ctx)
	if err != nil {
		return "", false
	}
	url, _, ok := app.BundleURL(name)
	return url, ok
}

func RegisterCacheManager(cacheManagerName string, creator types.CacheManagerCreator) {
	cache.RegisterCacheManager(cacheManagerName, creator)
}

func RegisterMetricsManager(metricsManagerName string, creator types.MetricsManagerCreator) {
	metrics.RegisterMetricsManager(metricsManagerName, creator)
}

func RegisterLogger(loggerName string, creator types.LoggerCreator) {
	logger.RegisterLogger(loggerName, creator)
}

func (fc *Container) SetConfig(config types.ConfigManager) {
	fc.Config.Store(&config)
}

func (fc *Container) SetLogger(logger types.LoggerManager) {
	fc.Logger.Store(&logger)
}

func (fc *Container) SetRouter(router types.HTTPRouter) {
	fc.Router.Store(&router)
}

func (fc *Container) SetHTTPServer(server types.HTTPServer) {
	fc.HTTPServer.Store(&server)
}

func (fc *Container) SetCron(cron types.CronManager) {
	fc.Cron.Store(&cron)
}

func (fc *Container) SetMetrics(metrics types.MetricsManager) {
	fc.Metrics.Store(&metrics)
}

func (fc *Container) SetMiddlewares(middlewares types.MiddlewareManager) {
	fc.Middlewares.Store(&middlewares)
}

func (fc *Container) SetHealth(health types.HealthManager) {
	fc.Health.Store(&health)
}

func (fc *Container) SetAssets(assets types.AssetsManager) {
	fc.Assets.Store(&assets)
}
