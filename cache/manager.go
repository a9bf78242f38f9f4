package cache

import (
	"context"
	"sync"
	"time"

	"github.com/saiset-co/sai-assets/types"
)

var customCacheCreators = sync.Map{}

func RegisterCacheManager(cacheManagerName string, creator types.CacheManagerCreator) {
	customCacheCreators.Store(cacheManagerName, creator)
}

// BuildKey joins a version token and a bundle name into a store key.
func BuildKey(version, bundle string) string {
	return version + "/" + bundle
}

func NewCacheManager(ctx context.Context, cacheConfig *types.CacheConfig, logger types.Logger, metrics types.MetricsManager) (types.CacheManager, error) {
	if cacheConfig == nil || !cacheConfig.Enabled {
		return nil, types.ErrCacheIsDisabled
	}

	cacheManagerName := cacheConfig.Type

	var impl types.CacheManager
	var err error

	switch cacheManagerName {
	case "memory":
		impl, err = NewMemoryCache(ctx, logger, cacheConfig)
	case "redis":
		impl, err = NewRedisCache(ctx, logger, cacheConfig)
	case "badger":
		impl, err = NewBadgerCache(ctx, logger, cacheConfig)
	default:
		creator, exists := customCacheCreators.Load(cacheManagerName)
		if !exists {
			return nil, types.Errorf(types.ErrCacheTypeUnknown, "type: %s", cacheManagerName)
		}
		impl, err = creator.(types.CacheManagerCreator)(cacheConfig)
	}

	if err != nil {
		return nil, err
	}

	return newInstrumentedCacheManager(logger, metrics, impl), nil
}

type instrumentedCacheManager struct {
	impl    types.CacheManager
	logger  types.Logger
	metrics types.MetricsManager
}

func newInstrumentedCacheManager(logger types.Logger, metrics types.MetricsManager, impl types.CacheManager) types.CacheManager {
	return &instrumentedCacheManager{
		impl:    impl,
		logger:  logger,
		metrics: metrics,
	}
}

func (icm *instrumentedCacheManager) Get(key string) ([]byte, bool, error) {
	start := time.Now()
	value, exists, err := icm.impl.Get(key)

	result := "miss"
	switch {
	case err != nil:
		result = "error"
	case exists:
		result = "hit"
	}

	icm.recordMetric("get", result, time.Since(start))
	return value, exists, err
}

func (icm *instrumentedCacheManager) Set(key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	err := icm.impl.Set(key, value, ttl)
	icm.recordMetric("set", resultOf(err), time.Since(start))
	return err
}

func (icm *instrumentedCacheManager) Delete(key string) error {
	start := time.Now()
	err := icm.impl.Delete(key)
	icm.recordMetric("delete", resultOf(err), time.Since(start))
	return err
}

func (icm *instrumentedCacheManager) BuildKey(version, bundle string) string {
	return icm.impl.BuildKey(version, bundle)
}

func (icm *instrumentedCacheManager) Start() error {
	start := time.Now()
	err := icm.impl.Start()
	icm.recordMetric("start", resultOf(err), time.Since(start))
	return err
}

func (icm *instrumentedCacheManager) Stop() error {
	return icm.impl.Stop()
}

func (icm *instrumentedCacheManager) IsRunning() bool {
	return icm.impl.IsRunning()
}

func (icm *instrumentedCacheManager) recordMetric(operation, result string, duration time.Duration) {
	if icm.metrics == nil {
		return
	}

	icm.metrics.Counter("cache_operations_total", map[string]string{
		"operation": operation,
		"result":    result,
	}).Inc()

	icm.metrics.Histogram("cache_operation_duration_seconds",
		[]float64{0.0001, 0.001, 0.01, 0.1, 1.0},
		map[string]string{"operation": operation},
	).Observe(duration.Seconds())
}

func resultOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
