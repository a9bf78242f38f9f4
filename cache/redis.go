package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-assets/types"
	"github.com/saiset-co/sai-assets/utils"
)

type RedisConfig struct {
	Host               string `json:"host"`
	Port               int    `json:"port"`
	Password           string `json:"password"`
	DB                 int    `json:"db"`
	PoolSize           int    `json:"pool_size"`
	MinIdleConnections int    `json:"min_idle_connections"`
	DialTimeout        string `json:"dial_timeout"`
	ReadTimeout        string `json:"read_timeout"`
	WriteTimeout       string `json:"write_timeout"`
	KeyPrefix          string `json:"key_prefix"`
}

// RedisCache stores bundle output in redis so that several instances of a
// service share one precompiled set.
type RedisCache struct {
	ctx        context.Context
	logger     types.Logger
	config     *RedisConfig
	defaultTTL time.Duration
	client     *redis.Client
	started    int32
}

func NewRedisCache(ctx context.Context, logger types.Logger, config *types.CacheConfig) (*RedisCache, error) {
	redisConfig := &RedisConfig{
		Host:               "localhost",
		Port:               6379,
		PoolSize:           10,
		MinIdleConnections: 2,
		DialTimeout:        "5s",
		ReadTimeout:        "3s",
		WriteTimeout:       "3s",
		KeyPrefix:          "sai-assets",
	}

	if config.Config != nil {
		if err := utils.UnmarshalConfig(config.Config, redisConfig); err != nil {
			return nil, types.WrapError(err, "failed to unmarshal redis cache config")
		}
	}

	cache := &RedisCache{
		ctx:        ctx,
		logger:     logger,
		config:     redisConfig,
		defaultTTL: config.DefaultTTL,
	}

	if err := cache.initRedisClient(); err != nil {
		return nil, types.WrapError(err, "failed to initialize redis client")
	}

	return cache, nil
}

func (r *RedisCache) Get(key string) ([]byte, bool, error) {
	if key == "" {
		return nil, false, types.ErrCacheKeyEmpty
	}

	value, err := r.client.Get(r.ctx, r.buildFullKey(key)).Bytes()
	if err != nil {
		if types.IsError(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, types.Errorf(types.ErrCacheOperationFailed, "get %s: %v", key, err)
	}

	return value, true, nil
}

func (r *RedisCache) Set(key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return types.ErrCacheKeyEmpty
	}

	if ttl <= 0 {
		ttl = r.defaultTTL
	}

	if err := r.client.Set(r.ctx, r.buildFullKey(key), value, ttl).Err(); err != nil {
		return types.Errorf(types.ErrCacheOperationFailed, "set %s: %v", key, err)
	}

	return nil
}

func (r *RedisCache) Delete(key string) error {
	if key == "" {
		return nil
	}

	if err := r.client.Del(r.ctx, r.buildFullKey(key)).Err(); err != nil {
		return types.Errorf(types.ErrCacheOperationFailed, "delete %s: %v", key, err)
	}

	return nil
}

func (r *RedisCache) BuildKey(version, bundle string) string {
	return BuildKey(version, bundle)
}

func (r *RedisCache) Start() error {
	if !atomic.CompareAndSwapInt32(&r.started, 0, 1) {
		return types.ErrServerAlreadyRunning
	}

	if err := r.ping(); err != nil {
		atomic.StoreInt32(&r.started, 0)
		return types.Errorf(types.ErrCacheConnectionFailed, "%v", err)
	}

	r.logger.Info("Redis cache started",
		zap.String("addr", r.client.Options().Addr),
		zap.String("prefix", r.config.KeyPrefix))

	return nil
}

func (r *RedisCache) Stop() error {
	if !atomic.CompareAndSwapInt32(&r.started, 1, 0) {
		return types.ErrServerNotRunning
	}

	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close Redis client", zap.Error(err))
		return types.WrapError(err, "failed to close redis client")
	}

	r.logger.Info("Redis cache closed successfully")
	return nil
}

func (r *RedisCache) IsRunning() bool {
	return atomic.LoadInt32(&r.started) == 1
}

func (r *RedisCache) initRedisClient() error {
	dialTimeout, err := parseDuration(r.config.DialTimeout)
	if err != nil {
		return err
	}
	readTimeout, err := parseDuration(r.config.ReadTimeout)
	if err != nil {
		return err
	}
	writeTimeout, err := parseDuration(r.config.WriteTimeout)
	if err != nil {
		return err
	}

	r.client = redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", r.config.Host, r.config.Port),
		Password:     r.config.Password,
		DB:           r.config.DB,
		PoolSize:     r.config.PoolSize,
		MinIdleConns: r.config.MinIdleConnections,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	})

	return nil
}

func (r *RedisCache) ping() error {
	ctx, cancel := context.WithTimeout(r.ctx, 5*time.Second)
	defer cancel()

	return r.client.Ping(ctx).Err()
}

func (r *RedisCache) buildFullKey(key string) string {
	if r.config.KeyPrefix == "" {
		return key
	}
	return r.config.KeyPrefix + ":" + key
}

func parseDuration(value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, types.Errorf(types.ErrInvalidParameter, "duration %q: %v", value, err)
	}
	return d, nil
}
