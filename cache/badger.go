package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-assets/types"
	"github.com/saiset-co/sai-assets/utils"
)

const (
	defaultGCInterval  = 29 * time.Minute
	defaultMaxGCTime   = time.Minute
	defaultGCThreshold = 0.5
)

type BadgerConfig struct {
	Path        string  `json:"path"`
	InMemory    bool    `json:"in_memory"`
	GCInterval  string  `json:"gc_interval"`
	GCThreshold float64 `json:"gc_threshold"`
}

// BadgerCache persists bundle output on the local machine so a restarted
// process can serve precompiled bundles without rebuilding them.
type BadgerCache struct {
	ctx        context.Context
	cancel     context.CancelFunc
	logger     types.Logger
	config     *BadgerConfig
	defaultTTL time.Duration
	gcInterval time.Duration
	db         *badger.DB
	mu         sync.RWMutex
	wg         sync.WaitGroup
	running    int32
}

func NewBadgerCache(ctx context.Context, logger types.Logger, config *types.CacheConfig) (*BadgerCache, error) {
	badgerConfig := &BadgerConfig{
		GCInterval:  defaultGCInterval.String(),
		GCThreshold: defaultGCThreshold,
	}

	if config.Config != nil {
		if err := utils.UnmarshalConfig(config.Config, badgerConfig); err != nil {
			return nil, types.WrapError(err, "failed to unmarshal badger cache config")
		}
	}

	if badgerConfig.Path == "" && !badgerConfig.InMemory {
		badgerConfig.Path = defaultBadgerPath()
	}

	gcInterval, err := parseDuration(badgerConfig.GCInterval)
	if err != nil {
		return nil, err
	}
	if gcInterval <= 0 {
		gcInterval = defaultGCInterval
	}

	cacheCtx, cancel := context.WithCancel(ctx)

	return &BadgerCache{
		ctx:        cacheCtx,
		cancel:     cancel,
		logger:     logger,
		config:     badgerConfig,
		defaultTTL: config.DefaultTTL,
		gcInterval: gcInterval,
	}, nil
}

// defaultBadgerPath is a machine scoped location shared by every process of
// the same user.
func defaultBadgerPath() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "sai-assets", "bundles")
}

func (b *BadgerCache) Start() error {
	if !atomic.CompareAndSwapInt32(&b.running, 0, 1) {
		return types.ErrServerAlreadyRunning
	}

	opts := badger.DefaultOptions(b.config.Path).
		WithLogger(badgerLogger{logger: b.logger}).
		WithCompression(options.None).
		WithInMemory(b.config.InMemory)

	if b.config.InMemory {
		opts = opts.WithDir("").WithValueDir("")
	}

	db, err := badger.Open(opts)
	if err != nil {
		atomic.StoreInt32(&b.running, 0)
		return types.Errorf(types.ErrCacheConnectionFailed, "open badger at %q: %v", b.config.Path, err)
	}

	b.mu.Lock()
	b.db = db
	b.mu.Unlock()

	if !b.config.InMemory {
		b.wg.Add(1)
		go b.runGC()
	}

	b.logger.Info("Badger cache started",
		zap.String("path", b.config.Path),
		zap.Bool("in_memory", b.config.InMemory))

	return nil
}

func (b *BadgerCache) Stop() error {
	if !atomic.CompareAndSwapInt32(&b.running, 1, 0) {
		return types.ErrServerNotRunning
	}

	b.cancel()
	b.wg.Wait()

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.db.Close(); err != nil {
		return types.WrapError(err, "failed to close badger db")
	}
	b.db = nil

	b.logger.Info("Badger cache stopped")
	return nil
}

func (b *BadgerCache) IsRunning() bool {
	return atomic.LoadInt32(&b.running) == 1
}

func (b *BadgerCache) Get(key string) ([]byte, bool, error) {
	if key == "" {
		return nil, false, types.ErrCacheKeyEmpty
	}

	var value []byte
	err := b.view(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, types.Errorf(types.ErrCacheOperationFailed, "get %s: %v", key, err)
	}

	return value, true, nil
}

func (b *BadgerCache) Set(key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return types.ErrCacheKeyEmpty
	}

	if ttl <= 0 {
		ttl = b.defaultTTL
	}

	err := b.update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), value)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return types.Errorf(types.ErrCacheOperationFailed, "set %s: %v", key, err)
	}

	return nil
}

func (b *BadgerCache) Delete(key string) error {
	if key == "" {
		return nil
	}

	err := b.update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return types.Errorf(types.ErrCacheOperationFailed, "delete %s: %v", key, err)
	}

	return nil
}

func (b *BadgerCache) BuildKey(version, bundle string) string {
	return BuildKey(version, bundle)
}

func (b *BadgerCache) view(f func(txn *badger.Txn) error) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.db == nil {
		return types.ErrCacheNotRunning
	}
	return b.db.View(f)
}

func (b *BadgerCache) update(f func(txn *badger.Txn) error) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.db == nil {
		return types.ErrCacheNotRunning
	}
	return b.db.Update(f)
}

func (b *BadgerCache) runGC() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			rounds := 0

			b.mu.RLock()
			db := b.db
			for db != nil && time.Since(start) < defaultMaxGCTime {
				rounds++
				if err := db.RunValueLogGC(b.config.GCThreshold); err != nil {
					if !errors.Is(err, badger.ErrNoRewrite) {
						b.logger.Warn("Badger gc failed", zap.Error(err))
					}
					break
				}
			}
			b.mu.RUnlock()

			b.logger.Debug("Badger garbage collection completed",
				zap.Duration("duration", time.Since(start)),
				zap.Int("rounds", rounds))
		}
	}
}

type badgerLogger struct {
	logger types.Logger
}

func (l badgerLogger) Errorf(s string, i ...any) {
	l.logger.Error("badger: " + fmt.Sprintf(s, i...))
}

func (l badgerLogger) Warningf(s string, i ...any) {
	l.logger.Warn("badger: " + fmt.Sprintf(s, i...))
}

func (l badgerLogger) Infof(s string, i ...any) {
	l.logger.Debug("badger: " + fmt.Sprintf(s, i...))
}

func (l badgerLogger) Debugf(s string, i ...any) {
	l.logger.Debug("badger: " + fmt.Sprintf(s, i...))
}
