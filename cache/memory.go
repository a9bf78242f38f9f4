package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-assets/types"
	"github.com/saiset-co/sai-assets/utils"
)

type MemoryState int32

const (
	MemoryStateStopped MemoryState = iota
	MemoryStateStarting
	MemoryStateRunning
	MemoryStateStopping
)

type MemoryConfig struct {
	MaxEntries      int    `json:"max_entries"`
	MaxBytes        int64  `json:"max_bytes"`
	CleanupInterval string `json:"cleanup_interval"`
}

// MemoryCache keeps bundle output in process. Entries are evicted oldest
// first once MaxEntries or MaxBytes is exceeded.
type MemoryCache struct {
	ctx        context.Context
	cancel     context.CancelFunc
	config     *MemoryConfig
	defaultTTL time.Duration
	logger     types.Logger
	data       map[string]*types.CacheEntry
	size       int64
	hits       uint64
	misses     uint64
	evictions  uint64
	mu         sync.RWMutex
	state      atomic.Value
	wg         sync.WaitGroup
}

func NewMemoryCache(ctx context.Context, logger types.Logger, config *types.CacheConfig) (*MemoryCache, error) {
	memConfig := &MemoryConfig{
		MaxEntries:      1000,
		CleanupInterval: "5m",
	}

	if config.Config != nil {
		if err := utils.UnmarshalConfig(config.Config, memConfig); err != nil {
			return nil, types.WrapError(err, "failed to unmarshal memory cache config")
		}
	}

	cacheCtx, cancel := context.WithCancel(ctx)

	cache := &MemoryCache{
		ctx:        cacheCtx,
		cancel:     cancel,
		logger:     logger,
		config:     memConfig,
		defaultTTL: config.DefaultTTL,
		data:       make(map[string]*types.CacheEntry),
	}

	cache.state.Store(MemoryStateStopped)

	return cache, nil
}

func (m *MemoryCache) Get(key string) ([]byte, bool, error) {
	if key == "" {
		return nil, false, types.ErrCacheKeyEmpty
	}

	now := time.Now()

	m.mu.RLock()
	entry, exists := m.data[key]
	m.mu.RUnlock()

	if !exists {
		atomic.AddUint64(&m.misses, 1)
		return nil, false, nil
	}

	if entry.Expired(now) {
		m.mu.Lock()
		if current, ok := m.data[key]; ok && current.Expired(now) {
			m.removeEntryUnsafe(key)
		}
		m.mu.Unlock()

		atomic.AddUint64(&m.misses, 1)
		return nil, false, nil
	}

	atomic.AddUint64(&m.hits, 1)
	return entry.Value, true, nil
}

func (m *MemoryCache) Set(key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return types.ErrCacheKeyEmpty
	}

	if ttl <= 0 {
		ttl = m.defaultTTL
	}

	now := time.Now()
	entry := &types.CacheEntry{
		Key:       key,
		Value:     append([]byte(nil), value...),
		TTL:       ttl,
		CreatedAt: now,
	}
	if ttl > 0 {
		entry.ExpiresAt = now.Add(ttl)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.data[key]; exists {
		m.removeEntryUnsafe(key)
	}

	m.data[key] = entry
	m.size += int64(len(entry.Value))

	for m.overLimitUnsafe() {
		if !m.evictOneUnsafe(key) {
			break
		}
	}

	return nil
}

func (m *MemoryCache) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.removeEntryUnsafe(key)
	return nil
}

func (m *MemoryCache) BuildKey(version, bundle string) string {
	return BuildKey(version, bundle)
}

func (m *MemoryCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

func (m *MemoryCache) Start() error {
	if !m.transitionState(MemoryStateStopped, MemoryStateStarting) {
		return types.ErrServerAlreadyRunning
	}

	if m.config.CleanupInterval != "" {
		interval, err := time.ParseDuration(m.config.CleanupInterval)
		if err != nil {
			m.logger.Error("Invalid cleanup interval, using default 5m",
				zap.String("interval", m.config.CleanupInterval),
				zap.Error(err))
			interval = 5 * time.Minute
		}

		m.wg.Add(1)
		go m.startCleanupRoutine(interval)
	}

	m.setState(MemoryStateRunning)
	m.logger.Info("Memory cache started", zap.Int("max_entries", m.config.MaxEntries))
	return nil
}

func (m *MemoryCache) Stop() error {
	if !m.transitionState(MemoryStateRunning, MemoryStateStopping) {
		return types.ErrServerNotRunning
	}

	m.cancel()
	m.wg.Wait()

	m.mu.Lock()
	cleared := len(m.data)
	m.data = make(map[string]*types.CacheEntry)
	m.size = 0
	m.mu.Unlock()

	m.setState(MemoryStateStopped)

	m.logger.Info("Memory cache stopped",
		zap.Int("cleared_entries", cleared),
		zap.Uint64("hits", atomic.LoadUint64(&m.hits)),
		zap.Uint64("misses", atomic.LoadUint64(&m.misses)),
		zap.Uint64("evictions", atomic.LoadUint64(&m.evictions)))

	return nil
}

func (m *MemoryCache) IsRunning() bool {
	return m.getState() == MemoryStateRunning
}

func (m *MemoryCache) getState() MemoryState {
	return m.state.Load().(MemoryState)
}

func (m *MemoryCache) setState(newState MemoryState) bool {
	currentState := m.getState()
	return m.state.CompareAndSwap(currentState, newState)
}

func (m *MemoryCache) transitionState(from, to MemoryState) bool {
	return m.state.CompareAndSwap(from, to)
}

func (m *MemoryCache) cleanup() int {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	expired := 0
	for key, entry := range m.data {
		if entry.Expired(now) {
			m.removeEntryUnsafe(key)
			expired++
		}
	}

	return expired
}

func (m *MemoryCache) startCleanupRoutine(interval time.Duration) {
	defer m.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			if expired := m.cleanup(); expired > 0 {
				m.logger.Debug("Cleanup completed", zap.Int("expired_entries", expired))
			}
		}
	}
}

func (m *MemoryCache) overLimitUnsafe() bool {
	if m.config.MaxEntries > 0 && len(m.data) > m.config.MaxEntries {
		return true
	}
	return m.config.MaxBytes > 0 && m.size > m.config.MaxBytes
}

// evictOneUnsafe drops the oldest entry other than keep.
func (m *MemoryCache) evictOneUnsafe(keep string) bool {
	var oldestKey string
	var oldestTime time.Time

	for key, entry := range m.data {
		if key == keep {
			continue
		}
		if oldestKey == "" || entry.CreatedAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.CreatedAt
		}
	}

	if oldestKey == "" {
		return false
	}

	m.removeEntryUnsafe(oldestKey)
	atomic.AddUint64(&m.evictions, 1)
	return true
}

func (m *MemoryCache) removeEntryUnsafe(key string) {
	if entry, exists := m.data[key]; exists {
		m.size -= int64(len(entry.Value))
		delete(m.data, key)
	}
}
