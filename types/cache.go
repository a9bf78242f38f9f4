package types

import (
	"time"
)

// CacheManager is the persistent key-value store for built bundle output.
// Get reports a miss with found=false and a nil error.
type CacheManager interface {
	LifecycleManager
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	BuildKey(version, bundle string) string
}

type CacheManagerCreator func(config interface{}) (CacheManager, error)

type CacheEntry struct {
	Key       string        `json:"key"`
	Value     []byte        `json:"value"`
	TTL       time.Duration `json:"ttl"`
	CreatedAt time.Time     `json:"created_at"`
	ExpiresAt time.Time     `json:"expires_at"`
}

func (e *CacheEntry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}
