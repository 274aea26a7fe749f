package cache

import (
	"context"
	"time"

	"github.com/bytedance/sonic"

	"speechbridge-server-go/internal/platform/config"
)

// Store is the deduplication layer in front of expensive model calls. It is
// a performance optimisation only: callers must treat a failing backend as a
// miss and keep computing.
type Store interface {
	// Get returns the payload for key, or found=false on a miss. An
	// expired entry is a miss.
	Get(ctx context.Context, key string) (payload []byte, found bool, err error)

	// Put stores payload under key for ttl.
	Put(ctx context.Context, key string, payload []byte, ttl time.Duration) error

	// Ping reports backend reachability for health checks.
	Ping(ctx context.Context) error

	Close() error
}

// New builds the configured store. Driver "none" returns nil, which callers
// treat as caching disabled.
func New(cfg config.CacheConfig) (Store, error) {
	switch cfg.Driver {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemory(), nil
	case "redis":
		return NewRedis(cfg.Redis)
	default:
		return NewMemory(), nil
	}
}

// Marshal serialises a stage payload for caching.
func Marshal(v any) ([]byte, error) {
	return sonic.Marshal(v)
}

// Unmarshal deserialises a cached stage payload.
func Unmarshal(data []byte, v any) error {
	return sonic.Unmarshal(data, v)
}
