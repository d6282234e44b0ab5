package backend

import (
	"context"
	"fmt"

	"tally/internal/cache"
	"tally/internal/kv"
	"tally/internal/kv/memory"
	"tally/internal/log"
	"tally/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Nop()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var result *BackendResult
	switch config.Type {
	case SQLiteBackend:
		store, err := storage.NewSQLiteStore(config.SQLiteDBPath, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
		}
		f.logger.InfoContext(ctx, "Initialized SQLite backend", "db_path", config.SQLiteDBPath)
		result = &BackendResult{Store: store, Cleanup: store.Close}
	case MemoryBackend:
		f.logger.InfoContext(ctx, "Initialized memory backend")
		result = &BackendResult{Store: memory.New()}
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	if config.CacheSize > 0 {
		result = f.withCache(result, config)
	}
	return result, nil
}

func (f *DefaultFactory) withCache(result *BackendResult, config Config) *BackendResult {
	lru := cache.NewLRUCache[[]byte](config.CacheSize, config.CacheTTL)
	manager := cache.NewManager(f.logger)
	manager.Register(lru)

	interval := config.CacheCleanupInterval
	if interval <= 0 {
		interval = config.CacheTTL
	}
	manager.StartCleanup(interval)

	f.logger.Info("Enabled read cache", "size", config.CacheSize, "ttl", config.CacheTTL)

	inner := result.Cleanup
	return &BackendResult{
		Store: kv.NewCached(result.Store, lru, kv.ReferenceKeys...),
		Cleanup: func() error {
			manager.Stop()
			if inner == nil {
				return nil
			}
			return inner()
		},
	}
}
