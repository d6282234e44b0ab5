package backend

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tally/internal/config"
	"tally/internal/kv"
)

func TestFromAppConfig(t *testing.T) {
	_, err := FromAppConfig(nil)
	assert.Error(t, err)

	_, err = FromAppConfig(&config.Config{DataBackend: "sheets"})
	assert.Error(t, err)

	cfg, err := FromAppConfig(&config.Config{
		DataBackend:  "sqlite",
		SQLiteDBPath: "./data/tally.db",
		CacheSize:    8,
		CacheTTL:     time.Minute,
	})
	require.NoError(t, err)
	assert.Equal(t, SQLiteBackend, cfg.Type)
	assert.Equal(t, "./data/tally.db", cfg.SQLiteDBPath)
	assert.Equal(t, 8, cfg.CacheSize)
	assert.Equal(t, time.Minute, cfg.CacheCleanupInterval)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend}, false},
		{"sqlite with path", Config{Type: SQLiteBackend, SQLiteDBPath: "x.db"}, false},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"unknown type", Config{Type: "redis"}, true},
		{"cache without ttl", Config{Type: MemoryBackend, CacheSize: 4}, true},
		{"negative cache", Config{Type: MemoryBackend, CacheSize: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			assert.Equal(t, tt.wantErr, err != nil, "Validate() error = %v", err)
		})
	}
}

func TestGetBackendTypeStrings(t *testing.T) {
	assert.Equal(t, []string{"sqlite", "memory"}, GetBackendTypeStrings())
}

func TestCreateMemoryBackend(t *testing.T) {
	ctx := context.Background()
	result, err := NewFactory(nil).CreateBackend(ctx, Config{Type: MemoryBackend})
	require.NoError(t, err)
	assert.Nil(t, result.Cleanup)

	require.NoError(t, kv.SetString(ctx, result.Store, "k", "v"))
	got, ok, err := kv.GetString(ctx, result.Store, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", got)
}

func TestCreateCachedSQLiteBackend(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tally.db")

	result, err := NewFactory(nil).CreateBackend(ctx, Config{
		Type:         SQLiteBackend,
		SQLiteDBPath: path,
		CacheSize:    4,
		CacheTTL:     time.Minute,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Cleanup)
	_, cached := result.Store.(*kv.Cached)
	assert.True(t, cached)

	require.NoError(t, kv.SetString(ctx, result.Store, "transactions", "[]"))
	require.NoError(t, result.Cleanup())

	reopened, err := NewFactory(nil).CreateBackend(ctx, Config{Type: SQLiteBackend, SQLiteDBPath: path})
	require.NoError(t, err)
	defer reopened.Cleanup()

	got, ok, err := kv.GetString(ctx, reopened.Store, "transactions")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "[]", got)
}

func TestCreateBackendRejectsInvalidConfig(t *testing.T) {
	_, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: SQLiteBackend})
	assert.Error(t, err)
}

func TestCachedBackendSeesWritesFromAnotherStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tally.db")
	factory := NewFactory(nil)

	worker, err := factory.CreateBackend(ctx, Config{
		Type: SQLiteBackend, SQLiteDBPath: path, CacheSize: 16, CacheTTL: 5 * time.Minute,
	})
	require.NoError(t, err)
	defer worker.Cleanup()
	other, err := factory.CreateBackend(ctx, Config{Type: SQLiteBackend, SQLiteDBPath: path})
	require.NoError(t, err)
	defer other.Cleanup()

	require.NoError(t, kv.SetString(ctx, worker.Store, kv.KeyTransactions, `[]`))
	_, _, err = kv.GetString(ctx, worker.Store, kv.KeyTransactions)
	require.NoError(t, err)

	require.NoError(t, kv.SetString(ctx, other.Store, kv.KeyTransactions, `[{"id":"t1"}]`))
	got, ok, err := kv.GetString(ctx, worker.Store, kv.KeyTransactions)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `[{"id":"t1"}]`, got)
}
