// Package cache provides the TTL-expiring, capacity-bounded result cache
// for computed motions, backed by pluggable durable storage.
package cache

import (
	"context"
	"fmt"
	"time"

	"gomotion/internal/core"
)

// Storage type constants.
const (
	StoreTypeFile     = "file"
	StoreTypeSQLite   = "sqlite"
	StoreTypeRedis    = "redis"
	StoreTypePostgres = "postgresql"
	StoreTypeMongo    = "mongodb"
)

// PersistedEntry is the durable form of a cache entry. The provider name is
// stored alongside the result so provider-scoped operations on a freshly
// loaded cache never need to inspect the result payload.
type PersistedEntry struct {
	Key        string            `json:"key" bson:"_id"`
	Result     core.MotionResult `json:"result" bson:"result"`
	Provider   string            `json:"provider" bson:"provider"`
	InsertedAt time.Time         `json:"inserted_at" bson:"inserted_at"`
	ExpiresAt  time.Time         `json:"expires_at" bson:"expires_at"`
}

// Store is the durable storage boundary for the result cache.
// Implementations must be safe for concurrent use.
type Store interface {
	// Load returns all persisted entries, including expired ones.
	// The cache decides what to keep.
	Load(ctx context.Context) ([]PersistedEntry, error)

	// Save replaces the persisted state with the given entries.
	Save(ctx context.Context, entries []PersistedEntry) error

	// Close releases any resources held by the store.
	Close() error
}

// StoreConfig selects and configures a storage backend.
type StoreConfig struct {
	// Type is one of "file", "sqlite", "redis", "postgresql", "mongodb".
	// Empty defaults to "file".
	Type string

	File     FileStoreConfig
	SQLite   SQLiteStoreConfig
	Redis    RedisStoreConfig
	Postgres PostgresStoreConfig
	Mongo    MongoStoreConfig
}

// NewStore creates the storage backend selected by cfg.
func NewStore(ctx context.Context, cfg StoreConfig) (Store, error) {
	switch cfg.Type {
	case StoreTypeFile, "":
		return NewFileStore(cfg.File.Path), nil
	case StoreTypeSQLite:
		return NewSQLiteStore(cfg.SQLite)
	case StoreTypeRedis:
		return NewRedisStore(ctx, cfg.Redis)
	case StoreTypePostgres:
		return NewPostgresStore(ctx, cfg.Postgres)
	case StoreTypeMongo:
		return NewMongoStore(ctx, cfg.Mongo)
	default:
		return nil, fmt.Errorf("unknown store type: %s (valid: file, sqlite, redis, postgresql, mongodb)", cfg.Type)
	}
}
