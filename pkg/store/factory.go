package store

import (
	"fmt"
	"strings"

	"github.com/nimburion/eventsvc/pkg/config"
	"github.com/nimburion/eventsvc/pkg/observability/logger"
	"github.com/nimburion/eventsvc/pkg/repository/document"
	"github.com/nimburion/eventsvc/pkg/store/mongodb"
	"github.com/nimburion/eventsvc/pkg/store/redis"
)

// DocumentStore pairs the executor repositories run on with the adapter
// that owns the connection. Adapter is nil for the in-memory backend.
type DocumentStore struct {
	Executor document.Executor
	Adapter  Adapter
	System   string
}

// Cosa fa: seleziona e inizializza il document store in base alla config.
// Cosa NON fa: non crea indici, vedi Repository.EnsureIndexes.
// Esempio minimo: ds, err := store.NewDocumentStore(cfg.Database, log)
func NewDocumentStore(cfg config.DatabaseConfig, log logger.Logger) (*DocumentStore, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case config.DatabaseTypeMongoDB:
		adapter, err := mongodb.NewAdapter(mongodb.Config{
			URL:              cfg.URL,
			Database:         cfg.DatabaseName,
			ConnectTimeout:   cfg.ConnectTimeout,
			OperationTimeout: cfg.QueryTimeout,
			MaxPoolSize:      cfg.MaxPoolSize,
		}, log)
		if err != nil {
			return nil, err
		}
		exec, err := document.NewMongoDBExecutor(adapter)
		if err != nil {
			_ = adapter.Close()
			return nil, err
		}
		return &DocumentStore{Executor: exec, Adapter: adapter, System: config.DatabaseTypeMongoDB}, nil
	case config.DatabaseTypeMemory:
		log.Warn("using in-memory document store, data is lost on exit")
		return &DocumentStore{Executor: document.NewMemoryExecutor(), System: config.DatabaseTypeMemory}, nil
	default:
		return nil, fmt.Errorf("unsupported database.type %q (supported: mongodb, memory)", cfg.Type)
	}
}

// NewCacheAdapter returns the Redis adapter, or nil when the cache is disabled.
func NewCacheAdapter(cfg config.CacheConfig, log logger.Logger) (*redis.Adapter, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case config.CacheTypeNone, "":
		return nil, nil
	case config.CacheTypeRedis:
		return redis.NewAdapter(redis.Config{
			URL:              cfg.URL,
			MaxConns:         cfg.MaxConns,
			OperationTimeout: cfg.OperationTimeout,
		}, log)
	default:
		return nil, fmt.Errorf("unsupported cache.type %q (supported: redis, none)", cfg.Type)
	}
}
