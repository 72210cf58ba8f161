package store

import (
	"strings"
	"testing"

	"github.com/nimburion/eventsvc/pkg/config"
	"github.com/nimburion/eventsvc/pkg/observability/logger"
	"github.com/nimburion/eventsvc/pkg/repository/document"
)

func TestNewDocumentStore_Memory(t *testing.T) {
	ds, err := NewDocumentStore(config.DatabaseConfig{Type: "Memory"}, logger.NewNop())
	if err != nil {
		t.Fatalf("NewDocumentStore() error = %v", err)
	}
	if ds.Adapter != nil {
		t.Fatal("memory store has no adapter to close")
	}
	if _, ok := ds.Executor.(*document.MemoryExecutor); !ok {
		t.Fatalf("executor = %T", ds.Executor)
	}
	if ds.System != config.DatabaseTypeMemory {
		t.Fatalf("system = %q", ds.System)
	}
}

func TestNewDocumentStore_UnsupportedType(t *testing.T) {
	_, err := NewDocumentStore(config.DatabaseConfig{Type: "postgres"}, logger.NewNop())
	if err == nil || !strings.Contains(err.Error(), "unsupported database.type") {
		t.Fatalf("expected unsupported type error, got %v", err)
	}
}

func TestNewDocumentStore_MongoRequiresURL(t *testing.T) {
	if _, err := NewDocumentStore(config.DatabaseConfig{Type: config.DatabaseTypeMongoDB}, logger.NewNop()); err == nil {
		t.Fatal("expected error without url")
	}
}

func TestNewCacheAdapter(t *testing.T) {
	adapter, err := NewCacheAdapter(config.CacheConfig{Type: config.CacheTypeNone}, logger.NewNop())
	if err != nil || adapter != nil {
		t.Fatalf("disabled cache = %v, %v", adapter, err)
	}
	if _, err := NewCacheAdapter(config.CacheConfig{Type: "memcached"}, logger.NewNop()); err == nil {
		t.Fatal("expected unsupported type error")
	}
	if _, err := NewCacheAdapter(config.CacheConfig{Type: config.CacheTypeRedis, URL: "://bad"}, logger.NewNop()); err == nil {
		t.Fatal("expected url parse error")
	}
}
