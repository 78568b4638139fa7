// Package storage holds the pluggable persistence backends the persistent
// cache writes through. A backend stores opaque records keyed by base key and
// knows nothing about series semantics; adding a new store means implementing
// the five-method Backend interface and registering it in New.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/marianogappa/stock-quotes/quotes/common"
)

// Record is one cached series with its window metadata. Data is the
// msgpack-encoded series blob; the backends never look inside it.
type Record struct {
	Key          string    `msgpack:"cache_key"`
	Symbol       string    `msgpack:"symbol"`
	Name         string    `msgpack:"name"`
	Data         []byte    `msgpack:"data"`
	EarliestDate string    `msgpack:"earliest_date"`
	LatestDate   string    `msgpack:"latest_date"`
	Freq         string    `msgpack:"freq"`
	FQ           string    `msgpack:"fq"`
	UpdatedAt    time.Time `msgpack:"updated_at"`
	ExpireAt     time.Time `msgpack:"expire_at"`
}

// Backend is the contract every store implements.
type Backend interface {
	// GetRaw loads a record by key. A missing key is (zero, false, nil).
	GetRaw(key string) (Record, bool, error)
	// Put inserts or replaces a record.
	Put(r Record) error
	// Delete removes a record. Deleting a missing key is not an error.
	Delete(key string) error
	// Clear removes everything.
	Clear() error
	// Close releases the store's resources.
	Close() error
}

// Backend kinds accepted by New.
const (
	KindSQLite   = "sqlite"
	KindJSONL    = "jsonl"
	KindSnapshot = "snapshot"
	KindSharded  = "sharded"
	KindRedis    = "redis"
	KindPostgres = "postgres"
)

// New builds a backend by kind. An empty path picks a default under
// ~/.stock-quotes; for redis the path is an address and for postgres a DSN.
func New(kind, path string) (Backend, error) {
	switch kind {
	case KindSQLite, "":
		return NewSQLite(path)
	case KindJSONL:
		return NewJSONL(path)
	case KindSnapshot, "pickle", "pkl":
		return NewSnapshot(path)
	case KindSharded:
		return NewSharded(path)
	case KindRedis:
		return NewRedis(path)
	case KindPostgres:
		return NewPostgres(path)
	}
	return nil, fmt.Errorf("%w: unknown storage backend kind %q", common.ErrCache, kind)
}

func defaultPath(filename string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".stock-quotes", filename)
}

func ensureParentDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: creating cache directory for %v: %v", common.ErrCache, path, err)
	}
	return nil
}
