package storage

import (
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/marianogappa/stock-quotes/quotes/common"
)

// Snapshot is a Backend that serializes the whole record map into a single
// msgpack blob per mutation. It replaces the original pickle store; the .pkl
// default suffix is kept so existing configured paths keep working.
type Snapshot struct {
	path string
	mu   sync.Mutex
	data map[string]Record
}

// NewSnapshot opens (or creates) a snapshot store. An unreadable blob starts
// the store empty with a warning instead of failing the open.
func NewSnapshot(path string) (*Snapshot, error) {
	if path == "" {
		path = defaultPath("cache.pkl")
	}
	if err := ensureParentDir(path); err != nil {
		return nil, err
	}
	s := &Snapshot{path: path, data: map[string]Record{}}
	bs, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading %v: %v", common.ErrCache, path, err)
	}
	if len(bs) > 0 {
		if err := msgpack.Unmarshal(bs, &s.data); err != nil {
			log.Warn().Msgf("Starting with an empty cache: snapshot %v is unreadable: %v", path, err)
			s.data = map[string]Record{}
		}
	}
	return s, nil
}

func (s *Snapshot) save() error {
	bs, err := msgpack.Marshal(s.data)
	if err != nil {
		return fmt.Errorf("%w: encoding snapshot: %v", common.ErrCache, err)
	}
	if err := os.WriteFile(s.path, bs, 0o644); err != nil {
		return fmt.Errorf("%w: writing %v: %v", common.ErrCache, s.path, err)
	}
	return nil
}

func (s *Snapshot) GetRaw(key string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.data[key]
	return rec, ok, nil
}

func (s *Snapshot) Put(r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[r.Key] = r
	return s.save()
}

func (s *Snapshot) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; !ok {
		return nil
	}
	delete(s.data, key)
	return s.save()
}

func (s *Snapshot) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = map[string]Record{}
	return s.save()
}

func (s *Snapshot) Close() error {
	return nil
}
