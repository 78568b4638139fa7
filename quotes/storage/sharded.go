package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/marianogappa/stock-quotes/quotes/common"
)

// Sharded splits records into one JSONL file per market (cn, hk, us, fu) under
// a directory, so one market's churn does not rewrite the others. Routing
// defaults to common.MarketOf over the key's symbol segment; unroutable
// symbols land in the cn shard.
type Sharded struct {
	dir    string
	route  func(symbol string) string
	mu     sync.Mutex
	shards map[string]*JSONL
}

// StatusRow describes one cached series in a shard.
type StatusRow struct {
	Market   string `json:"market"`
	Symbol   string `json:"symbol"`
	Earliest string `json:"earliest"`
	Latest   string `json:"latest"`
	Rows     int    `json:"rows"`
}

// NewSharded opens a sharded store rooted at dir.
func NewSharded(dir string) (*Sharded, error) {
	return NewShardedWithRouting(dir, common.MarketOf)
}

// NewShardedWithRouting opens a sharded store with a custom symbol-to-market
// routing function. Markets it returns become shard file names.
func NewShardedWithRouting(dir string, route func(symbol string) string) (*Sharded, error) {
	if dir == "" {
		dir = defaultPath("sharded")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating shard directory %v: %v", common.ErrCache, dir, err)
	}
	if route == nil {
		route = common.MarketOf
	}
	return &Sharded{dir: dir, route: route, shards: map[string]*JSONL{}}, nil
}

// shardFor routes a cache key to its shard, opening the shard file lazily.
// The symbol is the key's first ':'-separated segment.
func (s *Sharded) shardFor(key string) (*JSONL, string, error) {
	symbol := key
	if i := strings.IndexByte(key, ':'); i >= 0 {
		symbol = key[:i]
	}
	market := s.route(symbol)
	if market == "" {
		market = common.MarketCN
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if shard, ok := s.shards[market]; ok {
		return shard, market, nil
	}
	shard, err := NewJSONL(filepath.Join(s.dir, market+".jsonl"))
	if err != nil {
		return nil, "", err
	}
	s.shards[market] = shard
	return shard, market, nil
}

func (s *Sharded) GetRaw(key string) (Record, bool, error) {
	shard, _, err := s.shardFor(key)
	if err != nil {
		return Record{}, false, err
	}
	return shard.GetRaw(key)
}

func (s *Sharded) Put(r Record) error {
	shard, _, err := s.shardFor(r.Key)
	if err != nil {
		return err
	}
	return shard.Put(r)
}

func (s *Sharded) Delete(key string) error {
	shard, _, err := s.shardFor(key)
	if err != nil {
		return err
	}
	return shard.Delete(key)
}

// Clear removes every shard file under the directory.
func (s *Sharded) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("%w: listing shard directory %v: %v", common.ErrCache, s.dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
			return fmt.Errorf("%w: removing shard %v: %v", common.ErrCache, entry.Name(), err)
		}
	}
	s.shards = map[string]*JSONL{}
	return nil
}

func (s *Sharded) Close() error {
	return nil
}

// StatusRows reports every cached series across all shards on disk, optionally
// filtered to the given symbols. Rows whose blob cannot be decoded report a
// zero row count.
func (s *Sharded) StatusRows(symbols ...string) ([]StatusRow, error) {
	wanted := map[string]bool{}
	for _, sym := range symbols {
		wanted[sym] = true
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: listing shard directory %v: %v", common.ErrCache, s.dir, err)
	}
	markets := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		markets = append(markets, strings.TrimSuffix(entry.Name(), ".jsonl"))
	}
	sort.Strings(markets)

	var rows []StatusRow
	for _, market := range markets {
		s.mu.Lock()
		shard, ok := s.shards[market]
		if !ok {
			shard, err = NewJSONL(filepath.Join(s.dir, market+".jsonl"))
			if err != nil {
				s.mu.Unlock()
				return nil, err
			}
			s.shards[market] = shard
		}
		s.mu.Unlock()

		for _, key := range shard.keys() {
			rec, found, err := shard.GetRaw(key)
			if err != nil || !found {
				continue
			}
			if len(wanted) > 0 && !wanted[rec.Symbol] {
				continue
			}
			n := 0
			var series common.Series
			if err := msgpack.Unmarshal(rec.Data, &series); err == nil {
				n = series.Len()
			}
			rows = append(rows, StatusRow{
				Market:   market,
				Symbol:   rec.Symbol,
				Earliest: rec.EarliestDate,
				Latest:   rec.LatestDate,
				Rows:     n,
			})
		}
	}
	return rows, nil
}
