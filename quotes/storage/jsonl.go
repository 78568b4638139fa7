package storage

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/marianogappa/stock-quotes/quotes/common"
)

// JSONL is a Backend over one JSON-lines file: the whole map lives in memory
// and every mutation rewrites the file. Plenty for a single process, and the
// file stays greppable.
type JSONL struct {
	path string
	mu   sync.Mutex
	data map[string]jsonlRecord
}

type jsonlRecord struct {
	Key          string    `json:"cache_key"`
	Symbol       string    `json:"symbol"`
	Name         string    `json:"name"`
	Data         string    `json:"data"`
	EarliestDate string    `json:"earliest_date"`
	LatestDate   string    `json:"latest_date"`
	Freq         string    `json:"freq"`
	FQ           string    `json:"fq"`
	UpdatedAt    time.Time `json:"updated_at"`
	ExpireAt     time.Time `json:"expire_at"`
}

// NewJSONL opens (or creates) a JSONL store. Corrupted lines in an existing
// file are skipped with a warning rather than failing the open.
func NewJSONL(path string) (*JSONL, error) {
	if path == "" {
		path = defaultPath("cache.jsonl")
	}
	if err := ensureParentDir(path); err != nil {
		return nil, err
	}
	j := &JSONL{path: path, data: map[string]jsonlRecord{}}
	if err := j.load(); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *JSONL) load() error {
	bs, err := os.ReadFile(j.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: reading %v: %v", common.ErrCache, j.path, err)
	}
	scanner := bufio.NewScanner(bytes.NewReader(bs))
	scanner.Buffer(make([]byte, 0, 1024*1024), 64*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec jsonlRecord
		if err := json.Unmarshal(line, &rec); err != nil || rec.Key == "" {
			log.Warn().Msgf("Skipping corrupted cache line %v in %v", lineNo, j.path)
			continue
		}
		j.data[rec.Key] = rec
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%w: reading %v: %v", common.ErrCache, j.path, err)
	}
	return nil
}

// save rewrites the whole file. Keys are written sorted so diffs stay stable.
func (j *JSONL) save() error {
	keys := make([]string, 0, len(j.data))
	for k := range j.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var buf bytes.Buffer
	for _, k := range keys {
		bs, err := json.Marshal(j.data[k])
		if err != nil {
			return fmt.Errorf("%w: encoding key %v: %v", common.ErrCache, k, err)
		}
		buf.Write(bs)
		buf.WriteByte('\n')
	}
	if err := os.WriteFile(j.path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("%w: writing %v: %v", common.ErrCache, j.path, err)
	}
	return nil
}

func (j *JSONL) GetRaw(key string) (Record, bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	rec, ok := j.data[key]
	if !ok {
		return Record{}, false, nil
	}
	data, err := base64.StdEncoding.DecodeString(rec.Data)
	if err != nil {
		return Record{}, false, fmt.Errorf("%w: corrupted data blob for key %v: %v", common.ErrCache, key, err)
	}
	return Record{
		Key:          rec.Key,
		Symbol:       rec.Symbol,
		Name:         rec.Name,
		Data:         data,
		EarliestDate: rec.EarliestDate,
		LatestDate:   rec.LatestDate,
		Freq:         rec.Freq,
		FQ:           rec.FQ,
		UpdatedAt:    rec.UpdatedAt,
		ExpireAt:     rec.ExpireAt,
	}, true, nil
}

func (j *JSONL) Put(r Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.data[r.Key] = jsonlRecord{
		Key:          r.Key,
		Symbol:       r.Symbol,
		Name:         r.Name,
		Data:         base64.StdEncoding.EncodeToString(r.Data),
		EarliestDate: r.EarliestDate,
		LatestDate:   r.LatestDate,
		Freq:         r.Freq,
		FQ:           r.FQ,
		UpdatedAt:    r.UpdatedAt,
		ExpireAt:     r.ExpireAt,
	}
	return j.save()
}

func (j *JSONL) Delete(key string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, ok := j.data[key]; !ok {
		return nil
	}
	delete(j.data, key)
	return j.save()
}

func (j *JSONL) Clear() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.data = map[string]jsonlRecord{}
	return j.save()
}

func (j *JSONL) Close() error {
	return nil
}

// keys returns the stored keys, for the sharded store's reporting.
func (j *JSONL) keys() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	keys := make([]string, 0, len(j.data))
	for k := range j.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
