package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/marianogappa/stock-quotes/quotes/common"
)

// SQL is a Backend over a relational cache_data table. The sqlite and postgres
// flavours share everything except the upsert clause and the blob column type.
type SQL struct {
	db     *sqlx.DB
	upsert string
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS cache_data (
		cache_key     TEXT PRIMARY KEY,
		symbol        TEXT NOT NULL,
		name          TEXT,
		data          BLOB,
		earliest_date TEXT,
		latest_date   TEXT,
		freq          TEXT,
		fq            TEXT,
		updated_at    TEXT,
		expire_at     TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_symbol_freq_fq ON cache_data (symbol, freq, fq)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS cache_data (
		cache_key     TEXT PRIMARY KEY,
		symbol        TEXT NOT NULL,
		name          TEXT,
		data          BYTEA,
		earliest_date TEXT,
		latest_date   TEXT,
		freq          TEXT,
		fq            TEXT,
		updated_at    TEXT,
		expire_at     TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_symbol_freq_fq ON cache_data (symbol, freq, fq)`,
}

const sqliteUpsert = `INSERT OR REPLACE INTO cache_data
	(cache_key, symbol, name, data, earliest_date, latest_date, freq, fq, updated_at, expire_at)
	VALUES (:cache_key, :symbol, :name, :data, :earliest_date, :latest_date, :freq, :fq, :updated_at, :expire_at)`

const postgresUpsert = `INSERT INTO cache_data
	(cache_key, symbol, name, data, earliest_date, latest_date, freq, fq, updated_at, expire_at)
	VALUES (:cache_key, :symbol, :name, :data, :earliest_date, :latest_date, :freq, :fq, :updated_at, :expire_at)
	ON CONFLICT (cache_key) DO UPDATE SET
		symbol = EXCLUDED.symbol,
		name = EXCLUDED.name,
		data = EXCLUDED.data,
		earliest_date = EXCLUDED.earliest_date,
		latest_date = EXCLUDED.latest_date,
		freq = EXCLUDED.freq,
		fq = EXCLUDED.fq,
		updated_at = EXCLUDED.updated_at,
		expire_at = EXCLUDED.expire_at`

// NewSQLite opens (or creates) the sqlite-backed store. WAL keeps concurrent
// readers out of the writers' way; busy_timeout covers the rest.
func NewSQLite(path string) (*SQL, error) {
	if path == "" {
		path = defaultPath("cache.db")
	}
	if err := ensureParentDir(path); err != nil {
		return nil, err
	}
	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("%w: opening sqlite cache at %v: %v", common.ErrCache, path, err)
	}
	return newSQL(db, sqliteSchema, sqliteUpsert)
}

// NewPostgres opens the postgres-backed store for fleets that want one cache
// shared across hosts.
func NewPostgres(dsn string) (*SQL, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: postgres backend needs a DSN", common.ErrCache)
	}
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: opening postgres cache: %v", common.ErrCache, err)
	}
	return newSQL(db, postgresSchema, postgresUpsert)
}

func newSQL(db *sqlx.DB, schema []string, upsert string) (*SQL, error) {
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("%w: pinging cache database: %v", common.ErrCache, err)
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("%w: bootstrapping cache schema: %v", common.ErrCache, err)
		}
	}
	return &SQL{db: db, upsert: upsert}, nil
}

type sqlRow struct {
	Key          string `db:"cache_key"`
	Symbol       string `db:"symbol"`
	Name         string `db:"name"`
	Data         []byte `db:"data"`
	EarliestDate string `db:"earliest_date"`
	LatestDate   string `db:"latest_date"`
	Freq         string `db:"freq"`
	FQ           string `db:"fq"`
	UpdatedAt    string `db:"updated_at"`
	ExpireAt     string `db:"expire_at"`
}

func (r sqlRow) toRecord() Record {
	updatedAt, _ := time.Parse(time.RFC3339Nano, r.UpdatedAt)
	expireAt, _ := time.Parse(time.RFC3339Nano, r.ExpireAt)
	return Record{
		Key:          r.Key,
		Symbol:       r.Symbol,
		Name:         r.Name,
		Data:         r.Data,
		EarliestDate: r.EarliestDate,
		LatestDate:   r.LatestDate,
		Freq:         r.Freq,
		FQ:           r.FQ,
		UpdatedAt:    updatedAt,
		ExpireAt:     expireAt,
	}
}

func fromRecord(r Record) sqlRow {
	return sqlRow{
		Key:          r.Key,
		Symbol:       r.Symbol,
		Name:         r.Name,
		Data:         r.Data,
		EarliestDate: r.EarliestDate,
		LatestDate:   r.LatestDate,
		Freq:         r.Freq,
		FQ:           r.FQ,
		UpdatedAt:    r.UpdatedAt.Format(time.RFC3339Nano),
		ExpireAt:     r.ExpireAt.Format(time.RFC3339Nano),
	}
}

func (s *SQL) GetRaw(key string) (Record, bool, error) {
	var row sqlRow
	query := s.db.Rebind(`SELECT cache_key, symbol, name, data, earliest_date, latest_date, freq, fq, updated_at, expire_at
		FROM cache_data WHERE cache_key = ?`)
	err := s.db.Get(&row, query, key)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("%w: reading key %v: %v", common.ErrCache, key, err)
	}
	return row.toRecord(), true, nil
}

func (s *SQL) Put(r Record) error {
	if _, err := s.db.NamedExec(s.upsert, fromRecord(r)); err != nil {
		return fmt.Errorf("%w: writing key %v: %v", common.ErrCache, r.Key, err)
	}
	return nil
}

func (s *SQL) Delete(key string) error {
	if _, err := s.db.Exec(s.db.Rebind(`DELETE FROM cache_data WHERE cache_key = ?`), key); err != nil {
		return fmt.Errorf("%w: deleting key %v: %v", common.ErrCache, key, err)
	}
	return nil
}

func (s *SQL) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM cache_data`); err != nil {
		return fmt.Errorf("%w: clearing cache table: %v", common.ErrCache, err)
	}
	return nil
}

func (s *SQL) Close() error {
	return s.db.Close()
}
