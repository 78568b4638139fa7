package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/marianogappa/stock-quotes/quotes/common"
)

func TestSQLiteRoundTrip(t *testing.T) {
	b, err := NewSQLite(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer b.Close()

	_, found, err := b.GetRaw("sh600000:day:qfq")
	require.NoError(t, err)
	require.False(t, found)

	rec := testRecord("sh600000:day:qfq")
	require.NoError(t, b.Put(rec))

	got, found, err := b.GetRaw("sh600000:day:qfq")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, rec, got)
}

func TestSQLiteUpsertOverwrites(t *testing.T) {
	b, err := NewSQLite(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer b.Close()

	rec := testRecord("sh600000:day:qfq")
	require.NoError(t, b.Put(rec))

	rec.LatestDate = "2021-02-26"
	rec.Data = []byte("newer blob")
	require.NoError(t, b.Put(rec))

	got, found, err := b.GetRaw("sh600000:day:qfq")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "2021-02-26", got.LatestDate)
	require.Equal(t, []byte("newer blob"), got.Data)
}

func TestSQLiteDeleteAndClear(t *testing.T) {
	b, err := NewSQLite(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.Put(testRecord("sh600000:day:qfq")))
	require.NoError(t, b.Put(testRecord("sz000001:day:qfq")))

	require.NoError(t, b.Delete("sh600000:day:qfq"))
	require.NoError(t, b.Delete("nope:day:qfq"))

	_, found, err := b.GetRaw("sh600000:day:qfq")
	require.NoError(t, err)
	require.False(t, found)
	_, found, err = b.GetRaw("sz000001:day:qfq")
	require.NoError(t, err)
	require.True(t, found)

	require.NoError(t, b.Clear())
	_, found, err = b.GetRaw("sz000001:day:qfq")
	require.NoError(t, err)
	require.False(t, found)
}

func TestJSONLRoundTripAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.jsonl")

	b, err := NewJSONL(path)
	require.NoError(t, err)
	rec := testRecord("hk00700:day:qfq")
	require.NoError(t, b.Put(rec))
	require.NoError(t, b.Close())

	reopened, err := NewJSONL(path)
	require.NoError(t, err)
	got, found, err := reopened.GetRaw("hk00700:day:qfq")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, rec, got)
}

func TestJSONLSkipsCorruptedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.jsonl")
	valid := `{"cache_key":"sh600000:day:qfq","symbol":"sh600000","name":"浦发银行","data":"aGVsbG8=","earliest_date":"2021-01-04","latest_date":"2021-01-08","freq":"day","fq":"qfq","updated_at":"2021-01-08T15:00:00Z","expire_at":"2099-01-01T00:00:00Z"}`
	content := valid + "\nthis is not json\n" + `{"symbol":"record without a key"}` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	b, err := NewJSONL(path)
	require.NoError(t, err)

	got, found, err := b.GetRaw("sh600000:day:qfq")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("hello"), got.Data)
	require.Equal(t, "浦发银行", got.Name)
	require.Equal(t, []string{"sh600000:day:qfq"}, b.keys())
}

func TestJSONLDeleteMissingIsNoop(t *testing.T) {
	b, err := NewJSONL(filepath.Join(t.TempDir(), "cache.jsonl"))
	require.NoError(t, err)
	require.NoError(t, b.Delete("never stored"))
}

func TestSnapshotRoundTripAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.pkl")

	b, err := NewSnapshot(path)
	require.NoError(t, err)
	rec := testRecord("usAAPL.OQ:day:qfq")
	require.NoError(t, b.Put(rec))
	require.NoError(t, b.Close())

	reopened, err := NewSnapshot(path)
	require.NoError(t, err)
	got, found, err := reopened.GetRaw("usAAPL.OQ:day:qfq")
	require.NoError(t, err)
	require.True(t, found)
	requireSameRecord(t, rec, got)
}

func TestSnapshotUnreadableFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.pkl")
	require.NoError(t, os.WriteFile(path, []byte("definitely not msgpack"), 0o644))

	b, err := NewSnapshot(path)
	require.NoError(t, err)
	_, found, err := b.GetRaw("sh600000:day:qfq")
	require.NoError(t, err)
	require.False(t, found)
}

func TestShardedRoutesBySymbolMarket(t *testing.T) {
	dir := t.TempDir()
	b, err := NewSharded(dir)
	require.NoError(t, err)

	keys := map[string]string{
		"sh600000:day:qfq":  "cn",
		"hk00700:day:qfq":   "hk",
		"usAAPL.OQ:day:qfq": "us",
		"fuM2501:day:":      "fu",
		"600000:day:qfq":    "cn",
	}
	for key := range keys {
		require.NoError(t, b.Put(testRecord(key)))
	}

	for key, market := range keys {
		_, statErr := os.Stat(filepath.Join(dir, market+".jsonl"))
		require.NoError(t, statErr)
		_, found, err := b.GetRaw(key)
		require.NoError(t, err)
		require.True(t, found, "key %v not found in shard %v", key, market)
	}
}

func TestShardedShardsAreIndependentFiles(t *testing.T) {
	dir := t.TempDir()
	b, err := NewSharded(dir)
	require.NoError(t, err)

	require.NoError(t, b.Put(testRecord("sh600000:day:qfq")))
	require.NoError(t, b.Put(testRecord("hk00700:day:qfq")))

	cn, err := os.ReadFile(filepath.Join(dir, "cn.jsonl"))
	require.NoError(t, err)
	require.Contains(t, string(cn), "sh600000")
	require.NotContains(t, string(cn), "hk00700")
}

func TestShardedStatusRows(t *testing.T) {
	dir := t.TempDir()
	b, err := NewSharded(dir)
	require.NoError(t, err)

	shRec := testRecord("sh600000:day:qfq")
	shRec.Data = seriesBlob(t, "2021-01-04", "2021-01-05", "2021-01-06")
	require.NoError(t, b.Put(shRec))

	hkRec := testRecord("hk00700:day:qfq")
	hkRec.Data = seriesBlob(t, "2021-01-04")
	require.NoError(t, b.Put(hkRec))

	rows, err := b.StatusRows()
	require.NoError(t, err)
	require.Equal(t, []StatusRow{
		{Market: "cn", Symbol: "sh600000", Earliest: "2021-01-04", Latest: "2021-01-08", Rows: 3},
		{Market: "hk", Symbol: "hk00700", Earliest: "2021-01-04", Latest: "2021-01-08", Rows: 1},
	}, rows)

	rows, err = b.StatusRows("hk00700")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "hk00700", rows[0].Symbol)
}

func TestShardedClearRemovesShardFiles(t *testing.T) {
	dir := t.TempDir()
	b, err := NewSharded(dir)
	require.NoError(t, err)

	require.NoError(t, b.Put(testRecord("sh600000:day:qfq")))
	require.NoError(t, b.Put(testRecord("hk00700:day:qfq")))
	require.NoError(t, b.Clear())

	_, statErr := os.Stat(filepath.Join(dir, "cn.jsonl"))
	require.True(t, os.IsNotExist(statErr))

	_, found, err := b.GetRaw("sh600000:day:qfq")
	require.NoError(t, err)
	require.False(t, found)
}

func TestNewPicksBackendByKind(t *testing.T) {
	dir := t.TempDir()

	b, err := New("", filepath.Join(dir, "cache.db"))
	require.NoError(t, err)
	require.IsType(t, &SQL{}, b)
	require.NoError(t, b.Close())

	b, err = New(KindJSONL, filepath.Join(dir, "cache.jsonl"))
	require.NoError(t, err)
	require.IsType(t, &JSONL{}, b)

	for _, kind := range []string{KindSnapshot, "pickle", "pkl"} {
		b, err = New(kind, filepath.Join(dir, "cache.pkl"))
		require.NoError(t, err)
		require.IsType(t, &Snapshot{}, b)
	}

	b, err = New(KindSharded, filepath.Join(dir, "shards"))
	require.NoError(t, err)
	require.IsType(t, &Sharded{}, b)

	_, err = New("cassandra", "")
	require.ErrorIs(t, err, common.ErrCache)
	require.Contains(t, err.Error(), "unknown storage backend kind")
}

func TestRedisRoundTrip(t *testing.T) {
	addr := os.Getenv("QUOTES_TEST_REDIS")
	if addr == "" {
		t.Skip("set QUOTES_TEST_REDIS to a redis address to run this test")
	}

	b, err := NewRedis(addr)
	require.NoError(t, err)
	defer b.Close()
	require.NoError(t, b.Clear())

	rec := testRecord("sh600000:day:qfq")
	require.NoError(t, b.Put(rec))
	got, found, err := b.GetRaw("sh600000:day:qfq")
	require.NoError(t, err)
	require.True(t, found)
	requireSameRecord(t, rec, got)

	require.NoError(t, b.Clear())
	_, found, err = b.GetRaw("sh600000:day:qfq")
	require.NoError(t, err)
	require.False(t, found)
}

func TestPostgresRoundTrip(t *testing.T) {
	dsn := os.Getenv("QUOTES_TEST_POSTGRES")
	if dsn == "" {
		t.Skip("set QUOTES_TEST_POSTGRES to a postgres DSN to run this test")
	}

	b, err := NewPostgres(dsn)
	require.NoError(t, err)
	defer b.Close()
	require.NoError(t, b.Clear())

	rec := testRecord("sh600000:day:qfq")
	require.NoError(t, b.Put(rec))
	got, found, err := b.GetRaw("sh600000:day:qfq")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, rec, got)
}

// requireSameRecord compares records while tolerating the zone shift that
// msgpack time decoding introduces.
func requireSameRecord(t *testing.T, expected, actual Record) {
	t.Helper()
	require.True(t, expected.UpdatedAt.Equal(actual.UpdatedAt))
	require.True(t, expected.ExpireAt.Equal(actual.ExpireAt))
	actual.UpdatedAt, actual.ExpireAt = expected.UpdatedAt, expected.ExpireAt
	require.Equal(t, expected, actual)
}

func testRecord(key string) Record {
	return Record{
		Key:          key,
		Symbol:       strings.SplitN(key, ":", 2)[0],
		Name:         "浦发银行",
		Data:         []byte{0x81, 0xa1, 0x61, 0x01},
		EarliestDate: "2021-01-04",
		LatestDate:   "2021-01-08",
		Freq:         "day",
		FQ:           "qfq",
		UpdatedAt:    time.Date(2021, 1, 8, 15, 0, 0, 0, time.UTC),
		ExpireAt:     time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func seriesBlob(t *testing.T, dates ...string) []byte {
	rows := make([]common.Row, 0, len(dates))
	for _, date := range dates {
		rows = append(rows, common.Row{Date: common.DateString(date), Values: []common.JSONFloat64{1, 2}})
	}
	bs, err := msgpack.Marshal(common.Series{Columns: []string{"open", "close"}, Rows: rows})
	require.NoError(t, err)
	return bs
}
