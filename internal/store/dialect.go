package store

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type dialect struct {
	schema string
	get    string
	upsert string
	ping   string
	// encodes updated_at for the upsert parameter
	stamp func(time.Time) any
}

// The postgres payload column is JSON, not JSONB: JSONB normalises key order
// and the CSV header depends on the upstream order.
var postgresDialect = dialect{
	schema: `CREATE TABLE IF NOT EXISTS cache (
	key        TEXT PRIMARY KEY,
	data_json  JSON NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`,
	get: `SELECT data_json, updated_at FROM cache WHERE key = $1`,
	upsert: `INSERT INTO cache (key, data_json, updated_at) VALUES ($1, $2, $3)
ON CONFLICT (key) DO UPDATE SET data_json = EXCLUDED.data_json, updated_at = EXCLUDED.updated_at`,
	ping:  `SELECT 1`,
	stamp: func(t time.Time) any { return t.UTC() },
}

var sqliteDialect = dialect{
	schema: `CREATE TABLE IF NOT EXISTS cache (
	key        TEXT PRIMARY KEY,
	data_json  TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`,
	get: `SELECT data_json, updated_at FROM cache WHERE key = ?`,
	upsert: `INSERT INTO cache (key, data_json, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET data_json = excluded.data_json, updated_at = excluded.updated_at`,
	ping:  `SELECT 1`,
	stamp: func(t time.Time) any { return t.UnixMilli() },
}

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case driverPostgres:
		return postgresDialect, nil
	case driverSQLite:
		return sqliteDialect, nil
	}
	return dialect{}, fmt.Errorf("%w: driver %q", ErrUnsupportedDSN, driver)
}

// timestamp scans updated_at whatever the driver hands back: time.Time from
// lib/pq, unix milliseconds from the sqlite column, or text written by hand.
type timestamp struct{ time.Time }

func (ts *timestamp) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		ts.Time = v
	case int64:
		ts.Time = time.UnixMilli(v)
	case float64:
		ts.Time = time.UnixMilli(int64(v))
	case []byte:
		return ts.parse(string(v))
	case string:
		return ts.parse(v)
	case nil:
		return fmt.Errorf("updated_at is null")
	default:
		return fmt.Errorf("unsupported updated_at type %T", src)
	}
	return nil
}

func (ts *timestamp) parse(s string) error {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		ts.Time = time.UnixMilli(n)
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			ts.Time = t
			return nil
		}
	}
	return fmt.Errorf("unparseable updated_at %q", s)
}
