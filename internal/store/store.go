// Package store persists upstream quote payloads keyed by asset code.
//
// One table, one row per code. Rows are only ever inserted or overwritten;
// freshness is decided by the caller from UpdatedAt.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// ErrStorage marks failures of the backing database.
var ErrStorage = errors.New("quote store failure")

// Entry is a cached payload and the time it was written.
type Entry struct {
	Payload   json.RawMessage
	UpdatedAt time.Time
}

// Fresh reports whether the entry is younger than ttl at now.
func (e Entry) Fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.UpdatedAt) < ttl
}

// PoolConfig bounds the database/sql connection pool.
type PoolConfig struct {
	MaxOpenConns int
	MaxIdleConns int
}

type Store struct {
	db      *sql.DB
	driver  string
	dialect dialect
	now     func() time.Time
}

type Option func(*Store)

// WithClock overrides the clock used to stamp upserts.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// Open connects to the database named by url and verifies it answers.
func Open(ctx context.Context, url string, pool PoolConfig, opts ...Option) (*Store, error) {
	driver, dsn, err := ParseDSN(url)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w: %w", driver, ErrStorage, err)
	}
	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	// each sqlite :memory: connection is its own database
	if driver == driverSQLite && inMemory(dsn) {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w: %w", driver, ErrStorage, err)
	}
	return New(db, driver, opts...)
}

// New wraps an already opened handle. driver is "postgres" or "sqlite".
func New(db *sql.DB, driver string, opts ...Option) (*Store, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db, driver: driver, dialect: d, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func (s *Store) Driver() string { return s.driver }

// Migrate creates the cache table when it does not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.schema); err != nil {
		return fmt.Errorf("migrate cache table: %w: %w", ErrStorage, err)
	}
	return nil
}

// Get looks code up. A missing row is not an error: found is false.
func (s *Store) Get(ctx context.Context, code string) (Entry, bool, error) {
	var (
		payload string
		ts      timestamp
	)
	err := s.db.QueryRowContext(ctx, s.dialect.get, code).Scan(&payload, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("get cache entry %s: %w: %w", code, ErrStorage, err)
	}
	return Entry{Payload: json.RawMessage(payload), UpdatedAt: ts.Time}, true, nil
}

// Upsert writes payload for code and stamps it with the store clock.
func (s *Store) Upsert(ctx context.Context, code string, payload json.RawMessage) error {
	// lib/pq sends []byte as bytea, which a JSON column rejects
	_, err := s.db.ExecContext(ctx, s.dialect.upsert, code, string(payload), s.dialect.stamp(s.now()))
	if err != nil {
		return fmt.Errorf("upsert cache entry %s: %w: %w", code, ErrStorage, err)
	}
	return nil
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	var one int
	if err := s.db.QueryRowContext(ctx, s.dialect.ping).Scan(&one); err != nil {
		return fmt.Errorf("ping: %w: %w", ErrStorage, err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }
