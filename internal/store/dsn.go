package store

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedDSN is returned for connection strings whose scheme has no driver.
var ErrUnsupportedDSN = errors.New("unsupported database url")

const (
	driverPostgres = "postgres"
	driverSQLite   = "sqlite"
)

// ParseDSN maps DATABASE_URL onto a database/sql driver name and the DSN that
// driver expects.
//
//	postgres://..., postgresql://..., "host=... dbname=..."  -> lib/pq
//	sqlite://path, file:path?..., :memory:                   -> modernc sqlite
func ParseDSN(url string) (driver, dsn string, err error) {
	u := strings.TrimSpace(url)
	switch {
	case u == "":
		return "", "", fmt.Errorf("%w: empty", ErrUnsupportedDSN)
	case strings.HasPrefix(u, "postgres://"), strings.HasPrefix(u, "postgresql://"):
		return driverPostgres, u, nil
	case strings.HasPrefix(u, "host=") || strings.Contains(u, " dbname="):
		return driverPostgres, u, nil
	case strings.HasPrefix(u, "sqlite://"):
		p := strings.TrimPrefix(u, "sqlite://")
		if p == "" {
			return "", "", fmt.Errorf("%w: sqlite url without path", ErrUnsupportedDSN)
		}
		return driverSQLite, p, nil
	case strings.HasPrefix(u, "file:"), u == ":memory:":
		return driverSQLite, u, nil
	}
	scheme := u
	if i := strings.Index(u, "://"); i >= 0 {
		scheme = u[:i]
	}
	return "", "", fmt.Errorf("%w: %q", ErrUnsupportedDSN, scheme)
}

func inMemory(dsn string) bool {
	return dsn == ":memory:" || strings.Contains(dsn, "mode=memory")
}
