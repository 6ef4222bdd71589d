//go:build integration

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	c, err := testcontainers.Run(ctx, "postgres:16-alpine",
		testcontainers.WithExposedPorts("5432/tcp"),
		testcontainers.WithEnv(map[string]string{
			"POSTGRES_USER":     "quotes",
			"POSTGRES_PASSWORD": "quotes",
			"POSTGRES_DB":       "quotes",
		}),
		testcontainers.WithWaitStrategy(
			wait.ForAll(
				wait.ForListeningPort("5432/tcp"),
				wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			).WithDeadline(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(c) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://quotes:quotes@%s:%s/quotes?sslmode=disable", host, port.Port())
}

func TestPostgresStore_RoundTripKeepsKeyOrder(t *testing.T) {
	url := startPostgres(t)
	ctx := context.Background()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s, err := Open(ctx, url, PoolConfig{MaxOpenConns: 4, MaxIdleConns: 2}, WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, "postgres", s.Driver())

	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Migrate(ctx))

	payload := json.RawMessage(`{"symbol":"HGLG11","price":160.2,"data_pag":"2024-01-11","data_com":"2024-01-01"}`)
	require.NoError(t, s.Upsert(ctx, "HGLG11", payload))

	e, found, err := s.Get(ctx, "HGLG11")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, string(payload), string(e.Payload))
	assert.True(t, now.Equal(e.UpdatedAt))

	now = now.Add(time.Hour)
	require.NoError(t, s.Upsert(ctx, "HGLG11", json.RawMessage(`{"v":2}`)))
	e, _, err = s.Get(ctx, "HGLG11")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(e.Payload))
	assert.True(t, now.Equal(e.UpdatedAt))

	require.NoError(t, s.Ping(ctx))
}
