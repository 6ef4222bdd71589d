package batch

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quoteexport/internal/provider"
)

func TestResolveAll_PreservesOrder(t *testing.T) {
	t.Parallel()

	// Arrange: resolvers finish in random order
	r := provider.ResolverFunc(func(ctx context.Context, code string) (provider.Record, error) {
		time.Sleep(time.Duration(rand.Intn(20)) * time.Millisecond)
		return provider.MustRecord("symbol", code), nil
	})
	o := New(r, 5, zerolog.Nop())
	codes := []string{"A", "B", "C", "D", "E", "F", "G"}

	// Act
	recs, err := o.ResolveAll(context.Background(), codes)

	// Assert
	require.NoError(t, err)
	require.Len(t, recs, len(codes))
	for i, rec := range recs {
		s, _ := rec.String("symbol")
		assert.Equal(t, codes[i], s)
	}
}

func TestResolveAll_ChunksBoundConcurrency(t *testing.T) {
	t.Parallel()

	// Arrange
	var (
		inFlight atomic.Int32
		peak     atomic.Int32
		mu       sync.Mutex
		started  []string
	)
	r := provider.ResolverFunc(func(ctx context.Context, code string) (provider.Record, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		mu.Lock()
		started = append(started, code)
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		return provider.MustRecord("symbol", code), nil
	})
	o := New(r, 5, zerolog.Nop())

	// Act
	_, err := o.ResolveAll(context.Background(), []string{"A", "B", "C", "D", "E", "F", "G"})

	// Assert: the second chunk starts after the first joined
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(5))
	require.Len(t, started, 7)
	assert.ElementsMatch(t, []string{"A", "B", "C", "D", "E"}, started[:5])
	assert.ElementsMatch(t, []string{"F", "G"}, started[5:])
}

func TestResolveAll_FailsWholeBatch(t *testing.T) {
	t.Parallel()

	// Arrange
	boom := errors.New("boom")
	var calls atomic.Int32
	r := provider.ResolverFunc(func(ctx context.Context, code string) (provider.Record, error) {
		calls.Add(1)
		if code == "C" {
			return provider.Record{}, boom
		}
		return provider.MustRecord("symbol", code), nil
	})
	o := New(r, 2, zerolog.Nop())

	// Act
	recs, err := o.ResolveAll(context.Background(), []string{"A", "B", "C", "D", "E", "F"})

	// Assert: chunk [C D] ran to completion, [E F] never started
	require.ErrorIs(t, err, boom)
	require.Contains(t, err.Error(), "resolve C")
	assert.Nil(t, recs)
	assert.Equal(t, int32(4), calls.Load())
}

func TestResolveAll_Empty(t *testing.T) {
	t.Parallel()

	o := New(provider.ResolverFunc(func(ctx context.Context, code string) (provider.Record, error) {
		t.Fatal("unexpected resolve")
		return provider.Record{}, nil
	}), 0, zerolog.Nop())

	recs, err := o.ResolveAll(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, recs)
	assert.Empty(t, recs)
}

func TestResolveAll_CanceledContextStopsBeforeNextChunk(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	r := provider.ResolverFunc(func(_ context.Context, code string) (provider.Record, error) {
		calls.Add(1)
		cancel()
		return provider.MustRecord("symbol", code), nil
	})

	_, err := New(r, 1, zerolog.Nop()).ResolveAll(ctx, []string{"A", "B"})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), calls.Load())
}

func TestChunkStrings(t *testing.T) {
	t.Parallel()

	assert.Equal(t, [][]string{{"A", "B"}, {"C"}}, chunkStrings([]string{"A", "B", "C"}, 2))
	assert.Equal(t, [][]string{{"A", "B", "C"}}, chunkStrings([]string{"A", "B", "C"}, 5))
	assert.Equal(t, [][]string{{"A"}, {"B"}}, chunkStrings([]string{"A", "B"}, 1))
}
