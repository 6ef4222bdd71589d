// Package cache resolves quotes cache-aside over a persistent store.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"quoteexport/internal/provider"
	"quoteexport/internal/store"
)

// DefaultTTL is how long a cached payload is served without refetching.
const DefaultTTL = 432000 * time.Second

// DefaultFlightTimeout bounds one shared lookup and fetch.
const DefaultFlightTimeout = time.Minute

// Store is the persistence the resolver needs.
type Store interface {
	Get(ctx context.Context, code string) (store.Entry, bool, error)
	Upsert(ctx context.Context, code string, payload json.RawMessage) error
}

// Resolver serves fresh cached payloads and refetches everything else.
// A failed refetch is returned as is: a stale payload is never served and
// nothing is written for the failure.
type Resolver struct {
	fetcher provider.Fetcher
	store   Store
	ttl     time.Duration
	flight  time.Duration
	now     func() time.Time
	log     zerolog.Logger

	sf singleflight.Group
}

type Option func(*Resolver)

func WithTTL(ttl time.Duration) Option { return func(r *Resolver) { r.ttl = ttl } }

// WithFlightTimeout bounds a shared resolve. It runs detached from the
// callers' contexts, so this is its only deadline.
func WithFlightTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.flight = d
		}
	}
}

// WithClock sets the clock freshness is judged against.
func WithClock(now func() time.Time) Option { return func(r *Resolver) { r.now = now } }

func WithLogger(log zerolog.Logger) Option {
	return func(r *Resolver) { r.log = log.With().Str("component", "cache").Logger() }
}

func New(f provider.Fetcher, s Store, opts ...Option) *Resolver {
	r := &Resolver{fetcher: f, store: s, ttl: DefaultTTL, flight: DefaultFlightTimeout, now: time.Now, log: zerolog.Nop()}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve returns the payload for code. Concurrent calls for the same code
// share one lookup and at most one upstream fetch. The shared work does not
// inherit any caller's cancellation: a caller whose ctx ends gets ctx.Err()
// and the others keep waiting.
func (r *Resolver) Resolve(ctx context.Context, code string) (provider.Record, error) {
	ch := r.sf.DoChan(code, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.flight)
		defer cancel()
		return r.resolve(fctx, code)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return provider.Record{}, res.Err
		}
		if res.Shared {
			r.log.Debug().Str("symbol", code).Msg("coalesced resolve")
		}
		return res.Val.(provider.Record), nil
	case <-ctx.Done():
		return provider.Record{}, ctx.Err()
	}
}

func (r *Resolver) resolve(ctx context.Context, code string) (provider.Record, error) {
	entry, found, err := r.store.Get(ctx, code)
	if err != nil {
		return provider.Record{}, err
	}
	if found && entry.Fresh(r.now(), r.ttl) {
		rec, err := provider.ParseRecord(entry.Payload)
		if err == nil {
			r.log.Debug().Str("symbol", code).Time("updated_at", entry.UpdatedAt).Msg("cache hit")
			return rec, nil
		}
		r.log.Warn().Err(err).Str("symbol", code).Msg("unreadable cached payload, refetching")
	}

	r.log.Debug().Str("symbol", code).Bool("stale", found).Msg("cache miss")
	rec, err := r.fetcher.Fetch(ctx, code)
	if err != nil {
		return provider.Record{}, err
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return provider.Record{}, fmt.Errorf("encode %s payload: %w", code, err)
	}
	if err := r.store.Upsert(ctx, code, payload); err != nil {
		return provider.Record{}, err
	}
	return rec, nil
}
