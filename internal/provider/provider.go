package provider

import (
	"context"
	"errors"
)

// ErrUpstream marks failures talking to the remote quote API: transport errors,
// non-2xx statuses and bodies that are not a JSON object.
var ErrUpstream = errors.New("upstream quote fetch failed")

// Fetcher retrieves the current quote payload for one asset code.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, code string) (Record, error)
}

// Resolver returns a quote payload for one asset code, from wherever it sees fit.
type Resolver interface {
	Resolve(ctx context.Context, code string) (Record, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, code string) (Record, error)

func (f ResolverFunc) Resolve(ctx context.Context, code string) (Record, error) { return f(ctx, code) }
