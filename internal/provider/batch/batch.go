// Package batch resolves lists of asset codes in bounded chunks.
package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"quoteexport/internal/provider"
)

// DefaultSize is the number of codes resolved concurrently.
const DefaultSize = 5

// Orchestrator resolves codes chunk by chunk. All codes of a chunk run
// concurrently and the chunk is joined before the next one starts. Results
// keep input order. Any failure fails the whole call once its chunk has
// joined; in-flight siblings are left to finish.
type Orchestrator struct {
	resolver provider.Resolver
	size     int
	log      zerolog.Logger
}

func New(r provider.Resolver, size int, log zerolog.Logger) *Orchestrator {
	if size <= 0 {
		size = DefaultSize
	}
	return &Orchestrator{resolver: r, size: size, log: log.With().Str("component", "batch").Logger()}
}

func (o *Orchestrator) ResolveAll(ctx context.Context, codes []string) ([]provider.Record, error) {
	out := make([]provider.Record, len(codes))
	if len(codes) == 0 {
		return out, nil
	}

	start := time.Now()
	for n, chunk := range chunkStrings(codes, o.size) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		base := n * o.size

		var g errgroup.Group
		for i, code := range chunk {
			g.Go(func() error {
				rec, err := o.resolver.Resolve(ctx, code)
				if err != nil {
					return fmt.Errorf("resolve %s: %w", code, err)
				}
				out[base+i] = rec
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			o.log.Warn().Err(err).Int("chunk", n).Msg("batch failed")
			return nil, err
		}
	}

	o.log.Debug().Int("codes", len(codes)).Dur("duration", time.Since(start)).Msg("batch resolved")
	return out, nil
}

func chunkStrings(in []string, size int) [][]string {
	if size <= 0 || len(in) == 0 {
		return [][]string{in}
	}
	out := make([][]string, 0, (len(in)+size-1)/size)
	for i := 0; i < len(in); i += size {
		j := i + size
		if j > len(in) {
			j = len(in)
		}
		out = append(out, in[i:j])
	}
	return out
}
