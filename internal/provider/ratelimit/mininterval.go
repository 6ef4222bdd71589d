package ratelimit

import (
	"context"
	"sync"
	"time"

	"quoteexport/internal/provider"
)

// MinInterval spaces fetch starts at least Interval apart. Waiting callers
// give up when their context is done.
type MinInterval struct {
	F        provider.Fetcher
	Interval time.Duration

	mu   sync.Mutex
	next time.Time
}

func (m *MinInterval) Name() string { return m.F.Name() }

func (m *MinInterval) Fetch(ctx context.Context, code string) (provider.Record, error) {
	if m.Interval > 0 {
		if err := m.wait(ctx); err != nil {
			return provider.Record{}, err
		}
	}
	return m.F.Fetch(ctx, code)
}

// wait claims the next start slot, then sleeps until it.
func (m *MinInterval) wait(ctx context.Context) error {
	m.mu.Lock()
	now := time.Now()
	slot := m.next
	if slot.Before(now) {
		slot = now
	}
	m.next = slot.Add(m.Interval)
	m.mu.Unlock()

	d := time.Until(slot)
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
