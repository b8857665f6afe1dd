// Package ratelimit regulates outbound traffic: a per-vendor spacing table
// for city portals and a header-driven limiter for the LLM provider. Both
// are process-global handles threaded explicitly through the conductor,
// processor, and adapters.
package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/agendawatch/agendawatch/pkg/config"
	"github.com/agendawatch/agendawatch/pkg/models"
)

// VendorLimiter enforces a minimum spacing between requests to each
// vendor, plus a small random jitter so polls do not look mechanical.
// There is no per-city dimension: all cities on one vendor share the slot.
type VendorLimiter struct {
	cfg *config.VendorRateConfig

	mu   sync.Mutex
	next map[models.Vendor]time.Time

	// now and jitter are swappable for tests.
	now    func() time.Time
	jitter func(v models.Vendor) time.Duration
}

// NewVendorLimiter creates a limiter with the configured spacing table.
func NewVendorLimiter(cfg *config.VendorRateConfig) *VendorLimiter {
	l := &VendorLimiter{
		cfg:  cfg,
		next: make(map[models.Vendor]time.Time),
		now:  time.Now,
	}
	l.jitter = defaultJitter
	return l
}

// defaultJitter returns U(0,1)s, doubled for civicplus whose blocker
// punishes regular traffic hardest.
func defaultJitter(v models.Vendor) time.Duration {
	max := 1 * time.Second
	if v == models.VendorCivicPlus {
		max = 2 * time.Second
	}
	return time.Duration(rand.Float64() * float64(max))
}

// Wait blocks until the vendor's slot is free, honoring ctx cancellation.
func (l *VendorLimiter) Wait(ctx context.Context, vendor models.Vendor) error {
	d := l.reserve(vendor)
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// reserve computes this caller's wait and advances the vendor slot so
// concurrent callers serialize. Each reservation lands at least the
// configured spacing after the previous one, plus jitter.
func (l *VendorLimiter) reserve(vendor models.Vendor) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	target := now
	if prev, ok := l.next[vendor]; ok {
		earliest := prev.Add(l.cfg.SpacingFor(vendor))
		if earliest.After(target) {
			target = earliest
		}
	}
	target = target.Add(l.jitter(vendor))
	l.next[vendor] = target
	return target.Sub(now)
}
