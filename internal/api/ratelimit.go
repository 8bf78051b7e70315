package api

import (
	"sync"

	"golang.org/x/time/rate"
)

// tenantLimiter throttles run submission per tenant so one tenant cannot
// starve the solver for everyone else.
type tenantLimiter struct {
	mu    sync.Mutex
	per   map[string]*rate.Limiter
	rps   rate.Limit
	burst int
}

func newTenantLimiter(rps float64, burst int) *tenantLimiter {
	return &tenantLimiter{per: map[string]*rate.Limiter{}, rps: rate.Limit(rps), burst: burst}
}

func (t *tenantLimiter) Allow(tenant string) bool {
	t.mu.Lock()
	l := t.per[tenant]
	if l == nil {
		l = rate.NewLimiter(t.rps, t.burst)
		t.per[tenant] = l
	}
	t.mu.Unlock()
	return l.Allow()
}
