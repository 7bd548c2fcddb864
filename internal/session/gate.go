package session

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const gatePruneThreshold = 1000

// commandGate applies a per-user token bucket and a per guild+user cooldown
// to slash commands.
type commandGate struct {
	limit    rate.Limit
	burst    int
	cooldown time.Duration
	now      func() time.Time

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	lastUsed map[string]time.Time
}

type gateVerdict struct {
	allowed     bool
	rateLimited bool
	wait        time.Duration
}

func newCommandGate(perWindow int, window, cooldown time.Duration) *commandGate {
	return &commandGate{
		limit:    rate.Every(window / time.Duration(perWindow)),
		burst:    perWindow,
		cooldown: cooldown,
		now:      time.Now,
		limiters: make(map[string]*rate.Limiter),
		lastUsed: make(map[string]time.Time),
	}
}

func (g *commandGate) check(guildID, userID string) gateVerdict {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()

	lim, ok := g.limiters[userID]
	if !ok {
		lim = rate.NewLimiter(g.limit, g.burst)
		g.limiters[userID] = lim
	}

	key := guildID + "-" + userID
	if last, ok := g.lastUsed[key]; ok {
		if remaining := g.cooldown - now.Sub(last); remaining > 0 {
			return gateVerdict{wait: remaining}
		}
	}

	r := lim.ReserveN(now, 1)
	if delay := r.DelayFrom(now); !r.OK() || delay > 0 {
		r.CancelAt(now)
		return gateVerdict{rateLimited: true, wait: delay}
	}

	g.lastUsed[key] = now
	if len(g.lastUsed) > gatePruneThreshold {
		g.pruneLocked(now)
	}
	return gateVerdict{allowed: true}
}

func (g *commandGate) pruneLocked(now time.Time) {
	for key, last := range g.lastUsed {
		if now.Sub(last) >= g.cooldown {
			delete(g.lastUsed, key)
		}
	}
	for user, lim := range g.limiters {
		if lim.TokensAt(now) >= float64(g.burst) {
			delete(g.limiters, user)
		}
	}
}
