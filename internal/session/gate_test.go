package session

import (
	"testing"
	"time"
)

func TestCommandGate_RateLimitsPerUser(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g := newCommandGate(2, time.Minute, 0)
	g.now = func() time.Time { return now }

	for i := range 2 {
		if v := g.check("guild-1", "user-1"); !v.allowed {
			t.Fatalf("call %d should be allowed", i)
		}
	}
	v := g.check("guild-1", "user-1")
	if v.allowed || !v.rateLimited || v.wait <= 0 {
		t.Fatalf("third call should be rate limited with a wait, got %+v", v)
	}
	if v := g.check("guild-1", "user-2"); !v.allowed {
		t.Fatal("other users have their own bucket")
	}

	now = now.Add(30 * time.Second)
	if v := g.check("guild-1", "user-1"); !v.allowed {
		t.Fatalf("a token should refill after half the window, got %+v", v)
	}
}

func TestCommandGate_Cooldown(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g := newCommandGate(10, time.Minute, 3*time.Second)
	g.now = func() time.Time { return now }

	if v := g.check("guild-1", "user-1"); !v.allowed {
		t.Fatal("first call should be allowed")
	}
	now = now.Add(time.Second)
	v := g.check("guild-1", "user-1")
	if v.allowed || v.rateLimited || v.wait != 2*time.Second {
		t.Fatalf("expected a 2s cooldown, got %+v", v)
	}
	if v := g.check("guild-2", "user-1"); !v.allowed {
		t.Fatal("cooldown is per guild")
	}
	now = now.Add(2 * time.Second)
	if v := g.check("guild-1", "user-1"); !v.allowed {
		t.Fatal("call after cooldown should be allowed")
	}
}

func TestCommandGate_PrunesExpiredEntries(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g := newCommandGate(10, time.Minute, time.Second)
	g.now = func() time.Time { return now }

	for i := range gatePruneThreshold {
		g.check("guild-1", string(rune(0x4e00+i)))
	}
	now = now.Add(time.Hour)
	g.check("guild-1", "late-user")
	g.check("guild-2", "late-user")

	if len(g.lastUsed) > 2 {
		t.Fatalf("expired cooldowns should be pruned, %d left", len(g.lastUsed))
	}
}
