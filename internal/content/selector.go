package content

import (
	"errors"
	"math/rand/v2"
	"sort"
	"sync"
	"time"
)

// RecentWindow is how long a delivered item stays excluded for its guild.
const RecentWindow = 24 * time.Hour

var ErrDataUnavailable = errors.New("content catalog is empty")

type RecentUse struct {
	ItemID ItemID
	UsedAt time.Time
}

// Selector picks catalog items per guild without repeating any item delivered
// within RecentWindow, unless every item has been delivered.
type Selector struct {
	mu      sync.Mutex
	history map[Kind]map[string][]RecentUse
	now     func() time.Time
	intn    func(n int) int
}

func NewSelector() *Selector {
	return &Selector{
		history: make(map[Kind]map[string][]RecentUse),
		now:     time.Now,
		intn:    rand.IntN,
	}
}

// SelectAndMark returns a random item not used by the guild within the recent
// window and records it as used. When nothing is left, the guild's history for
// that kind is reset and the choice is made from the whole catalog.
func (s *Selector) SelectAndMark(catalog *Catalog, guildID string) (Item, error) {
	if catalog.Len() == 0 {
		return Item{}, ErrDataUnavailable
	}
	kind := catalog.Kind()

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	recent := fresh(s.history[kind][guildID], now)
	used := make(map[ItemID]struct{}, len(recent))
	for _, r := range recent {
		used[r.ItemID] = struct{}{}
	}

	candidates := make([]int, 0, len(catalog.items))
	for i, item := range catalog.items {
		if _, ok := used[item.ID]; !ok {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		recent = nil
		for i := range catalog.items {
			candidates = append(candidates, i)
		}
	}

	item := catalog.items[candidates[s.intn(len(candidates))]]
	recent = append(recent, RecentUse{ItemID: item.ID, UsedAt: now})

	guilds := s.history[kind]
	if guilds == nil {
		guilds = make(map[string][]RecentUse)
		s.history[kind] = guilds
	}
	guilds[guildID] = recent
	return item, nil
}

// Recent returns the guild's entries for kind that are still inside the window.
func (s *Selector) Recent(kind Kind, guildID string) []RecentUse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fresh(s.history[kind][guildID], s.now())
}

// Sweep drops expired entries and guilds left with no entries. It returns how
// many guild histories were removed.
func (s *Selector) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for _, guilds := range s.history {
		for guildID, entries := range guilds {
			kept := fresh(entries, now)
			if len(kept) == 0 {
				delete(guilds, guildID)
				removed++
				continue
			}
			guilds[guildID] = kept
		}
	}
	return removed
}

func (s *Selector) ForgetGuild(guildID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, guilds := range s.history {
		delete(guilds, guildID)
	}
}

// Snapshot copies the history of one kind, keyed by guild.
func (s *Selector) Snapshot(kind Kind) map[string][]RecentUse {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string][]RecentUse, len(s.history[kind]))
	for guildID, entries := range s.history[kind] {
		out[guildID] = append([]RecentUse(nil), entries...)
	}
	return out
}

// Restore replaces the history of one kind. Stale entries are kept as given
// and filtered on the next read.
func (s *Selector) Restore(kind Kind, history map[string][]RecentUse) {
	s.mu.Lock()
	defer s.mu.Unlock()

	guilds := make(map[string][]RecentUse, len(history))
	for guildID, entries := range history {
		if len(entries) == 0 {
			continue
		}
		guilds[guildID] = append([]RecentUse(nil), entries...)
	}
	s.history[kind] = guilds
}

// Guilds lists guild IDs with history for kind, sorted.
func (s *Selector) Guilds(kind Kind) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.history[kind]))
	for id := range s.history[kind] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func fresh(entries []RecentUse, now time.Time) []RecentUse {
	kept := make([]RecentUse, 0, len(entries))
	for _, e := range entries {
		if now.Sub(e.UsedAt) < RecentWindow {
			kept = append(kept, e)
		}
	}
	return kept
}
