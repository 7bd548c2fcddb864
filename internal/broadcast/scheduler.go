package broadcast

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/foxseedlab/azkar-bot/internal/content"
	"github.com/foxseedlab/azkar-bot/internal/discord"
)

const (
	MinIntervalMinutes = 30
	MaxIntervalMinutes = 360
)

var (
	ErrAlreadyActive   = errors.New("broadcast already active in guild")
	ErrNotActive       = errors.New("no active broadcast in guild")
	ErrInvalidDuration = fmt.Errorf("interval must be between %d and %d minutes", MinIntervalMinutes, MaxIntervalMinutes)
	ErrChannelGone     = errors.New("broadcast channel no longer resolves")
)

type Session struct {
	GuildID   string
	ChannelID string
	Interval  time.Duration
	StartedAt time.Time
}

type Sender interface {
	SendEmbed(channelID string, embed discord.Embed) error
	ChannelExists(guildID, channelID string) bool
}

type Renderer func(item content.Item) discord.Embed

type Hooks struct {
	// Changed runs after a session is added or removed.
	Changed func()
	// SelfStopped runs after a session ended on its own.
	SelfStopped func(Session, error)
}

// Scheduler runs one periodic delivery per guild for a single content kind.
type Scheduler struct {
	kind     content.Kind
	catalog  *content.Catalog
	selector *content.Selector
	sender   Sender
	render   Renderer
	hooks    Hooks

	now       func() time.Time
	newTicker func(time.Duration) (<-chan time.Time, func())

	mu       sync.Mutex
	sessions map[string]*running
}

type running struct {
	Session
	stop     chan struct{}
	stopOnce sync.Once

	// delivering is held for the whole of one tick.
	delivering sync.Mutex
}

func (r *running) halt() {
	r.stopOnce.Do(func() { close(r.stop) })
}

func NewScheduler(
	catalog *content.Catalog,
	selector *content.Selector,
	sender Sender,
	render Renderer,
	hooks Hooks,
) *Scheduler {
	return &Scheduler{
		kind:      catalog.Kind(),
		catalog:   catalog,
		selector:  selector,
		sender:    sender,
		render:    render,
		hooks:     hooks,
		now:       time.Now,
		newTicker: realTicker,
		sessions:  make(map[string]*running),
	}
}

func realTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

func (s *Scheduler) Kind() content.Kind {
	return s.kind
}

// Start begins delivering to channelID every minutes, with the first item sent
// right away.
func (s *Scheduler) Start(guildID, channelID string, minutes int) error {
	s.mu.Lock()
	if _, ok := s.sessions[guildID]; ok {
		s.mu.Unlock()
		return ErrAlreadyActive
	}
	if minutes < MinIntervalMinutes || minutes > MaxIntervalMinutes {
		s.mu.Unlock()
		return ErrInvalidDuration
	}
	r := &running{
		Session: Session{
			GuildID:   guildID,
			ChannelID: channelID,
			Interval:  time.Duration(minutes) * time.Minute,
			StartedAt: s.now(),
		},
		stop: make(chan struct{}),
	}
	s.sessions[guildID] = r
	s.mu.Unlock()

	slog.Info("broadcast started",
		"kind", s.kind,
		"guild_id", guildID,
		"channel_id", channelID,
		"interval_minutes", minutes,
	)
	go s.run(r, true)
	s.changed()
	return nil
}

// Resume re-arms a persisted session. Nothing is sent until the first interval
// elapses.
func (s *Scheduler) Resume(sess Session) error {
	if sess.Interval <= 0 {
		return ErrInvalidDuration
	}
	s.mu.Lock()
	if _, ok := s.sessions[sess.GuildID]; ok {
		s.mu.Unlock()
		return ErrAlreadyActive
	}
	if sess.StartedAt.IsZero() {
		sess.StartedAt = s.now()
	}
	r := &running{Session: sess, stop: make(chan struct{})}
	s.sessions[sess.GuildID] = r
	s.mu.Unlock()

	slog.Info("broadcast resumed",
		"kind", s.kind,
		"guild_id", sess.GuildID,
		"channel_id", sess.ChannelID,
		"interval", sess.Interval.String(),
	)
	go s.run(r, false)
	return nil
}

func (s *Scheduler) Stop(guildID string) error {
	s.mu.Lock()
	r, ok := s.sessions[guildID]
	if !ok {
		s.mu.Unlock()
		return ErrNotActive
	}
	delete(s.sessions, guildID)
	r.halt()
	s.mu.Unlock()

	// wait out a delivery already in flight
	r.delivering.Lock()
	r.delivering.Unlock()

	slog.Info("broadcast stopped", "kind", s.kind, "guild_id", guildID)
	s.changed()
	return nil
}

// ForgetGuild drops the guild's session, if any, without reporting absence.
func (s *Scheduler) ForgetGuild(guildID string) bool {
	return s.Stop(guildID) == nil
}

// Halt stops every timer but keeps the sessions registered so they are still
// captured by a final snapshot.
func (s *Scheduler) Halt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.sessions {
		r.halt()
	}
}

func (s *Scheduler) Active(guildID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[guildID]
	return ok
}

func (s *Scheduler) Session(guildID string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.sessions[guildID]
	if !ok {
		return Session{}, false
	}
	return r.Session, true
}

// Sessions returns every registered session ordered by guild ID.
func (s *Scheduler) Sessions() []Session {
	s.mu.Lock()
	out := make([]Session, 0, len(s.sessions))
	for _, r := range s.sessions {
		out = append(out, r.Session)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].GuildID < out[j].GuildID })
	return out
}

func (s *Scheduler) run(r *running, emitFirst bool) {
	if emitFirst && !s.tick(r) {
		return
	}
	ticks, stopTicker := s.newTicker(r.Interval)
	defer stopTicker()
	for {
		select {
		case <-r.stop:
			return
		case <-ticks:
			if !s.tick(r) {
				return
			}
		}
	}
}

// tick delivers one item and reports whether the session should keep running.
func (s *Scheduler) tick(r *running) bool {
	r.delivering.Lock()
	defer r.delivering.Unlock()

	if !s.isCurrent(r) {
		return false
	}
	if !s.sender.ChannelExists(r.GuildID, r.ChannelID) {
		s.selfStop(r, ErrChannelGone)
		return false
	}
	item, err := s.selector.SelectAndMark(s.catalog, r.GuildID)
	if err != nil {
		s.selfStop(r, err)
		return false
	}

	err = s.sender.SendEmbed(r.ChannelID, s.render(item))
	switch {
	case err == nil:
		slog.Debug("broadcast delivered",
			"kind", s.kind,
			"guild_id", r.GuildID,
			"channel_id", r.ChannelID,
			"item_id", item.ID,
		)
		return true
	case errors.Is(err, discord.ErrPermanentDelivery):
		s.selfStop(r, err)
		return false
	default:
		slog.Warn("broadcast delivery failed, will retry next interval",
			"kind", s.kind,
			"guild_id", r.GuildID,
			"channel_id", r.ChannelID,
			"error", err,
		)
		return true
	}
}

func (s *Scheduler) isCurrent(r *running) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-r.stop:
		return false
	default:
	}
	return s.sessions[r.GuildID] == r
}

func (s *Scheduler) selfStop(r *running, reason error) {
	s.mu.Lock()
	if s.sessions[r.GuildID] != r {
		s.mu.Unlock()
		return
	}
	delete(s.sessions, r.GuildID)
	r.halt()
	s.mu.Unlock()

	slog.Warn("broadcast stopped itself",
		"kind", s.kind,
		"guild_id", r.GuildID,
		"channel_id", r.ChannelID,
		"reason", reason,
	)
	s.changed()
	if s.hooks.SelfStopped != nil {
		s.hooks.SelfStopped(r.Session, reason)
	}
}

func (s *Scheduler) changed() {
	if s.hooks.Changed != nil {
		s.hooks.Changed()
	}
}
