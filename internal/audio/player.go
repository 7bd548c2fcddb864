package audio

import "github.com/foxseedlab/azkar-bot/internal/discord"

type EventKind int

const (
	// EventIdle fires when a source played to its end.
	EventIdle EventKind = iota + 1
	// EventError fires when a source could not be opened or broke mid-playback.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventIdle:
		return "idle"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

type Event struct {
	Kind EventKind
	Err  error
}

// Player plays one source at a time over a voice connection. Play returns once
// playback has been scheduled; completion is reported through the event
// callback. No event is delivered for playback cancelled by Play or Stop.
type Player interface {
	Play(source string) error
	Stop()
}

type PlayerFactory func(conn discord.VoiceConnection, onEvent func(Event)) Player
