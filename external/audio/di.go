package audio

import (
	"github.com/foxseedlab/azkar-bot/internal/audio"
	"github.com/foxseedlab/azkar-bot/internal/config"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (audio.PlayerFactory, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return NewPlayerFactory(cfg.FFmpegPath), nil
	})
}
