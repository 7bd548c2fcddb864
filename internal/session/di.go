package session

import (
	"github.com/foxseedlab/azkar-bot/internal/audio"
	"github.com/foxseedlab/azkar-bot/internal/config"
	"github.com/foxseedlab/azkar-bot/internal/content"
	"github.com/foxseedlab/azkar-bot/internal/discord"
	"github.com/foxseedlab/azkar-bot/internal/state"
	"github.com/foxseedlab/azkar-bot/internal/webhook"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Manager, error) {
		cfg := do.MustInvoke[*config.Config](i)
		dc := do.MustInvoke[discord.Client](i)
		library := do.MustInvoke[*content.Library](i)
		backend := do.MustInvoke[state.Backend](i)
		wh := do.MustInvoke[webhook.Sender](i)
		var newPlayer audio.PlayerFactory
		if cfg.EnableQuran {
			newPlayer = do.MustInvoke[audio.PlayerFactory](i)
		}
		return NewManager(cfg, dc, library, backend, newPlayer, wh), nil
	})
}
