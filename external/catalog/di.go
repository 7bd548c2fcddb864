package catalog

import (
	"github.com/foxseedlab/azkar-bot/internal/config"
	"github.com/foxseedlab/azkar-bot/internal/content"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*content.Library, error) {
		cfg := do.MustInvoke[*config.Config](i)
		paths := Paths{}
		if cfg.EnableAzkar {
			paths.Azkar = cfg.AzkarDataPath
		}
		if cfg.EnableDua {
			paths.Dua = cfg.DuaDataPath
		}
		if cfg.EnableQuran {
			paths.Quran = cfg.QuranDataPath
		}
		return LoadLibrary(paths)
	})
}
