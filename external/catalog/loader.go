package catalog

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/foxseedlab/azkar-bot/internal/content"
)

const fullQuranTracks = 114

type Paths struct {
	Azkar string
	Dua   string
	Quran string
}

// LoadLibrary reads the catalog files whose path is set. An enabled catalog
// that turns out empty is an error.
func LoadLibrary(paths Paths) (*content.Library, error) {
	lib := &content.Library{
		Catalogs:  make(map[content.Kind]*content.Catalog),
		Playlists: make(map[string]*content.Playlist),
	}

	for kind, path := range map[content.Kind]string{
		content.KindAzkar: paths.Azkar,
		content.KindDua:   paths.Dua,
	} {
		if path == "" {
			continue
		}
		c, err := loadCatalog(kind, path)
		if err != nil {
			return nil, err
		}
		lib.Catalogs[kind] = c
	}

	if paths.Quran != "" {
		data, err := os.ReadFile(paths.Quran)
		if err != nil {
			return nil, fmt.Errorf("read playlist file: %w", err)
		}
		playlists, err := content.ParsePlaylists(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", paths.Quran, err)
		}
		if len(playlists) == 0 || playlists[0].Len() == 0 {
			return nil, fmt.Errorf("%s: no playable tracks", paths.Quran)
		}
		for _, p := range playlists {
			lib.Playlists[p.Ref] = p
		}
		lib.DefaultPlaylist = playlists[0].Ref
		if n := playlists[0].Len(); n != fullQuranTracks {
			slog.Warn("default playlist is not a full recitation", "playlist", playlists[0].Ref, "tracks", n)
		}
		slog.Info("playlists loaded", "count", len(playlists), "default", lib.DefaultPlaylist)
	}
	return lib, nil
}

func loadCatalog(kind content.Kind, path string) (*content.Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s catalog: %w", kind, err)
	}
	c, err := content.ParseCatalog(kind, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if c.Len() == 0 {
		return nil, fmt.Errorf("%s catalog %s is empty", kind, path)
	}
	slog.Info("catalog loaded", "kind", kind, "items", c.Len())
	return c, nil
}
