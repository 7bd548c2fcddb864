package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/foxseedlab/azkar-bot/internal/content"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadLibrary_BundledData(t *testing.T) {
	lib, err := LoadLibrary(Paths{
		Azkar: filepath.Join("..", "..", "data", "azkar.json"),
		Dua:   filepath.Join("..", "..", "data", "dua.json"),
		Quran: filepath.Join("..", "..", "data", "mp3quran.json"),
	})
	if err != nil {
		t.Fatalf("load bundled data: %v", err)
	}
	if lib.Catalog(content.KindAzkar).Len() == 0 || lib.Catalog(content.KindDua).Len() == 0 {
		t.Fatal("expected both catalogs to have items")
	}
	p := lib.Playlist("")
	if p.Len() != fullQuranTracks {
		t.Fatalf("expected %d tracks in the default playlist, got %d", fullQuranTracks, p.Len())
	}
	if last := p.Tracks[113].URL; !strings.HasSuffix(last, "/114.mp3") {
		t.Fatalf("unexpected last track url %q", last)
	}
}

func TestLoadLibrary_SkipsDisabledKinds(t *testing.T) {
	dir := t.TempDir()
	lib, err := LoadLibrary(Paths{
		Dua: writeFile(t, dir, "dua.json", `[{"id":1,"dua":"text","source":"s"}]`),
	})
	if err != nil {
		t.Fatal(err)
	}
	if lib.Catalog(content.KindAzkar) != nil {
		t.Fatal("azkar catalog should not be loaded")
	}
	if lib.Playlist("") != nil {
		t.Fatal("no playlist expected")
	}
}

func TestLoadLibrary_RejectsEmptyCatalog(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadLibrary(Paths{Azkar: writeFile(t, dir, "azkar.json", `[]`)})
	if err == nil || !strings.Contains(err.Error(), "empty") {
		t.Fatalf("expected empty catalog error, got %v", err)
	}
}

func TestLoadLibrary_MissingFile(t *testing.T) {
	if _, err := LoadLibrary(Paths{Dua: filepath.Join(t.TempDir(), "missing.json")}); err == nil {
		t.Fatal("expected error for missing file")
	}
}
