package content

import "testing"

func TestParseCatalog_AzkarMixedIDs(t *testing.T) {
	data := []byte(`[
		{"id": 1, "text": "سبحان الله", "count": 33, "category": "أذكار الصباح"},
		{"id": "2", "text": "الحمد لله", "count": "ثلاث مرات", "category": "أذكار المساء", "description": "من قالها"}
	]`)

	catalog, err := ParseCatalog(KindAzkar, data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	items := catalog.Items()
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].ID != "1" || items[0].Count != "33" {
		t.Fatalf("unexpected first item: %+v", items[0])
	}
	if items[1].ID != "2" || items[1].Count != "ثلاث مرات" || items[1].Description != "من قالها" {
		t.Fatalf("unexpected second item: %+v", items[1])
	}
	if items[0].Kind != KindAzkar {
		t.Fatalf("expected kind azkar, got %s", items[0].Kind)
	}
}

func TestParseCatalog_Dua(t *testing.T) {
	data := []byte(`[{"id": 7, "dua": "اللهم اغفر لي", "source": "صحيح مسلم", "category": "عام", "context": "بعد الصلاة"}]`)

	catalog, err := ParseCatalog(KindDua, data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	item := catalog.Items()[0]
	if item.Text != "اللهم اغفر لي" || item.Source != "صحيح مسلم" || item.Context != "بعد الصلاة" {
		t.Fatalf("unexpected item: %+v", item)
	}
}

func TestParseCatalog_RejectsDuplicateIDs(t *testing.T) {
	data := []byte(`[{"id": 1, "text": "a"}, {"id": "1", "text": "b"}]`)
	if _, err := ParseCatalog(KindAzkar, data); err == nil {
		t.Fatal("expected error for duplicate ids")
	}
}

func TestParseCatalog_RejectsMissingID(t *testing.T) {
	if _, err := ParseCatalog(KindAzkar, []byte(`[{"text": "a"}]`)); err == nil {
		t.Fatal("expected error for missing id")
	}
}

func TestParsePlaylists(t *testing.T) {
	data := []byte(`[{"name": "reader", "audio": [
		{"number": 1, "name": "الفاتحة", "link": "https://example.com/001.mp3"},
		{"number": "2", "name": "البقرة", "link": "https://example.com/002.mp3"}
	]}]`)

	playlists, err := ParsePlaylists(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(playlists) != 1 {
		t.Fatalf("expected 1 playlist, got %d", len(playlists))
	}
	p := playlists[0]
	if p.Ref != "0" || p.Len() != 2 || p.Tracks[1].Number != 2 {
		t.Fatalf("unexpected playlist: %+v", p)
	}
}

func TestLibraryPlaylist_DefaultRef(t *testing.T) {
	lib := &Library{
		Playlists:       map[string]*Playlist{"0": {Ref: "0"}},
		DefaultPlaylist: "0",
	}
	if lib.Playlist("") == nil {
		t.Fatal("expected empty ref to resolve to the default playlist")
	}
	if lib.Playlist("missing") != nil {
		t.Fatal("expected unknown ref to resolve to nil")
	}
}
