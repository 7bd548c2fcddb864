package content

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

type Kind string

const (
	KindAzkar Kind = "azkar"
	KindDua   Kind = "dua"
)

func (k Kind) Valid() bool {
	return k == KindAzkar || k == KindDua
}

// ItemID is the identifier of a catalog item. Catalog files carry it either as
// a JSON number or as a string, so both decode to the same textual form.
type ItemID string

func (id *ItemID) UnmarshalJSON(data []byte) error {
	s, err := decodeLoose(data)
	if err != nil {
		return fmt.Errorf("item id: %w", err)
	}
	*id = ItemID(s)
	return nil
}

// LooseText decodes a JSON string or number into text. Counts such as 3 or
// "3 مرات" appear in both shapes.
type LooseText string

func (t *LooseText) UnmarshalJSON(data []byte) error {
	s, err := decodeLoose(data)
	if err != nil {
		return err
	}
	*t = LooseText(s)
	return nil
}

func decodeLoose(data []byte) (string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return "", nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return "", fmt.Errorf("expected string or number, got %s", data)
	}
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10), nil
	}
	return n.String(), nil
}

type Item struct {
	ID          ItemID
	Kind        Kind
	Text        string
	Count       string
	Category    string
	Description string
	Source      string
	Context     string
}

type Catalog struct {
	kind  Kind
	items []Item
}

func NewCatalog(kind Kind, items []Item) *Catalog {
	copied := make([]Item, len(items))
	for i, item := range items {
		item.Kind = kind
		copied[i] = item
	}
	return &Catalog{kind: kind, items: copied}
}

func (c *Catalog) Kind() Kind {
	return c.kind
}

func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.items)
}

func (c *Catalog) Items() []Item {
	if c == nil {
		return nil
	}
	out := make([]Item, len(c.items))
	copy(out, c.items)
	return out
}

type Track struct {
	Number int
	Name   string
	URL    string
}

type Playlist struct {
	Ref    string
	Name   string
	Tracks []Track
}

func (p *Playlist) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Tracks)
}

// Library holds every catalog and playlist loaded at startup.
type Library struct {
	Catalogs        map[Kind]*Catalog
	Playlists       map[string]*Playlist
	DefaultPlaylist string
}

func (l *Library) Catalog(kind Kind) *Catalog {
	if l == nil {
		return nil
	}
	return l.Catalogs[kind]
}

func (l *Library) Playlist(ref string) *Playlist {
	if l == nil {
		return nil
	}
	if ref == "" {
		ref = l.DefaultPlaylist
	}
	return l.Playlists[ref]
}
