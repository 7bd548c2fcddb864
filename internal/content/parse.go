package content

import (
	"encoding/json"
	"fmt"
	"strconv"
)

type rawAzkar struct {
	ID          ItemID    `json:"id"`
	Text        string    `json:"text"`
	Count       LooseText `json:"count"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
}

type rawDua struct {
	ID       ItemID `json:"id"`
	Dua      string `json:"dua"`
	Source   string `json:"source"`
	Category string `json:"category"`
	Context  string `json:"context"`
}

type rawReader struct {
	ID    ItemID `json:"id"`
	Name  string `json:"name"`
	Audio []struct {
		Number LooseText `json:"number"`
		Name   string    `json:"name"`
		Link   string    `json:"link"`
	} `json:"audio"`
}

// ParseCatalog decodes a catalog file of the given kind.
func ParseCatalog(kind Kind, data []byte) (*Catalog, error) {
	var items []Item
	switch kind {
	case KindAzkar:
		var raw []rawAzkar
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decode azkar catalog: %w", err)
		}
		for _, r := range raw {
			items = append(items, Item{
				ID:          r.ID,
				Text:        r.Text,
				Count:       string(r.Count),
				Category:    r.Category,
				Description: r.Description,
			})
		}
	case KindDua:
		var raw []rawDua
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decode dua catalog: %w", err)
		}
		for _, r := range raw {
			items = append(items, Item{
				ID:       r.ID,
				Text:     r.Dua,
				Category: r.Category,
				Source:   r.Source,
				Context:  r.Context,
			})
		}
	default:
		return nil, fmt.Errorf("unknown content kind %q", kind)
	}

	seen := make(map[ItemID]struct{}, len(items))
	for i, item := range items {
		if item.ID == "" {
			return nil, fmt.Errorf("%s item at index %d has no id", kind, i)
		}
		if _, dup := seen[item.ID]; dup {
			return nil, fmt.Errorf("%s item id %q is duplicated", kind, item.ID)
		}
		seen[item.ID] = struct{}{}
	}
	return NewCatalog(kind, items), nil
}

// ParsePlaylists decodes a reader list. Readers without an id are keyed by
// their position in the file.
func ParsePlaylists(data []byte) ([]*Playlist, error) {
	var raw []rawReader
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode playlist file: %w", err)
	}
	playlists := make([]*Playlist, 0, len(raw))
	for i, r := range raw {
		ref := string(r.ID)
		if ref == "" {
			ref = strconv.Itoa(i)
		}
		p := &Playlist{Ref: ref, Name: r.Name}
		for j, a := range r.Audio {
			if a.Link == "" {
				return nil, fmt.Errorf("playlist %q track %d has no link", ref, j)
			}
			number, err := strconv.Atoi(string(a.Number))
			if err != nil {
				number = j + 1
			}
			p.Tracks = append(p.Tracks, Track{Number: number, Name: a.Name, URL: a.Link})
		}
		playlists = append(playlists, p)
	}
	return playlists, nil
}
