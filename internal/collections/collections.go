// Package collections holds the themed book collections and maps portal ids to panels.
package collections

import (
	"sort"
	"strings"
)

// Panel is a screen of the front end
type Panel string

const (
	PanelSearch    Panel = "search"
	PanelFavorites Panel = "favorites"
	PanelSettings  Panel = "settings"
)

// Collection is a themed, predefined search
type Collection struct {
	ID          string
	Name        string
	SearchTerms []string
	Subjects    []string
}

// Query is the free-text part of the collection's search
func (c Collection) Query() string {
	if len(c.SearchTerms) == 0 {
		return ""
	}
	return c.SearchTerms[0]
}

// Subject is the topic filter of the collection's search
func (c Collection) Subject() string {
	if len(c.Subjects) == 0 {
		return ""
	}
	return c.Subjects[0]
}

var predefined = map[string]Collection{
	"literature": {
		ID:          "literature",
		Name:        "Classic Literature",
		SearchTerms: []string{"fiction", "literature", "novel"},
		Subjects:    []string{"literature", "fiction"},
	},
	"science": {
		ID:          "science",
		Name:        "Science & Technology",
		SearchTerms: []string{"science", "technology", "physics", "mathematics"},
		Subjects:    []string{"science", "technology", "physics"},
	},
	"history": {
		ID:          "history",
		Name:        "History & Philosophy",
		SearchTerms: []string{"history", "philosophy", "political science"},
		Subjects:    []string{"history", "philosophy"},
	},
}

// aliases maps the portal ids derived from the hub labels
var aliases = map[string]string{
	"altarulcautarii":   "search",
	"literaturaclasica": "literature",
	"stiintatehnologie": "science",
	"istoriefilozofie":  "history",
	"colectiafavorite":  "favorites",
	"literatura":        "literature",
	"stiinta":           "science",
	"istorie":           "history",
}

// All returns the predefined collections ordered by id
func All() []Collection {
	out := make([]Collection, 0, len(predefined))
	for _, c := range predefined {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns a collection by id or alias
func Get(id string) (Collection, bool) {
	c, ok := predefined[canonical(id)]
	return c, ok
}

// Destination is where activating a portal leads
type Destination struct {
	Panel Panel
	// Query and Subject pre-fill the search panel for collection portals
	Query      string
	Subject    string
	Collection string
}

// Prefilled reports whether the destination starts a search
func (d Destination) Prefilled() bool {
	return d.Query != "" || d.Subject != ""
}

// Resolve maps a portal id to its destination. Unknown ids open the search panel.
func Resolve(portal string) Destination {
	id := canonical(portal)
	switch id {
	case "favorites":
		return Destination{Panel: PanelFavorites}
	case "settings":
		return Destination{Panel: PanelSettings}
	}
	if c, ok := predefined[id]; ok {
		return Destination{
			Panel:      PanelSearch,
			Query:      c.Query(),
			Subject:    c.Subject(),
			Collection: c.ID,
		}
	}
	return Destination{Panel: PanelSearch}
}

// canonical lowercases id, drops everything but ASCII letters and applies aliases
func canonical(id string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(id) {
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r)
		}
	}
	key := b.String()
	if alias, ok := aliases[key]; ok {
		return alias
	}
	return key
}
