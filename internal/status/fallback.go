package status

import (
	"strings"

	"github.com/stgm/visitreport/pkg/models"
)

// wellKnown is a status the upstream ships with every licence.
type wellKnown struct {
	// prefix is the first group of the UUID
	prefix string
	// uuid is the full identifier when it is known; the prefix alone then
	// does not match
	uuid       string
	label      string
	background RGB
	text       RGB
}

var wellKnownStatuses = []wellKnown{
	{prefix: "2ed005c6", label: "Ouvert", background: RGB{229, 57, 53}, text: White},
	{prefix: "cd52ac3e", label: "En cours", background: RGB{255, 152, 0}, text: White},
	{prefix: "b8504242", label: "Résolu", background: RGB{67, 160, 71}, text: White},
	{prefix: "135b58c6", uuid: ClosedUUID, label: "Fermé", background: DefaultGray, text: White},
	{prefix: "c70f7d38", uuid: "c70f7d38-1d60-4df3-b85b-14e59174d7ba", label: "En attente", background: RGB{255, 211, 46}, text: White},
	{prefix: "5947b7d1", label: "En attente", background: RGB{255, 211, 46}, text: White},
	{prefix: "912abbbf", label: "Non-problème", background: RGB{158, 158, 158}, text: White},
	{prefix: "337e2fe6", label: "Corrigé", background: RGB{30, 136, 229}, text: White},
}

// byName maps lowercased status names to the label of a well-known status.
var byName = map[string]string{
	"open":         "Ouvert",
	"closed":       "Fermé",
	"solved":       "Résolu",
	"in progress":  "En cours",
	"en attente":   "En attente",
	"corrigé":      "Corrigé",
	"non-problème": "Non-problème",
}

func lookupWellKnownUUID(id string) (wellKnown, bool) {
	id = strings.ToLower(id)
	for _, s := range wellKnownStatuses {
		if s.uuid != "" && id == s.uuid {
			return s, true
		}
	}
	prefix, _, found := strings.Cut(id, "-")
	if !found {
		return wellKnown{}, false
	}
	for _, s := range wellKnownStatuses {
		if s.uuid == "" && prefix == s.prefix {
			return s, true
		}
	}
	return wellKnown{}, false
}

func lookupWellKnownName(name string) (wellKnown, bool) {
	label, ok := byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return wellKnown{}, false
	}
	for _, s := range wellKnownStatuses {
		if s.label == label {
			return s, true
		}
	}
	return wellKnown{}, false
}

// Resolution is the badge content for one issue.
type Resolution struct {
	DisplayText string
	Background  RGB
	Text        RGB
}

// Resolve returns the badge for an issue. It consults the dynamic map, then
// the well-known UUIDs, then well-known names, and finally falls back to
// "Inconnu" on gray. It has no side effects.
func (m *Map) Resolve(issue models.Issue) Resolution {
	id := EffectiveStatus(issue)

	if d, ok := m.Lookup(id); ok {
		return Resolution{DisplayText: d.DisplayName, Background: d.Background, Text: d.Text}
	}
	if s, ok := lookupWellKnownUUID(id); ok {
		return Resolution{DisplayText: s.label, Background: s.background, Text: s.text}
	}
	if s, ok := lookupWellKnownName(id); ok {
		return Resolution{DisplayText: s.label, Background: s.background, Text: s.text}
	}
	return Resolution{DisplayText: UnknownLabel, Background: DefaultGray, Text: White}
}
