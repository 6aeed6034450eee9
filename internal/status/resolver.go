// Package status maps upstream workflow status identifiers to the localized
// label and badge colors shown on report cards.
package status

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/stgm/visitreport/internal/logging"
	"github.com/stgm/visitreport/pkg/models"
)

// ClosedUUID is the upstream identifier of the Closed status.
const ClosedUUID = "135b58c6-1e14-4716-a134-bbba2bbc90a7"

// RGB is a color as three octets.
type RGB struct {
	R, G, B int
}

var (
	// DefaultGray is used for unknown statuses and malformed colors.
	DefaultGray = RGB{110, 110, 110}
	// White is the default badge text color.
	White = RGB{255, 255, 255}
)

// UnknownLabel is shown when no status source matches.
const UnknownLabel = "Inconnu"

// Descriptor is the display form of one workflow status.
type Descriptor struct {
	UUID        string
	Name        string
	DisplayName string
	Background  RGB
	Text        RGB
	Category    string
}

// Map is the dynamic UUID → Descriptor lookup built from workflow settings.
// It is read-only once built.
type Map struct {
	byUUID map[string]Descriptor
}

// NewMap returns an empty map.
func NewMap() *Map {
	return &Map{byUUID: make(map[string]Descriptor)}
}

// Add inserts a descriptor. Adding a UUID twice is a programming error.
func (m *Map) Add(d Descriptor) {
	if _, exists := m.byUUID[d.UUID]; exists {
		panic(fmt.Sprintf("status: duplicate uuid %s", d.UUID))
	}
	m.byUUID[d.UUID] = d
}

// Lookup returns the descriptor stored for uuid.
func (m *Map) Lookup(uuid string) (Descriptor, bool) {
	if m == nil {
		return Descriptor{}, false
	}
	d, ok := m.byUUID[uuid]
	return d, ok
}

// Len returns the number of descriptors.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.byUUID)
}

// Descriptors returns all descriptors sorted by name then UUID.
func (m *Map) Descriptors() []Descriptor {
	if m == nil {
		return nil
	}
	out := make([]Descriptor, 0, len(m.byUUID))
	for _, d := range m.byUUID {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].UUID < out[j].UUID
	})
	return out
}

type settingsPayload struct {
	Result *int `json:"result"`
	Data   struct {
		Statuses []struct {
			UUID            string `json:"uuid"`
			Name            string `json:"name"`
			TextColor       string `json:"textColor"`
			BackgroundColor string `json:"backgroundColor"`
			Category        string `json:"category"`
		} `json:"statuses"`
	} `json:"data"`
}

// BuildMap builds the dynamic map from a raw issue-workflow/settings payload.
// An absent, unparseable or unsuccessful payload yields an empty map.
func BuildMap(payload json.RawMessage) *Map {
	m := NewMap()
	if len(payload) == 0 {
		return m
	}

	var settings settingsPayload
	if err := json.Unmarshal(payload, &settings); err != nil {
		logging.Warn("workflow settings payload is not valid json", "error", err)
		return m
	}
	if settings.Result == nil || *settings.Result != 0 {
		logging.Warn("workflow settings unavailable, using fallback statuses")
		return m
	}

	for _, s := range settings.Data.Statuses {
		if s.UUID == "" || s.Name == "" {
			continue
		}
		if _, exists := m.byUUID[s.UUID]; exists {
			logging.Warn("duplicate status uuid in workflow settings", "uuid", s.UUID, "name", s.Name)
			continue
		}
		m.Add(Descriptor{
			UUID:        s.UUID,
			Name:        s.Name,
			DisplayName: LocalizeName(s.Name),
			Background:  ParseColor(s.BackgroundColor),
			Text:        ParseColor(s.TextColor),
			Category:    s.Category,
		})
	}

	logging.Debug("built status map", "count", m.Len())
	return m
}

var localizedNames = map[string]string{
	"open":         "Ouvert",
	"opened":       "Ouvert",
	"closed":       "Fermé",
	"solved":       "Résolu",
	"in progress":  "En cours",
	"in_progress":  "En cours",
	"en attente":   "En attente",
	"corrigé":      "Corrigé",
	"non-problème": "Non-problème",
}

// LocalizeName translates an upstream status name to French. Names it does
// not know pass through unchanged.
func LocalizeName(name string) string {
	if fr, ok := localizedNames[strings.ToLower(strings.TrimSpace(name))]; ok {
		return fr
	}
	return name
}

// ParseColor parses #RRGGBB. Malformed input yields DefaultGray.
func ParseColor(s string) RGB {
	s = strings.TrimSpace(s)
	if len(s) != 7 || s[0] != '#' {
		return DefaultGray
	}
	var c [3]int
	for i := range c {
		v, err := strconv.ParseUint(s[1+2*i:3+2*i], 16, 8)
		if err != nil {
			return DefaultGray
		}
		c[i] = int(v)
	}
	return RGB{c[0], c[1], c[2]}
}

// EffectiveStatus returns the raw status identifier of an issue:
// customStatus when set, status otherwise.
func EffectiveStatus(issue models.Issue) string {
	if s, ok := issue.CustomStatus.Lookup(); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(issue.Status.String())
}

// IsClosed reports whether the issue carries the Closed status, either as the
// sentinel UUID or as the literal "closed".
func IsClosed(issue models.Issue) bool {
	s := EffectiveStatus(issue)
	return strings.EqualFold(s, ClosedUUID) || strings.EqualFold(s, "closed")
}
