package status

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stgm/visitreport/pkg/models"
)

func issueWith(status, custom any) models.Issue {
	id := 1
	return models.Issue{ID: &id, Status: models.NewValue(status), CustomStatus: models.NewValue(custom)}
}

const settingsFixture = `{
	"result": 0,
	"data": {
		"statuses": [
			{"uuid": "aaaa1111-0000-0000-0000-000000000001", "name": "Open", "backgroundColor": "#FF0000", "textColor": "#FFFFFF", "category": "open"},
			{"uuid": "aaaa1111-0000-0000-0000-000000000002", "name": "in_progress", "backgroundColor": "#00ff00", "textColor": "#000000"},
			{"uuid": "aaaa1111-0000-0000-0000-000000000003", "name": "Vérification", "backgroundColor": "blue", "textColor": "#12345"},
			{"uuid": "", "name": "Ignored"},
			{"uuid": "aaaa1111-0000-0000-0000-000000000004", "name": ""},
			{"uuid": "aaaa1111-0000-0000-0000-000000000001", "name": "Duplicate"}
		]
	}
}`

func TestBuildMap(t *testing.T) {
	m := BuildMap(json.RawMessage(settingsFixture))

	require.Equal(t, 3, m.Len())

	open, ok := m.Lookup("aaaa1111-0000-0000-0000-000000000001")
	require.True(t, ok)
	assert.Equal(t, "Ouvert", open.DisplayName)
	assert.Equal(t, RGB{255, 0, 0}, open.Background)
	assert.Equal(t, RGB{255, 255, 255}, open.Text)
	assert.Equal(t, "open", open.Category)

	progress, ok := m.Lookup("aaaa1111-0000-0000-0000-000000000002")
	require.True(t, ok)
	assert.Equal(t, "En cours", progress.DisplayName)
	assert.Equal(t, RGB{0, 255, 0}, progress.Background)

	custom, ok := m.Lookup("aaaa1111-0000-0000-0000-000000000003")
	require.True(t, ok)
	assert.Equal(t, "Vérification", custom.DisplayName)
	assert.Equal(t, DefaultGray, custom.Background)
	assert.Equal(t, DefaultGray, custom.Text)
}

func TestBuildMapUnavailablePayload(t *testing.T) {
	testCases := []struct {
		name    string
		payload string
	}{
		{name: "Absent", payload: ""},
		{name: "Non-zero result", payload: `{"result": 1, "message": "denied", "data": {"statuses": [{"uuid": "x", "name": "Open"}]}}`},
		{name: "Missing result", payload: `{"data": {"statuses": [{"uuid": "x", "name": "Open"}]}}`},
		{name: "Invalid JSON", payload: `{"result":`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := BuildMap(json.RawMessage(tc.payload))
			assert.Equal(t, 0, m.Len())
		})
	}
}

func TestMapAddPanicsOnDuplicate(t *testing.T) {
	m := NewMap()
	m.Add(Descriptor{UUID: "u"})
	assert.Panics(t, func() { m.Add(Descriptor{UUID: "u"}) })
}

func TestLocalizeName(t *testing.T) {
	testCases := map[string]string{
		"open":         "Ouvert",
		"Opened":       "Ouvert",
		"CLOSED":       "Fermé",
		"Solved":       "Résolu",
		"In Progress":  "En cours",
		"in_progress":  "En cours",
		"En attente":   "En attente",
		"en attente":   "En attente",
		"Corrigé":      "Corrigé",
		"Non-problème": "Non-problème",
		"À valider":    "À valider",
	}
	for input, expected := range testCases {
		assert.Equal(t, expected, LocalizeName(input), input)
	}
}

func TestParseColor(t *testing.T) {
	testCases := []struct {
		input    string
		expected RGB
	}{
		{"#FFD32E", RGB{255, 211, 46}},
		{"#000000", RGB{0, 0, 0}},
		{" #0a0B0c ", RGB{10, 11, 12}},
		{"FFD32E", DefaultGray},
		{"#FFF", DefaultGray},
		{"#GG0000", DefaultGray},
		{"", DefaultGray},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.expected, ParseColor(tc.input), tc.input)
	}
}

func TestResolveFallbackEnAttente(t *testing.T) {
	m := BuildMap(nil)

	got := m.Resolve(issueWith(nil, "c70f7d38-1d60-4df3-b85b-14e59174d7ba"))

	assert.Equal(t, "En attente", got.DisplayText)
	assert.Equal(t, RGB{255, 211, 46}, got.Background)
	assert.Equal(t, RGB{255, 255, 255}, got.Text)
}

func TestResolvePriority(t *testing.T) {
	m := BuildMap(json.RawMessage(settingsFixture))

	testCases := []struct {
		name     string
		issue    models.Issue
		expected string
	}{
		{
			name:     "Custom status wins over status",
			issue:    issueWith("aaaa1111-0000-0000-0000-000000000002", "aaaa1111-0000-0000-0000-000000000001"),
			expected: "Ouvert",
		},
		{
			name:     "Wrapped status with value",
			issue:    issueWith(map[string]string{"value": "aaaa1111-0000-0000-0000-000000000002"}, nil),
			expected: "En cours",
		},
		{
			name:     "Wrapped status with uuid",
			issue:    issueWith(map[string]string{"uuid": "aaaa1111-0000-0000-0000-000000000003"}, nil),
			expected: "Vérification",
		},
		{
			name:     "Well-known closed uuid",
			issue:    issueWith(ClosedUUID, nil),
			expected: "Fermé",
		},
		{
			name:     "Second en attente uuid",
			issue:    issueWith("5947b7d1-0000-0000-0000-000000000000", nil),
			expected: "En attente",
		},
		{
			name:     "Closed prefix on another uuid",
			issue:    issueWith("135b58c6-0000-0000-0000-000000000000", nil),
			expected: UnknownLabel,
		},
		{
			name:     "Name fallback",
			issue:    issueWith("Solved", nil),
			expected: "Résolu",
		},
		{
			name:     "Name fallback accented",
			issue:    issueWith("corrigé", nil),
			expected: "Corrigé",
		},
		{
			name:     "Unknown",
			issue:    issueWith("ffffffff-0000-0000-0000-000000000000", nil),
			expected: UnknownLabel,
		},
		{
			name:     "Missing status",
			issue:    issueWith(nil, nil),
			expected: UnknownLabel,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, m.Resolve(tc.issue).DisplayText)
		})
	}
}

func TestResolveUnknownDefault(t *testing.T) {
	got := NewMap().Resolve(issueWith("0badf00d-1111-2222-3333-444444444444", nil))

	assert.Equal(t, Resolution{DisplayText: "Inconnu", Background: RGB{110, 110, 110}, Text: RGB{255, 255, 255}}, got)
}

func TestResolveIsPure(t *testing.T) {
	m := BuildMap(json.RawMessage(settingsFixture))
	issue := issueWith("aaaa1111-0000-0000-0000-000000000001", nil)

	first := m.Resolve(issue)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, m.Resolve(issue))
	}
}

func TestIsClosed(t *testing.T) {
	assert.True(t, IsClosed(issueWith(ClosedUUID, nil)))
	assert.True(t, IsClosed(issueWith(map[string]string{"value": ClosedUUID}, nil)))
	assert.True(t, IsClosed(issueWith("closed", nil)))
	assert.True(t, IsClosed(issueWith("CLOSED", nil)))
	assert.True(t, IsClosed(issueWith("2ed005c6-0000", "Closed")))
	assert.False(t, IsClosed(issueWith("2ed005c6-0000", nil)))
	assert.False(t, IsClosed(issueWith("135b58c6-0000-0000-0000-000000000000", nil)))
	assert.False(t, IsClosed(issueWith(nil, nil)))
}

func TestDescriptorsSorted(t *testing.T) {
	m := BuildMap(json.RawMessage(settingsFixture))

	names := []string{}
	for _, d := range m.Descriptors() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"Open", "Vérification", "in_progress"}, names)
}
