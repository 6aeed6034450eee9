package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractValue(t *testing.T) {
	testCases := []struct {
		name     string
		raw      string
		expected string
		found    bool
	}{
		{name: "Bare string", raw: `"2ed005c6"`, expected: "2ed005c6", found: true},
		{name: "Number", raw: `42`, expected: "42", found: true},
		{name: "Value wrapper", raw: `{"value":"abc"}`, expected: "abc", found: true},
		{name: "UUID wrapper", raw: `{"uuid":"u-1","name":"Open"}`, expected: "u-1", found: true},
		{name: "Nested wrapper", raw: `{"value":{"uuid":"deep"}}`, expected: "deep", found: true},
		{name: "Value preferred over uuid", raw: `{"uuid":"u","value":"v"}`, expected: "v", found: true},
		{name: "Null", raw: `null`, found: false},
		{name: "Empty string", raw: `""`, found: false},
		{name: "Array", raw: `["a"]`, found: false},
		{name: "Empty input", raw: ``, found: false},
		{name: "Invalid JSON", raw: `{`, found: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ExtractValue(json.RawMessage(tc.raw))
			assert.Equal(t, tc.found, ok)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestIssueUnmarshalWrappedFields(t *testing.T) {
	payload := `{
		"id": 17,
		"uuid": "issue-uuid",
		"title": {"value": "Fissure dalle"},
		"status": {"value": "2ed005c6-aaaa"},
		"customStatus": "c70f7d38-1d60-4df3-b85b-14e59174d7ba",
		"preview": {"small": "https://img/s.png", "middle": "https://img/m.png"},
		"created": {"value": "2024-03-01T10:00:00Z"},
		"assignee": {"value": "jane@example.com"},
		"sheet": {"value": {"number": "A-101", "name": "Plan RDC"}},
		"openLinks": {"web": "https://web/issue/17", "desktop": "revizto5://open?issue=17"}
	}`

	var issue Issue
	require.NoError(t, json.Unmarshal([]byte(payload), &issue))

	require.NotNil(t, issue.ID)
	assert.Equal(t, 17, *issue.ID)
	assert.Equal(t, "issue-uuid", issue.UUID)
	assert.Equal(t, "Fissure dalle", issue.Title.String())
	assert.Equal(t, "2ed005c6-aaaa", issue.Status.String())
	assert.Equal(t, "c70f7d38-1d60-4df3-b85b-14e59174d7ba", issue.CustomStatus.String())
	assert.Equal(t, "https://img/s.png", issue.Preview.SmallFirst())
	assert.Equal(t, "https://img/m.png", issue.Preview.MiddleFirst())
	assert.Equal(t, "jane@example.com", issue.Assignee.String())
	assert.Equal(t, "A-101", issue.Sheet.Number.String())
	assert.Equal(t, "Plan RDC", issue.Sheet.Name.String())
	assert.Equal(t, "revizto5://open?issue=17", issue.OpenLinks.Desktop.String())
}

func TestIssueUnmarshalDefaultsMalformedFields(t *testing.T) {
	payload := `{"id": "not-a-number", "preview": 12, "sheet": "oops", "openLinks": [1,2]}`

	var issue Issue
	require.NoError(t, json.Unmarshal([]byte(payload), &issue))

	assert.Nil(t, issue.ID)
	assert.True(t, issue.Preview.IsZero())
	assert.Equal(t, "", issue.Sheet.Name.String())
	assert.True(t, issue.OpenLinks.IsZero())
}

func TestIssueStringPreview(t *testing.T) {
	var issue Issue
	require.NoError(t, json.Unmarshal([]byte(`{"id": 3, "preview": "https://img/p.jpg"}`), &issue))

	assert.Equal(t, "https://img/p.jpg", issue.Preview.SmallFirst())
	assert.Equal(t, "https://img/p.jpg", issue.Preview.MiddleFirst())
}

func TestIssueMarshalKeepsUpstreamShape(t *testing.T) {
	id := 9
	issue := Issue{ID: &id, Title: NewValue("Joint"), Status: NewValue(map[string]string{"value": "u-1"})}

	data, err := json.Marshal(issue)
	require.NoError(t, err)

	var decoded Issue
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.NotNil(t, decoded.ID)
	assert.Equal(t, 9, *decoded.ID)
	assert.Equal(t, "Joint", decoded.Title.String())
	assert.Equal(t, "u-1", decoded.Status.String())
}

func TestAuthorDisplayName(t *testing.T) {
	testCases := []struct {
		name     string
		raw      string
		expected string
	}{
		{name: "Plain string", raw: `"Marc Tremblay"`, expected: "Marc Tremblay"},
		{name: "Full person", raw: `{"firstname":"Julie","lastname":"Roy","email":"j@x.ca"}`, expected: "Julie Roy"},
		{name: "Email only", raw: `{"email":"j@x.ca"}`, expected: "j@x.ca"},
		{name: "Unexpected shape", raw: `[1]`, expected: "Inconnu"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var a Author
			require.NoError(t, json.Unmarshal([]byte(tc.raw), &a))
			assert.Equal(t, tc.expected, a.DisplayName())
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	for _, s := range []string{"2024-03-01T10:00:00Z", "2024-03-01T10:00:00+02:00", "2024-03-01 10:00:00", "2024-03-01"} {
		_, ok := ParseTimestamp(s)
		assert.True(t, ok, s)
	}
	_, ok := ParseTimestamp("hier")
	assert.False(t, ok)
	_, ok = ParseTimestamp("")
	assert.False(t, ok)
}

func TestIssueKindStampAbbr(t *testing.T) {
	assert.Equal(t, "A-OB", KindObservation.StampAbbr())
	assert.Equal(t, "A-IN", KindInstruction.StampAbbr())
	assert.Equal(t, "A-DF", KindDeficiency.StampAbbr())
	assert.Equal(t, []IssueKind{KindObservation, KindInstruction, KindDeficiency}, IssueKinds)
}
