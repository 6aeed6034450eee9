// Package models defines data structures shared across the application.
package models

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// IssueKind identifies one of the three issue categories of a visit report.
type IssueKind int

const (
	// KindObservation is an observation stamp (A-OB).
	KindObservation IssueKind = iota
	// KindInstruction is an instruction stamp (A-IN).
	KindInstruction
	// KindDeficiency is a deficiency stamp (A-DF).
	KindDeficiency
)

// IssueKinds lists the kinds in chapter order.
var IssueKinds = []IssueKind{KindObservation, KindInstruction, KindDeficiency}

// StampAbbr returns the upstream stamp abbreviation used to filter issues.
func (k IssueKind) StampAbbr() string {
	switch k {
	case KindObservation:
		return "A-OB"
	case KindInstruction:
		return "A-IN"
	case KindDeficiency:
		return "A-DF"
	}
	return ""
}

func (k IssueKind) String() string {
	switch k {
	case KindObservation:
		return "observations"
	case KindInstruction:
		return "instructions"
	case KindDeficiency:
		return "deficiencies"
	}
	return "unknown"
}

// Envelope is the JSON wrapper returned by every upstream endpoint.
// Result 0 means success.
type Envelope struct {
	Result  int             `json:"result"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data"`
}

// Project is an entry of the licence project list.
type Project struct {
	// ID is the numeric project identifier used in issue endpoints
	ID int `json:"id"`

	// UUID is the project's upstream UUID
	UUID string `json:"uuid"`

	// Title is the project name, plain or wrapped
	Title Value `json:"title"`

	// Updated is the last modification timestamp
	Updated Value `json:"updated"`
}

// Issue is a read-only snapshot of one upstream issue.
type Issue struct {
	// ID is the numeric issue identifier; issues without one are never rendered
	ID *int

	// UUID is the upstream issue UUID, needed for the comments endpoint
	UUID string

	// Title is the issue title
	Title Value

	// Status is the workflow status, a UUID or a wrapper around one
	Status Value

	// CustomStatus takes priority over Status when present
	CustomStatus Value

	// Preview is the issue's own snapshot image
	Preview Preview

	// Created is the ISO-8601 creation timestamp
	Created Value

	// Assignee is the assignee e-mail or display name
	Assignee Value

	// Sheet is the drawing sheet the issue is pinned on
	Sheet Sheet

	// OpenLinks holds deep links into the upstream web and desktop apps
	OpenLinks OpenLinks
}

type issueJSON struct {
	ID           json.RawMessage `json:"id"`
	UUID         Value           `json:"uuid"`
	Title        Value           `json:"title"`
	Status       Value           `json:"status"`
	CustomStatus Value           `json:"customStatus"`
	Preview      Preview         `json:"preview"`
	Created      Value           `json:"created"`
	Assignee     Value           `json:"assignee"`
	Sheet        Sheet           `json:"sheet"`
	OpenLinks    OpenLinks       `json:"openLinks"`
}

// UnmarshalJSON decodes an issue, defaulting every field that has an
// unexpected shape instead of failing the whole issue.
func (i *Issue) UnmarshalJSON(data []byte) error {
	var raw issueJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*i = Issue{
		UUID:         raw.UUID.String(),
		Title:        raw.Title,
		Status:       raw.Status,
		CustomStatus: raw.CustomStatus,
		Preview:      raw.Preview,
		Created:      raw.Created,
		Assignee:     raw.Assignee,
		Sheet:        raw.Sheet,
		OpenLinks:    raw.OpenLinks,
	}
	if s, ok := ExtractValue(raw.ID); ok {
		if n, err := strconv.Atoi(s); err == nil {
			i.ID = &n
		}
	}
	return nil
}

// MarshalJSON encodes the issue in the upstream shape.
func (i Issue) MarshalJSON() ([]byte, error) {
	var id json.RawMessage
	if i.ID != nil {
		id = json.RawMessage(strconv.Itoa(*i.ID))
	}
	return json.Marshal(issueJSON{
		ID:           id,
		UUID:         NewValue(i.UUID),
		Title:        i.Title,
		Status:       i.Status,
		CustomStatus: i.CustomStatus,
		Preview:      i.Preview,
		Created:      i.Created,
		Assignee:     i.Assignee,
		Sheet:        i.Sheet,
		OpenLinks:    i.OpenLinks,
	})
}

// Comment is one entry of an issue's comment history.
type Comment struct {
	// Type is text, file, markup, diff, ...
	Type string `json:"type"`

	// Created is the ISO-8601 creation timestamp
	Created string `json:"created"`

	// Author is a plain name or a person object
	Author Author `json:"author"`

	// Text is the body of text comments
	Text Value `json:"text"`

	// Mimetype is set on file comments
	Mimetype string `json:"mimetype"`

	// Preview holds thumbnails of file and markup comments
	Preview Preview `json:"preview"`
}

// CreatedAt parses Created. The second result is false when the timestamp
// is missing or unparseable.
func (c Comment) CreatedAt() (time.Time, bool) {
	return ParseTimestamp(c.Created)
}

// Author identifies who wrote a comment.
type Author struct {
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
	Email     string `json:"email"`
}

// UnmarshalJSON accepts either a bare string or a person object.
func (a *Author) UnmarshalJSON(data []byte) error {
	data = unwrap(data)
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*a = Author{Firstname: s}
		return nil
	}
	type plain Author
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		*a = Author{}
		return nil
	}
	*a = Author(p)
	return nil
}

// DisplayName returns "Firstname Lastname", the e-mail, or "Inconnu".
func (a Author) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(a.Firstname) + " " + strings.TrimSpace(a.Lastname))
	if name != "" {
		return name
	}
	if a.Email != "" {
		return a.Email
	}
	return "Inconnu"
}

// Preview is an image reference served either as a single URL or as a
// {small, middle} pair. A single URL fills both sizes.
type Preview struct {
	Small  string `json:"small,omitempty"`
	Middle string `json:"middle,omitempty"`
}

// UnmarshalJSON accepts a string, a {small, middle} object or a wrapper
// around either. Other shapes leave the preview empty.
func (p *Preview) UnmarshalJSON(data []byte) error {
	data = unwrap(data)
	*p = Preview{}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		p.Small, p.Middle = s, s
		return nil
	}
	var obj struct {
		Small  Value `json:"small"`
		Middle Value `json:"middle"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		p.Small = obj.Small.String()
		p.Middle = obj.Middle.String()
	}
	return nil
}

// SmallFirst returns the small preview, falling back to the middle one.
func (p Preview) SmallFirst() string {
	if p.Small != "" {
		return p.Small
	}
	return p.Middle
}

// MiddleFirst returns the middle preview, falling back to the small one.
func (p Preview) MiddleFirst() string {
	if p.Middle != "" {
		return p.Middle
	}
	return p.Small
}

// IsZero reports whether neither size is set.
func (p Preview) IsZero() bool {
	return p.Small == "" && p.Middle == ""
}

// Sheet is the drawing sheet an issue is attached to.
type Sheet struct {
	Number Value `json:"number"`
	Name   Value `json:"name"`
}

// UnmarshalJSON accepts the sheet object directly or wrapped in {value: ...}.
func (s *Sheet) UnmarshalJSON(data []byte) error {
	data = unwrap(data)
	type plain Sheet
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		*s = Sheet{}
		return nil
	}
	*s = Sheet(p)
	return nil
}

// OpenLinks holds deep links to the issue in the upstream applications.
type OpenLinks struct {
	Web     Value `json:"web"`
	Desktop Value `json:"desktop"`
}

// UnmarshalJSON accepts the link map directly or wrapped in {value: ...}.
func (o *OpenLinks) UnmarshalJSON(data []byte) error {
	data = unwrap(data)
	type plain OpenLinks
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		*o = OpenLinks{}
		return nil
	}
	*o = OpenLinks(p)
	return nil
}

// IsZero reports whether no link is available.
func (o OpenLinks) IsZero() bool {
	return o.Web.String() == "" && o.Desktop.String() == ""
}

// ProjectMetadata is the caller-supplied cover page content.
type ProjectMetadata struct {
	ArchitectFile string   `json:"architectFile" yaml:"architect_file"`
	ProjectName   string   `json:"projectName" yaml:"project_name"`
	Owner         string   `json:"owner" yaml:"owner"`
	Contractor    string   `json:"contractor" yaml:"contractor"`
	VisitNumber   string   `json:"visitNumber" yaml:"visit_number"`
	VisitDate     string   `json:"visitDate" yaml:"visit_date"`
	ReportDate    string   `json:"reportDate" yaml:"report_date"`
	VisitedBy     string   `json:"visitedBy" yaml:"visited_by"`
	Presence      []string `json:"presence" yaml:"presence"`
	Description   string   `json:"description" yaml:"description"`
	Distribution  []string `json:"distribution" yaml:"distribution"`
	CoverImage    string   `json:"coverImage" yaml:"cover_image"`
	Author        string   `json:"author" yaml:"author"`
}

// ReportContext bundles everything one report generation consumes.
type ReportContext struct {
	ProjectID    string
	Metadata     ProjectMetadata
	Observations []Issue
	Instructions []Issue
	Deficiencies []Issue

	// Comments maps an issue id to its raw comment entries. Entries may be
	// objects or JSON-encoded strings.
	Comments map[int][]json.RawMessage

	// WorkflowSettings is the raw issue-workflow/settings payload, possibly nil.
	WorkflowSettings json.RawMessage
}

// IssuesOf returns the issue list for a chapter kind.
func (rc ReportContext) IssuesOf(kind IssueKind) []Issue {
	switch kind {
	case KindObservation:
		return rc.Observations
	case KindInstruction:
		return rc.Instructions
	case KindDeficiency:
		return rc.Deficiencies
	}
	return nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.000000",
	"2006-01-02",
}

// ParseTimestamp parses the ISO-8601 variants the upstream emits.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
