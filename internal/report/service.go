package report

import (
	"context"
	"encoding/json"
	"time"

	"github.com/stgm/visitreport/internal/logging"
	"github.com/stgm/visitreport/internal/status"
	"github.com/stgm/visitreport/pkg/models"
)

// Upstream is the part of the issue-tracking API a report needs.
type Upstream interface {
	Issues(ctx context.Context, projectID string, kind models.IssueKind) ([]models.Issue, error)
	IssueUUID(ctx context.Context, projectID string, issueID int) (string, error)
	Comments(ctx context.Context, projectID, issueUUID string, since time.Time) ([]json.RawMessage, error)
	WorkflowSettings(ctx context.Context) (json.RawMessage, error)
}

// Service gathers upstream data and renders reports.
type Service struct {
	upstream  Upstream
	assembler *Assembler
	since     time.Time
}

// NewService creates a service. Comments older than since are not fetched.
func NewService(upstream Upstream, assembler *Assembler, since time.Time) *Service {
	return &Service{upstream: upstream, assembler: assembler, since: since}
}

// Collect builds the report context for a project. Upstream failures are
// logged and leave the affected list empty; the report is still produced.
// Comments are only fetched for issues that will get a card.
func (s *Service) Collect(ctx context.Context, projectID string, meta models.ProjectMetadata) models.ReportContext {
	rc := models.ReportContext{
		ProjectID: projectID,
		Metadata:  meta,
		Comments:  make(map[int][]json.RawMessage),
	}

	settings, err := s.upstream.WorkflowSettings(ctx)
	if err != nil {
		logging.Warn("workflow settings unavailable, using built-in statuses", "error", err)
	}
	rc.WorkflowSettings = settings

	for _, kind := range models.IssueKinds {
		issues, err := s.upstream.Issues(ctx, projectID, kind)
		if err != nil {
			logging.Warn("failed to fetch issues", "project_id", projectID, "kind", kind.String(), "error", err)
			continue
		}
		logging.Info("fetched issues", "project_id", projectID, "kind", kind.String(), "count", len(issues))

		switch kind {
		case models.KindObservation:
			rc.Observations = issues
		case models.KindInstruction:
			rc.Instructions = issues
		case models.KindDeficiency:
			rc.Deficiencies = issues
		}
		for _, issue := range issues {
			if status.IsClosed(issue) {
				continue
			}
			s.collectComments(ctx, projectID, issue, rc.Comments)
		}
	}
	return rc
}

func (s *Service) collectComments(ctx context.Context, projectID string, issue models.Issue, into map[int][]json.RawMessage) {
	if issue.ID == nil {
		return
	}
	id := *issue.ID
	if _, done := into[id]; done {
		return
	}

	issueUUID := issue.UUID
	if issueUUID == "" {
		var err error
		issueUUID, err = s.upstream.IssueUUID(ctx, projectID, id)
		if err != nil {
			logging.Warn("failed to resolve issue uuid", "issue_id", id, "error", err)
			return
		}
	}

	entries, err := s.upstream.Comments(ctx, projectID, issueUUID, s.since)
	if err != nil {
		logging.Warn("failed to fetch comments", "issue_id", id, "error", err)
		return
	}
	into[id] = entries
}

// Generate collects the project data and renders the report.
func (s *Service) Generate(ctx context.Context, projectID string, meta models.ProjectMetadata) (*Result, error) {
	rc := s.Collect(ctx, projectID, meta)
	return s.assembler.Generate(ctx, rc)
}
