package report

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stgm/visitreport/internal/status"
	"github.com/stgm/visitreport/pkg/models"
)

type fakeUpstream struct {
	issues     map[models.IssueKind][]models.Issue
	failKind   models.IssueKind
	uuids      map[int]string
	comments   map[string][]json.RawMessage
	settings   json.RawMessage
	commentReq []string
	since      time.Time
}

func (f *fakeUpstream) Issues(_ context.Context, _ string, kind models.IssueKind) ([]models.Issue, error) {
	if kind == f.failKind {
		return nil, errors.New("upstream unavailable")
	}
	return f.issues[kind], nil
}

func (f *fakeUpstream) IssueUUID(_ context.Context, _ string, issueID int) (string, error) {
	u, ok := f.uuids[issueID]
	if !ok {
		return "", errors.New("not found")
	}
	return u, nil
}

func (f *fakeUpstream) Comments(_ context.Context, _ string, issueUUID string, since time.Time) ([]json.RawMessage, error) {
	f.commentReq = append(f.commentReq, issueUUID)
	f.since = since
	return f.comments[issueUUID], nil
}

func (f *fakeUpstream) WorkflowSettings(context.Context) (json.RawMessage, error) {
	if f.settings == nil {
		return nil, errors.New("forbidden")
	}
	return f.settings, nil
}

func TestServiceCollect(t *testing.T) {
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	up := &fakeUpstream{
		issues: map[models.IssueKind][]models.Issue{
			models.KindObservation: {issue(t, `{"id": 1, "uuid": "u-1"}`), issue(t, `{"id": 2}`), issue(t, `{"uuid": "u-x"}`)},
			models.KindDeficiency: {
				issue(t, `{"id": 3}`),
				issue(t, `{"id": 4, "uuid": "u-4", "status": "`+status.ClosedUUID+`"}`),
			},
		},
		failKind: models.KindInstruction,
		uuids:    map[int]string{2: "u-2"},
		comments: map[string][]json.RawMessage{
			"u-1": {textComment("Jean", "2024-03-01T08:00:00Z", "Vu")},
			"u-2": {},
		},
	}

	rc := NewService(up, newTestAssembler(nil), since).Collect(context.Background(), "42", models.ProjectMetadata{ProjectName: "P"})

	assert.Equal(t, "42", rc.ProjectID)
	assert.Equal(t, "P", rc.Metadata.ProjectName)
	assert.Len(t, rc.Observations, 3)
	assert.Empty(t, rc.Instructions, "a failed kind leaves its list empty")
	assert.Len(t, rc.Deficiencies, 2)
	assert.Nil(t, rc.WorkflowSettings)

	assert.Equal(t, []string{"u-1", "u-2"}, up.commentReq, "closed and id-less issues are not fetched")
	assert.Equal(t, since, up.since)
	assert.Len(t, rc.Comments[1], 1)
	assert.Contains(t, rc.Comments, 2)
	assert.NotContains(t, rc.Comments, 3, "issue whose uuid cannot be resolved has no comments")
	assert.NotContains(t, rc.Comments, 4)
}

func TestServiceGenerate(t *testing.T) {
	up := &fakeUpstream{
		issues: map[models.IssueKind][]models.Issue{
			models.KindInstruction: {issue(t, `{"id": 7, "uuid": "u-7", "status": "s-1"}`)},
		},
		failKind: models.IssueKind(-1),
		settings: json.RawMessage(`{"result":0,"data":{"statuses":[{"uuid":"s-1","name":"Custom","backgroundColor":"#112233","textColor":"#ffffff"}]}}`),
	}

	res, err := NewService(up, newTestAssembler(newStubImages(t, 4, 3)), time.Time{}).
		Generate(context.Background(), "42", models.ProjectMetadata{ProjectName: "P"})
	require.NoError(t, err)
	require.False(t, res.Failed())
	require.Len(t, res.Cards, 1)
	assert.Equal(t, 7, res.Cards[0].IssueID)
	assert.Equal(t, "Custom", res.Cards[0].Badge)
}
