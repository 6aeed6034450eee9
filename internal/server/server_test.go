package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stgm/visitreport/internal/report"
	"github.com/stgm/visitreport/pkg/models"
)

type stubProjects struct {
	projects []models.Project
	err      error
}

func (s *stubProjects) Projects(context.Context) ([]models.Project, error) {
	return s.projects, s.err
}

type stubReports struct {
	projectID string
	meta      models.ProjectMetadata
	result    *report.Result
	err       error
}

func (s *stubReports) Generate(_ context.Context, projectID string, meta models.ProjectMetadata) (*report.Result, error) {
	s.projectID = projectID
	s.meta = meta
	return s.result, s.err
}

func newTestServer(t *testing.T, projects ProjectLister, reports ReportGenerator) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(NewRouter(projects, reports))
	t.Cleanup(server.Close)
	return server
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestHealth(t *testing.T) {
	server := newTestServer(t, &stubProjects{}, &stubReports{})

	resp, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
	assert.Equal(t, "ok", readBody(t, resp))
}

func TestRequestIDIsPropagated(t *testing.T) {
	server := newTestServer(t, &stubProjects{}, &stubReports{})

	req, err := http.NewRequest(http.MethodGet, server.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-Id", "req-1")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "req-1", resp.Header.Get("X-Request-Id"))
}

func TestProjects(t *testing.T) {
	var p models.Project
	require.NoError(t, json.Unmarshal([]byte(`{"id": 12, "uuid": "p-12", "title": {"value": "Centre sportif"}}`), &p))
	server := newTestServer(t, &stubProjects{projects: []models.Project{p}}, &stubReports{})

	resp, err := http.Get(server.URL + "/projects")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got []ProjectResponse
	require.NoError(t, json.Unmarshal([]byte(readBody(t, resp)), &got))
	assert.Equal(t, []ProjectResponse{{ID: 12, UUID: "p-12", Title: "Centre sportif"}}, got)
}

func TestProjectsUpstreamError(t *testing.T) {
	server := newTestServer(t, &stubProjects{err: errors.New("boom")}, &stubReports{})

	resp, err := http.Get(server.URL + "/projects")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "failed to list projects")
}

func TestReport(t *testing.T) {
	reports := &stubReports{result: &report.Result{PDF: []byte("%PDF-1.3 stub"), Pages: 5}}
	server := newTestServer(t, &stubProjects{}, reports)

	body := `{"projectName": " Centre sportif ", "visitNumber": "3", "presence": ["A", ""], "reportDate": "2024-03-15"}`
	resp, err := http.Post(server.URL+"/projects/42/report", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "rapport-42.pdf")
	assert.Empty(t, resp.Header.Get("X-Report-Error"))
	assert.Equal(t, "%PDF-1.3 stub", readBody(t, resp))

	assert.Equal(t, "42", reports.projectID)
	assert.Equal(t, "Centre sportif", reports.meta.ProjectName)
	assert.Equal(t, []string{"A"}, reports.meta.Presence)
}

func TestReportFallbackDocument(t *testing.T) {
	reports := &stubReports{result: &report.Result{PDF: []byte("%PDF-1.3 error"), Err: errors.New("rendu → échoué")}}
	server := newTestServer(t, &stubProjects{}, reports)

	resp, err := http.Post(server.URL+"/projects/42/report", "application/json", strings.NewReader(`{"projectName": "P"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Report-Error"))
	assert.Equal(t, "%PDF-1.3 error", readBody(t, resp))
}

func TestReportRejectsBadRequests(t *testing.T) {
	tests := []struct {
		name string
		path string
		body string
	}{
		{"invalid json", "/projects/42/report", `{`},
		{"unknown field", "/projects/42/report", `{"projectName": "P", "colour": "red"}`},
		{"missing project name", "/projects/42/report", `{"owner": "Ville"}`},
		{"invalid project id", "/projects/4%202/report", `{"projectName": "P"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reports := &stubReports{}
			server := newTestServer(t, &stubProjects{}, reports)

			resp, err := http.Post(server.URL+tt.path, "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Contains(t, readBody(t, resp), `"error"`)
			assert.Empty(t, reports.projectID)
		})
	}
}

func TestReportGeneratorError(t *testing.T) {
	server := newTestServer(t, &stubProjects{}, &stubReports{err: errors.New("no document")})

	resp, err := http.Post(server.URL+"/projects/42/report", "application/json", strings.NewReader(`{"projectName": "P"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	_ = readBody(t, resp)
}

func TestRedirect(t *testing.T) {
	server := newTestServer(t, &stubProjects{}, &stubReports{})

	resp, err := http.Get(server.URL + "/region/redirect?url=revizto5://open?issue=42")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, readBody(t, resp), `href="revizto5://open?issue=42"`)
}

func TestRedirectRejectsOtherSchemes(t *testing.T) {
	server := newTestServer(t, &stubProjects{}, &stubReports{})

	for _, target := range []string{"", "javascript:alert(1)", "https://example.com", "%zz"} {
		resp, err := http.Get(server.URL + "/region/redirect?url=" + target)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, target)
		_ = readBody(t, resp)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, "127.0.0.1:0", NewRouter(&stubProjects{}, &stubReports{}))
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
