// Package revizto provides functionality for interacting with the Revizto
// coordination service API.
package revizto

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/stgm/visitreport/internal/logging"
	"github.com/stgm/visitreport/pkg/models"
)

// ErrNotFound is returned when a lookup matches nothing upstream.
var ErrNotFound = errors.New("not found")

// APIError is an envelope whose result is not zero.
type APIError struct {
	Endpoint string
	Result   int
	Message  string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("revizto %s: result %d", e.Endpoint, e.Result)
	}
	return fmt.Sprintf("revizto %s: result %d: %s", e.Endpoint, e.Result, e.Message)
}

// ClientConfig holds the settings every request needs.
type ClientConfig struct {
	// BaseURL is the API root, e.g. https://api.canada.revizto.com/v5/
	BaseURL string

	// LicenceUUID scopes the project list
	LicenceUUID string
}

// Client encapsulates the upstream API client.
type Client struct {
	config ClientConfig
	base   *url.URL
	http   *http.Client
}

// NewClient creates a client that authenticates through session.
func NewClient(config ClientConfig, session *Session, timeout time.Duration) (*Client, error) {
	if session == nil {
		return nil, errors.New("revizto session is required")
	}
	return NewClientWithHTTP(config, session.HTTPClient(timeout))
}

// NewClientWithHTTP creates a client on top of an already authenticated
// HTTP client.
func NewClientWithHTTP(config ClientConfig, httpClient *http.Client) (*Client, error) {
	baseURL := config.BaseURL
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid revizto base url %q", config.BaseURL)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	logging.Debug("revizto configuration", "base_url", parsed.String(), "licence", logging.MaskSensitive(config.LicenceUUID))

	return &Client{config: config, base: parsed, http: httpClient}, nil
}

// HTTPClient returns the authenticated HTTP client, for downloading images
// served by the upstream.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// fetch performs a GET and returns the raw response body.
func (c *Client) fetch(ctx context.Context, endpoint string, query url.Values) ([]byte, error) {
	ref, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	u := c.base.ResolveReference(ref)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	logging.Debug("revizto request", "endpoint", endpoint)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("revizto %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("revizto %s: failed to read response: %w", endpoint, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("revizto %s: unexpected status %d", endpoint, resp.StatusCode)
	}
	return body, nil
}

// get performs a GET and unwraps the envelope, failing on a non-zero result.
func (c *Client) get(ctx context.Context, endpoint string, query url.Values) (json.RawMessage, error) {
	body, err := c.fetch(ctx, endpoint, query)
	if err != nil {
		return nil, err
	}

	var env models.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("revizto %s: invalid envelope: %w", endpoint, err)
	}
	if env.Result != 0 {
		return nil, &APIError{Endpoint: endpoint, Result: env.Result, Message: env.Message}
	}
	return env.Data, nil
}

// items extracts the list under key from data. A bare array is accepted too.
func items(data json.RawMessage, key string) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var list []json.RawMessage
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, err
		}
		return list, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, err
	}
	inner, ok := obj[key]
	if !ok || bytes.Equal(bytes.TrimSpace(inner), []byte("null")) {
		return nil, nil
	}
	if err := json.Unmarshal(inner, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// Projects lists the projects of the configured licence.
func (c *Client) Projects(ctx context.Context) ([]models.Project, error) {
	if c.config.LicenceUUID == "" {
		return nil, errors.New("licence uuid not configured")
	}
	endpoint := fmt.Sprintf("license/%s/projects", url.PathEscape(c.config.LicenceUUID))
	data, err := c.get(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}

	list, err := items(data, "entities")
	if err != nil {
		return nil, fmt.Errorf("revizto %s: unexpected data: %w", endpoint, err)
	}

	projects := make([]models.Project, 0, len(list))
	for _, raw := range list {
		var p models.Project
		if err := json.Unmarshal(raw, &p); err != nil {
			logging.Warn("skipping malformed project", "error", err)
			continue
		}
		projects = append(projects, p)
	}
	return projects, nil
}

func filterQuery(filterType string, values ...string) url.Values {
	q := url.Values{}
	q.Set("anyFiltersDTO[0][type]", filterType)
	q.Set("anyFiltersDTO[0][expr]", "1")
	for i, v := range values {
		q.Set(fmt.Sprintf("anyFiltersDTO[0][value][%d]", i), v)
	}
	return q
}

func (c *Client) filterIssues(ctx context.Context, projectID string, query url.Values) ([]models.Issue, error) {
	endpoint := fmt.Sprintf("project/%s/issue-filter/filter", url.PathEscape(projectID))
	data, err := c.get(ctx, endpoint, query)
	if err != nil {
		return nil, err
	}

	list, err := items(data, "data")
	if err != nil {
		return nil, fmt.Errorf("revizto %s: unexpected data: %w", endpoint, err)
	}

	issues := make([]models.Issue, 0, len(list))
	for _, raw := range list {
		var issue models.Issue
		if err := json.Unmarshal(raw, &issue); err != nil {
			logging.Warn("skipping malformed issue", "project_id", projectID, "error", err)
			continue
		}
		issues = append(issues, issue)
	}
	return issues, nil
}

// Issues lists the issues of one stamp category with their full data.
func (c *Client) Issues(ctx context.Context, projectID string, kind models.IssueKind) ([]models.Issue, error) {
	query := filterQuery("stampAbbr", kind.StampAbbr())
	query.Set("sendFullIssueData", "true")

	issues, err := c.filterIssues(ctx, projectID, query)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", kind, err)
	}
	logging.Debug("fetched issues", "project_id", projectID, "kind", kind.String(), "count", len(issues))
	return issues, nil
}

// IssueUUID resolves the UUID of an issue from its numeric id.
func (c *Client) IssueUUID(ctx context.Context, projectID string, issueID int) (string, error) {
	issues, err := c.filterIssues(ctx, projectID, filterQuery("id", strconv.Itoa(issueID)))
	if err != nil {
		return "", fmt.Errorf("failed to resolve issue %d: %w", issueID, err)
	}
	for _, issue := range issues {
		if issue.UUID != "" {
			return issue.UUID, nil
		}
	}
	return "", fmt.Errorf("issue %d: %w", issueID, ErrNotFound)
}

// Comments returns the raw comment entries of an issue created since the
// given day.
func (c *Client) Comments(ctx context.Context, projectID, issueUUID string, since time.Time) ([]json.RawMessage, error) {
	if issueUUID == "" {
		return nil, errors.New("issue uuid is required")
	}
	endpoint := fmt.Sprintf("issue/%s/comments/date", url.PathEscape(issueUUID))
	query := url.Values{}
	query.Set("date", since.Format("2006-01-02"))
	query.Set("projectId", projectID)

	data, err := c.get(ctx, endpoint, query)
	if err != nil {
		return nil, err
	}
	list, err := items(data, "data")
	if err != nil {
		return nil, fmt.Errorf("revizto %s: unexpected data: %w", endpoint, err)
	}
	return list, nil
}

// WorkflowSettings returns the raw workflow settings envelope. The result
// code is left for the caller to interpret.
func (c *Client) WorkflowSettings(ctx context.Context) (json.RawMessage, error) {
	return c.fetch(ctx, "issue-workflow/settings", nil)
}
