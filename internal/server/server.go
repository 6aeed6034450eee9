// Package server exposes report generation over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/stgm/visitreport/internal/logging"
	"github.com/stgm/visitreport/internal/metadata"
	"github.com/stgm/visitreport/internal/report"
	"github.com/stgm/visitreport/pkg/models"
)

const maxMetadataBytes = 1 << 20

// ProjectLister lists the projects of the licence.
type ProjectLister interface {
	Projects(ctx context.Context) ([]models.Project, error)
}

// ReportGenerator renders the report of one project.
type ReportGenerator interface {
	Generate(ctx context.Context, projectID string, meta models.ProjectMetadata) (*report.Result, error)
}

// Server wires HTTP handlers.
type Server struct {
	projects ProjectLister
	reports  ReportGenerator
	now      func() time.Time
}

// NewRouter creates the HTTP router with request-id and access-log middleware.
func NewRouter(projects ProjectLister, reports ReportGenerator) *chi.Mux {
	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(AccessLogMiddleware)

	srv := &Server{projects: projects, reports: reports, now: time.Now}

	r.Get("/healthz", srv.handleHealth)
	r.Get("/projects", srv.handleProjects)
	r.Post("/projects/{projectID}/report", srv.handleReport)
	r.Get("/region/redirect", srv.handleRedirect)

	return r
}

// Run serves handler on addr until ctx is cancelled, then shuts down
// gracefully.
func Run(ctx context.Context, addr string, handler http.Handler) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("http server listening", "addr", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	logging.Info("http server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	id, _ := RequestIDFromContext(r.Context())
	writeJSON(w, status, errorResponse{Error: msg, RequestID: id})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ProjectResponse is one entry of GET /projects.
type ProjectResponse struct {
	ID      int    `json:"id"`
	UUID    string `json:"uuid"`
	Title   string `json:"title"`
	Updated string `json:"updated,omitempty"`
}

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.projects.Projects(r.Context())
	if err != nil {
		logging.Error("failed to list projects", "error", err)
		writeError(w, r, http.StatusBadGateway, "failed to list projects")
		return
	}

	out := make([]ProjectResponse, 0, len(projects))
	for _, p := range projects {
		out = append(out, ProjectResponse{ID: p.ID, UUID: p.UUID, Title: p.Title.String(), Updated: p.Updated.String()})
	}
	writeJSON(w, http.StatusOK, out)
}

var projectIDPattern = regexp.MustCompile(`^[0-9A-Za-z-]{1,64}$`)

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	if !projectIDPattern.MatchString(projectID) {
		writeError(w, r, http.StatusBadRequest, "invalid project id")
		return
	}

	var meta models.ProjectMetadata
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMetadataBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&meta); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid metadata: "+err.Error())
		return
	}
	meta = metadata.Normalize(meta, s.now())
	if err := metadata.Validate(meta); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.reports.Generate(r.Context(), projectID, meta)
	if err != nil {
		logging.Error("report generation failed", "project_id", projectID, "error", err)
		writeError(w, r, http.StatusInternalServerError, "report generation failed")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="rapport-%s.pdf"`, projectID))
	if res.Failed() {
		w.Header().Set("X-Report-Error", asciiOnly(res.Err.Error()))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(res.PDF); err != nil {
		logging.Warn("failed to write report", "project_id", projectID, "error", err)
	}
}

func asciiOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e {
			return '?'
		}
		return r
	}, s)
}

var redirectPage = template.Must(template.New("redirect").Parse(`<!DOCTYPE html>
<html lang="fr">
<head>
<meta charset="utf-8">
<title>Ouverture dans l'application</title>
<meta http-equiv="refresh" content="0;url={{.}}">
</head>
<body>
<p>Ouverture de l'application... Si rien ne se passe, <a href="{{.}}">cliquez ici</a>.</p>
</body>
</html>
`))

// schemePattern accepts the application's own URL schemes (revizto, revizto5, ...).
var schemePattern = regexp.MustCompile(`^revizto[0-9]*$`)

// redirectTarget extracts the url parameter. Everything after "url=" is
// taken verbatim so unescaped application links keep their own query.
func redirectTarget(r *http.Request) string {
	raw := r.URL.RawQuery
	if after, ok := strings.CutPrefix(raw, "url="); ok {
		if unescaped, err := url.QueryUnescape(after); err == nil {
			return unescaped
		}
		return after
	}
	return r.URL.Query().Get("url")
}

func (s *Server) handleRedirect(w http.ResponseWriter, r *http.Request) {
	target := redirectTarget(r)
	parsed, err := url.Parse(target)
	if target == "" || err != nil || !schemePattern.MatchString(strings.ToLower(parsed.Scheme)) {
		writeError(w, r, http.StatusBadRequest, "invalid application link")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	// html/template refuses unknown schemes in URL contexts, so the target is
	// marked safe after the scheme check above.
	if err := redirectPage.Execute(w, template.URL(target)); err != nil {
		logging.Warn("failed to render redirect page", "error", err)
	}
}

type requestIDKey struct{}

// RequestIDFromContext returns the request id set by RequestIDMiddleware.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok
}

// RequestIDMiddleware tags every request with an X-Request-Id, reusing the
// caller's when present.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// AccessLogMiddleware logs one line per request.
func AccessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		id, _ := RequestIDFromContext(r.Context())
		logging.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
			"request_id", id)
	})
}
