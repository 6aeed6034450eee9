// Package cmd provides the command-line interface for the visitreport tool.
package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/stgm/visitreport/internal/config"
	"github.com/stgm/visitreport/internal/imagefetch"
	"github.com/stgm/visitreport/internal/logging"
	"github.com/stgm/visitreport/internal/report"
	"github.com/stgm/visitreport/internal/revizto"
	"github.com/stgm/visitreport/internal/tokenstore"
	"github.com/stgm/visitreport/pkg/models"
)

// app holds the upstream wiring shared by the commands.
type app struct {
	cfg     *config.Config
	store   *tokenstore.Store
	session *revizto.Session
	client  *revizto.Client
}

// newApp loads the configuration, opens the token store and authenticates
// against the upstream.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := config.ValidateReviztoConfig(cfg); err != nil {
		return nil, err
	}

	store, err := tokenstore.Open(cfg.Token.DBPath)
	if err != nil {
		return nil, err
	}

	session, err := revizto.NewSession(ctx, revizto.SessionConfig{
		BaseURL:      cfg.Revizto.BaseURL,
		ClientID:     cfg.Revizto.ClientID,
		ClientSecret: cfg.Revizto.ClientSecret,
		StoreKey:     cfg.Revizto.LicenceUUID,
	}, store, &oauth2.Token{
		AccessToken:  cfg.Revizto.AccessToken,
		RefreshToken: cfg.Revizto.RefreshToken,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to initialize revizto session: %w", err)
	}

	client, err := revizto.NewClient(revizto.ClientConfig{
		BaseURL:     cfg.Revizto.BaseURL,
		LicenceUUID: cfg.Revizto.LicenceUUID,
	}, session, cfg.Revizto.HTTPTimeout)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to initialize revizto client: %w", err)
	}

	logging.Debug("revizto client ready", "base_url", cfg.Revizto.BaseURL, "licence", cfg.Revizto.LicenceUUID)
	return &app{cfg: cfg, store: store, session: session, client: client}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		logging.Warn("failed to close token store", "error", err)
	}
}

// reportService builds the report pipeline. A non-empty since overrides
// REPORT_COMMENTS_SINCE.
func (a *app) reportService(since string) (*report.Service, error) {
	if since == "" {
		since = a.cfg.Report.CommentsSince
	}
	sinceTime, err := parseSince(since)
	if err != nil {
		return nil, err
	}

	// Image links point at storage hosts, so they are fetched without the
	// upstream credentials.
	images := imagefetch.New(&http.Client{Timeout: a.cfg.Revizto.HTTPTimeout}, "")
	assembler := report.NewAssembler(report.Options{
		FontDir:      a.cfg.Report.FontDir,
		AssetDirs:    a.cfg.Report.AssetDirs,
		GalleryLimit: a.cfg.Report.GalleryLimit,
		RedirectBase: a.cfg.Revizto.RedirectBase,
		Images:       images,
	})
	return report.NewService(a.client, assembler, sinceTime), nil
}

// parseSince parses a YYYY-MM-DD (or full ISO-8601) comment cutoff.
func parseSince(s string) (time.Time, error) {
	t, ok := models.ParseTimestamp(s)
	if !ok {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}
