// Package config provides centralized configuration management for the application.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/stgm/visitreport/internal/comments"
)

const (
	// DefaultBaseURL is the upstream API root for the Canadian region.
	DefaultBaseURL = "https://api.canada.revizto.com/v5/"
)

// Config holds all configuration parameters for the application.
type Config struct {
	Revizto ReviztoConfig
	Token   TokenConfig
	Report  ReportConfig
	Server  ServerConfig
}

// ReviztoConfig holds upstream service configuration.
type ReviztoConfig struct {
	BaseURL         string
	LicenceUUID     string
	ClientID        string
	ClientSecret    string
	AccessToken     string
	RefreshToken    string
	HTTPTimeout     time.Duration
	RefreshInterval time.Duration
	RedirectBase    string
}

// TokenConfig holds token persistence configuration.
type TokenConfig struct {
	DBPath string
}

// ReportConfig holds report rendering configuration.
type ReportConfig struct {
	// FontDir replaces the bundled DejaVu fonts when set
	FontDir       string
	AssetDirs     []string
	GalleryLimit  int
	CommentsSince string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr string
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("revizto.base_url", DefaultBaseURL)
	v.SetDefault("revizto.http_timeout", "30s")
	v.SetDefault("revizto.refresh_interval", "45m")
	v.SetDefault("token.db_path", "tokens.db")
		v.SetDefault("report.asset_dirs", "static,assets")
	v.SetDefault("report.gallery_limit", 6)
	v.SetDefault("report.comments_since", "2000-01-01")
	v.SetDefault("server.addr", ":8080")

	// Map specific environment variables
	v.BindEnv("revizto.base_url", "REVIZTO_BASE_URL")
	v.BindEnv("revizto.licence_uuid", "REVIZTO_LICENCE_UUID")
	v.BindEnv("revizto.client_id", "REVIZTO_CLIENT_ID")
	v.BindEnv("revizto.client_secret", "REVIZTO_CLIENT_SECRET")
	v.BindEnv("revizto.access_token", "REVIZTO_ACCESS_TOKEN")
	v.BindEnv("revizto.refresh_token", "REVIZTO_REFRESH_TOKEN")
	v.BindEnv("revizto.http_timeout", "REVIZTO_HTTP_TIMEOUT")
	v.BindEnv("revizto.refresh_interval", "REVIZTO_REFRESH_INTERVAL")
	v.BindEnv("revizto.redirect_base", "REVIZTO_REDIRECT_BASE")
	v.BindEnv("token.db_path", "TOKEN_DB_PATH")
	v.BindEnv("report.font_dir", "REPORT_FONT_DIR")
	v.BindEnv("report.asset_dirs", "REPORT_ASSET_DIRS")
	v.BindEnv("report.gallery_limit", "REPORT_GALLERY_LIMIT")
	v.BindEnv("report.comments_since", "REPORT_COMMENTS_SINCE")
	v.BindEnv("server.addr", "SERVER_ADDR")

	return v
}

// LoadConfig initializes and loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	v := newViper()

	baseURL := v.GetString("revizto.base_url")
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	redirectBase := v.GetString("revizto.redirect_base")
	if redirectBase == "" {
		redirectBase = baseURL
	}

	config := &Config{
		Revizto: ReviztoConfig{
			BaseURL:         baseURL,
			LicenceUUID:     v.GetString("revizto.licence_uuid"),
			ClientID:        v.GetString("revizto.client_id"),
			ClientSecret:    v.GetString("revizto.client_secret"),
			AccessToken:     v.GetString("revizto.access_token"),
			RefreshToken:    v.GetString("revizto.refresh_token"),
			HTTPTimeout:     v.GetDuration("revizto.http_timeout"),
			RefreshInterval: v.GetDuration("revizto.refresh_interval"),
			RedirectBase:    strings.TrimSuffix(redirectBase, "/"),
		},
		Token: TokenConfig{
			DBPath: v.GetString("token.db_path"),
		},
		Report: ReportConfig{
			FontDir:       v.GetString("report.font_dir"),
			AssetDirs:     splitList(v.GetString("report.asset_dirs")),
			GalleryLimit:  v.GetInt("report.gallery_limit"),
			CommentsSince: v.GetString("report.comments_since"),
		},
		Server: ServerConfig{
			Addr: v.GetString("server.addr"),
		},
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	return config, nil
}

// validateConfig checks values that are invalid whatever command runs.
func validateConfig(config *Config) error {
	if config.Revizto.HTTPTimeout <= 0 {
		return fmt.Errorf("REVIZTO_HTTP_TIMEOUT must be a positive duration")
	}
	if config.Revizto.RefreshInterval <= 0 {
		return fmt.Errorf("REVIZTO_REFRESH_INTERVAL must be a positive duration")
	}
	if config.Report.GalleryLimit <= 0 || config.Report.GalleryLimit > comments.MaxGalleryLimit {
		return fmt.Errorf("REPORT_GALLERY_LIMIT must be between 1 and %d, got %d",
			comments.MaxGalleryLimit, config.Report.GalleryLimit)
	}
	if _, err := time.Parse("2006-01-02", config.Report.CommentsSince); err != nil {
		return fmt.Errorf("REPORT_COMMENTS_SINCE must be YYYY-MM-DD: %w", err)
	}
	return nil
}

// ValidateReviztoConfig validates the settings needed to call the upstream.
func ValidateReviztoConfig(config *Config) error {
	var missingVars []string

	if config.Revizto.LicenceUUID == "" {
		missingVars = append(missingVars, "REVIZTO_LICENCE_UUID")
	}
	if config.Revizto.ClientID == "" {
		missingVars = append(missingVars, "REVIZTO_CLIENT_ID")
	}
	if config.Revizto.RefreshToken == "" && config.Revizto.AccessToken == "" {
		missingVars = append(missingVars, "REVIZTO_REFRESH_TOKEN")
	}

	if len(missingVars) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missingVars)
	}

	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
