// Package tokenstore persists the upstream OAuth token between runs.
package tokenstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no token is stored under a key.
var ErrNotFound = errors.New("token not found")

const schema = `
CREATE TABLE IF NOT EXISTS oauth_tokens (
    key TEXT PRIMARY KEY,
    access_token TEXT NOT NULL,
    refresh_token TEXT NOT NULL DEFAULT '',
    token_type TEXT NOT NULL DEFAULT '',
    expiry TEXT NOT NULL DEFAULT '',
    updated_at TEXT NOT NULL
);`

// Store is a SQLite-backed token store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the token database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open token database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure token database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create token schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load returns the token stored under key.
func (s *Store) Load(ctx context.Context, key string) (*oauth2.Token, error) {
	var access, refresh, tokenType, expiry string
	err := s.db.QueryRowContext(ctx,
		`SELECT access_token, refresh_token, token_type, expiry FROM oauth_tokens WHERE key = ?`, key).
		Scan(&access, &refresh, &tokenType, &expiry)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load token: %w", err)
	}

	tok := &oauth2.Token{AccessToken: access, RefreshToken: refresh, TokenType: tokenType}
	if expiry != "" {
		t, err := time.Parse(time.RFC3339, expiry)
		if err != nil {
			return nil, fmt.Errorf("invalid stored token expiry %q: %w", expiry, err)
		}
		tok.Expiry = t
	}
	return tok, nil
}

// Save stores tok under key. A token without an expiry takes the JWT exp
// claim of its access token when there is one.
func (s *Store) Save(ctx context.Context, key string, tok *oauth2.Token) error {
	if tok == nil || tok.AccessToken == "" {
		return errors.New("cannot store an empty token")
	}

	expiry := tok.Expiry
	if expiry.IsZero() {
		if exp, ok := ExpiryFromJWT(tok.AccessToken); ok {
			expiry = exp
		}
	}
	var expiryText string
	if !expiry.IsZero() {
		expiryText = expiry.UTC().Format(time.RFC3339)
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO oauth_tokens (key, access_token, refresh_token, token_type, expiry, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
    access_token = excluded.access_token,
    refresh_token = CASE WHEN excluded.refresh_token = '' THEN oauth_tokens.refresh_token ELSE excluded.refresh_token END,
    token_type = excluded.token_type,
    expiry = excluded.expiry,
    updated_at = excluded.updated_at`,
		key, tok.AccessToken, tok.RefreshToken, tok.TokenType, expiryText, s.now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// ExpiryFromJWT reads the exp claim of an access token without verifying
// its signature. It reports false for opaque tokens.
func ExpiryFromJWT(accessToken string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
