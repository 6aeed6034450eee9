package revizto

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/stgm/visitreport/internal/logging"
	"github.com/stgm/visitreport/internal/tokenstore"
)

// TokenStore persists tokens between runs.
type TokenStore interface {
	Load(ctx context.Context, key string) (*oauth2.Token, error)
	Save(ctx context.Context, key string, tok *oauth2.Token) error
}

// SessionConfig holds the OAuth client settings.
type SessionConfig struct {
	// BaseURL is the API root; the token endpoint is <BaseURL>oauth2
	BaseURL      string
	ClientID     string
	ClientSecret string

	// StoreKey names the token in the store
	StoreKey string
}

// Session is an oauth2.TokenSource that refreshes the access token when it
// expires and persists every new token.
type Session struct {
	mu    sync.Mutex
	ctx   context.Context
	oauth *oauth2.Config
	store TokenStore
	key   string
	tok   *oauth2.Token
}

// NewSession loads the stored token, falling back to seed when the store has
// none. The context is used for refresh requests.
func NewSession(ctx context.Context, cfg SessionConfig, store TokenStore, seed *oauth2.Token) (*Session, error) {
	key := cfg.StoreKey
	if key == "" {
		key = "default"
	}
	tokenURL := cfg.BaseURL
	if tokenURL != "" && tokenURL[len(tokenURL)-1] != '/' {
		tokenURL += "/"
	}

	s := &Session{
		ctx:   ctx,
		store: store,
		key:   key,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL + "oauth2",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
	}

	var tok *oauth2.Token
	if store != nil {
		stored, err := store.Load(ctx, key)
		switch {
		case err == nil:
			tok = stored
		case errors.Is(err, tokenstore.ErrNotFound):
		default:
			return nil, fmt.Errorf("failed to load stored token: %w", err)
		}
	}
	if tok == nil && seed != nil && (seed.AccessToken != "" || seed.RefreshToken != "") {
		seeded := *seed
		if seeded.Expiry.IsZero() && seeded.AccessToken != "" {
			if exp, ok := tokenstore.ExpiryFromJWT(seeded.AccessToken); ok {
				seeded.Expiry = exp
			}
		}
		tok = &seeded
		logging.Info("using token from environment",
			"access_token", logging.MaskSensitive(seeded.AccessToken),
			"refresh_token", logging.MaskSensitive(seeded.RefreshToken))
	}
	if tok == nil {
		return nil, errors.New("no revizto token available: set REVIZTO_REFRESH_TOKEN or store a token")
	}

	s.tok = tok
	return s, nil
}

// Token returns a valid access token, refreshing it when needed.
func (s *Session) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tok.Valid() {
		return s.tok, nil
	}
	return s.refreshLocked()
}

// Refresh forces a token refresh.
func (s *Session) Refresh() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.refreshLocked()
}

// ExpiresWithin reports whether the current token expires within d. Tokens
// without an expiry never do.
func (s *Session) ExpiresWithin(d time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tok.AccessToken == "" {
		return true
	}
	if s.tok.Expiry.IsZero() {
		return false
	}
	return time.Until(s.tok.Expiry) < d
}

func (s *Session) refreshLocked() (*oauth2.Token, error) {
	if s.tok.RefreshToken == "" {
		return nil, errors.New("revizto access token expired and no refresh token is available")
	}

	// An expired copy makes the oauth2 source hit the token endpoint.
	expired := &oauth2.Token{RefreshToken: s.tok.RefreshToken, Expiry: time.Unix(1, 0)}
	tok, err := s.oauth.TokenSource(s.ctx, expired).Token()
	if err != nil {
		logging.Error("failed to refresh revizto token", "error", err)
		return nil, fmt.Errorf("failed to refresh revizto token: %w", err)
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = s.tok.RefreshToken
	}
	if tok.Expiry.IsZero() {
		if exp, ok := tokenstore.ExpiryFromJWT(tok.AccessToken); ok {
			tok.Expiry = exp
		}
	}
	s.tok = tok

	if s.store != nil {
		if err := s.store.Save(s.ctx, s.key, tok); err != nil {
			logging.Warn("failed to persist refreshed token", "error", err)
		}
	}
	logging.Info("revizto token refreshed", "expiry", tok.Expiry)
	return tok, nil
}

// HTTPClient returns a client that authenticates every request.
func (s *Session) HTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &oauth2.Transport{Source: s, Base: http.DefaultTransport},
		Timeout:   timeout,
	}
}
