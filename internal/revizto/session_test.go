package revizto

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/stgm/visitreport/internal/tokenstore"
)

type memoryStore struct {
	mu     sync.Mutex
	tokens map[string]*oauth2.Token
	saves  int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{tokens: make(map[string]*oauth2.Token)}
}

func (m *memoryStore) Load(_ context.Context, key string) (*oauth2.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.tokens[key]
	if !ok {
		return nil, tokenstore.ErrNotFound
	}
	return tok, nil
}

func (m *memoryStore) Save(_ context.Context, key string, tok *oauth2.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[key] = tok
	m.saves++
	return nil
}

func tokenServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	calls := &atomic.Int32{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v5/oauth2":
			calls.Add(1)
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
			assert.Equal(t, "refresh-1", r.PostForm.Get("refresh_token"))
			assert.Equal(t, "client-1", r.PostForm.Get("client_id"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"access_token":"access-2","token_type":"Bearer","expires_in":3600}`))
		case "/v5/issue-workflow/settings":
			assert.Equal(t, "Bearer access-2", r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(`{"result":0,"data":{"statuses":[]}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, calls
}

func TestNewSessionRequiresToken(t *testing.T) {
	_, err := NewSession(context.Background(), SessionConfig{BaseURL: "https://x/v5/"}, newMemoryStore(), nil)
	assert.Error(t, err)
}

func TestNewSessionPrefersStoredToken(t *testing.T) {
	store := newMemoryStore()
	store.tokens["default"] = &oauth2.Token{AccessToken: "stored", Expiry: time.Now().Add(time.Hour)}

	s, err := NewSession(context.Background(), SessionConfig{}, store, &oauth2.Token{AccessToken: "seed"})
	require.NoError(t, err)

	tok, err := s.Token()
	require.NoError(t, err)
	assert.Equal(t, "stored", tok.AccessToken)
}

func TestSessionRefreshesExpiredTokenAndPersists(t *testing.T) {
	srv, calls := tokenServer(t)
	store := newMemoryStore()

	s, err := NewSession(context.Background(), SessionConfig{BaseURL: srv.URL + "/v5", ClientID: "client-1"}, store,
		&oauth2.Token{AccessToken: "access-1", RefreshToken: "refresh-1", Expiry: time.Now().Add(-time.Minute)})
	require.NoError(t, err)

	client, err := NewClient(ClientConfig{BaseURL: srv.URL + "/v5"}, s, 5*time.Second)
	require.NoError(t, err)

	_, err = client.WorkflowSettings(context.Background())
	require.NoError(t, err)
	_, err = client.WorkflowSettings(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load(), "a valid token is reused")
	assert.Equal(t, 1, store.saves)
	saved := store.tokens["default"]
	assert.Equal(t, "access-2", saved.AccessToken)
	assert.Equal(t, "refresh-1", saved.RefreshToken, "refresh token is kept when the endpoint omits it")
	assert.False(t, s.ExpiresWithin(time.Minute))
	assert.True(t, s.ExpiresWithin(2*time.Hour))
}

func TestSessionWithoutRefreshToken(t *testing.T) {
	s, err := NewSession(context.Background(), SessionConfig{}, nil,
		&oauth2.Token{AccessToken: "access-1", Expiry: time.Now().Add(-time.Minute)})
	require.NoError(t, err)

	_, err = s.Token()
	assert.ErrorContains(t, err, "no refresh token")
}

func TestRefresherStartStop(t *testing.T) {
	srv, calls := tokenServer(t)
	s, err := NewSession(context.Background(), SessionConfig{BaseURL: srv.URL + "/v5", ClientID: "client-1"}, nil,
		&oauth2.Token{AccessToken: "access-1", RefreshToken: "refresh-1", Expiry: time.Now().Add(time.Millisecond)})
	require.NoError(t, err)

	r := NewRefresher(s, 10*time.Millisecond)
	r.Start()
	r.Start()

	assert.Eventually(t, func() bool {
		tok, err := s.Token()
		return err == nil && tok.AccessToken == "access-2"
	}, 2*time.Second, 5*time.Millisecond)

	r.Stop()
	r.Stop()
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
}
