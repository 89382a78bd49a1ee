package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmail/dashboard/internal/config"
	"github.com/flowmail/dashboard/internal/domain"
	"github.com/flowmail/dashboard/internal/service/user"
	"github.com/flowmail/dashboard/internal/whop"
)

type fakeIdentity struct {
	tokens map[string]*whop.Identity
	calls  int
}

func (f *fakeIdentity) Me(_ context.Context, token string) (*whop.Identity, error) {
	f.calls++
	id, ok := f.tokens[token]
	if !ok {
		return nil, whop.ErrUnauthorized
	}
	return id, nil
}

type fakeUsers struct{}

func (fakeUsers) UpsertFromWhop(_ context.Context, id user.Identity) (*domain.User, error) {
	return &domain.User{ID: "internal-" + id.WhopUserID, WhopUserID: id.WhopUserID, Email: id.Email, Username: id.Username}, nil
}

func newManager(t *testing.T, enabled bool, tokenURL string) (*AuthManager, *fakeIdentity) {
	t.Helper()
	identity := &fakeIdentity{tokens: map[string]*whop.Identity{
		"iframe-token": {ID: "user_iframe", Username: "iris", Email: "iris@example.com"},
		"access-token": {ID: "user_oauth", Name: "Otto", Email: "otto@example.com"},
	}}
	am := NewAuthManager(
		config.AuthConfig{Enabled: enabled, BaseURL: "http://localhost:8080", SessionSecret: "s3cret"},
		config.WhopConfig{AppID: "app_1", ClientSecret: "cs", AuthorizeURL: "https://whop.test/oauth", TokenURL: tokenURL},
		identity, fakeUsers{}, NewMemoryStore(),
	)
	return am, identity
}

func echoCaller() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, ok := CallerFrom(r.Context())
		if !ok {
			w.Write([]byte("anonymous"))
			return
		}
		w.Write([]byte(c.WhopUserID + "/" + c.Via))
	})
}

func TestRequireAuthDisabledPassesThrough(t *testing.T) {
	am, _ := newManager(t, false, "")
	rec := httptest.NewRecorder()
	am.RequireAuth(echoCaller()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/user", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "anonymous", rec.Body.String())
}

func TestRequireAuthWhopToken(t *testing.T) {
	am, identity := newManager(t, true, "")
	h := am.RequireAuth(echoCaller())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/user", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/user", nil)
	req.Header.Set(WhopTokenHeader, "bogus")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	for i := 0; i < 2; i++ {
		req = httptest.NewRequest(http.MethodGet, "/api/user", nil)
		req.Header.Set(WhopTokenHeader, "iframe-token")
		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "user_iframe/whop_token", rec.Body.String())
	}
	// bogus once, iframe-token once; the second iframe request hit the cache.
	assert.Equal(t, 2, identity.calls)
}

func TestOAuthFlowCreatesSession(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "the-code", r.Form.Get("code"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"access_token": "access-token", "token_type": "bearer", "expires_in": 3600})
	}))
	defer tokenSrv.Close()
	am, _ := newManager(t, true, tokenSrv.URL)

	login := httptest.NewRecorder()
	am.HandleLogin(login, httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	require.Equal(t, http.StatusTemporaryRedirect, login.Code)
	loc, err := url.Parse(login.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "whop.test", loc.Host)
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)
	assert.Equal(t, "http://localhost:8080/auth/callback", loc.Query().Get("redirect_uri"))

	cb := httptest.NewRequest(http.MethodGet, "/auth/callback?code=the-code&state="+url.QueryEscape(state), nil)
	cb.AddCookie(&http.Cookie{Name: stateCookie, Value: state})
	rec := httptest.NewRecorder()
	am.HandleCallback(rec, cb)
	require.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	var session *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == "flowmail_session" {
			session = c
		}
	}
	require.NotNil(t, session)

	req := httptest.NewRequest(http.MethodGet, "/auth/user", nil)
	req.AddCookie(session)
	rec = httptest.NewRecorder()
	am.HandleUserInfo(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"whop_user_id":"user_oauth"`)

	tampered := httptest.NewRequest(http.MethodGet, "/auth/user", nil)
	tampered.AddCookie(&http.Cookie{Name: "flowmail_session", Value: session.Value + "x"})
	rec = httptest.NewRecorder()
	am.HandleUserInfo(rec, tampered)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	logout := httptest.NewRequest(http.MethodGet, "/auth/logout", nil)
	logout.AddCookie(session)
	am.HandleLogout(httptest.NewRecorder(), logout)
	caller, err := am.Authenticate(req)
	require.NoError(t, err)
	assert.Nil(t, caller)
}

func TestCallbackRejectsStateMismatch(t *testing.T) {
	am, _ := newManager(t, true, "")
	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=x&state=a", nil)
	req.AddCookie(&http.Cookie{Name: stateCookie, Value: "b"})
	rec := httptest.NewRecorder()
	am.HandleCallback(rec, req)
	assert.Equal(t, "/?error=invalid_state", rec.Header().Get("Location"))
}

func TestResolveUserID(t *testing.T) {
	id, err := ResolveUserID(context.Background(), " user_1 ")
	require.NoError(t, err)
	assert.Equal(t, "user_1", id)

	ctx := WithCaller(context.Background(), &Caller{WhopUserID: "user_me"})
	id, err = ResolveUserID(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "user_me", id)

	_, err = ResolveUserID(ctx, "user_other")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	store := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	ctx := context.Background()

	sess := &Session{UserID: "u1", WhopUserID: "user_1", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, store.Save(ctx, "abc", sess))
	assert.True(t, mr.Exists("session:abc"))
	assert.InDelta(t, time.Hour.Seconds(), mr.TTL("session:abc").Seconds(), 5)

	got, err := store.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "user_1", got.WhopUserID)

	require.NoError(t, store.Delete(ctx, "abc"))
	_, err = store.Get(ctx, "abc")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "old", &Session{ExpiresAt: time.Now().Add(-time.Second)}))
	_, err := store.Get(ctx, "old")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
