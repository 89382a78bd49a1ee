// Package auth signs creators in with Whop. It runs the OAuth code flow for
// the standalone dashboard and accepts the x-whop-user-token header when the
// app is embedded in the Whop iframe.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/flowmail/dashboard/internal/config"
	"github.com/flowmail/dashboard/internal/domain"
	"github.com/flowmail/dashboard/internal/pkg/httputil"
	"github.com/flowmail/dashboard/internal/pkg/logger"
	"github.com/flowmail/dashboard/internal/service/user"
	"github.com/flowmail/dashboard/internal/whop"
)

// WhopTokenHeader carries the iframe user token.
const WhopTokenHeader = "x-whop-user-token"

const (
	stateCookie      = "oauth_state"
	tokenCacheTTL    = 5 * time.Minute
	tokenCachePrefix = "whop-token:"
)

// IdentityProvider resolves a Whop access or user token to its user.
type IdentityProvider interface {
	Me(ctx context.Context, token string) (*whop.Identity, error)
}

// UserStore creates or refreshes the FlowMail account on sign-in.
type UserStore interface {
	UpsertFromWhop(ctx context.Context, id user.Identity) (*domain.User, error)
}

// AuthManager handles Whop authentication
type AuthManager struct {
	config       config.AuthConfig
	oauth2Config *oauth2.Config
	identity     IdentityProvider
	users        UserStore
	sessions     SessionStore
}

// NewAuthManager creates a new authentication manager
func NewAuthManager(cfg config.AuthConfig, whopCfg config.WhopConfig, identity IdentityProvider, users UserStore, sessions SessionStore) *AuthManager {
	if cfg.CookieName == "" {
		cfg.CookieName = "flowmail_session"
	}
	if cfg.CookieMaxAge <= 0 {
		cfg.CookieMaxAge = 7 * 24 * 3600
	}
	oauth2Config := &oauth2.Config{
		ClientID:     whopCfg.AppID,
		ClientSecret: whopCfg.ClientSecret,
		RedirectURL:  strings.TrimRight(cfg.BaseURL, "/") + "/auth/callback",
		Endpoint: oauth2.Endpoint{
			AuthURL:   whopCfg.AuthorizeURL,
			TokenURL:  whopCfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	return &AuthManager{
		config:       cfg,
		oauth2Config: oauth2Config,
		identity:     identity,
		users:        users,
		sessions:     sessions,
	}
}

// Enabled reports whether /api requests must be authenticated.
func (am *AuthManager) Enabled() bool { return am.config.Enabled }

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// signCookie appends an HMAC of the session id when a session secret is
// configured.
func (am *AuthManager) signCookie(id string) string {
	if am.config.SessionSecret == "" {
		return id
	}
	return id + "." + am.mac(id)
}

func (am *AuthManager) unsignCookie(value string) (string, bool) {
	if am.config.SessionSecret == "" {
		return value, value != ""
	}
	id, sig, ok := strings.Cut(value, ".")
	if !ok || !hmac.Equal([]byte(sig), []byte(am.mac(id))) {
		return "", false
	}
	return id, true
}

func (am *AuthManager) mac(id string) string {
	h := hmac.New(sha256.New, []byte(am.config.SessionSecret))
	h.Write([]byte(id))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// HandleLogin initiates the Whop OAuth flow
func (am *AuthManager) HandleLogin(w http.ResponseWriter, r *http.Request) {
	state, err := randomToken()
	if err != nil {
		httputil.Error(w, http.StatusInternalServerError, "failed to generate state")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   300,
		HttpOnly: true,
		Secure:   am.config.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, am.oauth2Config.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

// HandleCallback processes the OAuth callback from Whop
func (am *AuthManager) HandleCallback(w http.ResponseWriter, r *http.Request) {
	state, err := r.Cookie(stateCookie)
	if err != nil || state.Value == "" || r.URL.Query().Get("state") != state.Value {
		logger.Warn("oauth state mismatch")
		http.Redirect(w, r, "/?error=invalid_state", http.StatusTemporaryRedirect)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1})

	if errMsg := r.URL.Query().Get("error"); errMsg != "" {
		logger.Warn("whop returned oauth error", "error", errMsg)
		http.Redirect(w, r, "/?error=oauth_denied", http.StatusTemporaryRedirect)
		return
	}

	token, err := am.oauth2Config.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		logger.Error("oauth code exchange failed", "error", err)
		http.Redirect(w, r, "/?error=exchange_failed", http.StatusTemporaryRedirect)
		return
	}

	id, err := am.identity.Me(r.Context(), token.AccessToken)
	if err != nil {
		logger.Error("whop identity lookup failed", "error", err)
		http.Redirect(w, r, "/?error=userinfo_failed", http.StatusTemporaryRedirect)
		return
	}
	u, err := am.users.UpsertFromWhop(r.Context(), identityFrom(id))
	if err != nil {
		logger.Error("user upsert failed", "whop_user_id", id.ID, "error", err)
		http.Redirect(w, r, "/?error=account_failed", http.StatusTemporaryRedirect)
		return
	}

	sessionID, err := randomToken()
	if err != nil {
		http.Redirect(w, r, "/?error=session_failed", http.StatusTemporaryRedirect)
		return
	}
	now := time.Now()
	sess := &Session{
		UserID:     u.ID,
		WhopUserID: u.WhopUserID,
		Email:      u.Email,
		Username:   u.Username,
		CreatedAt:  now,
		ExpiresAt:  now.Add(time.Duration(am.config.CookieMaxAge) * time.Second),
	}
	if err := am.sessions.Save(r.Context(), sessionID, sess); err != nil {
		logger.Error("session save failed", "error", err)
		http.Redirect(w, r, "/?error=session_failed", http.StatusTemporaryRedirect)
		return
	}

	logger.Info("user logged in", "user_id", u.ID, "email", u.Email)
	http.SetCookie(w, &http.Cookie{
		Name:     am.config.CookieName,
		Value:    am.signCookie(sessionID),
		Path:     "/",
		MaxAge:   am.config.CookieMaxAge,
		HttpOnly: true,
		Secure:   am.config.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
}

// HandleLogout logs out the user
func (am *AuthManager) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(am.config.CookieName); err == nil {
		if id, ok := am.unsignCookie(cookie.Value); ok {
			if err := am.sessions.Delete(r.Context(), id); err != nil {
				logger.Warn("session delete failed", "error", err)
			}
		}
	}
	http.SetCookie(w, &http.Cookie{Name: am.config.CookieName, Value: "", Path: "/", MaxAge: -1})
	http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
}

// HandleUserInfo returns the current user's info as JSON
func (am *AuthManager) HandleUserInfo(w http.ResponseWriter, r *http.Request) {
	caller, err := am.Authenticate(r)
	if err != nil || caller == nil {
		httputil.JSON(w, http.StatusUnauthorized, httputil.Payload{"success": false, "authenticated": false})
		return
	}
	httputil.OK(w, httputil.Payload{
		"authenticated": true,
		"user": map[string]string{
			"id":           caller.UserID,
			"whop_user_id": caller.WhopUserID,
			"via":          caller.Via,
		},
	})
}

// Authenticate identifies the caller by session cookie, then by Whop user
// token. It returns nil, nil for an anonymous request.
func (am *AuthManager) Authenticate(r *http.Request) (*Caller, error) {
	if cookie, err := r.Cookie(am.config.CookieName); err == nil {
		if id, ok := am.unsignCookie(cookie.Value); ok {
			sess, err := am.sessions.Get(r.Context(), id)
			if err == nil && time.Now().Before(sess.ExpiresAt) {
				return &Caller{UserID: sess.UserID, WhopUserID: sess.WhopUserID, Via: "session"}, nil
			}
			if err != nil && !errors.Is(err, ErrSessionNotFound) {
				return nil, err
			}
		}
	}

	token := strings.TrimSpace(r.Header.Get(WhopTokenHeader))
	if token == "" {
		return nil, nil
	}
	return am.verifyWhopToken(r.Context(), token)
}

// verifyWhopToken checks the iframe token against Whop. Verified tokens
// are cached in the session store for a few minutes.
func (am *AuthManager) verifyWhopToken(ctx context.Context, token string) (*Caller, error) {
	sum := sha256.Sum256([]byte(token))
	cacheKey := tokenCachePrefix + hex.EncodeToString(sum[:])
	if sess, err := am.sessions.Get(ctx, cacheKey); err == nil && time.Now().Before(sess.ExpiresAt) {
		return &Caller{UserID: sess.UserID, WhopUserID: sess.WhopUserID, Via: "whop_token"}, nil
	}

	id, err := am.identity.Me(ctx, token)
	if errors.Is(err, whop.ErrUnauthorized) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u, err := am.users.UpsertFromWhop(ctx, identityFrom(id))
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if err := am.sessions.Save(ctx, cacheKey, &Session{
		UserID: u.ID, WhopUserID: u.WhopUserID, Email: u.Email, Username: u.Username,
		CreatedAt: now, ExpiresAt: now.Add(tokenCacheTTL),
	}); err != nil {
		logger.Warn("whop token cache save failed", "error", err)
	}
	return &Caller{UserID: u.ID, WhopUserID: u.WhopUserID, Via: "whop_token"}, nil
}

// RequireAuth is middleware for /api routes. When auth is disabled every
// request passes through anonymously.
func (am *AuthManager) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !am.config.Enabled {
			next.ServeHTTP(w, r)
			return
		}
		caller, err := am.Authenticate(r)
		if err != nil {
			logger.Error("authentication failed", "path", r.URL.Path, "error", err)
			httputil.ErrorCode(w, http.StatusUnauthorized, "authentication failed", "unauthorized", nil)
			return
		}
		if caller == nil {
			httputil.ErrorCode(w, http.StatusUnauthorized, "authentication required", "unauthorized", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
	})
}

func identityFrom(id *whop.Identity) user.Identity {
	name := id.Username
	if name == "" {
		name = id.Name
	}
	return user.Identity{WhopUserID: id.ID, Email: id.Email, Username: name}
}
