package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmail/dashboard/internal/auth"
	"github.com/flowmail/dashboard/internal/domain"
	"github.com/flowmail/dashboard/internal/service/account"
	"github.com/flowmail/dashboard/internal/service/billing"
	"github.com/flowmail/dashboard/internal/service/campaign"
	"github.com/flowmail/dashboard/internal/service/events"
	"github.com/flowmail/dashboard/internal/service/subscriber"
	"github.com/flowmail/dashboard/internal/service/user"
	"github.com/flowmail/dashboard/internal/whop"
)

type stubUsers struct{}

func (stubUsers) Resolve(_ context.Context, whopUserID string) (*domain.User, error) {
	if whopUserID == "" {
		return nil, user.ErrMissingUserID
	}
	if whopUserID == "user_missing" {
		return nil, user.ErrNotFound
	}
	return &domain.User{ID: "u-" + whopUserID, WhopUserID: whopUserID, Plan: domain.PlanFree}, nil
}

func (stubUsers) Usage(u *domain.User) user.Usage {
	return user.Usage{Plan: u.Plan, MonthlyLimit: 500, Remaining: 500}
}

func (stubUsers) SetSenderName(_ context.Context, _ *domain.User, requested string) (string, error) {
	if requested == "taken" {
		return "", user.ErrSenderNameTaken
	}
	return requested, nil
}

type stubSubscribers struct {
	deleted []string
}

func (s *stubSubscribers) List(context.Context, string, subscriber.ListFilter) ([]domain.Subscriber, error) {
	return []domain.Subscriber{{ID: "s1", Email: "a@example.com"}}, nil
}

func (s *stubSubscribers) Create(_ context.Context, userID string, in subscriber.CreateInput) (*domain.Subscriber, error) {
	return &domain.Subscriber{ID: "s2", UserID: userID, Email: in.Email}, nil
}

func (s *stubSubscribers) Import(_ context.Context, _ string, rows []subscriber.ImportRow) (subscriber.ImportResult, error) {
	return subscriber.ImportResult{Imported: len(rows)}, nil
}

func (s *stubSubscribers) Sync(_ context.Context, _ *domain.User, companyID string) (subscriber.SyncResult, error) {
	if companyID == "biz_other" {
		return subscriber.SyncResult{}, subscriber.ErrCompanyForbidden
	}
	return subscriber.SyncResult{}, fmt.Errorf("%w: whop returned 502", subscriber.ErrUpstream)
}

func (s *stubSubscribers) Delete(_ context.Context, _ string, id string) error {
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *stubSubscribers) DeleteMany(_ context.Context, _ string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, subscriber.ErrNoIDs
	}
	return len(ids), nil
}

type stubCampaigns struct {
	sendCtx context.Context
}

func (s *stubCampaigns) List(context.Context, string, campaign.ListFilter) ([]domain.Campaign, error) {
	return []domain.Campaign{}, nil
}

func (s *stubCampaigns) Get(_ context.Context, _ string, id string) (*domain.Campaign, error) {
	if id != "c1" {
		return nil, campaign.ErrNotFound
	}
	return &domain.Campaign{ID: "c1", Name: "Launch"}, nil
}

func (s *stubCampaigns) Create(_ context.Context, userID string, in campaign.CreateInput) (*domain.Campaign, error) {
	if in.Name == "" {
		return nil, campaign.ErrNameRequired
	}
	return &domain.Campaign{ID: "c2", UserID: userID, Name: in.Name}, nil
}

func (s *stubCampaigns) Update(context.Context, string, string, campaign.UpdateInput) (*domain.Campaign, error) {
	return nil, campaign.ErrCampaignSent
}

func (s *stubCampaigns) Delete(context.Context, string, string) error { return nil }

func (s *stubCampaigns) DeleteMany(_ context.Context, _ string, ids []string) (int, error) {
	return len(ids), nil
}

func (s *stubCampaigns) Send(ctx context.Context, _ *domain.User, _ string, _ string) (campaign.SendResult, error) {
	s.sendCtx = ctx
	return campaign.SendResult{Sent: 2, Failed: 1, Total: 3}, nil
}

func (s *stubCampaigns) SendTest(context.Context, *domain.User, string, string) (domain.SendResult, error) {
	return domain.SendResult{MessageID: "msg-1", Provider: domain.ProviderNoop}, nil
}

type stubBilling struct{}

func (stubBilling) Plans() []billing.PlanInfo {
	return []billing.PlanInfo{{Plan: "free", MonthlyLimit: 500}}
}

func (stubBilling) Checkout(_ context.Context, _ *domain.User, keyword string) (whop.CheckoutSession, error) {
	if keyword != "pro" {
		return nil, billing.ErrUnknownPlan
	}
	return whop.CheckoutSession{"id": "ch_1"}, nil
}

func (stubBilling) HandleWebhook(_ context.Context, _ []byte, sig string) (billing.WebhookResult, error) {
	if sig != "good" {
		return billing.WebhookResult{}, billing.ErrInvalidSignature
	}
	return billing.WebhookResult{Action: "membership.went_valid", Applied: true}, nil
}

type stubAccount struct{}

func (stubAccount) ClearData(context.Context, *domain.User) (account.ClearResult, error) {
	return account.ClearResult{Subscribers: 4, Campaigns: 2}, nil
}

type stubDomains struct{}

func (stubDomains) Register(_ context.Context, u *domain.User, name string) (*domain.User, error) {
	out := *u
	out.CustomDomain = name
	out.DomainStatus = domain.DomainRegistered
	return &out, nil
}

func (stubDomains) Verify(_ context.Context, u *domain.User) (*domain.User, error) {
	out := *u
	out.DomainStatus = domain.DomainVerified
	return &out, nil
}

func (stubDomains) Remove(_ context.Context, u *domain.User) (*domain.User, error) {
	out := *u
	out.CustomDomain = ""
	out.DomainStatus = domain.DomainUnregistered
	return &out, nil
}

type stubEvents struct{}

func (stubEvents) Record(_ context.Context, _ []byte, token string) (*domain.EmailEvent, error) {
	if token != "Bearer secret" && token != "secret" {
		return nil, events.ErrUnauthorized
	}
	return &domain.EmailEvent{ID: "evt-1"}, nil
}

// callerAuth attaches a fixed caller, standing in for the session middleware.
type callerAuth struct {
	whopUserID string
}

func (a callerAuth) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := auth.WithCaller(r.Context(), &auth.Caller{WhopUserID: a.whopUserID, Via: "session"})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (callerAuth) HandleLogin(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusFound)
}
func (callerAuth) HandleCallback(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}
func (callerAuth) HandleLogout(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }
func (callerAuth) HandleUserInfo(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

type testEnv struct {
	router      http.Handler
	subscribers *stubSubscribers
	campaigns   *stubCampaigns
}

func setupTestRouter(t *testing.T, authn Authenticator) *testEnv {
	t.Helper()
	env := &testEnv{subscribers: &stubSubscribers{}, campaigns: &stubCampaigns{}}
	h := NewHandlers(Services{
		Users:       stubUsers{},
		Subscribers: env.subscribers,
		Campaigns:   env.campaigns,
		Billing:     stubBilling{},
		Account:     stubAccount{},
		Domains:     stubDomains{},
		Events:      stubEvents{},
	})
	env.router = SetupRoutes(h, RouteOptions{Auth: authn, Health: NewHealthChecker(nil, nil)})
	return env
}

func do(t *testing.T, h http.Handler, method, target string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestHealthCheck(t *testing.T) {
	env := setupTestRouter(t, nil)

	rec, body := do(t, env.router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "not configured", body["checks"].(map[string]any)["database"])
}

func TestGetUserEnvelope(t *testing.T) {
	env := setupTestRouter(t, nil)

	rec, body := do(t, env.router, http.MethodGet, "/api/user?userId=user_1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	u := body["user"].(map[string]any)
	assert.Equal(t, "user_1", u["whop_user_id"])
	assert.NotNil(t, body["usage"])
}

func TestMissingUserIDIsBadRequest(t *testing.T) {
	env := setupTestRouter(t, nil)

	rec, body := do(t, env.router, http.MethodGet, "/api/user", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "missing_user_id", body["code"])
}

func TestUserIDMustMatchCaller(t *testing.T) {
	env := setupTestRouter(t, callerAuth{whopUserID: "user_1"})

	rec, body := do(t, env.router, http.MethodGet, "/api/user?userId=user_2", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", body["code"])

	// An omitted userId falls back to the caller.
	rec, body = do(t, env.router, http.MethodGet, "/api/user", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user_1", body["user"].(map[string]any)["whop_user_id"])
}

func TestErrorMapping(t *testing.T) {
	env := setupTestRouter(t, nil)

	tests := []struct {
		name   string
		method string
		target string
		body   any
		status int
		code   string
	}{
		{"unknown user", http.MethodGet, "/api/user?userId=user_missing", nil, http.StatusNotFound, "not_found"},
		{"sender name taken", http.MethodPost, "/api/settings/sender-name", map[string]string{"userId": "u", "senderName": "taken"}, http.StatusConflict, "sender_name_taken"},
		{"campaign not found", http.MethodGet, "/api/campaigns/nope?userId=u", nil, http.StatusNotFound, "not_found"},
		{"edit sent campaign", http.MethodPut, "/api/campaigns/c1", map[string]string{"userId": "u", "name": "x"}, http.StatusBadRequest, "campaign_sent"},
		{"unknown plan", http.MethodPost, "/api/billing/checkout", map[string]string{"userId": "u", "plan": "gold"}, http.StatusBadRequest, "unknown_plan"},
		{"upstream failure", http.MethodPost, "/api/subscribers/sync", map[string]string{"userId": "u"}, http.StatusInternalServerError, "upstream_error"},
		{"sync foreign company", http.MethodPost, "/api/subscribers/sync", map[string]string{"userId": "u", "companyId": "biz_other"}, http.StatusForbidden, "forbidden"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := do(t, env.router, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, body["code"])
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestUpstreamMessagePassesThrough(t *testing.T) {
	env := setupTestRouter(t, nil)

	_, body := do(t, env.router, http.MethodPost, "/api/subscribers/sync", map[string]string{"userId": "u"})
	assert.Contains(t, body["error"], "whop returned 502")
}

func TestValidationMessages(t *testing.T) {
	env := setupTestRouter(t, nil)

	rec, body := do(t, env.router, http.MethodPost, "/api/subscribers", map[string]string{"userId": "u"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "email is required", body["error"])

	req := httptest.NewRequest(http.MethodPost, "/api/campaigns", bytes.NewBufferString("{not json"))
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCampaignRoutes(t *testing.T) {
	env := setupTestRouter(t, nil)

	rec, body := do(t, env.router, http.MethodPost, "/api/campaigns", map[string]string{"userId": "u", "name": "Launch", "subject": "Hi"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Launch", body["campaign"].(map[string]any)["name"])

	rec, body = do(t, env.router, http.MethodPost, "/api/campaigns/c1/send", map[string]string{"userId": "u"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, body["sent"])
	assert.EqualValues(t, 1, body["failed"])
	assert.EqualValues(t, 3, body["total"])
	require.NotNil(t, env.campaigns.sendCtx)
	assert.Nil(t, env.campaigns.sendCtx.Done(), "send must not inherit request cancellation")

	rec, body = do(t, env.router, http.MethodPost, "/api/campaigns/c1/test", map[string]string{"userId": "u", "email": "me@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "msg-1", body["message_id"])

	rec, body = do(t, env.router, http.MethodPost, "/api/campaigns/delete", map[string]any{"userId": "u", "campaignIds": []string{"a", "b"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, body["deleted"])
}

func TestSubscriberRoutes(t *testing.T) {
	env := setupTestRouter(t, nil)

	rec, body := do(t, env.router, http.MethodGet, "/api/subscribers?userId=u", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["count"])

	rec, _ = do(t, env.router, http.MethodDelete, "/api/subscribers/s9?userId=u", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"s9"}, env.subscribers.deleted)

	rec, body = do(t, env.router, http.MethodPost, "/api/subscribers/import", map[string]string{
		"userId": "u",
		"csv":    "name,email,tier\nAda,ada@example.com,gold\n",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["imported"])

	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/sample-subscribers.csv", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "attachment")
}

func TestDomainAndAccountRoutes(t *testing.T) {
	env := setupTestRouter(t, nil)

	rec, body := do(t, env.router, http.MethodPost, "/api/domain", map[string]string{"userId": "u", "domain": "mail.example.com"})
	require.Equal(t, http.StatusCreated, rec.Code)
	d := body["domain"].(map[string]any)
	assert.Equal(t, "mail.example.com", d["domain"])
	assert.Equal(t, "registered", d["status"])
	assert.Equal(t, []any{}, d["records"])

	rec, body = do(t, env.router, http.MethodPost, "/api/account/clear-data", map[string]string{"userId": "u"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 4, body["deleted"].(map[string]any)["subscribers"])
}

func TestWebhooksBypassAuth(t *testing.T) {
	env := setupTestRouter(t, callerAuth{whopUserID: "user_1"})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/whop", bytes.NewBufferString(`{}`))
	req.Header.Set("X-Whop-Signature", "bad")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/webhooks/whop", bytes.NewBufferString(`{}`))
	req.Header.Set("X-Whop-Signature", "good")
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/webhooks/email?token=secret", bytes.NewBufferString(`{}`))
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "evt-1")
}

func TestPlansAndMetrics(t *testing.T) {
	env := setupTestRouter(t, nil)

	rec, body := do(t, env.router, http.MethodGet, "/api/billing/plans", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["plans"], 1)

	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "flowmail_")
}
