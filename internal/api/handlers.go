package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/flowmail/dashboard/internal/auth"
	"github.com/flowmail/dashboard/internal/domain"
	"github.com/flowmail/dashboard/internal/pkg/httputil"
	"github.com/flowmail/dashboard/internal/pkg/logger"
	"github.com/flowmail/dashboard/internal/service/account"
	"github.com/flowmail/dashboard/internal/service/billing"
	"github.com/flowmail/dashboard/internal/service/campaign"
	"github.com/flowmail/dashboard/internal/service/events"
	"github.com/flowmail/dashboard/internal/service/sendingdomain"
	"github.com/flowmail/dashboard/internal/service/subscriber"
	"github.com/flowmail/dashboard/internal/service/user"
	"github.com/flowmail/dashboard/internal/whop"
)

// UserService is the user surface used by handlers.
type UserService interface {
	Resolve(ctx context.Context, whopUserID string) (*domain.User, error)
	Usage(u *domain.User) user.Usage
	SetSenderName(ctx context.Context, u *domain.User, requested string) (string, error)
}

// SubscriberService is the subscriber surface used by handlers.
type SubscriberService interface {
	List(ctx context.Context, userID string, f subscriber.ListFilter) ([]domain.Subscriber, error)
	Create(ctx context.Context, userID string, in subscriber.CreateInput) (*domain.Subscriber, error)
	Import(ctx context.Context, userID string, rows []subscriber.ImportRow) (subscriber.ImportResult, error)
	Sync(ctx context.Context, u *domain.User, companyID string) (subscriber.SyncResult, error)
	Delete(ctx context.Context, userID, id string) error
	DeleteMany(ctx context.Context, userID string, ids []string) (int, error)
}

// CampaignService is the campaign surface used by handlers.
type CampaignService interface {
	List(ctx context.Context, userID string, f campaign.ListFilter) ([]domain.Campaign, error)
	Get(ctx context.Context, userID, id string) (*domain.Campaign, error)
	Create(ctx context.Context, userID string, in campaign.CreateInput) (*domain.Campaign, error)
	Update(ctx context.Context, userID, id string, in campaign.UpdateInput) (*domain.Campaign, error)
	Delete(ctx context.Context, userID, id string) error
	DeleteMany(ctx context.Context, userID string, ids []string) (int, error)
	Send(ctx context.Context, u *domain.User, campaignID, segment string) (campaign.SendResult, error)
	SendTest(ctx context.Context, u *domain.User, campaignID, to string) (domain.SendResult, error)
}

// BillingService is the billing surface used by handlers.
type BillingService interface {
	Plans() []billing.PlanInfo
	Checkout(ctx context.Context, u *domain.User, keyword string) (whop.CheckoutSession, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) (billing.WebhookResult, error)
}

// AccountService is the account maintenance surface used by handlers.
type AccountService interface {
	ClearData(ctx context.Context, u *domain.User) (account.ClearResult, error)
}

// DomainService is the custom domain surface used by handlers.
type DomainService interface {
	Register(ctx context.Context, u *domain.User, name string) (*domain.User, error)
	Verify(ctx context.Context, u *domain.User) (*domain.User, error)
	Remove(ctx context.Context, u *domain.User) (*domain.User, error)
}

// EventService records provider delivery events.
type EventService interface {
	Record(ctx context.Context, payload []byte, token string) (*domain.EmailEvent, error)
}

// Handlers contains all HTTP handlers
type Handlers struct {
	users       UserService
	subscribers SubscriberService
	campaigns   CampaignService
	billing     BillingService
	account     AccountService
	domains     DomainService
	events      EventService
}

// Services groups the collaborators of Handlers.
type Services struct {
	Users       UserService
	Subscribers SubscriberService
	Campaigns   CampaignService
	Billing     BillingService
	Account     AccountService
	Domains     DomainService
	Events      EventService
}

// NewHandlers creates a new Handlers instance
func NewHandlers(s Services) *Handlers {
	return &Handlers{
		users:       s.Users,
		subscribers: s.Subscribers,
		campaigns:   s.Campaigns,
		billing:     s.Billing,
		account:     s.Account,
		domains:     s.Domains,
		events:      s.Events,
	}
}

// currentUser resolves the account a request acts for. The requested
// Whop user id must match the authenticated caller when auth is on.
func (h *Handlers) currentUser(w http.ResponseWriter, r *http.Request, requested string) (*domain.User, bool) {
	whopUserID, err := auth.ResolveUserID(r.Context(), requested)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	u, err := h.users.Resolve(r.Context(), whopUserID)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return u, true
}

type errorMapping struct {
	target error
	status int
	code   string
}

// errorStatus maps sentinel errors to HTTP statuses. Anything unlisted is
// an upstream or datastore failure.
var errorStatus = []errorMapping{
	{auth.ErrForbidden, http.StatusForbidden, "forbidden"},

	{user.ErrMissingUserID, http.StatusBadRequest, "missing_user_id"},
	{user.ErrNotFound, http.StatusNotFound, "not_found"},
	{user.ErrInvalidSenderName, http.StatusBadRequest, "invalid_sender_name"},
	{user.ErrSenderNameTaken, http.StatusConflict, "sender_name_taken"},
	{user.ErrSenderNameExhausted, http.StatusConflict, "sender_name_taken"},

	{subscriber.ErrNotFound, http.StatusNotFound, "not_found"},
	{subscriber.ErrInvalidEmail, http.StatusBadRequest, ""},
	{subscriber.ErrNoIDs, http.StatusBadRequest, ""},
	{subscriber.ErrInvalidCSV, http.StatusBadRequest, ""},
	{subscriber.ErrNoCompany, http.StatusBadRequest, ""},
	{subscriber.ErrCompanyForbidden, http.StatusForbidden, "forbidden"},
	{subscriber.ErrUpstream, http.StatusInternalServerError, "upstream_error"},

	{campaign.ErrNotFound, http.StatusNotFound, "not_found"},
	{campaign.ErrNameRequired, http.StatusBadRequest, ""},
	{campaign.ErrSubjectRequired, http.StatusBadRequest, ""},
	{campaign.ErrHTMLRequired, http.StatusBadRequest, ""},
	{campaign.ErrInvalidSyntax, http.StatusBadRequest, ""},
	{campaign.ErrInvalidTemplate, http.StatusBadRequest, "invalid_template"},
	{campaign.ErrNoIDs, http.StatusBadRequest, ""},
	{campaign.ErrRecipientEmail, http.StatusBadRequest, ""},
	{campaign.ErrCampaignSent, http.StatusBadRequest, "campaign_sent"},
	{campaign.ErrCampaignSending, http.StatusBadRequest, "campaign_sending"},
	{campaign.ErrSendInProgress, http.StatusBadRequest, "send_in_progress"},
	{campaign.ErrNoRecipients, http.StatusBadRequest, "no_recipients"},
	{campaign.ErrQuotaExceeded, http.StatusBadRequest, "quota_exceeded"},

	{billing.ErrUnknownPlan, http.StatusBadRequest, "unknown_plan"},
	{billing.ErrPlanNotConfigured, http.StatusInternalServerError, "plan_not_configured"},
	{billing.ErrProviderRejected, http.StatusInternalServerError, "provider_rejected"},
	{billing.ErrInvalidSignature, http.StatusUnauthorized, "invalid_signature"},
	{billing.ErrInvalidPayload, http.StatusBadRequest, ""},

	{account.ErrCampaignSending, http.StatusBadRequest, "campaign_sending"},

	{sendingdomain.ErrInvalidDomain, http.StatusBadRequest, "invalid_domain"},
	{sendingdomain.ErrAlreadyRegistered, http.StatusBadRequest, "domain_registered"},
	{sendingdomain.ErrNoDomain, http.StatusBadRequest, "no_domain"},
	{sendingdomain.ErrProvider, http.StatusInternalServerError, "provider_error"},

	{events.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{events.ErrInvalidPayload, http.StatusBadRequest, ""},
}

// writeError renders err in the error envelope. Unmapped errors become a
// 500 that carries the underlying message.
func writeError(w http.ResponseWriter, err error) {
	for _, m := range errorStatus {
		if errors.Is(err, m.target) {
			if m.status >= http.StatusInternalServerError {
				logger.Error("request failed", "code", m.code, "error", err)
			}
			httputil.ErrorCode(w, m.status, err.Error(), m.code, nil)
			return
		}
	}
	httputil.ServerError(w, err)
}
