package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/flowmail/dashboard/internal/domain"
	"github.com/flowmail/dashboard/internal/pkg/logger"
	"github.com/flowmail/dashboard/internal/pkg/metrics"
	"github.com/flowmail/dashboard/internal/whop"
)

// Webhook actions handled by HandleWebhook.
const (
	ActionWentValid   = "membership.went_valid"
	ActionWentInvalid = "membership.went_invalid"
)

// CheckoutProvider creates hosted checkout sessions.
type CheckoutProvider interface {
	CreateCheckoutSession(ctx context.Context, req whop.CheckoutRequest) (whop.CheckoutSession, error)
}

// PlanStore changes a user's plan. Resolve maps a Whop user id to the
// account when the webhook carries no FlowMail id.
type PlanStore interface {
	Resolve(ctx context.Context, whopUserID string) (*domain.User, error)
	SetPlan(ctx context.Context, userID string, plan domain.Plan) error
}

// Plan is one purchasable tier.
type Plan struct {
	WhopPlanID   string
	MonthlyLimit int
}

// Config holds the plan table and webhook secret.
type Config struct {
	Plans         map[string]Plan
	RedirectURL   string
	WebhookSecret string
}

// Service implements checkout and plan webhooks.
type Service struct {
	checkout CheckoutProvider
	users    PlanStore
	cfg      Config
}

// NewService creates a billing service.
func NewService(checkout CheckoutProvider, users PlanStore, cfg Config) *Service {
	if cfg.Plans == nil {
		cfg.Plans = map[string]Plan{}
	}
	return &Service{checkout: checkout, users: users, cfg: cfg}
}

// PlanInfo is one row of the public plan table.
type PlanInfo struct {
	Plan         string `json:"plan"`
	MonthlyLimit int    `json:"monthly_limit"`
}

// Plans returns the plan table ordered by allowance.
func (s *Service) Plans() []PlanInfo {
	out := make([]PlanInfo, 0, len(s.cfg.Plans))
	for key, p := range s.cfg.Plans {
		out = append(out, PlanInfo{Plan: key, MonthlyLimit: p.MonthlyLimit})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MonthlyLimit != out[j].MonthlyLimit {
			return out[i].MonthlyLimit < out[j].MonthlyLimit
		}
		return out[i].Plan < out[j].Plan
	})
	return out
}

// Checkout starts a Whop checkout for the plan keyword. The session is
// returned as Whop sent it.
func (s *Service) Checkout(ctx context.Context, u *domain.User, keyword string) (whop.CheckoutSession, error) {
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	plan, ok := s.cfg.Plans[keyword]
	if !ok {
		metrics.CheckoutSessions.WithLabelValues("unknown", "rejected").Inc()
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlan, keyword)
	}
	if IsPlaceholderPlanID(plan.WhopPlanID) {
		metrics.CheckoutSessions.WithLabelValues(keyword, "not_configured").Inc()
		logger.Error("checkout plan id not configured", "plan", keyword)
		return nil, fmt.Errorf("%w: %s", ErrPlanNotConfigured, keyword)
	}

	session, err := s.checkout.CreateCheckoutSession(ctx, whop.CheckoutRequest{
		PlanID:      plan.WhopPlanID,
		RedirectURL: s.cfg.RedirectURL,
		Metadata: map[string]string{
			"flowmail_user_id": u.ID,
			"whop_user_id":     u.WhopUserID,
			"plan":             keyword,
		},
	})
	if err != nil {
		metrics.CheckoutSessions.WithLabelValues(keyword, "failed").Inc()
		msg := err.Error()
		var apiErr *whop.APIError
		if errors.As(err, &apiErr) {
			msg = apiErr.Message
		}
		logger.Error("checkout session failed", "plan", keyword, "user_id", u.ID, "error", err)
		return nil, fmt.Errorf("%w: %s", ErrProviderRejected, msg)
	}
	metrics.CheckoutSessions.WithLabelValues(keyword, "created").Inc()
	return session, nil
}

var placeholderMarkers = []string{"plan_xxx", "your_", "placeholder", "changeme"}

// IsPlaceholderPlanID reports whether id is empty or still a sample value
// copied from the example configuration.
func IsPlaceholderPlanID(id string) bool {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		return true
	}
	for _, m := range placeholderMarkers {
		if strings.Contains(id, m) {
			return true
		}
	}
	return false
}

// WebhookResult reports what a webhook changed.
type WebhookResult struct {
	Action  string      `json:"action"`
	UserID  string      `json:"user_id,omitempty"`
	Plan    domain.Plan `json:"plan,omitempty"`
	Applied bool        `json:"applied"`
}

type webhookPayload struct {
	Action string `json:"action"`
	Data   struct {
		ID       string            `json:"id"`
		UserID   string            `json:"user_id"`
		PlanID   string            `json:"plan_id"`
		Plan     json.RawMessage   `json:"plan"`
		Metadata map[string]string `json:"metadata"`
	} `json:"data"`
}

// planID accepts both "plan": "plan_x" and "plan": {"id": "plan_x"}.
func (p *webhookPayload) planID() string {
	if p.Data.PlanID != "" {
		return p.Data.PlanID
	}
	if len(p.Data.Plan) == 0 {
		return ""
	}
	var id string
	if err := json.Unmarshal(p.Data.Plan, &id); err == nil {
		return id
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(p.Data.Plan, &obj); err == nil {
		return obj.ID
	}
	return ""
}

// HandleWebhook verifies and applies a Whop membership event. Actions other
// than went_valid and went_invalid are acknowledged and ignored.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (WebhookResult, error) {
	if !VerifySignature(s.cfg.WebhookSecret, payload, signature) {
		return WebhookResult{}, ErrInvalidSignature
	}
	var p webhookPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return WebhookResult{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	res := WebhookResult{Action: p.Action}

	var plan domain.Plan
	switch p.Action {
	case ActionWentValid:
		keyword, ok := s.planForWhopID(p.planID())
		if !ok {
			logger.Warn("webhook plan id matches no configured plan", "action", p.Action, "plan_id", p.planID())
			return res, nil
		}
		plan = domain.Plan(keyword)
	case ActionWentInvalid:
		plan = domain.PlanFree
	default:
		logger.Debug("ignored whop webhook", "action", p.Action)
		return res, nil
	}

	userID, err := s.webhookUser(ctx, &p)
	if err != nil {
		return res, err
	}
	if userID == "" {
		logger.Warn("webhook carries no user", "action", p.Action, "membership_id", p.Data.ID)
		return res, nil
	}
	if err := s.users.SetPlan(ctx, userID, plan); err != nil {
		return res, fmt.Errorf("set plan: %w", err)
	}
	res.UserID, res.Plan, res.Applied = userID, plan, true
	logger.Info("plan changed by webhook", "user_id", userID, "plan", plan, "action", p.Action)
	return res, nil
}

func (s *Service) webhookUser(ctx context.Context, p *webhookPayload) (string, error) {
	if id := p.Data.Metadata["flowmail_user_id"]; id != "" {
		return id, nil
	}
	whopID := p.Data.Metadata["user_id"]
	if whopID == "" {
		whopID = p.Data.UserID
	}
	if whopID == "" {
		return "", nil
	}
	u, err := s.users.Resolve(ctx, whopID)
	if err != nil {
		return "", fmt.Errorf("resolve webhook user: %w", err)
	}
	return u.ID, nil
}

func (s *Service) planForWhopID(id string) (string, bool) {
	if id == "" {
		return "", false
	}
	for key, p := range s.cfg.Plans {
		if p.WhopPlanID == id {
			return key, true
		}
	}
	return "", false
}

// Sign returns the hex HMAC-SHA256 of payload.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a hex HMAC-SHA256 signature, optionally prefixed
// with "sha256=" or "v1=". An empty secret rejects everything.
func VerifySignature(secret string, payload []byte, signature string) bool {
	if secret == "" {
		return false
	}
	signature = strings.TrimSpace(signature)
	for _, prefix := range []string{"sha256=", "v1="} {
		signature = strings.TrimPrefix(signature, prefix)
	}
	if signature == "" {
		return false
	}
	expected := Sign(secret, payload)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}
