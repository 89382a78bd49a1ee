package user

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/flowmail/dashboard/internal/domain"
	"github.com/flowmail/dashboard/internal/pkg/logger"
)

const maxSenderNameLen = 64

var (
	senderNameInvalid = regexp.MustCompile(`[^a-z0-9._-]+`)
	senderNameValid   = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)
)

// Identity is what Whop tells us about a signed-in user.
type Identity struct {
	WhopUserID string
	Email      string
	Username   string
}

// Usage summarizes the monthly allowance for a user.
type Usage struct {
	Plan          domain.Plan `json:"plan"`
	MonthlyLimit  int         `json:"monthly_limit"`
	SentThisMonth int         `json:"sent_this_month"`
	Remaining     int         `json:"remaining"`
	Month         string      `json:"month"`
}

// Service implements user business logic. It is safe for concurrent use.
type Service struct {
	repo        Repository
	limits      map[domain.Plan]int
	maxAttempts int
	now         func() time.Time
}

// NewService creates a user service. limits maps each plan to its monthly
// send allowance; maxAttempts bounds sender-name suffix generation.
func NewService(repo Repository, limits map[domain.Plan]int, maxAttempts int) *Service {
	if maxAttempts <= 0 {
		maxAttempts = 50
	}
	return &Service{repo: repo, limits: limits, maxAttempts: maxAttempts, now: time.Now}
}

// Resolve maps an external Whop user id to the account row.
func (s *Service) Resolve(ctx context.Context, whopUserID string) (*domain.User, error) {
	whopUserID = strings.TrimSpace(whopUserID)
	if whopUserID == "" {
		return nil, ErrMissingUserID
	}
	u, err := s.repo.GetByWhopID(ctx, whopUserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("resolve user: %w", err)
	}
	return u, nil
}

// UpsertFromWhop creates the account on first sign-in and refreshes the
// profile fields afterwards.
func (s *Service) UpsertFromWhop(ctx context.Context, id Identity) (*domain.User, error) {
	if strings.TrimSpace(id.WhopUserID) == "" {
		return nil, ErrMissingUserID
	}
	u, err := s.repo.Upsert(ctx, &domain.User{
		WhopUserID: id.WhopUserID,
		Email:      strings.ToLower(strings.TrimSpace(id.Email)),
		Username:   id.Username,
		Plan:       domain.PlanFree,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	logger.Info("user signed in", "user_id", u.ID, "whop_user_id", u.WhopUserID)
	return u, nil
}

// Limit returns the monthly allowance of a plan. Unknown plans get the
// free allowance.
func (s *Service) Limit(plan domain.Plan) int {
	if n, ok := s.limits[plan]; ok {
		return n
	}
	return s.limits[domain.PlanFree]
}

// Usage reports the user's monthly allowance and consumption.
func (s *Service) Usage(u *domain.User) Usage {
	now := s.now()
	limit := s.Limit(u.Plan)
	sent := u.SentThisMonth(now)
	remaining := limit - sent
	if remaining < 0 {
		remaining = 0
	}
	return Usage{
		Plan:          u.Plan,
		MonthlyLimit:  limit,
		SentThisMonth: sent,
		Remaining:     remaining,
		Month:         domain.UsageMonthKey(now),
	}
}

// RecordSends adds successful sends to the user's monthly counter.
func (s *Service) RecordSends(ctx context.Context, userID string, n int) error {
	if n <= 0 {
		return nil
	}
	return s.repo.AddUsage(ctx, userID, domain.UsageMonthKey(s.now()), n)
}

// SetPlan changes a user's billing plan.
func (s *Service) SetPlan(ctx context.Context, userID string, plan domain.Plan) error {
	if _, ok := s.limits[plan]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlan, plan)
	}
	return s.repo.SetPlan(ctx, userID, plan)
}

// GetByID loads a user by internal id.
func (s *Service) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return s.repo.GetByID(ctx, id)
}

// NormalizeSenderName lowercases the request and strips characters that
// are not valid in the local part of an address.
func NormalizeSenderName(requested string) (string, error) {
	name := strings.ToLower(strings.TrimSpace(requested))
	name = strings.ReplaceAll(name, " ", "-")
	name = senderNameInvalid.ReplaceAllString(name, "")
	name = strings.Trim(name, ".-_")
	if len(name) > maxSenderNameLen {
		name = name[:maxSenderNameLen]
	}
	if name == "" || !senderNameValid.MatchString(name) {
		return "", ErrInvalidSenderName
	}
	return name, nil
}

// SetSenderName assigns the requested sender name, or the first free
// suffixed variant (name-2, name-3, ...) when another user holds it. The
// unique constraint decides; there is no read-then-write check.
func (s *Service) SetSenderName(ctx context.Context, u *domain.User, requested string) (string, error) {
	base, err := NormalizeSenderName(requested)
	if err != nil {
		return "", err
	}
	if strings.EqualFold(u.SenderName, base) {
		return u.SenderName, nil
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		candidate := senderNameCandidate(base, attempt)
		err := s.repo.SetSenderName(ctx, u.ID, candidate)
		if err == nil {
			if candidate != base {
				logger.Info("sender name taken, assigned suffix", "user_id", u.ID, "requested", base, "assigned", candidate)
			}
			u.SenderName = candidate
			return candidate, nil
		}
		if !errors.Is(err, ErrSenderNameTaken) {
			return "", fmt.Errorf("set sender name: %w", err)
		}
	}
	return "", ErrSenderNameExhausted
}

func senderNameCandidate(base string, attempt int) string {
	if attempt == 1 {
		return base
	}
	suffix := fmt.Sprintf("-%d", attempt)
	if len(base)+len(suffix) > maxSenderNameLen {
		base = base[:maxSenderNameLen-len(suffix)]
	}
	return base + suffix
}
