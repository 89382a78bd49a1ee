package subscriber

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator"

	"github.com/flowmail/dashboard/internal/domain"
	"github.com/flowmail/dashboard/internal/pkg/logger"
	"github.com/flowmail/dashboard/internal/pkg/metrics"
	"github.com/flowmail/dashboard/internal/whop"
)

//go:embed sample_subscribers.csv
var sampleCSV []byte

// MembershipSource lists a Whop company's members.
type MembershipSource interface {
	ListMemberships(ctx context.Context, companyID string) ([]whop.Membership, error)
}

// CreateInput holds the fields for a manual subscriber add.
type CreateInput struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Tier  string `json:"tier"`
}

// SyncResult reports one membership sync.
type SyncResult struct {
	Synced  int `json:"synced"`
	Skipped int `json:"skipped"`
	Total   int `json:"total"`
}

// ImportResult reports one CSV import.
type ImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// Service implements subscriber business logic. It is safe for concurrent use.
type Service struct {
	repo             Repository
	members          MembershipSource
	defaultCompanyID string
	validate         *validator.Validate
	now              func() time.Time
}

// NewService creates a subscriber service. defaultCompanyID is used by
// Sync when the request names no company.
func NewService(repo Repository, members MembershipSource, defaultCompanyID string) *Service {
	return &Service{
		repo:             repo,
		members:          members,
		defaultCompanyID: defaultCompanyID,
		validate:         validator.New(),
		now:              time.Now,
	}
}

// List returns the user's subscribers.
func (s *Service) List(ctx context.Context, userID string, f ListFilter) ([]domain.Subscriber, error) {
	return s.repo.List(ctx, userID, f)
}

// ListRecipients returns the active subscribers targeted by a segment:
// everyone for "all", otherwise the members of that tier.
func (s *Service) ListRecipients(ctx context.Context, userID, segment string) ([]domain.Subscriber, error) {
	f := ListFilter{Status: string(domain.SubscriberActive)}
	if seg := strings.TrimSpace(segment); seg != "" && !strings.EqualFold(seg, domain.SegmentAll) {
		f.Tier = seg
	}
	return s.repo.List(ctx, userID, f)
}

// Create adds one subscriber by hand, updating it if the email exists.
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (*domain.Subscriber, error) {
	email, ok := s.normalizeEmail(in.Email)
	if !ok {
		return nil, ErrInvalidEmail
	}
	return s.repo.Upsert(ctx, &domain.Subscriber{
		UserID: userID,
		Name:   strings.TrimSpace(in.Name),
		Email:  email,
		Tier:   strings.TrimSpace(in.Tier),
		Status: domain.SubscriberActive,
	})
}

// Import upserts parsed CSV rows. Rows without a valid email are skipped.
func (s *Service) Import(ctx context.Context, userID string, rows []ImportRow) (ImportResult, error) {
	var res ImportResult
	for _, row := range rows {
		email, ok := s.normalizeEmail(row.Email)
		if !ok {
			res.Skipped++
			continue
		}
		if _, err := s.repo.Upsert(ctx, &domain.Subscriber{
			UserID: userID,
			Name:   row.Name,
			Email:  email,
			Tier:   row.Tier,
			Status: domain.SubscriberActive,
		}); err != nil {
			return res, fmt.Errorf("import %s: %w", email, err)
		}
		res.Imported++
	}
	logger.Info("subscriber import complete", "user_id", userID, "imported", res.Imported, "skipped", res.Skipped)
	return res, nil
}

// Sync pulls the company's memberships from Whop and upserts each member
// with an email. Nothing is deleted. Only the configured company is ever
// synced; a caller-supplied id must name that same company.
func (s *Service) Sync(ctx context.Context, u *domain.User, companyID string) (SyncResult, error) {
	if s.defaultCompanyID == "" {
		return SyncResult{}, ErrNoCompany
	}
	if companyID != "" && companyID != s.defaultCompanyID {
		logger.Warn("whop sync rejected foreign company", "user_id", u.ID, "company_id", companyID)
		return SyncResult{}, ErrCompanyForbidden
	}
	companyID = s.defaultCompanyID

	memberships, err := s.members.ListMemberships(ctx, companyID)
	if err != nil {
		return SyncResult{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	res := SyncResult{Total: len(memberships)}
	syncedAt := s.now().UTC()
	for _, m := range memberships {
		email, ok := s.normalizeEmail(m.MemberEmail())
		if !ok {
			res.Skipped++
			continue
		}
		if _, err := s.repo.Upsert(ctx, &domain.Subscriber{
			UserID:           u.ID,
			Name:             m.DisplayName(),
			Email:            email,
			Tier:             m.TierName(),
			Status:           membershipStatus(m),
			WhopMembershipID: m.ID,
			SyncedAt:         &syncedAt,
		}); err != nil {
			return res, fmt.Errorf("sync %s: %w", m.ID, err)
		}
		res.Synced++
	}

	metrics.SubscribersSynced.Add(float64(res.Synced))
	logger.Info("whop sync complete", "user_id", u.ID, "company_id", companyID,
		"synced", res.Synced, "skipped", res.Skipped)
	return res, nil
}

// membershipStatus is active for valid memberships, otherwise Whop's own
// status string.
func membershipStatus(m whop.Membership) domain.SubscriberStatus {
	if m.Valid {
		return domain.SubscriberActive
	}
	if m.Status == "" || m.Status == string(domain.SubscriberActive) {
		return domain.SubscriberInactive
	}
	return domain.SubscriberStatus(m.Status)
}

// Delete removes one subscriber after confirming ownership.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.repo.Get(ctx, userID, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, userID, id)
}

// DeleteMany removes the caller's subscribers among ids.
func (s *Service) DeleteMany(ctx context.Context, userID string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, ErrNoIDs
	}
	return s.repo.DeleteMany(ctx, userID, ids)
}

// DeleteAll removes every subscriber of the user.
func (s *Service) DeleteAll(ctx context.Context, userID string) (int, error) {
	return s.repo.DeleteAll(ctx, userID)
}

// SampleCSV is the example import file offered for download.
func SampleCSV() []byte {
	return sampleCSV
}

func (s *Service) normalizeEmail(raw string) (string, bool) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if err := s.validate.Var(email, "required,email"); err != nil {
		return "", false
	}
	return email, true
}
