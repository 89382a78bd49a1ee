package campaign

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/flowmail/dashboard/internal/domain"
	"github.com/flowmail/dashboard/internal/email"
	"github.com/flowmail/dashboard/internal/mailing"
)

// Config holds sending defaults.
type Config struct {
	DefaultDomain     string
	DefaultSenderName string
	DefaultFromName   string
	RatePerSecond     float64
	Burst             int
	// The send lock is extended after LockRenewEvery recipients or
	// LockRenewInterval, whichever comes first.
	LockRenewEvery    int
	LockRenewInterval time.Duration
}

// Deps are the collaborators of the campaign service.
type Deps struct {
	Repo       Repository
	Ledger     SendLedger
	Recipients RecipientSource
	Usage      UsageTracker
	Sender     email.Sender
	Renderer   *mailing.Renderer
	Locker     Locker
}

// Service implements campaign business logic. All public methods are safe
// for concurrent use if the underlying repository is concurrency-safe.
type Service struct {
	repo       Repository
	ledger     SendLedger
	recipients RecipientSource
	usage      UsageTracker
	sender     email.Sender
	renderer   *mailing.Renderer
	locker     Locker
	limiter    *rate.Limiter
	cfg        Config
	now        func() time.Time
}

// NewService creates a campaign service. The rate limiter is shared by
// every send so the provider sees one aggregate request rate.
func NewService(deps Deps, cfg Config) *Service {
	if cfg.DefaultSenderName == "" {
		cfg.DefaultSenderName = "noreply"
	}
	if cfg.DefaultFromName == "" {
		cfg.DefaultFromName = "FlowMail"
	}
	if cfg.LockRenewEvery <= 0 {
		cfg.LockRenewEvery = 100
	}
	if cfg.LockRenewInterval <= 0 {
		cfg.LockRenewInterval = 5 * time.Minute
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	renderer := deps.Renderer
	if renderer == nil {
		renderer = mailing.NewRenderer()
	}
	return &Service{
		repo:       deps.Repo,
		ledger:     deps.Ledger,
		recipients: deps.Recipients,
		usage:      deps.Usage,
		sender:     deps.Sender,
		renderer:   renderer,
		locker:     deps.Locker,
		limiter:    rate.NewLimiter(limit, burst),
		cfg:        cfg,
		now:        time.Now,
	}
}

// CreateInput holds the fields for creating a new campaign.
type CreateInput struct {
	Name           string `json:"name"`
	Subject        string `json:"subject"`
	PreviewText    string `json:"preview_text"`
	HTMLContent    string `json:"html_content"`
	TemplateSyntax string `json:"template_syntax"`
	Segment        string `json:"segment"`
}

// UpdateInput replaces a draft's content. Empty syntax and segment keep
// the stored values.
type UpdateInput = CreateInput

// Get returns a single campaign.
func (s *Service) Get(ctx context.Context, userID, id string) (*domain.Campaign, error) {
	return s.repo.Get(ctx, userID, id)
}

// List returns campaigns matching the filter.
func (s *Service) List(ctx context.Context, userID string, f ListFilter) ([]domain.Campaign, error) {
	return s.repo.List(ctx, userID, f)
}

// Create validates and persists a new campaign in draft status.
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (*domain.Campaign, error) {
	if err := requireContent(in); err != nil {
		return nil, err
	}
	syntax, err := parseSyntax(in.TemplateSyntax, domain.SyntaxMerge)
	if err != nil {
		return nil, err
	}
	if err := s.renderer.ValidateTemplate(syntax, in.HTMLContent); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}

	now := s.now().UTC()
	c := &domain.Campaign{
		ID:             uuid.New().String(),
		UserID:         userID,
		Name:           strings.TrimSpace(in.Name),
		Subject:        strings.TrimSpace(in.Subject),
		PreviewText:    in.PreviewText,
		HTMLContent:    in.HTMLContent,
		TemplateSyntax: syntax,
		Segment:        normalizeSegment(in.Segment, domain.SegmentAll),
		Status:         domain.CampaignDraft,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Update overwrites the content of a draft campaign.
func (s *Service) Update(ctx context.Context, userID, id string, in UpdateInput) (*domain.Campaign, error) {
	c, err := s.repo.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := editableErr(c); err != nil {
		return nil, err
	}
	if err := requireContent(in); err != nil {
		return nil, err
	}
	syntax, err := parseSyntax(in.TemplateSyntax, c.TemplateSyntax)
	if err != nil {
		return nil, err
	}
	if err := s.renderer.ValidateTemplate(syntax, in.HTMLContent); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}

	c.Name = strings.TrimSpace(in.Name)
	c.Subject = strings.TrimSpace(in.Subject)
	c.PreviewText = in.PreviewText
	c.HTMLContent = in.HTMLContent
	c.TemplateSyntax = syntax
	c.Segment = normalizeSegment(in.Segment, c.Segment)
	c.UpdatedAt = s.now().UTC()

	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Delete removes a campaign after re-reading it to confirm ownership.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	c, err := s.repo.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := deletableErr(c); err != nil {
		return err
	}
	return s.repo.Delete(ctx, userID, id)
}

// DeleteMany removes several campaigns. Either every id is deletable and
// all are removed, or the request is rejected and nothing is deleted.
func (s *Service) DeleteMany(ctx context.Context, userID string, ids []string) (int, error) {
	unique := dedupe(ids)
	if len(unique) == 0 {
		return 0, ErrNoIDs
	}
	found, err := s.repo.GetMany(ctx, userID, unique)
	if err != nil {
		return 0, err
	}
	if len(found) != len(unique) {
		return 0, ErrNotFound
	}
	for i := range found {
		if err := deletableErr(&found[i]); err != nil {
			return 0, fmt.Errorf("%w (%s)", err, found[i].Name)
		}
	}
	return s.repo.DeleteMany(ctx, userID, unique)
}

// DeleteAll removes every campaign of the user.
func (s *Service) DeleteAll(ctx context.Context, userID string) (int, error) {
	return s.repo.DeleteAll(ctx, userID)
}

// CountSending reports how many of the user's campaigns are mid-send.
func (s *Service) CountSending(ctx context.Context, userID string) (int, error) {
	return s.repo.CountByStatus(ctx, userID, domain.CampaignSending)
}

func requireContent(in CreateInput) error {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return ErrNameRequired
	case strings.TrimSpace(in.Subject) == "":
		return ErrSubjectRequired
	case strings.TrimSpace(in.HTMLContent) == "":
		return ErrHTMLRequired
	}
	return nil
}

func parseSyntax(raw string, fallback domain.TemplateSyntax) (domain.TemplateSyntax, error) {
	switch domain.TemplateSyntax(strings.ToLower(strings.TrimSpace(raw))) {
	case "":
		if fallback == "" {
			return domain.SyntaxMerge, nil
		}
		return fallback, nil
	case domain.SyntaxMerge:
		return domain.SyntaxMerge, nil
	case domain.SyntaxLiquid:
		return domain.SyntaxLiquid, nil
	}
	return "", ErrInvalidSyntax
}

func normalizeSegment(raw, fallback string) string {
	seg := strings.TrimSpace(raw)
	if seg == "" {
		if fallback == "" {
			return domain.SegmentAll
		}
		return fallback
	}
	if strings.EqualFold(seg, domain.SegmentAll) {
		return domain.SegmentAll
	}
	return seg
}

func editableErr(c *domain.Campaign) error {
	switch c.Status {
	case domain.CampaignSent:
		return ErrCampaignSent
	case domain.CampaignSending:
		return ErrCampaignSending
	}
	return nil
}

func deletableErr(c *domain.Campaign) error {
	if c.IsDeletable() {
		return nil
	}
	return editableErr(c)
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// IsBusinessRule reports whether err is a rejected state transition rather
// than a datastore or provider failure.
func IsBusinessRule(err error) bool {
	for _, target := range []error{
		ErrCampaignSent, ErrCampaignSending, ErrSendInProgress,
		ErrNoRecipients, ErrQuotaExceeded,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
