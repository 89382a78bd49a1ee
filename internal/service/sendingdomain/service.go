package sendingdomain

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator"

	"github.com/flowmail/dashboard/internal/domain"
	"github.com/flowmail/dashboard/internal/email"
	"github.com/flowmail/dashboard/internal/pkg/logger"
)

// Repository persists the domain fields of a user.
type Repository interface {
	// UpdateDomain writes custom_domain, domain_provider_id, domain_status
	// and domain_records from u.
	UpdateDomain(ctx context.Context, u *domain.User) error
}

// Service implements the custom domain lifecycle.
type Service struct {
	repo      Repository
	registrar email.DomainRegistrar
	validate  *validator.Validate
}

// NewService creates a sending domain service.
func NewService(repo Repository, registrar email.DomainRegistrar) *Service {
	return &Service{repo: repo, registrar: registrar, validate: validator.New()}
}

// NormalizeDomain lowercases name and strips a trailing dot, then checks
// that it is a fully qualified hostname.
func (s *Service) NormalizeDomain(name string) (string, error) {
	name = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(name)), ".")
	if err := s.validate.Var(name, "required,fqdn"); err != nil {
		return "", ErrInvalidDomain
	}
	return name, nil
}

// Register creates the domain at the provider and stores the DNS records
// the user must publish.
func (s *Service) Register(ctx context.Context, u *domain.User, name string) (*domain.User, error) {
	name, err := s.NormalizeDomain(name)
	if err != nil {
		return nil, err
	}
	if u.CustomDomain != "" && u.DomainStatus != domain.DomainUnregistered {
		return nil, ErrAlreadyRegistered
	}

	info, err := s.registrar.Create(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}

	updated := *u
	updated.CustomDomain = info.Name
	if updated.CustomDomain == "" {
		updated.CustomDomain = name
	}
	updated.DomainProviderID = info.ID
	updated.DomainStatus = statusFor(info)
	updated.DomainRecords = info.Records
	if err := s.repo.UpdateDomain(ctx, &updated); err != nil {
		return nil, fmt.Errorf("store domain: %w", err)
	}
	logger.Info("custom domain registered", "user_id", u.ID, "domain", updated.CustomDomain)
	return &updated, nil
}

// Verify asks the provider to check DNS and records the resulting status.
// A domain the provider does not yet report as verified stays registered.
func (s *Service) Verify(ctx context.Context, u *domain.User) (*domain.User, error) {
	if u.CustomDomain == "" || u.DomainProviderID == "" {
		return nil, ErrNoDomain
	}
	if err := s.registrar.Verify(ctx, u.DomainProviderID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	info, err := s.registrar.Get(ctx, u.DomainProviderID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}

	updated := *u
	updated.DomainStatus = statusFor(info)
	if len(info.Records) > 0 {
		updated.DomainRecords = info.Records
	}
	if err := s.repo.UpdateDomain(ctx, &updated); err != nil {
		return nil, fmt.Errorf("store domain: %w", err)
	}
	logger.Info("custom domain verification checked", "user_id", u.ID, "domain", u.CustomDomain,
		"provider_status", info.Status, "status", updated.DomainStatus)
	return &updated, nil
}

// Remove deletes the domain at the provider and clears it locally.
func (s *Service) Remove(ctx context.Context, u *domain.User) (*domain.User, error) {
	if u.CustomDomain == "" {
		return nil, ErrNoDomain
	}
	if u.DomainProviderID != "" {
		if err := s.registrar.Remove(ctx, u.DomainProviderID); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProvider, err)
		}
	}

	updated := *u
	updated.CustomDomain = ""
	updated.DomainProviderID = ""
	updated.DomainStatus = domain.DomainUnregistered
	updated.DomainRecords = nil
	if err := s.repo.UpdateDomain(ctx, &updated); err != nil {
		return nil, fmt.Errorf("store domain: %w", err)
	}
	logger.Info("custom domain removed", "user_id", u.ID, "domain", u.CustomDomain)
	return &updated, nil
}

func statusFor(info *email.DomainInfo) domain.DomainStatus {
	if info.Verified() {
		return domain.DomainVerified
	}
	return domain.DomainRegistered
}
