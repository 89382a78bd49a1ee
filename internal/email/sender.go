// Package email delivers campaign mail through a transactional provider
// and manages custom sending domains with the provider's domain API.
package email

import (
	"context"
	"fmt"

	"github.com/flowmail/dashboard/internal/config"
	"github.com/flowmail/dashboard/internal/domain"
)

// Sender is the interface for sending emails via an external provider.
type Sender interface {
	Send(ctx context.Context, msg domain.EmailMessage) (domain.SendResult, error)
	Provider() domain.EmailProvider
}

// DomainInfo is the provider's view of a custom sending domain.
type DomainInfo struct {
	ID      string
	Name    string
	Status  string
	Records []domain.DNSRecord
}

// Verified reports whether the provider considers the domain usable.
func (d *DomainInfo) Verified() bool {
	return d != nil && d.Status == "verified"
}

// DomainRegistrar manages custom sending domains at the provider.
type DomainRegistrar interface {
	Create(ctx context.Context, name string) (*DomainInfo, error)
	Verify(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*DomainInfo, error)
	Remove(ctx context.Context, id string) error
}

// NewFromConfig builds the sender and domain registrar named by
// cfg.Provider. An unknown provider is an error rather than a silent
// fallback to the no-op implementation.
func NewFromConfig(ctx context.Context, cfg config.EmailConfig) (Sender, DomainRegistrar, error) {
	switch domain.EmailProvider(cfg.Provider) {
	case domain.ProviderResend:
		if cfg.ResendAPIKey == "" {
			return nil, nil, fmt.Errorf("resend provider selected without an API key")
		}
		rs := NewResendSender(cfg.ResendAPIKey)
		return rs, NewResendDomains(rs.client), nil
	case domain.ProviderSES:
		ses, err := NewSESSender(ctx, cfg.SES.AccessKey, cfg.SES.SecretKey, cfg.SES.Region)
		if err != nil {
			return nil, nil, err
		}
		// SES identities are managed outside FlowMail.
		return ses, NewNoopDomains(), nil
	case domain.ProviderNoop:
		return NewNoopSender(), NewNoopDomains(), nil
	default:
		return nil, nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
	}
}
