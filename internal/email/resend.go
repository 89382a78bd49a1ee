package email

import (
	"context"
	"fmt"
	"time"

	"github.com/resend/resend-go/v2"

	"github.com/flowmail/dashboard/internal/domain"
	"github.com/flowmail/dashboard/internal/pkg/logger"
)

// ResendSender sends emails via the Resend API.
type ResendSender struct {
	client *resend.Client
}

// NewResendSender creates a ResendSender for the given API key.
func NewResendSender(apiKey string) *ResendSender {
	return NewResendSenderWithClient(resend.NewClient(apiKey))
}

// NewResendSenderWithClient wraps an existing client (tests point its
// BaseURL at a local server).
func NewResendSenderWithClient(client *resend.Client) *ResendSender {
	return &ResendSender{client: client}
}

// Provider identifies Resend.
func (s *ResendSender) Provider() domain.EmailProvider { return domain.ProviderResend }

// Send sends a single email via Resend. Campaign and subscriber ids travel
// as tags so delivery webhooks can be linked back.
func (s *ResendSender) Send(ctx context.Context, msg domain.EmailMessage) (domain.SendResult, error) {
	params := &resend.SendEmailRequest{
		From:    msg.From,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTMLContent,
		ReplyTo: msg.ReplyTo,
		Headers: msg.Headers,
	}
	if msg.CampaignID != "" {
		params.Tags = append(params.Tags, resend.Tag{Name: "campaign_id", Value: msg.CampaignID})
	}
	if msg.SubscriberID != "" {
		params.Tags = append(params.Tags, resend.Tag{Name: "subscriber_id", Value: msg.SubscriberID})
	}

	sent, err := s.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		logger.Warn("resend send failed", "to", msg.To, "campaign_id", msg.CampaignID, "error", err)
		return domain.SendResult{}, fmt.Errorf("resend send failed: %w", err)
	}

	logger.Debug("resend sent", "message_id", sent.Id, "to", msg.To)
	return domain.SendResult{
		MessageID: sent.Id,
		Provider:  domain.ProviderResend,
		SentAt:    time.Now(),
	}, nil
}

// ResendDomains manages custom domains through Resend's domain API.
type ResendDomains struct {
	client *resend.Client
}

// NewResendDomains creates a registrar sharing the sender's client.
func NewResendDomains(client *resend.Client) *ResendDomains {
	return &ResendDomains{client: client}
}

// Create registers a domain and returns the DNS records to publish.
func (d *ResendDomains) Create(ctx context.Context, name string) (*DomainInfo, error) {
	resp, err := d.client.Domains.CreateWithContext(ctx, &resend.CreateDomainRequest{Name: name})
	if err != nil {
		return nil, fmt.Errorf("resend create domain: %w", err)
	}
	return &DomainInfo{ID: resp.Id, Name: resp.Name, Status: resp.Status, Records: convertRecords(resp.Records)}, nil
}

// Verify asks Resend to re-check the domain's DNS records.
func (d *ResendDomains) Verify(ctx context.Context, id string) error {
	if _, err := d.client.Domains.VerifyWithContext(ctx, id); err != nil {
		return fmt.Errorf("resend verify domain: %w", err)
	}
	return nil
}

// Get reads the domain's current status and records.
func (d *ResendDomains) Get(ctx context.Context, id string) (*DomainInfo, error) {
	resp, err := d.client.Domains.GetWithContext(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("resend get domain: %w", err)
	}
	return &DomainInfo{ID: resp.Id, Name: resp.Name, Status: resp.Status, Records: convertRecords(resp.Records)}, nil
}

// Remove deletes the domain at Resend.
func (d *ResendDomains) Remove(ctx context.Context, id string) error {
	if _, err := d.client.Domains.RemoveWithContext(ctx, id); err != nil {
		return fmt.Errorf("resend remove domain: %w", err)
	}
	return nil
}

func convertRecords(in []resend.Record) []domain.DNSRecord {
	out := make([]domain.DNSRecord, 0, len(in))
	for _, r := range in {
		out = append(out, domain.DNSRecord{
			Record: r.Record,
			Name:   r.Name,
			Type:   r.Type,
			Value:  r.Value,
			TTL:    r.Ttl,
			Status: r.Status,
		})
	}
	return out
}
