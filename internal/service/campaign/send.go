package campaign

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/go-playground/validator"

	"github.com/flowmail/dashboard/internal/domain"
	"github.com/flowmail/dashboard/internal/mailing"
	"github.com/flowmail/dashboard/internal/pkg/logger"
	"github.com/flowmail/dashboard/internal/pkg/metrics"
)

var validate = validator.New()

// SendResult summarizes one send run. Skipped counts recipients that an
// earlier, interrupted run already attempted.
type SendResult struct {
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Total   int `json:"total"`
}

// Send delivers a campaign to its segment. Recipients are processed one at
// a time; a provider failure is recorded and the loop moves on without
// retrying. Cancelling ctx stops the loop and leaves the campaign in
// sending, resumable by a later call.
func (s *Service) Send(ctx context.Context, u *domain.User, campaignID, segment string) (SendResult, error) {
	c, err := s.repo.Get(ctx, u.ID, campaignID)
	if err != nil {
		return SendResult{}, err
	}
	if c.Status == domain.CampaignSent {
		return SendResult{}, ErrCampaignSent
	}

	lock := s.locker.ForCampaign(c.ID)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		return SendResult{}, fmt.Errorf("acquire send lock: %w", err)
	}
	if !acquired {
		return SendResult{}, ErrSendInProgress
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("release send lock failed", "campaign_id", c.ID, "error", err)
		}
	}()

	// Another instance may have finished the campaign before we got the lock.
	if c, err = s.repo.Get(ctx, u.ID, campaignID); err != nil {
		return SendResult{}, err
	}
	if c.Status == domain.CampaignSent {
		return SendResult{}, ErrCampaignSent
	}

	if strings.TrimSpace(segment) == "" {
		segment = c.Segment
	}
	recipients, err := s.recipients.ListRecipients(ctx, u.ID, segment)
	if err != nil {
		return SendResult{}, fmt.Errorf("load recipients: %w", err)
	}
	if len(recipients) == 0 {
		return SendResult{}, ErrNoRecipients
	}

	attempted, err := s.ledger.Attempted(ctx, c.ID)
	if err != nil {
		return SendResult{}, fmt.Errorf("read send ledger: %w", err)
	}
	remaining := make([]domain.Subscriber, 0, len(recipients))
	for _, r := range recipients {
		if !attempted[r.ID] {
			remaining = append(remaining, r)
		}
	}
	res := SendResult{Total: len(recipients), Skipped: len(recipients) - len(remaining)}

	allowance := s.usage.Limit(u.Plan) - u.SentThisMonth(s.now())
	if len(remaining) > allowance {
		return res, fmt.Errorf("%w: %d recipients, %d remaining this month", ErrQuotaExceeded, len(remaining), max(allowance, 0))
	}

	if err := s.repo.MarkSending(ctx, u.ID, c.ID, len(recipients)); err != nil {
		return res, fmt.Errorf("mark sending: %w", err)
	}
	logger.Info("campaign send started", "campaign_id", c.ID, "user_id", u.ID,
		"segment", segment, "recipients", len(recipients), "resumed_skip", res.Skipped)

	from := s.FromAddress(u)
	provider := string(s.sender.Provider())
	sinceRenew, renewedAt := 0, s.now()
	for _, sub := range remaining {
		if sinceRenew >= s.cfg.LockRenewEvery || s.now().Sub(renewedAt) >= s.cfg.LockRenewInterval {
			// Losing the lock means another run may start; stop and leave the
			// campaign in sending so the ledger resumes it.
			if err := lock.Extend(ctx); err != nil {
				logger.Error("campaign send lock lost", "campaign_id", c.ID, "sent", res.Sent, "failed", res.Failed, "error", err)
				return res, fmt.Errorf("renew send lock: %w", err)
			}
			sinceRenew, renewedAt = 0, s.now()
		}
		sinceRenew++

		if err := s.limiter.Wait(ctx); err != nil {
			logger.Warn("campaign send interrupted", "campaign_id", c.ID, "sent", res.Sent, "failed", res.Failed, "error", err)
			return res, err
		}

		entry := &domain.CampaignSend{CampaignID: c.ID, SubscriberID: sub.ID, Email: sub.Email}
		html, rerr := s.renderer.Render(c, mailing.RecipientFromSubscriber(sub))
		if rerr != nil {
			entry.Status, entry.Error = domain.SendFailed, rerr.Error()
		} else {
			result, serr := s.sender.Send(ctx, domain.EmailMessage{
				CampaignID:   c.ID,
				SubscriberID: sub.ID,
				To:           sub.Email,
				From:         from,
				Subject:      c.Subject,
				HTMLContent:  html,
			})
			if serr != nil {
				entry.Status, entry.Error = domain.SendFailed, serr.Error()
			} else {
				entry.Status, entry.ProviderMessageID = domain.SendSent, result.MessageID
			}
		}

		if entry.Status == domain.SendSent {
			res.Sent++
			metrics.EmailsSent.WithLabelValues(provider, "sent").Inc()
		} else {
			res.Failed++
			metrics.EmailsSent.WithLabelValues(provider, "failed").Inc()
			logger.Warn("campaign recipient failed", "campaign_id", c.ID, "email", sub.Email, "error", entry.Error)
		}

		if err := s.ledger.Record(ctx, entry); err != nil {
			return res, fmt.Errorf("record send for %s: %w", sub.ID, err)
		}
	}

	sent, failed, err := s.ledger.Counts(ctx, c.ID)
	if err != nil {
		return res, fmt.Errorf("count sends: %w", err)
	}
	if err := s.repo.MarkSent(ctx, u.ID, c.ID, sent, failed); err != nil {
		return res, fmt.Errorf("mark sent: %w", err)
	}
	if err := s.usage.RecordSends(ctx, u.ID, res.Sent); err != nil {
		return res, fmt.Errorf("record usage: %w", err)
	}

	logger.Info("campaign send complete", "campaign_id", c.ID, "sent", res.Sent, "failed", res.Failed, "skipped", res.Skipped)
	return res, nil
}

// SendTest renders the campaign for a sample recipient and sends it to one
// address. The campaign's status is unchanged.
func (s *Service) SendTest(ctx context.Context, u *domain.User, campaignID, to string) (domain.SendResult, error) {
	to = strings.TrimSpace(to)
	if err := validate.Var(to, "required,email"); err != nil {
		return domain.SendResult{}, ErrRecipientEmail
	}
	c, err := s.repo.Get(ctx, u.ID, campaignID)
	if err != nil {
		return domain.SendResult{}, err
	}

	html, err := s.renderer.Render(c, mailing.Recipient{Name: "Jane Doe", Email: to, Tier: "Premium"})
	if err != nil {
		return domain.SendResult{}, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return domain.SendResult{}, err
	}
	return s.sender.Send(ctx, domain.EmailMessage{
		CampaignID:  c.ID,
		To:          to,
		From:        s.FromAddress(u),
		Subject:     "[Test] " + c.Subject,
		HTMLContent: html,
	})
}

// FromAddress builds "Display <sender@domain>". The user's verified custom
// domain wins over the shared sending domain.
func (s *Service) FromAddress(u *domain.User) string {
	local := u.SenderName
	if local == "" {
		local = s.cfg.DefaultSenderName
	}
	host := s.cfg.DefaultDomain
	if u.HasVerifiedDomain() {
		host = u.CustomDomain
	}
	display := u.Username
	if display == "" {
		display = s.cfg.DefaultFromName
	}
	addr := mail.Address{Name: display, Address: local + "@" + host}
	return addr.String()
}
