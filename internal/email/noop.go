package email

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/flowmail/dashboard/internal/domain"
	"github.com/flowmail/dashboard/internal/pkg/logger"
)

// NoopSender accepts every message without delivering it. It keeps the
// messages it was handed, which makes it the test double for senders.
type NoopSender struct {
	mu   sync.Mutex
	sent []domain.EmailMessage
	// FailFor makes Send fail for these recipient addresses.
	FailFor map[string]error
}

// NewNoopSender creates a new NoopSender.
func NewNoopSender() *NoopSender {
	return &NoopSender{}
}

// Provider identifies the no-op sender.
func (s *NoopSender) Provider() domain.EmailProvider { return domain.ProviderNoop }

// Send records the message but does not deliver it.
func (s *NoopSender) Send(ctx context.Context, msg domain.EmailMessage) (domain.SendResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.SendResult{}, err
	}
	if err, ok := s.FailFor[strings.ToLower(msg.To)]; ok {
		return domain.SendResult{}, err
	}

	s.mu.Lock()
	s.sent = append(s.sent, msg)
	n := len(s.sent)
	s.mu.Unlock()

	logger.Debug("noop email send", "to", msg.To, "subject", msg.Subject)
	return domain.SendResult{
		MessageID: fmt.Sprintf("noop-%d-%d", time.Now().UnixNano(), n),
		Provider:  domain.ProviderNoop,
		SentAt:    time.Now(),
	}, nil
}

// Sent returns a copy of the recorded messages.
func (s *NoopSender) Sent() []domain.EmailMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.EmailMessage, len(s.sent))
	copy(out, s.sent)
	return out
}

// NoopDomains keeps domains in memory; Verify marks them verified.
type NoopDomains struct {
	mu      sync.Mutex
	domains map[string]*DomainInfo
	seq     int
}

// NewNoopDomains creates an empty in-memory registrar.
func NewNoopDomains() *NoopDomains {
	return &NoopDomains{domains: map[string]*DomainInfo{}}
}

func (d *NoopDomains) Create(ctx context.Context, name string) (*DomainInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	info := &DomainInfo{
		ID:     fmt.Sprintf("noop-domain-%d", d.seq),
		Name:   name,
		Status: "pending",
		Records: []domain.DNSRecord{
			{Record: "SPF", Name: "send." + name, Type: "TXT", Value: "v=spf1 include:amazonses.com ~all", TTL: "Auto", Status: "not_started"},
			{Record: "DKIM", Name: "resend._domainkey." + name, Type: "TXT", Value: "p=noop", TTL: "Auto", Status: "not_started"},
		},
	}
	d.domains[info.ID] = info
	cp := *info
	return &cp, nil
}

func (d *NoopDomains) Verify(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	info, ok := d.domains[id]
	if !ok {
		return fmt.Errorf("domain %s not found", id)
	}
	info.Status = "verified"
	for i := range info.Records {
		info.Records[i].Status = "verified"
	}
	return nil
}

func (d *NoopDomains) Get(ctx context.Context, id string) (*DomainInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	info, ok := d.domains[id]
	if !ok {
		return nil, fmt.Errorf("domain %s not found", id)
	}
	cp := *info
	cp.Records = append([]domain.DNSRecord(nil), info.Records...)
	return &cp, nil
}

func (d *NoopDomains) Remove(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.domains, id)
	return nil
}
