// Package events records email provider webhook events as a write-only
// audit log.
package events

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/flowmail/dashboard/internal/domain"
	"github.com/flowmail/dashboard/internal/pkg/logger"
)

// Sentinel errors for the events service layer.
var (
	ErrUnauthorized   = errors.New("invalid webhook token")
	ErrInvalidPayload = errors.New("invalid email event payload")
)

// Repository stores email events.
type Repository interface {
	Insert(ctx context.Context, e *domain.EmailEvent) error
}

// Service validates and stores provider events.
type Service struct {
	repo   Repository
	secret string
	now    func() time.Time
}

// NewService creates an events service. Requests must present secret.
func NewService(repo Repository, secret string) *Service {
	return &Service{repo: repo, secret: secret, now: time.Now}
}

type tag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type providerEvent struct {
	Type string `json:"type"`
	Data struct {
		EmailID string          `json:"email_id"`
		Tags    json.RawMessage `json:"tags"`
	} `json:"data"`
}

// tags accepts both [{"name":..,"value":..}] and {"name": "value"}.
func (e *providerEvent) tags() map[string]string {
	out := map[string]string{}
	if len(e.Data.Tags) == 0 {
		return out
	}
	var list []tag
	if err := json.Unmarshal(e.Data.Tags, &list); err == nil {
		for _, t := range list {
			out[t.Name] = t.Value
		}
		return out
	}
	_ = json.Unmarshal(e.Data.Tags, &out)
	return out
}

// Record checks the shared token, parses the event and stores it with the
// raw payload.
func (s *Service) Record(ctx context.Context, payload []byte, token string) (*domain.EmailEvent, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if s.secret == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.secret)) != 1 {
		return nil, ErrUnauthorized
	}

	var pe providerEvent
	if err := json.Unmarshal(payload, &pe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if pe.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrInvalidPayload)
	}

	tags := pe.tags()
	e := &domain.EmailEvent{
		ID:           uuid.New().String(),
		EventType:    pe.Type,
		EmailID:      pe.Data.EmailID,
		CampaignID:   tags["campaign_id"],
		SubscriberID: tags["subscriber_id"],
		Payload:      payload,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.Insert(ctx, e); err != nil {
		return nil, fmt.Errorf("store email event: %w", err)
	}
	logger.Debug("email event recorded", "type", e.EventType, "email_id", e.EmailID, "campaign_id", e.CampaignID)
	return e, nil
}
