// Package account holds whole-account maintenance operations.
package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/flowmail/dashboard/internal/domain"
	"github.com/flowmail/dashboard/internal/pkg/logger"
)

// ErrCampaignSending is returned when data cannot be cleared because a send
// is running.
var ErrCampaignSending = errors.New("cannot clear data while a campaign is sending")

// CampaignStore is the slice of the campaign service used here.
type CampaignStore interface {
	CountSending(ctx context.Context, userID string) (int, error)
	DeleteAll(ctx context.Context, userID string) (int, error)
}

// SubscriberStore is the slice of the subscriber service used here.
type SubscriberStore interface {
	DeleteAll(ctx context.Context, userID string) (int, error)
}

// ClearResult counts the deleted rows.
type ClearResult struct {
	Subscribers int `json:"subscribers"`
	Campaigns   int `json:"campaigns"`
}

// Service implements account maintenance.
type Service struct {
	campaigns   CampaignStore
	subscribers SubscriberStore
}

// NewService creates an account service.
func NewService(campaigns CampaignStore, subscribers SubscriberStore) *Service {
	return &Service{campaigns: campaigns, subscribers: subscribers}
}

// ClearData deletes every subscriber and then every campaign of the user.
// The two deletes are not atomic; a failure in the second leaves the
// subscribers already gone.
func (s *Service) ClearData(ctx context.Context, u *domain.User) (ClearResult, error) {
	sending, err := s.campaigns.CountSending(ctx, u.ID)
	if err != nil {
		return ClearResult{}, fmt.Errorf("count sending campaigns: %w", err)
	}
	if sending > 0 {
		return ClearResult{}, ErrCampaignSending
	}

	var res ClearResult
	if res.Subscribers, err = s.subscribers.DeleteAll(ctx, u.ID); err != nil {
		return res, fmt.Errorf("delete subscribers: %w", err)
	}
	if res.Campaigns, err = s.campaigns.DeleteAll(ctx, u.ID); err != nil {
		return res, fmt.Errorf("delete campaigns: %w", err)
	}
	logger.Info("account data cleared", "user_id", u.ID, "subscribers", res.Subscribers, "campaigns", res.Campaigns)
	return res, nil
}
