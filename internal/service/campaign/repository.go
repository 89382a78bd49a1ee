package campaign

import (
	"context"

	"github.com/flowmail/dashboard/internal/domain"
	"github.com/flowmail/dashboard/internal/pkg/distlock"
)

// Repository defines the data access contract for campaigns.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single campaign owned by the user. ErrNotFound otherwise.
	Get(ctx context.Context, userID, id string) (*domain.Campaign, error)

	// GetMany returns the user's campaigns among ids. Missing ids are absent
	// from the result.
	GetMany(ctx context.Context, userID string, ids []string) ([]domain.Campaign, error)

	// List returns campaigns matching the filter, ordered by created_at DESC.
	List(ctx context.Context, userID string, f ListFilter) ([]domain.Campaign, error)

	// Create inserts a new campaign.
	Create(ctx context.Context, c *domain.Campaign) error

	// Update overwrites the editable fields of a draft. ErrCampaignSending
	// when the row is no longer a draft.
	Update(ctx context.Context, c *domain.Campaign) error

	// Delete removes a campaign that is neither sending nor sent.
	Delete(ctx context.Context, userID, id string) error

	// DeleteMany removes the given campaigns and returns the count.
	DeleteMany(ctx context.Context, userID string, ids []string) (int, error)

	// DeleteAll removes every campaign of the user and returns the count.
	DeleteAll(ctx context.Context, userID string) (int, error)

	// CountByStatus counts the user's campaigns in a status.
	CountByStatus(ctx context.Context, userID string, status domain.CampaignStatus) (int, error)

	// MarkSending moves a campaign to sending and stores the recipient total.
	MarkSending(ctx context.Context, userID, id string, total int) error

	// MarkSent moves a campaign to sent with its final counts.
	MarkSent(ctx context.Context, userID, id string, sent, failed int) error
}

// SendLedger records per-recipient delivery attempts.
type SendLedger interface {
	// Attempted returns the subscriber ids that already have a ledger row.
	Attempted(ctx context.Context, campaignID string) (map[string]bool, error)

	// Record stores one attempt. A second row for the same recipient is ignored.
	Record(ctx context.Context, s *domain.CampaignSend) error

	// Counts totals the ledger by outcome.
	Counts(ctx context.Context, campaignID string) (sent, failed int, err error)
}

// RecipientSource resolves a campaign segment to active subscribers.
type RecipientSource interface {
	ListRecipients(ctx context.Context, userID, segment string) ([]domain.Subscriber, error)
}

// UsageTracker enforces and records the plan's monthly allowance.
type UsageTracker interface {
	Limit(plan domain.Plan) int
	RecordSends(ctx context.Context, userID string, n int) error
}

// Locker hands out the per-campaign send lock.
type Locker interface {
	ForCampaign(campaignID string) distlock.DistLock
}

// ListFilter controls filtering for campaign lists.
type ListFilter struct {
	Status string
}
