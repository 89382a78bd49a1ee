package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/flowmail/dashboard/internal/domain"
)

// SendRepo implements campaign.SendLedger against PostgreSQL.
type SendRepo struct{ db *sql.DB }

// NewSendRepo creates a Postgres-backed send ledger.
func NewSendRepo(db *sql.DB) *SendRepo { return &SendRepo{db: db} }

func (r *SendRepo) Attempted(ctx context.Context, campaignID string) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT subscriber_id FROM campaign_sends WHERE campaign_id = $1`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("read send ledger: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan send ledger: %w", err)
		}
		out[id] = true
	}
	return out, rows.Err()
}

// Record inserts one ledger row. The (campaign_id, subscriber_id) unique
// key makes a repeated attempt a no-op.
func (r *SendRepo) Record(ctx context.Context, s *domain.CampaignSend) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO campaign_sends
			(id, campaign_id, subscriber_id, email, status, provider_message_id, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (campaign_id, subscriber_id) DO NOTHING
	`, s.ID, s.CampaignID, s.SubscriberID, s.Email, s.Status, s.ProviderMessageID, s.Error)
	if err != nil {
		return fmt.Errorf("record send: %w", err)
	}
	return nil
}

func (r *SendRepo) Counts(ctx context.Context, campaignID string) (sent, failed int, err error) {
	err = r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FILTER (WHERE status = 'sent'),
		       COUNT(*) FILTER (WHERE status <> 'sent')
		FROM campaign_sends WHERE campaign_id = $1
	`, campaignID).Scan(&sent, &failed)
	if err != nil {
		return 0, 0, fmt.Errorf("count sends: %w", err)
	}
	return sent, failed, nil
}
