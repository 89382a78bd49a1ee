package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/flowmail/dashboard/internal/domain"
)

// EventRepo implements events.Repository against PostgreSQL.
type EventRepo struct{ db *sql.DB }

// NewEventRepo creates a Postgres-backed email event log.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

func (r *EventRepo) Insert(ctx context.Context, e *domain.EmailEvent) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO email_events (id, event_type, email_id, campaign_id, subscriber_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, e.EventType, e.EmailID, e.CampaignID, e.SubscriberID, string(e.Payload), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert email event: %w", err)
	}
	return nil
}
