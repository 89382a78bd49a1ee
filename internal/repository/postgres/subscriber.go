package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/flowmail/dashboard/internal/domain"
	"github.com/flowmail/dashboard/internal/service/subscriber"
)

// SubscriberRepo implements subscriber.Repository against PostgreSQL.
type SubscriberRepo struct{ db *sql.DB }

// NewSubscriberRepo creates a Postgres-backed subscriber repository.
func NewSubscriberRepo(db *sql.DB) *SubscriberRepo { return &SubscriberRepo{db: db} }

const subscriberColumns = `id, user_id, name, email, tier, status,
	COALESCE(whop_membership_id, ''), synced_at, created_at`

func scanSubscriber(row rowScanner) (*domain.Subscriber, error) {
	s := &domain.Subscriber{}
	var syncedAt sql.NullTime
	if err := row.Scan(&s.ID, &s.UserID, &s.Name, &s.Email, &s.Tier, &s.Status,
		&s.WhopMembershipID, &syncedAt, &s.CreatedAt); err != nil {
		return nil, err
	}
	if syncedAt.Valid {
		t := syncedAt.Time
		s.SyncedAt = &t
	}
	return s, nil
}

func (r *SubscriberRepo) List(ctx context.Context, userID string, f subscriber.ListFilter) ([]domain.Subscriber, error) {
	q := `SELECT ` + subscriberColumns + ` FROM subscribers WHERE user_id = $1`
	args := []any{userID}
	idx := 2

	if f.Status != "" {
		q += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, f.Status)
		idx++
	}
	if f.Tier != "" {
		q += fmt.Sprintf(" AND lower(tier) = lower($%d)", idx)
		args = append(args, f.Tier)
		idx++
	}
	if f.Search != "" {
		q += fmt.Sprintf(" AND (name ILIKE $%d OR email ILIKE $%d)", idx, idx)
		args = append(args, "%"+f.Search+"%")
	}
	q += " ORDER BY created_at DESC"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	defer rows.Close()

	var out []domain.Subscriber
	for rows.Next() {
		s, err := scanSubscriber(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (r *SubscriberRepo) Get(ctx context.Context, userID, id string) (*domain.Subscriber, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, subscriber.ErrNotFound
	}
	s, err := scanSubscriber(r.db.QueryRowContext(ctx,
		`SELECT `+subscriberColumns+` FROM subscribers WHERE id = $1 AND user_id = $2`, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, subscriber.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get subscriber: %w", err)
	}
	return s, nil
}

// Upsert keys on (user_id, lower(email)). A membership id or sync time
// already on the row survives a manual update that carries none.
func (r *SubscriberRepo) Upsert(ctx context.Context, s *domain.Subscriber) (*domain.Subscriber, error) {
	var syncedAt any
	if s.SyncedAt != nil {
		syncedAt = *s.SyncedAt
	}
	out, err := scanSubscriber(r.db.QueryRowContext(ctx, `
		INSERT INTO subscribers (id, user_id, name, email, tier, status, whop_membership_id, synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)
		ON CONFLICT (user_id, lower(email)) DO UPDATE
		SET name = EXCLUDED.name, tier = EXCLUDED.tier, status = EXCLUDED.status,
		    whop_membership_id = COALESCE(EXCLUDED.whop_membership_id, subscribers.whop_membership_id),
		    synced_at = COALESCE(EXCLUDED.synced_at, subscribers.synced_at)
		RETURNING `+subscriberColumns,
		uuid.New().String(), s.UserID, s.Name, s.Email, s.Tier, s.Status, s.WhopMembershipID, syncedAt))
	if err != nil {
		return nil, fmt.Errorf("upsert subscriber: %w", err)
	}
	return out, nil
}

func (r *SubscriberRepo) Delete(ctx context.Context, userID, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return subscriber.ErrNotFound
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM subscribers WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete subscriber: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return subscriber.ErrNotFound
	}
	return nil
}

func (r *SubscriberRepo) DeleteMany(ctx context.Context, userID string, ids []string) (int, error) {
	valid := validUUIDs(ids)
	if len(valid) == 0 {
		return 0, nil
	}
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM subscribers WHERE user_id = $1 AND id = ANY($2)`, userID, pq.Array(valid))
	if err != nil {
		return 0, fmt.Errorf("delete subscribers: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (r *SubscriberRepo) DeleteAll(ctx context.Context, userID string) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM subscribers WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete all subscribers: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
