package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/flowmail/dashboard/internal/domain"
	"github.com/flowmail/dashboard/internal/service/campaign"
)

// CampaignRepo implements campaign.Repository against PostgreSQL.
type CampaignRepo struct{ db *sql.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

const campaignColumns = `id, user_id, name, subject, preview_text, html_content,
	template_syntax, segment, status, total_recipients, sent_count, failed_count,
	sent_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCampaign(row rowScanner) (*domain.Campaign, error) {
	c := &domain.Campaign{}
	var sentAt sql.NullTime
	err := row.Scan(
		&c.ID, &c.UserID, &c.Name, &c.Subject, &c.PreviewText, &c.HTMLContent,
		&c.TemplateSyntax, &c.Segment, &c.Status, &c.TotalRecipients, &c.SentCount, &c.FailedCount,
		&sentAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if sentAt.Valid {
		t := sentAt.Time
		c.SentAt = &t
	}
	return c, nil
}

func (r *CampaignRepo) Get(ctx context.Context, userID, id string) (*domain.Campaign, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, campaign.ErrNotFound
	}
	c, err := scanCampaign(r.db.QueryRowContext(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE id = $1 AND user_id = $2`, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, campaign.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

func (r *CampaignRepo) GetMany(ctx context.Context, userID string, ids []string) ([]domain.Campaign, error) {
	valid := validUUIDs(ids)
	if len(valid) == 0 {
		return nil, nil
	}
	return r.query(ctx, "get campaigns",
		`SELECT `+campaignColumns+` FROM campaigns WHERE user_id = $1 AND id = ANY($2)`,
		userID, pq.Array(valid))
}

func (r *CampaignRepo) List(ctx context.Context, userID string, f campaign.ListFilter) ([]domain.Campaign, error) {
	q := `SELECT ` + campaignColumns + ` FROM campaigns WHERE user_id = $1`
	args := []any{userID}
	if f.Status != "" {
		q += ` AND status = $2`
		args = append(args, f.Status)
	}
	q += ` ORDER BY created_at DESC`
	return r.query(ctx, "list campaigns", q, args...)
}

func (r *CampaignRepo) query(ctx context.Context, op, q string, args ...any) ([]domain.Campaign, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *CampaignRepo) Create(ctx context.Context, c *domain.Campaign) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO campaigns
			(id, user_id, name, subject, preview_text, html_content,
			 template_syntax, segment, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
	`, c.ID, c.UserID, c.Name, c.Subject, c.PreviewText, c.HTMLContent,
		c.TemplateSyntax, c.Segment, c.Status, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("create campaign: %w", err)
	}
	return nil
}

// Update only touches drafts, so a send that started after the caller's
// read wins.
func (r *CampaignRepo) Update(ctx context.Context, c *domain.Campaign) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET name = $1, subject = $2, preview_text = $3, html_content = $4,
		    template_syntax = $5, segment = $6, updated_at = NOW()
		WHERE id = $7 AND user_id = $8 AND status = 'draft'
	`, c.Name, c.Subject, c.PreviewText, c.HTMLContent, c.TemplateSyntax, c.Segment, c.ID, c.UserID)
	if err != nil {
		return fmt.Errorf("update campaign: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return campaign.ErrCampaignSending
	}
	return nil
}

func (r *CampaignRepo) Delete(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM campaigns
		WHERE id = $1 AND user_id = $2 AND status NOT IN ('sending','sent')
	`, id, userID)
	if err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		return nil
	}

	// Nothing deleted: either the campaign is gone or a send started
	// after the caller's read.
	var status domain.CampaignStatus
	err = r.db.QueryRowContext(ctx,
		`SELECT status FROM campaigns WHERE id = $1 AND user_id = $2`, id, userID).Scan(&status)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return campaign.ErrNotFound
	case err != nil:
		return fmt.Errorf("delete campaign: %w", err)
	case status == domain.CampaignSent:
		return campaign.ErrCampaignSent
	default:
		return campaign.ErrCampaignSending
	}
}

func (r *CampaignRepo) DeleteMany(ctx context.Context, userID string, ids []string) (int, error) {
	valid := validUUIDs(ids)
	if len(valid) == 0 {
		return 0, nil
	}
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM campaigns
		WHERE user_id = $1 AND id = ANY($2) AND status NOT IN ('sending','sent')
	`, userID, pq.Array(valid))
	if err != nil {
		return 0, fmt.Errorf("delete campaigns: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (r *CampaignRepo) DeleteAll(ctx context.Context, userID string) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM campaigns WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete all campaigns: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (r *CampaignRepo) CountByStatus(ctx context.Context, userID string, status domain.CampaignStatus) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM campaigns WHERE user_id = $1 AND status = $2`, userID, status).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count campaigns: %w", err)
	}
	return n, nil
}

func (r *CampaignRepo) MarkSending(ctx context.Context, userID, id string, total int) error {
	return r.exec(ctx, "mark sending", `
		UPDATE campaigns SET status = 'sending', total_recipients = $1, updated_at = NOW()
		WHERE id = $2 AND user_id = $3
	`, total, id, userID)
}

func (r *CampaignRepo) MarkSent(ctx context.Context, userID, id string, sent, failed int) error {
	return r.exec(ctx, "mark sent", `
		UPDATE campaigns
		SET status = 'sent', sent_count = $1, failed_count = $2, sent_at = NOW(), updated_at = NOW()
		WHERE id = $3 AND user_id = $4
	`, sent, failed, id, userID)
}

func (r *CampaignRepo) exec(ctx context.Context, op, q string, args ...any) error {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

// validUUIDs drops ids that would make Postgres reject the uuid cast.
func validUUIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			out = append(out, id)
		}
	}
	return out
}
