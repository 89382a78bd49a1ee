package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/flowmail/dashboard/internal/domain"
	"github.com/flowmail/dashboard/internal/service/user"
)

// UserRepo implements user.Repository and sendingdomain.Repository against
// PostgreSQL.
type UserRepo struct{ db *sql.DB }

// NewUserRepo creates a Postgres-backed user repository.
func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

const userColumns = `id, whop_user_id, email, username, plan, emails_sent_this_month,
	usage_month, COALESCE(sender_name, ''), COALESCE(custom_domain, ''),
	COALESCE(domain_provider_id, ''), domain_status, domain_records, created_at, updated_at`

func scanUser(row rowScanner) (*domain.User, error) {
	u := &domain.User{}
	var records []byte
	err := row.Scan(
		&u.ID, &u.WhopUserID, &u.Email, &u.Username, &u.Plan, &u.EmailsSentThisMonth,
		&u.UsageMonth, &u.SenderName, &u.CustomDomain,
		&u.DomainProviderID, &u.DomainStatus, &records, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(records) > 0 {
		if err := json.Unmarshal(records, &u.DomainRecords); err != nil {
			return nil, fmt.Errorf("decode domain records: %w", err)
		}
	}
	return u, nil
}

func (r *UserRepo) get(ctx context.Context, where string, arg any) (*domain.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, user.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (r *UserRepo) GetByWhopID(ctx context.Context, whopUserID string) (*domain.User, error) {
	return r.get(ctx, `whop_user_id = $1`, whopUserID)
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, user.ErrNotFound
	}
	return r.get(ctx, `id = $1`, id)
}

// Upsert keys on whop_user_id. An existing row keeps its plan, usage and
// sender settings; only the profile fields are refreshed.
func (r *UserRepo) Upsert(ctx context.Context, u *domain.User) (*domain.User, error) {
	plan := u.Plan
	if plan == "" {
		plan = domain.PlanFree
	}
	out, err := scanUser(r.db.QueryRowContext(ctx, `
		INSERT INTO users (id, whop_user_id, email, username, plan)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (whop_user_id) DO UPDATE
		SET email = EXCLUDED.email, username = EXCLUDED.username, updated_at = NOW()
		RETURNING `+userColumns,
		uuid.New().String(), u.WhopUserID, u.Email, u.Username, plan))
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return out, nil
}

func (r *UserRepo) SetSenderName(ctx context.Context, userID, name string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET sender_name = $1, updated_at = NOW() WHERE id = $2`, name, userID)
	if isUniqueViolation(err) {
		return user.ErrSenderNameTaken
	}
	if err != nil {
		return fmt.Errorf("set sender name: %w", err)
	}
	return affectedOrNotFound(res)
}

func (r *UserRepo) SetPlan(ctx context.Context, userID string, plan domain.Plan) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET plan = $1, updated_at = NOW() WHERE id = $2`, plan, userID)
	if err != nil {
		return fmt.Errorf("set plan: %w", err)
	}
	return affectedOrNotFound(res)
}

// AddUsage increments atomically, restarting the counter when the stored
// month is not month.
func (r *UserRepo) AddUsage(ctx context.Context, userID, month string, n int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET emails_sent_this_month = CASE WHEN usage_month = $2 THEN emails_sent_this_month + $3 ELSE $3 END,
		    usage_month = $2, updated_at = NOW()
		WHERE id = $1
	`, userID, month, n)
	if err != nil {
		return fmt.Errorf("add usage: %w", err)
	}
	return affectedOrNotFound(res)
}

func (r *UserRepo) UpdateDomain(ctx context.Context, u *domain.User) error {
	records := u.DomainRecords
	if records == nil {
		records = []domain.DNSRecord{}
	}
	raw, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode domain records: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET custom_domain = NULLIF($1, ''), domain_provider_id = NULLIF($2, ''),
		    domain_status = $3, domain_records = $4, updated_at = NOW()
		WHERE id = $5
	`, u.CustomDomain, u.DomainProviderID, u.DomainStatus, string(raw), u.ID)
	if err != nil {
		return fmt.Errorf("update domain: %w", err)
	}
	return affectedOrNotFound(res)
}

func affectedOrNotFound(res sql.Result) error {
	n, _ := res.RowsAffected()
	if n == 0 {
		return user.ErrNotFound
	}
	return nil
}
