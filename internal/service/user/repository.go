package user

import (
	"context"

	"github.com/flowmail/dashboard/internal/domain"
)

// Repository defines the data access contract for users.
// Implementations must be safe for concurrent use.
type Repository interface {
	// GetByWhopID returns the user for an external Whop id. ErrNotFound if absent.
	GetByWhopID(ctx context.Context, whopUserID string) (*domain.User, error)

	// GetByID returns the user for an internal id. ErrNotFound if absent.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// Upsert inserts the user or refreshes email/username keyed by whop_user_id.
	Upsert(ctx context.Context, u *domain.User) (*domain.User, error)

	// SetSenderName writes the name. ErrSenderNameTaken when another user
	// holds it (case-insensitive unique constraint).
	SetSenderName(ctx context.Context, userID, name string) error

	// SetPlan changes the billing plan.
	SetPlan(ctx context.Context, userID string, plan domain.Plan) error

	// AddUsage adds n sends to the counter for month, resetting the counter
	// when the stored month differs.
	AddUsage(ctx context.Context, userID, month string, n int) error
}
