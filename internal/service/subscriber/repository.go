package subscriber

import (
	"context"

	"github.com/flowmail/dashboard/internal/domain"
)

// Repository defines the data access contract for subscribers.
// Implementations must be safe for concurrent use.
type Repository interface {
	// List returns the user's subscribers matching the filter, newest first.
	List(ctx context.Context, userID string, f ListFilter) ([]domain.Subscriber, error)

	// Get returns one subscriber owned by the user. ErrNotFound otherwise.
	Get(ctx context.Context, userID, id string) (*domain.Subscriber, error)

	// Upsert inserts or updates keyed on (user_id, lower(email)).
	Upsert(ctx context.Context, s *domain.Subscriber) (*domain.Subscriber, error)

	// Delete removes one subscriber owned by the user.
	Delete(ctx context.Context, userID, id string) error

	// DeleteMany removes the user's subscribers among ids and returns the count.
	DeleteMany(ctx context.Context, userID string, ids []string) (int, error)

	// DeleteAll removes every subscriber of the user and returns the count.
	DeleteAll(ctx context.Context, userID string) (int, error)
}

// ListFilter narrows a subscriber listing. Empty fields match everything;
// Tier matches case-insensitively and Search matches name or email.
type ListFilter struct {
	Status string
	Tier   string
	Search string
}
