// Package distlock guards campaign sends so only one delivery run per
// campaign is active across all server instances.
package distlock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DistLock is the interface for distributed locking.
// A lock instance belongs to one acquisition; create a new one per attempt.
type DistLock interface {
	// Acquire tries to acquire the lock. Returns true if successful.
	Acquire(ctx context.Context) (bool, error)
	// Release releases the lock if we still own it.
	Release(ctx context.Context) error
	// Extend keeps a held lock alive. It fails with ErrLockLost once
	// ownership is gone, after which the caller must stop work.
	Extend(ctx context.Context) error
}

// ErrLockLost reports that a previously acquired lock is no longer held.
var ErrLockLost = errors.New("lock no longer held")

// Locker hands out locks for named resources using the best available backend.
type Locker struct {
	redis *redis.Client
	db    *sql.DB
	ttl   time.Duration
	mem   *memoryLocks
}

// NewLocker prefers Redis, then PostgreSQL advisory locks, then a
// process-local lock table when neither is configured.
func NewLocker(redisClient *redis.Client, db *sql.DB, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Locker{redis: redisClient, db: db, ttl: ttl, mem: &memoryLocks{held: map[string]bool{}}}
}

// ForCampaign returns the lock guarding delivery of one campaign.
func (l *Locker) ForCampaign(campaignID string) DistLock {
	return l.For(CampaignSendKey(campaignID))
}

// For returns a lock for an arbitrary key.
func (l *Locker) For(key string) DistLock {
	switch {
	case l.redis != nil:
		return NewRedisLock(l.redis, key, l.ttl)
	case l.db != nil:
		return NewPGAdvisoryLock(l.db, key)
	default:
		return &memoryLock{table: l.mem, key: key}
	}
}

// CampaignSendKey is the lock key for a campaign's send run.
func CampaignSendKey(campaignID string) string {
	return fmt.Sprintf("campaign-send:%s", campaignID)
}

// =============================================================================
// PostgreSQL Advisory Lock (fallback when Redis is unavailable)
// =============================================================================
// pg_try_advisory_lock is session-scoped, so the lock pins one pooled
// connection until Release. A dropped connection releases the lock.

// PGAdvisoryLock implements DistLock using PostgreSQL advisory locks.
type PGAdvisoryLock struct {
	db     *sql.DB
	lockID int64
	conn   *sql.Conn
}

// NewPGAdvisoryLock creates a PG advisory lock with a deterministic lock ID
// derived from the given key string.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{
		db:     db,
		lockID: int64(h.Sum64()),
	}
}

// Acquire tries to acquire the advisory lock without blocking.
func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to reserve connection for advisory lock: %w", err)
	}
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Close()
		return false, err
	}
	if !acquired {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

// Release releases the advisory lock and returns the connection to the pool.
func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}
	_, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	l.conn.Close()
	l.conn = nil
	return err
}

// Extend checks the pinned session is still alive; the advisory lock
// has no TTL and lives exactly as long as that session.
func (l *PGAdvisoryLock) Extend(ctx context.Context) error {
	if l.conn == nil {
		return ErrLockLost
	}
	if err := l.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrLockLost, err)
	}
	return nil
}

// memoryLocks backs single-process deployments and tests.
type memoryLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

type memoryLock struct {
	table *memoryLocks
	key   string
	owned bool
}

func (l *memoryLock) Acquire(ctx context.Context) (bool, error) {
	l.table.mu.Lock()
	defer l.table.mu.Unlock()
	if l.table.held[l.key] {
		return false, nil
	}
	l.table.held[l.key] = true
	l.owned = true
	return true, nil
}

func (l *memoryLock) Release(ctx context.Context) error {
	if !l.owned {
		return nil
	}
	l.table.mu.Lock()
	defer l.table.mu.Unlock()
	delete(l.table.held, l.key)
	l.owned = false
	return nil
}

func (l *memoryLock) Extend(ctx context.Context) error {
	if !l.owned {
		return ErrLockLost
	}
	return nil
}
