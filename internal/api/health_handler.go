package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flowmail/dashboard/internal/pkg/httputil"
)

// HealthChecker serves GET /health. Postgres is required. Redis is
// optional since send locks fall back to advisory locks without it.
type HealthChecker struct {
	db      *sql.DB
	redis   *redis.Client
	started time.Time

	// maxSending is how many campaigns may sit in sending before the
	// report turns degraded; past it, interrupted runs are piling up.
	maxSending int
}

type healthReport struct {
	Status string            `json:"status"` // ok, degraded or down
	Uptime string            `json:"uptime"`
	Checks map[string]string `json:"checks"`
}

// NewHealthChecker accepts nil for either dependency.
func NewHealthChecker(db *sql.DB, redisClient *redis.Client) *HealthChecker {
	return &HealthChecker{db: db, redis: redisClient, started: time.Now(), maxSending: 50}
}

// HandleHealth answers 503 only when the database is unreachable, so the
// same endpoint works for load balancer checks.
//
//	GET /health
func (hc *HealthChecker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	rep := hc.report(ctx)
	status := http.StatusOK
	if rep.Status == "down" {
		status = http.StatusServiceUnavailable
	}
	httputil.JSON(w, status, rep)
}

func (hc *HealthChecker) report(ctx context.Context) healthReport {
	rep := healthReport{
		Status: "ok",
		Uptime: time.Since(hc.started).Round(time.Second).String(),
		Checks: make(map[string]string, 3),
	}
	degrade := func() {
		if rep.Status == "ok" {
			rep.Status = "degraded"
		}
	}

	if hc.db == nil {
		rep.Checks["database"] = "not configured"
	} else if err := hc.db.PingContext(ctx); err != nil {
		rep.Checks["database"] = "unreachable: " + err.Error()
		rep.Status = "down"
	} else {
		rep.Checks["database"] = "ok"
		var sending int
		err := hc.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM campaigns WHERE status = 'sending'`).Scan(&sending)
		switch {
		case err != nil:
			rep.Checks["sends"] = "count failed: " + err.Error()
			degrade()
		case sending > hc.maxSending:
			rep.Checks["sends"] = fmt.Sprintf("%d campaigns stuck in sending", sending)
			degrade()
		default:
			rep.Checks["sends"] = fmt.Sprintf("%d sending", sending)
		}
	}

	switch {
	case hc.redis == nil:
		rep.Checks["redis"] = "not configured"
	case hc.redis.Ping(ctx).Err() != nil:
		rep.Checks["redis"] = "unreachable"
		degrade()
	default:
		rep.Checks["redis"] = "ok"
	}
	return rep
}
