package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/frahmantamala/crm-backend/internal/transport"
	redisconn "github.com/frahmantamala/crm-backend/pkg/redis"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthUnhealthy HealthStatus = "unhealthy"
)

type HealthResponse struct {
	Status     HealthStatus          `json:"status"`
	CheckedAt  time.Time             `json:"checked_at"`
	Components map[string]CheckEntry `json:"components"`
}

type CheckEntry struct {
	Status     HealthStatus `json:"status"`
	Message    string       `json:"message,omitempty"`
	CheckedAt  time.Time    `json:"checked_at"`
	DurationMs int64        `json:"duration_ms"`
}

type checkFunc func(ctx context.Context) error

type HealthHandler struct {
	*transport.BaseHandler
	checks map[string]checkFunc
}

// NewHealthHandler checks postgres, and redis when a client is given.
func NewHealthHandler(base *transport.BaseHandler, db *sqlx.DB, rdb *redis.Client) *HealthHandler {
	checks := map[string]checkFunc{
		"postgres": db.PingContext,
	}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return redisconn.Healthcheck(ctx, rdb) }
	}
	return &HealthHandler{BaseHandler: base, checks: checks}
}

// Ping only says the process is up.
func (h *HealthHandler) Ping(w http.ResponseWriter, _ *http.Request) {
	h.WriteJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

// Health checks every dependency and answers 503 if any is down.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:     HealthHealthy,
		Components: make(map[string]CheckEntry, len(h.checks)),
	}
	for name, check := range h.checks {
		start := time.Now()
		entry := CheckEntry{Status: HealthHealthy}
		if err := check(ctx); err != nil {
			entry.Status = HealthUnhealthy
			entry.Message = err.Error()
			resp.Status = HealthUnhealthy
			h.Logger.WarnContext(ctx, "health check failed", "component", name, "error", err)
		}
		entry.CheckedAt = time.Now()
		entry.DurationMs = time.Since(start).Milliseconds()
		resp.Components[name] = entry
	}
	resp.CheckedAt = time.Now()

	status := http.StatusOK
	if resp.Status == HealthUnhealthy {
		status = http.StatusServiceUnavailable
	}
	h.WriteJSON(w, status, resp)
}
