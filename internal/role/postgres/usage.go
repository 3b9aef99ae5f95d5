package postgres

import (
	"context"
	"fmt"

	"github.com/frahmantamala/crm-backend/internal/role"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// UsageCounter answers reference counts with plain SQL over the shared pool.
type UsageCounter struct {
	db *sqlx.DB
}

func NewUsageCounter(db *sqlx.DB) role.UsageCounter {
	return &UsageCounter{db: db}
}

func (c *UsageCounter) CountUsersWithRole(ctx context.Context, roleID uuid.UUID) (int, error) {
	var n int
	query := c.db.Rebind(`SELECT COUNT(*) FROM users WHERE custom_role_id = ?`)
	if err := c.db.GetContext(ctx, &n, query, roleID.String()); err != nil {
		return 0, fmt.Errorf("count users with role: %w", err)
	}
	return n, nil
}
