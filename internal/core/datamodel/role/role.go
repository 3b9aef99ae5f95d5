package role

import (
	"time"

	"github.com/frahmantamala/crm-backend/internal/permission"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Role struct {
	ID           uuid.UUID         `gorm:"type:uuid;primaryKey"`
	Name         string            `gorm:"column:name;not null;uniqueIndex:idx_roles_tenant_name"`
	Description  string            `gorm:"column:description"`
	IsSystemRole bool              `gorm:"column:is_system_role;not null"`
	TenantID     *uuid.UUID        `gorm:"type:uuid;column:tenant_id;uniqueIndex:idx_roles_tenant_name"`
	Permissions  permission.Matrix `gorm:"column:permissions;type:jsonb;serializer:json"`
	CreatedAt    time.Time         `gorm:"column:created_at"`
	UpdatedAt    time.Time         `gorm:"column:updated_at"`
}

func (Role) TableName() string {
	return "roles"
}

func (r *Role) BeforeCreate(_ *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
