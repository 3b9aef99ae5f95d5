package user

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID                  uuid.UUID    `gorm:"type:uuid;primaryKey"`
	Email               string       `gorm:"column:email;uniqueIndex;not null"`
	Name                string       `gorm:"column:name;not null"`
	PasswordHash        string       `gorm:"column:password_hash"`
	GoogleID            *string      `gorm:"column:google_id;uniqueIndex"`
	SystemRole          string       `gorm:"column:system_role"`
	CustomRoleID        *uuid.UUID   `gorm:"type:uuid;column:custom_role_id;index"`
	TenantID            *uuid.UUID   `gorm:"type:uuid;column:tenant_id;index"`
	ParentAdminID       *uuid.UUID   `gorm:"type:uuid;column:parent_admin_id"`
	CreatedByID         *uuid.UUID   `gorm:"type:uuid;column:created_by_id"`
	ManagerID           *uuid.UUID   `gorm:"type:uuid;column:manager_id"`
	Restrictions        Restrictions `gorm:"column:restrictions;type:jsonb;serializer:json"`
	IsSuperAdminManaged bool         `gorm:"column:is_super_admin_managed;not null"`
	IsActive            bool         `gorm:"column:is_active;not null"`
	AvatarURL           string       `gorm:"column:avatar_url"`
	AvatarHistory       []string     `gorm:"column:avatar_history;type:jsonb;serializer:json"`
	CreatedAt           time.Time    `gorm:"column:created_at;index"`
	UpdatedAt           time.Time    `gorm:"column:updated_at"`
}

type Restrictions struct {
	IsRestricted   bool        `json:"is_restricted"`
	CanViewUsers   []uuid.UUID `json:"can_view_users"`
	CanManageUsers []uuid.UUID `json:"can_manage_users"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) BeforeCreate(_ *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
