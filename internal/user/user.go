package user

import (
	"time"

	userDatamodel "github.com/frahmantamala/crm-backend/internal/core/datamodel/user"
	"github.com/frahmantamala/crm-backend/internal/permission"
	"github.com/frahmantamala/crm-backend/internal/role"
	"github.com/google/uuid"
)

// MaxAvatarHistory is how many previous avatar URLs are kept.
const MaxAvatarHistory = 4

type Restrictions struct {
	IsRestricted   bool        `json:"is_restricted"`
	CanViewUsers   []uuid.UUID `json:"can_view_users"`
	CanManageUsers []uuid.UUID `json:"can_manage_users"`
}

type User struct {
	ID                  uuid.UUID             `json:"id"`
	Email               string                `json:"email"`
	Name                string                `json:"name"`
	PasswordHash        string                `json:"-"`
	GoogleID            *string               `json:"-"`
	SystemRole          permission.SystemRole `json:"system_role,omitempty"`
	CustomRoleID        *uuid.UUID            `json:"custom_role_id,omitempty"`
	TenantID            *uuid.UUID            `json:"tenant_id,omitempty"`
	ParentAdminID       *uuid.UUID            `json:"parent_admin_id,omitempty"`
	CreatedByID         *uuid.UUID            `json:"created_by_id,omitempty"`
	ManagerID           *uuid.UUID            `json:"manager_id,omitempty"`
	Restrictions        Restrictions          `json:"restrictions"`
	IsSuperAdminManaged bool                  `json:"is_super_admin_managed"`
	IsActive            bool                  `json:"is_active"`
	AvatarURL           string                `json:"avatar_url,omitempty"`
	AvatarHistory       []string              `json:"avatar_history"`
	CreatedAt           time.Time             `json:"created_at"`
	UpdatedAt           time.Time             `json:"updated_at"`
}

func (u *User) Actor() role.Actor {
	return role.Actor{
		ID:           u.ID,
		SystemRole:   u.SystemRole,
		CustomRoleID: u.CustomRoleID,
		TenantID:     u.TenantID,
	}
}

func (u *User) IsSuperAdmin() bool {
	return u.SystemRole == permission.RoleSuperAdmin
}

// EffectiveManagerID is the explicit manager, or the creator when the creator
// is not the tenant admin. The second form only exists for rows written before
// manager_id was recorded.
func (u *User) EffectiveManagerID() *uuid.UUID {
	if u.ManagerID != nil {
		return u.ManagerID
	}
	if u.CreatedByID == nil {
		return nil
	}
	if u.ParentAdminID != nil && *u.ParentAdminID == *u.CreatedByID {
		return nil
	}
	if u.ParentAdminID == nil && u.TenantID != nil && *u.TenantID == *u.CreatedByID {
		return nil
	}
	if *u.CreatedByID == u.ID {
		return nil
	}
	return u.CreatedByID
}

// PushAvatar makes url current and moves the previous one to the front of the
// history, dropping the oldest entry past MaxAvatarHistory.
func (u *User) PushAvatar(url string) {
	if url == "" || url == u.AvatarURL {
		return
	}
	if u.AvatarURL != "" {
		history := make([]string, 0, MaxAvatarHistory)
		history = append(history, u.AvatarURL)
		for _, h := range u.AvatarHistory {
			if len(history) == MaxAvatarHistory {
				break
			}
			if h != url {
				history = append(history, h)
			}
		}
		u.AvatarHistory = history
	}
	u.AvatarURL = url
}

func ToDataModel(u *User) *userDatamodel.User {
	return &userDatamodel.User{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		PasswordHash:  u.PasswordHash,
		GoogleID:      u.GoogleID,
		SystemRole:    string(u.SystemRole),
		CustomRoleID:  u.CustomRoleID,
		TenantID:      u.TenantID,
		ParentAdminID: u.ParentAdminID,
		CreatedByID:   u.CreatedByID,
		ManagerID:     u.ManagerID,
		Restrictions: userDatamodel.Restrictions{
			IsRestricted:   u.Restrictions.IsRestricted,
			CanViewUsers:   copyIDs(u.Restrictions.CanViewUsers),
			CanManageUsers: copyIDs(u.Restrictions.CanManageUsers),
		},
		IsSuperAdminManaged: u.IsSuperAdminManaged,
		IsActive:            u.IsActive,
		AvatarURL:           u.AvatarURL,
		AvatarHistory:       append([]string(nil), u.AvatarHistory...),
		CreatedAt:           u.CreatedAt,
		UpdatedAt:           u.UpdatedAt,
	}
}

func FromDataModel(u *userDatamodel.User) *User {
	history := append([]string{}, u.AvatarHistory...)
	return &User{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		PasswordHash:  u.PasswordHash,
		GoogleID:      u.GoogleID,
		SystemRole:    permission.SystemRole(u.SystemRole),
		CustomRoleID:  u.CustomRoleID,
		TenantID:      u.TenantID,
		ParentAdminID: u.ParentAdminID,
		CreatedByID:   u.CreatedByID,
		ManagerID:     u.ManagerID,
		Restrictions: Restrictions{
			IsRestricted:   u.Restrictions.IsRestricted,
			CanViewUsers:   copyIDs(u.Restrictions.CanViewUsers),
			CanManageUsers: copyIDs(u.Restrictions.CanManageUsers),
		},
		IsSuperAdminManaged: u.IsSuperAdminManaged,
		IsActive:            u.IsActive,
		AvatarURL:           u.AvatarURL,
		AvatarHistory:       history,
		CreatedAt:           u.CreatedAt,
		UpdatedAt:           u.UpdatedAt,
	}
}

func copyIDs(ids []uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, len(ids))
	copy(out, ids)
	return out
}
