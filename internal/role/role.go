package role

import (
	"time"

	roleDatamodel "github.com/frahmantamala/crm-backend/internal/core/datamodel/role"
	"github.com/frahmantamala/crm-backend/internal/permission"
	"github.com/google/uuid"
)

// Role is either a built-in role document or an Admin-owned custom role.
type Role struct {
	ID           uuid.UUID         `json:"id"`
	Name         string            `json:"name"`
	Description  string            `json:"description"`
	IsSystemRole bool              `json:"is_system_role"`
	TenantID     *uuid.UUID        `json:"tenant_id,omitempty"`
	Permissions  permission.Matrix `json:"permissions"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

func (r *Role) Allows(resource permission.Resource, action permission.Action) bool {
	return r.Permissions.Allows(resource, action)
}

// OwnedBy reports whether tenant owns this custom role.
func (r *Role) OwnedBy(tenant *uuid.UUID) bool {
	return !r.IsSystemRole && r.TenantID != nil && tenant != nil && *r.TenantID == *tenant
}

// Actor is the subject of an authorization decision, loaded fresh per request.
type Actor struct {
	ID           uuid.UUID
	SystemRole   permission.SystemRole
	CustomRoleID *uuid.UUID
	TenantID     *uuid.UUID
}

// Kind tags which branch of the authorization algorithm applies to an actor.
type Kind int

const (
	KindNone Kind = iota
	KindSuperAdmin
	KindAdmin
	KindCustom
	KindModerator
	KindGuest
)

func (k Kind) String() string {
	switch k {
	case KindSuperAdmin:
		return "super_admin"
	case KindAdmin:
		return "admin"
	case KindCustom:
		return "custom_role"
	case KindModerator:
		return "moderator"
	case KindGuest:
		return "guest"
	default:
		return "none"
	}
}

// Classification is the tagged variant; CustomRoleID is set only for KindCustom.
type Classification struct {
	Kind         Kind
	CustomRoleID uuid.UUID
}

// Classify applies the precedence SuperAdmin, Admin, custom role, Moderator,
// Guest. A custom role reference therefore wins over Moderator and Guest.
func Classify(a Actor) Classification {
	switch {
	case a.SystemRole == permission.RoleSuperAdmin:
		return Classification{Kind: KindSuperAdmin}
	case a.SystemRole == permission.RoleAdmin:
		return Classification{Kind: KindAdmin}
	case a.CustomRoleID != nil && *a.CustomRoleID != uuid.Nil:
		return Classification{Kind: KindCustom, CustomRoleID: *a.CustomRoleID}
	case a.SystemRole == permission.RoleModerator:
		return Classification{Kind: KindModerator}
	case a.SystemRole == permission.RoleGuest:
		return Classification{Kind: KindGuest}
	default:
		return Classification{Kind: KindNone}
	}
}

// TenantOf is the tenant an actor operates in. An Admin is its own tenant.
func TenantOf(a Actor) *uuid.UUID {
	if a.SystemRole == permission.RoleAdmin {
		id := a.ID
		return &id
	}
	return a.TenantID
}

func ToDataModel(r *Role) *roleDatamodel.Role {
	return &roleDatamodel.Role{
		ID:           r.ID,
		Name:         r.Name,
		Description:  r.Description,
		IsSystemRole: r.IsSystemRole,
		TenantID:     r.TenantID,
		Permissions:  r.Permissions.Clone(),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func FromDataModel(r *roleDatamodel.Role) *Role {
	perms := r.Permissions.Clone()
	if perms == nil {
		perms = permission.Matrix{}
	}
	return &Role{
		ID:           r.ID,
		Name:         r.Name,
		Description:  r.Description,
		IsSystemRole: r.IsSystemRole,
		TenantID:     r.TenantID,
		Permissions:  perms,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

// SystemRoleDocuments describes the built-in roles as stored rows so they show
// up in role listings. Their permissions are informational; decisions for
// built-in roles never read them.
func SystemRoleDocuments() []*Role {
	full := permission.Matrix{}
	for _, res := range permission.Resources() {
		full[res] = map[permission.Action]bool{
			permission.ActionView:   true,
			permission.ActionCreate: true,
			permission.ActionEdit:   true,
			permission.ActionDelete: true,
		}
	}
	moderator, _ := permission.AllowList(permission.RoleModerator)
	guest, _ := permission.AllowList(permission.RoleGuest)

	return []*Role{
		{Name: string(permission.RoleSuperAdmin), Description: "Platform owner with unrestricted access", IsSystemRole: true, Permissions: full.Clone()},
		{Name: string(permission.RoleAdmin), Description: "Tenant owner with full access inside the tenant", IsSystemRole: true, Permissions: full.Clone()},
		{Name: string(permission.RoleModerator), Description: "Works leads and calls", IsSystemRole: true, Permissions: moderator},
		{Name: string(permission.RoleGuest), Description: "Read-only access to leads and calls", IsSystemRole: true, Permissions: guest},
	}
}
