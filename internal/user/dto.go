package user

import (
	"strings"

	errors "github.com/frahmantamala/crm-backend/internal"
	"github.com/frahmantamala/crm-backend/internal/core/common/validation"
	"github.com/frahmantamala/crm-backend/internal/permission"
)

var systemRoleNames = []string{
	string(permission.RoleSuperAdmin),
	string(permission.RoleAdmin),
	string(permission.RoleModerator),
	string(permission.RoleGuest),
}

type CreateUserDTO struct {
	Email               string  `json:"email"`
	Name                string  `json:"name"`
	Password            string  `json:"password"`
	SystemRole          string  `json:"system_role,omitempty"`
	CustomRoleID        *string `json:"custom_role_id,omitempty"`
	TenantID            *string `json:"tenant_id,omitempty"`
	ManagerID           *string `json:"manager_id,omitempty"`
	IsSuperAdminManaged *bool   `json:"is_super_admin_managed,omitempty"`
}

func (d *CreateUserDTO) Normalize() {
	d.Email = strings.ToLower(strings.TrimSpace(d.Email))
	d.Name = strings.TrimSpace(d.Name)
	d.SystemRole = strings.TrimSpace(d.SystemRole)
}

func (d CreateUserDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("email", d.Email).Required().Email().MaxLength(255)
	v.Field("name", d.Name).Required().MinLength(2).MaxLength(100)
	v.Field("password", d.Password).Required().MinLength(8).MaxLength(72)
	v.Field("system_role", d.SystemRole).OneOf(systemRoleNames...)
	v.Field("custom_role_id", d.CustomRoleID).UUID()
	v.Field("tenant_id", d.TenantID).UUID()
	v.Field("manager_id", d.ManagerID).UUID()
	if err := v.Validate(); err != nil {
		return err
	}
	if d.SystemRole != "" && d.CustomRoleID != nil && *d.CustomRoleID != "" {
		return errors.NewValidationFieldError("custom_role_id",
			"system_role and custom_role_id are mutually exclusive", errors.ErrCodeInvalidRoleAssignment)
	}
	return nil
}

// UpdateUserDTO is a whole-document edit: fields left nil keep their value.
type UpdateUserDTO struct {
	Email               *string `json:"email,omitempty"`
	Name                *string `json:"name,omitempty"`
	SystemRole          *string `json:"system_role,omitempty"`
	CustomRoleID        *string `json:"custom_role_id,omitempty"`
	ManagerID           *string `json:"manager_id,omitempty"`
	IsSuperAdminManaged *bool   `json:"is_super_admin_managed,omitempty"`
}

func (d *UpdateUserDTO) Normalize() {
	if d.Email != nil {
		e := strings.ToLower(strings.TrimSpace(*d.Email))
		d.Email = &e
	}
	if d.Name != nil {
		n := strings.TrimSpace(*d.Name)
		d.Name = &n
	}
}

func (d UpdateUserDTO) Validate() error {
	v := validation.NewValidator()
	if d.Email != nil {
		v.Field("email", *d.Email).Required().Email().MaxLength(255)
	}
	if d.Name != nil {
		v.Field("name", *d.Name).Required().MinLength(2).MaxLength(100)
	}
	if d.SystemRole != nil {
		v.Field("system_role", *d.SystemRole).OneOf(systemRoleNames...)
	}
	v.Field("custom_role_id", d.CustomRoleID).UUID()
	v.Field("manager_id", d.ManagerID).UUID()
	if err := v.Validate(); err != nil {
		return err
	}
	if d.SystemRole != nil && *d.SystemRole != "" && d.CustomRoleID != nil && *d.CustomRoleID != "" {
		return errors.NewValidationFieldError("custom_role_id",
			"system_role and custom_role_id are mutually exclusive", errors.ErrCodeInvalidRoleAssignment)
	}
	return nil
}

type RestrictionsDTO struct {
	IsRestricted   bool     `json:"is_restricted"`
	CanViewUsers   []string `json:"can_view_users"`
	CanManageUsers []string `json:"can_manage_users"`
}

func (d RestrictionsDTO) ToRestrictions() (Restrictions, error) {
	out := Restrictions{IsRestricted: d.IsRestricted}
	for _, raw := range d.CanViewUsers {
		id, err := validation.ParseID("can_view_users", raw)
		if err != nil {
			return Restrictions{}, err
		}
		out.CanViewUsers = append(out.CanViewUsers, id)
	}
	for _, raw := range d.CanManageUsers {
		id, err := validation.ParseID("can_manage_users", raw)
		if err != nil {
			return Restrictions{}, err
		}
		out.CanManageUsers = append(out.CanManageUsers, id)
	}
	return out, nil
}

type UsersResponse struct {
	Users []*User `json:"users"`
	Total int     `json:"total"`
}

type StatusResponse struct {
	ID       string `json:"id"`
	IsActive bool   `json:"is_active"`
}
