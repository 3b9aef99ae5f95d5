package role

import (
	"fmt"
	"strings"

	errors "github.com/frahmantamala/crm-backend/internal"
	"github.com/frahmantamala/crm-backend/internal/core/common/validation"
	"github.com/frahmantamala/crm-backend/internal/permission"
)

type CreateRoleDTO struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Permissions permission.Matrix `json:"permissions"`
	// TenantID is only honoured for SuperAdmin callers; Admins always own what they create.
	TenantID *string `json:"tenant_id,omitempty"`
}

type UpdateRoleDTO struct {
	Name        *string           `json:"name,omitempty"`
	Description *string           `json:"description,omitempty"`
	Permissions permission.Matrix `json:"permissions,omitempty"`
}

type RolesResponse struct {
	Roles []*Role `json:"roles"`
}

func (d *CreateRoleDTO) Normalize() {
	d.Name = strings.TrimSpace(d.Name)
	d.Description = strings.TrimSpace(d.Description)
}

func (d CreateRoleDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("name", d.Name).Required().MinLength(2).MaxLength(64)
	v.Field("description", d.Description).MaxLength(255)
	v.Field("tenant_id", d.TenantID).UUID()
	v.Field("permissions", d.Permissions).Custom(validateMatrix)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

func (d *UpdateRoleDTO) Normalize() {
	if d.Name != nil {
		n := strings.TrimSpace(*d.Name)
		d.Name = &n
	}
	if d.Description != nil {
		desc := strings.TrimSpace(*d.Description)
		d.Description = &desc
	}
}

func (d UpdateRoleDTO) Validate() error {
	v := validation.NewValidator()
	if d.Name != nil {
		v.Field("name", *d.Name).Required().MinLength(2).MaxLength(64)
	}
	if d.Description != nil {
		v.Field("description", *d.Description).MaxLength(255)
	}
	v.Field("permissions", d.Permissions).Custom(validateMatrix)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

func validateMatrix(value interface{}) *errors.AppError {
	m, ok := value.(permission.Matrix)
	if !ok || m == nil {
		return nil
	}
	if unknown := m.UnknownResources(); len(unknown) > 0 {
		return errors.NewValidationFieldError("permissions",
			fmt.Sprintf("unknown resources: %s", strings.Join(unknown, ", ")),
			errors.ErrCodeValidationFailed)
	}
	return nil
}
