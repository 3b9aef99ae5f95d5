package settings

import (
	"strings"

	errors "github.com/frahmantamala/crm-backend/internal"
	"github.com/frahmantamala/crm-backend/internal/core/common/validation"
)

var typeNames = []string{
	string(TypeCalling),
	string(TypeAPI),
	string(TypeLeads),
	string(TypeSystem),
	string(TypeUserManagement),
}

var levelNames = []string{
	string(LevelSystem),
	string(LevelOrganization),
	string(LevelGroup),
	string(LevelUser),
}

type CreateTemplateDTO struct {
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Level      string         `json:"level"`
	TargetRole string         `json:"target_role,omitempty"`
	Config     map[string]any `json:"config"`
	Priority   int            `json:"priority"`
	IsActive   *bool          `json:"is_active,omitempty"`
}

func (d *CreateTemplateDTO) Normalize() {
	d.Name = strings.TrimSpace(d.Name)
	d.Type = strings.ToLower(strings.TrimSpace(d.Type))
	d.Level = strings.ToLower(strings.TrimSpace(d.Level))
	d.TargetRole = strings.TrimSpace(d.TargetRole)
}

func (d CreateTemplateDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("name", d.Name).Required().MaxLength(100)
	v.Field("type", d.Type).Required().OneOf(typeNames...)
	v.Field("level", d.Level).Required().OneOf(levelNames...)
	v.Field("target_role", d.TargetRole).MaxLength(64)
	v.Field("priority", d.Priority).MinInt(0, errors.ErrCodeValidationFailed).MaxInt(1000, errors.ErrCodeValidationFailed)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type UpdateTemplateDTO struct {
	Name       *string        `json:"name,omitempty"`
	TargetRole *string        `json:"target_role,omitempty"`
	Config     map[string]any `json:"config,omitempty"`
	Priority   *int           `json:"priority,omitempty"`
	IsActive   *bool          `json:"is_active,omitempty"`
}

func (d UpdateTemplateDTO) Validate() error {
	v := validation.NewValidator()
	if d.Name != nil {
		v.Field("name", strings.TrimSpace(*d.Name)).Required().MaxLength(100)
	}
	if d.TargetRole != nil {
		v.Field("target_role", *d.TargetRole).MaxLength(64)
	}
	if d.Priority != nil {
		v.Field("priority", *d.Priority).MinInt(0, errors.ErrCodeValidationFailed).MaxInt(1000, errors.ErrCodeValidationFailed)
	}
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type SaveSettingsDTO struct {
	Data map[string]any `json:"data"`
}

type TemplatesResponse struct {
	Templates []*Template `json:"templates"`
}
