// Package settings stores settings templates and per-user documents and
// resolves the effective configuration of a user across the hierarchy.
package settings

import (
	"time"

	settingsDatamodel "github.com/frahmantamala/crm-backend/internal/core/datamodel/settings"
	"github.com/frahmantamala/crm-backend/internal/role"
	"github.com/google/uuid"
)

type Type string

const (
	TypeCalling        Type = "calling"
	TypeAPI            Type = "api"
	TypeLeads          Type = "leads"
	TypeSystem         Type = "system"
	TypeUserManagement Type = "usermanagement"
)

func Types() []Type {
	return []Type{TypeCalling, TypeAPI, TypeLeads, TypeSystem, TypeUserManagement}
}

func (t Type) Valid() bool {
	for _, known := range Types() {
		if t == known {
			return true
		}
	}
	return false
}

type Level string

const (
	LevelSystem       Level = "system"
	LevelOrganization Level = "organization"
	LevelGroup        Level = "group"
	LevelUser         Level = "user"
)

func (l Level) Valid() bool {
	switch l {
	case LevelSystem, LevelOrganization, LevelGroup, LevelUser:
		return true
	}
	return false
}

// CanAuthorAt reports whether actor may own a template at level.
func CanAuthorAt(actor role.Actor, level Level) bool {
	kind := role.Classify(actor).Kind
	switch level {
	case LevelSystem:
		return kind == role.KindSuperAdmin
	case LevelOrganization:
		return kind == role.KindAdmin
	case LevelGroup:
		return kind == role.KindCustom || kind == role.KindModerator ||
			kind == role.KindAdmin || kind == role.KindSuperAdmin
	case LevelUser:
		return kind != role.KindNone
	}
	return false
}

type Template struct {
	ID          uuid.UUID      `json:"id"`
	Name        string         `json:"name"`
	Type        Type           `json:"type"`
	Level       Level          `json:"level"`
	CreatedByID uuid.UUID      `json:"created_by_id"`
	TargetRole  string         `json:"target_role,omitempty"`
	Config      map[string]any `json:"config"`
	Priority    int            `json:"priority"`
	IsActive    bool           `json:"is_active"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Document is a per-user settings bag for one category. UserID nil is the global document.
type Document struct {
	ID        uuid.UUID      `json:"id"`
	Category  Type           `json:"category"`
	UserID    *uuid.UUID     `json:"user_id,omitempty"`
	Data      map[string]any `json:"data"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func TemplateFromDataModel(t *settingsDatamodel.Template) *Template {
	cfg := t.Config
	if cfg == nil {
		cfg = map[string]any{}
	}
	return &Template{
		ID:          t.ID,
		Name:        t.Name,
		Type:        Type(t.Type),
		Level:       Level(t.Level),
		CreatedByID: t.CreatedByID,
		TargetRole:  t.TargetRole,
		Config:      cfg,
		Priority:    t.Priority,
		IsActive:    t.IsActive,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func TemplateToDataModel(t *Template) *settingsDatamodel.Template {
	return &settingsDatamodel.Template{
		ID:          t.ID,
		Name:        t.Name,
		Type:        string(t.Type),
		Level:       string(t.Level),
		CreatedByID: t.CreatedByID,
		TargetRole:  t.TargetRole,
		Config:      t.Config,
		Priority:    t.Priority,
		IsActive:    t.IsActive,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func DocumentFromDataModel(s *settingsDatamodel.Settings) *Document {
	data := s.Data
	if data == nil {
		data = map[string]any{}
	}
	return &Document{
		ID:        s.ID,
		Category:  Type(s.Category),
		UserID:    s.UserID,
		Data:      data,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

func DocumentToDataModel(d *Document) *settingsDatamodel.Settings {
	return &settingsDatamodel.Settings{
		ID:        d.ID,
		Category:  string(d.Category),
		UserID:    d.UserID,
		Data:      d.Data,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}
