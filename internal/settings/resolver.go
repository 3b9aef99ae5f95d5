package settings

import (
	"context"
	"log/slog"

	errors "github.com/frahmantamala/crm-backend/internal"
	settingsDatamodel "github.com/frahmantamala/crm-backend/internal/core/datamodel/settings"
	"github.com/frahmantamala/crm-backend/internal/user"
	"github.com/google/uuid"
)

// TemplateQuery selects the candidates for one layer. CreatedByID nil means any author.
type TemplateQuery struct {
	Type        Type
	Level       Level
	CreatedByID *uuid.UUID
	TargetRole  string
}

// TemplateStore returns the winning active template for a query: highest
// priority, then most recently updated, then highest id. (nil, nil) when none.
type TemplateStore interface {
	Top(ctx context.Context, q TemplateQuery) (*settingsDatamodel.Template, error)
}

// DocumentStore returns (nil, nil) when the document does not exist.
type DocumentStore interface {
	Get(ctx context.Context, category Type, userID *uuid.UUID) (*settingsDatamodel.Settings, error)
}

type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
}

type Sources struct {
	System       *uuid.UUID `json:"system"`
	Organization *uuid.UUID `json:"organization"`
	Group        *uuid.UUID `json:"group"`
	User         bool       `json:"user"`
	// Global is set for the api category when the global document contributed.
	Global bool `json:"global,omitempty"`
}

type Effective struct {
	Config  map[string]any `json:"config"`
	Sources Sources        `json:"sources"`
}

type Resolver struct {
	users     UserLookup
	templates TemplateStore
	documents DocumentStore
	logger    *slog.Logger
}

func NewResolver(users UserLookup, templates TemplateStore, documents DocumentStore, logger *slog.Logger) *Resolver {
	return &Resolver{
		users:     users,
		templates: templates,
		documents: documents,
		logger:    logger,
	}
}

// EffectiveConfig overlays system, organization and group templates and the
// user's own document for t. Missing layers, and layers that fail to load, are
// treated as empty.
func (r *Resolver) EffectiveConfig(ctx context.Context, userID uuid.UUID, t Type) (*Effective, error) {
	if !t.Valid() {
		return nil, errors.NewValidationFieldError("type", "unknown settings type", errors.ErrCodeValidationFailed)
	}
	target, err := r.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	var sources Sources
	targetRole := string(target.SystemRole)

	system := r.topTemplate(ctx, TemplateQuery{Type: t, Level: LevelSystem, TargetRole: targetRole})
	if system != nil {
		sources.System = &system.ID
	}

	var organization *settingsDatamodel.Template
	if admin := parentAdminOf(target); admin != nil {
		organization = r.topTemplate(ctx, TemplateQuery{Type: t, Level: LevelOrganization, CreatedByID: admin, TargetRole: targetRole})
		if organization != nil {
			sources.Organization = &organization.ID
		}
	}

	var group *settingsDatamodel.Template
	if manager := target.EffectiveManagerID(); manager != nil {
		group = r.topTemplate(ctx, TemplateQuery{Type: t, Level: LevelGroup, CreatedByID: manager, TargetRole: targetRole})
		if group != nil {
			sources.Group = &group.ID
		}
	}

	personal := r.document(ctx, t, &target.ID)
	sources.User = personal != nil

	layers := []map[string]any{configOf(system), configOf(organization), configOf(group)}

	if t != TypeAPI {
		layers = append(layers, dataOf(personal))
		return &Effective{Config: Overlay(layers...), Sources: sources}, nil
	}

	global := r.document(ctx, t, nil)
	sources.Global = global != nil
	layers = append(layers, dataOf(global), dataOf(personal))
	merged := Overlay(layers...)
	if list, ok := mergeAIServices(dataOf(global), dataOf(personal)); ok {
		merged[keyAIServices] = list
	}
	return &Effective{Config: merged, Sources: sources}, nil
}

func (r *Resolver) topTemplate(ctx context.Context, q TemplateQuery) *settingsDatamodel.Template {
	tpl, err := r.templates.Top(ctx, q)
	if err != nil {
		r.logger.WarnContext(ctx, "settings template lookup failed, layer skipped",
			"type", q.Type, "level", q.Level, "error", err)
		return nil
	}
	return tpl
}

func (r *Resolver) document(ctx context.Context, t Type, userID *uuid.UUID) *settingsDatamodel.Settings {
	doc, err := r.documents.Get(ctx, t, userID)
	if err != nil {
		r.logger.WarnContext(ctx, "settings document lookup failed, layer skipped",
			"category", t, "global", userID == nil, "error", err)
		return nil
	}
	return doc
}

// parentAdminOf is the recorded parent admin, or the tenant owner when that is someone else.
func parentAdminOf(u *user.User) *uuid.UUID {
	if u.ParentAdminID != nil {
		return u.ParentAdminID
	}
	if u.TenantID != nil && *u.TenantID != u.ID {
		return u.TenantID
	}
	return nil
}

func configOf(t *settingsDatamodel.Template) map[string]any {
	if t == nil {
		return nil
	}
	return t.Config
}

func dataOf(d *settingsDatamodel.Settings) map[string]any {
	if d == nil {
		return nil
	}
	return d.Data
}
