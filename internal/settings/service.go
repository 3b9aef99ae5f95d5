package settings

import (
	"context"
	"log/slog"
	"strings"
	"time"

	errors "github.com/frahmantamala/crm-backend/internal"
	settingsDatamodel "github.com/frahmantamala/crm-backend/internal/core/datamodel/settings"
	"github.com/frahmantamala/crm-backend/internal/core/events"
	"github.com/frahmantamala/crm-backend/internal/permission"
	"github.com/frahmantamala/crm-backend/internal/role"
	"github.com/frahmantamala/crm-backend/internal/user"
	"github.com/google/uuid"
)

// TemplateFilter narrows ListTemplates. A nil AuthorID with IncludeSystem false lists everything.
type TemplateFilter struct {
	Type          Type
	AuthorID      *uuid.UUID
	IncludeSystem bool
}

type TemplateRepository interface {
	TemplateStore
	GetByID(ctx context.Context, id uuid.UUID) (*settingsDatamodel.Template, error)
	GetByAuthorTypeName(ctx context.Context, authorID uuid.UUID, t Type, name string) (*settingsDatamodel.Template, error)
	List(ctx context.Context, filter TemplateFilter) ([]*settingsDatamodel.Template, error)
	Create(ctx context.Context, t *settingsDatamodel.Template) error
	Save(ctx context.Context, t *settingsDatamodel.Template) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type DocumentRepository interface {
	DocumentStore
	// Upsert replaces the whole document for (category, user). The last writer wins.
	Upsert(ctx context.Context, doc *settingsDatamodel.Settings) error
}

type Service struct {
	templates TemplateRepository
	documents DocumentRepository
	resolver  *Resolver
	users     UserLookup
	authz     user.Authorizer
	publisher events.Publisher
	logger    *slog.Logger
}

func NewService(templates TemplateRepository, documents DocumentRepository, users UserLookup, authz user.Authorizer, publisher events.Publisher, logger *slog.Logger) *Service {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Service{
		templates: templates,
		documents: documents,
		resolver:  NewResolver(users, templates, documents, logger),
		users:     users,
		authz:     authz,
		publisher: publisher,
		logger:    logger,
	}
}

func (s *Service) Resolver() *Resolver {
	return s.resolver
}

// GetEffectiveConfig resolves settings for userID. Reading your own needs no
// permission; anyone else must be visible and the actor needs settings:view.
func (s *Service) GetEffectiveConfig(ctx context.Context, actor *user.User, userID uuid.UUID, t Type) (*Effective, error) {
	if actor == nil {
		return nil, errors.ErrUnauthenticated
	}
	if actor.ID != userID {
		a := actor.Actor()
		if err := s.authz.Require(ctx, &a, permission.ResourceSettings, permission.ActionView); err != nil {
			return nil, err
		}
		target, err := s.users.GetByID(ctx, userID)
		if err != nil {
			return nil, err
		}
		if !user.VisibleUsers(actor).Contains(target) {
			return nil, errors.ErrUserNotFound
		}
	}
	return s.resolver.EffectiveConfig(ctx, userID, t)
}

func (s *Service) ListTemplates(ctx context.Context, actor *user.User, t Type) ([]*Template, error) {
	if actor == nil {
		return nil, errors.ErrUnauthenticated
	}
	if t != "" && !t.Valid() {
		return nil, errors.NewValidationFieldError("type", "unknown settings type", errors.ErrCodeValidationFailed)
	}

	filter := TemplateFilter{Type: t}
	if !actor.IsSuperAdmin() {
		filter.AuthorID = &actor.ID
		filter.IncludeSystem = true
	}
	rows, err := s.templates.List(ctx, filter)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list templates", "error", err)
		return nil, errors.NewInternalError("failed to list templates", err)
	}

	out := make([]*Template, 0, len(rows))
	for _, row := range rows {
		out = append(out, TemplateFromDataModel(row))
	}
	return out, nil
}

func (s *Service) CreateTemplate(ctx context.Context, actor *user.User, dto CreateTemplateDTO) (*Template, error) {
	if actor == nil {
		return nil, errors.ErrUnauthenticated
	}
	dto.Normalize()
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	level := Level(dto.Level)
	if !CanAuthorAt(actor.Actor(), level) {
		return nil, errors.ErrInvalidLevelAuthor.WithDetails(map[string]string{
			"level": dto.Level,
			"role":  role.Classify(actor.Actor()).Kind.String(),
		})
	}
	t := Type(dto.Type)
	if err := s.ensureNameFree(ctx, actor.ID, t, dto.Name, uuid.Nil); err != nil {
		return nil, err
	}

	active := true
	if dto.IsActive != nil {
		active = *dto.IsActive
	}
	cfg := dto.Config
	if cfg == nil {
		cfg = map[string]any{}
	}
	row := TemplateToDataModel(&Template{
		Name:        dto.Name,
		Type:        t,
		Level:       level,
		CreatedByID: actor.ID,
		TargetRole:  dto.TargetRole,
		Config:      cfg,
		Priority:    dto.Priority,
		IsActive:    active,
	})
	if err := s.templates.Create(ctx, row); err != nil {
		s.logger.ErrorContext(ctx, "failed to create template", "name", dto.Name, "error", err)
		return nil, errors.NewInternalError("failed to create template", err)
	}

	s.publish(ctx, events.EventTypeTemplateCreated, actor.ID, row.ID, map[string]interface{}{
		"type":  row.Type,
		"level": row.Level,
	})
	return TemplateFromDataModel(row), nil
}

func (s *Service) UpdateTemplate(ctx context.Context, actor *user.User, id uuid.UUID, dto UpdateTemplateDTO) (*Template, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	tpl, err := s.loadEditable(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if dto.Name != nil {
		name := strings.TrimSpace(*dto.Name)
		if name != tpl.Name {
			if err := s.ensureNameFree(ctx, tpl.CreatedByID, Type(tpl.Type), name, tpl.ID); err != nil {
				return nil, err
			}
			tpl.Name = name
		}
	}
	if dto.TargetRole != nil {
		tpl.TargetRole = strings.TrimSpace(*dto.TargetRole)
	}
	if dto.Config != nil {
		tpl.Config = dto.Config
	}
	if dto.Priority != nil {
		tpl.Priority = *dto.Priority
	}
	if dto.IsActive != nil {
		tpl.IsActive = *dto.IsActive
	}
	tpl.UpdatedAt = time.Now()

	if err := s.templates.Save(ctx, tpl); err != nil {
		s.logger.ErrorContext(ctx, "failed to update template", "template_id", id, "error", err)
		return nil, errors.NewInternalError("failed to update template", err)
	}
	s.publish(ctx, events.EventTypeTemplateUpdated, actor.ID, tpl.ID, nil)
	return TemplateFromDataModel(tpl), nil
}

func (s *Service) DeleteTemplate(ctx context.Context, actor *user.User, id uuid.UUID) error {
	tpl, err := s.loadEditable(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.templates.Delete(ctx, tpl.ID); err != nil {
		s.logger.ErrorContext(ctx, "failed to delete template", "template_id", id, "error", err)
		return errors.NewInternalError("failed to delete template", err)
	}
	s.publish(ctx, events.EventTypeTemplateDeleted, actor.ID, tpl.ID, map[string]interface{}{"name": tpl.Name})
	return nil
}

// GetSettings returns the actor's own document, or an empty one.
func (s *Service) GetSettings(ctx context.Context, actor *user.User, category Type) (*Document, error) {
	if actor == nil {
		return nil, errors.ErrUnauthenticated
	}
	return s.getDocument(ctx, category, &actor.ID)
}

// GetGlobalSettings requires settings:view.
func (s *Service) GetGlobalSettings(ctx context.Context, actor *user.User, category Type) (*Document, error) {
	if actor == nil {
		return nil, errors.ErrUnauthenticated
	}
	a := actor.Actor()
	if err := s.authz.Require(ctx, &a, permission.ResourceSettings, permission.ActionView); err != nil {
		return nil, err
	}
	return s.getDocument(ctx, category, nil)
}

func (s *Service) SaveSettings(ctx context.Context, actor *user.User, category Type, data map[string]any) (*Document, error) {
	if actor == nil {
		return nil, errors.ErrUnauthenticated
	}
	return s.saveDocument(ctx, actor, category, &actor.ID, data)
}

// SaveGlobalSettings writes the document every user inherits from. SuperAdmin only.
func (s *Service) SaveGlobalSettings(ctx context.Context, actor *user.User, category Type, data map[string]any) (*Document, error) {
	if actor == nil {
		return nil, errors.ErrUnauthenticated
	}
	if !actor.IsSuperAdmin() {
		return nil, errors.ErrPermissionDenied.WithDetails(map[string]string{"reason": "only a super admin edits global settings"})
	}
	return s.saveDocument(ctx, actor, category, nil, data)
}

func (s *Service) getDocument(ctx context.Context, category Type, userID *uuid.UUID) (*Document, error) {
	if !category.Valid() {
		return nil, errors.NewValidationFieldError("category", "unknown settings category", errors.ErrCodeValidationFailed)
	}
	row, err := s.documents.Get(ctx, category, userID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to load settings", "category", category, "error", err)
		return nil, errors.NewInternalError("failed to load settings", err)
	}
	if row == nil {
		return &Document{Category: category, UserID: userID, Data: map[string]any{}}, nil
	}
	return DocumentFromDataModel(row), nil
}

func (s *Service) saveDocument(ctx context.Context, actor *user.User, category Type, userID *uuid.UUID, data map[string]any) (*Document, error) {
	if !category.Valid() {
		return nil, errors.NewValidationFieldError("category", "unknown settings category", errors.ErrCodeValidationFailed)
	}
	if data == nil {
		data = map[string]any{}
	}
	row := DocumentToDataModel(&Document{Category: category, UserID: userID, Data: data})
	if err := s.documents.Upsert(ctx, row); err != nil {
		s.logger.ErrorContext(ctx, "failed to save settings", "category", category, "error", err)
		return nil, errors.NewInternalError("failed to save settings", err)
	}

	s.publish(ctx, events.EventTypeSettingsUpdated, actor.ID, row.ID, map[string]interface{}{
		"category": string(category),
		"global":   userID == nil,
	})
	return DocumentFromDataModel(row), nil
}

// loadEditable returns a template the actor authored, or any template for a SuperAdmin.
func (s *Service) loadEditable(ctx context.Context, actor *user.User, id uuid.UUID) (*settingsDatamodel.Template, error) {
	if actor == nil {
		return nil, errors.ErrUnauthenticated
	}
	tpl, err := s.templates.GetByID(ctx, id)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to load template", "template_id", id, "error", err)
		return nil, errors.NewInternalError("failed to load template", err)
	}
	if tpl == nil {
		return nil, errors.ErrTemplateNotFound
	}
	if tpl.CreatedByID != actor.ID && !actor.IsSuperAdmin() {
		return nil, errors.ErrPermissionDenied.WithDetails(map[string]string{"reason": "only the author edits a template"})
	}
	return tpl, nil
}

func (s *Service) ensureNameFree(ctx context.Context, author uuid.UUID, t Type, name string, self uuid.UUID) error {
	existing, err := s.templates.GetByAuthorTypeName(ctx, author, t, name)
	if err != nil {
		return errors.NewInternalError("failed to check template name", err)
	}
	if existing != nil && existing.ID != self {
		return errors.ErrDuplicateTemplateName.WithDetails(map[string]string{"name": name, "type": string(t)})
	}
	return nil
}

func (s *Service) publish(ctx context.Context, eventType string, actorID, subjectID uuid.UUID, data map[string]interface{}) {
	if err := s.publisher.Publish(ctx, events.NewDomainEvent(eventType, actorID, subjectID, data)); err != nil {
		s.logger.WarnContext(ctx, "failed to publish event", "event_type", eventType, "error", err)
	}
}
