package role

import (
	"context"
	"log/slog"
	"time"

	errors "github.com/frahmantamala/crm-backend/internal"
	"github.com/frahmantamala/crm-backend/internal/core/common/validation"
	roleDatamodel "github.com/frahmantamala/crm-backend/internal/core/datamodel/role"
	"github.com/frahmantamala/crm-backend/internal/core/events"
	"github.com/frahmantamala/crm-backend/internal/permission"
	"github.com/google/uuid"
)

type RepositoryAPI interface {
	// GetByID returns (nil, nil) when the role does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*roleDatamodel.Role, error)
	GetByTenantAndName(ctx context.Context, tenantID *uuid.UUID, name string) (*roleDatamodel.Role, error)
	// List returns system roles plus custom roles of tenantID; a nil tenant lists everything.
	List(ctx context.Context, tenantID *uuid.UUID) ([]*roleDatamodel.Role, error)
	Create(ctx context.Context, r *roleDatamodel.Role) error
	Update(ctx context.Context, r *roleDatamodel.Role) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// UsageCounter reports how many users reference a custom role.
type UsageCounter interface {
	CountUsersWithRole(ctx context.Context, roleID uuid.UUID) (int, error)
}

type Service struct {
	repo      RepositoryAPI
	usage     UsageCounter
	publisher events.Publisher
	logger    *slog.Logger
}

func NewService(repo RepositoryAPI, usage UsageCounter, publisher events.Publisher, logger *slog.Logger) *Service {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Service{
		repo:      repo,
		usage:     usage,
		publisher: publisher,
		logger:    logger,
	}
}

// GetByID satisfies Lookup so the resolver can read roles through the service.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Role, error) {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, nil
	}
	return FromDataModel(r), nil
}

func (s *Service) ListRoles(ctx context.Context, actor Actor) ([]*Role, error) {
	var tenant *uuid.UUID
	if Classify(actor).Kind != KindSuperAdmin {
		tenant = TenantOf(actor)
		if tenant == nil {
			tenant = &uuid.Nil
		}
	}

	rows, err := s.repo.List(ctx, tenant)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list roles", "error", err)
		return nil, errors.NewInternalError("failed to list roles", err)
	}

	out := make([]*Role, 0, len(rows))
	for _, row := range rows {
		out = append(out, FromDataModel(row))
	}
	return out, nil
}

func (s *Service) GetRole(ctx context.Context, actor Actor, id uuid.UUID) (*Role, error) {
	r, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.IsSystemRole || Classify(actor).Kind == KindSuperAdmin || r.OwnedBy(TenantOf(actor)) {
		return r, nil
	}
	return nil, errors.ErrRoleNotFound
}

func (s *Service) CreateRole(ctx context.Context, actor Actor, dto CreateRoleDTO) (*Role, error) {
	dto.Normalize()
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	tenant, err := s.creationTenant(actor, dto.TenantID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureNameFree(ctx, tenant, dto.Name, uuid.Nil); err != nil {
		return nil, err
	}

	perms := dto.Permissions.Clone()
	if perms == nil {
		perms = permission.Matrix{}
	}
	row := &roleDatamodel.Role{
		Name:        dto.Name,
		Description: dto.Description,
		TenantID:    tenant,
		Permissions: perms,
	}
	if err := s.repo.Create(ctx, row); err != nil {
		s.logger.ErrorContext(ctx, "failed to create role", "name", dto.Name, "error", err)
		return nil, errors.NewInternalError("failed to create role", err)
	}

	s.logger.InfoContext(ctx, "custom role created", "role_id", row.ID, "tenant_id", tenant)
	s.publish(ctx, events.EventTypeRoleCreated, actor.ID, row.ID, map[string]interface{}{
		"name":      row.Name,
		"tenant_id": tenant.String(),
	})
	return FromDataModel(row), nil
}

func (s *Service) UpdateRole(ctx context.Context, actor Actor, id uuid.UUID, dto UpdateRoleDTO) (*Role, error) {
	dto.Normalize()
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	r, err := s.loadOwned(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	row := ToDataModel(r)
	if dto.Name != nil && *dto.Name != r.Name {
		if err := s.ensureNameFree(ctx, r.TenantID, *dto.Name, r.ID); err != nil {
			return nil, err
		}
		row.Name = *dto.Name
	}
	if dto.Description != nil {
		row.Description = *dto.Description
	}
	if dto.Permissions != nil {
		row.Permissions = dto.Permissions.Clone()
	}
	row.UpdatedAt = time.Now()

	if err := s.repo.Update(ctx, row); err != nil {
		s.logger.ErrorContext(ctx, "failed to update role", "role_id", id, "error", err)
		return nil, errors.NewInternalError("failed to update role", err)
	}

	s.publish(ctx, events.EventTypeRoleUpdated, actor.ID, row.ID, map[string]interface{}{"name": row.Name})
	return FromDataModel(row), nil
}

// DeleteRole refuses while any user still references the role.
func (s *Service) DeleteRole(ctx context.Context, actor Actor, id uuid.UUID) error {
	r, err := s.loadOwned(ctx, actor, id)
	if err != nil {
		return err
	}

	n, err := s.usage.CountUsersWithRole(ctx, r.ID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to count role usage", "role_id", id, "error", err)
		return errors.NewInternalError("failed to check role usage", err)
	}
	if n > 0 {
		return errors.ErrRoleInUse.WithDetails(map[string]int{"user_count": n})
	}

	if err := s.repo.Delete(ctx, r.ID); err != nil {
		s.logger.ErrorContext(ctx, "failed to delete role", "role_id", id, "error", err)
		return errors.NewInternalError("failed to delete role", err)
	}

	s.publish(ctx, events.EventTypeRoleDeleted, actor.ID, r.ID, map[string]interface{}{"name": r.Name})
	return nil
}

// SeedSystemRoles inserts any built-in role document that is missing. Safe to rerun.
func (s *Service) SeedSystemRoles(ctx context.Context) (int, error) {
	created := 0
	for _, doc := range SystemRoleDocuments() {
		existing, err := s.repo.GetByTenantAndName(ctx, nil, doc.Name)
		if err != nil {
			return created, err
		}
		if existing != nil {
			continue
		}
		if err := s.repo.Create(ctx, ToDataModel(doc)); err != nil {
			return created, err
		}
		created++
	}
	s.logger.InfoContext(ctx, "system roles seeded", "created", created)
	return created, nil
}

func (s *Service) creationTenant(actor Actor, requested *string) (*uuid.UUID, error) {
	switch Classify(actor).Kind {
	case KindAdmin:
		id := actor.ID
		return &id, nil
	case KindSuperAdmin:
		if requested == nil || *requested == "" {
			return nil, errors.NewValidationFieldError("tenant_id", "tenant_id is required", errors.ErrCodeValidationFailed)
		}
		id, err := validation.ParseID("tenant_id", *requested)
		if err != nil {
			return nil, err
		}
		return &id, nil
	default:
		return nil, errors.ErrPermissionDenied.WithDetails(map[string]string{
			"reason": "only tenant admins manage custom roles",
		})
	}
}

func (s *Service) ensureNameFree(ctx context.Context, tenant *uuid.UUID, name string, self uuid.UUID) error {
	existing, err := s.repo.GetByTenantAndName(ctx, tenant, name)
	if err != nil {
		return errors.NewInternalError("failed to check role name", err)
	}
	if existing == nil || existing.ID == self {
		return nil
	}
	return errors.ErrDuplicateRoleName.WithDetails(map[string]string{"name": name})
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*Role, error) {
	r, err := s.GetByID(ctx, id)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to load role", "role_id", id, "error", err)
		return nil, errors.NewInternalError("failed to load role", err)
	}
	if r == nil {
		return nil, errors.ErrRoleNotFound
	}
	return r, nil
}

// loadOwned returns a custom role the actor may change: the owning Admin, or SuperAdmin.
func (s *Service) loadOwned(ctx context.Context, actor Actor, id uuid.UUID) (*Role, error) {
	r, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.IsSystemRole {
		return nil, errors.ErrSystemRoleImmutable
	}
	switch Classify(actor).Kind {
	case KindSuperAdmin:
		return r, nil
	case KindAdmin:
		if r.OwnedBy(TenantOf(actor)) {
			return r, nil
		}
		// another tenant's role is indistinguishable from a missing one
		return nil, errors.ErrRoleNotFound
	default:
		return nil, errors.ErrPermissionDenied.WithDetails(map[string]string{
			"reason": "only tenant admins manage custom roles",
		})
	}
}

func (s *Service) publish(ctx context.Context, eventType string, actorID, subjectID uuid.UUID, data map[string]interface{}) {
	if err := s.publisher.Publish(ctx, events.NewDomainEvent(eventType, actorID, subjectID, data)); err != nil {
		s.logger.WarnContext(ctx, "failed to publish event", "event_type", eventType, "error", err)
	}
}
