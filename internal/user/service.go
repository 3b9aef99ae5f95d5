package user

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	errors "github.com/frahmantamala/crm-backend/internal"
	"github.com/frahmantamala/crm-backend/internal/core/common/validation"
	userDatamodel "github.com/frahmantamala/crm-backend/internal/core/datamodel/user"
	"github.com/frahmantamala/crm-backend/internal/core/events"
	"github.com/frahmantamala/crm-backend/internal/permission"
	"github.com/frahmantamala/crm-backend/internal/role"
	"github.com/google/uuid"
)

type RepositoryAPI interface {
	// GetByID, GetByEmail and GetByGoogleID return (nil, nil) when nothing matches.
	GetByID(ctx context.Context, id uuid.UUID) (*userDatamodel.User, error)
	GetByEmail(ctx context.Context, email string) (*userDatamodel.User, error)
	GetByGoogleID(ctx context.Context, googleID string) (*userDatamodel.User, error)
	// List returns the users in scope, newest first.
	List(ctx context.Context, scope Scope) ([]*userDatamodel.User, error)
	Create(ctx context.Context, u *userDatamodel.User) error
	Save(ctx context.Context, u *userDatamodel.User) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type Authorizer interface {
	Require(ctx context.Context, actor *role.Actor, resource permission.Resource, action permission.Action) error
}

type PasswordHasher interface {
	Hash(password string) (string, error)
}

// BlobStore keeps uploaded files and returns their public URL.
type BlobStore interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error)
}

type AvatarUpload struct {
	ContentType string
	Size        int64
	Body        io.Reader
}

var avatarExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

type Service struct {
	repo          RepositoryAPI
	authz         Authorizer
	roles         role.Lookup
	hasher        PasswordHasher
	blobs         BlobStore
	publisher     events.Publisher
	logger        *slog.Logger
	maxAvatarSize int64
}

func NewService(repo RepositoryAPI, authz Authorizer, roles role.Lookup, hasher PasswordHasher, blobs BlobStore, publisher events.Publisher, logger *slog.Logger) *Service {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Service{
		repo:          repo,
		authz:         authz,
		roles:         roles,
		hasher:        hasher,
		blobs:         blobs,
		publisher:     publisher,
		logger:        logger,
		maxAvatarSize: 2 << 20,
	}
}

// WithMaxAvatarSize caps avatar uploads in bytes.
func (s *Service) WithMaxAvatarSize(n int64) *Service {
	if n > 0 {
		s.maxAvatarSize = n
	}
	return s
}

// GetByID loads a user without any access check. Callers outside request
// handling (authentication) use it.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to load user", "user_id", id, "error", err)
		return nil, errors.NewInternalError("failed to load user", err)
	}
	if row == nil {
		return nil, errors.ErrUserNotFound
	}
	return FromDataModel(row), nil
}

func (s *Service) ListVisible(ctx context.Context, actor *User) ([]*User, error) {
	return s.list(ctx, actor, VisibleUsers)
}

func (s *Service) ListManageable(ctx context.Context, actor *User) ([]*User, error) {
	return s.list(ctx, actor, ManageableUsers)
}

func (s *Service) list(ctx context.Context, actor *User, scopeOf func(*User) Scope) ([]*User, error) {
	if err := s.require(ctx, actor, permission.ActionView); err != nil {
		return nil, err
	}
	scope := scopeOf(actor)
	out := []*User{}
	if scope.Kind == ScopeNone {
		return out, nil
	}

	rows, err := s.repo.List(ctx, scope)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list users", "actor_id", actor.ID, "error", err)
		return nil, errors.NewInternalError("failed to list users", err)
	}
	for _, row := range rows {
		out = append(out, FromDataModel(row))
	}
	return out, nil
}

// Get returns a user the actor can see. Everyone can read themselves.
func (s *Service) Get(ctx context.Context, actor *User, id uuid.UUID) (*User, error) {
	if actor != nil && actor.ID == id {
		return s.GetByID(ctx, id)
	}
	if err := s.require(ctx, actor, permission.ActionView); err != nil {
		return nil, err
	}
	target, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !VisibleUsers(actor).Contains(target) {
		return nil, errors.ErrUserNotFound
	}
	return target, nil
}

func (s *Service) Create(ctx context.Context, actor *User, dto CreateUserDTO) (*User, error) {
	if err := s.require(ctx, actor, permission.ActionCreate); err != nil {
		return nil, err
	}
	dto.Normalize()
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	if err := s.ensureEmailFree(ctx, dto.Email, uuid.Nil); err != nil {
		return nil, err
	}

	u := &User{
		ID:        uuid.New(),
		Email:     dto.Email,
		Name:      dto.Name,
		IsActive:  true,
		CreatedAt: time.Now(),
	}
	u.UpdatedAt = u.CreatedAt
	creator := actor.ID
	u.CreatedByID = &creator

	if err := s.place(actor, u, dto.TenantID); err != nil {
		return nil, err
	}
	if err := s.assignRole(ctx, actor, u, dto.SystemRole, dto.CustomRoleID); err != nil {
		return nil, err
	}
	if dto.ManagerID != nil {
		if err := s.assignManager(ctx, u, *dto.ManagerID); err != nil {
			return nil, err
		}
	}
	if flag := SanitizeProtectedFlag(actor, dto.IsSuperAdminManaged); flag != nil {
		u.IsSuperAdminManaged = *flag
	}

	hash, err := s.hasher.Hash(dto.Password)
	if err != nil {
		return nil, errors.NewInternalError("failed to hash password", err)
	}
	u.PasswordHash = hash

	row := ToDataModel(u)
	if err := s.repo.Create(ctx, row); err != nil {
		s.logger.ErrorContext(ctx, "failed to create user", "email", u.Email, "error", err)
		return nil, errors.NewInternalError("failed to create user", err)
	}
	created := FromDataModel(row)

	s.logger.InfoContext(ctx, "user created", "user_id", created.ID, "actor_id", actor.ID, "tenant_id", created.TenantID)
	s.publish(ctx, events.EventTypeUserCreated, actor.ID, created.ID, map[string]interface{}{
		"email":       created.Email,
		"system_role": string(created.SystemRole),
	})
	return created, nil
}

func (s *Service) Update(ctx context.Context, actor *User, id uuid.UUID, dto UpdateUserDTO) (*User, error) {
	if err := s.require(ctx, actor, permission.ActionEdit); err != nil {
		return nil, err
	}
	dto.Normalize()
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	target, err := s.loadManageable(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if dto.Email != nil && *dto.Email != target.Email {
		if err := s.ensureEmailFree(ctx, *dto.Email, target.ID); err != nil {
			return nil, err
		}
		target.Email = *dto.Email
	}
	if dto.Name != nil {
		target.Name = *dto.Name
	}
	if (dto.SystemRole != nil && *dto.SystemRole != "") || (dto.CustomRoleID != nil && *dto.CustomRoleID != "") {
		sr := ""
		if dto.SystemRole != nil {
			sr = *dto.SystemRole
		}
		if err := s.assignRole(ctx, actor, target, sr, dto.CustomRoleID); err != nil {
			return nil, err
		}
	}
	if dto.ManagerID != nil {
		if err := s.assignManager(ctx, target, *dto.ManagerID); err != nil {
			return nil, err
		}
	}
	if flag := SanitizeProtectedFlag(actor, dto.IsSuperAdminManaged); flag != nil {
		target.IsSuperAdminManaged = *flag
	}

	if err := s.save(ctx, target); err != nil {
		return nil, err
	}
	s.publish(ctx, events.EventTypeUserUpdated, actor.ID, target.ID, nil)
	return target, nil
}

func (s *Service) Delete(ctx context.Context, actor *User, id uuid.UUID) error {
	if err := s.require(ctx, actor, permission.ActionDelete); err != nil {
		return err
	}
	if actor.ID == id {
		return errors.ErrPermissionDenied.WithDetails(map[string]string{"reason": "cannot delete yourself"})
	}
	target, err := s.loadManageable(ctx, actor, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, target.ID); err != nil {
		s.logger.ErrorContext(ctx, "failed to delete user", "user_id", id, "error", err)
		return errors.NewInternalError("failed to delete user", err)
	}
	s.publish(ctx, events.EventTypeUserDeleted, actor.ID, target.ID, map[string]interface{}{"email": target.Email})
	return nil
}

// SetRestrictions replaces the whole restriction document. Concurrent writers race; the last one wins.
func (s *Service) SetRestrictions(ctx context.Context, actor *User, id uuid.UUID, r Restrictions) (*User, error) {
	if err := s.require(ctx, actor, permission.ActionEdit); err != nil {
		return nil, err
	}
	target, err := s.loadManageable(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	target.Restrictions = Restrictions{
		IsRestricted:   r.IsRestricted,
		CanViewUsers:   copyIDs(r.CanViewUsers),
		CanManageUsers: copyIDs(r.CanManageUsers),
	}
	if err := s.save(ctx, target); err != nil {
		return nil, err
	}
	s.publish(ctx, events.EventTypeUserRestricted, actor.ID, target.ID, map[string]interface{}{
		"is_restricted": r.IsRestricted,
		"view_count":    len(r.CanViewUsers),
		"manage_count":  len(r.CanManageUsers),
	})
	return target, nil
}

func (s *Service) ToggleStatus(ctx context.Context, actor *User, id uuid.UUID) (*User, error) {
	if err := s.require(ctx, actor, permission.ActionEdit); err != nil {
		return nil, err
	}
	if actor.ID == id {
		return nil, errors.ErrPermissionDenied.WithDetails(map[string]string{"reason": "cannot change your own status"})
	}
	target, err := s.loadManageable(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	target.IsActive = !target.IsActive
	if err := s.save(ctx, target); err != nil {
		return nil, err
	}
	s.publish(ctx, events.EventTypeUserStatusToggled, actor.ID, target.ID, map[string]interface{}{"is_active": target.IsActive})
	return target, nil
}

// UpdateAvatar uploads a new picture and rotates the avatar history. Users may
// change their own avatar unless they are super-admin-managed.
func (s *Service) UpdateAvatar(ctx context.Context, actor *User, id uuid.UUID, upload AvatarUpload) (*User, error) {
	if actor == nil {
		return nil, errors.ErrUnauthenticated
	}
	var target *User
	var err error
	if actor.ID == id {
		target, err = s.GetByID(ctx, id)
		if err == nil {
			err = CheckProtection(actor, target)
		}
	} else {
		if err := s.require(ctx, actor, permission.ActionEdit); err != nil {
			return nil, err
		}
		target, err = s.loadManageable(ctx, actor, id)
	}
	if err != nil {
		return nil, err
	}

	ext, ok := avatarExtensions[upload.ContentType]
	if !ok {
		return nil, errors.NewValidationFieldError("avatar", "avatar must be a png, jpeg, webp or gif image", errors.ErrCodeValidationFailed)
	}
	if upload.Size <= 0 || upload.Size > s.maxAvatarSize {
		return nil, errors.NewValidationFieldError("avatar",
			fmt.Sprintf("avatar must be between 1 and %d bytes", s.maxAvatarSize), errors.ErrCodeValidationFailed)
	}
	if s.blobs == nil {
		return nil, errors.NewExternalError("avatar storage is not configured", errors.ErrCodeUploadFailed, nil)
	}

	key := fmt.Sprintf("avatars/%s/%s%s", target.ID, uuid.NewString(), ext)
	url, err := s.blobs.Upload(ctx, key, upload.ContentType, upload.Body, upload.Size)
	if err != nil {
		if appErr, ok := errors.IsAppError(err); ok {
			return nil, appErr
		}
		return nil, errors.NewExternalError("failed to upload avatar", errors.ErrCodeUploadFailed, err)
	}

	target.PushAvatar(url)
	if err := s.save(ctx, target); err != nil {
		return nil, err
	}
	s.publish(ctx, events.EventTypeUserAvatarUpdated, actor.ID, target.ID, map[string]interface{}{"avatar_url": url})
	return target, nil
}

// RecordAvatar sets an externally hosted avatar, e.g. from an identity provider profile.
func (s *Service) RecordAvatar(ctx context.Context, u *User, url string) error {
	before := u.AvatarURL
	u.PushAvatar(url)
	if u.AvatarURL == before {
		return nil
	}
	return s.save(ctx, u)
}

func (s *Service) require(ctx context.Context, actor *User, action permission.Action) error {
	if actor == nil {
		return errors.ErrUnauthenticated
	}
	a := actor.Actor()
	return s.authz.Require(ctx, &a, permission.ResourceUsers, action)
}

// loadManageable applies the protection check before the scope check so a
// protected account reports SuperAdminManaged rather than NotFound.
func (s *Service) loadManageable(ctx context.Context, actor *User, id uuid.UUID) (*User, error) {
	target, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := CheckProtection(actor, target); err != nil {
		s.logger.WarnContext(ctx, "blocked change to protected user", "actor_id", actor.ID, "user_id", id)
		return nil, err
	}
	if ManageableUsers(actor).Contains(target) {
		return target, nil
	}
	if VisibleUsers(actor).Contains(target) {
		return nil, errors.ErrPermissionDenied.WithDetails(map[string]string{"reason": "user is not manageable"})
	}
	return nil, errors.ErrUserNotFound
}

// place decides tenant, parent admin and default manager for a new user.
func (s *Service) place(actor *User, u *User, requestedTenant *string) error {
	switch role.Classify(actor.Actor()).Kind {
	case role.KindSuperAdmin:
		if requestedTenant != nil && *requestedTenant != "" {
			tenant, err := validation.ParseID("tenant_id", *requestedTenant)
			if err != nil {
				return err
			}
			u.TenantID = &tenant
			u.ParentAdminID = &tenant
		}
	case role.KindAdmin:
		tenant := actor.ID
		u.TenantID = &tenant
		u.ParentAdminID = &tenant
	case role.KindCustom:
		u.TenantID = actor.TenantID
		u.ParentAdminID = actor.TenantID
		manager := actor.ID
		u.ManagerID = &manager
	default:
		u.TenantID = actor.TenantID
		u.ParentAdminID = actor.TenantID
	}
	return nil
}

// assignRole applies a system or custom role. Actors can only hand out roles
// below their own; only a SuperAdmin creates, demotes or re-roles Admins and
// SuperAdmins. An Admin is the root of its own tenant, and a demoted Admin
// leaves the tenant it used to own.
func (s *Service) assignRole(ctx context.Context, actor *User, u *User, systemRole string, customRoleID *string) error {
	if isPrivileged(u) && !actor.IsSuperAdmin() {
		return errors.ErrInvalidRoleAssignment.WithDetails(map[string]string{"reason": "only a super admin can change an admin's role"})
	}
	wasAdmin := u.CustomRoleID == nil && u.SystemRole == permission.RoleAdmin

	if customRoleID != nil && *customRoleID != "" {
		id, err := validation.ParseID("custom_role_id", *customRoleID)
		if err != nil {
			return err
		}
		r, err := s.roles.GetByID(ctx, id)
		if err != nil {
			return errors.NewInternalError("failed to load role", err)
		}
		if r == nil {
			return errors.ErrRoleNotFound
		}
		if wasAdmin {
			u.TenantID = nil
			u.ParentAdminID = nil
		}
		if r.IsSystemRole || !r.OwnedBy(u.TenantID) {
			return errors.ErrInvalidRoleAssignment.WithDetails(map[string]string{"reason": "role does not belong to the user's tenant"})
		}
		u.CustomRoleID = &r.ID
		u.SystemRole = ""
		return nil
	}

	target := permission.SystemRole(systemRole)
	if target == "" {
		target = permission.RoleGuest
	}
	if !canAssign(actor, target) {
		return errors.ErrInvalidRoleAssignment.WithDetails(map[string]string{"system_role": string(target)})
	}
	u.SystemRole = target
	u.CustomRoleID = nil
	switch {
	case target == permission.RoleAdmin:
		own := u.ID
		u.TenantID = &own
		u.ParentAdminID = nil
	case wasAdmin:
		u.TenantID = nil
		u.ParentAdminID = nil
	}
	return nil
}

func isPrivileged(u *User) bool {
	return u.CustomRoleID == nil && (u.SystemRole == permission.RoleAdmin || u.SystemRole == permission.RoleSuperAdmin)
}

func canAssign(actor *User, target permission.SystemRole) bool {
	switch role.Classify(actor.Actor()).Kind {
	case role.KindSuperAdmin:
		return true
	case role.KindAdmin:
		return target == permission.RoleModerator || target == permission.RoleGuest
	default:
		return target == permission.RoleGuest
	}
}

func (s *Service) assignManager(ctx context.Context, u *User, raw string) error {
	if raw == "" {
		u.ManagerID = nil
		return nil
	}
	id, err := validation.ParseID("manager_id", raw)
	if err != nil {
		return err
	}
	if id == u.ID {
		return errors.NewValidationFieldError("manager_id", "a user cannot manage themselves", errors.ErrCodeValidationFailed)
	}
	manager, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if u.TenantID == nil || manager.TenantID == nil || *manager.TenantID != *u.TenantID {
		return errors.NewValidationFieldError("manager_id", "manager must belong to the same tenant", errors.ErrCodeValidationFailed)
	}
	u.ManagerID = &manager.ID
	return nil
}

func (s *Service) ensureEmailFree(ctx context.Context, email string, self uuid.UUID) error {
	existing, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return errors.NewInternalError("failed to check email", err)
	}
	if existing != nil && existing.ID != self {
		return errors.ErrDuplicateEmail
	}
	return nil
}

func (s *Service) save(ctx context.Context, u *User) error {
	u.UpdatedAt = time.Now()
	if err := s.repo.Save(ctx, ToDataModel(u)); err != nil {
		s.logger.ErrorContext(ctx, "failed to save user", "user_id", u.ID, "error", err)
		return errors.NewInternalError("failed to save user", err)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, eventType string, actorID, subjectID uuid.UUID, data map[string]interface{}) {
	if err := s.publisher.Publish(ctx, events.NewDomainEvent(eventType, actorID, subjectID, data)); err != nil {
		s.logger.WarnContext(ctx, "failed to publish event", "event_type", eventType, "error", err)
	}
}
