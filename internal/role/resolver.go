package role

import (
	"context"
	"log/slog"
	"sync"

	"github.com/frahmantamala/crm-backend/internal"
	"github.com/frahmantamala/crm-backend/internal/permission"
	"github.com/google/uuid"
)

const (
	ReasonSuperAdmin      = "super_admin"
	ReasonAdmin           = "admin"
	ReasonCustomRoleGrant = "custom_role_grant"
	ReasonCustomRoleDeny  = "custom_role_denied"
	ReasonRoleNotFound    = "role_not_found"
	ReasonRoleLookup      = "role_lookup_failed"
	ReasonStaticGrant     = "static_allow_list"
	ReasonStaticDeny      = "static_allow_list_denied"
	ReasonNoRole          = "no_role"
)

// Decision is the outcome of a single authorization check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

func allow(reason string) Decision { return Decision{Allowed: true, Reason: reason} }
func deny(reason string) Decision  { return Decision{Allowed: false, Reason: reason} }

// Lookup is the read-only role access the resolver needs. A missing role is (nil, nil).
type Lookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Role, error)
}

type Resolver struct {
	roles  Lookup
	logger *slog.Logger
}

func NewResolver(roles Lookup, logger *slog.Logger) *Resolver {
	return &Resolver{roles: roles, logger: logger}
}

// Authorize decides whether actor may perform action on resource. It never
// fails: a role that cannot be read is a deny with a reason.
func (r *Resolver) Authorize(ctx context.Context, actor Actor, resource permission.Resource, action permission.Action) Decision {
	c := Classify(actor)
	switch c.Kind {
	case KindSuperAdmin:
		return allow(ReasonSuperAdmin)
	case KindAdmin:
		return allow(ReasonAdmin)
	case KindCustom:
		role, err := r.findRole(ctx, c.CustomRoleID)
		if err != nil {
			r.logger.ErrorContext(ctx, "custom role lookup failed",
				"actor_id", actor.ID, "role_id", c.CustomRoleID, "error", err)
			return deny(ReasonRoleLookup)
		}
		if role == nil {
			r.logger.WarnContext(ctx, "actor references a missing custom role",
				"actor_id", actor.ID, "role_id", c.CustomRoleID)
			return deny(ReasonRoleNotFound)
		}
		if role.Allows(resource, action) {
			return allow(ReasonCustomRoleGrant)
		}
		return deny(ReasonCustomRoleDeny)
	case KindModerator:
		if permission.StaticAllows(permission.RoleModerator, resource, action) {
			return allow(ReasonStaticGrant)
		}
		return deny(ReasonStaticDeny)
	case KindGuest:
		if permission.StaticAllows(permission.RoleGuest, resource, action) {
			return allow(ReasonStaticGrant)
		}
		return deny(ReasonStaticDeny)
	case KindNone:
		return deny(ReasonNoRole)
	}
	return deny(ReasonNoRole)
}

// Require turns a deny into an AppError. A nil actor is Unauthenticated.
func (r *Resolver) Require(ctx context.Context, actor *Actor, resource permission.Resource, action permission.Action) error {
	if actor == nil {
		return internal.ErrUnauthenticated
	}
	d := r.Authorize(ctx, *actor, resource, action)
	if d.Allowed {
		return nil
	}
	r.logger.WarnContext(ctx, "access denied",
		"actor_id", actor.ID,
		"resource", resource,
		"action", action,
		"reason", d.Reason)
	return internal.ErrPermissionDenied.WithDetails(map[string]string{
		"resource": string(resource),
		"action":   string(action),
		"reason":   d.Reason,
	})
}

func (r *Resolver) findRole(ctx context.Context, id uuid.UUID) (*Role, error) {
	cache := cacheFrom(ctx)
	if cache != nil {
		if role, ok := cache.get(id); ok {
			return role, nil
		}
	}
	role, err := r.roles.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cache != nil {
		cache.put(id, role)
	}
	return role, nil
}

type cacheKey struct{}

type lookupCache struct {
	mu    sync.Mutex
	roles map[uuid.UUID]*Role
}

func (c *lookupCache) get(id uuid.UUID) (*Role, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.roles[id]
	return r, ok
}

func (c *lookupCache) put(id uuid.UUID, r *Role) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roles[id] = r
}

// WithLookupCache attaches a role cache scoped to one request. Lookups made
// with the returned context reuse results, including "not found".
func WithLookupCache(ctx context.Context) context.Context {
	if cacheFrom(ctx) != nil {
		return ctx
	}
	return context.WithValue(ctx, cacheKey{}, &lookupCache{roles: make(map[uuid.UUID]*Role)})
}

func cacheFrom(ctx context.Context) *lookupCache {
	c, _ := ctx.Value(cacheKey{}).(*lookupCache)
	return c
}
