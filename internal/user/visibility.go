package user

import (
	errors "github.com/frahmantamala/crm-backend/internal"
	"github.com/frahmantamala/crm-backend/internal/role"
	"github.com/google/uuid"
)

type ScopeKind int

const (
	ScopeNone ScopeKind = iota
	ScopeAll
	ScopeIDs
	ScopeTenant
)

// Scope is a predicate over users that a repository can also turn into a query.
// It is computed from the actor on every request and never cached.
type Scope struct {
	Kind     ScopeKind
	IDs      []uuid.UUID
	TenantID uuid.UUID
	// HideProtected drops super-admin-managed users from a tenant scope,
	// except the user whose id is Self.
	HideProtected bool
	Self          uuid.UUID
}

func (s Scope) Contains(u *User) bool {
	switch s.Kind {
	case ScopeAll:
		return true
	case ScopeIDs:
		for _, id := range s.IDs {
			if id == u.ID {
				return true
			}
		}
		return false
	case ScopeTenant:
		if u.TenantID == nil || *u.TenantID != s.TenantID {
			return false
		}
		if s.HideProtected && u.IsSuperAdminManaged && u.ID != s.Self {
			return false
		}
		return true
	}
	return false
}

// VisibleUsers is the set of users actor may read.
func VisibleUsers(actor *User) Scope {
	if actor == nil {
		return Scope{Kind: ScopeNone}
	}
	return scopeFor(actor, actor.Restrictions.CanViewUsers)
}

// ManageableUsers is the set of users actor may change. It follows the same
// rules as VisibleUsers but reads the manage allow-list.
func ManageableUsers(actor *User) Scope {
	if actor == nil {
		return Scope{Kind: ScopeNone}
	}
	return scopeFor(actor, actor.Restrictions.CanManageUsers)
}

func scopeFor(actor *User, allowList []uuid.UUID) Scope {
	c := role.Classify(actor.Actor())
	switch c.Kind {
	case role.KindSuperAdmin:
		return Scope{Kind: ScopeAll}
	case role.KindAdmin:
		return Scope{Kind: ScopeTenant, TenantID: actor.ID, HideProtected: true, Self: actor.ID}
	case role.KindCustom:
		if actor.Restrictions.IsRestricted {
			return idsScope(allowList)
		}
		if actor.TenantID == nil {
			return Scope{Kind: ScopeNone}
		}
		return Scope{Kind: ScopeTenant, TenantID: *actor.TenantID}
	case role.KindModerator:
		if actor.Restrictions.IsRestricted {
			return idsScope(allowList)
		}
		return Scope{Kind: ScopeAll}
	case role.KindGuest, role.KindNone:
		return Scope{Kind: ScopeNone}
	}
	return Scope{Kind: ScopeNone}
}

func idsScope(ids []uuid.UUID) Scope {
	if len(ids) == 0 {
		return Scope{Kind: ScopeNone}
	}
	return Scope{Kind: ScopeIDs, IDs: copyIDs(ids)}
}

// CheckProtection guards every mutation: only a SuperAdmin may change a
// super-admin-managed user.
func CheckProtection(actor *User, target *User) error {
	if target.IsSuperAdminManaged && (actor == nil || !actor.IsSuperAdmin()) {
		return errors.ErrSuperAdminManaged
	}
	return nil
}

// SanitizeProtectedFlag drops an attempt by a non-SuperAdmin to set the
// protected flag. It never errors.
func SanitizeProtectedFlag(actor *User, requested *bool) *bool {
	if requested == nil {
		return nil
	}
	if actor != nil && actor.IsSuperAdmin() {
		return requested
	}
	if *requested {
		return nil
	}
	return requested
}
