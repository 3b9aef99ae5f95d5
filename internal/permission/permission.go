// Package permission holds the static capability tables of the built-in
// roles and the boolean matrix stored on custom roles.
package permission

import "sort"

type Resource string

const (
	ResourceLeads     Resource = "leads"
	ResourceCalls     Resource = "calls"
	ResourceUsers     Resource = "users"
	ResourceReports   Resource = "reports"
	ResourceSettings  Resource = "settings"
	ResourceDashboard Resource = "dashboard"
)

var resources = []Resource{
	ResourceLeads,
	ResourceCalls,
	ResourceUsers,
	ResourceReports,
	ResourceSettings,
	ResourceDashboard,
}

// Resources lists every known resource in a stable order.
func Resources() []Resource {
	out := make([]Resource, len(resources))
	copy(out, resources)
	return out
}

func (r Resource) Valid() bool {
	for _, known := range resources {
		if r == known {
			return true
		}
	}
	return false
}

// Action is open ended: custom roles may carry extras such as export or assign.
type Action string

const (
	ActionView   Action = "view"
	ActionCreate Action = "create"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
	ActionExport Action = "export"
	ActionAssign Action = "assign"
)

type SystemRole string

const (
	RoleSuperAdmin SystemRole = "SuperAdmin"
	RoleAdmin      SystemRole = "Admin"
	RoleModerator  SystemRole = "Moderator"
	RoleGuest      SystemRole = "Guest"
)

func (r SystemRole) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleModerator, RoleGuest:
		return true
	}
	return false
}

// SystemRoles lists the built-in roles from most to least privileged.
func SystemRoles() []SystemRole {
	return []SystemRole{RoleSuperAdmin, RoleAdmin, RoleModerator, RoleGuest}
}

// Matrix maps resource to action to an explicit grant. Only a stored true allows.
type Matrix map[Resource]map[Action]bool

func (m Matrix) Allows(resource Resource, action Action) bool {
	if m == nil {
		return false
	}
	actions, ok := m[resource]
	if !ok {
		return false
	}
	return actions[action]
}

// Clone returns a deep copy.
func (m Matrix) Clone() Matrix {
	if m == nil {
		return nil
	}
	out := make(Matrix, len(m))
	for res, actions := range m {
		cp := make(map[Action]bool, len(actions))
		for a, v := range actions {
			cp[a] = v
		}
		out[res] = cp
	}
	return out
}

// UnknownResources returns the keys of m that are not known resources, sorted.
func (m Matrix) UnknownResources() []string {
	var out []string
	for res := range m {
		if !res.Valid() {
			out = append(out, string(res))
		}
	}
	sort.Strings(out)
	return out
}

type allowList map[Resource][]Action

func (l allowList) matrix() Matrix {
	out := make(Matrix, len(l))
	for res, actions := range l {
		set := make(map[Action]bool, len(actions))
		for _, a := range actions {
			set[a] = true
		}
		out[res] = set
	}
	return out
}

var moderatorAllowList = allowList{
	ResourceLeads:     {ActionView, ActionCreate, ActionEdit},
	ResourceCalls:     {ActionView, ActionCreate},
	ResourceDashboard: {ActionView},
}

var guestAllowList = allowList{
	ResourceLeads:     {ActionView},
	ResourceCalls:     {ActionView},
	ResourceDashboard: {ActionView},
}

// AllowList returns a fresh copy of the static table for roles that have one.
// SuperAdmin and Admin have no table because they are never restricted.
func AllowList(role SystemRole) (Matrix, bool) {
	switch role {
	case RoleModerator:
		return moderatorAllowList.matrix(), true
	case RoleGuest:
		return guestAllowList.matrix(), true
	}
	return nil, false
}

// StaticAllows answers a lookup against the static table of role without copying it.
func StaticAllows(role SystemRole, resource Resource, action Action) bool {
	var list allowList
	switch role {
	case RoleModerator:
		list = moderatorAllowList
	case RoleGuest:
		list = guestAllowList
	default:
		return false
	}
	for _, a := range list[resource] {
		if a == action {
			return true
		}
	}
	return false
}
