package domain

import (
	"sort"
	"strings"
)

// ============================================================
// Roles & permissions
// ============================================================

// Role is a principal's position in the closed role enumeration.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleManager    Role = "manager"
	RoleSales      Role = "sales"
	RoleDesigner   Role = "designer"
	RoleProduction Role = "production"
	RoleStaff      Role = "staff"
)

// Roles lists the known roles.
var Roles = []Role{RoleAdmin, RoleManager, RoleSales, RoleDesigner, RoleProduction, RoleStaff}

// Permission is a named capability checked before a mutating operation.
type Permission string

const (
	PermViewLeads      Permission = "leads.view"
	PermCreateLeads    Permission = "leads.create"
	PermClaimLeads     Permission = "leads.claim"
	PermEditLeads      Permission = "leads.edit"
	PermLogContact     Permission = "leads.contact"
	PermSubmitDesign   Permission = "design.submit"
	PermViewOrders     Permission = "orders.view"
	PermEditOrders     Permission = "orders.edit"
	PermManageProducts Permission = "products.manage"
	PermManageEvents   Permission = "events.manage"
	PermManageUsers    Permission = "users.manage"
	PermViewReports    Permission = "reports.view"
)

// AllPermissions is the full permission universe.
var AllPermissions = []Permission{
	PermViewLeads, PermCreateLeads, PermClaimLeads, PermEditLeads, PermLogContact,
	PermSubmitDesign, PermViewOrders, PermEditOrders, PermManageProducts,
	PermManageEvents, PermManageUsers, PermViewReports,
}

var rolePermissions = map[Role][]Permission{
	RoleManager: {
		PermViewLeads, PermCreateLeads, PermClaimLeads, PermEditLeads, PermLogContact,
		PermSubmitDesign, PermViewOrders, PermEditOrders, PermManageProducts,
		PermManageEvents, PermViewReports,
	},
	RoleSales: {
		PermViewLeads, PermCreateLeads, PermClaimLeads, PermEditLeads, PermLogContact,
		PermViewOrders, PermEditOrders,
	},
	RoleDesigner: {
		PermViewLeads, PermSubmitDesign, PermViewOrders,
	},
	RoleProduction: {
		PermViewOrders, PermEditOrders, PermManageProducts,
	},
	RoleStaff: {
		PermManageEvents,
	},
}

// StepPermission maps each progress step to the capability required to change it.
var StepPermission = map[ProgressStep]Permission{
	StepContactComplete:   PermEditLeads,
	StepItemsConfirmed:    PermEditLeads,
	StepSubmittedToDesign: PermSubmitDesign,
}

// PermissionSet is a resolved set of capabilities.
type PermissionSet map[Permission]struct{}

// NewPermissionSet builds a set from a list.
func NewPermissionSet(perms ...Permission) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// Has reports membership.
func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// Sorted returns the set as a stable slice.
func (s PermissionSet) Sorted() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ResolvePermissions returns the effective permissions of a principal.
// Admin always gets the full universe. A non-empty custom list replaces the role defaults
// entirely. Unknown roles resolve to an empty set.
func ResolvePermissions(role Role, custom []Permission) PermissionSet {
	if role == RoleAdmin {
		return NewPermissionSet(AllPermissions...)
	}
	if len(custom) > 0 {
		return NewPermissionSet(custom...)
	}
	return NewPermissionSet(rolePermissions[role]...)
}

// HasPermission reports whether role/custom grants required.
func HasPermission(role Role, custom []Permission, required Permission) bool {
	if role == RoleAdmin {
		return true
	}
	return ResolvePermissions(role, custom).Has(required)
}

// DefaultPermissions returns the static default set of a role.
func DefaultPermissions(role Role) PermissionSet {
	return ResolvePermissions(role, nil)
}

// ParseRole normalises a raw role string. Unknown values are returned as-is so they resolve
// to an empty permission set rather than failing.
func ParseRole(raw string) Role {
	return Role(strings.ToLower(strings.TrimSpace(raw)))
}

// ============================================================
// Principals
// ============================================================

// Principal is an authenticated actor.
type Principal struct {
	ID                int64        `json:"id"`
	Email             string       `json:"email"`
	Name              string       `json:"name"`
	Role              Role         `json:"role"`
	CustomPermissions []Permission `json:"customPermissions,omitempty"`
	PasswordHash      string       `json:"-"`
	Active            bool         `json:"active"`
}

// Permissions resolves the principal's effective permissions.
func (p *Principal) Permissions() PermissionSet {
	if p == nil {
		return PermissionSet{}
	}
	return ResolvePermissions(p.Role, p.CustomPermissions)
}

// Can reports whether the principal holds required.
func (p *Principal) Can(required Permission) bool {
	if p == nil {
		return false
	}
	return HasPermission(p.Role, p.CustomPermissions, required)
}

// NewPrincipal is the creation payload for a principal.
type NewPrincipal struct {
	Email             string
	Name              string
	Role              Role
	CustomPermissions []Permission
	PasswordHash      string
}
