package auth

import (
	"strings"

	"clinicore.org/internal/perm"
)

// RoleKind is the closed set of role names the guard logic dispatches on.
// Unknown catalog roles still work for permission checks; they just carry no
// special treatment.
type RoleKind int

const (
	RoleUnknown RoleKind = iota
	RoleSuperAdmin
	RoleAdmin
	RoleDoctor
	RoleNurse
	RoleReceptionist
)

const (
	RoleNameSuperAdmin   = "SUPER_ADMIN"
	RoleNameAdmin        = "ADMIN"
	RoleNameDoctor       = "DOCTOR"
	RoleNameNurse        = "NURSE"
	RoleNameReceptionist = "RECEPTIONIST"
)

// DefaultRoleName is assigned when registration names no roles.
const DefaultRoleName = RoleNameReceptionist

var kindByName = map[string]RoleKind{
	RoleNameSuperAdmin:   RoleSuperAdmin,
	RoleNameAdmin:        RoleAdmin,
	RoleNameDoctor:       RoleDoctor,
	RoleNameNurse:        RoleNurse,
	RoleNameReceptionist: RoleReceptionist,
}

// KindOf maps a role name to its kind.
func KindOf(name string) RoleKind {
	return kindByName[strings.ToUpper(strings.TrimSpace(name))]
}

// Elevated reports whether the kind may act across all organizations.
func (k RoleKind) Elevated() bool { return k == RoleSuperAdmin }

// SelfServeRole reports whether a role name may be requested through the
// public registration flow. Administrative roles require an authorized grant.
func SelfServeRole(name string) bool {
	switch KindOf(name) {
	case RoleDoctor, RoleNurse, RoleReceptionist:
		return true
	}
	return false
}

// ElevatedIn reports whether any of the role names carries cross-tenant
// authority.
func ElevatedIn(names []string) bool {
	for _, n := range names {
		if KindOf(n).Elevated() {
			return true
		}
	}
	return false
}

// SeedRoles is the data-driven permission table installed at bootstrap.
// Lists are already in normalized form.
func SeedRoles() []Role {
	return []Role{
		{Name: RoleNameSuperAdmin, Description: "Cross-tenant operator", Permissions: []string{perm.Wildcard}},
		{Name: RoleNameAdmin, Description: "Organization administrator", Permissions: []string{
			"appointments:*", "patients:*", "prescriptions:*", "records:*", "roles:*", "identities:*",
		}},
		{Name: RoleNameDoctor, Description: "Treating physician", Permissions: []string{
			"appointments:read", "appointments:write",
			"patients:read", "patients:write",
			"prescriptions:read", "prescriptions:write",
			"records:read", "records:write",
		}},
		{Name: RoleNameNurse, Description: "Nursing staff", Permissions: []string{
			"appointments:read", "patients:read", "patients:write", "records:read",
		}},
		{Name: RoleNameReceptionist, Description: "Front desk", Permissions: []string{
			"appointments:read", "appointments:write", "patients:read",
		}},
	}
}
