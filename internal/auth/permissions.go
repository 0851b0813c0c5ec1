package auth

import "strings"

// Permission catalog. Names follow the "<resource>:<action>" convention.
const (
	PermAccountsRead   = "accounts:read"
	PermAccountsWrite  = "accounts:write"
	PermTransfersRead  = "transfers:read"
	PermTransfersWrite = "transfers:write"
	PermAnalyticsRead  = "analytics:read"
	PermKeysManage     = "keys:manage"
	PermAdminUsers     = "admin:users"
)

// BuiltinPermissions are ensured to exist at startup.
var BuiltinPermissions = []Permission{
	{Name: PermAccountsRead, Active: true},
	{Name: PermAccountsWrite, Active: true},
	{Name: PermTransfersRead, Active: true},
	{Name: PermTransfersWrite, Active: true},
	{Name: PermAnalyticsRead, Active: true},
	{Name: PermKeysManage, Active: true},
	{Name: PermAdminUsers, Active: true},
}

// basicOperations is the fixed allow-list of permissions that
// session-authenticated users may exercise without explicit grants. API keys
// get no such leniency.
var basicOperations = map[string]struct{}{
	PermAccountsRead:   {},
	PermAccountsWrite:  {},
	PermTransfersRead:  {},
	PermTransfersWrite: {},
}

// ResolvePermissions computes the effective permission set for an identity
// whose roles and permissions are already materialized. Only active roles
// contribute, and within them only active permissions; duplicates across
// roles collapse.
func ResolvePermissions(identity *Identity) map[string]struct{} {
	perms := make(map[string]struct{})
	if identity == nil {
		return perms
	}
	for _, role := range identity.Roles {
		if !role.Active {
			continue
		}
		for _, p := range role.Permissions {
			if !p.Active {
				continue
			}
			perms[p.Name] = struct{}{}
		}
	}
	return perms
}

// HasPermission reports whether the identity holds the named permission
// through any active role.
func HasPermission(identity *Identity, name string) bool {
	if identity == nil {
		return false
	}
	for _, role := range identity.Roles {
		if !role.Active {
			continue
		}
		for _, p := range role.Permissions {
			if p.Active && p.Name == name {
				return true
			}
		}
	}
	return false
}

// HasRole reports whether the identity holds an active role with the given
// name (case-insensitive).
func HasRole(identity *Identity, roleName string) bool {
	if identity == nil {
		return false
	}
	for _, role := range identity.Roles {
		if role.Active && strings.EqualFold(role.Name, roleName) {
			return true
		}
	}
	return false
}

// allBasic reports whether every requested permission sits inside the basic
// operations allow-list. The check is all-or-nothing against the requested
// set: one permission outside the list disqualifies the whole request.
func allBasic(required []string) bool {
	if len(required) == 0 {
		return false
	}
	for _, name := range required {
		if _, ok := basicOperations[name]; !ok {
			return false
		}
	}
	return true
}

// missingPermissions returns the required names absent from held, preserving
// request order.
func missingPermissions(held map[string]struct{}, required []string) []string {
	var missing []string
	for _, name := range required {
		if _, ok := held[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}
