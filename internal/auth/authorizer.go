// internal/auth/authorizer.go
// Role checks for operations reserved to supervisors

package auth

import "strings"

// RoleAuthorizer decides whether a role carries elevated privileges
type RoleAuthorizer struct {
	elevated map[string]struct{}
}

// NewRoleAuthorizer creates an authorizer treating the given roles as elevated.
// Role names are compared case-insensitively.
func NewRoleAuthorizer(elevatedRoles []string) *RoleAuthorizer {
	a := &RoleAuthorizer{elevated: make(map[string]struct{}, len(elevatedRoles))}
	for _, role := range elevatedRoles {
		a.elevated[strings.ToLower(role)] = struct{}{}
	}
	return a
}

// HasElevatedRole reports whether the caller may act on resources they do not own
func (a *RoleAuthorizer) HasElevatedRole(id Identity) bool {
	if a == nil {
		return false
	}
	_, ok := a.elevated[strings.ToLower(id.Role)]
	return ok
}
