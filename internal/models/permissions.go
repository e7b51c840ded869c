package models

// DefaultAdminPermission is the Auth0 RBAC permission that grants access to admin routes
const DefaultAdminPermission = "access:admin"

// HasPermission checks if a permissions array contains a required permission
func HasPermission(permissions []string, required string) bool {
	if required == "" {
		return false
	}
	for _, permission := range permissions {
		if permission == required {
			return true
		}
	}
	return false
}

// NormalizePermissions removes blanks and duplicates while keeping first-seen order
func NormalizePermissions(permissions []string) []string {
	seen := make(map[string]struct{}, len(permissions))
	out := make([]string, 0, len(permissions))
	for _, p := range permissions {
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
