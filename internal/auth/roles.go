package auth

// Role is the coarse permission level carried in a token. Roles are
// strictly ordered: admin implies operator, operator implies viewer.
type Role string

const (
	RoleViewer   Role = "viewer"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

var roleOrder = map[Role]int{
	RoleViewer:   1,
	RoleOperator: 2,
	RoleAdmin:    3,
}

// NormalizeRole maps a raw claim value onto a known role.
func NormalizeRole(value string) (Role, bool) {
	role := Role(value)
	if _, ok := roleOrder[role]; !ok {
		return "", false
	}
	return role, true
}

// RoleAtLeast reports whether role meets the required level.
func RoleAtLeast(role, required Role) bool {
	return roleOrder[role] >= roleOrder[required]
}
