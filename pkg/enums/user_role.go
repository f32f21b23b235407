package enums

import "strings"

// UserRole is the marketplace role carried in access tokens.
type UserRole string

const (
	UserRoleCustomer UserRole = "CUSTOMER"
	UserRoleSeller   UserRole = "SELLER"
	UserRoleAdmin    UserRole = "ADMIN"
)

var userRoles = values[UserRole]{UserRoleCustomer, UserRoleSeller, UserRoleAdmin}

func (r UserRole) String() string { return string(r) }
func (r UserRole) IsValid() bool  { return userRoles.has(r) }

// ParseUserRole matches case-insensitively.
func ParseUserRole(raw string) (UserRole, error) {
	return userRoles.parse("user role", strings.ToUpper(strings.TrimSpace(raw)))
}
