package rbac

import (
	"errors"
	"strings"

	"custody/internal/domain"
)

// rolePermissions maps vault roles to the permissions they grant. The admin role
// grants everything.
var rolePermissions = map[string][]string{
	domain.RoleAuditor: {domain.PermissionAuditRead, domain.PermissionAuditVerify},
}

type AuthzError struct {
	Code string
	Err  error
}

func (e *AuthzError) Error() string {
	if e == nil {
		return ""
	}
	return e.Code
}

func (e *AuthzError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

type Authorizer struct {
	adminRole   string
	permissions map[string][]string
}

func NewAuthorizer() *Authorizer {
	return &Authorizer{
		adminRole:   domain.RoleAdmin,
		permissions: rolePermissions,
	}
}

// Require returns nil when actor holds permission through one of its roles.
// Permissions under "admin:" are reserved for the admin role.
func (a *Authorizer) Require(actor domain.Actor, permission string) error {
	if actor.ID == "" {
		return domain.ErrUnauthorized
	}
	if permission == "" {
		return nil
	}
	if actor.HasRole(a.adminRole) {
		return nil
	}
	if strings.HasPrefix(permission, "admin:") {
		return &AuthzError{Code: "MISSING_ROLE", Err: domain.ErrForbidden}
	}
	for _, role := range actor.Roles {
		for _, granted := range a.permissions[role] {
			if granted == permission {
				return nil
			}
		}
	}
	return &AuthzError{Code: "MISSING_PERMISSION", Err: domain.ErrForbidden}
}

func IsAuthzError(err error) (*AuthzError, bool) {
	var authz *AuthzError
	if errors.As(err, &authz) {
		return authz, true
	}
	return nil, false
}
