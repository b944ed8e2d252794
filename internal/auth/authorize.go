package auth

import (
	"context"
	"strings"

	"tt360.co/crm/internal/errs"
)

// Requirement is a capability predicate attached to a route. A nil Requirement marks a
// public route.
type Requirement interface {
	Allows(p Principal) bool
	String() string
}

type authenticated struct{}

func (authenticated) Allows(Principal) bool { return true }
func (authenticated) String() string { return "authenticated" }

type roleRequirement string

func (r roleRequirement) Allows(p Principal) bool { return p.HasRole(string(r)) }
func (r roleRequirement) String() string { return "role " + RoleAuthority(string(r)) }

type permissionRequirement string

func (r permissionRequirement) Allows(p Principal) bool { return p.HasPermission(string(r)) }
func (r permissionRequirement) String() string { return "permission " + string(r) }

// Authenticated only requires a bound principal.
func Authenticated() Requirement { return authenticated{} }

// HasRole requires ROLE_<name>.
func HasRole(name string) Requirement {
	return roleRequirement(strings.ToUpper(strings.TrimSpace(name)))
}

// HasPermission requires the named permission authority.
func HasPermission(name string) Requirement {
	return permissionRequirement(strings.ToUpper(strings.TrimSpace(name)))
}

// Authorize evaluates req against the principal bound to ctx. It is the only place that
// produces unauthenticated and forbidden outcomes.
func Authorize(ctx context.Context, req Requirement) error {
	if req == nil {
		return nil
	}
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		return errs.Unauthenticated("authentication required")
	}
	if !req.Allows(p) {
		return errs.Forbidden("access denied")
	}
	return nil
}
