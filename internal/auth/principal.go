package auth

import (
	"context"
	"sort"
	"strings"
)

// RolePrefix marks role authorities.
const RolePrefix = "ROLE_"

// Principal is the authenticated identity bound to a request.
type Principal struct {
	UserID      int64
	Email       string
	Name        string
	Role        string
	Authorities []string
}

// NewPrincipal derives the authority set of a user: ROLE_<NAME> for its role plus one
// authority per permission granted to that role.
func NewPrincipal(u *User) Principal {
	p := Principal{UserID: u.ID, Email: u.Email, Name: u.Name}
	if u.Role == nil {
		return p
	}
	p.Role = strings.ToUpper(strings.TrimSpace(u.Role.Name))
	seen := make(map[string]struct{}, len(u.Role.Permissions)+1)
	if p.Role != "" {
		p.Authorities = append(p.Authorities, RoleAuthority(p.Role))
		seen[RoleAuthority(p.Role)] = struct{}{}
	}
	perms := make([]string, 0, len(u.Role.Permissions))
	for _, perm := range u.Role.Permissions {
		name := strings.ToUpper(strings.TrimSpace(perm.Name))
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		perms = append(perms, name)
	}
	sort.Strings(perms)
	p.Authorities = append(p.Authorities, perms...)
	return p
}

// RoleAuthority returns the authority string for a role name.
func RoleAuthority(role string) string {
	return RolePrefix + strings.ToUpper(strings.TrimSpace(role))
}

func (p Principal) HasAuthority(authority string) bool {
	for _, a := range p.Authorities {
		if a == authority {
			return true
		}
	}
	return false
}

func (p Principal) HasRole(role string) bool {
	return p.HasAuthority(RoleAuthority(role))
}

// HasPermission ignores ROLE_ authorities so a permission can never be satisfied by a role name.
func (p Principal) HasPermission(name string) bool {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "" || strings.HasPrefix(name, RolePrefix) {
		return false
	}
	return p.HasAuthority(name)
}

// Roles lists the role authorities only.
func (p Principal) Roles() []string {
	out := make([]string, 0, 1)
	for _, a := range p.Authorities {
		if strings.HasPrefix(a, RolePrefix) {
			out = append(out, a)
		}
	}
	return out
}

type principalKey struct{}
type bearerKey struct{}

// ContextWithPrincipal binds the principal to the request context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the bound principal, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// ContextWithToken keeps the raw bearer token next to the principal, for logout.
func ContextWithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, bearerKey{}, token)
}

func TokenFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	tok, ok := ctx.Value(bearerKey{}).(string)
	return tok, ok && tok != ""
}
