package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"tt360.co/crm/internal/errs"
	"tt360.co/crm/internal/query"
)

// RBACStore persists users, roles and permissions.
type RBACStore interface {
	PrincipalStore

	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id int64) (*User, error)
	ListUsers(ctx context.Context, page query.Page) ([]User, error)
	UpdateUser(ctx context.Context, id int64, upd UserUpdate) error
	DeleteUser(ctx context.Context, id int64) error
	EmailExists(ctx context.Context, email string) (bool, error)

	CreateRole(ctx context.Context, r *Role) error
	GetRole(ctx context.Context, id int64) (*Role, error)
	FindRoleByName(ctx context.Context, name string) (*Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	UpdateRole(ctx context.Context, id int64, upd RoleUpdate) error
	DeleteRole(ctx context.Context, id int64) error
	SetRolePermissions(ctx context.Context, roleID int64, names []string) error

	CreatePermission(ctx context.Context, p *Permission) error
	ListPermissions(ctx context.Context) ([]Permission, error)
	DeletePermission(ctx context.Context, id int64) error
	EnsurePermissions(ctx context.Context, perms []Permission) error
}

// NewUser is the input for RBACService.CreateUser.
type NewUser struct {
	Name     string
	Email    string
	Password string
	RoleID   *int64
	Active   *bool
}

var permissionName = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

// RBACService administers users, roles and permissions.
type RBACService struct {
	store RBACStore
}

func NewRBACService(store RBACStore) (*RBACService, error) {
	if store == nil {
		return nil, errors.New("rbac store is required")
	}
	return &RBACService{store: store}, nil
}

func (s *RBACService) CreateUser(ctx context.Context, in NewUser) (*User, error) {
	u := &User{
		Name:   strings.TrimSpace(in.Name),
		Email:  NormalizeEmail(in.Email),
		Active: true,
		RoleID: in.RoleID,
	}
	if in.Active != nil {
		u.Active = *in.Active
	}
	var fields []string
	if u.Name == "" {
		fields = append(fields, "nombre: must not be blank")
	}
	if u.Email == "" || !strings.Contains(u.Email, "@") {
		fields = append(fields, "email: must be a valid email address")
	}
	if msg := passwordProblem(in.Password); msg != "" {
		fields = append(fields, msg)
	}
	if len(fields) > 0 {
		return nil, errs.Validation(fields...)
	}

	exists, err := s.store.EmailExists(ctx, u.Email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, errs.Duplicate("email %s is already registered", u.Email)
	}
	if err := s.checkRole(ctx, u.RoleID); err != nil {
		return nil, err
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, errs.Validation("password: " + err.Error())
	}
	u.PasswordHash = hash
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return s.store.GetUser(ctx, u.ID)
}

func (s *RBACService) GetUser(ctx context.Context, id int64) (*User, error) {
	return s.store.GetUser(ctx, id)
}

func (s *RBACService) ListUsers(ctx context.Context, page query.Page) ([]User, error) {
	return s.store.ListUsers(ctx, page.Normalize())
}

func (s *RBACService) UpdateUser(ctx context.Context, id int64, upd UserUpdate) (*User, error) {
	current, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, errs.Validation("nombre: must not be blank")
		}
		upd.Name = &name
	}
	if upd.Email != nil {
		email := NormalizeEmail(*upd.Email)
		if email == "" || !strings.Contains(email, "@") {
			return nil, errs.Validation("email: must be a valid email address")
		}
		if email != current.Email {
			exists, err := s.store.EmailExists(ctx, email)
			if err != nil {
				return nil, err
			}
			if exists {
				return nil, errs.Duplicate("email %s is already registered", email)
			}
		}
		upd.Email = &email
	}
	if upd.Password != nil {
		if msg := passwordProblem(*upd.Password); msg != "" {
			return nil, errs.Validation(msg)
		}
		hash, err := HashPassword(*upd.Password)
		if err != nil {
			return nil, errs.Validation("password: " + err.Error())
		}
		upd.Password = &hash
	}
	if err := s.checkRole(ctx, upd.RoleID); err != nil {
		return nil, err
	}
	if err := s.store.UpdateUser(ctx, id, upd); err != nil {
		return nil, err
	}
	return s.store.GetUser(ctx, id)
}

func (s *RBACService) DeleteUser(ctx context.Context, id int64) error {
	return s.store.DeleteUser(ctx, id)
}

func (s *RBACService) checkRole(ctx context.Context, roleID *int64) error {
	if roleID == nil {
		return nil
	}
	if _, err := s.store.GetRole(ctx, *roleID); err != nil {
		return err
	}
	return nil
}

func (s *RBACService) CreateRole(ctx context.Context, name, description string) (*Role, error) {
	name = normalizeRoleName(name)
	if name == "" {
		return nil, errs.Validation("nombre: must not be blank")
	}
	if _, err := s.store.FindRoleByName(ctx, name); err == nil {
		return nil, errs.Duplicate("role %s already exists", name)
	} else if !errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}
	r := &Role{Name: name, Description: strings.TrimSpace(description)}
	if err := s.store.CreateRole(ctx, r); err != nil {
		return nil, err
	}
	r.Permissions = []Permission{}
	return r, nil
}

func (s *RBACService) GetRole(ctx context.Context, id int64) (*Role, error) {
	return s.store.GetRole(ctx, id)
}

func (s *RBACService) ListRoles(ctx context.Context) ([]Role, error) {
	return s.store.ListRoles(ctx)
}

func (s *RBACService) UpdateRole(ctx context.Context, id int64, upd RoleUpdate) (*Role, error) {
	current, err := s.store.GetRole(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		name := normalizeRoleName(*upd.Name)
		if name == "" {
			return nil, errs.Validation("nombre: must not be blank")
		}
		if name != current.Name {
			if _, err := s.store.FindRoleByName(ctx, name); err == nil {
				return nil, errs.Duplicate("role %s already exists", name)
			} else if !errors.Is(err, errs.ErrNotFound) {
				return nil, err
			}
		}
		upd.Name = &name
	}
	if upd.Description != nil {
		desc := strings.TrimSpace(*upd.Description)
		upd.Description = &desc
	}
	if err := s.store.UpdateRole(ctx, id, upd); err != nil {
		return nil, err
	}
	return s.store.GetRole(ctx, id)
}

func (s *RBACService) DeleteRole(ctx context.Context, id int64) error {
	return s.store.DeleteRole(ctx, id)
}

// SetRolePermissions replaces the permission set of a role. Every name must exist.
func (s *RBACService) SetRolePermissions(ctx context.Context, roleID int64, names []string) (*Role, error) {
	if _, err := s.store.GetRole(ctx, roleID); err != nil {
		return nil, err
	}
	known, err := s.store.ListPermissions(ctx)
	if err != nil {
		return nil, err
	}
	catalog := make(map[string]struct{}, len(known))
	for _, p := range known {
		catalog[p.Name] = struct{}{}
	}
	set := make(map[string]struct{}, len(names))
	normalized := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.ToUpper(strings.TrimSpace(n))
		if _, ok := catalog[n]; !ok {
			return nil, errs.BadRequest("unknown permission %q", n)
		}
		if _, dup := set[n]; dup {
			continue
		}
		set[n] = struct{}{}
		normalized = append(normalized, n)
	}
	sort.Strings(normalized)
	if err := s.store.SetRolePermissions(ctx, roleID, normalized); err != nil {
		return nil, err
	}
	return s.store.GetRole(ctx, roleID)
}

func (s *RBACService) CreatePermission(ctx context.Context, name, description string) (*Permission, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if !permissionName.MatchString(name) || strings.HasPrefix(name, RolePrefix) {
		return nil, errs.Validation("nombre: must be upper snake case and not start with ROLE_")
	}
	p := &Permission{Name: name, Description: strings.TrimSpace(description)}
	if err := s.store.CreatePermission(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *RBACService) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.store.ListPermissions(ctx)
}

func (s *RBACService) DeletePermission(ctx context.Context, id int64) error {
	return s.store.DeletePermission(ctx, id)
}

// Bootstrap seeds the permission catalog, an ADMIN role holding all of it and, when
// adminEmail is set, an active admin user. Safe to run repeatedly.
func (s *RBACService) Bootstrap(ctx context.Context, adminEmail, adminPassword string) error {
	builtins := BuiltinPermissions()
	if err := s.store.EnsurePermissions(ctx, builtins); err != nil {
		return fmt.Errorf("ensure permissions: %w", err)
	}

	role, err := s.store.FindRoleByName(ctx, AdminRole)
	if errors.Is(err, errs.ErrNotFound) {
		role = &Role{Name: AdminRole, Description: "Administrador del sistema"}
		err = s.store.CreateRole(ctx, role)
	}
	if err != nil {
		return fmt.Errorf("admin role: %w", err)
	}

	names := make([]string, 0, len(builtins))
	for _, p := range builtins {
		names = append(names, p.Name)
	}
	if err := s.store.SetRolePermissions(ctx, role.ID, names); err != nil {
		return fmt.Errorf("admin permissions: %w", err)
	}

	adminEmail = NormalizeEmail(adminEmail)
	if adminEmail == "" {
		return nil
	}
	exists, err := s.store.EmailExists(ctx, adminEmail)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err = s.CreateUser(ctx, NewUser{Name: "Administrador", Email: adminEmail, Password: adminPassword, RoleID: &role.ID})
	return err
}

func normalizeRoleName(name string) string {
	name = strings.ToUpper(strings.TrimSpace(name))
	return strings.TrimPrefix(name, RolePrefix)
}
