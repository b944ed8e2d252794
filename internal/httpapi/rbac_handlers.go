package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"tt360.co/crm/internal/audit"
	"tt360.co/crm/internal/auth"
)

type createUserRequest struct {
	Name     string `json:"nombre" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	RoleID   *int64 `json:"rolId" validate:"omitempty,gt=0"`
	Active   *bool  `json:"activo"`
}

type updateUserRequest struct {
	Name     *string `json:"nombre" validate:"omitempty,min=1,max=100"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Password *string `json:"password" validate:"omitempty,min=8,max=72"`
	RoleID   *int64  `json:"rolId" validate:"omitempty,gt=0"`
	Active   *bool   `json:"activo"`
}

type createRoleRequest struct {
	Name        string `json:"nombre" validate:"required,max=50"`
	Description string `json:"descripcion" validate:"max=255"`
}

type updateRoleRequest struct {
	Name        *string `json:"nombre" validate:"omitempty,min=1,max=50"`
	Description *string `json:"descripcion" validate:"omitempty,max=255"`
}

type rolePermissionsRequest struct {
	Permissions []string `json:"permisos" validate:"required"`
}

type createPermissionRequest struct {
	Name        string `json:"nombre" validate:"required,max=100"`
	Description string `json:"descripcion" validate:"max=255"`
}

// Users

func (a *API) listUsers(w http.ResponseWriter, r *http.Request) error {
	page, err := pageOf(r)
	if err != nil {
		return err
	}
	users, err := a.rbac.ListUsers(r.Context(), page)
	if err != nil {
		return err
	}
	return respondOK(w, users)
}

func (a *API) createUser(w http.ResponseWriter, r *http.Request) error {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	user, err := a.rbac.CreateUser(r.Context(), auth.NewUser{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		RoleID:   req.RoleID,
		Active:   req.Active,
	})
	if err != nil {
		return err
	}
	audit.LogEvent(r.Context(), "rbac.user.create", "user", user.ID, zap.String("email", user.Email))
	return created(w, location("/api/usuarios", user.ID), user)
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	user, err := a.rbac.GetUser(r.Context(), id)
	if err != nil {
		return err
	}
	return respondOK(w, user)
}

func (a *API) updateUser(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	user, err := a.rbac.UpdateUser(r.Context(), id, auth.UserUpdate{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Active:   req.Active,
		RoleID:   req.RoleID,
	})
	if err != nil {
		return err
	}
	audit.LogEvent(r.Context(), "rbac.user.update", "user", id, zap.Bool("password_changed", req.Password != nil))
	return respondOK(w, user)
}

func (a *API) deleteUser(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	if err := a.rbac.DeleteUser(r.Context(), id); err != nil {
		return err
	}
	audit.LogEvent(r.Context(), "rbac.user.delete", "user", id)
	return noContent(w)
}

// Roles

func (a *API) listRoles(w http.ResponseWriter, r *http.Request) error {
	roles, err := a.rbac.ListRoles(r.Context())
	if err != nil {
		return err
	}
	return respondOK(w, roles)
}

func (a *API) createRole(w http.ResponseWriter, r *http.Request) error {
	var req createRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	role, err := a.rbac.CreateRole(r.Context(), req.Name, req.Description)
	if err != nil {
		return err
	}
	audit.LogEvent(r.Context(), "rbac.role.create", "role", role.ID, zap.String("name", role.Name))
	return created(w, location("/api/roles", role.ID), role)
}

func (a *API) getRole(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	role, err := a.rbac.GetRole(r.Context(), id)
	if err != nil {
		return err
	}
	return respondOK(w, role)
}

func (a *API) updateRole(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	var req updateRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	role, err := a.rbac.UpdateRole(r.Context(), id, auth.RoleUpdate{Name: req.Name, Description: req.Description})
	if err != nil {
		return err
	}
	audit.LogEvent(r.Context(), "rbac.role.update", "role", id)
	return respondOK(w, role)
}

func (a *API) deleteRole(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	if err := a.rbac.DeleteRole(r.Context(), id); err != nil {
		return err
	}
	audit.LogEvent(r.Context(), "rbac.role.delete", "role", id)
	return noContent(w)
}

func (a *API) setRolePermissions(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	var req rolePermissionsRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	role, err := a.rbac.SetRolePermissions(r.Context(), id, req.Permissions)
	if err != nil {
		return err
	}
	audit.LogEvent(r.Context(), "rbac.role.permissions.update", "role", id, zap.Int("count", len(role.Permissions)))
	return respondOK(w, role)
}

// Permissions

func (a *API) listPermissions(w http.ResponseWriter, r *http.Request) error {
	perms, err := a.rbac.ListPermissions(r.Context())
	if err != nil {
		return err
	}
	return respondOK(w, perms)
}

func (a *API) createPermission(w http.ResponseWriter, r *http.Request) error {
	var req createPermissionRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	perm, err := a.rbac.CreatePermission(r.Context(), req.Name, req.Description)
	if err != nil {
		return err
	}
	audit.LogEvent(r.Context(), "rbac.permission.create", "permission", perm.ID, zap.String("name", perm.Name))
	return created(w, location("/api/permisos", perm.ID), perm)
}

func (a *API) deletePermission(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	if err := a.rbac.DeletePermission(r.Context(), id); err != nil {
		return err
	}
	audit.LogEvent(r.Context(), "rbac.permission.delete", "permission", id)
	return noContent(w)
}
