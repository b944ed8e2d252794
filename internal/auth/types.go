package auth

import "time"

// User is a principal record. Email is the stable login identifier.
type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"nombre"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Active       bool      `json:"activo"`
	RoleID       *int64    `json:"rolId,omitempty"`
	Role         *Role     `json:"rol,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Role groups permissions. Names are stored upper-cased.
type Role struct {
	ID          int64        `json:"id"`
	Name        string       `json:"nombre"`
	Description string       `json:"descripcion,omitempty"`
	Permissions []Permission `json:"permisos"`
}

// Permission is a named capability such as ELIMINAR_CATEGORIA.
type Permission struct {
	ID          int64  `json:"id"`
	Name        string `json:"nombre"`
	Description string `json:"descripcion,omitempty"`
}

// UserUpdate carries the fields to change; nil leaves a field untouched.
type UserUpdate struct {
	Name     *string
	Email    *string
	Password *string
	Active   *bool
	RoleID   *int64
}

type RoleUpdate struct {
	Name        *string
	Description *string
}
