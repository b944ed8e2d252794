package pg

import (
	"context"
	"database/sql"
	"errors"

	"tt360.co/crm/internal/auth"
	"tt360.co/crm/internal/errs"
	"tt360.co/crm/internal/query"
)

var _ auth.RBACStore = (*Store)(nil)

const userColumns = `
	select u.id, u.nombre, u.email, u.password_hash, u.activo, u.rol_id, u.created_at, u.updated_at,
	       r.nombre, r.descripcion
	from usuarios u
	left join roles r on r.id = u.rol_id
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*auth.User, error) {
	var (
		u        auth.User
		roleID   sql.NullInt64
		roleName sql.NullString
		roleDesc sql.NullString
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Active, &roleID, &u.CreatedAt, &u.UpdatedAt, &roleName, &roleDesc); err != nil {
		return nil, err
	}
	if roleID.Valid {
		id := roleID.Int64
		u.RoleID = &id
		u.Role = &auth.Role{ID: id, Name: roleName.String, Description: roleDesc.String, Permissions: []auth.Permission{}}
	}
	return &u, nil
}

func (s *Store) findUser(ctx context.Context, where string, arg any, what string) (*auth.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, userColumns+"where "+where, arg))
	if err != nil {
		return nil, classify(err, what)
	}
	if u.Role != nil {
		perms, err := s.rolePermissions(ctx, u.Role.ID)
		if err != nil {
			return nil, err
		}
		u.Role.Permissions = perms
	}
	return u, nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.findUser(ctx, "u.email = $1", email, "user "+email)
}

func (s *Store) GetUser(ctx context.Context, id int64) (*auth.User, error) {
	return s.findUser(ctx, "u.id = $1", id, label("user", id))
}

func (s *Store) ListUsers(ctx context.Context, page query.Page) ([]auth.User, error) {
	rows, err := s.db.QueryContext(ctx, userColumns+"order by u.id limit $1 offset $2", page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []auth.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, u *auth.User) error {
	err := s.db.QueryRowContext(ctx, `
		insert into usuarios (nombre, email, password_hash, activo, rol_id)
		values ($1, $2, $3, $4, $5)
		returning id, created_at, updated_at
	`, u.Name, u.Email, u.PasswordHash, u.Active, u.RoleID).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
		return errs.NotFound("role not found")
	}
	return classify(err, "user "+u.Email)
}

func (s *Store) UpdateUser(ctx context.Context, id int64, upd auth.UserUpdate) error {
	res, err := s.db.ExecContext(ctx, `
		update usuarios
		set nombre = coalesce($2, nombre),
		    email = coalesce($3, email),
		    password_hash = coalesce($4, password_hash),
		    activo = coalesce($5, activo),
		    rol_id = coalesce($6, rol_id),
		    updated_at = now()
		where id = $1
	`, id, upd.Name, upd.Email, upd.Password, upd.Active, upd.RoleID)
	return expectOne(res, err, label("user", id))
}

func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `delete from usuarios where id = $1`, id)
	return expectOne(res, err, label("user", id))
}

func (s *Store) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `select exists(select 1 from usuarios where email = $1)`, email).Scan(&exists)
	return exists, err
}

func (s *Store) CreateRole(ctx context.Context, r *auth.Role) error {
	err := s.db.QueryRowContext(ctx, `
		insert into roles (nombre, descripcion)
		values ($1, $2)
		returning id
	`, r.Name, r.Description).Scan(&r.ID)
	return classify(err, "role "+r.Name)
}

func (s *Store) findRole(ctx context.Context, where string, arg any, what string) (*auth.Role, error) {
	var r auth.Role
	err := s.db.QueryRowContext(ctx, `select id, nombre, descripcion from roles where `+where, arg).
		Scan(&r.ID, &r.Name, &r.Description)
	if err != nil {
		return nil, classify(err, what)
	}
	perms, err := s.rolePermissions(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	r.Permissions = perms
	return &r, nil
}

func (s *Store) GetRole(ctx context.Context, id int64) (*auth.Role, error) {
	return s.findRole(ctx, "id = $1", id, label("role", id))
}

func (s *Store) FindRoleByName(ctx context.Context, name string) (*auth.Role, error) {
	return s.findRole(ctx, "nombre = $1", name, "role "+name)
}

func (s *Store) ListRoles(ctx context.Context) ([]auth.Role, error) {
	rows, err := s.db.QueryContext(ctx, `select id, nombre, descripcion from roles order by nombre`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	roles := []auth.Role{}
	index := map[int64]int{}
	for rows.Next() {
		var r auth.Role
		if err := rows.Scan(&r.ID, &r.Name, &r.Description); err != nil {
			return nil, err
		}
		r.Permissions = []auth.Permission{}
		index[r.ID] = len(roles)
		roles = append(roles, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	prow, err := s.db.QueryContext(ctx, `
		select rp.rol_id, p.id, p.nombre, p.descripcion
		from rol_permisos rp
		join permisos p on p.id = rp.permiso_id
		order by p.nombre
	`)
	if err != nil {
		return nil, err
	}
	defer prow.Close()
	for prow.Next() {
		var (
			roleID int64
			p      auth.Permission
		)
		if err := prow.Scan(&roleID, &p.ID, &p.Name, &p.Description); err != nil {
			return nil, err
		}
		if i, ok := index[roleID]; ok {
			roles[i].Permissions = append(roles[i].Permissions, p)
		}
	}
	return roles, prow.Err()
}

func (s *Store) UpdateRole(ctx context.Context, id int64, upd auth.RoleUpdate) error {
	res, err := s.db.ExecContext(ctx, `
		update roles
		set nombre = coalesce($2, nombre),
		    descripcion = coalesce($3, descripcion)
		where id = $1
	`, id, upd.Name, upd.Description)
	return expectOne(res, err, label("role", id))
}

func (s *Store) DeleteRole(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `delete from roles where id = $1`, id)
	return expectOne(res, err, label("role", id))
}

// SetRolePermissions replaces the role's grants in one transaction.
func (s *Store) SetRolePermissions(ctx context.Context, roleID int64, names []string) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `delete from rol_permisos where rol_id = $1`, roleID); err != nil {
			return err
		}
		for _, name := range names {
			res, err := tx.ExecContext(ctx, `
				insert into rol_permisos (rol_id, permiso_id)
				select $1, id from permisos where nombre = $2
			`, roleID, name)
			if err := expectOne(res, err, "permission "+name); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) rolePermissions(ctx context.Context, roleID int64) ([]auth.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select p.id, p.nombre, p.descripcion
		from permisos p
		join rol_permisos rp on rp.permiso_id = p.id
		where rp.rol_id = $1
		order by p.nombre
	`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPermissions(rows)
}

func scanPermissions(rows *sql.Rows) ([]auth.Permission, error) {
	perms := []auth.Permission{}
	for rows.Next() {
		var p auth.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

func (s *Store) CreatePermission(ctx context.Context, p *auth.Permission) error {
	err := s.db.QueryRowContext(ctx, `
		insert into permisos (nombre, descripcion)
		values ($1, $2)
		returning id
	`, p.Name, p.Description).Scan(&p.ID)
	return classify(err, "permission "+p.Name)
}

func (s *Store) ListPermissions(ctx context.Context) ([]auth.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `select id, nombre, descripcion from permisos order by nombre`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPermissions(rows)
}

func (s *Store) DeletePermission(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `delete from permisos where id = $1`, id)
	return expectOne(res, err, label("permission", id))
}

// EnsurePermissions inserts missing catalog entries and leaves existing ones untouched.
func (s *Store) EnsurePermissions(ctx context.Context, perms []auth.Permission) error {
	if len(perms) == 0 {
		return errors.New("no permissions to ensure")
	}
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, p := range perms {
			if _, err := tx.ExecContext(ctx, `
				insert into permisos (nombre, descripcion)
				values ($1, $2)
				on conflict (nombre) do nothing
			`, p.Name, p.Description); err != nil {
				return err
			}
		}
		return nil
	})
}
