package pg

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"tt360.co/crm/internal/auth"
	"tt360.co/crm/internal/errs"
	"tt360.co/crm/internal/query"
)

var userCols = []string{"id", "nombre", "email", "password_hash", "activo", "rol_id", "created_at", "updated_at", "nombre", "descripcion"}

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db), mock
}

func TestFindUserByEmailLoadsRoleAndPermissions(t *testing.T) {
	store, mock := newMock(t)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(`from usuarios u\s+left join roles r on r.id = u.rol_id\s+where u.email = \$1`).
		WithArgs("ana@tt360.co").
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow(7, "Ana", "ana@tt360.co", "hash", true, 2, now, now, "VENDEDOR", "Ventas"))
	mock.ExpectQuery(`from permisos p\s+join rol_permisos rp`).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "nombre", "descripcion"}).
			AddRow(1, "CREAR_PEDIDO", "").
			AddRow(2, "EDITAR_PEDIDO", ""))

	u, err := store.FindUserByEmail(context.Background(), "ana@tt360.co")
	require.NoError(t, err)
	require.Equal(t, int64(7), u.ID)
	require.True(t, u.Active)
	require.NotNil(t, u.Role)
	require.Equal(t, "VENDEDOR", u.Role.Name)
	require.Len(t, u.Role.Permissions, 2)

	p := auth.NewPrincipal(u)
	require.Equal(t, []string{"ROLE_VENDEDOR", "CREAR_PEDIDO", "EDITAR_PEDIDO"}, p.Authorities)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindUserWithoutRole(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now()
	mock.ExpectQuery(`where u.id = \$1`).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(3, "Sin rol", "x@tt360.co", "hash", true, nil, now, now, nil, nil))

	u, err := store.GetUser(context.Background(), 3)
	require.NoError(t, err)
	require.Nil(t, u.Role)
	require.Nil(t, u.RoleID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindUserNotFound(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery(`where u.email = \$1`).WithArgs("nobody@tt360.co").WillReturnError(sql.ErrNoRows)

	_, err := store.FindUserByEmail(context.Background(), "nobody@tt360.co")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery(`insert into usuarios`).
		WithArgs("Ana", "ana@tt360.co", "hash", true, nil).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	err := store.CreateUser(context.Background(), &auth.User{Name: "Ana", Email: "ana@tt360.co", PasswordHash: "hash", Active: true})
	require.ErrorIs(t, err, errs.ErrDuplicate)
}

func TestCreateUserReturnsID(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now()
	roleID := int64(2)
	mock.ExpectQuery(`insert into usuarios`).
		WithArgs("Ana", "ana@tt360.co", "hash", true, roleID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(11, now, now))

	u := &auth.User{Name: "Ana", Email: "ana@tt360.co", PasswordHash: "hash", Active: true, RoleID: &roleID}
	require.NoError(t, store.CreateUser(context.Background(), u))
	require.Equal(t, int64(11), u.ID)
}

func TestUpdateUserMissing(t *testing.T) {
	store, mock := newMock(t)
	name := "Nuevo"
	mock.ExpectExec(`update usuarios`).
		WithArgs(int64(99), name, nil, nil, nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.UpdateUser(context.Background(), 99, auth.UserUpdate{Name: &name})
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestListUsersPages(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now()
	mock.ExpectQuery(`order by u.id limit \$1 offset \$2`).
		WithArgs(50, 100).
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(1, "A", "a@tt360.co", "h", true, nil, now, now, nil, nil))

	users, err := store.ListUsers(context.Background(), query.Page{Limit: 50, Offset: 100})
	require.NoError(t, err)
	require.Len(t, users, 1)
}

func TestSetRolePermissionsRollsBackOnUnknownName(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(`delete from rol_permisos where rol_id = \$1`).WithArgs(int64(4)).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`insert into rol_permisos`).WithArgs(int64(4), "CREAR_ITEM").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`insert into rol_permisos`).WithArgs(int64(4), "NO_EXISTE").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.SetRolePermissions(context.Background(), 4, []string{"CREAR_ITEM", "NO_EXISTE"})
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsurePermissionsIsIdempotent(t *testing.T) {
	store, mock := newMock(t)
	perms := auth.BuiltinPermissions()
	mock.ExpectBegin()
	for _, p := range perms {
		mock.ExpectExec(`on conflict \(nombre\) do nothing`).WithArgs(p.Name, p.Description).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectCommit()

	require.NoError(t, store.EnsurePermissions(context.Background(), perms))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeletePermissionReferenced(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectExec(`delete from permisos where id = \$1`).
		WithArgs(int64(5)).
		WillReturnError(&pgconn.PgError{Code: pgErrForeignKeyViolation})

	err := store.DeletePermission(context.Background(), 5)
	require.ErrorIs(t, err, errs.ErrDuplicate)
}
