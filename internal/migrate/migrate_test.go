package migrate

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsAreWellFormed(t *testing.T) {
	entries, err := fs.ReadDir(Migrations(), ".")
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(entries), 2)

	prev := ""
	for _, e := range entries {
		require.True(t, strings.HasSuffix(e.Name(), ".sql"), e.Name())
		require.Greater(t, e.Name(), prev, "migrations must be ordered")
		prev = e.Name()

		body, err := fs.ReadFile(Migrations(), e.Name())
		require.NoError(t, err)
		require.Contains(t, string(body), "-- +goose Up", e.Name())
		require.Contains(t, string(body), "-- +goose Down", e.Name())
	}
}

func TestSchemaCoversStores(t *testing.T) {
	var all strings.Builder
	entries, err := fs.ReadDir(Migrations(), ".")
	require.NoError(t, err)
	for _, e := range entries {
		body, err := fs.ReadFile(Migrations(), e.Name())
		require.NoError(t, err)
		all.Write(body)
	}
	for _, table := range []string{"usuarios", "roles", "permisos", "rol_permisos", "login_attempts", "bodegas", "categorias", "proveedores", "items", "pedidos", "pedido_detalles", "facturas"} {
		require.Contains(t, all.String(), "create table "+table+" (", table)
	}
}
