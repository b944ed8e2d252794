package pg

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"tt360.co/crm/internal/errs"
	"tt360.co/crm/internal/inventory"
	"tt360.co/crm/internal/query"
)

func TestItemFilterBuildsWhereClause(t *testing.T) {
	cat, ceiling := int64(3), int64(5)
	where, args := itemWhere(inventory.ItemFilter{Name: "Tor", CategoryID: &cat, StockMax: &ceiling})
	require.Equal(t, ` where lower(nombre) like '%' || lower($1) || '%' escape '\' and categoria_id = $2 and stock <= $3`, where)
	require.Equal(t, []any{"Tor", int64(3), int64(5)}, args)

	where, args = itemWhere(inventory.ItemFilter{})
	require.Empty(t, where)
	require.Empty(t, args)
}

func TestItemFilterEscapesWildcards(t *testing.T) {
	cases := map[string]string{
		"_":         `\_`,
		"50%":       `50\%`,
		`C:\cables`: `C:\\cables`,
		"cable":     "cable",
	}
	for in, want := range cases {
		_, args := itemWhere(inventory.ItemFilter{Name: in})
		require.Equal(t, []any{want}, args, in)
	}
}

func TestListItemsAppendsPaging(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now()
	wh := int64(2)
	cols := []string{"id", "sku", "nombre", "descripcion", "precio", "stock", "categoria_id", "proveedor_id", "bodega_id", "created_at", "updated_at"}
	mock.ExpectQuery(`from items where bodega_id = \$1 order by id limit \$2 offset \$3`).
		WithArgs(int64(2), 10, 0).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(1, "TOR-1", "Tornillo", "", 150, 40, 1, nil, 2, now, now).
			AddRow(2, "TUE-1", "Tuerca", "", 90, 10, 1, 4, 2, now, now))

	items, err := store.ListItems(context.Background(), inventory.ItemFilter{WarehouseID: &wh}, query.Page{Limit: 10})
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Nil(t, items[0].SupplierID)
	require.NotNil(t, items[1].SupplierID)
	require.Equal(t, int64(4), *items[1].SupplierID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountItemsWithoutFilter(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery(`select count\(\*\) from items$`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))

	n, err := store.CountItems(context.Background(), inventory.ItemFilter{})
	require.NoError(t, err)
	require.Equal(t, int64(12), n)
}

func TestCreateItemDuplicateSKU(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery(`insert into items`).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	err := store.CreateItem(context.Background(), &inventory.Item{SKU: "TOR-1", Name: "Tornillo", CategoryID: 1, WarehouseID: 1})
	require.ErrorIs(t, err, errs.ErrDuplicate)
}

func TestDeleteWarehouseReferencedConflicts(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectExec(`delete from bodegas where id = \$1`).
		WithArgs(int64(1)).
		WillReturnError(&pgconn.PgError{Code: pgErrForeignKeyViolation})

	err := store.DeleteWarehouse(context.Background(), 1)
	require.ErrorIs(t, err, errs.ErrDuplicate)
}

func TestGetSupplierNotFound(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery(`from proveedores`).WithArgs(int64(8)).WillReturnError(sql.ErrNoRows)

	_, err := store.GetSupplier(context.Background(), 8)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestCreateOrderWritesHeaderAndLines(t *testing.T) {
	store, mock := newMock(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	o := &inventory.Order{
		SupplierID: 4,
		Status:     inventory.StatusPending,
		Total:      700,
		CreatedAt:  now,
		Lines: []inventory.OrderLine{
			{ItemID: 1, Quantity: 2, UnitPrice: 200, Subtotal: 400},
			{ItemID: 2, Quantity: 3, UnitPrice: 100, Subtotal: 300},
		},
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`insert into pedidos`).
		WithArgs(int64(4), "PENDIENTE", int64(700), "", now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(21))
	mock.ExpectQuery(`insert into pedido_detalles`).
		WithArgs(int64(21), int64(1), int64(2), int64(200), int64(400)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery(`insert into pedido_detalles`).
		WithArgs(int64(21), int64(2), int64(3), int64(100), int64(300)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))
	mock.ExpectCommit()

	require.NoError(t, store.CreateOrder(context.Background(), o))
	require.Equal(t, int64(21), o.ID)
	require.Equal(t, int64(2), o.Lines[1].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrderRollsBackOnLineFailure(t *testing.T) {
	store, mock := newMock(t)
	o := &inventory.Order{SupplierID: 4, Status: inventory.StatusPending, Lines: []inventory.OrderLine{{ItemID: 9, Quantity: 1}}}

	mock.ExpectBegin()
	mock.ExpectQuery(`insert into pedidos`).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(22))
	mock.ExpectQuery(`insert into pedido_detalles`).WillReturnError(&pgconn.PgError{Code: pgErrCheckViolation})
	mock.ExpectRollback()

	err := store.CreateOrder(context.Background(), o)
	require.Equal(t, errs.KindBadRequest, errs.KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetOrderStatusReceivedAddsStock(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(`update pedidos\s+set estado = \$3`).
		WithArgs(int64(5), "APROBADO", "RECIBIDO").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`update items i\s+set stock = i.stock \+ d.cantidad`).
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	require.NoError(t, store.SetOrderStatus(context.Background(), 5, inventory.StatusApproved, inventory.StatusReceived))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetOrderStatusApproveLeavesStock(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(`update pedidos`).
		WithArgs(int64(5), "PENDIENTE", "APROBADO").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.SetOrderStatus(context.Background(), 5, inventory.StatusPending, inventory.StatusApproved))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetOrderStatusConcurrentChange(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(`update pedidos`).
		WithArgs(int64(5), "APROBADO", "RECIBIDO").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.SetOrderStatus(context.Background(), 5, inventory.StatusApproved, inventory.StatusReceived)
	require.Equal(t, errs.KindBadRequest, errs.KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrderLoadsLines(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now()
	mock.ExpectQuery(`from pedidos where id = \$1`).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "proveedor_id", "estado", "total", "observaciones", "created_at", "updated_at"}).
			AddRow(3, 4, "APROBADO", 500, "", now, now))
	mock.ExpectQuery(`from pedido_detalles`).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "item_id", "cantidad", "precio_unitario", "subtotal"}).
			AddRow(1, 7, 5, 100, 500))

	o, err := store.GetOrder(context.Background(), 3)
	require.NoError(t, err)
	require.Equal(t, inventory.StatusApproved, o.Status)
	require.Len(t, o.Lines, 1)
	require.Equal(t, int64(500), o.Lines[0].Subtotal)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountOrdersByStatus(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery(`select count\(\*\) from pedidos where estado = \$1`).
		WithArgs("PENDIENTE").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	n, err := store.CountOrders(context.Background(), inventory.OrderFilter{Status: inventory.StatusPending})
	require.NoError(t, err)
	require.Equal(t, int64(4), n)
}

func TestCreateInvoiceNumbersFromSequence(t *testing.T) {
	store, mock := newMock(t)
	now := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	inv := &inventory.Invoice{OrderID: 5, Subtotal: 5000, Tax: 950, Total: 5950, TaxRateBasisPoints: 1900, IssuedAt: now}

	mock.ExpectBegin()
	mock.ExpectQuery(`select nextval\('facturas_numero_seq'\)`).
		WillReturnRows(sqlmock.NewRows([]string{"nextval"}).AddRow(42))
	mock.ExpectQuery(`insert into facturas`).
		WithArgs("FAC-000042", int64(5), int64(5000), int64(950), int64(5950), int64(1900), now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))
	mock.ExpectCommit()

	require.NoError(t, store.CreateInvoice(context.Background(), inv))
	require.Equal(t, int64(9), inv.ID)
	require.Equal(t, "FAC-000042", inv.Number)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSummarizeWarehouse(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery(`select count\(\*\), coalesce\(sum\(stock\), 0\)`).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"count", "sum"}).AddRow(3, 70))

	sum, err := store.SummarizeWarehouse(context.Background(), 2)
	require.NoError(t, err)
	require.Equal(t, inventory.WarehouseSummary{WarehouseID: 2, Items: 3, Stock: 70}, sum)
}
