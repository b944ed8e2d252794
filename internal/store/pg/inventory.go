package pg

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"tt360.co/crm/internal/errs"
	"tt360.co/crm/internal/inventory"
	"tt360.co/crm/internal/query"
)

var _ inventory.Store = (*Store)(nil)

// Warehouses

func (s *Store) CreateWarehouse(ctx context.Context, w *inventory.Warehouse) error {
	err := s.db.QueryRowContext(ctx, `
		insert into bodegas (nombre, ubicacion, capacidad)
		values ($1, $2, $3)
		returning id, created_at, updated_at
	`, w.Name, w.Location, w.Capacity).Scan(&w.ID, &w.CreatedAt, &w.UpdatedAt)
	return classify(err, "warehouse "+w.Name)
}

func scanWarehouse(row rowScanner) (inventory.Warehouse, error) {
	var w inventory.Warehouse
	err := row.Scan(&w.ID, &w.Name, &w.Location, &w.Capacity, &w.CreatedAt, &w.UpdatedAt)
	return w, err
}

func (s *Store) GetWarehouse(ctx context.Context, id int64) (*inventory.Warehouse, error) {
	w, err := scanWarehouse(s.db.QueryRowContext(ctx, `
		select id, nombre, ubicacion, capacidad, created_at, updated_at
		from bodegas
		where id = $1
	`, id))
	if err != nil {
		return nil, classify(err, label("warehouse", id))
	}
	return &w, nil
}

func (s *Store) ListWarehouses(ctx context.Context, page query.Page) ([]inventory.Warehouse, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, nombre, ubicacion, capacidad, created_at, updated_at
		from bodegas
		order by id
		limit $1 offset $2
	`, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []inventory.Warehouse{}
	for rows.Next() {
		w, err := scanWarehouse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *Store) UpdateWarehouse(ctx context.Context, w *inventory.Warehouse) error {
	res, err := s.db.ExecContext(ctx, `
		update bodegas
		set nombre = $2, ubicacion = $3, capacidad = $4, updated_at = now()
		where id = $1
	`, w.ID, w.Name, w.Location, w.Capacity)
	return expectOne(res, err, label("warehouse", w.ID))
}

func (s *Store) DeleteWarehouse(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `delete from bodegas where id = $1`, id)
	return expectOne(res, err, label("warehouse", id))
}

func (s *Store) SummarizeWarehouse(ctx context.Context, id int64) (inventory.WarehouseSummary, error) {
	sum := inventory.WarehouseSummary{WarehouseID: id}
	err := s.db.QueryRowContext(ctx, `
		select count(*), coalesce(sum(stock), 0)
		from items
		where bodega_id = $1
	`, id).Scan(&sum.Items, &sum.Stock)
	return sum, err
}

// Categories

func (s *Store) CreateCategory(ctx context.Context, c *inventory.Category) error {
	err := s.db.QueryRowContext(ctx, `
		insert into categorias (nombre, descripcion)
		values ($1, $2)
		returning id
	`, c.Name, c.Description).Scan(&c.ID)
	return classify(err, "category "+c.Name)
}

func (s *Store) GetCategory(ctx context.Context, id int64) (*inventory.Category, error) {
	var c inventory.Category
	err := s.db.QueryRowContext(ctx, `select id, nombre, descripcion from categorias where id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Description)
	if err != nil {
		return nil, classify(err, label("category", id))
	}
	return &c, nil
}

func (s *Store) ListCategories(ctx context.Context, page query.Page) ([]inventory.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, nombre, descripcion
		from categorias
		order by nombre
		limit $1 offset $2
	`, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []inventory.Category{}
	for rows.Next() {
		var c inventory.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) UpdateCategory(ctx context.Context, c *inventory.Category) error {
	res, err := s.db.ExecContext(ctx, `update categorias set nombre = $2, descripcion = $3 where id = $1`, c.ID, c.Name, c.Description)
	return expectOne(res, err, label("category", c.ID))
}

func (s *Store) DeleteCategory(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `delete from categorias where id = $1`, id)
	return expectOne(res, err, label("category", id))
}

func (s *Store) CategoryNameExists(ctx context.Context, name string, exceptID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		select exists(select 1 from categorias where lower(nombre) = lower($1) and id <> $2)
	`, name, exceptID).Scan(&exists)
	return exists, err
}

// Suppliers

func (s *Store) CreateSupplier(ctx context.Context, sup *inventory.Supplier) error {
	err := s.db.QueryRowContext(ctx, `
		insert into proveedores (nombre, documento, email, telefono, direccion)
		values ($1, $2, $3, $4, $5)
		returning id
	`, sup.Name, sup.Document, sup.Email, sup.Phone, sup.Address).Scan(&sup.ID)
	return classify(err, "supplier "+sup.Document)
}

func scanSupplier(row rowScanner) (inventory.Supplier, error) {
	var sup inventory.Supplier
	err := row.Scan(&sup.ID, &sup.Name, &sup.Document, &sup.Email, &sup.Phone, &sup.Address)
	return sup, err
}

func (s *Store) GetSupplier(ctx context.Context, id int64) (*inventory.Supplier, error) {
	sup, err := scanSupplier(s.db.QueryRowContext(ctx, `
		select id, nombre, documento, email, telefono, direccion
		from proveedores
		where id = $1
	`, id))
	if err != nil {
		return nil, classify(err, label("supplier", id))
	}
	return &sup, nil
}

func (s *Store) ListSuppliers(ctx context.Context, page query.Page) ([]inventory.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, nombre, documento, email, telefono, direccion
		from proveedores
		order by nombre
		limit $1 offset $2
	`, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []inventory.Supplier{}
	for rows.Next() {
		sup, err := scanSupplier(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sup)
	}
	return out, rows.Err()
}

func (s *Store) UpdateSupplier(ctx context.Context, sup *inventory.Supplier) error {
	res, err := s.db.ExecContext(ctx, `
		update proveedores
		set nombre = $2, documento = $3, email = $4, telefono = $5, direccion = $6
		where id = $1
	`, sup.ID, sup.Name, sup.Document, sup.Email, sup.Phone, sup.Address)
	return expectOne(res, err, label("supplier", sup.ID))
}

func (s *Store) DeleteSupplier(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `delete from proveedores where id = $1`, id)
	return expectOne(res, err, label("supplier", id))
}

func (s *Store) SupplierDocumentExists(ctx context.Context, document string, exceptID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		select exists(select 1 from proveedores where documento = $1 and id <> $2)
	`, document, exceptID).Scan(&exists)
	return exists, err
}

// Items

const itemColumns = `select id, sku, nombre, descripcion, precio, stock, categoria_id, proveedor_id, bodega_id, created_at, updated_at from items`

func scanItem(row rowScanner) (inventory.Item, error) {
	var (
		it       inventory.Item
		supplier sql.NullInt64
	)
	err := row.Scan(&it.ID, &it.SKU, &it.Name, &it.Description, &it.Price, &it.Stock, &it.CategoryID, &supplier, &it.WarehouseID, &it.CreatedAt, &it.UpdatedAt)
	if supplier.Valid {
		id := supplier.Int64
		it.SupplierID = &id
	}
	return it, err
}

func (s *Store) CreateItem(ctx context.Context, it *inventory.Item) error {
	err := s.db.QueryRowContext(ctx, `
		insert into items (sku, nombre, descripcion, precio, stock, categoria_id, proveedor_id, bodega_id)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
		returning id, created_at, updated_at
	`, it.SKU, it.Name, it.Description, it.Price, it.Stock, it.CategoryID, it.SupplierID, it.WarehouseID).
		Scan(&it.ID, &it.CreatedAt, &it.UpdatedAt)
	return classify(err, "item "+it.SKU)
}

func (s *Store) GetItem(ctx context.Context, id int64) (*inventory.Item, error) {
	it, err := scanItem(s.db.QueryRowContext(ctx, itemColumns+` where id = $1`, id))
	if err != nil {
		return nil, classify(err, label("item", id))
	}
	return &it, nil
}

// likeEscaper makes LIKE wildcards in user input match literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// itemWhere builds the filter clause shared by ListItems and CountItems.
func itemWhere(f inventory.ItemFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Name != "" {
		add(`lower(nombre) like '%%' || lower($%d) || '%%' escape '\'`, likeEscaper.Replace(f.Name))
	}
	if f.CategoryID != nil {
		add("categoria_id = $%d", *f.CategoryID)
	}
	if f.SupplierID != nil {
		add("proveedor_id = $%d", *f.SupplierID)
	}
	if f.WarehouseID != nil {
		add("bodega_id = $%d", *f.WarehouseID)
	}
	if f.StockMax != nil {
		add("stock <= $%d", *f.StockMax)
	}
	if len(conds) == 0 {
		return "", args
	}
	return " where " + strings.Join(conds, " and "), args
}

func (s *Store) ListItems(ctx context.Context, f inventory.ItemFilter, page query.Page) ([]inventory.Item, error) {
	where, args := itemWhere(f)
	q := fmt.Sprintf("%s%s order by id limit $%d offset $%d", itemColumns, where, len(args)+1, len(args)+2)
	rows, err := s.db.QueryContext(ctx, q, append(args, page.Limit, page.Offset)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []inventory.Item{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *Store) CountItems(ctx context.Context, f inventory.ItemFilter) (int64, error) {
	where, args := itemWhere(f)
	var n int64
	err := s.db.QueryRowContext(ctx, "select count(*) from items"+where, args...).Scan(&n)
	return n, err
}

func (s *Store) UpdateItem(ctx context.Context, it *inventory.Item) error {
	res, err := s.db.ExecContext(ctx, `
		update items
		set sku = $2, nombre = $3, descripcion = $4, precio = $5, stock = $6,
		    categoria_id = $7, proveedor_id = $8, bodega_id = $9, updated_at = now()
		where id = $1
	`, it.ID, it.SKU, it.Name, it.Description, it.Price, it.Stock, it.CategoryID, it.SupplierID, it.WarehouseID)
	return expectOne(res, err, label("item", it.ID))
}

func (s *Store) DeleteItem(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `delete from items where id = $1`, id)
	return expectOne(res, err, label("item", id))
}

func (s *Store) SKUExists(ctx context.Context, sku string, exceptID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `select exists(select 1 from items where sku = $1 and id <> $2)`, sku, exceptID).Scan(&exists)
	return exists, err
}

// Orders

func (s *Store) CreateOrder(ctx context.Context, o *inventory.Order) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			insert into pedidos (proveedor_id, estado, total, observaciones, created_at, updated_at)
			values ($1, $2, $3, $4, $5, $5)
			returning id
		`, o.SupplierID, string(o.Status), o.Total, o.Notes, o.CreatedAt).Scan(&o.ID)
		if err != nil {
			return classify(err, "order")
		}
		for i := range o.Lines {
			l := &o.Lines[i]
			err := tx.QueryRowContext(ctx, `
				insert into pedido_detalles (pedido_id, item_id, cantidad, precio_unitario, subtotal)
				values ($1, $2, $3, $4, $5)
				returning id
			`, o.ID, l.ItemID, l.Quantity, l.UnitPrice, l.Subtotal).Scan(&l.ID)
			if err != nil {
				return classify(err, label("order line for item", l.ItemID))
			}
		}
		return nil
	})
}

const orderColumns = `select id, proveedor_id, estado, total, observaciones, created_at, updated_at from pedidos`

func scanOrder(row rowScanner) (inventory.Order, error) {
	var (
		o      inventory.Order
		status string
	)
	err := row.Scan(&o.ID, &o.SupplierID, &status, &o.Total, &o.Notes, &o.CreatedAt, &o.UpdatedAt)
	o.Status = inventory.OrderStatus(status)
	o.Lines = []inventory.OrderLine{}
	return o, err
}

func (s *Store) GetOrder(ctx context.Context, id int64) (*inventory.Order, error) {
	o, err := scanOrder(s.db.QueryRowContext(ctx, orderColumns+` where id = $1`, id))
	if err != nil {
		return nil, classify(err, label("order", id))
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, item_id, cantidad, precio_unitario, subtotal
		from pedido_detalles
		where pedido_id = $1
		order by id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var l inventory.OrderLine
		if err := rows.Scan(&l.ID, &l.ItemID, &l.Quantity, &l.UnitPrice, &l.Subtotal); err != nil {
			return nil, err
		}
		o.Lines = append(o.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &o, nil
}

func orderWhere(f inventory.OrderFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, string(f.Status))
		conds = append(conds, fmt.Sprintf("estado = $%d", len(args)))
	}
	if f.SupplierID != nil {
		args = append(args, *f.SupplierID)
		conds = append(conds, fmt.Sprintf("proveedor_id = $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " where " + strings.Join(conds, " and "), args
}

// ListOrders returns order headers; lines are loaded by GetOrder.
func (s *Store) ListOrders(ctx context.Context, f inventory.OrderFilter, page query.Page) ([]inventory.Order, error) {
	where, args := orderWhere(f)
	q := fmt.Sprintf("%s%s order by id desc limit $%d offset $%d", orderColumns, where, len(args)+1, len(args)+2)
	rows, err := s.db.QueryContext(ctx, q, append(args, page.Limit, page.Offset)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []inventory.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) CountOrders(ctx context.Context, f inventory.OrderFilter) (int64, error) {
	where, args := orderWhere(f)
	var n int64
	err := s.db.QueryRowContext(ctx, "select count(*) from pedidos"+where, args...).Scan(&n)
	return n, err
}

// SetOrderStatus moves the order from one status to another only if it is still in from.
// Receiving adds every line quantity to its item stock in the same transaction.
func (s *Store) SetOrderStatus(ctx context.Context, id int64, from, to inventory.OrderStatus) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			update pedidos
			set estado = $3, updated_at = now()
			where id = $1 and estado = $2
		`, id, string(from), string(to))
		if err != nil {
			return classify(err, label("order", id))
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return errs.BadRequest("order %d is no longer %s", id, from)
		}
		if to != inventory.StatusReceived {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `
			update items i
			set stock = i.stock + d.cantidad, updated_at = now()
			from (
				select item_id, sum(cantidad) as cantidad
				from pedido_detalles
				where pedido_id = $1
				group by item_id
			) d
			where i.id = d.item_id
		`, id); err != nil {
			return fmt.Errorf("receive order %d: %w", id, err)
		}
		return nil
	})
}

func (s *Store) DeleteOrder(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `delete from pedidos where id = $1`, id)
	return expectOne(res, err, label("order", id))
}

// Invoices

func (s *Store) CreateInvoice(ctx context.Context, inv *inventory.Invoice) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		var seq int64
		if err := tx.QueryRowContext(ctx, `select nextval('facturas_numero_seq')`).Scan(&seq); err != nil {
			return err
		}
		inv.Number = inventory.InvoiceNumber(seq)
		err := tx.QueryRowContext(ctx, `
			insert into facturas (numero, pedido_id, subtotal, impuesto, total, tasa_bp, fecha)
			values ($1, $2, $3, $4, $5, $6, $7)
			returning id
		`, inv.Number, inv.OrderID, inv.Subtotal, inv.Tax, inv.Total, inv.TaxRateBasisPoints, inv.IssuedAt).Scan(&inv.ID)
		return classify(err, label("invoice for order", inv.OrderID))
	})
}

const invoiceColumns = `select id, numero, pedido_id, subtotal, impuesto, total, tasa_bp, fecha from facturas`

func scanInvoice(row rowScanner) (inventory.Invoice, error) {
	var inv inventory.Invoice
	err := row.Scan(&inv.ID, &inv.Number, &inv.OrderID, &inv.Subtotal, &inv.Tax, &inv.Total, &inv.TaxRateBasisPoints, &inv.IssuedAt)
	return inv, err
}

func (s *Store) GetInvoice(ctx context.Context, id int64) (*inventory.Invoice, error) {
	inv, err := scanInvoice(s.db.QueryRowContext(ctx, invoiceColumns+` where id = $1`, id))
	if err != nil {
		return nil, classify(err, label("invoice", id))
	}
	return &inv, nil
}

func (s *Store) ListInvoices(ctx context.Context, page query.Page) ([]inventory.Invoice, error) {
	rows, err := s.db.QueryContext(ctx, invoiceColumns+` order by id desc limit $1 offset $2`, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []inventory.Invoice{}
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (s *Store) DeleteInvoice(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `delete from facturas where id = $1`, id)
	return expectOne(res, err, label("invoice", id))
}

func (s *Store) InvoiceExistsForOrder(ctx context.Context, orderID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `select exists(select 1 from facturas where pedido_id = $1)`, orderID).Scan(&exists)
	return exists, err
}
